// Package status serves a read-only HTTP view of a store and, when a
// pipeline runs in the same process, its counters.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/roach88/zkbstore/internal/killmail"
	"github.com/roach88/zkbstore/internal/pipeline"
)

// Reader is the store surface the status endpoints need.
type Reader interface {
	Ping(ctx context.Context) error
	Stats(ctx context.Context) (killmail.Counts, error)
	KillmailByID(ctx context.Context, id int64) (killmail.Detail, error)
}

// Counters exposes live pipeline counters. *pipeline.Stats implements it.
type Counters interface {
	Snapshot() pipeline.Snapshot
}

// NewRouter wires the endpoints:
//
//	GET /health          liveness
//	GET /ready           store reachable
//	GET /stats           table counts and pipeline counters
//	GET /killmails/:id   header and participants
//
// counters may be nil when no pipeline runs in this process.
func NewRouter(st Reader, counters Counters) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())

	// Liveness: confirms the process is running.
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Readiness: confirms the store is reachable.
	r.GET("/ready", func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
		defer cancel()

		if err := st.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})

	r.GET("/stats", func(c *gin.Context) {
		counts, err := st.Stats(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store query failed"})
			return
		}

		body := gin.H{"store": counts}
		if counters != nil {
			body["pipeline"] = counters.Snapshot()
		}
		c.JSON(http.StatusOK, body)
	})

	r.GET("/killmails/:id", func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || id <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
			return
		}

		detail, err := st.KillmailByID(c.Request.Context(), id)
		switch {
		case errors.Is(err, killmail.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "killmail not found"})
		case err != nil:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "store query failed"})
		default:
			c.JSON(http.StatusOK, detail)
		}
	})

	return r
}

// Serve runs handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("status server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("status server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("status server shutdown: %w", err)
	}
	logger.Info("status server stopped")
	return nil
}
