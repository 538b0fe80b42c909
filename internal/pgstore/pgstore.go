// Package pgstore is the PostgreSQL backend for killmail storage.
//
// It has the same write semantics as the SQLite store: header, participants
// and dedup record are co-committed, and the UNIQUE constraint on
// hashes.hash decides races between concurrent writers.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/roach88/zkbstore/internal/killmail"
)

// schemaSQL is embedded so the service can self-bootstrap its database schema.
//
//go:embed schema.sql
var schemaSQL string

// Store persists killmails in PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// Open creates a connection pool, fails fast if the database is unreachable,
// and applies the schema.
func Open(ctx context.Context, dbURL string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("pgstore: open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: ping: %w", err)
	}

	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pgstore: apply schema: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Ping is used by the readiness endpoint to validate DB connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close shuts down the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// Persist writes header, participants and the dedup record for fp in one
// transaction. Outcomes match the SQLite store.
func (s *Store) Persist(ctx context.Context, fp killmail.Fingerprint, h killmail.Header, participants []killmail.Participant) (killmail.Outcome, error) {
	if n := killmail.CountVictims(participants); n != 1 {
		return 0, killmail.NewPermanent(killmail.StagePersist, h.KillmailID,
			fmt.Sprintf("want exactly one victim, got %d", n), nil)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("persist: begin tx: %w", err)
	}
	defer tx.Rollback(ctx) // No-op if committed

	var one int
	err = tx.QueryRow(ctx, `SELECT 1 FROM hashes WHERE hash = $1`, fp.Bytes()).Scan(&one)
	switch {
	case err == nil:
		return killmail.OutcomeDuplicate, nil
	case !errors.Is(err, pgx.ErrNoRows):
		return 0, fmt.Errorf("persist: check hash: %w", err)
	}

	// RETURNING 1 only when inserted; an existing header returns no rows.
	outcome := killmail.OutcomeStored
	err = tx.QueryRow(ctx, `
		INSERT INTO killmails (killmail_id, killmail_time, solar_system_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (killmail_id) DO NOTHING
		RETURNING 1
	`, h.KillmailID, h.KillmailTime, h.SolarSystemID).Scan(&one)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		outcome = killmail.OutcomeHeaderExists
	case err != nil:
		return 0, classifyWriteError(h.KillmailID, "insert killmail", err)
	default:
		if err := insertParticipants(ctx, tx, h.KillmailID, participants); err != nil {
			return 0, err
		}
	}

	// A concurrent writer holding the same fingerprint makes this insert
	// wait for its commit, then return no rows.
	err = tx.QueryRow(ctx, `
		INSERT INTO hashes (hash) VALUES ($1)
		ON CONFLICT (hash) DO NOTHING
		RETURNING 1
	`, fp.Bytes()).Scan(&one)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return killmail.OutcomeDuplicate, nil
	case err != nil:
		return 0, classifyWriteError(h.KillmailID, "insert hash", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("persist: commit: %w", err)
	}
	return outcome, nil
}

func insertParticipants(ctx context.Context, tx pgx.Tx, killmailID int64, participants []killmail.Participant) error {
	batch := &pgx.Batch{}
	for _, p := range participants {
		batch.Queue(`
			INSERT INTO participants
			(killmail_id, character_id, corporation_id, alliance_id, ship_type_id, damage, is_victim)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (killmail_id, character_id, is_victim) DO NOTHING
		`, killmailID, p.CharacterID, p.CorporationID, p.AllianceID, p.ShipTypeID, p.Damage, victimFlag(p.IsVictim))
	}

	br := tx.SendBatch(ctx, batch)
	for i := range participants {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return classifyWriteError(killmailID, fmt.Sprintf("insert participant %d", i), err)
		}
	}
	if err := br.Close(); err != nil {
		return classifyWriteError(killmailID, "insert participants", err)
	}
	return nil
}

// Seen reports whether fp has a dedup record.
func (s *Store) Seen(ctx context.Context, fp killmail.Fingerprint) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM hashes WHERE hash = $1)`, fp.Bytes()).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("seen: %w", err)
	}
	return exists, nil
}

// Stats returns row counts of all three tables.
func (s *Store) Stats(ctx context.Context) (killmail.Counts, error) {
	var c killmail.Counts
	err := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM killmails),
			(SELECT COUNT(*) FROM participants),
			(SELECT COUNT(*) FROM hashes)
	`).Scan(&c.Killmails, &c.Participants, &c.Hashes)
	if err != nil {
		return killmail.Counts{}, fmt.Errorf("stats: %w", err)
	}
	return c, nil
}

// KillmailByID returns a header with its participants, victim first.
// Returns an error wrapping killmail.ErrNotFound if the killmail does not exist.
func (s *Store) KillmailByID(ctx context.Context, id int64) (killmail.Detail, error) {
	var d killmail.Detail
	err := s.pool.QueryRow(ctx, `
		SELECT killmail_id, killmail_time, solar_system_id
		FROM killmails
		WHERE killmail_id = $1
	`, id).Scan(&d.Header.KillmailID, &d.Header.KillmailTime, &d.Header.SolarSystemID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			err = killmail.ErrNotFound
		}
		return killmail.Detail{}, fmt.Errorf("read killmail %d: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT character_id, corporation_id, alliance_id, ship_type_id, damage, is_victim
		FROM participants
		WHERE killmail_id = $1
		ORDER BY is_victim DESC, id ASC
	`, id)
	if err != nil {
		return killmail.Detail{}, fmt.Errorf("read participants %d: %w", id, err)
	}

	d.Participants, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (killmail.Participant, error) {
		var p killmail.Participant
		var victim int
		err := row.Scan(&p.CharacterID, &p.CorporationID, &p.AllianceID, &p.ShipTypeID, &p.Damage, &victim)
		p.IsVictim = victim == 1
		return p, err
	})
	if err != nil {
		return killmail.Detail{}, fmt.Errorf("read participants %d: %w", id, err)
	}
	return d, nil
}

// classifyWriteError maps integrity constraint violations (SQLSTATE class 23)
// to IntegrityErrors.
func classifyWriteError(killmailID int64, op string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && len(pgErr.Code) == 5 && pgErr.Code[:2] == "23" {
		return killmail.NewIntegrity(killmailID, op, err)
	}
	return fmt.Errorf("persist: %s: %w", op, err)
}

func victimFlag(v bool) int {
	if v {
		return 1
	}
	return 0
}
