package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/zkbstore/internal/killmail"
)

// Persist writes a killmail header, its participants and the dedup record
// for fp in one transaction.
//
// Outcomes:
//   - OutcomeStored: all rows were written
//   - OutcomeDuplicate: fp was already recorded, or a concurrent writer
//     recorded it first; nothing was written
//   - OutcomeHeaderExists: the header id is already present under another
//     fingerprint; participants are skipped and only fp is recorded
//
// Participant rows that collide on (killmail_id, character_id, is_victim)
// keep the first occurrence. Any other constraint violation rolls back the
// whole unit of work and returns an IntegrityError.
func (s *Store) Persist(ctx context.Context, fp killmail.Fingerprint, h killmail.Header, participants []killmail.Participant) (killmail.Outcome, error) {
	if n := killmail.CountVictims(participants); n != 1 {
		return 0, killmail.NewPermanent(killmail.StagePersist, h.KillmailID,
			fmt.Sprintf("want exactly one victim, got %d", n), nil)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("persist: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	// Commit-time recheck of the dedup gate
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM hashes WHERE hash = ?`, fp.Bytes()).Scan(&one)
	switch {
	case err == nil:
		return killmail.OutcomeDuplicate, nil
	case !errors.Is(err, sql.ErrNoRows):
		return 0, fmt.Errorf("persist: check hash: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO killmails (killmail_id, killmail_time, solar_system_id)
		VALUES (?, ?, ?)
		ON CONFLICT(killmail_id) DO NOTHING
	`, h.KillmailID, h.KillmailTime, h.SolarSystemID)
	if err != nil {
		return 0, classifyWriteError(h.KillmailID, "insert killmail", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("persist: rows affected: %w", err)
	}

	outcome := killmail.OutcomeStored
	if rows == 0 {
		// Headers are write-once; the existing participants stand.
		outcome = killmail.OutcomeHeaderExists
	} else if err := insertParticipants(ctx, tx.Tx, h.KillmailID, participants); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO hashes (hash) VALUES (?)`, fp.Bytes()); err != nil {
		if isUniqueViolation(err) {
			return killmail.OutcomeDuplicate, nil
		}
		return 0, classifyWriteError(h.KillmailID, "insert hash", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("persist: commit: %w", err)
	}

	return outcome, nil
}

func insertParticipants(ctx context.Context, tx *sql.Tx, killmailID int64, participants []killmail.Participant) error {
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO participants
		(killmail_id, character_id, corporation_id, alliance_id, ship_type_id, damage, is_victim)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(killmail_id, character_id, is_victim) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("persist: prepare participants: %w", err)
	}
	defer stmt.Close()

	for i, p := range participants {
		_, err := stmt.ExecContext(ctx,
			killmailID,
			p.CharacterID,
			p.CorporationID,
			p.AllianceID,
			p.ShipTypeID,
			p.Damage,
			p.IsVictim,
		)
		if err != nil {
			return classifyWriteError(killmailID, fmt.Sprintf("insert participant %d", i), err)
		}
	}
	return nil
}

// Seen reports whether fp has a dedup record.
func (s *Store) Seen(ctx context.Context, fp killmail.Fingerprint) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM hashes WHERE hash = ?`, fp.Bytes()).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("seen: %w", err)
	}
	return count > 0, nil
}

// classifyWriteError turns SQLite constraint failures into IntegrityErrors.
// Other errors are wrapped with the failing operation.
func classifyWriteError(killmailID int64, op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return killmail.NewIntegrity(killmailID, op, err)
	}
	return fmt.Errorf("persist: %s: %w", op, err)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}
