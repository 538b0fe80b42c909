package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/zkbstore/internal/killmail"
)

// Read helpers are example consumers of the persisted data. The ingestion
// path never calls them.

type headerRow struct {
	KillmailID    int64  `db:"killmail_id"`
	KillmailTime  string `db:"killmail_time"`
	SolarSystemID int64  `db:"solar_system_id"`
}

type participantRow struct {
	CharacterID   *int64 `db:"character_id"`
	CorporationID *int64 `db:"corporation_id"`
	AllianceID    *int64 `db:"alliance_id"`
	ShipTypeID    *int64 `db:"ship_type_id"`
	Damage        int64  `db:"damage"`
	IsVictim      bool   `db:"is_victim"`
}

// WinLoss counts the killmails a character appears on as attacker (Kills)
// and as victim (Losses).
type WinLoss struct {
	Kills  int64 `json:"kills" db:"kills"`
	Losses int64 `json:"losses" db:"losses"`
}

// Stats returns row counts of all three tables.
func (s *Store) Stats(ctx context.Context) (killmail.Counts, error) {
	var c killmail.Counts
	err := s.db.GetContext(ctx, &c, `
		SELECT
			(SELECT COUNT(*) FROM killmails)    AS killmails,
			(SELECT COUNT(*) FROM participants) AS participants,
			(SELECT COUNT(*) FROM hashes)       AS hashes
	`)
	if err != nil {
		return killmail.Counts{}, fmt.Errorf("stats: %w", err)
	}
	return c, nil
}

// KillmailByID returns a header with its participants, victim first and
// attackers in insertion order.
// Returns an error wrapping killmail.ErrNotFound if the killmail does not exist.
func (s *Store) KillmailByID(ctx context.Context, id int64) (killmail.Detail, error) {
	var h headerRow
	if err := s.db.GetContext(ctx, &h, `
		SELECT killmail_id, killmail_time, solar_system_id
		FROM killmails
		WHERE killmail_id = ?
	`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = killmail.ErrNotFound
		}
		return killmail.Detail{}, fmt.Errorf("read killmail %d: %w", id, err)
	}

	var rows []participantRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT character_id, corporation_id, alliance_id, ship_type_id, damage, is_victim
		FROM participants
		WHERE killmail_id = ?
		ORDER BY is_victim DESC, rowid ASC
	`, id); err != nil {
		return killmail.Detail{}, fmt.Errorf("read participants %d: %w", id, err)
	}

	detail := killmail.Detail{
		Header: killmail.Header{
			KillmailID:    h.KillmailID,
			KillmailTime:  h.KillmailTime,
			SolarSystemID: h.SolarSystemID,
		},
		Participants: make([]killmail.Participant, 0, len(rows)),
	}
	for _, r := range rows {
		detail.Participants = append(detail.Participants, killmail.Participant{
			CharacterID:   r.CharacterID,
			CorporationID: r.CorporationID,
			AllianceID:    r.AllianceID,
			ShipTypeID:    r.ShipTypeID,
			Damage:        r.Damage,
			IsVictim:      r.IsVictim,
		})
	}
	return detail, nil
}

// WinLoss returns kill and loss counts for a character.
func (s *Store) WinLoss(ctx context.Context, characterID int64) (WinLoss, error) {
	var wl WinLoss
	err := s.db.GetContext(ctx, &wl, `
		SELECT
			COALESCE(SUM(CASE WHEN is_victim = 0 THEN 1 ELSE 0 END), 0) AS kills,
			COALESCE(SUM(CASE WHEN is_victim = 1 THEN 1 ELSE 0 END), 0) AS losses
		FROM participants
		WHERE character_id = ?
	`, characterID)
	if err != nil {
		return WinLoss{}, fmt.Errorf("win/loss %d: %w", characterID, err)
	}
	return wl, nil
}

// HourlyActivity buckets a character's killmails by UTC hour of day.
func (s *Store) HourlyActivity(ctx context.Context, characterID int64) ([24]int64, error) {
	var buckets [24]int64

	var rows []struct {
		Hour  int   `db:"hour"`
		Count int64 `db:"n"`
	}
	err := s.db.SelectContext(ctx, &rows, `
		SELECT CAST(strftime('%H', k.killmail_time) AS INTEGER) AS hour, COUNT(*) AS n
		FROM participants p
		JOIN killmails k ON k.killmail_id = p.killmail_id
		WHERE p.character_id = ?
		GROUP BY hour
		ORDER BY hour ASC
	`, characterID)
	if err != nil {
		return buckets, fmt.Errorf("hourly activity %d: %w", characterID, err)
	}

	for _, r := range rows {
		if r.Hour >= 0 && r.Hour < len(buckets) {
			buckets[r.Hour] = r.Count
		}
	}
	return buckets, nil
}
