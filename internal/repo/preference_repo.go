package repo

import (
	"context"
	"time"

	"postflow/internal/domain"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ListEnabledPreferences returns every enabled preference that has at least
// one time configured for the given weekday. A malformed times blob is a
// per-owner defect: it is logged and that owner skipped, never an error for
// the whole listing.
func ListEnabledPreferences(ctx context.Context, db *pgxpool.Pool, day time.Weekday, log zerolog.Logger) ([]domain.SchedulePreference, error) {
	rows, err := db.Query(ctx, `
		SELECT owner_id, times FROM schedule_preferences
		WHERE enabled = TRUE
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.SchedulePreference
	for rows.Next() {
		var ownerID int64
		var raw []byte
		if err := rows.Scan(&ownerID, &raw); err != nil {
			return nil, err
		}
		times, err := domain.ParseScheduleTimes(raw)
		if err != nil {
			log.Warn().Err(err).Int64("owner_id", ownerID).
				Msg("skipping owner with malformed schedule preference")
			continue
		}
		if len(times[day]) == 0 {
			continue
		}
		res = append(res, domain.SchedulePreference{
			OwnerID: ownerID,
			Enabled: true,
			Times:   times,
		})
	}
	return res, rows.Err()
}

// UpsertPreference stores an owner's schedule preference blob.
func UpsertPreference(ctx context.Context, db *pgxpool.Pool, ownerID int64, enabled bool, times []byte) error {
	_, err := db.Exec(ctx, `
		INSERT INTO schedule_preferences (owner_id, enabled, times, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (owner_id)
		DO UPDATE SET enabled=EXCLUDED.enabled, times=EXCLUDED.times, updated_at=NOW()
	`, ownerID, enabled, times)
	return err
}
