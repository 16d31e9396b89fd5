package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/chimeapp/chime/internal/database"
)

// FireStateRepository is the durable fire-state ledger: the last delivery
// time per (reminder, offset) pair. It is what makes delivery idempotent
// across restarts and across races between a live trigger and a
// boot-restore pass.
type FireStateRepository struct {
	db *database.DB
}

func NewFireStateRepository(db *database.DB) *FireStateRepository {
	return &FireStateRepository{db: db}
}

// Get returns the last delivery time for the pair, ok=false when the pair
// has never fired.
func (r *FireStateRepository) Get(ctx context.Context, reminderID string, offsetMs int64) (int64, bool, error) {
	var lastFiredAt int64
	err := r.db.Pool.QueryRow(ctx,
		`SELECT last_fired_at_ms FROM fire_state WHERE reminder_id = $1 AND offset_ms = $2`,
		reminderID, offsetMs,
	).Scan(&lastFiredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return lastFiredAt, true, nil
}

// Upsert records a delivery. The ON CONFLICT update makes the write atomic
// per key, which is all the concurrency model requires.
func (r *FireStateRepository) Upsert(ctx context.Context, reminderID string, offsetMs, firedAtMs int64) error {
	_, err := r.db.Pool.Exec(ctx,
		`INSERT INTO fire_state (reminder_id, offset_ms, last_fired_at_ms)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (reminder_id, offset_ms) DO UPDATE SET last_fired_at_ms = EXCLUDED.last_fired_at_ms`,
		reminderID, offsetMs, firedAtMs,
	)
	return err
}

// DeleteForReminder drops all ledger rows for a reminder. Only called when
// the reminder row itself is hard-deleted, never on soft delete.
func (r *FireStateRepository) DeleteForReminder(ctx context.Context, reminderID string) error {
	_, err := r.db.Pool.Exec(ctx,
		`DELETE FROM fire_state WHERE reminder_id = $1`, reminderID)
	return err
}
