package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/chimeapp/chime/internal/database"
	"github.com/chimeapp/chime/internal/models"
)

type ReminderRepository struct {
	db *database.DB
}

func NewReminderRepository(db *database.DB) *ReminderRepository {
	return &ReminderRepository{db: db}
}

const reminderColumns = `id, chat_id, title, message, anchor_at_ms, time_zone, repeat_rule, offsets_ms, enabled, deleted, created_at`

func (r *ReminderRepository) Create(ctx context.Context, reminder *models.Reminder) error {
	if reminder.ID == "" {
		reminder.ID = uuid.NewString()
	}
	return r.db.Pool.QueryRow(ctx,
		`INSERT INTO reminders (id, chat_id, title, message, anchor_at_ms, time_zone, repeat_rule, offsets_ms, enabled, deleted)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 RETURNING created_at`,
		reminder.ID, reminder.ChatID, reminder.Title, reminder.Message, reminder.AnchorAtMs,
		reminder.TimeZone, string(reminder.Repeat), reminder.Offsets(), reminder.Enabled, reminder.Deleted,
	).Scan(&reminder.CreatedAt)
}

func (r *ReminderRepository) GetByID(ctx context.Context, id string) (*models.Reminder, error) {
	row := r.db.Pool.QueryRow(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE id = $1`, id)
	return scanReminder(row)
}

// GetAllActive returns every enabled, non-soft-deleted reminder. Used by
// the boot-restore pass.
func (r *ReminderRepository) GetAllActive(ctx context.Context) ([]*models.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE enabled = TRUE AND deleted = FALSE ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (r *ReminderRepository) GetByChatID(ctx context.Context, chatID int64) ([]*models.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders WHERE chat_id = $1 AND deleted = FALSE ORDER BY anchor_at_ms`,
		chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func (r *ReminderRepository) Update(ctx context.Context, reminder *models.Reminder) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET title = $1, message = $2, anchor_at_ms = $3, time_zone = $4,
		        repeat_rule = $5, offsets_ms = $6, enabled = $7
		 WHERE id = $8`,
		reminder.Title, reminder.Message, reminder.AnchorAtMs, reminder.TimeZone,
		string(reminder.Repeat), reminder.Offsets(), reminder.Enabled, reminder.ID,
	)
	return err
}

func (r *ReminderRepository) SetEnabled(ctx context.Context, id string, enabled bool) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET enabled = $1 WHERE id = $2`, enabled, id)
	return err
}

// SoftDelete tombstones a reminder. Fire-state rows are kept so a later
// restore of the row cannot re-deliver old occurrences.
func (r *ReminderRepository) SoftDelete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx,
		`UPDATE reminders SET deleted = TRUE WHERE id = $1`, id)
	return err
}

// HardDelete permanently destroys a reminder row. The caller is expected to
// also drop its fire-state rows via FireStateRepository.DeleteForReminder.
func (r *ReminderRepository) HardDelete(ctx context.Context, id string) error {
	_, err := r.db.Pool.Exec(ctx, `DELETE FROM reminders WHERE id = $1`, id)
	return err
}

func (r *ReminderRepository) Search(ctx context.Context, chatID int64, keyword string) ([]*models.Reminder, error) {
	rows, err := r.db.Pool.Query(ctx,
		`SELECT `+reminderColumns+` FROM reminders
		 WHERE chat_id = $1 AND deleted = FALSE AND (title ILIKE $2 OR message ILIKE $2)
		 ORDER BY anchor_at_ms`,
		chatID, "%"+keyword+"%")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectReminders(rows)
}

func scanReminder(row pgx.Row) (*models.Reminder, error) {
	reminder := &models.Reminder{}
	var rule string
	err := row.Scan(&reminder.ID, &reminder.ChatID, &reminder.Title, &reminder.Message,
		&reminder.AnchorAtMs, &reminder.TimeZone, &rule, &reminder.OffsetsMs,
		&reminder.Enabled, &reminder.Deleted, &reminder.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, models.ErrReminderNotFound
		}
		return nil, err
	}
	reminder.Repeat, err = models.ParseRepeatRule(rule)
	if err != nil {
		return nil, err
	}
	return reminder, nil
}

func collectReminders(rows pgx.Rows) ([]*models.Reminder, error) {
	var reminders []*models.Reminder
	for rows.Next() {
		reminder, err := scanReminder(rows)
		if err != nil {
			return nil, err
		}
		reminders = append(reminders, reminder)
	}
	return reminders, rows.Err()
}
