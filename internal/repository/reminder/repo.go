package reminder

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/zlog"

	"github.com/clinicore/reminder-service/internal/model"
)

var (
	ErrReminderNotFound = errors.New("reminder not found")
	ErrAlreadyScheduled = errors.New("reminder already scheduled for this appointment and kind")
)

// Repository provides methods to interact with the reminders table.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new reminder repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// CreateReminder inserts a new pending reminder and returns its ID.
//
// Scheduling is idempotent per (appointment_id, kind): a second insert for
// the same pair hits the unique index, inserts nothing and returns
// ErrAlreadyScheduled.
func (r *Repository) CreateReminder(ctx context.Context, rem model.Reminder) (uuid.UUID, error) {
	query := `
		INSERT INTO reminders (appointment_id, kind, status, send_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (appointment_id, kind) DO NOTHING
		RETURNING id;
    `

	var id uuid.UUID
	err := r.db.QueryRowContext(
		ctx, query, rem.AppointmentID, rem.Kind, rem.Status, rem.SendAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return uuid.Nil, ErrAlreadyScheduled
		}

		return uuid.Nil, fmt.Errorf("failed to create reminder: %w", err)
	}

	return id, nil
}

// ClaimDue atomically claims up to limit pending reminders whose send time
// has elapsed and returns them ordered by send_at ascending.
//
// The inner select locks candidate rows with FOR UPDATE SKIP LOCKED and the
// status flip happens in the same statement, so two concurrent dispatch
// cycles can never claim overlapping id sets.
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.Reminder, error) {
	query := `
		UPDATE reminders r
		SET status = 'claimed', claimed_at = $1, updated_at = $1
		FROM (
		    SELECT id
		    FROM reminders
		    WHERE status = 'pending' AND send_at <= $1
		    ORDER BY send_at ASC
		    LIMIT $2
		    FOR UPDATE SKIP LOCKED
		) due
		WHERE r.id = due.id
		RETURNING r.id, r.appointment_id, r.kind, r.status, r.send_at, r.claimed_at, r.sent_at, r.created_at, r.updated_at;
    `

	rows, err := r.db.QueryContext(ctx, query, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to claim due reminders: %w", err)
	}
	defer rows.Close()

	var reminders []model.Reminder
	for rows.Next() {
		var rem model.Reminder
		if err := rows.Scan(
			&rem.ID, &rem.AppointmentID, &rem.Kind, &rem.Status,
			&rem.SendAt, &rem.ClaimedAt, &rem.SentAt, &rem.CreatedAt, &rem.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan claimed reminder: %w", err)
		}

		reminders = append(reminders, rem)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read claimed reminders: %w", err)
	}

	// RETURNING does not guarantee row order, the batch is processed
	// earliest-due-first.
	sort.Slice(reminders, func(i, j int) bool {
		return reminders[i].SendAt.Before(reminders[j].SendAt)
	})

	return reminders, nil
}

// ReleaseStale resets claimed reminders whose claim is older than the cutoff
// (or has no recorded claim time) back to pending, in one bulk update.
// It returns the number of reclaimed rows.
func (r *Repository) ReleaseStale(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `
		UPDATE reminders
		SET status = 'pending', claimed_at = NULL, updated_at = NOW()
		WHERE status = 'claimed' AND (claimed_at IS NULL OR claimed_at <= $1);
    `

	res, err := r.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to release stale claims: %w", err)
	}

	released, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count released claims: %w", err)
	}

	return released, nil
}

// MarkSent records a confirmed delivery for a reminder.
//
// Only a claimed record can become sent. A record a competing writer has
// already moved to a terminal state (a stale claim that was reclaimed,
// re-dispatched and resolved) is left untouched; sent and failed are final.
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error {
	query := `
		UPDATE reminders
		SET status = 'sent', sent_at = $2, updated_at = $2
		WHERE id = $1 AND status = 'claimed';
    `

	res, err := r.db.ExecContext(ctx, query, id, sentAt)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		zlog.Logger.Debug().Str("reminder_id", id.String()).Msg("reminder no longer claimed, skipping sent transition")
	}

	return nil
}

// MarkFailed transitions a claimed reminder to its terminal failed state.
// Like MarkSent it never overwrites a terminal status.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE reminders
		SET status = 'failed', updated_at = NOW()
		WHERE id = $1 AND status = 'claimed';
    `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to mark reminder failed: %w", err)
	}

	rows, _ := res.RowsAffected()

	if rows == 0 {
		zlog.Logger.Debug().Str("reminder_id", id.String()).Msg("reminder no longer claimed, skipping failed transition")
	}

	return nil
}

// CancelByAppointment withdraws every pending reminder of an appointment in
// one statement and returns the number of affected rows. Calling it again
// when nothing is pending affects zero rows and is not an error.
func (r *Repository) CancelByAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	query := `
		UPDATE reminders
		SET status = 'failed', updated_at = NOW()
		WHERE appointment_id = $1 AND status = 'pending';
    `

	res, err := r.db.ExecContext(ctx, query, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel reminders: %w", err)
	}

	cancelled, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cancelled reminders: %w", err)
	}

	return cancelled, nil
}

// GetReminderStatusByID retrieves the status of a reminder by its ID.
func (r *Repository) GetReminderStatusByID(ctx context.Context, id uuid.UUID) (string, error) {
	query := `
		SELECT status
		FROM reminders
		WHERE id = $1;
    `

	var status string
	err := r.db.QueryRowContext(ctx, query, id).Scan(&status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrReminderNotFound
		}

		return "", fmt.Errorf("failed to get reminder status: %w", err)
	}

	return status, nil
}
