package reminder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/clinicore/reminder-service/internal/model"
	"github.com/clinicore/reminder-service/internal/repository/reminder"
)

//go:generate mockgen -source=service.go -destination=../../mocks/service/reminder/mock.go -package=mocks

type reminderRepository interface {
	CreateReminder(ctx context.Context, rem model.Reminder) (uuid.UUID, error)
	CancelByAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error)
	MarkSent(ctx context.Context, id uuid.UUID, sentAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
	GetReminderStatusByID(ctx context.Context, id uuid.UUID) (string, error)
}

type appointmentRepository interface {
	Upsert(ctx context.Context, appt model.Appointment) error
}

type cache interface {
	SetWithRetry(ctx context.Context, strategy retry.Strategy, key string, value interface{}) error
	GetWithRetry(ctx context.Context, strategy retry.Strategy, key string) (string, error)
}

// Service implements the appointment-facing side of the reminder engine:
// scheduling on booking, bulk withdrawal on cancellation, status lookups and
// per-record outcome updates for the dispatcher.
type Service struct {
	reminders    reminderRepository
	appointments appointmentRepository
	cache        cache

	loc      *time.Location
	sendHour int
	leadDays int

	now func() time.Time
}

// NewService creates a new reminder service. Reminders go out leadDays
// before the appointment at sendHour o'clock in the clinic's location.
func NewService(
	reminders reminderRepository,
	appointments appointmentRepository,
	cache cache,
	loc *time.Location,
	sendHour int,
	leadDays int,
) *Service {
	return &Service{
		reminders:    reminders,
		appointments: appointments,
		cache:        cache,
		loc:          loc,
		sendHour:     sendHour,
		leadDays:     leadDays,
		now:          time.Now,
	}
}

// BookAppointment handles a "booked" event from the clinic backend: it
// stores the appointment snapshot and schedules its reminders.
//
// A scheduling failure is logged but does not fail the booking itself; the
// snapshot is already stored and the caller's operation must not be rolled
// back over a missing reminder.
func (s *Service) BookAppointment(ctx context.Context, strategy retry.Strategy, appt model.Appointment) ([]uuid.UUID, error) {
	if err := s.appointments.Upsert(ctx, appt); err != nil {
		return nil, fmt.Errorf("store appointment: %w", err)
	}

	ids, err := s.ScheduleForAppointment(ctx, strategy, appt)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("appointment_id", appt.ID.String()).Msg("failed to schedule reminders for booking")
		return ids, nil
	}

	return ids, nil
}

// ScheduleForAppointment creates one pending reminder per channel the
// appointment is eligible for, all at the computed send time.
//
// Ineligible appointments and send times that are not in the future are
// skipped silently: a reminder that would fire immediately or in the past
// is a no-op, not an error.
func (s *Service) ScheduleForAppointment(ctx context.Context, strategy retry.Strategy, appt model.Appointment) ([]uuid.UUID, error) {
	if !appt.OnlineOptIn {
		zlog.Logger.Info().Str("appointment_id", appt.ID.String()).Msg("patient has not opted in to online notifications, skipping reminders")
		return nil, nil
	}

	sendAt := s.sendTimeFor(appt.StartsAt)
	if !sendAt.After(s.now()) {
		zlog.Logger.Info().Str("appointment_id", appt.ID.String()).Time("send_at", sendAt).Msg("reminder time already passed, skipping reminders")
		return nil, nil
	}

	var created []uuid.UUID
	for _, kind := range eligibleKinds(appt) {
		id, err := s.reminders.CreateReminder(ctx, model.Reminder{
			AppointmentID: appt.ID,
			Kind:          kind,
			Status:        model.StatusPending,
			SendAt:        sendAt,
		})
		if err != nil {
			if errors.Is(err, reminder.ErrAlreadyScheduled) {
				zlog.Logger.Info().Str("appointment_id", appt.ID.String()).Str("kind", string(kind)).Msg("reminder already scheduled, skipping")
				continue
			}

			return created, fmt.Errorf("create reminder: %w", err)
		}

		if err := s.cache.SetWithRetry(ctx, strategy, id.String(), string(model.StatusPending)); err != nil {
			zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache reminder status")
		}

		created = append(created, id)
	}

	return created, nil
}

// CancelForAppointment handles a "cancelled" event: every pending reminder
// of the appointment is withdrawn in one statement. Idempotent; cancelling
// again affects zero rows.
func (s *Service) CancelForAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error) {
	cancelled, err := s.reminders.CancelByAppointment(ctx, appointmentID)
	if err != nil {
		return 0, fmt.Errorf("cancel reminders: %w", err)
	}

	if cancelled == 0 {
		zlog.Logger.Debug().Str("appointment_id", appointmentID.String()).Msg("no pending reminders to cancel")
	}

	return cancelled, nil
}

// MarkSent records a confirmed delivery and refreshes the status cache.
func (s *Service) MarkSent(ctx context.Context, strategy retry.Strategy, id uuid.UUID, sentAt time.Time) error {
	if err := s.reminders.MarkSent(ctx, id, sentAt); err != nil {
		return fmt.Errorf("mark reminder sent: %w", err)
	}

	if err := s.cache.SetWithRetry(ctx, strategy, id.String(), string(model.StatusSent)); err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache reminder status")
	}

	return nil
}

// MarkFailed records a terminal delivery failure and refreshes the status cache.
func (s *Service) MarkFailed(ctx context.Context, strategy retry.Strategy, id uuid.UUID) error {
	if err := s.reminders.MarkFailed(ctx, id); err != nil {
		return fmt.Errorf("mark reminder failed: %w", err)
	}

	if err := s.cache.SetWithRetry(ctx, strategy, id.String(), string(model.StatusFailed)); err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache reminder status")
	}

	return nil
}

// GetReminderStatusByID returns the reminder status, served from the cache
// when possible. Any cache failure, not just a miss, falls back to the
// database.
func (s *Service) GetReminderStatusByID(ctx context.Context, strategy retry.Strategy, id uuid.UUID) (string, error) {
	status, err := s.cache.GetWithRetry(ctx, strategy, id.String())
	if err == nil {
		return status, nil
	}

	if !errors.Is(err, redis.Nil) {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to get reminder status from cache")
	}

	status, err = s.reminders.GetReminderStatusByID(ctx, id)
	if err != nil {
		return "", fmt.Errorf("get reminder status: %w", err)
	}

	if err := s.cache.SetWithRetry(ctx, strategy, id.String(), status); err != nil {
		zlog.Logger.Error().Err(err).Str("id", id.String()).Msg("failed to cache reminder status")
	}

	return status, nil
}

// sendTimeFor computes when reminders for an appointment should go out: the
// configured number of days before the visit, pinned to the clinic's send
// hour in its local timezone.
func (s *Service) sendTimeFor(startsAt time.Time) time.Time {
	day := startsAt.In(s.loc).AddDate(0, 0, -s.leadDays)
	return time.Date(day.Year(), day.Month(), day.Day(), s.sendHour, 0, 0, 0, s.loc)
}

// eligibleKinds lists the channels an appointment can be reminded on, based
// on which contact details the booking carried.
func eligibleKinds(appt model.Appointment) []model.Kind {
	var kinds []model.Kind

	if appt.Email != "" {
		kinds = append(kinds, model.KindEmailReminder)
	}

	if appt.Phone != "" {
		kinds = append(kinds, model.KindSMSReminder)
	}

	if appt.Phone != "" && appt.WhatsAppOptIn {
		kinds = append(kinds, model.KindWhatsAppConfirmation)
	}

	return kinds
}
