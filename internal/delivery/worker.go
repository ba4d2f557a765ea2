package delivery

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/zlog"

	"github.com/clinicore/reminder-service/internal/model"
)

var (
	// ErrMissingDestination means the appointment has no address for the
	// reminder's channel. Retrying cannot fix it.
	ErrMissingDestination = errors.New("no destination for reminder channel")

	// ErrDeliveryExhausted means every delivery attempt failed.
	ErrDeliveryExhausted = errors.New("delivery attempts exhausted")

	ErrUnknownKind = errors.New("unknown reminder kind")
)

//go:generate mockgen -source=worker.go -destination=../mocks/delivery/mock.go -package=mocks

// Transport sends one rendered message to a destination. Implementations
// wrap the external SMTP/SMS/WhatsApp gateways and may fail transiently.
type Transport interface {
	Send(to, subject, body string) error
}

type appointmentProvider interface {
	GetByID(ctx context.Context, id uuid.UUID) (model.Appointment, error)
}

// Worker delivers one claimed reminder at a time. It renders the message
// from the appointment's current data and retries transient transport
// failures with capped exponential backoff.
//
// The worker never touches reminder status itself; the dispatcher records
// the outcome it reports.
type Worker struct {
	transports   map[model.Kind]Transport
	appointments appointmentProvider

	attempts  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewWorker creates a delivery worker sending through the given per-kind
// transports.
func NewWorker(
	transports map[model.Kind]Transport,
	appointments appointmentProvider,
	attempts int,
	baseDelay, maxDelay time.Duration,
) *Worker {
	return &Worker{
		transports:   transports,
		appointments: appointments,
		attempts:     attempts,
		baseDelay:    baseDelay,
		maxDelay:     maxDelay,
	}
}

// Deliver renders and sends one claimed reminder.
//
// A missing destination fails immediately without touching the transport.
// Transient transport errors are retried up to the attempt cap; success on
// any attempt is final. When every attempt fails the returned error wraps
// ErrDeliveryExhausted.
func (w *Worker) Deliver(ctx context.Context, rem model.Reminder) error {
	appt, err := w.appointments.GetByID(ctx, rem.AppointmentID)
	if err != nil {
		return fmt.Errorf("resolve appointment: %w", err)
	}

	transport, ok := w.transports[rem.Kind]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, rem.Kind)
	}

	to := destinationFor(rem.Kind, appt)
	if to == "" {
		return fmt.Errorf("%w: %s", ErrMissingDestination, rem.Kind)
	}

	subject, body := render(rem.Kind, appt)

	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		if lastErr = transport.Send(to, subject, body); lastErr == nil {
			return nil
		}

		zlog.Logger.Warn().Err(lastErr).Str("reminder_id", rem.ID.String()).Str("kind", string(rem.Kind)).Int("attempt", attempt).Msg("delivery attempt failed")

		if attempt == w.attempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.backoff(attempt)):
		}
	}

	return fmt.Errorf("%w after %d attempts: %v", ErrDeliveryExhausted, w.attempts, lastErr)
}

// backoff returns the wait after a failed attempt, doubling from the base
// delay and capped at the maximum.
func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.baseDelay << (attempt - 1)
	if delay > w.maxDelay {
		return w.maxDelay
	}

	return delay
}

// destinationFor resolves the address a reminder kind is delivered to.
func destinationFor(kind model.Kind, appt model.Appointment) string {
	switch kind {
	case model.KindEmailReminder:
		return appt.Email
	case model.KindSMSReminder, model.KindWhatsAppConfirmation:
		return appt.Phone
	default:
		return ""
	}
}
