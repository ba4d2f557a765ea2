package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/wb-go/wbf/ginext"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	"github.com/clinicore/reminder-service/internal/api/respond"
	"github.com/clinicore/reminder-service/internal/config"
	"github.com/clinicore/reminder-service/internal/model"
	"github.com/clinicore/reminder-service/internal/repository/reminder"
)

// reminderService defines the interface that the Handler depends on.
//
// It abstracts the booking and cancellation hooks of the reminder engine
// and the status lookup for scheduled reminders.
//
//go:generate mockgen -source=handler.go -destination=../../../mocks/api/handlers/appointment/mock.go -package=mocks
type reminderService interface {
	BookAppointment(ctx context.Context, strategy retry.Strategy, appt model.Appointment) ([]uuid.UUID, error)
	CancelForAppointment(ctx context.Context, appointmentID uuid.UUID) (int64, error)
	GetReminderStatusByID(ctx context.Context, strategy retry.Strategy, id uuid.UUID) (string, error)
}

// Handler receives appointment lifecycle events from the clinic backend and
// exposes reminder status lookups.
type Handler struct {
	service   reminderService
	validator *validator.Validate
	cfg       *config.Config
	loc       *time.Location
}

// NewHandler creates a new Handler instance.
func NewHandler(
	s reminderService,
	v *validator.Validate,
	cfg *config.Config,
	loc *time.Location,
) *Handler {
	return &Handler{service: s, validator: v, cfg: cfg, loc: loc}
}

// BookRequest represents the JSON body of a "booked" event.
type BookRequest struct {
	ID            string `json:"id" validate:"required,uuid"`
	PatientName   string `json:"patient_name" validate:"required"`
	DoctorName    string `json:"doctor_name" validate:"required"`
	StartsAt      string `json:"starts_at" validate:"required"`
	Email         string `json:"email" validate:"omitempty,email"`
	Phone         string `json:"phone"`
	OnlineOptIn   bool   `json:"online_opt_in"`
	WhatsAppOptIn bool   `json:"whatsapp_opt_in"`
	Note          string `json:"note"`
}

// Book handles a "booked" event: it stores the appointment snapshot and
// schedules its reminders, responding with the created reminder IDs.
func (h *Handler) Book(c *ginext.Context) {
	var req BookRequest

	// Decode JSON request body into BookRequest struct.
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to decode request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid request body"))
		return
	}

	// Validate request fields using go-playground/validator.
	if err := h.validator.Struct(req); err != nil {
		zlog.Logger.Warn().Err(err).Msg("failed to validate request body")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("validation error: %s", err.Error()))
		return
	}

	// Parse the StartsAt string in the clinic's timezone.
	startsAt, err := time.ParseInLocation(time.DateTime, req.StartsAt, h.loc)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to parse starts_at time")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid starts_at format"))
		return
	}

	appt := model.Appointment{
		ID:            uuid.MustParse(req.ID),
		PatientName:   req.PatientName,
		DoctorName:    req.DoctorName,
		StartsAt:      startsAt,
		Email:         req.Email,
		Phone:         req.Phone,
		OnlineOptIn:   req.OnlineOptIn,
		WhatsAppOptIn: req.WhatsAppOptIn,
		Note:          req.Note,
	}

	ids, err := h.service.BookAppointment(c.Request.Context(), h.cfg.Retry, appt)
	if err != nil {
		zlog.Logger.Error().Err(err).Str("appointment_id", req.ID).Msg("failed to register booking")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.Created(c.Writer, ids)
}

// Cancel handles a "cancelled" event: it withdraws every pending reminder
// of the appointment and responds with the number of withdrawn records.
func (h *Handler) Cancel(c *ginext.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		zlog.Logger.Error().Err(err).Interface("idStr", idStr).Msg("failed to parse id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return
	}

	if id == uuid.Nil {
		zlog.Logger.Warn().Msg("missing id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("missing id"))
		return
	}

	cancelled, err := h.service.CancelForAppointment(c.Request.Context(), id)
	if err != nil {
		zlog.Logger.Error().Err(err).Interface("id", id).Msg("failed to cancel reminders")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, map[string]int64{"cancelled": cancelled})
}

// GetStatus handles reminder status lookups by reminder ID.
func (h *Handler) GetStatus(c *ginext.Context) {
	idStr := c.Param("id")
	id, err := uuid.Parse(idStr)
	if err != nil {
		zlog.Logger.Error().Err(err).Interface("idStr", idStr).Msg("failed to parse id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("invalid id"))
		return
	}

	if id == uuid.Nil {
		zlog.Logger.Warn().Msg("missing id")
		respond.Fail(c.Writer, http.StatusBadRequest, fmt.Errorf("missing id"))
		return
	}

	status, err := h.service.GetReminderStatusByID(c.Request.Context(), h.cfg.Retry, id)
	if err != nil {
		if errors.Is(err, reminder.ErrReminderNotFound) {
			zlog.Logger.Warn().Interface("id", id).Err(err).Msg("reminder not found")
			respond.Fail(c.Writer, http.StatusNotFound, fmt.Errorf("reminder not found"))
			return
		}

		zlog.Logger.Error().Err(err).Interface("id", id).Msg("failed to get reminder status")
		respond.Fail(c.Writer, http.StatusInternalServerError, fmt.Errorf("internal server error"))
		return
	}

	respond.OK(c.Writer, status)
}
