package reminder

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/golang/mock/gomock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/retry"

	mocks "github.com/clinicore/reminder-service/internal/mocks/service/reminder"
	"github.com/clinicore/reminder-service/internal/model"
	remrepo "github.com/clinicore/reminder-service/internal/repository/reminder"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestService_ScheduleForAppointment(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := mocks.NewMockreminderRepository(ctrl)
	cacheMock := mocks.NewMockcache(ctrl)

	svc := NewService(repoMock, nil, cacheMock, time.UTC, 9, 1)
	svc.now = fixedClock(time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC))

	appt := model.Appointment{
		ID:            uuid.New(),
		PatientName:   "Anna Becker",
		DoctorName:    "Dr. Weiss",
		StartsAt:      time.Date(2026, 10, 2, 14, 30, 0, 0, time.UTC),
		Email:         "anna@example.com",
		Phone:         "+491701234567",
		OnlineOptIn:   true,
		WhatsAppOptIn: true,
	}
	strategy := retry.Strategy{}

	// One day before the visit at the clinic's send hour.
	wantSendAt := time.Date(2026, 10, 1, 9, 0, 0, 0, time.UTC)

	emailID := uuid.New()
	smsID := uuid.New()
	waID := uuid.New()

	repoMock.EXPECT().CreateReminder(gomock.Any(), model.Reminder{
		AppointmentID: appt.ID,
		Kind:          model.KindEmailReminder,
		Status:        model.StatusPending,
		SendAt:        wantSendAt,
	}).Return(emailID, nil)
	repoMock.EXPECT().CreateReminder(gomock.Any(), model.Reminder{
		AppointmentID: appt.ID,
		Kind:          model.KindSMSReminder,
		Status:        model.StatusPending,
		SendAt:        wantSendAt,
	}).Return(smsID, nil)
	repoMock.EXPECT().CreateReminder(gomock.Any(), model.Reminder{
		AppointmentID: appt.ID,
		Kind:          model.KindWhatsAppConfirmation,
		Status:        model.StatusPending,
		SendAt:        wantSendAt,
	}).Return(waID, nil)

	cacheMock.EXPECT().SetWithRetry(gomock.Any(), strategy, emailID.String(), "pending").Return(nil)
	cacheMock.EXPECT().SetWithRetry(gomock.Any(), strategy, smsID.String(), "pending").Return(nil)
	cacheMock.EXPECT().SetWithRetry(gomock.Any(), strategy, waID.String(), "pending").Return(nil)

	ids, err := svc.ScheduleForAppointment(context.Background(), strategy, appt)
	assert.NoError(t, err)
	assert.Equal(t, []uuid.UUID{emailID, smsID, waID}, ids)
}

func TestService_ScheduleForAppointment_NotOptedIn(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := mocks.NewMockreminderRepository(ctrl)
	svc := NewService(repoMock, nil, nil, time.UTC, 9, 1)

	appt := model.Appointment{
		ID:          uuid.New(),
		StartsAt:    time.Now().Add(72 * time.Hour),
		Email:       "anna@example.com",
		OnlineOptIn: false,
	}

	ids, err := svc.ScheduleForAppointment(context.Background(), retry.Strategy{}, appt)
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func TestService_ScheduleForAppointment_SendTimePassed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := mocks.NewMockreminderRepository(ctrl)
	svc := NewService(repoMock, nil, nil, time.UTC, 9, 1)
	svc.now = fixedClock(time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC))

	// The send time (2026-10-01 09:00) is already behind the clock.
	appt := model.Appointment{
		ID:          uuid.New(),
		StartsAt:    time.Date(2026, 10, 2, 14, 30, 0, 0, time.UTC),
		Email:       "anna@example.com",
		OnlineOptIn: true,
	}

	ids, err := svc.ScheduleForAppointment(context.Background(), retry.Strategy{}, appt)
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func TestService_ScheduleForAppointment_AlreadyScheduled(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := mocks.NewMockreminderRepository(ctrl)
	cacheMock := mocks.NewMockcache(ctrl)

	svc := NewService(repoMock, nil, cacheMock, time.UTC, 9, 1)
	svc.now = fixedClock(time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC))

	appt := model.Appointment{
		ID:          uuid.New(),
		StartsAt:    time.Date(2026, 10, 2, 14, 30, 0, 0, time.UTC),
		Email:       "anna@example.com",
		Phone:       "+491701234567",
		OnlineOptIn: true,
	}
	strategy := retry.Strategy{}
	smsID := uuid.New()

	// The email reminder exists already; the sms one is still created.
	repoMock.EXPECT().CreateReminder(gomock.Any(), gomock.Any()).Return(uuid.Nil, remrepo.ErrAlreadyScheduled)
	repoMock.EXPECT().CreateReminder(gomock.Any(), gomock.Any()).Return(smsID, nil)
	cacheMock.EXPECT().SetWithRetry(gomock.Any(), strategy, smsID.String(), "pending").Return(nil)

	ids, err := svc.ScheduleForAppointment(context.Background(), strategy, appt)
	assert.NoError(t, err)
	assert.Equal(t, []uuid.UUID{smsID}, ids)
}

func TestService_ScheduleForAppointment_RepoError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := mocks.NewMockreminderRepository(ctrl)
	svc := NewService(repoMock, nil, nil, time.UTC, 9, 1)
	svc.now = fixedClock(time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC))

	appt := model.Appointment{
		ID:          uuid.New(),
		StartsAt:    time.Date(2026, 10, 2, 14, 30, 0, 0, time.UTC),
		Email:       "anna@example.com",
		OnlineOptIn: true,
	}

	repoMock.EXPECT().CreateReminder(gomock.Any(), gomock.Any()).Return(uuid.Nil, errors.New("db down"))

	ids, err := svc.ScheduleForAppointment(context.Background(), retry.Strategy{}, appt)
	assert.Error(t, err)
	assert.Empty(t, ids)
}

func TestService_BookAppointment(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := mocks.NewMockreminderRepository(ctrl)
	apptMock := mocks.NewMockappointmentRepository(ctrl)
	cacheMock := mocks.NewMockcache(ctrl)

	svc := NewService(repoMock, apptMock, cacheMock, time.UTC, 9, 1)
	svc.now = fixedClock(time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC))

	appt := model.Appointment{
		ID:          uuid.New(),
		StartsAt:    time.Date(2026, 10, 2, 14, 30, 0, 0, time.UTC),
		Email:       "anna@example.com",
		OnlineOptIn: true,
	}
	strategy := retry.Strategy{}
	emailID := uuid.New()

	apptMock.EXPECT().Upsert(gomock.Any(), appt).Return(nil)
	repoMock.EXPECT().CreateReminder(gomock.Any(), gomock.Any()).Return(emailID, nil)
	cacheMock.EXPECT().SetWithRetry(gomock.Any(), strategy, emailID.String(), "pending").Return(nil)

	ids, err := svc.BookAppointment(context.Background(), strategy, appt)
	assert.NoError(t, err)
	assert.Equal(t, []uuid.UUID{emailID}, ids)
}

func TestService_BookAppointment_UpsertError(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	apptMock := mocks.NewMockappointmentRepository(ctrl)
	svc := NewService(nil, apptMock, nil, time.UTC, 9, 1)

	appt := model.Appointment{ID: uuid.New()}

	apptMock.EXPECT().Upsert(gomock.Any(), appt).Return(errors.New("db down"))

	ids, err := svc.BookAppointment(context.Background(), retry.Strategy{}, appt)
	assert.Error(t, err)
	assert.Nil(t, ids)
}

func TestService_BookAppointment_ScheduleFailureDoesNotFailBooking(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := mocks.NewMockreminderRepository(ctrl)
	apptMock := mocks.NewMockappointmentRepository(ctrl)

	svc := NewService(repoMock, apptMock, nil, time.UTC, 9, 1)
	svc.now = fixedClock(time.Date(2026, 9, 30, 12, 0, 0, 0, time.UTC))

	appt := model.Appointment{
		ID:          uuid.New(),
		StartsAt:    time.Date(2026, 10, 2, 14, 30, 0, 0, time.UTC),
		Email:       "anna@example.com",
		OnlineOptIn: true,
	}

	apptMock.EXPECT().Upsert(gomock.Any(), appt).Return(nil)
	repoMock.EXPECT().CreateReminder(gomock.Any(), gomock.Any()).Return(uuid.Nil, errors.New("db down"))

	ids, err := svc.BookAppointment(context.Background(), retry.Strategy{}, appt)
	assert.NoError(t, err)
	assert.Empty(t, ids)
}

func TestService_CancelForAppointment(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := mocks.NewMockreminderRepository(ctrl)
	svc := NewService(repoMock, nil, nil, time.UTC, 9, 1)

	appointmentID := uuid.New()

	repoMock.EXPECT().CancelByAppointment(gomock.Any(), appointmentID).Return(int64(2), nil)

	cancelled, err := svc.CancelForAppointment(context.Background(), appointmentID)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), cancelled)

	// Second cancellation affects nothing and stays silent.
	repoMock.EXPECT().CancelByAppointment(gomock.Any(), appointmentID).Return(int64(0), nil)

	cancelled, err = svc.CancelForAppointment(context.Background(), appointmentID)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), cancelled)
}

func TestService_MarkSent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := mocks.NewMockreminderRepository(ctrl)
	cacheMock := mocks.NewMockcache(ctrl)
	svc := NewService(repoMock, nil, cacheMock, time.UTC, 9, 1)

	id := uuid.New()
	sentAt := time.Now()
	strategy := retry.Strategy{}

	repoMock.EXPECT().MarkSent(gomock.Any(), id, sentAt).Return(nil)
	cacheMock.EXPECT().SetWithRetry(gomock.Any(), strategy, id.String(), "sent").Return(nil)

	err := svc.MarkSent(context.Background(), strategy, id, sentAt)
	assert.NoError(t, err)
}

func TestService_MarkFailed(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := mocks.NewMockreminderRepository(ctrl)
	cacheMock := mocks.NewMockcache(ctrl)
	svc := NewService(repoMock, nil, cacheMock, time.UTC, 9, 1)

	id := uuid.New()
	strategy := retry.Strategy{}

	repoMock.EXPECT().MarkFailed(gomock.Any(), id).Return(nil)
	cacheMock.EXPECT().SetWithRetry(gomock.Any(), strategy, id.String(), "failed").Return(nil)

	err := svc.MarkFailed(context.Background(), strategy, id)
	assert.NoError(t, err)
}

func TestService_GetReminderStatusByID_CacheHit(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cacheMock := mocks.NewMockcache(ctrl)
	svc := NewService(nil, nil, cacheMock, time.UTC, 9, 1)

	id := uuid.New()
	strategy := retry.Strategy{}

	cacheMock.EXPECT().GetWithRetry(gomock.Any(), strategy, id.String()).Return("pending", nil)

	status, err := svc.GetReminderStatusByID(context.Background(), strategy, id)
	assert.NoError(t, err)
	assert.Equal(t, "pending", status)
}

func TestService_GetReminderStatusByID_CacheMiss(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := mocks.NewMockreminderRepository(ctrl)
	cacheMock := mocks.NewMockcache(ctrl)
	svc := NewService(repoMock, nil, cacheMock, time.UTC, 9, 1)

	id := uuid.New()
	strategy := retry.Strategy{}

	cacheMock.EXPECT().GetWithRetry(gomock.Any(), strategy, id.String()).Return("", redis.Nil)
	repoMock.EXPECT().GetReminderStatusByID(gomock.Any(), id).Return("sent", nil)
	cacheMock.EXPECT().SetWithRetry(gomock.Any(), strategy, id.String(), "sent").Return(nil)

	status, err := svc.GetReminderStatusByID(context.Background(), strategy, id)
	assert.NoError(t, err)
	assert.Equal(t, "sent", status)
}

func TestService_GetReminderStatusByID_CacheErrorFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	repoMock := mocks.NewMockreminderRepository(ctrl)
	cacheMock := mocks.NewMockcache(ctrl)
	svc := NewService(repoMock, nil, cacheMock, time.UTC, 9, 1)

	id := uuid.New()
	strategy := retry.Strategy{}

	// A broken cache must not surface an empty status; the database is
	// still authoritative.
	cacheMock.EXPECT().GetWithRetry(gomock.Any(), strategy, id.String()).Return("", errors.New("redis down"))
	repoMock.EXPECT().GetReminderStatusByID(gomock.Any(), id).Return("pending", nil)
	cacheMock.EXPECT().SetWithRetry(gomock.Any(), strategy, id.String(), "pending").Return(nil)

	status, err := svc.GetReminderStatusByID(context.Background(), strategy, id)
	assert.NoError(t, err)
	assert.Equal(t, "pending", status)
}

func TestService_SendTimeFor_Timezone(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Berlin")
	assert.NoError(t, err)

	svc := NewService(nil, nil, nil, loc, 9, 1)

	// A visit at 08:00 UTC on Oct 2 is 10:00 local (CEST); the reminder
	// goes out Oct 1 at 09:00 local time.
	startsAt := time.Date(2026, 10, 2, 8, 0, 0, 0, time.UTC)
	got := svc.sendTimeFor(startsAt)

	assert.Equal(t, time.Date(2026, 10, 1, 9, 0, 0, 0, loc), got)
}
