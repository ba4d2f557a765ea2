package appointment

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/wb-go/wbf/dbpg"

	"github.com/clinicore/reminder-service/internal/model"
)

func setupMockDB(t *testing.T) (*Repository, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to open mock db: %v", err)
	}

	wrappedDB := &dbpg.DB{Master: db}
	repo := NewRepository(wrappedDB)

	return repo, mock
}

func TestUpsert(t *testing.T) {
	repo, mock := setupMockDB(t)

	appt := model.Appointment{
		ID:            uuid.New(),
		PatientName:   "Anna Becker",
		DoctorName:    "Dr. Weiss",
		StartsAt:      time.Now().Add(48 * time.Hour),
		Email:         "anna@example.com",
		Phone:         "+491701234567",
		OnlineOptIn:   true,
		WhatsAppOptIn: true,
		Note:          "bring insurance card",
	}

	mock.ExpectExec(regexp.QuoteMeta(`
		INSERT INTO appointments (
		    id, patient_name, doctor_name, starts_at, email, phone, online_opt_in, whatsapp_opt_in, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
		    patient_name = EXCLUDED.patient_name,
		    doctor_name = EXCLUDED.doctor_name,
		    starts_at = EXCLUDED.starts_at,
		    email = EXCLUDED.email,
		    phone = EXCLUDED.phone,
		    online_opt_in = EXCLUDED.online_opt_in,
		    whatsapp_opt_in = EXCLUDED.whatsapp_opt_in,
		    note = EXCLUDED.note,
		    updated_at = NOW();
    `)).
		WithArgs(
			appt.ID, appt.PatientName, appt.DoctorName, appt.StartsAt,
			appt.Email, appt.Phone, appt.OnlineOptIn, appt.WhatsAppOptIn, appt.Note,
		).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Upsert(context.Background(), appt)
	assert.NoError(t, err)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByID(t *testing.T) {
	repo, mock := setupMockDB(t)

	id := uuid.New()
	now := time.Now()
	startsAt := now.Add(48 * time.Hour)

	rows := sqlmock.NewRows([]string{
		"id", "patient_name", "doctor_name", "starts_at", "email", "phone",
		"online_opt_in", "whatsapp_opt_in", "note", "created_at", "updated_at",
	}).AddRow(id, "Anna Becker", "Dr. Weiss", startsAt, "anna@example.com", "+491701234567", true, false, "", now, now)

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, patient_name, doctor_name, starts_at, email, phone, online_opt_in, whatsapp_opt_in, note, created_at, updated_at
		FROM appointments
		WHERE id = $1;
    `)).
		WithArgs(id).
		WillReturnRows(rows)

	appt, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Equal(t, id, appt.ID)
	assert.Equal(t, "Anna Becker", appt.PatientName)
	assert.True(t, appt.OnlineOptIn)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery(regexp.QuoteMeta(`
		SELECT id, patient_name, doctor_name, starts_at, email, phone, online_opt_in, whatsapp_opt_in, note, created_at, updated_at
		FROM appointments
		WHERE id = $1;
    `)).
		WithArgs(id).
		WillReturnError(sql.ErrNoRows)

	_, err = repo.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
