package appointment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/clinicore/reminder-service/internal/model"
)

var ErrAppointmentNotFound = errors.New("appointment not found")

// Repository provides methods to interact with the appointments table.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new appointment repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// Upsert stores the appointment snapshot reported by the clinic backend.
// A repeated booking event for the same id refreshes the snapshot.
func (r *Repository) Upsert(ctx context.Context, appt model.Appointment) error {
	query := `
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
    `

	_, err := r.db.ExecContext(
		ctx, query,
		appt.ID, appt.PatientName, appt.DoctorName, appt.StartsAt,
		appt.Email, appt.Phone, appt.OnlineOptIn, appt.WhatsAppOptIn, appt.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert appointment: %w", err)
	}

	return nil
}

// GetByID retrieves an appointment snapshot by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (model.Appointment, error) {
	query := `
		SELECT id, patient_name, doctor_name, starts_at, email, phone, online_opt_in, whatsapp_opt_in, note, created_at, updated_at
		FROM appointments
		WHERE id = $1;
    `

	var appt model.Appointment
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&appt.ID, &appt.PatientName, &appt.DoctorName, &appt.StartsAt,
		&appt.Email, &appt.Phone, &appt.OnlineOptIn, &appt.WhatsAppOptIn,
		&appt.Note, &appt.CreatedAt, &appt.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Appointment{}, ErrAppointmentNotFound
		}

		return model.Appointment{}, fmt.Errorf("failed to get appointment: %w", err)
	}

	return appt, nil
}
