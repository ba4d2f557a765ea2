package model

import (
	"time"

	"github.com/google/uuid"
)

// Appointment is the snapshot of a booked appointment the reminder engine
// works from. It is written when the clinic backend reports a booking and
// read again at delivery time, so reminders always render current data.
type Appointment struct {
	ID            uuid.UUID `json:"id"`
	PatientName   string    `json:"patient_name"`
	DoctorName    string    `json:"doctor_name"`
	StartsAt      time.Time `json:"starts_at"`
	Email         string    `json:"email"`
	Phone         string    `json:"phone"`
	OnlineOptIn   bool      `json:"online_opt_in"` // patient agreed to receive online notifications
	WhatsAppOptIn bool      `json:"whatsapp_opt_in"`
	Note          string    `json:"note"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
