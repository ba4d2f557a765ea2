package model

import (
	"database/sql"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a reminder record.
type Status string

const (
	StatusPending Status = "pending" // waiting for its send time to elapse
	StatusClaimed Status = "claimed" // picked up by a dispatch cycle
	StatusSent    Status = "sent"    // delivery confirmed
	StatusFailed  Status = "failed"  // delivery exhausted or withdrawn
)

// Kind selects the delivery channel and the message content of a reminder.
type Kind string

const (
	KindEmailReminder        Kind = "email_reminder"
	KindSMSReminder          Kind = "sms_reminder"
	KindWhatsAppConfirmation Kind = "whatsapp_confirmation"
)

// Reminder represents one scheduled appointment reminder.
type Reminder struct {
	ID            uuid.UUID    `json:"id"`             // unique identifier for the reminder
	AppointmentID uuid.UUID    `json:"appointment_id"` // appointment the reminder belongs to
	Kind          Kind         `json:"kind"`           // delivery channel, e.g. "email_reminder"
	Status        Status       `json:"status"`         // current state, e.g. "pending", "claimed", "sent", "failed"
	SendAt        time.Time    `json:"send_at"`        // earliest eligible delivery time
	ClaimedAt     sql.NullTime `json:"claimed_at"`     // when the record was last claimed by a dispatch cycle
	SentAt        sql.NullTime `json:"sent_at"`        // when delivery was confirmed
	CreatedAt     time.Time    `json:"created_at"`     // timestamp when the reminder was created
	UpdatedAt     time.Time    `json:"updated_at"`     // timestamp when the reminder was last updated
}
