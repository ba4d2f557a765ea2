package delivery

import (
	"fmt"

	"github.com/clinicore/reminder-service/internal/model"
)

const visitTimeLayout = "Monday, 2 January 2006 at 15:04"

// render builds the channel-specific subject and body of a reminder from
// the appointment's current data.
func render(kind model.Kind, appt model.Appointment) (subject, body string) {
	visit := appt.StartsAt.Format(visitTimeLayout)

	switch kind {
	case model.KindEmailReminder:
		subject = "Appointment reminder"
		body = fmt.Sprintf(
			"Dear %s,\n\nThis is a reminder of your appointment with %s on %s.",
			appt.PatientName, appt.DoctorName, visit,
		)
		if appt.Note != "" {
			body += fmt.Sprintf("\n\nNote from the clinic: %s", appt.Note)
		}

	case model.KindSMSReminder:
		subject = "Appointment reminder"
		body = fmt.Sprintf("Reminder: appointment with %s on %s.", appt.DoctorName, visit)

	case model.KindWhatsAppConfirmation:
		subject = "Appointment confirmation"
		body = fmt.Sprintf(
			"Hello %s! Please confirm your appointment with %s on %s by replying to this message.",
			appt.PatientName, appt.DoctorName, visit,
		)
	}

	return subject, body
}
