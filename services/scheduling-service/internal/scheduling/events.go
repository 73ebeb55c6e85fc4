package scheduling

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage"
)

type appointmentEvent struct {
	AppointmentID   string `json:"appointment_id"`
	OwnerID         string `json:"owner_id"`
	SubjectID       string `json:"subject_id,omitempty"`
	Date            string `json:"date"`
	Time            string `json:"time"`
	Status          string `json:"status"`
	Actor           string `json:"actor"`
	Note            string `json:"note,omitempty"`
	RescheduledFrom string `json:"rescheduled_from,omitempty"`
	RescheduledTo   string `json:"rescheduled_to,omitempty"`
	OccurredAt      string `json:"occurred_at"`
}

var eventTypeByStatus = map[model.Status]string{
	model.StatusCompleted: outbox.TypeAppointmentCompleted,
	model.StatusAbsent:    outbox.TypeAppointmentAbsent,
	model.StatusCancelled: outbox.TypeAppointmentCancelled,
}

func recordAppointmentEvent(ctx context.Context, tx storage.Tx, eventType string, a model.Appointment, note model.AuditNote) error {
	evt, err := outbox.NewEvent(outbox.AggregateAppointment, a.ID, eventType, appointmentEvent{
		AppointmentID:   a.ID,
		OwnerID:         a.OwnerID,
		SubjectID:       a.SubjectID,
		Date:            a.Date.String(),
		Time:            a.Start.String(),
		Status:          string(a.Status),
		Actor:           note.Actor,
		Note:            note.Text,
		RescheduledFrom: a.RescheduledFrom,
		RescheduledTo:   a.RescheduledTo,
		OccurredAt:      note.At.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return tx.InsertEvent(ctx, evt)
}
