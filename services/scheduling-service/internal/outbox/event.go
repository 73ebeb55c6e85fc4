package outbox

import "encoding/json"

const (
	AggregateAppointment = "appointment"
	AggregateAssignment  = "assignment"

	TypeAppointmentBooked      = "appointment.booked.v1"
	TypeAppointmentRescheduled = "appointment.rescheduled.v1"
	TypeAppointmentCancelled   = "appointment.cancelled.v1"
	TypeAppointmentCompleted   = "appointment.completed.v1"
	TypeAppointmentAbsent      = "appointment.absent.v1"
	TypeAssignmentActivated    = "assignment.activated.v1"
	TypeAssignmentDeactivated  = "assignment.deactivated.v1"
)

// Event is the domain event envelope written to the outbox table in the same
// transaction as the change it describes. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

func NewEvent(aggregateType, aggregateID, eventType string, payload any) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       raw,
	}, nil
}
