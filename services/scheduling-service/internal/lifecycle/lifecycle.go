// Package lifecycle is the appointment state machine. pending is the only
// non-terminal state; nothing ever leaves completed, absent or cancelled.
package lifecycle

import (
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

type Event string

const (
	EventConfirm     Event = "confirm"
	EventMarkAbsent  Event = "mark_absent"
	EventSweepAbsent Event = "sweep_absent"
	EventCancel      Event = "cancel"
	// EventReschedule cancels the old record; the replacement is a new pending appointment.
	EventReschedule Event = "reschedule"
)

var fromPending = map[Event]model.Status{
	EventConfirm:     model.StatusCompleted,
	EventMarkAbsent:  model.StatusAbsent,
	EventSweepAbsent: model.StatusAbsent,
	EventCancel:      model.StatusCancelled,
	EventReschedule:  model.StatusCancelled,
}

// Next returns the state ev moves from into. changed is false only for the
// idempotent re-cancel of a cancelled appointment.
func Next(from model.Status, ev Event) (to model.Status, changed bool, err error) {
	const op = "lifecycle.Next"
	if _, ok := fromPending[ev]; !ok {
		return from, false, apperr.Validation(op, "unknown event %q", ev)
	}
	switch from {
	case model.StatusPending:
		return fromPending[ev], true, nil
	case model.StatusCancelled:
		if ev == EventCancel {
			return from, false, nil
		}
	case model.StatusCompleted, model.StatusAbsent:
	default:
		return from, false, apperr.Validation(op, "unknown status %q", from)
	}
	return from, false, apperr.InvalidTransition(op, "appointment is %s, cannot %s", from, ev)
}
