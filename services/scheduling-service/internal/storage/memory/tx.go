package memory

import (
	"context"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage"
)

type tx struct {
	store        *Store
	appointments map[string]model.Appointment
	assignments  map[string]model.Assignment
	events       []outbox.Event
}

// LockKey only honours cancellation: transactions are already serialized.
func (t *tx) LockKey(ctx context.Context, _ string) error {
	return ctx.Err()
}

func (t *tx) GetTemplate(_ context.Context, ownerID string) (model.Template, error) {
	return t.store.template(ownerID)
}

func (t *tx) OccupiedSlots(_ context.Context, ownerID string, date model.Date) ([]model.Minute, error) {
	var out []model.Minute
	for _, a := range t.appointments {
		if a.OwnerID == ownerID && a.Date == date && a.Status != model.StatusCancelled {
			out = append(out, a.Start)
		}
	}
	return out, nil
}

func (t *tx) GetAppointmentForUpdate(_ context.Context, id string) (model.Appointment, error) {
	a, ok := t.appointments[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a.Clone(), nil
}

func (t *tx) InsertAppointment(_ context.Context, appt model.Appointment) error {
	if _, ok := t.appointments[appt.ID]; ok {
		return storage.ErrConflict
	}
	if appt.Status != model.StatusCancelled {
		for _, a := range t.appointments {
			if a.Status != model.StatusCancelled && a.SlotKey() == appt.SlotKey() {
				return storage.ErrConflict
			}
		}
	}
	appt = appt.Clone()
	appt.CancellationToken = ""
	t.appointments[appt.ID] = appt
	return nil
}

func (t *tx) UpdateAppointment(_ context.Context, appt model.Appointment) error {
	cur, ok := t.appointments[appt.ID]
	if !ok {
		return storage.ErrNotFound
	}
	if t.store.FailUpdate != nil {
		if err := t.store.FailUpdate(appt.ID); err != nil {
			return err
		}
	}
	cur.Status = appt.Status
	cur.Notes = appt.Notes
	cur.Outcome = appt.Outcome
	cur.Audit = append([]model.AuditNote(nil), appt.Audit...)
	cur.RescheduledTo = appt.RescheduledTo
	cur.UpdatedAt = appt.UpdatedAt
	t.appointments[appt.ID] = cur
	return nil
}

func (t *tx) GetActiveAssignmentForUpdate(_ context.Context, subjectID string) (model.Assignment, error) {
	for _, a := range t.assignments {
		if a.SubjectID == subjectID && a.Active {
			return a, nil
		}
	}
	return model.Assignment{}, storage.ErrNotFound
}

func (t *tx) GetAssignmentForUpdate(_ context.Context, id string) (model.Assignment, error) {
	a, ok := t.assignments[id]
	if !ok {
		return model.Assignment{}, storage.ErrNotFound
	}
	return a, nil
}

func (t *tx) InsertAssignment(_ context.Context, a model.Assignment) error {
	if _, ok := t.assignments[a.ID]; ok {
		return storage.ErrConflict
	}
	if a.Active {
		for _, cur := range t.assignments {
			if cur.SubjectID == a.SubjectID && cur.Active {
				return storage.ErrConflict
			}
		}
	}
	t.assignments[a.ID] = a
	return nil
}

func (t *tx) DeactivateAssignment(_ context.Context, id string, at time.Time) error {
	a, ok := t.assignments[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Active = false
	a.DeactivatedAt = &at
	t.assignments[id] = a
	return nil
}

func (t *tx) InsertEvent(_ context.Context, evt outbox.Event) error {
	t.events = append(t.events, evt)
	return nil
}
