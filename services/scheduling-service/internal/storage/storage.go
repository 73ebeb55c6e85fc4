// Package storage defines the persistence contract of the scheduling core.
// Implementations must serialize transactions that lock the same key and
// must reject a second non-cancelled appointment on a slot, and a second
// active assignment for a subject, with ErrConflict.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/outbox"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

type Store interface {
	// InTx runs fn in one transaction, committing when fn returns nil.
	InTx(ctx context.Context, fn func(Tx) error) error

	GetAppointment(ctx context.Context, id string) (model.Appointment, error)
	// ListAppointments returns every appointment of ownerID on date, ordered by start.
	ListAppointments(ctx context.Context, ownerID string, date model.Date) ([]model.Appointment, error)
	ListBySubject(ctx context.Context, subjectID string) ([]model.Appointment, error)
	// ListPendingBefore pages pending appointments dated before the given date, ordered by id.
	ListPendingBefore(ctx context.Context, before model.Date, afterID string, limit int) ([]model.Appointment, error)

	GetTemplate(ctx context.Context, ownerID string) (model.Template, error)
	PutTemplate(ctx context.Context, tpl model.Template) error

	GetAssignment(ctx context.Context, id string) (model.Assignment, error)
	ListAssignments(ctx context.Context, subjectID string) ([]model.Assignment, error)
}

type Tx interface {
	// LockKey blocks until this transaction holds the exclusive lock on key.
	LockKey(ctx context.Context, key string) error

	GetTemplate(ctx context.Context, ownerID string) (model.Template, error)
	// OccupiedSlots returns the starts of non-cancelled appointments of ownerID on date.
	OccupiedSlots(ctx context.Context, ownerID string, date model.Date) ([]model.Minute, error)
	GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error)
	InsertAppointment(ctx context.Context, appt model.Appointment) error
	// UpdateAppointment persists status, notes, outcome, audit, rescheduled_to and updated_at.
	UpdateAppointment(ctx context.Context, appt model.Appointment) error

	GetActiveAssignmentForUpdate(ctx context.Context, subjectID string) (model.Assignment, error)
	GetAssignmentForUpdate(ctx context.Context, id string) (model.Assignment, error)
	InsertAssignment(ctx context.Context, a model.Assignment) error
	DeactivateAssignment(ctx context.Context, id string, at time.Time) error

	InsertEvent(ctx context.Context, evt outbox.Event) error
}
