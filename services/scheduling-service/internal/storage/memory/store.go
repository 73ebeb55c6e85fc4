// Package memory is an in-process storage.Store. Transactions run one at a
// time against a private copy of the data that replaces the committed state
// only when the transaction function succeeds.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage"
)

type Store struct {
	mu           sync.Mutex
	appointments map[string]model.Appointment
	templates    map[string]model.Template
	assignments  map[string]model.Assignment
	events       []outbox.Event
	inbox        map[string]bool

	// FailUpdate, when set, is consulted before every appointment update.
	FailUpdate func(id string) error
}

var _ storage.Store = (*Store)(nil)

func New() *Store {
	return &Store{
		appointments: map[string]model.Appointment{},
		templates:    map[string]model.Template{},
		assignments:  map[string]model.Assignment{},
		inbox:        map[string]bool{},
	}
}

func (s *Store) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	t := &tx{
		store:        s,
		appointments: make(map[string]model.Appointment, len(s.appointments)),
		assignments:  make(map[string]model.Assignment, len(s.assignments)),
	}
	for k, v := range s.appointments {
		t.appointments[k] = v
	}
	for k, v := range s.assignments {
		t.assignments[k] = v
	}

	if err := fn(t); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := checkLinks(t.appointments); err != nil {
		return err
	}
	s.appointments = t.appointments
	s.assignments = t.assignments
	s.events = append(s.events, t.events...)
	return nil
}

// checkLinks rejects a commit that leaves a reschedule link pointing at a
// missing appointment, as the deferred foreign keys do in Postgres.
func checkLinks(appts map[string]model.Appointment) error {
	for id, a := range appts {
		for _, ref := range []string{a.RescheduledFrom, a.RescheduledTo} {
			if ref == "" {
				continue
			}
			if _, ok := appts[ref]; !ok {
				return fmt.Errorf("appointment %s links to missing appointment %s", id, ref)
			}
		}
	}
	return nil
}

func (s *Store) GetAppointment(_ context.Context, id string) (model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appointments[id]
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *Store) ListAppointments(_ context.Context, ownerID string, date model.Date) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appointments {
		if a.OwnerID == ownerID && a.Date == date {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) ListBySubject(_ context.Context, subjectID string) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appointments {
		if a.SubjectID == subjectID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].Start < out[j].Start
	})
	return out, nil
}

func (s *Store) ListPendingBefore(_ context.Context, before model.Date, afterID string, limit int) ([]model.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Appointment
	for _, a := range s.appointments {
		if a.Status == model.StatusPending && a.Date.Before(before) && a.ID > afterID {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) GetTemplate(_ context.Context, ownerID string) (model.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.template(ownerID)
}

func (s *Store) template(ownerID string) (model.Template, error) {
	tpl, ok := s.templates[ownerID]
	if !ok {
		return model.Template{}, storage.ErrNotFound
	}
	return cloneTemplate(tpl), nil
}

func (s *Store) PutTemplate(_ context.Context, tpl model.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.templates[tpl.OwnerID] = cloneTemplate(tpl)
	return nil
}

// ApplyTemplateEvent mirrors the Postgres inbox: a redelivered event id is
// ignored and an older template never replaces a newer one.
func (s *Store) ApplyTemplateEvent(_ context.Context, eventID, _ string, tpl model.Template) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.inbox[eventID] {
		return false, nil
	}
	s.inbox[eventID] = true
	if cur, ok := s.templates[tpl.OwnerID]; !ok || !cur.UpdatedAt.After(tpl.UpdatedAt) {
		s.templates[tpl.OwnerID] = cloneTemplate(tpl)
	}
	return true, nil
}

func (s *Store) GetAssignment(_ context.Context, id string) (model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.assignments[id]
	if !ok {
		return model.Assignment{}, storage.ErrNotFound
	}
	return a, nil
}

func (s *Store) ListAssignments(_ context.Context, subjectID string) ([]model.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Assignment
	for _, a := range s.assignments {
		if a.SubjectID == subjectID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// Events returns every committed outbox event, oldest first.
func (s *Store) Events() []outbox.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]outbox.Event(nil), s.events...)
}

func cloneTemplate(tpl model.Template) model.Template {
	ranges := make(map[time.Weekday][]model.Range, len(tpl.Ranges))
	for d, rs := range tpl.Ranges {
		ranges[d] = append([]model.Range(nil), rs...)
	}
	tpl.Ranges = ranges
	return tpl
}
