// Package scheduling exposes the appointment operations: availability,
// booking, rescheduling and the lifecycle transitions. Every mutation runs
// in one bounded storage transaction and writes its outbox event there too.
package scheduling

import (
	"context"
	"errors"
	"log/slog"
	"time"

	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	// TxTimeout bounds every mutating transaction.
	TxTimeout time.Duration
}

type Service struct {
	store     storage.Store
	clock     clock.Clock
	logger    *slog.Logger
	tracer    trace.Tracer
	txTimeout time.Duration
}

func New(store storage.Store, clk clock.Clock, logger *slog.Logger, cfg Config) *Service {
	if cfg.TxTimeout <= 0 {
		cfg.TxTimeout = 5 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		store:     store,
		clock:     clk,
		logger:    logger,
		tracer:    otelx.Tracer("scheduling"),
		txTimeout: cfg.TxTimeout,
	}
}

func (s *Service) inTx(ctx context.Context, op string, fn func(storage.Tx) error) error {
	return storage.InTx(ctx, s.store, s.txTimeout, op, fn)
}

func (s *Service) span(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, op, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
	}
	span.End()
}

// GetAvailability lists the free slot starts of ownerID on date. An owner
// without a template has no availability.
func (s *Service) GetAvailability(ctx context.Context, ownerID string, date model.Date) (slots []model.Minute, err error) {
	const op = "scheduling.GetAvailability"
	ctx, span := s.span(ctx, op, attribute.String("owner_id", ownerID), attribute.String("date", date.String()))
	defer func() { endSpan(span, err) }()

	if ownerID == "" {
		return nil, apperr.Validation(op, "owner_id is required")
	}
	if date.IsZero() {
		return nil, apperr.Validation(op, "date is required")
	}
	tpl, err := s.store.GetTemplate(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return []model.Minute{}, nil
	}
	if err != nil {
		return nil, storage.Classify(op, err)
	}
	appts, err := s.store.ListAppointments(ctx, ownerID, date)
	if err != nil {
		return nil, storage.Classify(op, err)
	}
	var occupied []model.Minute
	for _, a := range appts {
		if a.Status != model.StatusCancelled {
			occupied = append(occupied, a.Start)
		}
	}
	slots = availability.Resolve(tpl, date, occupied, s.clock.Now())
	if slots == nil {
		slots = []model.Minute{}
	}
	return slots, nil
}

// GetAppointment returns one appointment to its owner or an admin.
func (s *Service) GetAppointment(ctx context.Context, actor model.Actor, id string) (model.Appointment, error) {
	const op = "scheduling.GetAppointment"
	appt, err := s.store.GetAppointment(ctx, id)
	if err != nil {
		return model.Appointment{}, storage.Classify(op, err)
	}
	if !actor.CanManage(appt.OwnerID) {
		// Indistinguishable from a missing id for other professionals.
		return model.Appointment{}, apperr.NotFound(op, "appointment %s not found", id)
	}
	return appt, nil
}

// ListAgenda returns every appointment of ownerID on date, cancelled ones included.
func (s *Service) ListAgenda(ctx context.Context, actor model.Actor, ownerID string, date model.Date) ([]model.Appointment, error) {
	const op = "scheduling.ListAgenda"
	if !actor.CanManage(ownerID) {
		return nil, apperr.Forbidden(op, "cannot read the agenda of %s", ownerID)
	}
	appts, err := s.store.ListAppointments(ctx, ownerID, date)
	return appts, storage.Classify(op, err)
}

// ListBySubject is admin-only: a subject's appointments span owners.
func (s *Service) ListBySubject(ctx context.Context, actor model.Actor, subjectID string) ([]model.Appointment, error) {
	const op = "scheduling.ListBySubject"
	if !actor.IsAdmin() {
		return nil, apperr.Forbidden(op, "admin only")
	}
	appts, err := s.store.ListBySubject(ctx, subjectID)
	return appts, storage.Classify(op, err)
}

func (s *Service) GetTemplate(ctx context.Context, actor model.Actor, ownerID string) (model.Template, error) {
	const op = "scheduling.GetTemplate"
	if !actor.CanManage(ownerID) {
		return model.Template{}, apperr.Forbidden(op, "cannot read the template of %s", ownerID)
	}
	tpl, err := s.store.GetTemplate(ctx, ownerID)
	return tpl, storage.Classify(op, err)
}

// PutTemplate replaces the weekly template of tpl.OwnerID. Existing
// appointments are untouched; only future availability changes.
func (s *Service) PutTemplate(ctx context.Context, actor model.Actor, tpl model.Template) (model.Template, error) {
	const op = "scheduling.PutTemplate"
	if !actor.CanManage(tpl.OwnerID) {
		return model.Template{}, apperr.Forbidden(op, "cannot change the template of %s", tpl.OwnerID)
	}
	if err := tpl.Validate(); err != nil {
		return model.Template{}, apperr.Validation(op, "%v", err)
	}
	tpl.UpdatedAt = s.clock.Now().UTC()
	if err := s.store.PutTemplate(ctx, tpl); err != nil {
		return model.Template{}, storage.Classify(op, err)
	}
	s.logger.Info("template updated", "owner_id", tpl.OwnerID, "timezone", tpl.Timezone, "slot_minutes", tpl.SlotMinutes)
	return tpl, nil
}
