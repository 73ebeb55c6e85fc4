// Package assignment keeps at most one active resource assignment per
// subject. Assign deactivates the current assignment and activates the new
// one under the subject's lock in a single transaction.
package assignment

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type Service struct {
	store     storage.Store
	clock     clock.Clock
	logger    *slog.Logger
	tracer    trace.Tracer
	txTimeout time.Duration
}

func New(store storage.Store, clk clock.Clock, logger *slog.Logger, txTimeout time.Duration) *Service {
	if txTimeout <= 0 {
		txTimeout = 5 * time.Second
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		store:     store,
		clock:     clk,
		logger:    logger,
		tracer:    otelx.Tracer("assignment"),
		txTimeout: txTimeout,
	}
}

func subjectKey(subjectID string) string { return "subject:" + subjectID }

type assignmentEvent struct {
	AssignmentID string `json:"assignment_id"`
	SubjectID    string `json:"subject_id"`
	ResourceID   string `json:"resource_id"`
	Active       bool   `json:"active"`
	OccurredAt   string `json:"occurred_at"`
}

func record(ctx context.Context, tx storage.Tx, eventType string, a model.Assignment, at time.Time) error {
	evt, err := outbox.NewEvent(outbox.AggregateAssignment, a.ID, eventType, assignmentEvent{
		AssignmentID: a.ID,
		SubjectID:    a.SubjectID,
		ResourceID:   a.ResourceID,
		Active:       a.Active,
		OccurredAt:   at.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	return tx.InsertEvent(ctx, evt)
}

// Assign makes resourceID the subject's only active assignment.
func (s *Service) Assign(ctx context.Context, subjectID, resourceID string) (a model.Assignment, err error) {
	const op = "assignment.Assign"
	ctx, span := s.tracer.Start(ctx, op, trace.WithAttributes(attribute.String("subject_id", subjectID)))
	defer func() {
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	subjectID, resourceID = strings.TrimSpace(subjectID), strings.TrimSpace(resourceID)
	if subjectID == "" || resourceID == "" {
		return model.Assignment{}, apperr.Validation(op, "subject_id and resource_id are required")
	}

	now := s.clock.Now().UTC()
	a = model.Assignment{
		ID:         uuid.NewString(),
		SubjectID:  subjectID,
		ResourceID: resourceID,
		Active:     true,
		CreatedAt:  now,
	}
	var replaced string
	err = storage.InTx(ctx, s.store, s.txTimeout, op, func(tx storage.Tx) error {
		if err := tx.LockKey(ctx, subjectKey(subjectID)); err != nil {
			return err
		}
		cur, err := tx.GetActiveAssignmentForUpdate(ctx, subjectID)
		switch {
		case errors.Is(err, storage.ErrNotFound):
		case err != nil:
			return err
		default:
			if err := tx.DeactivateAssignment(ctx, cur.ID, now); err != nil {
				return err
			}
			cur.Active = false
			cur.DeactivatedAt = &now
			if err := record(ctx, tx, outbox.TypeAssignmentDeactivated, cur, now); err != nil {
				return err
			}
			replaced = cur.ID
		}
		if err := tx.InsertAssignment(ctx, a); err != nil {
			return err
		}
		return record(ctx, tx, outbox.TypeAssignmentActivated, a, now)
	})
	if err != nil {
		s.logger.Warn("assign failed", "subject_id", subjectID, "kind", string(apperr.KindOf(err)), "err", err)
		return model.Assignment{}, err
	}
	s.logger.Info("resource assigned", "assignment_id", a.ID, "subject_id", subjectID, "resource_id", resourceID, "replaced", replaced)
	return a, nil
}

// Unassign deactivates an assignment. Deactivating an inactive one is a no-op.
func (s *Service) Unassign(ctx context.Context, id string) (model.Assignment, error) {
	const op = "assignment.Unassign"
	if strings.TrimSpace(id) == "" {
		return model.Assignment{}, apperr.Validation(op, "assignment id is required")
	}
	now := s.clock.Now().UTC()
	var a model.Assignment
	err := storage.InTx(ctx, s.store, s.txTimeout, op, func(tx storage.Tx) error {
		var err error
		a, err = tx.GetAssignmentForUpdate(ctx, id)
		if err != nil || !a.Active {
			return err
		}
		if err := tx.DeactivateAssignment(ctx, a.ID, now); err != nil {
			return err
		}
		a.Active = false
		a.DeactivatedAt = &now
		return record(ctx, tx, outbox.TypeAssignmentDeactivated, a, now)
	})
	if err != nil {
		return model.Assignment{}, err
	}
	return a, nil
}

// Active returns the subject's active assignment; ok is false when there is none.
func (s *Service) Active(ctx context.Context, subjectID string) (a model.Assignment, ok bool, err error) {
	list, err := s.List(ctx, subjectID)
	if err != nil {
		return model.Assignment{}, false, err
	}
	for _, a := range list {
		if a.Active {
			return a, true, nil
		}
	}
	return model.Assignment{}, false, nil
}

func (s *Service) List(ctx context.Context, subjectID string) ([]model.Assignment, error) {
	const op = "assignment.List"
	if strings.TrimSpace(subjectID) == "" {
		return nil, apperr.Validation(op, "subject_id is required")
	}
	list, err := s.store.ListAssignments(ctx, subjectID)
	return list, storage.Classify(op, err)
}

func (s *Service) Get(ctx context.Context, id string) (model.Assignment, error) {
	a, err := s.store.GetAssignment(ctx, id)
	return a, storage.Classify("assignment.Get", err)
}
