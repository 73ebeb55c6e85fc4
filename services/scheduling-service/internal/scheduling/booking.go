package scheduling

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/availability"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/tokens"
	"go.opentelemetry.io/otel/attribute"
)

const maxTextLen = 2000

type BookRequest struct {
	OwnerID string
	// SubjectID references a known patient; SubjectContact is used for
	// bookings by people without a record. At least one is required.
	SubjectID      string
	SubjectContact string
	Date           model.Date
	Start          model.Minute
	Reason         string
	Notes          string
	// BookedBy is the authenticated actor id, empty for public bookings.
	BookedBy string
}

func (r BookRequest) validate(op string) error {
	switch {
	case strings.TrimSpace(r.OwnerID) == "":
		return apperr.Validation(op, "owner_id is required")
	case strings.TrimSpace(r.SubjectID) == "" && strings.TrimSpace(r.SubjectContact) == "":
		return apperr.Validation(op, "subject_id or subject_contact is required")
	case r.Date.IsZero():
		return apperr.Validation(op, "date is required")
	case !r.Start.Valid():
		return apperr.Validation(op, "time is out of range")
	case utf8.RuneCountInString(r.Reason) > maxTextLen || utf8.RuneCountInString(r.Notes) > maxTextLen:
		return apperr.Validation(op, "reason and notes are limited to %d characters", maxTextLen)
	}
	return nil
}

// Book creates a pending appointment on a free slot. The slot check and the
// insert happen under the slot's lock in one transaction, so of two racing
// bookings exactly one succeeds and the other gets a conflict.
func (s *Service) Book(ctx context.Context, req BookRequest) (appt model.Appointment, err error) {
	const op = "scheduling.Book"
	ctx, span := s.span(ctx, op,
		attribute.String("owner_id", req.OwnerID),
		attribute.String("date", req.Date.String()),
		attribute.String("time", req.Start.String()))
	defer func() { endSpan(span, err) }()

	if err := req.validate(op); err != nil {
		return model.Appointment{}, err
	}
	token, digest, err := tokens.New()
	if err != nil {
		return model.Appointment{}, apperr.Wrap(apperr.KindTransient, op, err, "token generation")
	}

	now := s.clock.Now().UTC()
	by := req.BookedBy
	if by == "" {
		by = "public"
	}
	note := model.AuditNote{At: now, Actor: by, Text: "booked"}
	appt = model.Appointment{
		ID:             uuid.NewString(),
		OwnerID:        strings.TrimSpace(req.OwnerID),
		SubjectID:      strings.TrimSpace(req.SubjectID),
		SubjectContact: strings.TrimSpace(req.SubjectContact),
		Date:           req.Date,
		Start:          req.Start,
		Status:         model.StatusPending,
		TokenDigest:    digest,
		Reason:         strings.TrimSpace(req.Reason),
		Notes:          strings.TrimSpace(req.Notes),
		Audit:          []model.AuditNote{note},
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = s.inTx(ctx, op, func(tx storage.Tx) error {
		if err := s.claimSlot(ctx, tx, op, appt.OwnerID, appt.Date, appt.Start); err != nil {
			return err
		}
		if err := tx.InsertAppointment(ctx, appt); err != nil {
			return err
		}
		return recordAppointmentEvent(ctx, tx, outbox.TypeAppointmentBooked, appt, note)
	})
	if err != nil {
		s.logRejected(op, err, "owner_id", appt.OwnerID, "date", appt.Date.String(), "time", appt.Start.String())
		return model.Appointment{}, err
	}

	appt.CancellationToken = token
	s.logger.Info("appointment booked",
		"appointment_id", appt.ID,
		"owner_id", appt.OwnerID,
		"date", appt.Date.String(),
		"time", appt.Start.String(),
	)
	return appt, nil
}

type RescheduleRequest struct {
	AppointmentID string
	Actor         model.Actor
	Date          model.Date
	Start         model.Minute
	Reason        string
}

// Reschedule moves a pending appointment to a new slot of the same owner.
// The old record is cancelled with a "superseded by reschedule" audit note and
// a new pending record with a fresh cancellation token takes the new slot;
// both records link to each other. Either both changes commit or neither does.
func (s *Service) Reschedule(ctx context.Context, req RescheduleRequest) (moved model.Appointment, err error) {
	const op = "scheduling.Reschedule"
	ctx, span := s.span(ctx, op,
		attribute.String("appointment_id", req.AppointmentID),
		attribute.String("date", req.Date.String()),
		attribute.String("time", req.Start.String()))
	defer func() { endSpan(span, err) }()

	switch {
	case req.AppointmentID == "":
		return model.Appointment{}, apperr.Validation(op, "appointment id is required")
	case req.Date.IsZero():
		return model.Appointment{}, apperr.Validation(op, "date is required")
	case !req.Start.Valid():
		return model.Appointment{}, apperr.Validation(op, "time is out of range")
	case utf8.RuneCountInString(req.Reason) > maxTextLen:
		return model.Appointment{}, apperr.Validation(op, "reason is limited to %d characters", maxTextLen)
	}

	token, digest, err := tokens.New()
	if err != nil {
		return model.Appointment{}, apperr.Wrap(apperr.KindTransient, op, err, "token generation")
	}
	now := s.clock.Now().UTC()
	reason := strings.TrimSpace(req.Reason)
	newID := uuid.NewString()

	err = s.inTx(ctx, op, func(tx storage.Tx) error {
		old, err := tx.GetAppointmentForUpdate(ctx, req.AppointmentID)
		if err != nil {
			return err
		}
		if !req.Actor.CanManage(old.OwnerID) {
			return apperr.Forbidden(op, "only the owner or an admin can reschedule")
		}
		to, _, err := lifecycle.Next(old.Status, lifecycle.EventReschedule)
		if err != nil {
			return err
		}

		oldNote := model.AuditNote{At: now, Actor: req.Actor.ID, Text: withReason("superseded by reschedule to "+newID, reason)}
		old.Status = to
		old.RescheduledTo = newID
		old.Audit = append(old.Audit, oldNote)
		old.UpdatedAt = now
		if err := tx.UpdateAppointment(ctx, old); err != nil {
			return err
		}

		newNote := model.AuditNote{
			At:    now,
			Actor: req.Actor.ID,
			Text:  withReason(fmt.Sprintf("rescheduled from %s %s (%s)", old.Date, old.Start, old.ID), reason),
		}
		moved = model.Appointment{
			ID:              newID,
			OwnerID:         old.OwnerID,
			SubjectID:       old.SubjectID,
			SubjectContact:  old.SubjectContact,
			Date:            req.Date,
			Start:           req.Start,
			Status:          model.StatusPending,
			TokenDigest:     digest,
			Reason:          old.Reason,
			Notes:           old.Notes,
			Audit:           []model.AuditNote{newNote},
			RescheduledFrom: old.ID,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		// The old slot is already released inside this transaction, so moving
		// within the same slot is allowed.
		if err := s.claimSlot(ctx, tx, op, moved.OwnerID, moved.Date, moved.Start); err != nil {
			return err
		}
		if err := tx.InsertAppointment(ctx, moved); err != nil {
			return err
		}
		if err := recordAppointmentEvent(ctx, tx, outbox.TypeAppointmentCancelled, old, oldNote); err != nil {
			return err
		}
		return recordAppointmentEvent(ctx, tx, outbox.TypeAppointmentRescheduled, moved, newNote)
	})
	if err != nil {
		s.logRejected(op, err, "appointment_id", req.AppointmentID, "date", req.Date.String(), "time", req.Start.String())
		return model.Appointment{}, err
	}

	moved.CancellationToken = token
	s.logger.Info("appointment rescheduled",
		"appointment_id", moved.ID,
		"rescheduled_from", moved.RescheduledFrom,
		"owner_id", moved.OwnerID,
		"date", moved.Date.String(),
		"time", moved.Start.String(),
		"actor_id", req.Actor.ID,
	)
	return moved, nil
}

// claimSlot takes the slot lock and checks the slot is offered and free.
// Anything not in the resolved availability is a conflict, so callers can
// re-read availability and offer another slot.
func (s *Service) claimSlot(ctx context.Context, tx storage.Tx, op, ownerID string, date model.Date, start model.Minute) error {
	if err := tx.LockKey(ctx, model.SlotKey(ownerID, date, start)); err != nil {
		return err
	}
	tpl, err := tx.GetTemplate(ctx, ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		return apperr.Conflict(op, "owner %s offers no availability", ownerID)
	}
	if err != nil {
		return err
	}
	occupied, err := tx.OccupiedSlots(ctx, ownerID, date)
	if err != nil {
		return err
	}
	if !availability.Contains(availability.Resolve(tpl, date, occupied, s.clock.Now()), start) {
		return apperr.Conflict(op, "slot %s %s is not available", date, start)
	}
	return nil
}

func (s *Service) logRejected(op string, err error, attrs ...any) {
	attrs = append(attrs, "op", op, "kind", string(apperr.KindOf(err)), "err", err)
	switch apperr.KindOf(err) {
	case apperr.KindTransient, "":
		s.logger.Error("operation failed", attrs...)
	default:
		s.logger.Info("operation rejected", attrs...)
	}
}

func withReason(text, reason string) string {
	if reason == "" {
		return text
	}
	return text + ": " + reason
}

