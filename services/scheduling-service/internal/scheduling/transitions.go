package scheduling

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/apperr"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/lifecycle"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/tokens"
	"go.opentelemetry.io/otel/attribute"
)

// Credential authorizes a cancellation: an authenticated actor, or the
// cancellation token issued at booking.
type Credential struct {
	Actor *model.Actor
	Token string
}

func (c Credential) label() string {
	if c.Token != "" {
		return "token"
	}
	if c.Actor != nil {
		return c.Actor.ID
	}
	return ""
}

type transition struct {
	op    string
	event lifecycle.Event
	// authorize runs on the locked record before the state check.
	authorize func(model.Appointment) error
	// note builds the audit note; apply may copy free text onto the record.
	note  func(now time.Time) model.AuditNote
	apply func(*model.Appointment)
}

// run loads the appointment under a row lock, applies the transition and
// persists it with its event in one transaction. changed is false only for
// the idempotent re-cancel.
func (s *Service) run(ctx context.Context, id string, t transition) (appt model.Appointment, changed bool, err error) {
	ctx, span := s.span(ctx, t.op, attribute.String("appointment_id", id), attribute.String("event", string(t.event)))
	defer func() { endSpan(span, err) }()

	if id == "" {
		return model.Appointment{}, false, apperr.Validation(t.op, "appointment id is required")
	}
	now := s.clock.Now().UTC()
	err = s.inTx(ctx, t.op, func(tx storage.Tx) error {
		var err error
		appt, err = tx.GetAppointmentForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if t.authorize != nil {
			if err := t.authorize(appt); err != nil {
				return err
			}
		}
		to, moved, err := lifecycle.Next(appt.Status, t.event)
		if err != nil || !moved {
			return err
		}
		note := t.note(now)
		appt.Status = to
		appt.Audit = append(appt.Audit, note)
		appt.UpdatedAt = now
		if t.apply != nil {
			t.apply(&appt)
		}
		if err := tx.UpdateAppointment(ctx, appt); err != nil {
			return err
		}
		changed = true
		return recordAppointmentEvent(ctx, tx, eventTypeByStatus[to], appt, note)
	})
	if err != nil {
		return model.Appointment{}, false, err
	}
	return appt, changed, nil
}

func checkText(op, field, v string) error {
	if utf8.RuneCountInString(v) > maxTextLen {
		return apperr.Validation(op, "%s is limited to %d characters", field, maxTextLen)
	}
	return nil
}

// Cancel cancels a pending appointment. Cancelling an already cancelled
// appointment succeeds without changing it.
func (s *Service) Cancel(ctx context.Context, id string, cred Credential, reason string) (model.Appointment, error) {
	const op = "scheduling.Cancel"
	if err := checkText(op, "reason", reason); err != nil {
		return model.Appointment{}, err
	}
	if cred.Token == "" && cred.Actor == nil {
		return model.Appointment{}, apperr.Forbidden(op, "an actor or a cancellation token is required")
	}
	reason = strings.TrimSpace(reason)

	appt, changed, err := s.run(ctx, id, transition{
		op:    op,
		event: lifecycle.EventCancel,
		authorize: func(a model.Appointment) error {
			if cred.Token != "" {
				if !tokens.Match(a.TokenDigest, cred.Token) {
					return errTokenMismatch(op)
				}
				return nil
			}
			if !cred.Actor.CanManage(a.OwnerID) {
				return apperr.Forbidden(op, "only the owner or an admin can cancel")
			}
			return nil
		},
		note: func(now time.Time) model.AuditNote {
			return model.AuditNote{At: now, Actor: cred.label(), Text: withReason("cancelled", reason)}
		},
	})
	if err != nil {
		s.logRejected(op, err, "appointment_id", id)
		// A token holder learns nothing about ids it holds no token for.
		if cred.Token != "" && apperr.Is(err, apperr.KindNotFound) {
			err = errTokenMismatch(op)
		}
		return model.Appointment{}, err
	}
	if changed {
		s.logger.Info("appointment cancelled", "appointment_id", appt.ID, "owner_id", appt.OwnerID, "by", cred.label())
	}
	return appt, nil
}

func errTokenMismatch(op string) error {
	return apperr.Forbidden(op, "cancellation token does not match")
}

// ConfirmAttendance completes a pending appointment.
func (s *Service) ConfirmAttendance(ctx context.Context, id string, actor model.Actor, outcome string) (model.Appointment, error) {
	const op = "scheduling.ConfirmAttendance"
	if err := checkText(op, "outcome", outcome); err != nil {
		return model.Appointment{}, err
	}
	outcome = strings.TrimSpace(outcome)

	appt, _, err := s.run(ctx, id, transition{
		op:        op,
		event:     lifecycle.EventConfirm,
		authorize: ownerOrAdmin(op, actor),
		note: func(now time.Time) model.AuditNote {
			return model.AuditNote{At: now, Actor: actor.ID, Text: "attendance confirmed"}
		},
		apply: func(a *model.Appointment) { a.Outcome = outcome },
	})
	if err != nil {
		s.logRejected(op, err, "appointment_id", id, "actor_id", actor.ID)
		return model.Appointment{}, err
	}
	s.logger.Info("attendance confirmed", "appointment_id", appt.ID, "owner_id", appt.OwnerID)
	return appt, nil
}

// MarkAbsent records a no-show for a pending appointment.
func (s *Service) MarkAbsent(ctx context.Context, id string, actor model.Actor, notes string) (model.Appointment, error) {
	const op = "scheduling.MarkAbsent"
	if err := checkText(op, "notes", notes); err != nil {
		return model.Appointment{}, err
	}
	notes = strings.TrimSpace(notes)

	appt, _, err := s.run(ctx, id, transition{
		op:        op,
		event:     lifecycle.EventMarkAbsent,
		authorize: ownerOrAdmin(op, actor),
		note: func(now time.Time) model.AuditNote {
			return model.AuditNote{At: now, Actor: actor.ID, Text: withReason("marked absent", notes)}
		},
		apply: func(a *model.Appointment) {
			if notes != "" {
				a.Notes = notes
			}
		},
	})
	if err != nil {
		s.logRejected(op, err, "appointment_id", id, "actor_id", actor.ID)
		return model.Appointment{}, err
	}
	s.logger.Info("appointment marked absent", "appointment_id", appt.ID, "owner_id", appt.OwnerID)
	return appt, nil
}

// SweepAbsent is the automatic pending to absent transition used by the
// sweep. It goes through the same locked transaction as MarkAbsent, so a
// concurrent confirmation and the sweep resolve to whichever commits first.
func (s *Service) SweepAbsent(ctx context.Context, id string, firedAt time.Time) (model.Appointment, error) {
	const op = "scheduling.SweepAbsent"
	appt, _, err := s.run(ctx, id, transition{
		op:    op,
		event: lifecycle.EventSweepAbsent,
		note: func(time.Time) model.AuditNote {
			return model.AuditNote{
				At:    firedAt.UTC(),
				Actor: model.SystemActor.ID,
				Text:  "marked absent by sweep fired at " + firedAt.UTC().Format(time.RFC3339),
			}
		},
	})
	return appt, err
}

func ownerOrAdmin(op string, actor model.Actor) func(model.Appointment) error {
	return func(a model.Appointment) error {
		if !actor.CanManage(a.OwnerID) {
			return apperr.Forbidden(op, "only the owner or an admin can do this")
		}
		return nil
	}
}
