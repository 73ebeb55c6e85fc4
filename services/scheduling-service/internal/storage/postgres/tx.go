package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage"
)

type tx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

// LockKey takes a transaction-scoped advisory lock, released on commit or rollback.
func (t *tx) LockKey(ctx context.Context, key string) error {
	_, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key)
	return err
}

func (t *tx) GetTemplate(ctx context.Context, ownerID string) (model.Template, error) {
	return getTemplate(ctx, t.tx, ownerID)
}

func (t *tx) OccupiedSlots(ctx context.Context, ownerID string, date model.Date) ([]model.Minute, error) {
	rows, err := t.tx.Query(ctx, `
		SELECT start_minute
		FROM appointments
		WHERE owner_id = $1 AND appt_date = $2 AND status <> 'cancelled'
	`, ownerID, date.Midnight(time.UTC))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Minute
	for rows.Next() {
		var m int
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, model.Minute(m))
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func (t *tx) GetAppointmentForUpdate(ctx context.Context, id string) (model.Appointment, error) {
	return getAppointment(ctx, t.tx, id, true)
}

func (t *tx) InsertAppointment(ctx context.Context, a model.Appointment) error {
	audit, err := json.Marshal(auditOrEmpty(a.Audit))
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `
		INSERT INTO appointments
			(id, owner_id, subject_id, subject_contact, appt_date, start_minute, status, token_digest,
			 reason, notes, outcome, audit, rescheduled_from, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`, a.ID, a.OwnerID, a.SubjectID, a.SubjectContact, a.Date.Midnight(time.UTC), int(a.Start), string(a.Status),
		a.TokenDigest, a.Reason, a.Notes, a.Outcome, audit, nullable(a.RescheduledFrom), a.CreatedAt, a.UpdatedAt)
	return translate(err)
}

func (t *tx) UpdateAppointment(ctx context.Context, a model.Appointment) error {
	audit, err := json.Marshal(auditOrEmpty(a.Audit))
	if err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `
		UPDATE appointments
		SET status = $2,
			notes = $3,
			outcome = $4,
			audit = $5,
			rescheduled_to = $6,
			updated_at = $7
		WHERE id = $1
	`, a.ID, string(a.Status), a.Notes, a.Outcome, audit, nullable(a.RescheduledTo), a.UpdatedAt)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *tx) GetActiveAssignmentForUpdate(ctx context.Context, subjectID string) (model.Assignment, error) {
	return scanAssignment(t.tx.QueryRow(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE subject_id = $1 AND active
		FOR UPDATE
	`, subjectID))
}

func (t *tx) GetAssignmentForUpdate(ctx context.Context, id string) (model.Assignment, error) {
	id, ok := canonicalID(id)
	if !ok {
		return model.Assignment{}, storage.ErrNotFound
	}
	return scanAssignment(t.tx.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1 FOR UPDATE`, id))
}

func (t *tx) InsertAssignment(ctx context.Context, a model.Assignment) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO assignments (id, subject_id, resource_id, active, created_at, deactivated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, a.ID, a.SubjectID, a.ResourceID, a.Active, a.CreatedAt, a.DeactivatedAt)
	return translate(err)
}

func (t *tx) DeactivateAssignment(ctx context.Context, id string, at time.Time) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE assignments
		SET active = false,
			deactivated_at = $2
		WHERE id = $1
	`, id, at)
	if err != nil {
		return translate(err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (t *tx) InsertEvent(ctx context.Context, evt outbox.Event) error {
	return t.outbox.Append(ctx, t.tx, evt)
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func auditOrEmpty(notes []model.AuditNote) []model.AuditNote {
	if notes == nil {
		return []model.AuditNote{}
	}
	return notes
}
