// Package postgres is the pgx-backed storage.Store. Per-key serialization
// uses transaction-scoped advisory locks; the partial unique indexes in the
// schema back them up and surface as storage.ErrConflict.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/storage"
)

type Store struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

var _ storage.Store = (*Store)(nil)

func New(pool *db.Pool, outboxRepo *outbox.Repository) *Store {
	return &Store{pool: pool, outbox: outboxRepo}
}

func (s *Store) InTx(ctx context.Context, fn func(storage.Tx) error) error {
	return translate(s.pool.WithTx(ctx, func(t pgx.Tx) error {
		return fn(&tx{tx: t, outbox: s.outbox})
	}))
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const appointmentColumns = `
	id::text, owner_id, subject_id, subject_contact, appt_date, start_minute, status,
	token_digest, reason, notes, outcome, audit,
	COALESCE(rescheduled_from::text, ''), COALESCE(rescheduled_to::text, ''),
	created_at, updated_at`

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a      model.Appointment
		date   time.Time
		start  int
		status string
		audit  []byte
	)
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.SubjectID,
		&a.SubjectContact,
		&date,
		&start,
		&status,
		&a.TokenDigest,
		&a.Reason,
		&a.Notes,
		&a.Outcome,
		&audit,
		&a.RescheduledFrom,
		&a.RescheduledTo,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, translate(err)
	}
	a.Date = model.DateOf(date)
	a.Start = model.Minute(start)
	a.Status = model.Status(status)
	if len(audit) > 0 {
		if err := json.Unmarshal(audit, &a.Audit); err != nil {
			return model.Appointment{}, fmt.Errorf("decode audit of %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func collectAppointments(rows pgx.Rows, err error) ([]model.Appointment, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

func getAppointment(ctx context.Context, q querier, id string, forUpdate bool) (model.Appointment, error) {
	id, ok := canonicalID(id)
	if !ok {
		return model.Appointment{}, storage.ErrNotFound
	}
	sql := `SELECT ` + appointmentColumns + ` FROM appointments WHERE id = $1`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	return scanAppointment(q.QueryRow(ctx, sql, id))
}

func (s *Store) GetAppointment(ctx context.Context, id string) (model.Appointment, error) {
	return getAppointment(ctx, s.pool, id, false)
}

func (s *Store) ListAppointments(ctx context.Context, ownerID string, date model.Date) ([]model.Appointment, error) {
	return collectAppointments(s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1 AND appt_date = $2
		ORDER BY start_minute ASC, created_at ASC
	`, ownerID, date.Midnight(time.UTC)))
}

func (s *Store) ListBySubject(ctx context.Context, subjectID string) ([]model.Appointment, error) {
	return collectAppointments(s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE subject_id = $1
		ORDER BY appt_date ASC, start_minute ASC
	`, subjectID))
}

func (s *Store) ListPendingBefore(ctx context.Context, before model.Date, afterID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 100
	}
	if afterID == "" {
		afterID = uuid.Nil.String()
	}
	return collectAppointments(s.pool.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE status = 'pending' AND appt_date < $1 AND id > $2
		ORDER BY id ASC
		LIMIT $3
	`, before.Midnight(time.UTC), afterID, limit))
}

func encodeRanges(ranges model.WeeklyRanges) ([]byte, error) {
	return json.Marshal(ranges)
}

func decodeRanges(raw []byte) (model.WeeklyRanges, error) {
	var out model.WeeklyRanges
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func getTemplate(ctx context.Context, q querier, ownerID string) (model.Template, error) {
	var (
		tpl model.Template
		raw []byte
	)
	err := q.QueryRow(ctx, `
		SELECT owner_id, timezone, slot_minutes, ranges, updated_at
		FROM schedule_templates
		WHERE owner_id = $1
	`, ownerID).Scan(&tpl.OwnerID, &tpl.Timezone, &tpl.SlotMinutes, &raw, &tpl.UpdatedAt)
	if err != nil {
		return model.Template{}, translate(err)
	}
	if tpl.Ranges, err = decodeRanges(raw); err != nil {
		return model.Template{}, fmt.Errorf("decode template of %s: %w", ownerID, err)
	}
	return tpl, nil
}

func (s *Store) GetTemplate(ctx context.Context, ownerID string) (model.Template, error) {
	return getTemplate(ctx, s.pool, ownerID)
}

func (s *Store) PutTemplate(ctx context.Context, tpl model.Template) error {
	raw, err := encodeRanges(tpl.Ranges)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO schedule_templates (owner_id, timezone, slot_minutes, ranges, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id) DO UPDATE SET
			timezone = EXCLUDED.timezone,
			slot_minutes = EXCLUDED.slot_minutes,
			ranges = EXCLUDED.ranges,
			updated_at = EXCLUDED.updated_at
	`, tpl.OwnerID, tpl.Timezone, tpl.SlotMinutes, raw, tpl.UpdatedAt)
	return translate(err)
}

const assignmentColumns = `id::text, subject_id, resource_id, active, created_at, deactivated_at`

func scanAssignment(row pgx.Row) (model.Assignment, error) {
	var a model.Assignment
	if err := row.Scan(&a.ID, &a.SubjectID, &a.ResourceID, &a.Active, &a.CreatedAt, &a.DeactivatedAt); err != nil {
		return model.Assignment{}, translate(err)
	}
	return a, nil
}

func (s *Store) GetAssignment(ctx context.Context, id string) (model.Assignment, error) {
	id, ok := canonicalID(id)
	if !ok {
		return model.Assignment{}, storage.ErrNotFound
	}
	return scanAssignment(s.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM assignments WHERE id = $1`, id))
}

func (s *Store) ListAssignments(ctx context.Context, subjectID string) ([]model.Assignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM assignments
		WHERE subject_id = $1
		ORDER BY created_at ASC
	`, subjectID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// translate maps driver errors onto the storage sentinels, keeping the cause.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case db.IsNotFound(err):
		return storage.ErrNotFound
	case db.IsConflict(err):
		return errors.Join(storage.ErrConflict, err)
	default:
		return err
	}
}

// canonicalID keeps malformed ids from reaching a uuid cast, which would
// fail with a syntax error instead of "not found".
func canonicalID(s string) (string, bool) {
	id, err := uuid.Parse(s)
	if err != nil {
		return "", false
	}
	return id.String(), true
}
