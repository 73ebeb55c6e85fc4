package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

// ApplyTemplateEvent stores a template received from the clinic
// administration service. The event id is recorded in the same transaction;
// applied is false for a redelivered event. A template older than the stored
// one is recorded but not written.
func (s *Store) ApplyTemplateEvent(ctx context.Context, eventID, eventType string, tpl model.Template) (applied bool, err error) {
	raw, err := encodeRanges(tpl.Ranges)
	if err != nil {
		return false, err
	}
	err = s.pool.WithTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO inbox_events (event_id, event_type)
			VALUES ($1, $2)
			ON CONFLICT (event_id) DO NOTHING
		`, eventID, eventType)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		applied = true
		_, err = tx.Exec(ctx, `
			INSERT INTO schedule_templates (owner_id, timezone, slot_minutes, ranges, updated_at)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (owner_id) DO UPDATE SET
				timezone = EXCLUDED.timezone,
				slot_minutes = EXCLUDED.slot_minutes,
				ranges = EXCLUDED.ranges,
				updated_at = EXCLUDED.updated_at
			WHERE schedule_templates.updated_at <= EXCLUDED.updated_at
		`, tpl.OwnerID, tpl.Timezone, tpl.SlotMinutes, raw, tpl.UpdatedAt)
		return err
	})
	if err != nil {
		return false, translate(err)
	}
	return applied, nil
}
