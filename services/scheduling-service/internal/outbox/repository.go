package outbox

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
)

// Repository reads and writes outbox_events inside a caller-owned transaction.
type Repository struct{}

func NewRepository() *Repository {
	return &Repository{}
}

// Append stores evt along with the trace context of ctx.
func (r *Repository) Append(ctx context.Context, tx pgx.Tx, evt Event) error {
	tc := otelx.CaptureTrace(ctx)
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_events (aggregate_type, aggregate_id, event_type, payload, traceparent, tracestate)
		 VALUES (@aggregate_type, @aggregate_id, @event_type, @payload, @traceparent, @tracestate)`,
		pgx.NamedArgs{
			"aggregate_type": evt.AggregateType,
			"aggregate_id":   evt.AggregateID,
			"event_type":     evt.EventType,
			"payload":        evt.Payload,
			"traceparent":    tc.Parent,
			"tracestate":     tc.State,
		})
	return err
}

// Record is one stored event awaiting publication.
type Record struct {
	ID            int64     `db:"id"`
	EventID       string    `db:"event_id"`
	AggregateType string    `db:"aggregate_type"`
	AggregateID   string    `db:"aggregate_id"`
	EventType     string    `db:"event_type"`
	Payload       []byte    `db:"payload"`
	Traceparent   string    `db:"traceparent"`
	Tracestate    string    `db:"tracestate"`
	CreatedAt     time.Time `db:"created_at"`
}

// Claim locks up to limit unpublished rows in insertion order. Rows held by
// another publisher are skipped.
func (r *Repository) Claim(ctx context.Context, tx pgx.Tx, limit int) ([]Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT id, event_id::text AS event_id, aggregate_type, aggregate_id, event_type,
		       payload, traceparent, tracestate, created_at
		  FROM outbox_events
		 WHERE published_at IS NULL
		 ORDER BY id
		 LIMIT $1
		   FOR UPDATE SKIP LOCKED`, limit)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowToStructByName[Record])
}

func (r *Repository) MarkPublished(ctx context.Context, tx pgx.Tx, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := tx.Exec(ctx, `UPDATE outbox_events SET published_at = now() WHERE id = ANY($1)`, ids)
	return err
}
