// Package templatesync keeps the local copy of professionals' weekly
// templates in step with the clinic administration service, which owns them
// and publishes every change on Kafka.
package templatesync

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/kafkax"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
	"github.com/segmentio/kafka-go"
)

const TypeTemplateUpdated = "schedule.template.updated.v1"

type Store interface {
	ApplyTemplateEvent(ctx context.Context, eventID, eventType string, tpl model.Template) (applied bool, err error)
}

type templatePayload struct {
	OwnerID     string             `json:"owner_id"`
	Timezone    string             `json:"timezone"`
	SlotMinutes int                `json:"slot_minutes"`
	Ranges      model.WeeklyRanges `json:"ranges"`
	UpdatedAt   time.Time          `json:"updated_at"`
}

// Decode parses and validates a template event body.
func Decode(value []byte) (model.Template, error) {
	var p templatePayload
	if err := json.Unmarshal(value, &p); err != nil {
		return model.Template{}, fmt.Errorf("decode template event: %w", err)
	}
	tpl := model.Template{
		OwnerID:     p.OwnerID,
		Timezone:    p.Timezone,
		SlotMinutes: p.SlotMinutes,
		Ranges:      p.Ranges,
		UpdatedAt:   p.UpdatedAt.UTC(),
	}
	if tpl.UpdatedAt.IsZero() {
		return model.Template{}, fmt.Errorf("template event for %q has no updated_at", p.OwnerID)
	}
	if err := tpl.Validate(); err != nil {
		return model.Template{}, err
	}
	return tpl, nil
}

type Syncer struct {
	store  Store
	logger *slog.Logger
}

func NewSyncer(store Store, logger *slog.Logger) *Syncer {
	return &Syncer{store: store, logger: logger}
}

// Handle applies one message. Malformed events are logged and dropped so they
// do not block the partition; storage errors are returned for retry.
func (s *Syncer) Handle(ctx context.Context, msg kafka.Message) error {
	_, meta := kafkax.Read(ctx, msg)
	if meta.EventID == "" {
		meta.EventID = fmt.Sprintf("%s/%d/%d", msg.Topic, msg.Partition, msg.Offset)
	}
	if meta.EventType != TypeTemplateUpdated && meta.EventType != msg.Topic {
		s.logger.Debug("ignoring event", "event_type", meta.EventType, "event_id", meta.EventID)
		return nil
	}
	tpl, err := Decode(msg.Value)
	if err != nil {
		s.logger.Error("invalid template event dropped", "event_id", meta.EventID, "err", err)
		return nil
	}
	applied, err := s.store.ApplyTemplateEvent(ctx, meta.EventID, meta.EventType, tpl)
	if err != nil {
		return err
	}
	if !applied {
		s.logger.Info("duplicate event ignored", "event_id", meta.EventID, "event_type", meta.EventType)
		return nil
	}
	s.logger.Info("template synced", "owner_id", tpl.OwnerID, "event_id", meta.EventID, "updated_at", tpl.UpdatedAt.Format(time.RFC3339))
	return nil
}
