package kafkax

import (
	"context"
	"strings"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	HeaderEventID   = "event_id"
	HeaderEventType = "event_type"
)

// Headers adapts a Kafka header list to the OpenTelemetry carrier interface.
type Headers []kafka.Header

var _ propagation.TextMapCarrier = (*Headers)(nil)

func (h *Headers) Get(key string) string {
	for _, kv := range *h {
		if kv.Key == key {
			return string(kv.Value)
		}
	}
	return ""
}

func (h *Headers) Set(key, value string) {
	for i := range *h {
		if (*h)[i].Key == key {
			(*h)[i].Value = []byte(value)
			return
		}
	}
	*h = append(*h, kafka.Header{Key: key, Value: []byte(value)})
}

func (h *Headers) Keys() []string {
	keys := make([]string, len(*h))
	for i, kv := range *h {
		keys[i] = kv.Key
	}
	return keys
}

// EventMeta identifies a domain event on the wire.
type EventMeta struct {
	EventID   string
	EventType string
}

// Encode renders meta and the trace context of ctx as message headers.
func (m EventMeta) Encode(ctx context.Context) []kafka.Header {
	h := Headers{
		{Key: HeaderEventID, Value: []byte(m.EventID)},
		{Key: HeaderEventType, Value: []byte(m.EventType)},
	}
	otel.GetTextMapPropagator().Inject(ctx, &h)
	return h
}

// Read returns the event meta of msg and ctx continued from the producer's
// trace. A message without meta headers falls back to its key and topic.
func Read(ctx context.Context, msg kafka.Message) (context.Context, EventMeta) {
	h := Headers(msg.Headers)
	meta := EventMeta{EventID: h.Get(HeaderEventID), EventType: h.Get(HeaderEventType)}
	if meta.EventID == "" {
		meta.EventID = string(msg.Key)
	}
	if meta.EventType == "" {
		meta.EventType = msg.Topic
	}
	return otel.GetTextMapPropagator().Extract(ctx, &h), meta
}

func SplitBrokers(raw string) []string {
	var brokers []string
	for _, b := range strings.Split(raw, ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return brokers
}
