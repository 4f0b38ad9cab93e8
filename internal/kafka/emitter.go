package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/ariefcatur/harvest-market/internal/events"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

const envelopeVersion = 1

type publisher interface {
	Publish(topic string, key, value []byte, headers ...kafka.Header)
}

// Emitter wraps domain payloads in an events.Envelope and hands them to a Producer.
type Emitter struct {
	Producer publisher
	Service  string
	Now      func() time.Time
}

type traceKey struct{}

// WithTrace stores a trace id (usually the request id) for envelopes emitted under ctx.
func WithTrace(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

func (e *Emitter) Emit(ctx context.Context, topic, eventType, key string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	now := time.Now
	if e.Now != nil {
		now = e.Now
	}
	trace, _ := ctx.Value(traceKey{}).(string)
	env := events.Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  envelopeVersion,
		OccurredAt:    now().UTC(),
		Producer:      e.Service,
		TraceID:       trace,
		CorrelationID: key,
		Payload:       body,
	}
	// payload sudah valid JSON, envelope tidak mungkin gagal di-marshal
	e.Producer.Publish(topic, []byte(key), MustMarshal(env),
		kafka.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafka.Header{Key: "x-event-version", Value: []byte(strconv.Itoa(envelopeVersion))},
	)
	return nil
}

var _ events.Sink = (*Emitter)(nil)
