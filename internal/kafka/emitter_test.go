package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ariefcatur/harvest-market/internal/events"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type captured struct {
	topic   string
	key     []byte
	value   []byte
	headers []kafka.Header
}

type fakeProducer struct{ msgs []captured }

func (f *fakeProducer) Publish(topic string, key, value []byte, headers ...kafka.Header) {
	f.msgs = append(f.msgs, captured{topic, key, value, headers})
}

func TestEmitterWrapsPayloadInEnvelope(t *testing.T) {
	fp := &fakeProducer{}
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	em := &Emitter{Producer: fp, Service: "market-api", Now: func() time.Time { return at }}

	ctx := WithTrace(context.Background(), "req-42")
	err := em.Emit(ctx, events.TopicOrderCreated, events.EventOrderCreated, "order-1",
		events.OrderCreatedPayload{OrderID: "order-1", BuyerID: "b1", SellerID: "s1", TotalCents: 1050})
	require.NoError(t, err)
	require.Len(t, fp.msgs, 1)

	m := fp.msgs[0]
	assert.Equal(t, events.TopicOrderCreated, m.topic)
	assert.Equal(t, "order-1", string(m.key))
	assert.Equal(t, "x-event-type", m.headers[0].Key)
	assert.Equal(t, events.EventOrderCreated, string(m.headers[0].Value))

	var env events.Envelope
	require.NoError(t, json.Unmarshal(m.value, &env))
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, 1, env.EventVersion)
	assert.Equal(t, "market-api", env.Producer)
	assert.Equal(t, "req-42", env.TraceID)
	assert.Equal(t, "order-1", env.CorrelationID)
	assert.True(t, env.OccurredAt.Equal(at))

	p, err := UnwrapPayload[events.OrderCreatedPayload](env.Payload)
	require.NoError(t, err)
	assert.Equal(t, int64(1050), p.TotalCents)
}

func TestUnwrapPayloadRejectsGarbage(t *testing.T) {
	_, err := UnwrapPayload[events.BidPlacedPayload](json.RawMessage(`{"seq":"x"}`))
	assert.Error(t, err)
}

func TestEmitterRejectsUnencodablePayload(t *testing.T) {
	fp := &fakeProducer{}
	em := &Emitter{Producer: fp, Service: "market-api"}
	err := em.Emit(context.Background(), events.TopicOrderCreated, events.EventOrderCreated, "order-1", make(chan int))
	require.Error(t, err)
	assert.Empty(t, fp.msgs)
}
