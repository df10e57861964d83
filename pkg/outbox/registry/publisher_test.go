package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charityconnect/charityconnect-backend/pkg/config"
	"github.com/charityconnect/charityconnect-backend/pkg/db/models"
	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox/payloads"
)

func TestEventRegistryResolveOrderPaid(t *testing.T) {
	reg := newTestEventRegistry(t)

	event := models.OutboxEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   "42",
		Payload: mustEnvelope(t, mustMarshal(t, payloads.OrderPaidEvent{
			OrderID:    42,
			EventID:    7,
			Qty:        2,
			TotalCents: 11000,
		})),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	assert.Equal(t, "orders-topic", resolved.Descriptor.Topic)
	payload, ok := resolved.Payload.(*payloads.OrderPaidEvent)
	require.True(t, ok, "unexpected payload type %T", resolved.Payload)
	assert.EqualValues(t, 42, payload.OrderID)
	assert.EqualValues(t, 11000, payload.TotalCents)
	assert.NotEmpty(t, resolved.Envelope.EventID)
	assert.False(t, resolved.Envelope.OccurredAt.IsZero())
}

func TestEventRegistryVerificationAcceptsCharityAggregate(t *testing.T) {
	reg := newTestEventRegistry(t)
	event := models.OutboxEvent{
		EventType:     enums.EventVerificationDecision,
		AggregateType: enums.AggregateCharity,
		AggregateID:   "3",
		Payload:       mustEnvelope(t, []byte(`{"org_type":"charity","org_id":3,"action":"verify"}`)),
	}
	_, err := reg.Resolve(event)
	require.NoError(t, err)
}

func TestEventRegistryResolveRejectsBadRows(t *testing.T) {
	reg := newTestEventRegistry(t)

	cases := map[string]models.OutboxEvent{
		"unknown event": {
			EventType:     enums.OutboxEventType("ticket_redeemed"),
			AggregateType: enums.AggregateOrder,
			AggregateID:   "1",
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"aggregate mismatch": {
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateEvent,
			AggregateID:   "1",
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"missing aggregate id": {
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			Payload:       mustEnvelope(t, []byte(`{}`)),
		},
		"null payload": {
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   "1",
			Payload:       mustEnvelope(t, []byte("null")),
		},
		"broken envelope": {
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   "1",
			Payload:       json.RawMessage(`{"version":`),
		},
	}

	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			require.Error(t, err)
			var nonRetry NonRetryableError
			assert.True(t, errors.As(err, &nonRetry))
		})
	}
}

func TestNewEventRegistryRequiresTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	assert.Error(t, err)
}

func TestDefaultDecoders(t *testing.T) {
	reg := DefaultDecoders()
	out, err := reg.Decode(enums.EventOrderPaid, 1, json.RawMessage(`{"order_id":9,"qty":3}`))
	require.NoError(t, err)
	paid, ok := out.(*payloads.OrderPaidEvent)
	require.True(t, ok)
	assert.EqualValues(t, 9, paid.OrderID)
	assert.Equal(t, 3, paid.Qty)

	_, err = reg.Decode(enums.EventOrderPaid, 2, json.RawMessage(`{}`))
	assert.Error(t, err)
}

func newTestEventRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "orders-topic"})
	require.NoError(t, err)
	return reg
}

func mustMarshal(t *testing.T, v any) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func mustEnvelope(t *testing.T, payload []byte) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       payload,
	})
	require.NoError(t, err)
	return data
}
