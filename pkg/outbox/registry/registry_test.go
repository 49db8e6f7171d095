package registry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/mfigueroa/bazario-backend/pkg/config"
	"github.com/mfigueroa/bazario-backend/pkg/db/models"
	"github.com/mfigueroa/bazario-backend/pkg/enums"
	"github.com/mfigueroa/bazario-backend/pkg/outbox"
	"github.com/mfigueroa/bazario-backend/pkg/outbox/payloads"
)

func testPubSubConfig() config.PubSubConfig {
	return config.PubSubConfig{
		OrdersTopic:  "bz-order-events",
		PayoutsTopic: "bz-payout-events",
	}
}

func envelopeJSON(t *testing.T, data interface{}) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	envelope := outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	}
	payload, err := json.Marshal(envelope)
	require.NoError(t, err)
	return payload
}

func TestResolveOrderCreated(t *testing.T) {
	reg, err := NewEventRegistry(testPubSubConfig())
	require.NoError(t, err)

	orderID := uuid.New()
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload: envelopeJSON(t, payloads.OrderCreatedEvent{
			OrderID:         orderID,
			OrderNumber:     "BZ-20260830-A1B2C3D4",
			OrderTotalCents: 11016,
		}),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	require.Equal(t, "bz-order-events", resolved.Descriptor.Topic)

	payload, ok := resolved.Payload.(*payloads.OrderCreatedEvent)
	require.True(t, ok)
	require.Equal(t, orderID, payload.OrderID)
	require.Equal(t, int64(11016), payload.OrderTotalCents)
}

func TestResolvePayoutEventsRouteToPayoutTopic(t *testing.T) {
	reg, err := NewEventRegistry(testPubSubConfig())
	require.NoError(t, err)

	payoutID := uuid.New()
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPayoutCompleted,
		AggregateType: enums.AggregatePayout,
		AggregateID:   payoutID,
		Payload: envelopeJSON(t, payloads.PayoutCompletedEvent{
			PayoutID:    payoutID,
			AmountCents: 4250,
		}),
	}

	resolved, err := reg.Resolve(event)
	require.NoError(t, err)
	require.Equal(t, "bz-payout-events", resolved.Descriptor.Topic)
}

func TestResolveUnsupportedEventType(t *testing.T) {
	reg, err := NewEventRegistry(testPubSubConfig())
	require.NoError(t, err)

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.OutboxEventType("cart_abandoned"),
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelopeJSON(t, map[string]any{}),
	}

	_, err = reg.Resolve(event)
	var nonRetry NonRetryableError
	require.True(t, errors.As(err, &nonRetry))
}

func TestResolveAggregateMismatch(t *testing.T) {
	reg, err := NewEventRegistry(testPubSubConfig())
	require.NoError(t, err)

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventPayoutCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelopeJSON(t, payloads.PayoutCreatedEvent{}),
	}

	_, err = reg.Resolve(event)
	var nonRetry NonRetryableError
	require.True(t, errors.As(err, &nonRetry))
}

func TestResolveEmptyPayload(t *testing.T) {
	reg, err := NewEventRegistry(testPubSubConfig())
	require.NoError(t, err)

	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Data:       json.RawMessage("null"),
	})
	require.NoError(t, err)

	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCancelled,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       envelope,
	}

	_, err = reg.Resolve(event)
	var nonRetry NonRetryableError
	require.True(t, errors.As(err, &nonRetry))
}

func TestNewEventRegistryRequiresTopics(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{PayoutsTopic: "x"})
	require.Error(t, err)

	_, err = NewEventRegistry(config.PubSubConfig{OrdersTopic: "x"})
	require.Error(t, err)
}
