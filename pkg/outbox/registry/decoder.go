package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/charityconnect/charityconnect-backend/pkg/enums"
	"github.com/charityconnect/charityconnect-backend/pkg/outbox/payloads"
)

// DecodeFunc turns an envelope's data field into a typed payload.
type DecodeFunc func(payload json.RawMessage) (any, error)

type registryKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry stores versioned payload decoders for consumers.
type DecoderRegistry struct {
	mtx      sync.RWMutex
	registry map[registryKey]DecodeFunc
}

// NewDecoderRegistry builds an empty decoder registry.
func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{registry: make(map[registryKey]DecodeFunc)}
}

// DefaultDecoders registers the v1 decoders for every known event.
func DefaultDecoders() *DecoderRegistry {
	reg := NewDecoderRegistry()
	reg.Register(enums.EventOrderPaid, 1, jsonDecoder(func() any { return &payloads.OrderPaidEvent{} }))
	reg.Register(enums.EventEventPublished, 1, jsonDecoder(func() any { return &payloads.EventPublishedEvent{} }))
	reg.Register(enums.EventVerificationDecision, 1, jsonDecoder(func() any { return &payloads.VerificationDecidedEvent{} }))
	return reg
}

// Register stores a decoder for the given event type and version.
func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decoder DecodeFunc) {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	r.registry[registryKey{eventType: eventType, version: version}] = decoder
}

// Decode runs the decoder registered for the event type and version.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, payload json.RawMessage) (any, error) {
	r.mtx.RLock()
	decoder, ok := r.registry[registryKey{eventType: eventType, version: version}]
	r.mtx.RUnlock()
	if !ok {
		return nil, fmt.Errorf("decoder not registered for %s@v%d", eventType, version)
	}
	return decoder(payload)
}

func jsonDecoder(factory func() any) DecodeFunc {
	return func(payload json.RawMessage) (any, error) {
		out := factory()
		if err := json.Unmarshal(payload, out); err != nil {
			return nil, err
		}
		return out, nil
	}
}
