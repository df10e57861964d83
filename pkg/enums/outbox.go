package enums

import "fmt"

// OutboxAggregateType names the entity an outbox event is about.
type OutboxAggregateType string

const (
	AggregateOrder     OutboxAggregateType = "order"
	AggregateEvent     OutboxAggregateType = "event"
	AggregateOrganiser OutboxAggregateType = "organiser"
	AggregateCharity   OutboxAggregateType = "charity"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateEvent,
	AggregateOrganiser,
	AggregateCharity,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType names a domain event published through the outbox.
type OutboxEventType string

const (
	EventOrderPaid            OutboxEventType = "order_paid"
	EventEventPublished       OutboxEventType = "event_published"
	EventVerificationDecision OutboxEventType = "verification_decided"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderPaid,
	EventEventPublished,
	EventVerificationDecision,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
