package enums

import "fmt"

// OutboxEventType names the domain notifications the gateway emits.
type OutboxEventType string

const (
	OutboxEventPaymentSucceeded OutboxEventType = "payment.succeeded"
	OutboxEventPaymentFailed    OutboxEventType = "payment.failed"
	OutboxEventPaymentRefunded  OutboxEventType = "payment.refunded"
	OutboxEventPaymentVoided    OutboxEventType = "payment.voided"
)

var validOutboxEventTypes = []OutboxEventType{
	OutboxEventPaymentSucceeded,
	OutboxEventPaymentFailed,
	OutboxEventPaymentRefunded,
	OutboxEventPaymentVoided,
}

// String implements fmt.Stringer.
func (o OutboxEventType) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OutboxEventType.
func (o OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into an OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}

// OutboxAggregateType names the aggregate an outbox event refers to.
type OutboxAggregateType string

const (
	OutboxAggregatePayment OutboxAggregateType = "payment"
	OutboxAggregateOrder   OutboxAggregateType = "order"
)

// String implements fmt.Stringer.
func (o OutboxAggregateType) String() string {
	return string(o)
}
