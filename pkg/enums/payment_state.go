package enums

import "fmt"

// PaymentState tracks the local lifecycle of a payment.
type PaymentState string

const (
	PaymentStateNew               PaymentState = "new"
	PaymentStateAuthorization     PaymentState = "authorization"
	PaymentStateAuthorizationVoid PaymentState = "authorization_voided"
	PaymentStateCompleted         PaymentState = "completed"
	PaymentStatePartiallyRefunded PaymentState = "partially_refunded"
	PaymentStateRefunded          PaymentState = "refunded"
)

var validPaymentStates = []PaymentState{
	PaymentStateNew,
	PaymentStateAuthorization,
	PaymentStateAuthorizationVoid,
	PaymentStateCompleted,
	PaymentStatePartiallyRefunded,
	PaymentStateRefunded,
}

// String implements fmt.Stringer.
func (p PaymentState) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentState.
func (p PaymentState) IsValid() bool {
	for _, candidate := range validPaymentStates {
		if candidate == p {
			return true
		}
	}
	return false
}

// ParsePaymentState converts raw input into a PaymentState.
func ParsePaymentState(value string) (PaymentState, error) {
	for _, candidate := range validPaymentStates {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment state %q", value)
}
