package payments

import (
	"fmt"

	"github.com/commercebridge/ideal-gateway/pkg/enums"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
)

// Transition is a named edge in the payment lifecycle.
type Transition string

const (
	TransitionAuthorize     Transition = "authorize"
	TransitionCapture       Transition = "capture"
	TransitionVoid          Transition = "void"
	TransitionRefundPartial Transition = "refund_partial"
	TransitionRefundFull    Transition = "refund_full"
)

type edge struct {
	from enums.PaymentState
	to   enums.PaymentState
}

// transitionTable is the single source of truth for which state moves are
// legal. Anything not listed here is rejected.
var transitionTable = map[Transition][]edge{
	TransitionAuthorize: {
		{from: enums.PaymentStateNew, to: enums.PaymentStateAuthorization},
	},
	TransitionCapture: {
		{from: enums.PaymentStateNew, to: enums.PaymentStateCompleted},
		{from: enums.PaymentStateAuthorization, to: enums.PaymentStateCompleted},
	},
	TransitionVoid: {
		{from: enums.PaymentStateAuthorization, to: enums.PaymentStateAuthorizationVoid},
	},
	TransitionRefundPartial: {
		{from: enums.PaymentStateCompleted, to: enums.PaymentStatePartiallyRefunded},
		{from: enums.PaymentStatePartiallyRefunded, to: enums.PaymentStatePartiallyRefunded},
	},
	TransitionRefundFull: {
		{from: enums.PaymentStateCompleted, to: enums.PaymentStateRefunded},
		{from: enums.PaymentStatePartiallyRefunded, to: enums.PaymentStateRefunded},
	},
}

// CanTransition reports whether the transition is legal from the given state.
func CanTransition(from enums.PaymentState, transition Transition) bool {
	_, ok := nextState(from, transition)
	return ok
}

// ApplyTransition resolves the destination state for the transition, or an
// INVALID_STATE error when the move is not in the table.
func ApplyTransition(from enums.PaymentState, transition Transition) (enums.PaymentState, error) {
	to, ok := nextState(from, transition)
	if !ok {
		return "", pkgerrors.New(
			pkgerrors.CodeInvalidState,
			fmt.Sprintf("cannot apply %s from state %s", transition, from),
		)
	}
	return to, nil
}

func nextState(from enums.PaymentState, transition Transition) (enums.PaymentState, bool) {
	for _, candidate := range transitionTable[transition] {
		if candidate.from == from {
			return candidate.to, true
		}
	}
	return "", false
}
