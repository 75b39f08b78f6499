package payments

import (
	"testing"

	"github.com/commercebridge/ideal-gateway/pkg/enums"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
)

func TestApplyTransition(t *testing.T) {
	cases := []struct {
		name       string
		from       enums.PaymentState
		transition Transition
		want       enums.PaymentState
		wantErr    bool
	}{
		{"authorize from new", enums.PaymentStateNew, TransitionAuthorize, enums.PaymentStateAuthorization, false},
		{"capture from authorization", enums.PaymentStateAuthorization, TransitionCapture, enums.PaymentStateCompleted, false},
		{"capture from new", enums.PaymentStateNew, TransitionCapture, enums.PaymentStateCompleted, false},
		{"void authorization", enums.PaymentStateAuthorization, TransitionVoid, enums.PaymentStateAuthorizationVoid, false},
		{"partial refund from completed", enums.PaymentStateCompleted, TransitionRefundPartial, enums.PaymentStatePartiallyRefunded, false},
		{"repeated partial refund", enums.PaymentStatePartiallyRefunded, TransitionRefundPartial, enums.PaymentStatePartiallyRefunded, false},
		{"full refund from completed", enums.PaymentStateCompleted, TransitionRefundFull, enums.PaymentStateRefunded, false},
		{"full refund after partials", enums.PaymentStatePartiallyRefunded, TransitionRefundFull, enums.PaymentStateRefunded, false},
		{"void completed payment", enums.PaymentStateCompleted, TransitionVoid, "", true},
		{"capture voided payment", enums.PaymentStateAuthorizationVoid, TransitionCapture, "", true},
		{"refund voided payment", enums.PaymentStateAuthorizationVoid, TransitionRefundFull, "", true},
		{"refund twice in full", enums.PaymentStateRefunded, TransitionRefundFull, "", true},
		{"authorize twice", enums.PaymentStateAuthorization, TransitionAuthorize, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ApplyTransition(tc.from, tc.transition)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got state %s", got)
				}
				if !pkgerrors.HasCode(err, pkgerrors.CodeInvalidState) {
					t.Fatalf("expected INVALID_STATE, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(enums.PaymentStateAuthorization, TransitionCapture) {
		t.Fatal("capture from authorization should be allowed")
	}
	if CanTransition(enums.PaymentStateRefunded, TransitionCapture) {
		t.Fatal("capture from refunded should be rejected")
	}
}
