package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	stripewebhook "github.com/commercebridge/ideal-gateway/internal/webhooks/stripe"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
)

const testSigningSecret = "whsec_test"

func newController(t *testing.T, svc eventHandler) *StripeController {
	t.Helper()

	guard, err := stripewebhook.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "stripe-webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	ctrl, err := NewStripeController(svc, guard, testSigningSecret, nil)
	if err != nil {
		t.Fatalf("controller setup: %v", err)
	}
	return ctrl
}

func TestStripeWebhookSuccessAndIdempotent(t *testing.T) {
	payload, header := buildSignedEvent(t)
	svc := &fakeEventHandler{}
	ctrl := newController(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	ctrl.Handle(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("expected service called once, got %d", svc.calls)
	}

	// Replay the same event.
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req2.Header.Set("Stripe-Signature", header)
	rec2 := httptest.NewRecorder()
	ctrl.Handle(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d (%s)", rec2.Code, rec2.Body.String())
	}
	if svc.calls != 1 {
		t.Fatalf("expected duplicate not processed, call count %d", svc.calls)
	}
}

func TestStripeWebhookInvalidSignature(t *testing.T) {
	payload, _ := buildSignedEvent(t)
	svc := &fakeEventHandler{}
	ctrl := newController(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", "t=1,v1=invalid")
	rec := httptest.NewRecorder()
	ctrl.Handle(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid signature, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestStripeWebhookMissingSignatureHeader(t *testing.T) {
	payload, _ := buildSignedEvent(t)
	ctrl := newController(t, &fakeEventHandler{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	ctrl.Handle(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing header, got %d", rec.Code)
	}
}

func TestStripeWebhookLookupMissReleasesMark(t *testing.T) {
	payload, header := buildSignedEvent(t)
	svc := &fakeEventHandler{
		err: pkgerrors.New(pkgerrors.CodePaymentLookup, "no payment for intent"),
	}
	ctrl := newController(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req.Header.Set("Stripe-Signature", header)
	rec := httptest.NewRecorder()
	ctrl.Handle(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 so Stripe redelivers, got %d (%s)", rec.Code, rec.Body.String())
	}

	// The mark was released, so the redelivery reaches the service again.
	svc.err = nil
	req2 := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/stripe", bytes.NewReader(payload))
	req2.Header.Set("Stripe-Signature", header)
	rec2 := httptest.NewRecorder()
	ctrl.Handle(rec2, req2)
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on redelivery, got %d", rec2.Code)
	}
	if svc.calls != 2 {
		t.Fatalf("expected redelivery to reach service, call count %d", svc.calls)
	}
}

func buildSignedEvent(t *testing.T) ([]byte, string) {
	t.Helper()

	intent := map[string]any{
		"id":                   "pi_" + uuid.NewString(),
		"client_secret":        "pi_secret_" + uuid.NewString(),
		"status":               "succeeded",
		"payment_method_types": []string{"ideal"},
	}
	rawIntent, err := json.Marshal(intent)
	if err != nil {
		t.Fatalf("marshal intent: %v", err)
	}

	event := &stripe.Event{
		ID:         "evt_" + uuid.NewString(),
		Type:       stripe.EventTypePaymentIntentSucceeded,
		Object:     "event",
		APIVersion: stripe.APIVersion,
		Data: &stripe.EventData{
			Raw: rawIntent,
		},
	}
	payload, err := json.Marshal(event)
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	header := buildStripeSignatureHeader(payload, testSigningSecret, time.Now().Unix())
	return payload, header
}

func buildStripeSignatureHeader(payload []byte, secret string, ts int64) string {
	signedPayload := fmt.Sprintf("%d.%s", ts, payload)
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(signedPayload))
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

type fakeEventHandler struct {
	calls int
	err   error
}

func (f *fakeEventHandler) HandleEvent(ctx context.Context, event *stripe.Event) error {
	f.calls++
	return f.err
}

type inMemoryStore struct {
	mu   sync.Mutex
	data map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{
		data: make(map[string]string),
	}
}

func (s *inMemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data[key], nil
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.data[key]; exists {
		return false, nil
	}
	s.data[key] = fmt.Sprintf("%v", value)
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return fmt.Sprintf("idealgw:idempotency:%s:%s", scope, id)
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.data, key)
	}
	return nil
}
