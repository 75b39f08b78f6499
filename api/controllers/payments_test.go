package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/commercebridge/ideal-gateway/internal/payments"
	"github.com/commercebridge/ideal-gateway/pkg/db/models"
	"github.com/commercebridge/ideal-gateway/pkg/enums"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
)

type stubPaymentsService struct {
	payment *models.Payment
	err     error

	refundCalls int
	voidCalls   int
	lastID      uuid.UUID
	lastInput   payments.RefundInput
}

func (s *stubPaymentsService) Refund(ctx context.Context, paymentID uuid.UUID, input payments.RefundInput) (*models.Payment, error) {
	s.refundCalls++
	s.lastID = paymentID
	s.lastInput = input
	return s.payment, s.err
}

func (s *stubPaymentsService) Void(ctx context.Context, paymentID uuid.UUID) (*models.Payment, error) {
	s.voidCalls++
	s.lastID = paymentID
	return s.payment, s.err
}

func newPaymentsRouter(t *testing.T, svc payments.Service) *chi.Mux {
	t.Helper()

	ctrl, err := NewPaymentsController(svc, nil)
	if err != nil {
		t.Fatalf("controller setup: %v", err)
	}

	r := chi.NewRouter()
	r.Post("/api/admin/v1/payments/{paymentId}/refund", ctrl.Refund)
	r.Post("/api/admin/v1/payments/{paymentId}/void", ctrl.Void)
	return r
}

func refundedPayment() *models.Payment {
	return &models.Payment{
		ID:            uuid.New(),
		OrderID:       uuid.New(),
		State:         enums.PaymentStateRefunded,
		AmountCents:   5000,
		RefundedCents: 5000,
		Currency:      enums.CurrencyEUR,
	}
}

func TestRefundFullWithoutBody(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentsService{payment: refundedPayment()}
	router := newPaymentsRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payments/"+svc.payment.ID.String()+"/refund", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.refundCalls != 1 {
		t.Fatalf("expected one refund call, got %d", svc.refundCalls)
	}
	if svc.lastInput.AmountCents != nil {
		t.Fatalf("expected full refund (nil amount), got %d", *svc.lastInput.AmountCents)
	}

	var envelope struct {
		Data PaymentResponse `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if envelope.Data.RefundedAmount != "50.00" {
		t.Fatalf("expected refunded amount 50.00, got %q", envelope.Data.RefundedAmount)
	}
}

func TestRefundPartialParsesDecimalAmount(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentsService{payment: refundedPayment()}
	router := newPaymentsRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payments/"+svc.payment.ID.String()+"/refund", strings.NewReader(`{"amount":"12.34"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.lastInput.AmountCents == nil || *svc.lastInput.AmountCents != 1234 {
		t.Fatalf("expected 1234 cents, got %+v", svc.lastInput.AmountCents)
	}
}

func TestRefundRejectsSubCentAmount(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentsService{payment: refundedPayment()}
	router := newPaymentsRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payments/"+uuid.NewString()+"/refund", strings.NewReader(`{"amount":"10.001"}`))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.refundCalls != 0 {
		t.Fatalf("service should not have been called")
	}
}

func TestRefundUnknownPayment(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentsService{err: pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")}
	router := newPaymentsRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payments/"+uuid.NewString()+"/refund", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.Code)
	}
}

func TestVoidSuccess(t *testing.T) {
	t.Parallel()

	payment := &models.Payment{
		ID:          uuid.New(),
		OrderID:     uuid.New(),
		State:       enums.PaymentStateAuthorizationVoid,
		AmountCents: 5000,
		Currency:    enums.CurrencyEUR,
	}
	svc := &stubPaymentsService{payment: payment}
	router := newPaymentsRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payments/"+payment.ID.String()+"/void", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d (%s)", resp.Code, resp.Body.String())
	}
	if svc.voidCalls != 1 || svc.lastID != payment.ID {
		t.Fatalf("expected one void call for %s", payment.ID)
	}
}

func TestVoidRejectsBadPaymentID(t *testing.T) {
	t.Parallel()

	svc := &stubPaymentsService{}
	router := newPaymentsRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/v1/payments/not-a-uuid/void", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 got %d", resp.Code)
	}
	if svc.voidCalls != 0 {
		t.Fatalf("service should not have been called")
	}
}
