package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/commercebridge/ideal-gateway/api/responses"
	"github.com/commercebridge/ideal-gateway/api/validators"
	"github.com/commercebridge/ideal-gateway/internal/checkout"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
	"github.com/commercebridge/ideal-gateway/pkg/logger"
)

type CheckoutController struct {
	svc  checkout.Service
	logg *logger.Logger
}

func NewCheckoutController(svc checkout.Service, logg *logger.Logger) (*CheckoutController, error) {
	if svc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "checkout service required")
	}
	return &CheckoutController{svc: svc, logg: logg}, nil
}

// CreateRedirect starts the offsite flow: it provisions a payment intent for
// the order's open payment and returns the bank redirect URL. An empty
// redirect_url means intent setup failed upstream and the shopper should retry.
func (c *CheckoutController) CreateRedirect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		responses.WriteError(ctx, c.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id must be a uuid"))
		return
	}

	result, err := c.svc.CreateRedirect(ctx, orderID)
	if err != nil {
		responses.WriteError(ctx, c.logg, w, err)
		return
	}

	responses.WriteSuccess(w, result)
}

// Return handles the shopper coming back from the bank. Stripe appends
// payment_intent and payment_intent_client_secret to the return URL; the
// handler reconciles and sends the browser on to the storefront.
func (c *CheckoutController) Return(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	intentID := r.URL.Query().Get("payment_intent")
	clientSecret := r.URL.Query().Get("payment_intent_client_secret")
	if intentID == "" || clientSecret == "" {
		responses.WriteError(ctx, c.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment_intent and payment_intent_client_secret are required"))
		return
	}

	result, err := c.svc.OnReturn(ctx, intentID, clientSecret)
	if err != nil {
		responses.WriteError(ctx, c.logg, w, err)
		return
	}

	responses.WriteRedirect(w, r, result.RedirectURL)
}

type confirmRequest struct {
	PaymentIntent             string `json:"payment_intent" validate:"required"`
	PaymentIntentClientSecret string `json:"payment_intent_client_secret" validate:"required"`
}

// Confirm is the decoupled completion path: a headless client confirmed the
// intent itself and posts the reference so the gateway can reconcile.
func (c *CheckoutController) Confirm(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	orderID, err := uuid.Parse(chi.URLParam(r, "orderId"))
	if err != nil {
		responses.WriteError(ctx, c.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "order id must be a uuid"))
		return
	}

	var req confirmRequest
	if err := validators.DecodeJSONBody(r, &req); err != nil {
		responses.WriteError(ctx, c.logg, w, err)
		return
	}

	payment, err := c.svc.OnDecoupledReturn(ctx, orderID, req.PaymentIntent, req.PaymentIntentClientSecret)
	if err != nil {
		responses.WriteError(ctx, c.logg, w, err)
		return
	}

	responses.WriteSuccess(w, newPaymentResponse(payment))
}
