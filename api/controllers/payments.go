package controllers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/commercebridge/ideal-gateway/api/responses"
	"github.com/commercebridge/ideal-gateway/api/validators"
	"github.com/commercebridge/ideal-gateway/internal/payments"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
	"github.com/commercebridge/ideal-gateway/pkg/logger"
	"github.com/commercebridge/ideal-gateway/pkg/types"
)

type PaymentsController struct {
	svc  payments.Service
	logg *logger.Logger
}

func NewPaymentsController(svc payments.Service, logg *logger.Logger) (*PaymentsController, error) {
	if svc == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	return &PaymentsController{svc: svc, logg: logg}, nil
}

type refundRequest struct {
	// Amount is a major-unit decimal string, e.g. "12.34". Omitted means
	// refund the full remaining balance.
	Amount *string `json:"amount" validate:"omitempty,min=1"`
}

func (c *PaymentsController) Refund(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentId"))
	if err != nil {
		responses.WriteError(ctx, c.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment id must be a uuid"))
		return
	}

	input := payments.RefundInput{}
	if r.ContentLength != 0 {
		var req refundRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, c.logg, w, err)
			return
		}
		if req.Amount != nil {
			cents, err := types.ParseMinorUnits(*req.Amount)
			if err != nil {
				responses.WriteError(ctx, c.logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid refund amount"))
				return
			}
			input.AmountCents = &cents
		}
	}

	payment, err := c.svc.Refund(ctx, paymentID, input)
	if err != nil {
		responses.WriteError(ctx, c.logg, w, err)
		return
	}

	responses.WriteSuccess(w, newPaymentResponse(payment))
}

func (c *PaymentsController) Void(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	paymentID, err := uuid.Parse(chi.URLParam(r, "paymentId"))
	if err != nil {
		responses.WriteError(ctx, c.logg, w, pkgerrors.New(pkgerrors.CodeValidation, "payment id must be a uuid"))
		return
	}

	payment, err := c.svc.Void(ctx, paymentID)
	if err != nil {
		responses.WriteError(ctx, c.logg, w, err)
		return
	}

	responses.WriteSuccess(w, newPaymentResponse(payment))
}
