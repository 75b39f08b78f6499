package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/commercebridge/ideal-gateway/internal/paymentmethods"
	"github.com/commercebridge/ideal-gateway/internal/payments"
	"github.com/commercebridge/ideal-gateway/internal/reconciler"
	"github.com/commercebridge/ideal-gateway/pkg/config"
	"github.com/commercebridge/ideal-gateway/pkg/db/models"
	"github.com/commercebridge/ideal-gateway/pkg/enums"
	pkgerrors "github.com/commercebridge/ideal-gateway/pkg/errors"
	"github.com/commercebridge/ideal-gateway/pkg/logger"
	"github.com/commercebridge/ideal-gateway/pkg/outbox"
	"github.com/commercebridge/ideal-gateway/pkg/outbox/payloads"
	stripeclient "github.com/commercebridge/ideal-gateway/pkg/stripe"
)

// Service drives the offsite iDEAL redirect flow.
type Service interface {
	CreateRedirect(ctx context.Context, orderID uuid.UUID) (*RedirectResult, error)
	OnReturn(ctx context.Context, intentID, clientSecret string) (*ReturnResult, error)
	OnDecoupledReturn(ctx context.Context, orderID uuid.UUID, intentID, clientSecret string) (*models.Payment, error)
}

// RedirectResult carries the bank redirect URL. An empty URL means the
// gateway could not produce one and the storefront should show a failure.
type RedirectResult struct {
	RedirectURL string `json:"redirect_url"`
}

// ReturnResult is where the shopper's browser is sent after the return flow
// resolves.
type ReturnResult struct {
	RedirectURL string `json:"redirect_url"`
	Completed   bool   `json:"completed"`
}

// ServiceParams groups dependencies for the checkout service.
type ServiceParams struct {
	Repo              payments.Repository
	Gateway           gatewayClient
	Reconciler        reconciler.Service
	Methods           paymentmethods.Service
	Outbox            eventEmitter
	TransactionRunner txRunner
	Config            config.CheckoutConfig
	Logger            *logger.Logger
	Now               func() time.Time
}

type gatewayClient interface {
	CreateIntent(ctx context.Context, params stripeclient.IntentCreateParams) (*stripe.PaymentIntent, error)
	RetrieveIntent(ctx context.Context, id string) (*stripe.PaymentIntent, error)
	ConfirmIntent(ctx context.Context, id, returnURL string) (*stripe.PaymentIntent, error)
	CreateIdealPaymentMethod(ctx context.Context) (*stripe.PaymentMethod, error)
}

type eventEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type service struct {
	repo       payments.Repository
	gateway    gatewayClient
	reconciler reconciler.Service
	methods    paymentmethods.Service
	outbox     eventEmitter
	txRunner   txRunner
	cfg        config.CheckoutConfig
	logg       *logger.Logger
	now        func() time.Time
}

// intentReusable lists the statuses a stored intent can be picked up from
// instead of minting a new one.
var intentReusable = map[stripe.PaymentIntentStatus]bool{
	stripe.PaymentIntentStatusRequiresAction:        true,
	stripe.PaymentIntentStatusRequiresPaymentMethod: true,
	stripe.PaymentIntentStatusRequiresConfirmation:  true,
}

// intentFailed lists the statuses the return flow treats as a failed or
// abandoned bank authorization.
var intentFailed = map[stripe.PaymentIntentStatus]bool{
	stripe.PaymentIntentStatusRequiresPaymentMethod: true,
	stripe.PaymentIntentStatusCanceled:              true,
}

// NewService constructs a checkout service.
func NewService(params ServiceParams) (*service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Gateway == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "gateway client required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Methods == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payment method service required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox emitter required")
	}
	if params.TransactionRunner == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Now == nil {
		params.Now = time.Now
	}

	return &service{
		repo:       params.Repo,
		gateway:    params.Gateway,
		reconciler: params.Reconciler,
		methods:    params.Methods,
		outbox:     params.Outbox,
		txRunner:   params.TransactionRunner,
		cfg:        params.Config,
		logg:       params.Logger,
		now:        params.Now,
	}, nil
}

// CreateRedirect resolves (or mints) the Stripe intent for the order's open
// payment and hands back the bank redirect URL. The payment only moves to
// `authorization` once a confirmed intent exists; Stripe errors surface as an
// empty URL so the storefront can show a generic failure without leaking
// gateway detail.
func (s *service) CreateRedirect(ctx context.Context, orderID uuid.UUID) (*RedirectResult, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	ctx = s.orderCtx(ctx, orderID)

	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if order.IsPaid() {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "order is already paid")
	}

	payment, err := s.openPayment(ctx, order)
	if err != nil {
		return nil, err
	}
	if payment.State != enums.PaymentStateNew {
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "payment is not awaiting redirect")
	}
	if payment.Currency != enums.CurrencyEUR {
		return nil, pkgerrors.New(pkgerrors.CodeDeclined, "iDEAL only supports EUR")
	}

	if order.IntentID != nil && *order.IntentID != "" {
		if result, ok := s.reuseStoredIntent(ctx, order, payment); ok {
			return result, nil
		}
	}

	intent, redirectURL, err := s.mintIntent(ctx, order)
	if err != nil {
		// Treated as a soft failure toward the storefront.
		if s.logg != nil {
			s.logg.Error(ctx, "intent setup failed", err)
		}
		return &RedirectResult{}, nil
	}

	if err := s.persistAuthorization(ctx, order, payment, intent); err != nil {
		return nil, err
	}
	return &RedirectResult{RedirectURL: redirectURL}, nil
}

// reuseStoredIntent picks up the order's stored intent when it is still in a
// pre-authorization status and advertises iDEAL. Returns false when a fresh
// intent is needed.
func (s *service) reuseStoredIntent(ctx context.Context, order *models.Order, payment *models.Payment) (*RedirectResult, bool) {
	intent, err := s.gateway.RetrieveIntent(ctx, *order.IntentID)
	if err != nil {
		if s.logg != nil {
			s.logg.Warn(ctx, "stored intent could not be retrieved")
		}
		return nil, false
	}
	if !reconciler.IsIdealIntent(intent) || !intentReusable[intent.Status] {
		return nil, false
	}

	redirectURL := nextActionURL(intent)
	if redirectURL == "" {
		confirmed, err := s.gateway.ConfirmIntent(ctx, intent.ID, s.cfg.ReturnBaseURL)
		if err != nil {
			if s.logg != nil {
				s.logg.Error(ctx, "stored intent confirmation failed", err)
			}
			return &RedirectResult{}, true
		}
		intent = confirmed
		redirectURL = nextActionURL(intent)
	}

	if err := s.persistAuthorization(ctx, order, payment, intent); err != nil {
		if s.logg != nil {
			s.logg.Error(ctx, "persisting reused intent failed", err)
		}
		return &RedirectResult{}, true
	}
	return &RedirectResult{RedirectURL: redirectURL}, true
}

// mintIntent creates the single-use iDEAL method token, the intent, and
// confirms it so Stripe produces the bank redirect.
func (s *service) mintIntent(ctx context.Context, order *models.Order) (*stripe.PaymentIntent, string, error) {
	method, err := s.gateway.CreateIdealPaymentMethod(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("create payment method token: %w", err)
	}

	intent, err := s.gateway.CreateIntent(ctx, stripeclient.IntentCreateParams{
		AmountCents:     order.TotalCents,
		Currency:        "eur",
		Description:     fmt.Sprintf("Order #%d", order.OrderNumber),
		PaymentMethodID: method.ID,
		Metadata: map[string]string{
			"order_id":   order.ID.String(),
			"store_id":   order.StoreID.String(),
			"store_name": order.StoreName,
			"email":      order.Email,
			"order_no":   strconv.FormatInt(order.OrderNumber, 10),
		},
	})
	if err != nil {
		return nil, "", fmt.Errorf("create intent: %w", err)
	}

	confirmed, err := s.gateway.ConfirmIntent(ctx, intent.ID, s.cfg.ReturnBaseURL)
	if err != nil {
		return nil, "", fmt.Errorf("confirm intent: %w", err)
	}
	return confirmed, nextActionURL(confirmed), nil
}

// persistAuthorization stores the intent reference on the order and moves the
// payment to `authorization` in one transaction.
func (s *service) persistAuthorization(ctx context.Context, order *models.Order, payment *models.Payment, intent *stripe.PaymentIntent) error {
	if payment.State != enums.PaymentStateNew {
		return nil
	}
	next, err := payments.ApplyTransition(payment.State, payments.TransitionAuthorize)
	if err != nil {
		return err
	}
	now := s.now().UTC()

	err = s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if err := txRepo.UpdateOrder(ctx, order.ID, map[string]any{
			"stripe_ideal_intent_id":     intent.ID,
			"stripe_ideal_intent_secret": intent.ClientSecret,
		}); err != nil {
			return err
		}
		return txRepo.UpdatePayment(ctx, payment.ID, map[string]any{
			"state":         next,
			"remote_id":     intent.ID,
			"remote_state":  string(intent.Status),
			"authorized_at": now,
		})
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist authorization")
	}

	payment.State = next
	payment.RemoteID = &intent.ID
	payment.AuthorizedAt = &now
	order.IntentID = &intent.ID
	order.IntentSecret = &intent.ClientSecret

	if s.logg != nil {
		s.logg.Info(s.logg.WithIntentID(ctx, intent.ID), "payment authorized for redirect")
	}
	return nil
}

// OnReturn handles the shopper's browser arriving back from the bank. The
// intent reference must match a local payment and the order's stored secret;
// anything else is an invalid request, not a retryable miss.
func (s *service) OnReturn(ctx context.Context, intentID, clientSecret string) (*ReturnResult, error) {
	payment, order, err := s.reconciler.FindByIntent(ctx, intentID, clientSecret)
	if err != nil {
		if pkgerrors.HasCode(err, pkgerrors.CodePaymentLookup) {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "unrecognized payment return")
		}
		return nil, err
	}
	ctx = s.orderCtx(ctx, order.ID)

	if order.IsPaid() && payment.State != enums.PaymentStateCompleted {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order is already paid")
	}

	if payment.State != enums.PaymentStateCompleted {
		intent, err := s.gateway.RetrieveIntent(ctx, intentID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "retrieve intent")
		}
		switch {
		case intent.Status == stripe.PaymentIntentStatusSucceeded:
			if _, err := s.reconciler.ReconcileSucceeded(ctx, intent); err != nil {
				return nil, err
			}
			payment.State = enums.PaymentStateCompleted
		case intentFailed[intent.Status]:
			if _, err := s.reconciler.ReconcileFailed(ctx, intent); err != nil {
				return nil, err
			}
		default:
			// Processing or still pending at the bank; the webhook settles it.
			if s.logg != nil {
				s.logg.Info(ctx, "return with pending intent status "+string(intent.Status))
			}
		}
	}

	completed := payment.State == enums.PaymentStateCompleted
	return &ReturnResult{
		RedirectURL: s.continueURL(intentID, clientSecret, completed),
		Completed:   completed,
	}, nil
}

// OnDecoupledReturn handles client-side confirmation, where the storefront
// confirmed the intent itself and only reports the outcome. A succeeded
// intent with no local payment row gets one created directly in `completed`.
func (s *service) OnDecoupledReturn(ctx context.Context, orderID uuid.UUID, intentID, clientSecret string) (*models.Payment, error) {
	if orderID == uuid.Nil || intentID == "" || clientSecret == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id and intent reference are required")
	}
	ctx = s.orderCtx(ctx, orderID)

	order, err := s.repo.FindOrderByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}

	intent, err := s.gateway.RetrieveIntent(ctx, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeGateway, err, "retrieve intent")
	}
	if !reconciler.IsIdealIntent(intent) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "intent is not an iDEAL intent")
	}
	if intent.ClientSecret != clientSecret {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "client secret mismatch")
	}

	existing, err := s.repo.FindPaymentByRemoteID(ctx, intentID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}

	switch {
	case intent.Status == stripe.PaymentIntentStatusSucceeded:
		if existing != nil {
			if err := s.adoptIntentSecret(ctx, order, intent); err != nil {
				return nil, err
			}
			if _, err := s.reconciler.ReconcileSucceeded(ctx, intent); err != nil {
				return nil, err
			}
			return s.repo.FindPaymentByID(ctx, existing.ID)
		}
		return s.createCompletedPayment(ctx, order, intent)
	case intentFailed[intent.Status]:
		if existing != nil {
			if _, err := s.reconciler.ReconcileFailed(ctx, intent); err != nil {
				return nil, err
			}
			return s.repo.FindPaymentByID(ctx, existing.ID)
		}
		return nil, pkgerrors.New(pkgerrors.CodeDeclined, "payment was not completed at the bank")
	default:
		return nil, pkgerrors.New(pkgerrors.CodeInvalidState, "intent has not settled yet")
	}
}

// adoptIntentSecret records the intent reference on the order when the
// decoupled client confirmed an intent the gateway never stored.
func (s *service) adoptIntentSecret(ctx context.Context, order *models.Order, intent *stripe.PaymentIntent) error {
	if order.IntentSecret != nil && *order.IntentSecret == intent.ClientSecret {
		return nil
	}
	err := s.repo.UpdateOrder(ctx, order.ID, map[string]any{
		"stripe_ideal_intent_id":     intent.ID,
		"stripe_ideal_intent_secret": intent.ClientSecret,
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store intent reference")
	}
	order.IntentID = &intent.ID
	order.IntentSecret = &intent.ClientSecret
	return nil
}

// createCompletedPayment writes the payment row for a succeeded intent that
// never went through the redirect flow locally.
func (s *service) createCompletedPayment(ctx context.Context, order *models.Order, intent *stripe.PaymentIntent) (*models.Payment, error) {
	now := s.now().UTC()
	payment := &models.Payment{
		ID:           uuid.New(),
		OrderID:      order.ID,
		RemoteID:     &intent.ID,
		State:        enums.PaymentStateCompleted,
		AmountCents:  intent.Amount,
		Currency:     enums.CurrencyEUR,
		AuthorizedAt: &now,
		CompletedAt:  &now,
	}
	remoteState := string(intent.Status)
	payment.RemoteState = &remoteState

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)

		if _, err := txRepo.CreatePayment(ctx, payment); err != nil {
			return err
		}
		method, err := s.methods.EnsureForOrder(ctx, tx, order, intent)
		if err != nil {
			return err
		}
		orderUpdates := map[string]any{
			"stripe_ideal_intent_id":     intent.ID,
			"stripe_ideal_intent_secret": intent.ClientSecret,
			"paid_at":                    now,
		}
		if method != nil {
			orderUpdates["payment_method_id"] = method.ID
			if err := txRepo.UpdatePayment(ctx, payment.ID, map[string]any{
				"payment_method_id": method.ID,
			}); err != nil {
				return err
			}
			payment.PaymentMethodID = &method.ID
		}
		if err := txRepo.UpdateOrder(ctx, order.ID, orderUpdates); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.OutboxEventPaymentSucceeded,
			AggregateType: enums.OutboxAggregatePayment,
			AggregateID:   payment.ID,
			Data: payloads.PaymentEvent{
				PaymentID:   payment.ID,
				OrderID:     order.ID,
				IntentID:    intent.ID,
				State:       payment.State.String(),
				AmountCents: payment.AmountCents,
				Currency:    payment.Currency.String(),
				CompletedAt: &now,
			},
		})
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist completed payment")
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithIntentID(ctx, intent.ID), "decoupled payment completed")
	}
	return payment, nil
}

// openPayment returns the order's current payment row, creating a fresh one
// in `new` when the order has none yet.
func (s *service) openPayment(ctx context.Context, order *models.Order) (*models.Payment, error) {
	payment, err := s.repo.FindPaymentByOrder(ctx, order.ID)
	if err == nil {
		return payment, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
	}
	payment = &models.Payment{
		ID:          uuid.New(),
		OrderID:     order.ID,
		State:       enums.PaymentStateNew,
		AmountCents: order.TotalCents,
		Currency:    order.Currency,
	}
	if _, err := s.repo.CreatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment")
	}
	return payment, nil
}

func (s *service) continueURL(intentID, clientSecret string, completed bool) string {
	if !completed {
		return s.cfg.ContinueBaseURL
	}
	values := url.Values{}
	values.Set("payment_intent", intentID)
	values.Set("payment_intent_client_secret", clientSecret)
	return s.cfg.ContinueBaseURL + "?" + values.Encode()
}

func (s *service) orderCtx(ctx context.Context, orderID uuid.UUID) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithOrderID(ctx, orderID.String())
}

func nextActionURL(intent *stripe.PaymentIntent) string {
	if intent == nil || intent.NextAction == nil || intent.NextAction.RedirectToURL == nil {
		return ""
	}
	return intent.NextAction.RedirectToURL.URL
}
