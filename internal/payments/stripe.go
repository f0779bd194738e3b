package payments

import (
	"context"
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/textutil"
)

// ProviderStripe is the registration key of the Stripe gateway.
const ProviderStripe = "stripe"

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Capture(id string, params *stripe.PaymentIntentCaptureParams) (*stripe.PaymentIntent, error)
}

type stripeRefundAPI interface {
	New(params *stripe.RefundParams) (*stripe.Refund, error)
}

type stripeClients struct {
	intents stripePaymentIntentAPI
	refunds stripeRefundAPI
}

// StripeConfig configures the StripeGateway.
type StripeConfig struct {
	APIKey    string
	AccountID string
	Backends  *stripe.Backends
	Logger    Logger
	Clients   *stripeClients
}

// StripeGateway maps Stripe Payment Intents with manual capture onto Gateway. The intent
// plays the role of both the gateway order and the payment.
type StripeGateway struct {
	api     stripeClients
	account string
	logger  Logger
}

var _ Gateway = (*StripeGateway)(nil)

// NewStripeGateway constructs a Stripe gateway.
func NewStripeGateway(cfg StripeConfig) (*StripeGateway, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" && cfg.Clients == nil {
		return nil, errors.New("stripe: api key is required")
	}

	var clients stripeClients
	if cfg.Clients != nil {
		clients = *cfg.Clients
	} else {
		sc := client.New(apiKey, cfg.Backends)
		clients = stripeClients{
			intents: sc.PaymentIntents,
			refunds: sc.Refunds,
		}
	}
	if clients.intents == nil || clients.refunds == nil {
		return nil, errors.New("stripe: payment intent and refund clients are required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeGateway{
		api:     clients,
		account: strings.TrimSpace(cfg.AccountID),
		logger:  logger,
	}, nil
}

// Name implements Gateway.
func (g *StripeGateway) Name() string { return ProviderStripe }

// CreateOrder creates a Payment Intent that holds funds until captured.
func (g *StripeGateway) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if req.AmountMinor <= 0 {
		return GatewayOrder{}, &GatewayError{Provider: ProviderStripe, Op: "create order", Description: "amount must be positive"}
	}
	params := &stripe.PaymentIntentParams{
		Amount:        stripe.Int64(req.AmountMinor),
		Currency:      stripe.String(strings.ToLower(defaultString(req.Currency, "INR"))),
		CaptureMethod: stripe.String(string(stripe.PaymentIntentCaptureMethodManual)),
	}
	params.Context = ctx
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if receipt := strings.TrimSpace(req.Receipt); receipt != "" {
		params.Description = stripe.String(receipt)
		params.AddMetadata("receipt", receipt)
		params.SetIdempotencyKey("order-" + receipt)
	}
	for k, v := range textutil.NormalizeStringMap(req.Notes) {
		params.AddMetadata(k, v)
	}

	intent, err := g.api.intents.New(params)
	if err != nil {
		return GatewayOrder{}, stripeGatewayError("create order", err)
	}
	g.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": intent.ID,
		"amount":        intent.Amount,
	})
	return GatewayOrder{
		ID:           intent.ID,
		Provider:     ProviderStripe,
		AmountMinor:  intent.Amount,
		Currency:     strings.ToUpper(string(intent.Currency)),
		Receipt:      strings.TrimSpace(req.Receipt),
		Status:       string(intent.Status),
		ClientSecret: intent.ClientSecret,
		CreatedAt:    unixUTC(intent.Created),
	}, nil
}

// FetchPayment retrieves the Payment Intent.
func (g *StripeGateway) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	intent, err := g.get(ctx, "fetch payment", paymentID)
	if err != nil {
		return Payment{}, err
	}
	return stripePayment(intent), nil
}

// FetchOrderPayments returns the intent as a single payment once the customer has acted on it.
func (g *StripeGateway) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]Payment, error) {
	intent, err := g.get(ctx, "fetch order payments", gatewayOrderID)
	if err != nil {
		return nil, err
	}
	payment := stripePayment(intent)
	if payment.State == StateCreated {
		return nil, nil
	}
	return []Payment{payment}, nil
}

// Capture captures a Payment Intent in requires_capture state.
func (g *StripeGateway) Capture(ctx context.Context, req CaptureRequest) (Payment, error) {
	id := strings.TrimSpace(req.PaymentID)
	if id == "" {
		return Payment{}, &GatewayError{Provider: ProviderStripe, Op: "capture", Description: "payment intent id is required"}
	}
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	params.SetIdempotencyKey("capture-" + id)
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if req.AmountMinor > 0 {
		params.AmountToCapture = stripe.Int64(req.AmountMinor)
	}
	intent, err := g.api.intents.Capture(id, params)
	if err != nil {
		return Payment{}, stripeGatewayError("capture", err)
	}
	g.logger(ctx, "payments.stripe.intent.captured", map[string]any{
		"paymentIntent":  intent.ID,
		"amountReceived": intent.AmountReceived,
	})
	return stripePayment(intent), nil
}

// Refund creates a refund for the Payment Intent.
func (g *StripeGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	id := strings.TrimSpace(req.PaymentID)
	if id == "" {
		return RefundResult{}, &GatewayError{Provider: ProviderStripe, Op: "refund", Description: "payment intent id is required"}
	}
	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(id),
	}
	params.Context = ctx
	if key := strings.TrimSpace(req.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	if req.AmountMinor > 0 {
		params.Amount = stripe.Int64(req.AmountMinor)
	}
	if reason := mapStripeRefundReason(req.Reason); reason != "" {
		params.Reason = stripe.String(reason)
	}
	for k, v := range textutil.NormalizeStringMap(req.Notes) {
		params.AddMetadata(k, v)
	}
	refund, err := g.api.refunds.New(params)
	if err != nil {
		return RefundResult{}, stripeGatewayError("refund", err)
	}
	g.logger(ctx, "payments.stripe.intent.refunded", map[string]any{
		"paymentIntent": id,
		"refundId":      refund.ID,
	})
	return RefundResult{
		ID:          refund.ID,
		PaymentID:   id,
		AmountMinor: refund.Amount,
		Status:      string(refund.Status),
		CreatedAt:   unixUTC(refund.Created),
	}, nil
}

func (g *StripeGateway) get(ctx context.Context, op, id string) (*stripe.PaymentIntent, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, &GatewayError{Provider: ProviderStripe, Op: op, Description: "payment intent id is required"}
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	params.AddExpand("latest_charge")
	if g.account != "" {
		params.SetStripeAccount(g.account)
	}
	intent, err := g.api.intents.Get(id, params)
	if err != nil {
		return nil, stripeGatewayError(op, err)
	}
	return intent, nil
}

func stripePayment(intent *stripe.PaymentIntent) Payment {
	if intent == nil {
		return Payment{}
	}
	payment := Payment{
		ID:          intent.ID,
		OrderID:     intent.ID,
		Provider:    ProviderStripe,
		AmountMinor: intent.Amount,
		Currency:    strings.ToUpper(string(intent.Currency)),
		CreatedAt:   unixUTC(intent.Created),
	}
	if len(intent.PaymentMethodTypes) > 0 {
		payment.Method = intent.PaymentMethodTypes[0]
	}

	switch intent.Status {
	case stripe.PaymentIntentStatusRequiresCapture:
		payment.State = StateAuthorized
	case stripe.PaymentIntentStatusSucceeded:
		payment.State = StateCaptured
		payment.Captured = true
	case stripe.PaymentIntentStatusCanceled:
		payment.State = StateFailed
	default:
		payment.State = StateCreated
	}
	if lastErr := intent.LastPaymentError; lastErr != nil {
		payment.ErrorCode = string(lastErr.Code)
		payment.ErrorDescription = lastErr.Msg
		if payment.State == StateCreated {
			payment.State = StateFailed
		}
	}
	if charge := intent.LatestCharge; charge != nil && charge.Amount > 0 && charge.AmountRefunded >= charge.Amount {
		payment.State = StateRefunded
	}
	return payment
}

func stripeGatewayError(op string, err error) error {
	gwErr := &GatewayError{Provider: ProviderStripe, Op: op, Err: err}
	var stripeErr *stripe.Error
	if errors.As(err, &stripeErr) {
		gwErr.StatusCode = stripeErr.HTTPStatusCode
		gwErr.Code = string(stripeErr.Code)
		gwErr.Description = stripeErr.Msg
	}
	return gwErr
}

func mapStripeRefundReason(reason string) string {
	switch strings.ToLower(strings.TrimSpace(reason)) {
	case string(stripe.RefundReasonDuplicate):
		return string(stripe.RefundReasonDuplicate)
	case string(stripe.RefundReasonFraudulent):
		return string(stripe.RefundReasonFraudulent)
	case string(stripe.RefundReasonRequestedByCustomer):
		return string(stripe.RefundReasonRequestedByCustomer)
	default:
		return ""
	}
}
