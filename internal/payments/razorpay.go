package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/textutil"
)

const (
	// ProviderRazorpay is the registration key of the Razorpay gateway.
	ProviderRazorpay = "razorpay"

	defaultRazorpayBaseURL = "https://api.razorpay.com/v1"
	defaultGatewayTimeout  = 10 * time.Second
	maxErrorBody           = 4 << 10
)

// Logger receives structured gateway events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// RazorpayConfig configures the Razorpay REST client.
type RazorpayConfig struct {
	BaseURL    string
	KeyID      string
	KeySecret  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     Logger
}

// RazorpayGateway talks to the Razorpay Orders and Payments APIs.
type RazorpayGateway struct {
	baseURL   string
	keyID     string
	keySecret string
	http      *http.Client
	logger    Logger
}

var _ Gateway = (*RazorpayGateway)(nil)

// NewRazorpayGateway constructs a Razorpay client.
func NewRazorpayGateway(cfg RazorpayConfig) (*RazorpayGateway, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keyID == "" || keySecret == "" {
		return nil, errors.New("razorpay: key id and key secret are required")
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultRazorpayBaseURL
	}
	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultGatewayTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &RazorpayGateway{
		baseURL:   baseURL,
		keyID:     keyID,
		keySecret: keySecret,
		http:      client,
		logger:    logger,
	}, nil
}

// Name implements Gateway.
func (g *RazorpayGateway) Name() string { return ProviderRazorpay }

// KeyID returns the public key id handed to the checkout widget.
func (g *RazorpayGateway) KeyID() string { return g.keyID }

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrder struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type razorpayPayment struct {
	ID               string `json:"id"`
	OrderID          string `json:"order_id"`
	Amount           int64  `json:"amount"`
	Currency         string `json:"currency"`
	Status           string `json:"status"`
	Method           string `json:"method"`
	Captured         bool   `json:"captured"`
	ErrorCode        string `json:"error_code"`
	ErrorDescription string `json:"error_description"`
	CreatedAt        int64  `json:"created_at"`
}

type razorpayCollection struct {
	Count int               `json:"count"`
	Items []razorpayPayment `json:"items"`
}

type razorpayCaptureRequest struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type razorpayRefundRequest struct {
	Amount  int64             `json:"amount,omitempty"`
	Receipt string            `json:"receipt,omitempty"`
	Notes   map[string]string `json:"notes,omitempty"`
}

type razorpayRefund struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type razorpayErrorEnvelope struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Reason      string `json:"reason"`
	} `json:"error"`
}

// CreateOrder registers an order with Razorpay. Amounts are in paise.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if req.AmountMinor <= 0 {
		return GatewayOrder{}, &GatewayError{Provider: ProviderRazorpay, Op: "create order", Description: "amount must be positive"}
	}
	body := razorpayOrderRequest{
		Amount:   req.AmountMinor,
		Currency: strings.ToUpper(defaultString(req.Currency, "INR")),
		Receipt:  req.Receipt,
		Notes:    textutil.NormalizeStringMap(req.Notes),
	}
	var out razorpayOrder
	if err := g.do(ctx, "create order", http.MethodPost, "/orders", body, &out); err != nil {
		return GatewayOrder{}, err
	}
	g.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"gatewayOrderId": out.ID,
		"amount":         out.Amount,
		"receipt":        out.Receipt,
	})
	return GatewayOrder{
		ID:          out.ID,
		Provider:    ProviderRazorpay,
		AmountMinor: out.Amount,
		Currency:    out.Currency,
		Receipt:     out.Receipt,
		Status:      out.Status,
		CreatedAt:   unixUTC(out.CreatedAt),
	}, nil
}

// FetchPayment loads one payment.
func (g *RazorpayGateway) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	paymentID = strings.TrimSpace(paymentID)
	if paymentID == "" {
		return Payment{}, &GatewayError{Provider: ProviderRazorpay, Op: "fetch payment", Description: "payment id is required"}
	}
	var out razorpayPayment
	if err := g.do(ctx, "fetch payment", http.MethodGet, "/payments/"+url.PathEscape(paymentID), nil, &out); err != nil {
		return Payment{}, err
	}
	return out.toPayment(), nil
}

// FetchOrderPayments lists every payment attempted against a gateway order.
func (g *RazorpayGateway) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]Payment, error) {
	gatewayOrderID = strings.TrimSpace(gatewayOrderID)
	if gatewayOrderID == "" {
		return nil, &GatewayError{Provider: ProviderRazorpay, Op: "fetch order payments", Description: "order id is required"}
	}
	var out razorpayCollection
	if err := g.do(ctx, "fetch order payments", http.MethodGet, "/orders/"+url.PathEscape(gatewayOrderID)+"/payments", nil, &out); err != nil {
		return nil, err
	}
	payments := make([]Payment, 0, len(out.Items))
	for _, item := range out.Items {
		payments = append(payments, item.toPayment())
	}
	return payments, nil
}

// Capture captures an authorised payment for the given amount.
func (g *RazorpayGateway) Capture(ctx context.Context, req CaptureRequest) (Payment, error) {
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" || req.AmountMinor <= 0 {
		return Payment{}, &GatewayError{Provider: ProviderRazorpay, Op: "capture", Description: "payment id and amount are required"}
	}
	body := razorpayCaptureRequest{
		Amount:   req.AmountMinor,
		Currency: strings.ToUpper(defaultString(req.Currency, "INR")),
	}
	var out razorpayPayment
	if err := g.do(ctx, "capture", http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/capture", body, &out); err != nil {
		return Payment{}, err
	}
	g.logger(ctx, "payments.razorpay.payment.captured", map[string]any{
		"paymentId": out.ID,
		"amount":    out.Amount,
	})
	return out.toPayment(), nil
}

// Refund refunds a captured payment, in full when AmountMinor is zero.
func (g *RazorpayGateway) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	paymentID := strings.TrimSpace(req.PaymentID)
	if paymentID == "" {
		return RefundResult{}, &GatewayError{Provider: ProviderRazorpay, Op: "refund", Description: "payment id is required"}
	}
	notes := textutil.NormalizeStringMap(req.Notes)
	if reason := strings.TrimSpace(req.Reason); reason != "" {
		if notes == nil {
			notes = make(map[string]string, 1)
		}
		notes["reason"] = reason
	}
	body := razorpayRefundRequest{
		Amount:  req.AmountMinor,
		Receipt: req.IdempotencyKey,
		Notes:   notes,
	}
	var out razorpayRefund
	if err := g.do(ctx, "refund", http.MethodPost, "/payments/"+url.PathEscape(paymentID)+"/refund", body, &out); err != nil {
		return RefundResult{}, err
	}
	g.logger(ctx, "payments.razorpay.payment.refunded", map[string]any{
		"paymentId": paymentID,
		"refundId":  out.ID,
		"amount":    out.Amount,
	})
	return RefundResult{
		ID:          out.ID,
		PaymentID:   defaultString(out.PaymentID, paymentID),
		AmountMinor: out.Amount,
		Status:      out.Status,
		CreatedAt:   unixUTC(out.CreatedAt),
	}, nil
}

func (g *RazorpayGateway) do(ctx context.Context, op, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return &GatewayError{Provider: ProviderRazorpay, Op: op, Err: err}
		}
		reader = bytes.NewReader(payload)
	}
	httpReq, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return &GatewayError{Provider: ProviderRazorpay, Op: op, Err: err}
	}
	httpReq.SetBasicAuth(g.keyID, g.keySecret)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	started := time.Now()
	resp, err := g.http.Do(httpReq)
	if err != nil {
		return &GatewayError{Provider: ProviderRazorpay, Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		gwErr := &GatewayError{Provider: ProviderRazorpay, Op: op, StatusCode: resp.StatusCode}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		var envelope razorpayErrorEnvelope
		if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Code != "" {
			gwErr.Code = envelope.Error.Code
			gwErr.Description = envelope.Error.Description
		} else {
			gwErr.Description = strings.TrimSpace(string(raw))
		}
		g.logger(ctx, "payments.razorpay.error", map[string]any{
			"op":         op,
			"status":     resp.StatusCode,
			"code":       gwErr.Code,
			"durationMs": time.Since(started).Milliseconds(),
		})
		return gwErr
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &GatewayError{Provider: ProviderRazorpay, Op: op, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

func (p razorpayPayment) toPayment() Payment {
	return Payment{
		ID:               p.ID,
		OrderID:          p.OrderID,
		Provider:         ProviderRazorpay,
		AmountMinor:      p.Amount,
		Currency:         p.Currency,
		State:            razorpayState(p.Status),
		Method:           p.Method,
		Captured:         p.Captured,
		ErrorCode:        p.ErrorCode,
		ErrorDescription: p.ErrorDescription,
		CreatedAt:        unixUTC(p.CreatedAt),
	}
}

func razorpayState(status string) State {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "authorized":
		return StateAuthorized
	case "captured":
		return StateCaptured
	case "refunded":
		return StateRefunded
	case "failed":
		return StateFailed
	default:
		return StateCreated
	}
}

func unixUTC(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return value
	}
	return fallback
}
