package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// State enumerates the payment states reported by gateways, normalised across providers.
type State string

const (
	// StateCreated indicates the payment exists but the customer has not authorised it yet.
	StateCreated State = "created"
	// StateAuthorized indicates funds are held and await capture.
	StateAuthorized State = "authorized"
	// StateCaptured indicates the funds were captured.
	StateCaptured State = "captured"
	// StateRefunded indicates the payment was refunded in full.
	StateRefunded State = "refunded"
	// StateFailed indicates the attempt failed and no further action is possible.
	StateFailed State = "failed"
)

var (
	// ErrPaymentGateway is matched by every error returned from a gateway call.
	ErrPaymentGateway = errors.New("payments: gateway error")
	// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
)

// GatewayError describes a failed gateway call.
type GatewayError struct {
	Provider    string
	Op          string
	StatusCode  int
	Code        string
	Description string
	Err         error
}

func (e *GatewayError) Error() string {
	if e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(e.Provider)
	b.WriteString(": ")
	b.WriteString(e.Op)
	if e.StatusCode > 0 {
		fmt.Fprintf(&b, " (http %d)", e.StatusCode)
	}
	if e.Code != "" {
		b.WriteString(" ")
		b.WriteString(e.Code)
	}
	if e.Description != "" {
		b.WriteString(": ")
		b.WriteString(e.Description)
	} else if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *GatewayError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports every GatewayError as ErrPaymentGateway.
func (e *GatewayError) Is(target error) bool {
	return target == ErrPaymentGateway
}

// OrderRequest creates a gateway order the client checkout is opened against.
type OrderRequest struct {
	AmountMinor int64
	Currency    string
	Receipt     string
	Notes       map[string]string
}

// GatewayOrder is the gateway's view of an order.
type GatewayOrder struct {
	ID           string
	Provider     string
	AmountMinor  int64
	Currency     string
	Receipt      string
	Status       string
	ClientSecret string
	CreatedAt    time.Time
}

// Payment is a single payment attempt against a gateway order.
type Payment struct {
	ID               string
	OrderID          string
	Provider         string
	AmountMinor      int64
	Currency         string
	State            State
	Method           string
	Captured         bool
	ErrorCode        string
	ErrorDescription string
	CreatedAt        time.Time
}

// CaptureRequest captures an authorised payment.
type CaptureRequest struct {
	PaymentID   string
	AmountMinor int64
	Currency    string
}

// RefundRequest refunds a captured payment. A zero amount refunds in full.
type RefundRequest struct {
	PaymentID      string
	AmountMinor    int64
	Reason         string
	IdempotencyKey string
	Notes          map[string]string
}

// RefundResult is the gateway's acknowledgement of a refund.
type RefundResult struct {
	ID          string
	PaymentID   string
	AmountMinor int64
	Status      string
	CreatedAt   time.Time
}

// Gateway is the contract implemented by payment provider adapters.
type Gateway interface {
	Name() string
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
	FetchPayment(ctx context.Context, paymentID string) (Payment, error)
	FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]Payment, error)
	Capture(ctx context.Context, req CaptureRequest) (Payment, error)
	Refund(ctx context.Context, req RefundRequest) (RefundResult, error)
}

type providerKey struct{}

// WithProvider hints the manager to route calls made with ctx to the named provider. Orders
// created before a provider switch keep talking to the gateway that owns them.
func WithProvider(ctx context.Context, provider string) context.Context {
	provider = strings.ToLower(strings.TrimSpace(provider))
	if provider == "" {
		return ctx
	}
	return context.WithValue(ctx, providerKey{}, provider)
}

func providerFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	name, _ := ctx.Value(providerKey{}).(string)
	return name
}

// Manager coordinates provider selection and implements Gateway by delegation.
type Manager struct {
	gateways        map[string]Gateway
	defaultProvider string
}

var _ Gateway = (*Manager)(nil)

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider selects the gateway used when the context carries no hint.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.ToLower(strings.TrimSpace(provider))
	}
}

// NewManager constructs a Manager over the supplied gateways.
func NewManager(gateways map[string]Gateway, opts ...ManagerOption) (*Manager, error) {
	if len(gateways) == 0 {
		return nil, errors.New("payments: at least one gateway is required")
	}
	registered := make(map[string]Gateway, len(gateways))
	for k, v := range gateways {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid gateway registration for key %q", k)
		}
		registered[key] = v
	}
	m := &Manager{gateways: registered}
	if _, ok := registered[ProviderRazorpay]; ok {
		m.defaultProvider = ProviderRazorpay
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.defaultProvider != "" {
		if _, ok := registered[m.defaultProvider]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, m.defaultProvider)
		}
	}
	return m, nil
}

// Resolve returns the gateway registered under name, or the default when name is empty.
func (m *Manager) Resolve(name string) (Gateway, error) {
	if m == nil || len(m.gateways) == 0 {
		return nil, errors.New("payments: no gateways registered")
	}
	if key := strings.ToLower(strings.TrimSpace(name)); key != "" {
		if g, ok := m.gateways[key]; ok {
			return g, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedProvider, key)
	}
	if g, ok := m.gateways[m.defaultProvider]; ok {
		return g, nil
	}
	if len(m.gateways) == 1 {
		for _, g := range m.gateways {
			return g, nil
		}
	}
	return nil, ErrUnsupportedProvider
}

func (m *Manager) resolve(ctx context.Context) (Gateway, error) {
	return m.Resolve(providerFromContext(ctx))
}

// Name reports the default provider.
func (m *Manager) Name() string {
	g, err := m.Resolve("")
	if err != nil {
		return ""
	}
	return g.Name()
}

// CreateOrder delegates to the resolved gateway.
func (m *Manager) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	g, err := m.resolve(ctx)
	if err != nil {
		return GatewayOrder{}, err
	}
	order, err := g.CreateOrder(ctx, req)
	if err != nil {
		return GatewayOrder{}, err
	}
	if order.Provider == "" {
		order.Provider = g.Name()
	}
	return order, nil
}

// FetchPayment delegates to the resolved gateway.
func (m *Manager) FetchPayment(ctx context.Context, paymentID string) (Payment, error) {
	g, err := m.resolve(ctx)
	if err != nil {
		return Payment{}, err
	}
	return g.FetchPayment(ctx, paymentID)
}

// FetchOrderPayments delegates to the resolved gateway.
func (m *Manager) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]Payment, error) {
	g, err := m.resolve(ctx)
	if err != nil {
		return nil, err
	}
	return g.FetchOrderPayments(ctx, gatewayOrderID)
}

// Capture delegates to the resolved gateway.
func (m *Manager) Capture(ctx context.Context, req CaptureRequest) (Payment, error) {
	g, err := m.resolve(ctx)
	if err != nil {
		return Payment{}, err
	}
	return g.Capture(ctx, req)
}

// Refund delegates to the resolved gateway.
func (m *Manager) Refund(ctx context.Context, req RefundRequest) (RefundResult, error) {
	g, err := m.resolve(ctx)
	if err != nil {
		return RefundResult{}, err
	}
	return g.Refund(ctx, req)
}
