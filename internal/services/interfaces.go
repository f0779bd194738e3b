package services

import (
	"context"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/payments"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/shipping"
)

// Domain type aliases keep service signatures short while models live in internal/domain.
type (
	Order           = domain.Order
	OrderItem       = domain.OrderItem
	OrderStatus     = domain.OrderStatus
	Cart            = domain.Cart
	CartItem        = domain.CartItem
	Coupon          = domain.Coupon
	CouponUsage     = domain.CouponUsage
	Money           = domain.Money
	ShippingDetails = domain.ShippingDetails
	HealthReport    = domain.HealthReport
)

// Logger receives structured service events. main adapts it onto zap.
type Logger func(ctx context.Context, event string, fields map[string]any)

// Viewer identifies the caller acting on an order or cart. UserID is the Firebase uid; GuestSession is
// the server-issued anonymous token used when the caller is not signed in.
type Viewer struct {
	UserID       string
	GuestSession string
	Admin        bool
}

// ActorID returns the best identifier for audit fields.
func (v Viewer) ActorID() string {
	if v.UserID != "" {
		return v.UserID
	}
	if v.GuestSession != "" {
		return "guest:" + v.GuestSession
	}
	return ""
}

// OrderService validates checkouts into persisted orders and manages their lifecycle.
type OrderService interface {
	CreateOrder(ctx context.Context, cmd CreateOrderCommand) (Order, error)
	GetOrder(ctx context.Context, orderID string, viewer Viewer) (Order, error)
	ListOrders(ctx context.Context, filter OrderListFilter) (domain.Page[Order], error)
	CancelOrder(ctx context.Context, cmd CancelOrderCommand) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
}

// CouponService validates, applies and administers coupons.
type CouponService interface {
	ValidateCoupon(ctx context.Context, cmd ValidateCouponCommand) (CouponQuote, error)
	CalculateDiscount(coupon Coupon, orderAmount Money) Money
	ApplyCoupon(ctx context.Context, cmd ApplyCouponCommand) (CouponUsage, error)
	CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error)
	GetCoupon(ctx context.Context, couponID string) (Coupon, error)
	ListCoupons(ctx context.Context, filter CouponListFilter) (domain.Page[Coupon], error)
	DeleteCoupon(ctx context.Context, couponID string) error
	ListUsages(ctx context.Context, couponID string, pager domain.Pagination) (domain.Page[CouponUsage], error)
}

// PaymentService drives the payment state of orders from the verify call, gateway webhooks and the
// reconciliation job.
type PaymentService interface {
	CreateGatewayOrder(ctx context.Context, cmd CreatePaymentOrderCommand) (PaymentSession, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error)
	HandleWebhook(ctx context.Context, event payments.WebhookEvent) error
	ReconcilePending(ctx context.Context, cmd ReconcileCommand) (ReconcileReport, error)
	RefundPayment(ctx context.Context, cmd RefundCommand) (Order, error)
}

// ShipmentService books shipments for paid orders and applies tracking updates.
type ShipmentService interface {
	CreateShipment(ctx context.Context, cmd CreateShipmentCommand) (Order, error)
	Track(ctx context.Context, identifier string) (TrackingResult, error)
	HandleWebhook(ctx context.Context, event shipping.WebhookEvent) error
	CancelShipment(ctx context.Context, cmd CancelShipmentCommand) (Order, error)
}

// CartService manages the pre-checkout cart of a signed-in user or guest session.
type CartService interface {
	GetCart(ctx context.Context, owner Viewer) (Cart, error)
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, owner Viewer, itemID string) (Cart, error)
	ClearCart(ctx context.Context, owner Viewer) error
	MergeGuestCart(ctx context.Context, userID, guestSession string) (Cart, error)
}

// CounterService issues human readable sequence numbers.
type CounterService interface {
	NextOrderNumber(ctx context.Context) (string, error)
}

// SystemService reports service health.
type SystemService interface {
	HealthReport(ctx context.Context) (HealthReport, error)
}

// OrderLineInput is one line of a checkout as submitted by the client.
type OrderLineInput struct {
	ProductID string
	Size      string
	Quantity  int
	Price     Money
}

// CouponInput carries the discount the client applied at checkout.
type CouponInput struct {
	Code           string
	CouponID       string
	DiscountAmount Money
}

// CreateOrderCommand is a checkout request.
type CreateOrderCommand struct {
	Viewer      Viewer
	Items       []OrderLineInput
	TotalAmount Money
	Coupon      *CouponInput
	Shipping    ShippingDetails
}

// OrderListFilter scopes an order listing. Admin viewers may leave UserID empty to list everything.
type OrderListFilter struct {
	Viewer     Viewer
	UserID     string
	Status     []OrderStatus
	Pagination domain.Pagination
}

// CancelOrderCommand cancels an order on behalf of its owner or an admin.
type CancelOrderCommand struct {
	OrderID string
	Viewer  Viewer
	Reason  string
}

// UpdateOrderStatusCommand is an admin status change.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  OrderStatus
	ActorID string
	Reason  string
}

// ValidateCouponCommand checks a code against an order amount.
type ValidateCouponCommand struct {
	Code        string
	OrderAmount Money
	UserID      string
}

// CouponQuote is the outcome of a successful validation.
type CouponQuote struct {
	Coupon         Coupon
	DiscountAmount Money
	FinalAmount    Money
}

// ApplyCouponCommand records a coupon application against an order.
type ApplyCouponCommand struct {
	CouponID       string
	OrderID        string
	OrderAmount    Money
	DiscountAmount Money
	UserID         string
}

// UpsertCouponCommand creates or replaces a coupon definition.
type UpsertCouponCommand struct {
	Coupon  Coupon
	ActorID string
}

// CouponListFilter scopes admin coupon listings.
type CouponListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

// CreatePaymentOrderCommand opens a gateway order for an existing order.
type CreatePaymentOrderCommand struct {
	OrderID string
	Amount  Money
	Viewer  Viewer
}

// PaymentPrefill is handed to the checkout widget.
type PaymentPrefill struct {
	Name    string
	Email   string
	Contact string
}

// PaymentSession is everything the client needs to open the gateway checkout.
type PaymentSession struct {
	OrderID        string
	OrderNumber    string
	Provider       string
	GatewayOrderID string
	KeyID          string
	ClientSecret   string
	Amount         Money
	AmountMinor    int64
	Currency       string
	Prefill        PaymentPrefill
}

// VerifyPaymentCommand carries the gateway callback values posted by the checkout widget.
type VerifyPaymentCommand struct {
	OrderID          string
	GatewayOrderID   string
	GatewayPaymentID string
	Signature        string
	Viewer           Viewer
}

// ShipmentSnapshot is the shipping state returned alongside a verified payment.
type ShipmentSnapshot struct {
	Status            domain.ShipmentStatus
	Courier           string
	TrackingCode      string
	TrackingURL       string
	EstimatedDelivery *time.Time
}

// VerifyPaymentResult reports the confirmed order and the outcome of the follow-up steps. The
// follow-up errors never fail the verification itself.
type VerifyPaymentResult struct {
	Order         Order
	Shipment      *ShipmentSnapshot
	CaptureError  error
	ShipmentError error
}

// ReconcileCommand configures a reconciliation sweep.
type ReconcileCommand struct {
	OlderThan time.Duration
	Limit     int
}

// ReconcileReport summarises a reconciliation sweep.
type ReconcileReport struct {
	Checked   int
	Completed int
	Failed    int
	Unchanged int
	Errors    int
}

// RefundCommand refunds part or all of a captured payment.
type RefundCommand struct {
	OrderID        string
	Amount         Money
	Reason         string
	ActorID        string
	IdempotencyKey string
}

// CreateShipmentCommand books a shipment for a paid order.
type CreateShipmentCommand struct {
	OrderID string
	ActorID string
}

// CancelShipmentCommand cancels a booked shipment.
type CancelShipmentCommand struct {
	OrderID string
	ActorID string
}

// TrackingResult is the stored shipment state plus live carrier activity when it could be fetched.
type TrackingResult struct {
	OrderID     string
	OrderNumber string
	Shipment    domain.ShipmentInfo
	Activities  []shipping.Activity
	Live        bool
}

// AddCartItemCommand adds a product variant to a cart.
type AddCartItemCommand struct {
	Owner     Viewer
	ProductID string
	Size      string
	Quantity  int
}

// UpdateCartItemCommand sets the quantity of a cart line. Zero removes the line.
type UpdateCartItemCommand struct {
	Owner    Viewer
	ItemID   string
	Quantity int
}
