package domain

import (
	"strings"
	"time"
)

// Product is the catalog entry an order line refers to. The catalog is maintained elsewhere;
// checkout only reads it.
type Product struct {
	ID          string
	Name        string
	Category    string
	Active      bool
	ImageURL    string
	Variants    []ProductVariant
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Description string
}

// ProductVariant is a sellable size of a product.
type ProductVariant struct {
	ID        string
	ProductID string
	Size      string
	SKU       string
	Price     Money
	Stock     int
	Available bool
	WeightKg  float64
}

// Variant returns the variant matching size, ignoring case.
func (p Product) Variant(size string) (ProductVariant, bool) {
	size = strings.TrimSpace(size)
	for _, v := range p.Variants {
		if strings.EqualFold(v.Size, size) {
			return v, true
		}
	}
	return ProductVariant{}, false
}

// ShippingDetails is the flattened delivery contact and address stored on an order.
type ShippingDetails struct {
	FullName     string
	Email        string
	Phone        string
	AddressLine1 string
	AddressLine2 string
	City         string
	State        string
	PostalCode   string
	Country      string
	Notes        string
}

// OrderItem is a frozen copy of the catalog line at checkout time. It is never re-derived.
type OrderItem struct {
	ProductID   string
	ProductName string
	VariantID   string
	Size        string
	SKU         string
	UnitPrice   Money
	Quantity    int
	Subtotal    Money
	WeightKg    float64
}

// PaymentInfo records gateway identifiers and verification metadata.
type PaymentInfo struct {
	Provider          string
	GatewayOrderID    string
	GatewayPaymentID  string
	SignatureVerified bool
	Method            string
	FailureReason     string
	VerifiedAt        *time.Time
	CapturedAt        *time.Time
	FailedAt          *time.Time
	DisputedAt        *time.Time
}

// ShipmentInfo records the aggregator booking for an order.
type ShipmentInfo struct {
	Status            ShipmentStatus
	ProviderOrderID   string
	ShipmentID        string
	Courier           string
	TrackingCode      string
	TrackingURL       string
	LastEvent         string
	EstimatedDelivery *time.Time
	DeliveredAt       *time.Time
	UpdatedAt         *time.Time
}

// Refund is one refund issued against an order payment.
type Refund struct {
	ID        string
	GatewayID string
	Amount    Money
	Reason    string
	Status    string
	CreatedBy string
	CreatedAt time.Time
}

// Order is the durable result of a validated checkout.
type Order struct {
	ID             string
	OrderNumber    string
	UserID         string
	GuestSession   string
	Items          []OrderItem
	Subtotal       Money
	CouponCode     string
	CouponID       string
	CouponDiscount Money
	TotalAmount    Money
	Currency       string
	Shipping       ShippingDetails
	Status         OrderStatus
	PaymentStatus  PaymentStatus
	Payment        PaymentInfo
	Shipment       ShipmentInfo
	Refunds        []Refund
	CancelReason   string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	PaidAt         *time.Time
	ShippedAt      *time.Time
	DeliveredAt    *time.Time
	CancelledAt    *time.Time
}

// OwnedBy reports whether the order belongs to the given user or guest session.
func (o Order) OwnedBy(userID, guestSession string) bool {
	if userID != "" && o.UserID == userID {
		return true
	}
	return guestSession != "" && o.GuestSession == guestSession
}

// RefundedAmount sums recorded refunds.
func (o Order) RefundedAmount() Money {
	total := Zero
	for _, r := range o.Refunds {
		total = total.Add(r.Amount)
	}
	return total
}

// Pagination carries cursor paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// Page is one page of results with the token for the next page.
type Page[T any] struct {
	Items         []T
	NextPageToken string
}
