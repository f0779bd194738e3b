package firestore

import (
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
)

// Amounts are stored as doubles in rupees so documents stay readable in the console and
// compatible with the storefront's existing data.

type orderItemDocument struct {
	ProductID   string  `firestore:"productId"`
	ProductName string  `firestore:"productName"`
	VariantID   string  `firestore:"variantId"`
	Size        string  `firestore:"size"`
	SKU         string  `firestore:"sku,omitempty"`
	UnitPrice   float64 `firestore:"price"`
	Quantity    int     `firestore:"quantity"`
	Subtotal    float64 `firestore:"subtotal"`
	WeightKg    float64 `firestore:"weightKg,omitempty"`
}

type shippingDocument struct {
	FullName     string `firestore:"fullName"`
	Email        string `firestore:"email"`
	Phone        string `firestore:"phone"`
	AddressLine1 string `firestore:"addressLine1"`
	AddressLine2 string `firestore:"addressLine2,omitempty"`
	City         string `firestore:"city"`
	State        string `firestore:"state"`
	PostalCode   string `firestore:"postalCode"`
	Country      string `firestore:"country"`
	Notes        string `firestore:"notes,omitempty"`
}

type paymentDocument struct {
	Provider          string     `firestore:"provider,omitempty"`
	GatewayOrderID    string     `firestore:"gatewayOrderId,omitempty"`
	GatewayPaymentID  string     `firestore:"gatewayPaymentId,omitempty"`
	SignatureVerified bool       `firestore:"signatureVerified"`
	Method            string     `firestore:"method,omitempty"`
	FailureReason     string     `firestore:"failureReason,omitempty"`
	VerifiedAt        *time.Time `firestore:"verifiedAt,omitempty"`
	CapturedAt        *time.Time `firestore:"capturedAt,omitempty"`
	FailedAt          *time.Time `firestore:"failedAt,omitempty"`
	DisputedAt        *time.Time `firestore:"disputedAt,omitempty"`
}

type shipmentDocument struct {
	Status            string     `firestore:"status,omitempty"`
	ProviderOrderID   string     `firestore:"providerOrderId,omitempty"`
	ShipmentID        string     `firestore:"shipmentId,omitempty"`
	Courier           string     `firestore:"courier,omitempty"`
	TrackingCode      string     `firestore:"trackingCode,omitempty"`
	TrackingURL       string     `firestore:"trackingUrl,omitempty"`
	LastEvent         string     `firestore:"lastEvent,omitempty"`
	EstimatedDelivery *time.Time `firestore:"estimatedDelivery,omitempty"`
	DeliveredAt       *time.Time `firestore:"deliveredAt,omitempty"`
	UpdatedAt         *time.Time `firestore:"updatedAt,omitempty"`
}

type refundDocument struct {
	ID        string    `firestore:"id"`
	GatewayID string    `firestore:"gatewayId,omitempty"`
	Amount    float64   `firestore:"amount"`
	Reason    string    `firestore:"reason,omitempty"`
	Status    string    `firestore:"status"`
	CreatedBy string    `firestore:"createdBy,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
}

type orderDocument struct {
	OrderNumber    string              `firestore:"orderNumber"`
	UserID         string              `firestore:"userId,omitempty"`
	GuestSession   string              `firestore:"guestSession,omitempty"`
	Items          []orderItemDocument `firestore:"items"`
	Subtotal       float64             `firestore:"subtotal"`
	CouponCode     string              `firestore:"couponCode,omitempty"`
	CouponID       string              `firestore:"couponId,omitempty"`
	CouponDiscount float64             `firestore:"couponDiscount"`
	TotalAmount    float64             `firestore:"totalAmount"`
	Currency       string              `firestore:"currency"`
	Shipping       shippingDocument    `firestore:"shipping"`
	Status         string              `firestore:"status"`
	PaymentStatus  string              `firestore:"paymentStatus"`
	Payment        paymentDocument     `firestore:"payment"`
	Shipment       shipmentDocument    `firestore:"shipment"`

	// Lookup fields are duplicated at the top level so they can be indexed.
	GatewayOrderID   string           `firestore:"gatewayOrderId,omitempty"`
	GatewayPaymentID string           `firestore:"gatewayPaymentId,omitempty"`
	TrackingCode     string           `firestore:"trackingCode,omitempty"`
	Refunds          []refundDocument `firestore:"refunds,omitempty"`
	CancelReason     string           `firestore:"cancelReason,omitempty"`
	CreatedAt        time.Time        `firestore:"createdAt"`
	UpdatedAt        time.Time        `firestore:"updatedAt"`
	PaidAt           *time.Time       `firestore:"paidAt,omitempty"`
	ShippedAt        *time.Time       `firestore:"shippedAt,omitempty"`
	DeliveredAt      *time.Time       `firestore:"deliveredAt,omitempty"`
	CancelledAt      *time.Time       `firestore:"cancelledAt,omitempty"`
}

func newOrderDocument(o domain.Order) orderDocument {
	doc := orderDocument{
		OrderNumber:    o.OrderNumber,
		UserID:         o.UserID,
		GuestSession:   o.GuestSession,
		Subtotal:       o.Subtotal.InexactFloat64(),
		CouponCode:     o.CouponCode,
		CouponID:       o.CouponID,
		CouponDiscount: o.CouponDiscount.InexactFloat64(),
		TotalAmount:    o.TotalAmount.InexactFloat64(),
		Currency:       o.Currency,
		Shipping:       shippingDocument(o.Shipping),
		Status:         string(o.Status),
		PaymentStatus:  string(o.PaymentStatus),
		Payment:        paymentDocument(o.Payment),
		Shipment: shipmentDocument{
			Status:            string(o.Shipment.Status),
			ProviderOrderID:   o.Shipment.ProviderOrderID,
			ShipmentID:        o.Shipment.ShipmentID,
			Courier:           o.Shipment.Courier,
			TrackingCode:      o.Shipment.TrackingCode,
			TrackingURL:       o.Shipment.TrackingURL,
			LastEvent:         o.Shipment.LastEvent,
			EstimatedDelivery: utcPtr(o.Shipment.EstimatedDelivery),
			DeliveredAt:       utcPtr(o.Shipment.DeliveredAt),
			UpdatedAt:         utcPtr(o.Shipment.UpdatedAt),
		},
		GatewayOrderID:   o.Payment.GatewayOrderID,
		GatewayPaymentID: o.Payment.GatewayPaymentID,
		TrackingCode:     o.Shipment.TrackingCode,
		CancelReason:     o.CancelReason,
		CreatedAt:        o.CreatedAt.UTC(),
		UpdatedAt:        o.UpdatedAt.UTC(),
		PaidAt:           utcPtr(o.PaidAt),
		ShippedAt:        utcPtr(o.ShippedAt),
		DeliveredAt:      utcPtr(o.DeliveredAt),
		CancelledAt:      utcPtr(o.CancelledAt),
	}
	for _, item := range o.Items {
		doc.Items = append(doc.Items, orderItemDocument{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			Size:        item.Size,
			SKU:         item.SKU,
			UnitPrice:   item.UnitPrice.InexactFloat64(),
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal.InexactFloat64(),
			WeightKg:    item.WeightKg,
		})
	}
	for _, refund := range o.Refunds {
		doc.Refunds = append(doc.Refunds, refundDocument{
			ID:        refund.ID,
			GatewayID: refund.GatewayID,
			Amount:    refund.Amount.InexactFloat64(),
			Reason:    refund.Reason,
			Status:    refund.Status,
			CreatedBy: refund.CreatedBy,
			CreatedAt: refund.CreatedAt.UTC(),
		})
	}
	return doc
}

func (d orderDocument) toDomain(id string) domain.Order {
	order := domain.Order{
		ID:             id,
		OrderNumber:    d.OrderNumber,
		UserID:         d.UserID,
		GuestSession:   d.GuestSession,
		Subtotal:       domain.MoneyFromFloat(d.Subtotal),
		CouponCode:     d.CouponCode,
		CouponID:       d.CouponID,
		CouponDiscount: domain.MoneyFromFloat(d.CouponDiscount),
		TotalAmount:    domain.MoneyFromFloat(d.TotalAmount),
		Currency:       d.Currency,
		Shipping:       domain.ShippingDetails(d.Shipping),
		Status:         domain.OrderStatus(d.Status),
		PaymentStatus:  domain.PaymentStatus(d.PaymentStatus),
		Payment:        domain.PaymentInfo(d.Payment),
		Shipment: domain.ShipmentInfo{
			Status:            domain.ShipmentStatus(d.Shipment.Status),
			ProviderOrderID:   d.Shipment.ProviderOrderID,
			ShipmentID:        d.Shipment.ShipmentID,
			Courier:           d.Shipment.Courier,
			TrackingCode:      d.Shipment.TrackingCode,
			TrackingURL:       d.Shipment.TrackingURL,
			LastEvent:         d.Shipment.LastEvent,
			EstimatedDelivery: d.Shipment.EstimatedDelivery,
			DeliveredAt:       d.Shipment.DeliveredAt,
			UpdatedAt:         d.Shipment.UpdatedAt,
		},
		CancelReason: d.CancelReason,
		CreatedAt:    d.CreatedAt,
		UpdatedAt:    d.UpdatedAt,
		PaidAt:       d.PaidAt,
		ShippedAt:    d.ShippedAt,
		DeliveredAt:  d.DeliveredAt,
		CancelledAt:  d.CancelledAt,
	}
	for _, item := range d.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			Size:        item.Size,
			SKU:         item.SKU,
			UnitPrice:   domain.MoneyFromFloat(item.UnitPrice),
			Quantity:    item.Quantity,
			Subtotal:    domain.MoneyFromFloat(item.Subtotal),
			WeightKg:    item.WeightKg,
		})
	}
	for _, refund := range d.Refunds {
		order.Refunds = append(order.Refunds, domain.Refund{
			ID:        refund.ID,
			GatewayID: refund.GatewayID,
			Amount:    domain.MoneyFromFloat(refund.Amount),
			Reason:    refund.Reason,
			Status:    refund.Status,
			CreatedBy: refund.CreatedBy,
			CreatedAt: refund.CreatedAt,
		})
	}
	return order
}

type productDocument struct {
	Name        string    `firestore:"name"`
	Description string    `firestore:"description,omitempty"`
	Category    string    `firestore:"category,omitempty"`
	Active      bool      `firestore:"isActive"`
	ImageURL    string    `firestore:"imageUrl,omitempty"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

type variantDocument struct {
	Size      string  `firestore:"size"`
	SKU       string  `firestore:"sku,omitempty"`
	Price     float64 `firestore:"price"`
	Stock     int     `firestore:"stock"`
	Available bool    `firestore:"isAvailable"`
	WeightKg  float64 `firestore:"weightKg,omitempty"`
}

func (d variantDocument) toDomain(productID, id string) domain.ProductVariant {
	return domain.ProductVariant{
		ID:        id,
		ProductID: productID,
		Size:      d.Size,
		SKU:       d.SKU,
		Price:     domain.MoneyFromFloat(d.Price),
		Stock:     d.Stock,
		Available: d.Available,
		WeightKg:  d.WeightKg,
	}
}

type couponDocument struct {
	Code              string     `firestore:"code"`
	Description       string     `firestore:"description,omitempty"`
	DiscountType      string     `firestore:"discountType"`
	DiscountValue     float64    `firestore:"discountValue"`
	MinOrderAmount    *float64   `firestore:"minOrderAmount,omitempty"`
	MaxDiscountAmount *float64   `firestore:"maxDiscountAmount,omitempty"`
	UsageLimit        *int       `firestore:"usageLimit,omitempty"`
	TimesUsed         int        `firestore:"timesUsed"`
	Active            bool       `firestore:"isActive"`
	StartsAt          *time.Time `firestore:"startsAt,omitempty"`
	ExpiresAt         *time.Time `firestore:"expiresAt,omitempty"`
	CreatedBy         string     `firestore:"createdBy,omitempty"`
	CreatedAt         time.Time  `firestore:"createdAt"`
	UpdatedAt         time.Time  `firestore:"updatedAt"`
}

func newCouponDocument(c domain.Coupon) couponDocument {
	return couponDocument{
		Code:              c.Code,
		Description:       c.Description,
		DiscountType:      string(c.DiscountType),
		DiscountValue:     c.DiscountValue.InexactFloat64(),
		MinOrderAmount:    floatPtr(c.MinOrderAmount),
		MaxDiscountAmount: floatPtr(c.MaxDiscountAmount),
		UsageLimit:        c.UsageLimit,
		TimesUsed:         c.TimesUsed,
		Active:            c.Active,
		StartsAt:          utcPtr(c.StartsAt),
		ExpiresAt:         utcPtr(c.ExpiresAt),
		CreatedBy:         c.CreatedBy,
		CreatedAt:         c.CreatedAt.UTC(),
		UpdatedAt:         c.UpdatedAt.UTC(),
	}
}

func (d couponDocument) toDomain(id string) domain.Coupon {
	return domain.Coupon{
		ID:                id,
		Code:              d.Code,
		Description:       d.Description,
		DiscountType:      domain.DiscountType(d.DiscountType),
		DiscountValue:     domain.MoneyFromFloat(d.DiscountValue),
		MinOrderAmount:    moneyPtr(d.MinOrderAmount),
		MaxDiscountAmount: moneyPtr(d.MaxDiscountAmount),
		UsageLimit:        d.UsageLimit,
		TimesUsed:         d.TimesUsed,
		Active:            d.Active,
		StartsAt:          d.StartsAt,
		ExpiresAt:         d.ExpiresAt,
		CreatedBy:         d.CreatedBy,
		CreatedAt:         d.CreatedAt,
		UpdatedAt:         d.UpdatedAt,
	}
}

type couponUsageDocument struct {
	CouponID       string    `firestore:"couponId"`
	CouponCode     string    `firestore:"couponCode,omitempty"`
	UserID         string    `firestore:"userId,omitempty"`
	OrderID        string    `firestore:"orderId"`
	DiscountAmount float64   `firestore:"discountAmount"`
	OrderAmount    float64   `firestore:"orderAmount"`
	UsedAt         time.Time `firestore:"usedAt"`

	// Marker documents only enforce per-user uniqueness and are excluded from listings.
	Marker bool `firestore:"marker"`
}

type cartItemDocument struct {
	ID          string    `firestore:"id"`
	ProductID   string    `firestore:"productId"`
	ProductName string    `firestore:"productName"`
	VariantID   string    `firestore:"variantId,omitempty"`
	Size        string    `firestore:"size"`
	ImageURL    string    `firestore:"imageUrl,omitempty"`
	Price       float64   `firestore:"price"`
	Quantity    int       `firestore:"quantity"`
	Subtotal    float64   `firestore:"subtotal"`
	AddedAt     time.Time `firestore:"addedAt"`
}

type cartDocument struct {
	OwnerID     string             `firestore:"ownerId"`
	Guest       bool               `firestore:"guest"`
	Items       []cartItemDocument `firestore:"items"`
	TotalItems  int                `firestore:"totalItems"`
	TotalAmount float64            `firestore:"totalAmount"`
	CreatedAt   time.Time          `firestore:"createdAt"`
	UpdatedAt   time.Time          `firestore:"updatedAt"`
}

func newCartDocument(c domain.Cart) cartDocument {
	doc := cartDocument{
		OwnerID:     c.OwnerID,
		Guest:       c.Guest,
		Items:       []cartItemDocument{},
		TotalItems:  c.TotalItems,
		TotalAmount: c.TotalAmount.InexactFloat64(),
		CreatedAt:   c.CreatedAt.UTC(),
		UpdatedAt:   c.UpdatedAt.UTC(),
	}
	for _, item := range c.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			Size:        item.Size,
			ImageURL:    item.ImageURL,
			Price:       item.Price.InexactFloat64(),
			Quantity:    item.Quantity,
			Subtotal:    item.Subtotal.InexactFloat64(),
			AddedAt:     item.AddedAt.UTC(),
		})
	}
	return doc
}

func (d cartDocument) toDomain(id string) domain.Cart {
	cart := domain.Cart{
		ID:        id,
		OwnerID:   d.OwnerID,
		Guest:     d.Guest,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	for _, item := range d.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			Size:        item.Size,
			ImageURL:    item.ImageURL,
			Price:       domain.MoneyFromFloat(item.Price),
			Quantity:    item.Quantity,
			AddedAt:     item.AddedAt,
		})
	}
	cart.Recalculate()
	return cart
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	v := t.UTC()
	return &v
}

func floatPtr(m *domain.Money) *float64 {
	if m == nil {
		return nil
	}
	v := m.InexactFloat64()
	return &v
}

func moneyPtr(v *float64) *domain.Money {
	if v == nil {
		return nil
	}
	m := domain.MoneyFromFloat(*v)
	return &m
}
