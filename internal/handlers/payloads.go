package handlers

import (
	"encoding/json"
	"strings"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/services"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/shipping"
)

type orderSummaryPayload struct {
	ID            string      `json:"id"`
	OrderNumber   string      `json:"order_number"`
	Status        string      `json:"status"`
	TotalAmount   json.Number `json:"total_amount"`
	PaymentStatus string      `json:"payment_status"`
	CreatedAt     string      `json:"created_at"`
}

type orderPayload struct {
	ID             string               `json:"id"`
	OrderNumber    string               `json:"order_number"`
	UserID         string               `json:"user_id,omitempty"`
	Status         string               `json:"status"`
	PaymentStatus  string               `json:"payment_status"`
	Currency       string               `json:"currency"`
	Items          []orderItemPayload   `json:"items"`
	Subtotal       json.Number          `json:"subtotal"`
	CouponCode     string               `json:"coupon_code,omitempty"`
	CouponDiscount json.Number          `json:"coupon_discount"`
	TotalAmount    json.Number          `json:"total_amount"`
	Shipping       shippingPayload      `json:"shipping"`
	Payment        *orderPaymentPayload `json:"payment,omitempty"`
	Shipment       *shipmentPayload     `json:"shipment,omitempty"`
	Refunds        []refundPayload      `json:"refunds,omitempty"`
	CancelReason   string               `json:"cancel_reason,omitempty"`
	CreatedAt      string               `json:"created_at"`
	UpdatedAt      string               `json:"updated_at,omitempty"`
	PaidAt         string               `json:"paid_at,omitempty"`
	ShippedAt      string               `json:"shipped_at,omitempty"`
	DeliveredAt    string               `json:"delivered_at,omitempty"`
	CancelledAt    string               `json:"cancelled_at,omitempty"`
}

type orderItemPayload struct {
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Size        string      `json:"size"`
	SKU         string      `json:"sku,omitempty"`
	UnitPrice   json.Number `json:"price"`
	Quantity    int         `json:"quantity"`
	Subtotal    json.Number `json:"subtotal"`
}

type shippingPayload struct {
	FullName     string `json:"full_name"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone,omitempty"`
	AddressLine1 string `json:"address_line1"`
	AddressLine2 string `json:"address_line2,omitempty"`
	City         string `json:"city"`
	State        string `json:"state"`
	PostalCode   string `json:"postal_code"`
	Country      string `json:"country"`
	Notes        string `json:"notes,omitempty"`
}

type orderPaymentPayload struct {
	Provider         string `json:"provider,omitempty"`
	GatewayOrderID   string `json:"gateway_order_id,omitempty"`
	GatewayPaymentID string `json:"gateway_payment_id,omitempty"`
	Method           string `json:"method,omitempty"`
	FailureReason    string `json:"failure_reason,omitempty"`
	VerifiedAt       string `json:"verified_at,omitempty"`
	CapturedAt       string `json:"captured_at,omitempty"`
}

type shipmentPayload struct {
	Status            string `json:"status"`
	Courier           string `json:"courier,omitempty"`
	TrackingCode      string `json:"tracking_code,omitempty"`
	TrackingURL       string `json:"tracking_url,omitempty"`
	LastEvent         string `json:"last_event,omitempty"`
	EstimatedDelivery string `json:"estimated_delivery,omitempty"`
	DeliveredAt       string `json:"delivered_at,omitempty"`
}

type refundPayload struct {
	ID        string      `json:"id"`
	Amount    json.Number `json:"amount"`
	Reason    string      `json:"reason,omitempty"`
	Status    string      `json:"status,omitempty"`
	CreatedAt string      `json:"created_at"`
}

func buildOrderSummary(order services.Order) orderSummaryPayload {
	return orderSummaryPayload{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		Status:        string(order.Status),
		TotalAmount:   amount(order.TotalAmount),
		PaymentStatus: string(order.PaymentStatus),
		CreatedAt:     formatTime(order.CreatedAt),
	}
}

func buildOrderPayload(order services.Order) orderPayload {
	payload := orderPayload{
		ID:             order.ID,
		OrderNumber:    order.OrderNumber,
		UserID:         order.UserID,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		Currency:       strings.ToUpper(order.Currency),
		Items:          make([]orderItemPayload, 0, len(order.Items)),
		Subtotal:       amount(order.Subtotal),
		CouponCode:     order.CouponCode,
		CouponDiscount: amount(order.CouponDiscount),
		TotalAmount:    amount(order.TotalAmount),
		Shipping:       buildShippingPayload(order.Shipping),
		CancelReason:   order.CancelReason,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
		PaidAt:         formatTime(pointerTime(order.PaidAt)),
		ShippedAt:      formatTime(pointerTime(order.ShippedAt)),
		DeliveredAt:    formatTime(pointerTime(order.DeliveredAt)),
		CancelledAt:    formatTime(pointerTime(order.CancelledAt)),
	}
	for _, item := range order.Items {
		payload.Items = append(payload.Items, orderItemPayload{
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Size:        item.Size,
			SKU:         item.SKU,
			UnitPrice:   amount(item.UnitPrice),
			Quantity:    item.Quantity,
			Subtotal:    amount(item.Subtotal),
		})
	}
	if p := order.Payment; p.GatewayOrderID != "" || p.GatewayPaymentID != "" {
		payload.Payment = &orderPaymentPayload{
			Provider:         p.Provider,
			GatewayOrderID:   p.GatewayOrderID,
			GatewayPaymentID: p.GatewayPaymentID,
			Method:           p.Method,
			FailureReason:    p.FailureReason,
			VerifiedAt:       formatTime(pointerTime(p.VerifiedAt)),
			CapturedAt:       formatTime(pointerTime(p.CapturedAt)),
		}
	}
	if order.Shipment.Status != domain.ShipmentStatusNone {
		shipment := buildShipmentPayload(order.Shipment)
		payload.Shipment = &shipment
	}
	for _, refund := range order.Refunds {
		payload.Refunds = append(payload.Refunds, refundPayload{
			ID:        refund.ID,
			Amount:    amount(refund.Amount),
			Reason:    refund.Reason,
			Status:    refund.Status,
			CreatedAt: formatTime(refund.CreatedAt),
		})
	}
	return payload
}

func buildShippingPayload(s domain.ShippingDetails) shippingPayload {
	return shippingPayload{
		FullName:     s.FullName,
		Email:        s.Email,
		Phone:        s.Phone,
		AddressLine1: s.AddressLine1,
		AddressLine2: s.AddressLine2,
		City:         s.City,
		State:        s.State,
		PostalCode:   s.PostalCode,
		Country:      s.Country,
		Notes:        s.Notes,
	}
}

func buildShipmentPayload(s domain.ShipmentInfo) shipmentPayload {
	return shipmentPayload{
		Status:            string(s.Status),
		Courier:           s.Courier,
		TrackingCode:      s.TrackingCode,
		TrackingURL:       s.TrackingURL,
		LastEvent:         s.LastEvent,
		EstimatedDelivery: formatTime(pointerTime(s.EstimatedDelivery)),
		DeliveredAt:       formatTime(pointerTime(s.DeliveredAt)),
	}
}

type activityPayload struct {
	Status      string `json:"status,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	At          string `json:"at,omitempty"`
}

func buildActivities(activities []shipping.Activity) []activityPayload {
	if len(activities) == 0 {
		return nil
	}
	out := make([]activityPayload, 0, len(activities))
	for _, a := range activities {
		out = append(out, activityPayload{
			Status:      a.Status,
			Description: a.Description,
			Location:    a.Location,
			At:          formatTime(a.At),
		})
	}
	return out
}

type cartPayload struct {
	ID          string            `json:"id,omitempty"`
	Items       []cartItemPayload `json:"items"`
	TotalItems  int               `json:"total_items"`
	TotalAmount json.Number       `json:"total_amount"`
	UpdatedAt   string            `json:"updated_at,omitempty"`
}

type cartItemPayload struct {
	ID          string      `json:"id"`
	ProductID   string      `json:"product_id"`
	ProductName string      `json:"product_name"`
	Size        string      `json:"size"`
	ImageURL    string      `json:"image_url,omitempty"`
	Price       json.Number `json:"price"`
	Quantity    int         `json:"quantity"`
	Subtotal    json.Number `json:"subtotal"`
}

func buildCartPayload(cart services.Cart) cartPayload {
	payload := cartPayload{
		ID:          cart.ID,
		Items:       make([]cartItemPayload, 0, len(cart.Items)),
		TotalItems:  cart.TotalItems,
		TotalAmount: amount(cart.TotalAmount),
		UpdatedAt:   formatTime(cart.UpdatedAt),
	}
	for _, item := range cart.Items {
		payload.Items = append(payload.Items, cartItemPayload{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			Size:        item.Size,
			ImageURL:    item.ImageURL,
			Price:       amount(item.Price),
			Quantity:    item.Quantity,
			Subtotal:    amount(item.Subtotal),
		})
	}
	return payload
}

type couponPayload struct {
	ID                string       `json:"id"`
	Code              string       `json:"code"`
	Description       string       `json:"description,omitempty"`
	DiscountType      string       `json:"discount_type"`
	DiscountValue     json.Number  `json:"discount_value"`
	MinOrderAmount    *json.Number `json:"min_order_amount,omitempty"`
	MaxDiscountAmount *json.Number `json:"max_discount_amount,omitempty"`
	UsageLimit        *int         `json:"usage_limit,omitempty"`
	TimesUsed         int          `json:"times_used"`
	Active            bool         `json:"active"`
	StartsAt          string       `json:"starts_at,omitempty"`
	ExpiresAt         string       `json:"expires_at,omitempty"`
	CreatedAt         string       `json:"created_at,omitempty"`
	UpdatedAt         string       `json:"updated_at,omitempty"`
}

func buildCouponPayload(c services.Coupon) couponPayload {
	return couponPayload{
		ID:                c.ID,
		Code:              c.Code,
		Description:       c.Description,
		DiscountType:      string(c.DiscountType),
		DiscountValue:     amount(c.DiscountValue),
		MinOrderAmount:    optionalAmount(c.MinOrderAmount),
		MaxDiscountAmount: optionalAmount(c.MaxDiscountAmount),
		UsageLimit:        c.UsageLimit,
		TimesUsed:         c.TimesUsed,
		Active:            c.Active,
		StartsAt:          formatTime(pointerTime(c.StartsAt)),
		ExpiresAt:         formatTime(pointerTime(c.ExpiresAt)),
		CreatedAt:         formatTime(c.CreatedAt),
		UpdatedAt:         formatTime(c.UpdatedAt),
	}
}

// publicCouponPayload hides usage counters from shoppers.
func publicCouponPayload(c services.Coupon) couponPayload {
	p := buildCouponPayload(c)
	p.UsageLimit = nil
	p.TimesUsed = 0
	p.CreatedAt = ""
	p.UpdatedAt = ""
	return p
}

type couponUsagePayload struct {
	ID             string      `json:"id"`
	CouponID       string      `json:"coupon_id"`
	CouponCode     string      `json:"coupon_code,omitempty"`
	UserID         string      `json:"user_id,omitempty"`
	OrderID        string      `json:"order_id"`
	DiscountAmount json.Number `json:"discount_amount"`
	OrderAmount    json.Number `json:"order_amount"`
	UsedAt         string      `json:"used_at"`
}

func buildCouponUsagePayload(u services.CouponUsage) couponUsagePayload {
	return couponUsagePayload{
		ID:             u.ID,
		CouponID:       u.CouponID,
		CouponCode:     u.CouponCode,
		UserID:         u.UserID,
		OrderID:        u.OrderID,
		DiscountAmount: amount(u.DiscountAmount),
		OrderAmount:    amount(u.OrderAmount),
		UsedAt:         formatTime(u.UsedAt),
	}
}
