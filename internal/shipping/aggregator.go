package shipping

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
)

// ErrShippingProvider is matched by every error returned from an aggregator call.
var ErrShippingProvider = errors.New("shipping: provider error")

// AggregatorError describes a failed aggregator call.
type AggregatorError struct {
	Provider   string
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *AggregatorError) Error() string {
	if e == nil {
		return ""
	}
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (http %d): %s", e.Provider, e.Op, e.StatusCode, msg)
	}
	return fmt.Sprintf("%s: %s: %s", e.Provider, e.Op, msg)
}

func (e *AggregatorError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports every AggregatorError as ErrShippingProvider.
func (e *AggregatorError) Is(target error) bool {
	return target == ErrShippingProvider
}

// Address is the flattened delivery address sent to the aggregator.
type Address struct {
	Name       string
	Email      string
	Phone      string
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Item is one manifest line. Prices are in rupees.
type Item struct {
	Name      string
	SKU       string
	Units     int
	UnitPrice domain.Money
	WeightKg  float64
}

// ShipmentRequest asks the aggregator to book a shipment for an order.
type ShipmentRequest struct {
	OrderNumber string
	OrderDate   time.Time
	Address     Address
	Items       []Item
	SubTotal    domain.Money
	Discount    domain.Money
	Notes       string
}

// Shipment is the booking confirmed by the aggregator.
type Shipment struct {
	ProviderOrderID   string
	ShipmentID        string
	TrackingCode      string
	Courier           string
	TrackingURL       string
	Status            domain.ShipmentStatus
	EstimatedDelivery *time.Time
}

// Activity is one scan in the carrier's tracking history.
type Activity struct {
	At          time.Time
	Status      string
	Description string
	Location    string
}

// Tracking is the live tracking state of an AWB.
type Tracking struct {
	TrackingCode      string
	Courier           string
	ExternalStatus    string
	Status            domain.ShipmentStatus
	TrackingURL       string
	EstimatedDelivery *time.Time
	DeliveredAt       *time.Time
	Activities        []Activity
}

// Aggregator is the contract implemented by shipping aggregators.
type Aggregator interface {
	CreateShipment(ctx context.Context, req ShipmentRequest) (Shipment, error)
	Track(ctx context.Context, trackingCode string) (Tracking, error)
	Cancel(ctx context.Context, providerOrderIDs ...string) error
}

var statusTable = map[string]domain.ShipmentStatus{
	"NEW":                domain.ShipmentStatusCreated,
	"AWB ASSIGNED":       domain.ShipmentStatusCreated,
	"PICKUP SCHEDULED":   domain.ShipmentStatusCreated,
	"PICKUP GENERATED":   domain.ShipmentStatusCreated,
	"MANIFEST GENERATED": domain.ShipmentStatusCreated,
	"PICKED UP":          domain.ShipmentStatusInTransit,
	"SHIPPED":            domain.ShipmentStatusInTransit,
	"IN TRANSIT":         domain.ShipmentStatusInTransit,
	"OUT FOR DELIVERY":   domain.ShipmentStatusOutForDelivery,
	"DELIVERED":          domain.ShipmentStatusDelivered,
	"CANCELED":           domain.ShipmentStatusCancelled,
	"CANCELLED":          domain.ShipmentStatusCancelled,
	"RTO INITIATED":      domain.ShipmentStatusCancelled,
	"LOST":               domain.ShipmentStatusLost,
	"DAMAGED":            domain.ShipmentStatusDamaged,
	"DESTROYED":          domain.ShipmentStatusDamaged,
}

// MapStatus maps an aggregator status label onto the shipment state machine. Labels the
// table does not know are treated as in transit.
func MapStatus(external string) domain.ShipmentStatus {
	if status, ok := statusTable[normalizeLabel(external)]; ok {
		return status
	}
	return domain.ShipmentStatusInTransit
}

func normalizeLabel(label string) string {
	label = strings.NewReplacer("_", " ", "-", " ").Replace(strings.ToUpper(label))
	return strings.Join(strings.Fields(label), " ")
}
