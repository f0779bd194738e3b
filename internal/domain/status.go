package domain

import (
	"errors"
	"fmt"
	"slices"
)

// OrderStatus enumerates order lifecycle states.
type OrderStatus string

const (
	OrderStatusNew        OrderStatus = "new"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// PaymentStatus enumerates payment lifecycle states stored on an order.
type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusAuthorized PaymentStatus = "authorized"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusDisputed   PaymentStatus = "disputed"
)

// ShipmentStatus enumerates shipment lifecycle states. The empty value means no shipment exists yet.
type ShipmentStatus string

const (
	ShipmentStatusNone           ShipmentStatus = ""
	ShipmentStatusCreated        ShipmentStatus = "created"
	ShipmentStatusInTransit      ShipmentStatus = "in_transit"
	ShipmentStatusOutForDelivery ShipmentStatus = "out_for_delivery"
	ShipmentStatusDelivered      ShipmentStatus = "delivered"
	ShipmentStatusCancelled      ShipmentStatus = "cancelled"
	ShipmentStatusLost           ShipmentStatus = "lost"
	ShipmentStatusDamaged        ShipmentStatus = "damaged"
)

var (
	// ErrStateUnchanged is returned when the target equals the current state.
	ErrStateUnchanged = errors.New("state unchanged")
	// ErrStateRegression is returned when the target would move a state machine backwards.
	ErrStateRegression = errors.New("state regression")
	// ErrInvalidTransition is returned for forward moves the transition table does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// TransitionError describes a rejected transition. It wraps ErrStateRegression or ErrInvalidTransition.
type TransitionError struct {
	Machine string
	From    string
	To      string
	cause   error
}

func (e *TransitionError) Error() string {
	from := e.From
	if from == "" {
		from = "none"
	}
	return fmt.Sprintf("%s: %s %s -> %s", e.Machine, e.cause, from, e.To)
}

func (e *TransitionError) Unwrap() error { return e.cause }

type stateMachine[S ~string] struct {
	name  string
	rank  map[S]int
	next  map[S][]S
	final map[S]bool
}

func (m stateMachine[S]) known(s S) bool {
	_, ok := m.rank[s]
	return ok
}

func (m stateMachine[S]) check(from, to S) error {
	if from == to {
		return ErrStateUnchanged
	}
	if !m.known(to) {
		return &TransitionError{Machine: m.name, From: string(from), To: string(to), cause: ErrInvalidTransition}
	}
	if slices.Contains(m.next[from], to) {
		return nil
	}
	cause := ErrInvalidTransition
	if m.final[from] || m.rank[to] <= m.rank[from] {
		cause = ErrStateRegression
	}
	return &TransitionError{Machine: m.name, From: string(from), To: string(to), cause: cause}
}

var orderMachine = stateMachine[OrderStatus]{
	name: "order",
	rank: map[OrderStatus]int{
		OrderStatusNew:        0,
		OrderStatusConfirmed:  1,
		OrderStatusProcessing: 2,
		OrderStatusShipped:    3,
		OrderStatusDelivered:  4,
		OrderStatusCancelled:  4,
	},
	next: map[OrderStatus][]OrderStatus{
		OrderStatusNew:        {OrderStatusConfirmed, OrderStatusProcessing, OrderStatusCancelled},
		OrderStatusConfirmed:  {OrderStatusProcessing, OrderStatusShipped, OrderStatusCancelled},
		OrderStatusProcessing: {OrderStatusShipped, OrderStatusCancelled},
		OrderStatusShipped:    {OrderStatusDelivered},
	},
	final: map[OrderStatus]bool{OrderStatusDelivered: true, OrderStatusCancelled: true},
}

var paymentMachine = stateMachine[PaymentStatus]{
	name: "payment",
	rank: map[PaymentStatus]int{
		PaymentStatusPending:    0,
		PaymentStatusAuthorized: 1,
		PaymentStatusFailed:     1,
		PaymentStatusCompleted:  2,
		PaymentStatusDisputed:   3,
	},
	next: map[PaymentStatus][]PaymentStatus{
		PaymentStatusPending:    {PaymentStatusAuthorized, PaymentStatusCompleted, PaymentStatusFailed},
		PaymentStatusAuthorized: {PaymentStatusCompleted, PaymentStatusFailed},
		PaymentStatusFailed:     {PaymentStatusCompleted},
		PaymentStatusCompleted:  {PaymentStatusDisputed},
	},
	final: map[PaymentStatus]bool{PaymentStatusDisputed: true},
}

var shipmentMachine = stateMachine[ShipmentStatus]{
	name: "shipment",
	rank: map[ShipmentStatus]int{
		ShipmentStatusNone:           0,
		ShipmentStatusCreated:        1,
		ShipmentStatusInTransit:      2,
		ShipmentStatusOutForDelivery: 3,
		ShipmentStatusDelivered:      4,
		ShipmentStatusCancelled:      4,
		ShipmentStatusLost:           4,
		ShipmentStatusDamaged:        4,
	},
	next: map[ShipmentStatus][]ShipmentStatus{
		ShipmentStatusNone: {ShipmentStatusCreated},
		ShipmentStatusCreated: {
			ShipmentStatusInTransit, ShipmentStatusOutForDelivery, ShipmentStatusDelivered,
			ShipmentStatusCancelled, ShipmentStatusLost, ShipmentStatusDamaged,
		},
		ShipmentStatusInTransit: {
			ShipmentStatusOutForDelivery, ShipmentStatusDelivered,
			ShipmentStatusCancelled, ShipmentStatusLost, ShipmentStatusDamaged,
		},
		ShipmentStatusOutForDelivery: {
			ShipmentStatusDelivered, ShipmentStatusCancelled, ShipmentStatusLost, ShipmentStatusDamaged,
		},
	},
	final: map[ShipmentStatus]bool{
		ShipmentStatusDelivered: true,
		ShipmentStatusCancelled: true,
		ShipmentStatusLost:      true,
		ShipmentStatusDamaged:   true,
	},
}

// Valid reports whether s is a known order status.
func (s OrderStatus) Valid() bool { return orderMachine.known(s) }

// Terminal reports whether no further transitions are possible.
func (s OrderStatus) Terminal() bool { return orderMachine.final[s] }

// Cancellable reports whether an order in s may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	return slices.Contains(orderMachine.next[s], OrderStatusCancelled)
}

// Valid reports whether s is a known payment status.
func (s PaymentStatus) Valid() bool { return paymentMachine.known(s) }

// Valid reports whether s is a known shipment status, including none.
func (s ShipmentStatus) Valid() bool { return shipmentMachine.known(s) }

// Terminal reports whether no further shipment updates are accepted.
func (s ShipmentStatus) Terminal() bool { return shipmentMachine.final[s] }

// CheckOrderTransition validates moving an order from one status to another.
func CheckOrderTransition(from, to OrderStatus) error { return orderMachine.check(from, to) }

// CheckPaymentTransition validates moving payment from one status to another.
func CheckPaymentTransition(from, to PaymentStatus) error { return paymentMachine.check(from, to) }

// CheckShipmentTransition validates moving a shipment from one status to another.
func CheckShipmentTransition(from, to ShipmentStatus) error { return shipmentMachine.check(from, to) }
