package repositories

import (
	"context"
	"errors"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
)

// ErrSkipWrite may be returned from an OrderMutation to end the transaction without writing.
var ErrSkipWrite = errors.New("repositories: skip write")

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderMutation edits an order in place inside a read-modify-write transaction. It may run
// more than once when the transaction is retried, so it must not have side effects.
type OrderMutation func(order *domain.Order) error

// OrderListFilter scopes order listings. An empty UserID lists every order (admin).
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// StockLine identifies a quantity of one variant.
type StockLine struct {
	ProductID string
	VariantID string
	Quantity  int
}

// OrderRepository persists orders.
type OrderRepository interface {
	// Insert stores a new order. When stock is non-empty the variants are decremented in the
	// same transaction and a StockError is returned if any would drop below zero.
	Insert(ctx context.Context, order domain.Order, stock []StockLine) error
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error)
	FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (domain.Order, error)
	FindByTrackingCode(ctx context.Context, trackingCode string) (domain.Order, error)
	// Mutate applies fn to the latest stored order and writes the result atomically.
	Mutate(ctx context.Context, orderID string, fn OrderMutation) (domain.Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.Page[domain.Order], error)
	// ListAwaitingPayment returns pending orders that already have a gateway order and were
	// created before the cutoff, oldest first.
	ListAwaitingPayment(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Order, error)
}

// CatalogRepository reads products and adjusts variant stock.
type CatalogRepository interface {
	FindProduct(ctx context.Context, productID string) (domain.Product, error)
	RestoreStock(ctx context.Context, lines []StockLine) error
}

// CouponListFilter scopes admin coupon listings.
type CouponListFilter struct {
	ActiveOnly bool
	Pagination domain.Pagination
}

// CouponRepository persists coupon definitions.
type CouponRepository interface {
	// Insert fails with a conflict error when the code is already taken.
	Insert(ctx context.Context, coupon domain.Coupon) error
	Update(ctx context.Context, coupon domain.Coupon) error
	Delete(ctx context.Context, couponID string) error
	FindByID(ctx context.Context, couponID string) (domain.Coupon, error)
	FindByCode(ctx context.Context, code string) (domain.Coupon, error)
	List(ctx context.Context, filter CouponListFilter) (domain.Page[domain.Coupon], error)
	// IncrementUsage atomically adds one to the usage counter.
	IncrementUsage(ctx context.Context, couponID string, now time.Time) error
}

// CouponUsageRepository records coupon applications with storage-level uniqueness.
type CouponUsageRepository interface {
	// Record inserts the usage. A second usage for the same order yields CouponUsageDuplicateOrder
	// and a second usage by the same user yields CouponUsageDuplicateUser.
	Record(ctx context.Context, usage domain.CouponUsage) error
	ExistsForUser(ctx context.Context, couponID, userID string) (bool, error)
	ListByCoupon(ctx context.Context, couponID string, pager domain.Pagination) (domain.Page[domain.CouponUsage], error)
}

// CartRepository stores one cart per owner key.
type CartRepository interface {
	// Get returns the stored cart or a not-found RepositoryError.
	Get(ctx context.Context, ownerID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
	Delete(ctx context.Context, ownerID string) error
}

// CounterRepository generates sequential numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
}

// HealthRepository reports dependency readiness.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}
