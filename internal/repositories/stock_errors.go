package repositories

import "fmt"

// StockErrorCode enumerates reasons a stock adjustment was refused.
type StockErrorCode string

const (
	// StockErrorInsufficient indicates the decrement would take stock below zero.
	StockErrorInsufficient StockErrorCode = "stock_insufficient"
	// StockErrorVariantNotFound indicates the variant document is missing.
	StockErrorVariantNotFound StockErrorCode = "stock_variant_not_found"
	// StockErrorVariantUnavailable indicates the variant was switched off.
	StockErrorVariantUnavailable StockErrorCode = "stock_variant_unavailable"
)

// StockError reports which line of a stock adjustment failed.
type StockError struct {
	Code      StockErrorCode
	ProductID string
	VariantID string
	Requested int
	Available int
}

// Error implements the error interface.
func (e *StockError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: product %s variant %s requested %d available %d", e.Code, e.ProductID, e.VariantID, e.Requested, e.Available)
}

// CouponUsageErrorCode enumerates uniqueness violations on coupon usage.
type CouponUsageErrorCode string

const (
	// CouponUsageDuplicateOrder indicates the coupon was already applied to the order.
	CouponUsageDuplicateOrder CouponUsageErrorCode = "coupon_usage_duplicate_order"
	// CouponUsageDuplicateUser indicates the user already used the coupon.
	CouponUsageDuplicateUser CouponUsageErrorCode = "coupon_usage_duplicate_user"
)

// CouponUsageError wraps coupon usage conflicts.
type CouponUsageError struct {
	Code     CouponUsageErrorCode
	CouponID string
	OrderID  string
	UserID   string
}

// Error implements the error interface.
func (e *CouponUsageError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: coupon %s order %s user %s", e.Code, e.CouponID, e.OrderID, e.UserID)
}

// IsConflict lets callers treat usage violations as RepositoryError conflicts.
func (e *CouponUsageError) IsConflict() bool { return e != nil }

// IsNotFound implements RepositoryError.
func (e *CouponUsageError) IsNotFound() bool { return false }

// IsUnavailable implements RepositoryError.
func (e *CouponUsageError) IsUnavailable() bool { return false }
