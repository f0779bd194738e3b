package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// DiscountType selects how a coupon discount is computed.
type DiscountType string

const (
	DiscountTypePercentage DiscountType = "percentage"
	DiscountTypeFixed      DiscountType = "fixed"
)

// ErrCouponDefinition is wrapped by Coupon.Validate failures.
var ErrCouponDefinition = errors.New("invalid coupon definition")

// Coupon is an administrator-managed discount code.
type Coupon struct {
	ID                string
	Code              string
	Description       string
	DiscountType      DiscountType
	DiscountValue     Money
	MinOrderAmount    *Money
	MaxDiscountAmount *Money
	UsageLimit        *int
	TimesUsed         int
	Active            bool
	StartsAt          *time.Time
	ExpiresAt         *time.Time
	CreatedBy         string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Validate checks the definition invariants.
func (c Coupon) Validate() error {
	var problems []string
	if strings.TrimSpace(c.Code) == "" {
		problems = append(problems, "code is required")
	}
	switch c.DiscountType {
	case DiscountTypePercentage:
		if !c.DiscountValue.IsPositive() || c.DiscountValue.GreaterThan(hundred) {
			problems = append(problems, "percentage discount must be in (0, 100]")
		}
	case DiscountTypeFixed:
		if !c.DiscountValue.IsPositive() {
			problems = append(problems, "fixed discount must be positive")
		}
		if c.MaxDiscountAmount != nil {
			problems = append(problems, "max discount applies to percentage coupons only")
		}
	default:
		problems = append(problems, fmt.Sprintf("unsupported discount type %q", c.DiscountType))
	}
	if c.MinOrderAmount != nil && c.MinOrderAmount.IsNegative() {
		problems = append(problems, "min order amount must not be negative")
	}
	if c.MaxDiscountAmount != nil && !c.MaxDiscountAmount.IsPositive() {
		problems = append(problems, "max discount amount must be positive")
	}
	if c.UsageLimit != nil && *c.UsageLimit <= 0 {
		problems = append(problems, "usage limit must be positive")
	}
	if c.StartsAt != nil && c.ExpiresAt != nil && !c.StartsAt.Before(*c.ExpiresAt) {
		problems = append(problems, "starts_at must be before expires_at")
	}
	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrCouponDefinition, strings.Join(problems, "; "))
	}
	return nil
}

// ActiveAt reports whether the coupon is enabled and inside its validity window at now.
func (c Coupon) ActiveAt(now time.Time) bool {
	if !c.Active {
		return false
	}
	if c.StartsAt != nil && now.Before(*c.StartsAt) {
		return false
	}
	if c.ExpiresAt != nil && !now.Before(*c.ExpiresAt) {
		return false
	}
	return true
}

// LimitReached reports whether the global usage limit is exhausted.
func (c Coupon) LimitReached() bool {
	return c.UsageLimit != nil && c.TimesUsed >= *c.UsageLimit
}

// CouponUsage records one application of a coupon to one order by one user.
type CouponUsage struct {
	ID             string
	CouponID       string
	CouponCode     string
	UserID         string
	OrderID        string
	DiscountAmount Money
	OrderAmount    Money
	UsedAt         time.Time
}
