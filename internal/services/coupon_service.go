package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/textutil"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

const (
	couponIDPrefix         = "cpn_"
	couponDescriptionLimit = 500
	maxCouponCodeLength    = 32
)

var (
	// ErrCouponInvalidInput signals malformed coupon input or an invalid definition.
	ErrCouponInvalidInput = errors.New("coupon: invalid input")
	// ErrCouponNotFound indicates the code is unknown, inactive or outside its validity window.
	ErrCouponNotFound = errors.New("coupon: not found")
	// ErrCouponUsageLimitReached indicates the global usage cap was hit.
	ErrCouponUsageLimitReached = errors.New("coupon: usage limit reached")
	// ErrCouponAlreadyUsed indicates the user already redeemed the coupon.
	ErrCouponAlreadyUsed = errors.New("coupon: already used")
	// ErrCouponNotApplicable indicates the coupon yields no discount for the amount.
	ErrCouponNotApplicable = errors.New("coupon: not applicable")
	// ErrCouponInvalid indicates the coupon is no longer usable at apply time.
	ErrCouponInvalid = errors.New("coupon: invalid")
	// ErrCouponDuplicateApplication indicates the coupon was already applied to the order.
	ErrCouponDuplicateApplication = errors.New("coupon: duplicate application")
	// ErrCouponInUse blocks deleting a coupon that has been redeemed.
	ErrCouponInUse = errors.New("coupon: in use")
	// ErrCouponCodeTaken indicates another coupon already uses the code.
	ErrCouponCodeTaken = errors.New("coupon: code already exists")
)

// CouponServiceDeps bundles collaborators for the coupon engine.
type CouponServiceDeps struct {
	Coupons repositories.CouponRepository
	Usages  repositories.CouponUsageRepository
	// Orders is optional. When set, ApplyCoupon checks the order belongs to the user.
	Orders      repositories.OrderRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type couponService struct {
	coupons repositories.CouponRepository
	usages  repositories.CouponUsageRepository
	orders  repositories.OrderRepository
	clock   func() time.Time
	newID   func() string
	logger  Logger
}

var _ CouponService = (*couponService)(nil)

// NewCouponService wires the coupon engine.
func NewCouponService(deps CouponServiceDeps) (CouponService, error) {
	if deps.Coupons == nil {
		return nil, errors.New("coupon service: coupon repository is required")
	}
	if deps.Usages == nil {
		return nil, errors.New("coupon service: usage repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &couponService{
		coupons: deps.Coupons,
		usages:  deps.Usages,
		orders:  deps.Orders,
		clock:   func() time.Time { return clock().UTC() },
		newID:   idGen,
		logger:  logger,
	}, nil
}

func (s *couponService) ValidateCoupon(ctx context.Context, cmd ValidateCouponCommand) (CouponQuote, error) {
	code := textutil.NormalizeCode(cmd.Code)
	if code == "" {
		return CouponQuote{}, fmt.Errorf("%w: code is required", ErrCouponInvalidInput)
	}
	if cmd.OrderAmount.IsNegative() {
		return CouponQuote{}, fmt.Errorf("%w: order amount must not be negative", ErrCouponInvalidInput)
	}

	coupon, err := s.coupons.FindByCode(ctx, code)
	if err != nil {
		return CouponQuote{}, mapRepositoryError(err, ErrCouponNotFound, nil)
	}
	if !coupon.ActiveAt(s.clock()) {
		return CouponQuote{}, ErrCouponNotFound
	}
	if coupon.LimitReached() {
		return CouponQuote{}, ErrCouponUsageLimitReached
	}
	if userID := strings.TrimSpace(cmd.UserID); userID != "" {
		used, err := s.usages.ExistsForUser(ctx, coupon.ID, userID)
		if err != nil {
			return CouponQuote{}, mapRepositoryError(err, nil, nil)
		}
		if used {
			return CouponQuote{}, ErrCouponAlreadyUsed
		}
	}

	discount := s.CalculateDiscount(coupon, cmd.OrderAmount)
	if !discount.IsPositive() {
		if coupon.MinOrderAmount != nil && cmd.OrderAmount.LessThan(*coupon.MinOrderAmount) {
			return CouponQuote{}, fmt.Errorf("%w: minimum order amount is %s", ErrCouponNotApplicable, coupon.MinOrderAmount.StringFixed(2))
		}
		return CouponQuote{}, ErrCouponNotApplicable
	}

	return CouponQuote{
		Coupon:         coupon,
		DiscountAmount: discount,
		FinalAmount:    cmd.OrderAmount.Sub(discount),
	}, nil
}

// CalculateDiscount returns the discount the coupon grants on orderAmount. Amounts below the minimum
// order amount get nothing; fixed discounts never exceed the order amount.
func (s *couponService) CalculateDiscount(coupon Coupon, orderAmount Money) Money {
	return CalculateDiscount(coupon, orderAmount)
}

// CalculateDiscount is the pure discount rule shared by validation and checkout.
func CalculateDiscount(coupon Coupon, orderAmount Money) Money {
	if !orderAmount.IsPositive() {
		return domain.Zero
	}
	if coupon.MinOrderAmount != nil && orderAmount.LessThan(*coupon.MinOrderAmount) {
		return domain.Zero
	}

	var discount Money
	switch coupon.DiscountType {
	case domain.DiscountTypePercentage:
		discount = domain.Percent(orderAmount, coupon.DiscountValue)
		if coupon.MaxDiscountAmount != nil && discount.GreaterThan(*coupon.MaxDiscountAmount) {
			discount = *coupon.MaxDiscountAmount
		}
	case domain.DiscountTypeFixed:
		discount = coupon.DiscountValue
		if discount.GreaterThan(orderAmount) {
			discount = orderAmount
		}
	default:
		return domain.Zero
	}
	if discount.IsNegative() {
		return domain.Zero
	}
	return discount.Round(2)
}

func (s *couponService) ApplyCoupon(ctx context.Context, cmd ApplyCouponCommand) (CouponUsage, error) {
	couponID := strings.TrimSpace(cmd.CouponID)
	orderID := strings.TrimSpace(cmd.OrderID)
	userID := strings.TrimSpace(cmd.UserID)
	switch {
	case couponID == "":
		return CouponUsage{}, fmt.Errorf("%w: coupon id is required", ErrCouponInvalidInput)
	case orderID == "":
		return CouponUsage{}, fmt.Errorf("%w: order id is required", ErrCouponInvalidInput)
	case userID == "":
		return CouponUsage{}, fmt.Errorf("%w: user is required", ErrCouponInvalidInput)
	case !cmd.DiscountAmount.IsPositive():
		return CouponUsage{}, fmt.Errorf("%w: discount amount must be positive", ErrCouponInvalidInput)
	case cmd.DiscountAmount.GreaterThan(cmd.OrderAmount):
		return CouponUsage{}, fmt.Errorf("%w: discount exceeds order amount", ErrCouponInvalidInput)
	}

	coupon, err := s.coupons.FindByID(ctx, couponID)
	if err != nil {
		return CouponUsage{}, mapRepositoryError(err, ErrCouponNotFound, nil)
	}
	now := s.clock()
	if !coupon.ActiveAt(now) {
		return CouponUsage{}, ErrCouponInvalid
	}
	if coupon.LimitReached() {
		return CouponUsage{}, ErrCouponUsageLimitReached
	}

	if s.orders != nil {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return CouponUsage{}, mapRepositoryError(err, ErrOrderNotFound, nil)
		}
		if order.UserID != userID {
			return CouponUsage{}, ErrOrderNotFound
		}
	}

	usage := CouponUsage{
		ID:             couponID + "_" + orderID,
		CouponID:       couponID,
		CouponCode:     coupon.Code,
		UserID:         userID,
		OrderID:        orderID,
		DiscountAmount: cmd.DiscountAmount.Round(2),
		OrderAmount:    cmd.OrderAmount.Round(2),
		UsedAt:         now,
	}
	if err := s.usages.Record(ctx, usage); err != nil {
		var usageErr *repositories.CouponUsageError
		if errors.As(err, &usageErr) {
			switch usageErr.Code {
			case repositories.CouponUsageDuplicateOrder:
				return CouponUsage{}, ErrCouponDuplicateApplication
			case repositories.CouponUsageDuplicateUser:
				return CouponUsage{}, ErrCouponAlreadyUsed
			}
		}
		return CouponUsage{}, mapRepositoryError(err, ErrCouponNotFound, ErrCouponDuplicateApplication)
	}

	// The usage row is committed; a failed increment leaves the counter short until repaired.
	if err := s.coupons.IncrementUsage(ctx, couponID, now); err != nil {
		s.logger(ctx, "coupon.usage.increment_failed", map[string]any{
			"couponId": couponID,
			"orderId":  orderID,
			"error":    err.Error(),
		})
	}

	s.logger(ctx, "coupon.applied", map[string]any{
		"couponId": couponID,
		"code":     coupon.Code,
		"orderId":  orderID,
		"discount": usage.DiscountAmount.StringFixed(2),
	})
	return usage, nil
}

func (s *couponService) CreateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	coupon, err := normalizeCoupon(cmd.Coupon)
	if err != nil {
		return Coupon{}, err
	}
	now := s.clock()
	coupon.ID = ensurePrefixedID(couponIDPrefix, s.newID())
	coupon.TimesUsed = 0
	coupon.CreatedBy = strings.TrimSpace(cmd.ActorID)
	coupon.CreatedAt = now
	coupon.UpdatedAt = now

	if err := s.coupons.Insert(ctx, coupon); err != nil {
		return Coupon{}, mapRepositoryError(err, ErrCouponNotFound, ErrCouponCodeTaken)
	}
	s.logger(ctx, "coupon.created", map[string]any{"couponId": coupon.ID, "code": coupon.Code, "actor": coupon.CreatedBy})
	return coupon, nil
}

func (s *couponService) UpdateCoupon(ctx context.Context, cmd UpsertCouponCommand) (Coupon, error) {
	couponID := strings.TrimSpace(cmd.Coupon.ID)
	if couponID == "" {
		return Coupon{}, fmt.Errorf("%w: coupon id is required", ErrCouponInvalidInput)
	}
	existing, err := s.coupons.FindByID(ctx, couponID)
	if err != nil {
		return Coupon{}, mapRepositoryError(err, ErrCouponNotFound, nil)
	}

	coupon, err := normalizeCoupon(cmd.Coupon)
	if err != nil {
		return Coupon{}, err
	}
	if coupon.Code != existing.Code {
		return Coupon{}, fmt.Errorf("%w: code cannot be changed", ErrCouponInvalidInput)
	}
	coupon.ID = existing.ID
	coupon.TimesUsed = existing.TimesUsed
	coupon.CreatedBy = existing.CreatedBy
	coupon.CreatedAt = existing.CreatedAt
	coupon.UpdatedAt = s.clock()
	if coupon.UsageLimit != nil && *coupon.UsageLimit < existing.TimesUsed {
		return Coupon{}, fmt.Errorf("%w: usage limit is below the %d recorded usages", ErrCouponInvalidInput, existing.TimesUsed)
	}

	if err := s.coupons.Update(ctx, coupon); err != nil {
		return Coupon{}, mapRepositoryError(err, ErrCouponNotFound, nil)
	}
	s.logger(ctx, "coupon.updated", map[string]any{"couponId": coupon.ID, "actor": cmd.ActorID})
	return coupon, nil
}

func (s *couponService) GetCoupon(ctx context.Context, couponID string) (Coupon, error) {
	couponID = strings.TrimSpace(couponID)
	if couponID == "" {
		return Coupon{}, fmt.Errorf("%w: coupon id is required", ErrCouponInvalidInput)
	}
	coupon, err := s.coupons.FindByID(ctx, couponID)
	if err != nil {
		return Coupon{}, mapRepositoryError(err, ErrCouponNotFound, nil)
	}
	return coupon, nil
}

func (s *couponService) ListCoupons(ctx context.Context, filter CouponListFilter) (domain.Page[Coupon], error) {
	page, err := s.coupons.List(ctx, repositories.CouponListFilter{
		ActiveOnly: filter.ActiveOnly,
		Pagination: filter.Pagination,
	})
	if err != nil {
		return domain.Page[Coupon]{}, mapRepositoryError(err, ErrCouponNotFound, nil)
	}
	return page, nil
}

// DeleteCoupon removes an unused coupon. Redeemed coupons must be deactivated instead.
func (s *couponService) DeleteCoupon(ctx context.Context, couponID string) error {
	coupon, err := s.GetCoupon(ctx, couponID)
	if err != nil {
		return err
	}
	if coupon.TimesUsed > 0 {
		return fmt.Errorf("%w: used %d times, deactivate it instead", ErrCouponInUse, coupon.TimesUsed)
	}
	if err := s.coupons.Delete(ctx, coupon.ID); err != nil {
		return mapRepositoryError(err, ErrCouponNotFound, nil)
	}
	s.logger(ctx, "coupon.deleted", map[string]any{"couponId": coupon.ID, "code": coupon.Code})
	return nil
}

func (s *couponService) ListUsages(ctx context.Context, couponID string, pager domain.Pagination) (domain.Page[CouponUsage], error) {
	coupon, err := s.GetCoupon(ctx, couponID)
	if err != nil {
		return domain.Page[CouponUsage]{}, err
	}
	page, err := s.usages.ListByCoupon(ctx, coupon.ID, pager)
	if err != nil {
		return domain.Page[CouponUsage]{}, mapRepositoryError(err, ErrCouponNotFound, nil)
	}
	return page, nil
}

func normalizeCoupon(in Coupon) (Coupon, error) {
	out := in
	out.Code = textutil.NormalizeCode(in.Code)
	if len(out.Code) > maxCouponCodeLength {
		return Coupon{}, fmt.Errorf("%w: code must be at most %d characters", ErrCouponInvalidInput, maxCouponCodeLength)
	}
	out.Description = textutil.PlainText(in.Description, couponDescriptionLimit)
	out.DiscountType = domain.DiscountType(strings.ToLower(strings.TrimSpace(string(in.DiscountType))))
	out.DiscountValue = in.DiscountValue.Round(2)
	if err := out.Validate(); err != nil {
		return Coupon{}, fmt.Errorf("%w: %v", ErrCouponInvalidInput, err)
	}
	return out, nil
}

func ensurePrefixedID(prefix, id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		id = ulid.Make().String()
	}
	if strings.HasPrefix(id, prefix) {
		return id
	}
	return prefix + id
}
