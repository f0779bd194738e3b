package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	pfirestore "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/firestore"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/pagination"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

const couponsCollection = "coupons"

// CouponRepository persists coupon definitions.
type CouponRepository struct {
	provider *pfirestore.Provider
	coupons  *pfirestore.BaseRepository[couponDocument]
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

// NewCouponRepository constructs a Firestore-backed coupon repository.
func NewCouponRepository(provider *pfirestore.Provider) (*CouponRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon repository requires firestore provider")
	}
	return &CouponRepository{
		provider: provider,
		coupons:  pfirestore.NewBaseRepository[couponDocument](provider, couponsCollection),
	}, nil
}

// Insert creates the coupon, checking code uniqueness inside the transaction.
func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	coll, err := r.coupons.CollectionRef(ctx)
	if err != nil {
		return err
	}
	ref := coll.Doc(coupon.ID)
	doc := newCouponDocument(coupon)
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, err := tx.Documents(coll.Where("code", "==", doc.Code).Limit(1)).GetAll()
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return status.Errorf(codes.AlreadyExists, "coupon code %s already exists", doc.Code)
		}
		return tx.Create(ref, doc)
	})
	return pfirestore.WrapError("coupons.insert", err)
}

// Update replaces the stored definition. The usage counter is owned by IncrementUsage and is preserved.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) error {
	ref, err := r.coupons.DocumentRef(ctx, coupon.ID)
	if err != nil {
		return err
	}
	doc := newCouponDocument(coupon)
	_, err = ref.Update(ctx, []firestore.Update{
		{Path: "description", Value: doc.Description},
		{Path: "discountType", Value: doc.DiscountType},
		{Path: "discountValue", Value: doc.DiscountValue},
		{Path: "minOrderAmount", Value: nullable(doc.MinOrderAmount)},
		{Path: "maxDiscountAmount", Value: nullable(doc.MaxDiscountAmount)},
		{Path: "usageLimit", Value: nullable(doc.UsageLimit)},
		{Path: "isActive", Value: doc.Active},
		{Path: "startsAt", Value: nullable(doc.StartsAt)},
		{Path: "expiresAt", Value: nullable(doc.ExpiresAt)},
		{Path: "updatedAt", Value: doc.UpdatedAt},
	}, firestore.Exists)
	return pfirestore.WrapError("coupons.update", err)
}

// Delete removes the coupon.
func (r *CouponRepository) Delete(ctx context.Context, couponID string) error {
	return r.coupons.Delete(ctx, couponID, firestore.Exists)
}

// FindByID loads a coupon by document id.
func (r *CouponRepository) FindByID(ctx context.Context, couponID string) (domain.Coupon, error) {
	doc, err := r.coupons.Get(ctx, couponID)
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByCode loads a coupon by its normalised code.
func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Coupon{}, pfirestore.NotFound("coupons.findByCode")
	}
	doc, err := r.coupons.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("code", "==", code)
	})
	if err != nil {
		return domain.Coupon{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// List returns coupons newest first.
func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) (domain.Page[domain.Coupon], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.Page[domain.Coupon]{}, err
	}
	size := clampPageSize(filter.Pagination.PageSize)
	docs, err := r.coupons.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("isActive", "==", true)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.Page[domain.Coupon]{}, err
	}
	page := domain.Page[domain.Coupon]{}
	for i, doc := range docs {
		if i == size {
			last := page.Items[len(page.Items)-1]
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID})
			break
		}
		page.Items = append(page.Items, doc.Data.toDomain(doc.ID))
	}
	return page, nil
}

// IncrementUsage bumps timesUsed with a server-side increment.
func (r *CouponRepository) IncrementUsage(ctx context.Context, couponID string, now time.Time) error {
	_, err := r.coupons.Update(ctx, couponID, []firestore.Update{
		{Path: "timesUsed", Value: firestore.Increment(1)},
		{Path: "updatedAt", Value: now.UTC()},
	}, firestore.Exists)
	if err != nil {
		return fmt.Errorf("coupons.incrementUsage: %w", err)
	}
	return nil
}

// nullable turns a typed nil pointer into an untyped nil so Firestore stores null.
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}
