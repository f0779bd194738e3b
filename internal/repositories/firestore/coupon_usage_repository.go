package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	pfirestore "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/firestore"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/pagination"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

const couponUsagesCollection = "couponUsages"

// CouponUsageRepository stores usages under deterministic document ids so Firestore itself
// enforces one usage per (coupon, order) and one per (coupon, user).
type CouponUsageRepository struct {
	provider *pfirestore.Provider
	usages   *pfirestore.BaseRepository[couponUsageDocument]
}

var _ repositories.CouponUsageRepository = (*CouponUsageRepository)(nil)

// NewCouponUsageRepository constructs a Firestore-backed coupon usage repository.
func NewCouponUsageRepository(provider *pfirestore.Provider) (*CouponUsageRepository, error) {
	if provider == nil {
		return nil, errors.New("coupon usage repository requires firestore provider")
	}
	return &CouponUsageRepository{
		provider: provider,
		usages:   pfirestore.NewBaseRepository[couponUsageDocument](provider, couponUsagesCollection),
	}, nil
}

func usageOrderDocID(couponID, orderID string) string {
	return fmt.Sprintf("%s_%s", couponID, orderID)
}

func usageUserDocID(couponID, userID string) string {
	return fmt.Sprintf("%s_user_%s", couponID, userID)
}

// Record creates the usage and, when a user is known, the per-user marker in one transaction.
func (r *CouponUsageRepository) Record(ctx context.Context, usage domain.CouponUsage) error {
	if strings.TrimSpace(usage.CouponID) == "" || strings.TrimSpace(usage.OrderID) == "" {
		return errors.New("coupon usage repository: coupon id and order id are required")
	}
	orderRef, err := r.usages.DocumentRef(ctx, usageOrderDocID(usage.CouponID, usage.OrderID))
	if err != nil {
		return err
	}
	var userRef *firestore.DocumentRef
	if strings.TrimSpace(usage.UserID) != "" {
		if userRef, err = r.usages.DocumentRef(ctx, usageUserDocID(usage.CouponID, usage.UserID)); err != nil {
			return err
		}
	}

	doc := couponUsageDocument{
		CouponID:       usage.CouponID,
		CouponCode:     usage.CouponCode,
		UserID:         usage.UserID,
		OrderID:        usage.OrderID,
		DiscountAmount: usage.DiscountAmount.InexactFloat64(),
		OrderAmount:    usage.OrderAmount.InexactFloat64(),
		UsedAt:         usage.UsedAt.UTC(),
	}

	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if exists, err := txExists(tx, orderRef); err != nil {
			return err
		} else if exists {
			return &repositories.CouponUsageError{Code: repositories.CouponUsageDuplicateOrder, CouponID: usage.CouponID, OrderID: usage.OrderID, UserID: usage.UserID}
		}
		if userRef != nil {
			if exists, err := txExists(tx, userRef); err != nil {
				return err
			} else if exists {
				return &repositories.CouponUsageError{Code: repositories.CouponUsageDuplicateUser, CouponID: usage.CouponID, OrderID: usage.OrderID, UserID: usage.UserID}
			}
		}
		if err := tx.Create(orderRef, doc); err != nil {
			return err
		}
		if userRef != nil {
			marker := doc
			marker.Marker = true
			return tx.Create(userRef, marker)
		}
		return nil
	})
	if err != nil {
		var usageErr *repositories.CouponUsageError
		if errors.As(err, &usageErr) {
			return usageErr
		}
		if pfirestore.IsAlreadyExists(err) {
			return &repositories.CouponUsageError{Code: repositories.CouponUsageDuplicateOrder, CouponID: usage.CouponID, OrderID: usage.OrderID, UserID: usage.UserID}
		}
		return pfirestore.WrapError("couponUsages.record", err)
	}
	return nil
}

// ExistsForUser reports whether the user already has a usage for the coupon.
func (r *CouponUsageRepository) ExistsForUser(ctx context.Context, couponID, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, nil
	}
	_, err := r.usages.Get(ctx, usageUserDocID(couponID, userID))
	if err == nil {
		return true, nil
	}
	if pfirestore.IsNotFoundStatus(err) {
		return false, nil
	}
	return false, err
}

// ListByCoupon returns usages newest first, excluding per-user markers.
func (r *CouponUsageRepository) ListByCoupon(ctx context.Context, couponID string, pager domain.Pagination) (domain.Page[domain.CouponUsage], error) {
	cursor, err := pagination.DecodeToken(pager.PageToken)
	if err != nil {
		return domain.Page[domain.CouponUsage]{}, err
	}
	size := clampPageSize(pager.PageSize)
	docs, err := r.usages.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("couponId", "==", couponID).Where("marker", "==", false).
			OrderBy("usedAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.Page[domain.CouponUsage]{}, err
	}
	page := domain.Page[domain.CouponUsage]{}
	for i, doc := range docs {
		if i == size {
			last := page.Items[len(page.Items)-1]
			page.NextPageToken = pagination.EncodeToken(pagination.Cursor{CreatedAt: last.UsedAt, ID: last.ID})
			break
		}
		page.Items = append(page.Items, domain.CouponUsage{
			ID:             doc.ID,
			CouponID:       doc.Data.CouponID,
			CouponCode:     doc.Data.CouponCode,
			UserID:         doc.Data.UserID,
			OrderID:        doc.Data.OrderID,
			DiscountAmount: domain.MoneyFromFloat(doc.Data.DiscountAmount),
			OrderAmount:    domain.MoneyFromFloat(doc.Data.OrderAmount),
			UsedAt:         doc.Data.UsedAt,
		})
	}
	return page, nil
}

func txExists(tx *firestore.Transaction, ref *firestore.DocumentRef) (bool, error) {
	snap, err := tx.Get(ref)
	if err != nil {
		if pfirestore.IsNotFoundStatus(err) {
			return false, nil
		}
		return false, err
	}
	return snap.Exists(), nil
}
