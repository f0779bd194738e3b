package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	pfirestore "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/firestore"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/pagination"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

const (
	ordersCollection   = "orders"
	productsCollection = "products"
	variantsCollection = "variants"

	defaultListSize = 20
	maxListSize     = 100
)

// OrderRepository persists orders in Firestore.
type OrderRepository struct {
	provider *pfirestore.Provider
	orders   *pfirestore.BaseRepository[orderDocument]
	clock    func() time.Time
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		provider: provider,
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, ordersCollection),
		clock:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// Insert creates the order document, decrementing variant stock in the same transaction.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order, stock []repositories.StockLine) error {
	id := strings.TrimSpace(order.ID)
	if id == "" {
		return errors.New("order repository: order id is required")
	}
	doc := newOrderDocument(order)
	if len(stock) == 0 {
		return r.orders.Create(ctx, id, doc)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		refs := make([]*firestore.DocumentRef, len(stock))
		remaining := make([]int, len(stock))
		// Firestore requires all reads before any write in a transaction.
		for i, line := range stock {
			ref := client.Collection(productsCollection).Doc(line.ProductID).Collection(variantsCollection).Doc(line.VariantID)
			snap, err := tx.Get(ref)
			if err != nil {
				if pfirestore.IsNotFoundStatus(err) {
					return &repositories.StockError{Code: repositories.StockErrorVariantNotFound, ProductID: line.ProductID, VariantID: line.VariantID, Requested: line.Quantity}
				}
				return err
			}
			var variant variantDocument
			if err := snap.DataTo(&variant); err != nil {
				return fmt.Errorf("decode variant %s/%s: %w", line.ProductID, line.VariantID, err)
			}
			if !variant.Available {
				return &repositories.StockError{Code: repositories.StockErrorVariantUnavailable, ProductID: line.ProductID, VariantID: line.VariantID, Requested: line.Quantity, Available: variant.Stock}
			}
			if variant.Stock < line.Quantity {
				return &repositories.StockError{Code: repositories.StockErrorInsufficient, ProductID: line.ProductID, VariantID: line.VariantID, Requested: line.Quantity, Available: variant.Stock}
			}
			refs[i] = ref
			remaining[i] = variant.Stock - line.Quantity
		}
		for i, ref := range refs {
			if err := tx.Update(ref, []firestore.Update{{Path: "stock", Value: remaining[i]}}); err != nil {
				return err
			}
		}
		return tx.Create(client.Collection(ordersCollection).Doc(id), doc)
	})
	if err != nil {
		var stockErr *repositories.StockError
		if errors.As(err, &stockErr) {
			return stockErr
		}
		return pfirestore.WrapError("orders.insert", err)
	}
	return nil
}

// FindByID loads a single order.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	doc, err := r.orders.Get(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// FindByOrderNumber looks an order up by its human-readable number.
func (r *OrderRepository) FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error) {
	return r.findBy(ctx, "orderNumber", orderNumber)
}

// FindByGatewayOrderID looks an order up by the payment gateway's order id.
func (r *OrderRepository) FindByGatewayOrderID(ctx context.Context, gatewayOrderID string) (domain.Order, error) {
	return r.findBy(ctx, "gatewayOrderId", gatewayOrderID)
}

// FindByGatewayPaymentID looks an order up by the payment gateway's payment id.
func (r *OrderRepository) FindByGatewayPaymentID(ctx context.Context, gatewayPaymentID string) (domain.Order, error) {
	return r.findBy(ctx, "gatewayPaymentId", gatewayPaymentID)
}

// FindByTrackingCode looks an order up by carrier AWB.
func (r *OrderRepository) FindByTrackingCode(ctx context.Context, trackingCode string) (domain.Order, error) {
	return r.findBy(ctx, "trackingCode", trackingCode)
}

func (r *OrderRepository) findBy(ctx context.Context, field, value string) (domain.Order, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return domain.Order{}, pfirestore.NotFound("orders.findBy." + field)
	}
	doc, err := r.orders.First(ctx, func(q firestore.Query) firestore.Query {
		return q.Where(field, "==", value)
	})
	if err != nil {
		return domain.Order{}, err
	}
	return doc.Data.toDomain(doc.ID), nil
}

// Mutate runs fn against the current document inside a transaction and writes the result.
func (r *OrderRepository) Mutate(ctx context.Context, orderID string, fn repositories.OrderMutation) (domain.Order, error) {
	if fn == nil {
		return domain.Order{}, errors.New("order repository: mutation is required")
	}
	ref, err := r.orders.DocumentRef(ctx, strings.TrimSpace(orderID))
	if err != nil {
		return domain.Order{}, err
	}

	var result domain.Order
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		decoded, err := pfirestore.Decode[orderDocument](snap)
		if err != nil {
			return err
		}
		order := decoded.Data.toDomain(decoded.ID)
		if err := fn(&order); err != nil {
			if errors.Is(err, repositories.ErrSkipWrite) {
				result = order
				return nil
			}
			return err
		}
		if order.UpdatedAt.IsZero() || !order.UpdatedAt.After(decoded.Data.UpdatedAt) {
			order.UpdatedAt = r.clock()
		}
		result = order
		return tx.Set(ref, newOrderDocument(order))
	})
	if err != nil {
		return domain.Order{}, pfirestore.WrapError("orders.mutate", err)
	}
	return result, nil
}

// List returns orders newest first.
func (r *OrderRepository) List(ctx context.Context, filter repositories.OrderListFilter) (domain.Page[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}
	size := clampPageSize(filter.Pagination.PageSize)

	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		if uid := strings.TrimSpace(filter.UserID); uid != "" {
			q = q.Where("userId", "==", uid)
		}
		if len(filter.Status) == 1 {
			q = q.Where("status", "==", string(filter.Status[0]))
		} else if len(filter.Status) > 1 {
			statuses := make([]string, len(filter.Status))
			for i, s := range filter.Status {
				statuses[i] = string(s)
			}
			q = q.Where("status", "in", statuses)
		}
		q = q.OrderBy("createdAt", firestore.Desc).OrderBy(firestore.DocumentID, firestore.Desc)
		if !cursor.IsZero() {
			q = q.StartAfter(cursor.CreatedAt, cursor.ID)
		}
		return q.Limit(size + 1)
	})
	if err != nil {
		return domain.Page[domain.Order]{}, err
	}

	page := domain.Page[domain.Order]{Items: make([]domain.Order, 0, min(len(docs), size))}
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

// ListAwaitingPayment returns pending orders with a gateway order created before the cutoff.
func (r *OrderRepository) ListAwaitingPayment(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Order, error) {
	if limit <= 0 {
		limit = defaultListSize
	}
	docs, err := r.orders.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("paymentStatus", "in", []string{string(domain.PaymentStatusPending), string(domain.PaymentStatusAuthorized)}).
			Where("status", "==", string(domain.OrderStatusNew)).
			Where("createdAt", "<", createdBefore.UTC()).
			OrderBy("createdAt", firestore.Asc).
			Limit(limit)
	})
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		if doc.Data.GatewayOrderID == "" {
			continue
		}
		orders = append(orders, doc.Data.toDomain(doc.ID))
	}
	return orders, nil
}

func clampPageSize(size int) int {
	switch {
	case size <= 0:
		return defaultListSize
	case size > maxListSize:
		return maxListSize
	default:
		return size
	}
}
