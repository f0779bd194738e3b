package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	pfirestore "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/firestore"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists signed-in users' carts keyed by UID.
type CartRepository struct {
	base *pfirestore.BaseRepository[cartDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{base: pfirestore.NewBaseRepository[cartDocument](provider, cartCollection)}, nil
}

// Get loads the cart for ownerID.
func (r *CartRepository) Get(ctx context.Context, ownerID string) (domain.Cart, error) {
	owner := strings.TrimSpace(ownerID)
	if owner == "" {
		return domain.Cart{}, errors.New("cart repository: owner id is required")
	}
	doc, err := r.base.Get(ctx, owner)
	if err != nil {
		return domain.Cart{}, err
	}
	cart := doc.Data.toDomain(doc.ID)
	if cart.OwnerID == "" {
		cart.OwnerID = doc.ID
	}
	return cart, nil
}

// Save replaces the cart document.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	owner := strings.TrimSpace(cart.OwnerID)
	if owner == "" {
		return errors.New("cart repository: owner id is required")
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = time.Now().UTC()
	}
	_, err := r.base.Set(ctx, owner, newCartDocument(cart))
	return err
}

// Delete removes the cart. Missing carts are not an error.
func (r *CartRepository) Delete(ctx context.Context, ownerID string) error {
	err := r.base.Delete(ctx, strings.TrimSpace(ownerID))
	if err != nil && pfirestore.IsNotFoundStatus(err) {
		return nil
	}
	return err
}
