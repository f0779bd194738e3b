// Package memory holds in-process repository fallbacks used when optional backends are not configured.
package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

type cartEntry struct {
	cart      domain.Cart
	expiresAt time.Time
}

// CartRepository keeps guest carts in a map with a TTL. Expired entries are dropped lazily.
type CartRepository struct {
	mu    sync.Mutex
	carts map[string]cartEntry
	ttl   time.Duration
	now   func() time.Time
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository builds an in-process cart store.
func NewCartRepository(ttl time.Duration) *CartRepository {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &CartRepository{carts: make(map[string]cartEntry), ttl: ttl, now: time.Now}
}

// Get returns a copy of the stored cart.
func (r *CartRepository) Get(_ context.Context, ownerID string) (domain.Cart, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.carts[ownerID]
	if !ok || !r.now().Before(entry.expiresAt) {
		delete(r.carts, ownerID)
		return domain.Cart{}, repositories.NewNotFoundError("memoryCarts.get")
	}
	cart := entry.cart
	cart.Items = slices.Clone(entry.cart.Items)
	return cart, nil
}

// Save stores a copy of cart and refreshes its TTL. Empty carts are removed.
func (r *CartRepository) Save(_ context.Context, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cart.Empty() {
		delete(r.carts, cart.OwnerID)
		return nil
	}
	cart.Items = slices.Clone(cart.Items)
	r.carts[cart.OwnerID] = cartEntry{cart: cart, expiresAt: r.now().Add(r.ttl)}
	return nil
}

// Delete removes the cart.
func (r *CartRepository) Delete(_ context.Context, ownerID string) error {
	r.mu.Lock()
	delete(r.carts, ownerID)
	r.mu.Unlock()
	return nil
}
