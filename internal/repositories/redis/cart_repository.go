// Package redis keeps guest carts in Redis with a sliding TTL.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

const defaultGuestCartTTL = 7 * 24 * time.Hour

// NewClient parses url and verifies the connection.
func NewClient(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("redis: invalid url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

// GuestCartRepository implements repositories.CartRepository for guest session carts.
type GuestCartRepository struct {
	client goredis.Cmdable
	ttl    time.Duration
}

var _ repositories.CartRepository = (*GuestCartRepository)(nil)

// NewGuestCartRepository stores carts under cart:guest:{token}; every save refreshes the TTL.
func NewGuestCartRepository(client goredis.Cmdable, ttl time.Duration) (*GuestCartRepository, error) {
	if client == nil {
		return nil, errors.New("guest cart repository requires redis client")
	}
	if ttl <= 0 {
		ttl = defaultGuestCartTTL
	}
	return &GuestCartRepository{client: client, ttl: ttl}, nil
}

func cartKey(owner string) string {
	return fmt.Sprintf("cart:guest:%s", owner)
}

// Get loads the guest cart.
func (r *GuestCartRepository) Get(ctx context.Context, ownerID string) (domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKey(ownerID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return domain.Cart{}, repositories.NewNotFoundError("guestCarts.get")
	}
	if err != nil {
		return domain.Cart{}, repositories.NewUnavailableError("guestCarts.get", err)
	}
	cart, err := decodeCart(data)
	if err != nil {
		return domain.Cart{}, fmt.Errorf("guestCarts.get: %w", err)
	}
	return cart, nil
}

// Save writes the cart. Empty carts are deleted instead of stored.
func (r *GuestCartRepository) Save(ctx context.Context, cart domain.Cart) error {
	if cart.Empty() {
		return r.Delete(ctx, cart.OwnerID)
	}
	data, err := encodeCart(cart)
	if err != nil {
		return fmt.Errorf("guestCarts.save: %w", err)
	}
	if err := r.client.Set(ctx, cartKey(cart.OwnerID), data, r.ttl).Err(); err != nil {
		return repositories.NewUnavailableError("guestCarts.save", err)
	}
	return nil
}

// Delete removes the cart.
func (r *GuestCartRepository) Delete(ctx context.Context, ownerID string) error {
	if err := r.client.Del(ctx, cartKey(ownerID)).Err(); err != nil {
		return repositories.NewUnavailableError("guestCarts.delete", err)
	}
	return nil
}

type cartPayload struct {
	OwnerID   string        `json:"ownerId"`
	Items     []itemPayload `json:"items"`
	CreatedAt time.Time     `json:"createdAt"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

type itemPayload struct {
	ID          string       `json:"id"`
	ProductID   string       `json:"productId"`
	ProductName string       `json:"productName"`
	VariantID   string       `json:"variantId,omitempty"`
	Size        string       `json:"size"`
	ImageURL    string       `json:"imageUrl,omitempty"`
	Price       domain.Money `json:"price"`
	Quantity    int          `json:"quantity"`
	AddedAt     time.Time    `json:"addedAt"`
}

func encodeCart(cart domain.Cart) ([]byte, error) {
	payload := cartPayload{OwnerID: cart.OwnerID, CreatedAt: cart.CreatedAt.UTC(), UpdatedAt: cart.UpdatedAt.UTC()}
	for _, item := range cart.Items {
		payload.Items = append(payload.Items, itemPayload{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			Size:        item.Size,
			ImageURL:    item.ImageURL,
			Price:       item.Price,
			Quantity:    item.Quantity,
			AddedAt:     item.AddedAt.UTC(),
		})
	}
	return json.Marshal(payload)
}

func decodeCart(data []byte) (domain.Cart, error) {
	var payload cartPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return domain.Cart{}, err
	}
	cart := domain.Cart{
		ID:        payload.OwnerID,
		OwnerID:   payload.OwnerID,
		Guest:     true,
		CreatedAt: payload.CreatedAt,
		UpdatedAt: payload.UpdatedAt,
	}
	for _, item := range payload.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ID:          item.ID,
			ProductID:   item.ProductID,
			ProductName: item.ProductName,
			VariantID:   item.VariantID,
			Size:        item.Size,
			ImageURL:    item.ImageURL,
			Price:       item.Price,
			Quantity:    item.Quantity,
			AddedAt:     item.AddedAt,
		})
	}
	cart.Recalculate()
	return cart, nil
}
