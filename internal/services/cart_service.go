package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

const guestOwnerPrefix = "guest:"

var (
	// ErrCartInvalidInput indicates the caller supplied invalid input.
	ErrCartInvalidInput = errors.New("cart: invalid input")
	// ErrCartItemNotFound indicates the referenced cart line does not exist.
	ErrCartItemNotFound = errors.New("cart: item not found")
	// ErrCartProductUnavailable indicates the product or size cannot be added.
	ErrCartProductUnavailable = errors.New("cart: product unavailable")
	// ErrCartFull indicates the cart reached its line limit.
	ErrCartFull = errors.New("cart: too many items")
)

// CartServiceDeps wires the cart stores and catalog lookups.
type CartServiceDeps struct {
	// Users stores carts of signed-in customers.
	Users repositories.CartRepository
	// Guests stores carts of guest sessions. Defaults to Users when nil.
	Guests      repositories.CartRepository
	Catalog     repositories.CatalogRepository
	Clock       func() time.Time
	IDGenerator func() string
	Logger      Logger
}

type cartService struct {
	users   repositories.CartRepository
	guests  repositories.CartRepository
	catalog repositories.CatalogRepository
	newID   func() string
	now     func() time.Time
	logger  Logger
}

var _ CartService = (*cartService)(nil)

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Users == nil {
		return nil, errors.New("cart service: user cart repository is required")
	}
	if deps.Catalog == nil {
		return nil, errors.New("cart service: catalog repository is required")
	}
	guests := deps.Guests
	if guests == nil {
		guests = deps.Users
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
	return &cartService{
		users:   deps.Users,
		guests:  guests,
		catalog: deps.Catalog,
		newID:   idGen,
		now:     func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

type cartOwner struct {
	key   string
	guest bool
	repo  repositories.CartRepository
}

func (s *cartService) owner(v Viewer) (cartOwner, error) {
	if uid := strings.TrimSpace(v.UserID); uid != "" {
		return cartOwner{key: uid, repo: s.users}, nil
	}
	if token := strings.TrimSpace(v.GuestSession); token != "" {
		return cartOwner{key: guestOwnerPrefix + token, guest: true, repo: s.guests}, nil
	}
	return cartOwner{}, fmt.Errorf("%w: cart owner is required", ErrCartInvalidInput)
}

func (s *cartService) load(ctx context.Context, owner cartOwner) (Cart, error) {
	cart, err := owner.repo.Get(ctx, owner.key)
	if err != nil {
		if isNotFound(err) {
			now := s.now()
			return Cart{ID: owner.key, OwnerID: owner.key, Guest: owner.guest, TotalAmount: domain.Zero, CreatedAt: now, UpdatedAt: now}, nil
		}
		return Cart{}, mapRepositoryError(err, nil, nil)
	}
	cart.OwnerID = owner.key
	cart.Guest = owner.guest
	return cart, nil
}

func (s *cartService) store(ctx context.Context, owner cartOwner, cart Cart) (Cart, error) {
	cart.Recalculate()
	cart.UpdatedAt = s.now()
	if cart.Empty() && owner.guest {
		if err := owner.repo.Delete(ctx, owner.key); err != nil && !isNotFound(err) {
			return Cart{}, mapRepositoryError(err, nil, nil)
		}
		return cart, nil
	}
	if err := owner.repo.Save(ctx, cart); err != nil {
		return Cart{}, mapRepositoryError(err, nil, nil)
	}
	return cart, nil
}

func (s *cartService) GetCart(ctx context.Context, v Viewer) (Cart, error) {
	owner, err := s.owner(v)
	if err != nil {
		return Cart{}, err
	}
	cart, err := s.load(ctx, owner)
	if err != nil {
		return Cart{}, err
	}
	cart.Recalculate()
	return cart, nil
}

func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	owner, err := s.owner(cmd.Owner)
	if err != nil {
		return Cart{}, err
	}
	productID := strings.TrimSpace(cmd.ProductID)
	size := strings.TrimSpace(cmd.Size)
	if productID == "" || size == "" {
		return Cart{}, fmt.Errorf("%w: product id and size are required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 1 || cmd.Quantity > maxLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxLineQuantity)
	}

	product, err := s.catalog.FindProduct(ctx, productID)
	if err != nil {
		if isNotFound(err) {
			return Cart{}, fmt.Errorf("%w: product %s", ErrCartProductUnavailable, productID)
		}
		return Cart{}, mapRepositoryError(err, nil, nil)
	}
	variant, ok := product.Variant(size)
	if !product.Active || !ok || !variant.Available {
		return Cart{}, fmt.Errorf("%w: %s size %s", ErrCartProductUnavailable, productID, size)
	}

	cart, err := s.load(ctx, owner)
	if err != nil {
		return Cart{}, err
	}
	if idx := cart.FindLine(product.ID, variant.ID, variant.Size); idx >= 0 {
		line := &cart.Items[idx]
		qty := line.Quantity + cmd.Quantity
		if qty > maxLineQuantity {
			return Cart{}, fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalidInput, maxLineQuantity)
		}
		line.Quantity = qty
		line.Price = variant.Price
		line.ProductName = product.Name
		line.VariantID = variant.ID
	} else {
		if len(cart.Items) >= maxOrderLines {
			return Cart{}, ErrCartFull
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ID:          s.newID(),
			ProductID:   product.ID,
			ProductName: product.Name,
			VariantID:   variant.ID,
			Size:        variant.Size,
			ImageURL:    product.ImageURL,
			Price:       variant.Price,
			Quantity:    cmd.Quantity,
			AddedAt:     s.now(),
		})
	}

	saved, err := s.store(ctx, owner, cart)
	if err != nil {
		return Cart{}, err
	}
	s.logger(ctx, "cart.item.added", map[string]any{
		"owner":     owner.key,
		"productId": productID,
		"size":      size,
		"quantity":  cmd.Quantity,
	})
	return saved, nil
}

func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	owner, err := s.owner(cmd.Owner)
	if err != nil {
		return Cart{}, err
	}
	itemID := strings.TrimSpace(cmd.ItemID)
	if itemID == "" {
		return Cart{}, fmt.Errorf("%w: item id is required", ErrCartInvalidInput)
	}
	if cmd.Quantity < 0 || cmd.Quantity > maxLineQuantity {
		return Cart{}, fmt.Errorf("%w: quantity must be between 0 and %d", ErrCartInvalidInput, maxLineQuantity)
	}
	cart, err := s.load(ctx, owner)
	if err != nil {
		return Cart{}, err
	}
	idx := cart.Find(itemID)
	if idx < 0 {
		return Cart{}, ErrCartItemNotFound
	}
	if cmd.Quantity == 0 {
		cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	} else {
		cart.Items[idx].Quantity = cmd.Quantity
	}
	return s.store(ctx, owner, cart)
}

func (s *cartService) RemoveItem(ctx context.Context, v Viewer, itemID string) (Cart, error) {
	return s.UpdateItemQuantity(ctx, UpdateCartItemCommand{Owner: v, ItemID: itemID, Quantity: 0})
}

func (s *cartService) ClearCart(ctx context.Context, v Viewer) error {
	owner, err := s.owner(v)
	if err != nil {
		return err
	}
	if err := owner.repo.Delete(ctx, owner.key); err != nil && !isNotFound(err) {
		return mapRepositoryError(err, nil, nil)
	}
	s.logger(ctx, "cart.cleared", map[string]any{"owner": owner.key})
	return nil
}

// MergeGuestCart folds the guest session's cart into the user's cart. Matching lines have their
// quantities summed; the guest cart is removed afterwards.
func (s *cartService) MergeGuestCart(ctx context.Context, userID, guestSession string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	guestSession = strings.TrimSpace(guestSession)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user id is required", ErrCartInvalidInput)
	}
	userOwner, _ := s.owner(Viewer{UserID: userID})
	userCart, err := s.load(ctx, userOwner)
	if err != nil {
		return Cart{}, err
	}
	if guestSession == "" {
		userCart.Recalculate()
		return userCart, nil
	}

	guestOwner, _ := s.owner(Viewer{GuestSession: guestSession})
	guestCart, err := s.load(ctx, guestOwner)
	if err != nil {
		return Cart{}, err
	}
	if guestCart.Empty() {
		userCart.Recalculate()
		return userCart, nil
	}

	for _, item := range guestCart.Items {
		if idx := userCart.FindLine(item.ProductID, item.VariantID, item.Size); idx >= 0 {
			qty := userCart.Items[idx].Quantity + item.Quantity
			if qty > maxLineQuantity {
				qty = maxLineQuantity
			}
			userCart.Items[idx].Quantity = qty
			continue
		}
		if len(userCart.Items) >= maxOrderLines {
			s.logger(ctx, "cart.merge.truncated", map[string]any{"userId": userID})
			break
		}
		userCart.Items = append(userCart.Items, item)
	}

	merged, err := s.store(ctx, userOwner, userCart)
	if err != nil {
		return Cart{}, err
	}
	if err := guestOwner.repo.Delete(ctx, guestOwner.key); err != nil && !isNotFound(err) {
		s.logger(ctx, "cart.merge.guest_delete_failed", map[string]any{"userId": userID, "error": err.Error()})
	}
	s.logger(ctx, "cart.merged", map[string]any{
		"userId":     userID,
		"guestItems": len(guestCart.Items),
		"totalItems": merged.TotalItems,
	})
	return merged, nil
}
