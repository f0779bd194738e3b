package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

func sampleCart(owner string) domain.Cart {
	cart := domain.Cart{
		OwnerID:   owner,
		Guest:     true,
		CreatedAt: time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC),
		UpdatedAt: time.Date(2025, 2, 3, 4, 6, 0, 0, time.UTC),
		Items: []domain.CartItem{{
			ID: "i1", ProductID: "p1", ProductName: "Gold Cup", Size: "M",
			Price: domain.MoneyFromFloat(1200.5), Quantity: 2,
		}},
	}
	cart.Recalculate()
	return cart
}

func TestCartCodecPreservesAmounts(t *testing.T) {
	data, err := encodeCart(sampleCart("g1"))
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	cart, err := decodeCart(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !cart.Guest || cart.OwnerID != "g1" || cart.TotalItems != 2 {
		t.Fatalf("unexpected cart %+v", cart)
	}
	if !cart.TotalAmount.Equal(domain.MoneyFromFloat(2401)) {
		t.Fatalf("expected totals recomputed from snapshot prices, got %s", cart.TotalAmount)
	}
}

func TestCartKey(t *testing.T) {
	if got := cartKey("abc"); got != "cart:guest:abc" {
		t.Fatalf("unexpected key %s", got)
	}
}

// Runs against a real server when REDIS_TEST_URL is set, e.g. redis://localhost:6379/15.
func TestGuestCartRepositoryRoundTrip(t *testing.T) {
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	ctx := context.Background()
	client, err := NewClient(ctx, url)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	defer client.Close()

	repo, err := NewGuestCartRepository(client, time.Minute)
	if err != nil {
		t.Fatalf("repo: %v", err)
	}
	owner := uuid.NewString()
	if err := repo.Save(ctx, sampleCart(owner)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if ttl := client.TTL(ctx, cartKey(owner)).Val(); ttl <= 0 || ttl > time.Minute {
		t.Fatalf("expected ttl applied, got %s", ttl)
	}
	got, err := repo.Get(ctx, owner)
	if err != nil || len(got.Items) != 1 {
		t.Fatalf("get: %+v %v", got, err)
	}

	empty := got
	empty.Items = nil
	if err := repo.Save(ctx, empty); err != nil {
		t.Fatalf("save empty: %v", err)
	}
	_, err = repo.Get(ctx, owner)
	var repoErr repositories.RepositoryError
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("empty guest cart should be deleted, got %v", err)
	}
}
