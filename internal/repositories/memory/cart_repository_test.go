package memory

import (
	"context"
	"testing"
	"time"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

func TestCartRepositoryExpiresEntries(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	repo := NewCartRepository(time.Hour)
	repo.now = func() time.Time { return now }
	ctx := context.Background()

	cart := domain.Cart{OwnerID: "g1", Guest: true, Items: []domain.CartItem{{ID: "i1", Quantity: 1, Price: domain.MoneyFromFloat(10)}}}
	if err := repo.Save(ctx, cart); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := repo.Get(ctx, "g1")
	if err != nil || len(got.Items) != 1 {
		t.Fatalf("get: %+v %v", got, err)
	}
	got.Items[0].Quantity = 99
	again, _ := repo.Get(ctx, "g1")
	if again.Items[0].Quantity != 1 {
		t.Fatalf("stored cart must not alias caller slices")
	}

	now = now.Add(2 * time.Hour)
	_, err = repo.Get(ctx, "g1")
	if repoErr, ok := err.(repositories.RepositoryError); !ok || !repoErr.IsNotFound() {
		t.Fatalf("expected expiry, got %v", err)
	}
}

func TestCartRepositoryDropsEmptyCarts(t *testing.T) {
	repo := NewCartRepository(0)
	ctx := context.Background()
	_ = repo.Save(ctx, domain.Cart{OwnerID: "g1", Items: []domain.CartItem{{ID: "i1", Quantity: 1}}})
	_ = repo.Save(ctx, domain.Cart{OwnerID: "g1"})
	if _, err := repo.Get(ctx, "g1"); err == nil {
		t.Fatalf("empty cart should not be stored")
	}
}
