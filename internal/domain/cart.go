package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Cart holds line items for a signed-in user or a guest session.
type Cart struct {
	ID          string
	OwnerID     string
	Guest       bool
	Items       []CartItem
	TotalItems  int
	TotalAmount Money
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CartItem snapshots product name, size and price when the item is added.
type CartItem struct {
	ID          string
	ProductID   string
	ProductName string
	VariantID   string
	Size        string
	ImageURL    string
	Price       Money
	Quantity    int
	Subtotal    Money
	AddedAt     time.Time
}

// Recalculate refreshes subtotals and the denormalised totals. Call after every mutation.
func (c *Cart) Recalculate() {
	total := Zero
	count := 0
	for i := range c.Items {
		item := &c.Items[i]
		item.Subtotal = item.Price.Mul(decimal.NewFromInt(int64(item.Quantity)))
		total = total.Add(item.Subtotal)
		count += item.Quantity
	}
	c.TotalAmount = total
	c.TotalItems = count
}

// Find returns the index of the item with id, or -1.
func (c Cart) Find(itemID string) int {
	for i, item := range c.Items {
		if item.ID == itemID {
			return i
		}
	}
	return -1
}

// FindLine returns the index of the line holding the product variant, or -1. Lines stored without a
// variant id fall back to a case-insensitive size match.
func (c Cart) FindLine(productID, variantID, size string) int {
	for i, item := range c.Items {
		if item.ProductID != productID {
			continue
		}
		if variantID != "" && item.VariantID != "" {
			if item.VariantID == variantID {
				return i
			}
			continue
		}
		if strings.EqualFold(item.Size, size) {
			return i
		}
	}
	return -1
}

// Empty reports whether the cart has no items.
func (c Cart) Empty() bool { return len(c.Items) == 0 }
