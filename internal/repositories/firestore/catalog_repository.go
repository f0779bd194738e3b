package firestore

import (
	"context"
	"errors"
	"sort"
	"strings"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	domain "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/domain"
	pfirestore "github.com/abhirajkale-hub/plaque-e-com-sub000/internal/platform/firestore"
	"github.com/abhirajkale-hub/plaque-e-com-sub000/internal/repositories"
)

// CatalogRepository reads products and their variants subcollection.
type CatalogRepository struct {
	provider *pfirestore.Provider
	products *pfirestore.BaseRepository[productDocument]
}

var _ repositories.CatalogRepository = (*CatalogRepository)(nil)

// NewCatalogRepository constructs a Firestore-backed catalog repository.
func NewCatalogRepository(provider *pfirestore.Provider) (*CatalogRepository, error) {
	if provider == nil {
		return nil, errors.New("catalog repository requires firestore provider")
	}
	return &CatalogRepository{
		provider: provider,
		products: pfirestore.NewBaseRepository[productDocument](provider, productsCollection),
	}, nil
}

// FindProduct loads a product with all of its variants ordered by size.
func (r *CatalogRepository) FindProduct(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, strings.TrimSpace(productID))
	if err != nil {
		return domain.Product{}, err
	}
	ref, err := r.products.DocumentRef(ctx, doc.ID)
	if err != nil {
		return domain.Product{}, err
	}

	product := domain.Product{
		ID:          doc.ID,
		Name:        doc.Data.Name,
		Description: doc.Data.Description,
		Category:    doc.Data.Category,
		Active:      doc.Data.Active,
		ImageURL:    doc.Data.ImageURL,
		CreatedAt:   doc.Data.CreatedAt,
		UpdatedAt:   doc.Data.UpdatedAt,
	}

	iter := ref.Collection(variantsCollection).Documents(ctx)
	defer iter.Stop()
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return domain.Product{}, pfirestore.WrapError("products.variants", err)
		}
		variant, err := pfirestore.Decode[variantDocument](snap)
		if err != nil {
			return domain.Product{}, err
		}
		product.Variants = append(product.Variants, variant.Data.toDomain(doc.ID, variant.ID))
	}
	sort.Slice(product.Variants, func(i, j int) bool { return product.Variants[i].Size < product.Variants[j].Size })
	return product, nil
}

// RestoreStock adds quantities back with atomic increments. Lines for deleted variants are skipped.
func (r *CatalogRepository) RestoreStock(ctx context.Context, lines []repositories.StockLine) error {
	if len(lines) == 0 {
		return nil
	}
	client, err := r.provider.Client(ctx)
	if err != nil {
		return err
	}
	return r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		refs := make([]*firestore.DocumentRef, 0, len(lines))
		quantities := make([]int, 0, len(lines))
		for _, line := range lines {
			if line.Quantity <= 0 || line.VariantID == "" {
				continue
			}
			ref := client.Collection(productsCollection).Doc(line.ProductID).Collection(variantsCollection).Doc(line.VariantID)
			if _, err := tx.Get(ref); err != nil {
				if pfirestore.IsNotFoundStatus(err) {
					continue
				}
				return err
			}
			refs = append(refs, ref)
			quantities = append(quantities, line.Quantity)
		}
		for i, ref := range refs {
			if err := tx.Update(ref, []firestore.Update{{Path: "stock", Value: firestore.Increment(quantities[i])}}); err != nil {
				return err
			}
		}
		return nil
	})
}
