package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/angelmondragon/stitchwell-backend/internal/cart"
	"github.com/angelmondragon/stitchwell-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/stitchwell-backend/pkg/errors"
	"github.com/angelmondragon/stitchwell-backend/pkg/logger"
)

type productReader interface {
	FindByID(ctx context.Context, id string) (*models.Product, error)
}

// Service turns catalog rows into the product values the cart snapshots.
// Plain items are always priced from here, never from the request.
type Service struct {
	repo productReader
	logg *logger.Logger
}

func NewService(repo productReader, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	return &Service{repo: repo, logg: logg}, nil
}

// LookupProduct implements cart.ProductLookup.
func (s *Service) LookupProduct(ctx context.Context, productID string) (cart.Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return cart.Product{}, pkgerrors.New(pkgerrors.CodeValidation, "product id is required")
	}
	row, err := s.repo.FindByID(ctx, productID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return cart.Product{}, pkgerrors.New(pkgerrors.CodeNotFound, "product not found")
		}
		s.logg.Error(s.logg.WithField(ctx, "product_id", productID), "catalog lookup failed", err)
		return cart.Product{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
	}
	return toCartProduct(row), nil
}

// FindByID returns the snapshot the cart would capture for the product.
func (s *Service) FindByID(ctx context.Context, productID string) (*cart.ProductSnapshot, error) {
	product, err := s.LookupProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	images := product.Images
	if images == nil {
		images = []string{}
	}
	return &cart.ProductSnapshot{
		Name:   product.Name,
		Slug:   product.Slug,
		Price:  product.Price,
		Images: images,
		Stock:  product.Stock,
	}, nil
}

func toCartProduct(row *models.Product) cart.Product {
	images := make([]string, 0, len(row.Images))
	images = append(images, row.Images...)
	return cart.Product{
		ID:     row.ID,
		Name:   row.Name,
		Slug:   row.Slug,
		Price:  row.Price,
		Images: images,
		Stock:  row.Stock,
	}
}
