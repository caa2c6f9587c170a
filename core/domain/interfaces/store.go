package interfaces

import (
	"context"

	"github.com/hyperterse/hypercluster/core/domain"
)

// ProductStore is the data-access layer behind the product API. Lookups by id
// return domain.ErrProductNotFound when the id is unknown.
type ProductStore interface {
	GetAll(ctx context.Context) ([]domain.Product, error)
	Save(ctx context.Context, in domain.ProductInput) (domain.Product, error)
	GetByID(ctx context.Context, id string) (domain.Product, error)
	UpdateByID(ctx context.Context, id string, in domain.ProductInput) (domain.Product, error)
	DeleteByID(ctx context.Context, id string) error
	Close() error
}
