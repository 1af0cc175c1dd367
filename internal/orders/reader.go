package orders

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
)

// Reader serves order lookups for consumers that never place or mutate orders.
type Reader struct {
	repo Repository
}

func NewReader(repo Repository) *Reader {
	return &Reader{repo: repo}
}

func (r *Reader) Get(ctx context.Context, orderID uuid.UUID, actor *Actor) (*models.Order, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	order, err := r.repo.FindOrderWithItems(ctx, orderID)
	if err != nil {
		return nil, mapFindError(err)
	}
	if err := authorizeOwner(order, actor); err != nil {
		return nil, err
	}
	return order, nil
}
