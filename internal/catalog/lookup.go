package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/dishdash-backend/internal/repo"
	"github.com/angelmondragon/dishdash-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/dishdash-backend/pkg/errors"
)

// Lookup reads menu data owned by the catalog. Missing ids are simply absent from the maps.
type Lookup interface {
	FindMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error)
	FindModifierOptions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ModifierOption, error)
}

// Repository is the gorm-backed Lookup.
type Repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

func (r *Repository) FindMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error) {
	out := make(map[uuid.UUID]models.MenuItem, len(ids))
	ids = dedupe(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.MenuItem
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu items")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func (r *Repository) FindModifierOptions(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.ModifierOption, error) {
	out := make(map[uuid.UUID]models.ModifierOption, len(ids))
	ids = dedupe(ids)
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.ModifierOption
	if err := r.DB(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load modifier options")
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
