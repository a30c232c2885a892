// Package capsules persists time capsules.
package capsules

import (
	"context"

	"github.com/dmitrijs2005/timecapsule/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, capsule *models.Capsule) (*models.Capsule, error)
	// GetByID returns common.ErrorNotFound for an unknown id.
	GetByID(ctx context.Context, id int64) (*models.Capsule, error)
	// GetForUpdate is GetByID with a row lock, for use inside a transaction.
	GetForUpdate(ctx context.Context, id int64) (*models.Capsule, error)
	Update(ctx context.Context, capsule *models.Capsule) error
	Delete(ctx context.Context, id int64) error
}
