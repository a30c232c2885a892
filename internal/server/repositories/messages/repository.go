// Package messages persists capsule messages.
package messages

import (
	"context"

	"github.com/dmitrijs2005/timecapsule/internal/server/models"
)

// Repository stores messages scoped by their capsule. A message id that
// belongs to another capsule is reported as common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, msg *models.Message) (*models.Message, error)
	Get(ctx context.Context, capsuleID, messageID int64) (*models.Message, error)
	// ListByCapsule returns messages in insertion order.
	ListByCapsule(ctx context.Context, capsuleID int64) ([]*models.Message, error)
	Update(ctx context.Context, msg *models.Message) error
	Delete(ctx context.Context, capsuleID, messageID int64) error
	// FilenamesByCapsule lists stored file references of a capsule's messages.
	FilenamesByCapsule(ctx context.Context, capsuleID int64) ([]string, error)
	// FilenamesByUser lists file references that a user deletion cascades to:
	// messages the user authored and messages in capsules the user owns.
	FilenamesByUser(ctx context.Context, userID int64) ([]string, error)
}
