// Package refreshtokens declares the repository contract for refresh tokens
// issued alongside access tokens.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/timecapsule/internal/server/models"
)

type Repository interface {
	// Create stores a new refresh token for userID that expires at now+validity.
	Create(ctx context.Context, userID int64, token string, validity time.Duration) error

	// Consume removes the token and returns it. An absent or already
	// consumed token yields common.ErrorNotFound.
	Consume(ctx context.Context, token string) (*models.RefreshToken, error)

	// DeleteByUser revokes every token of the user.
	DeleteByUser(ctx context.Context, userID int64) error
}
