// Package services contains the server-side business logic: user accounts
// and tokens, capsules and their messages. Services load entities through
// the repository manager, decide access with the access package and keep
// attachment files consistent with committed database state.
package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/timecapsule/internal/logging"
	"github.com/dmitrijs2005/timecapsule/internal/server/filestore"
)

// Notifier enqueues notifications without waiting for delivery.
type Notifier interface {
	NotifySMS(ctx context.Context, phone, text string)
	NotifyEmail(ctx context.Context, to, subject, body string)
}

func utcNow() time.Time { return time.Now().UTC() }

// releaseFiles removes attachment files whose records are already gone.
// Failures are logged; the database is the source of truth.
func releaseFiles(ctx context.Context, files filestore.Store, log logging.Logger, refs []string) {
	for _, ref := range refs {
		if err := files.Delete(ctx, ref); err != nil {
			log.Error(ctx, "failed to release file", "file", ref, "error", err)
		}
	}
}
