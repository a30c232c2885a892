// Package httpapi exposes the capsule services over a REST API.
package httpapi

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/timecapsule/internal/logging"
	"github.com/dmitrijs2005/timecapsule/internal/server/access"
	"github.com/dmitrijs2005/timecapsule/internal/server/models"
	"github.com/dmitrijs2005/timecapsule/internal/server/services"
)

const (
	defaultShutdownTimeout = 10 * time.Second
	maxUploadSize          = 32 << 20
	maxJSONBodySize        = 1 << 20
)

type UserService interface {
	Register(ctx context.Context, in services.NewUser) (*models.User, error)
	Login(ctx context.Context, phone, password string) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
	Authenticate(ctx context.Context, accessToken string) (access.Requester, error)
	Get(ctx context.Context, r access.Requester, id int64) (*models.User, error)
	Update(ctx context.Context, r access.Requester, id int64, patch models.UserPatch) (*models.User, error)
	Delete(ctx context.Context, r access.Requester, id int64) error
}

type CapsuleService interface {
	Create(ctx context.Context, r access.Requester, in services.NewCapsule) (*models.Capsule, error)
	Get(ctx context.Context, r access.Requester, id int64) (*models.CapsuleView, error)
	Update(ctx context.Context, r access.Requester, id int64, patch models.CapsulePatch) (*models.Capsule, error)
	Delete(ctx context.Context, r access.Requester, id int64) error
}

type MessageService interface {
	Create(ctx context.Context, r access.Requester, capsuleID int64, in services.MessageInput) (*models.Message, error)
	Get(ctx context.Context, r access.Requester, capsuleID, messageID int64) (*models.Message, error)
	Update(ctx context.Context, r access.Requester, capsuleID, messageID int64, in services.MessageInput) (*models.Message, error)
	Delete(ctx context.Context, r access.Requester, capsuleID, messageID int64) error
	Download(ctx context.Context, r access.Requester, capsuleID, messageID int64) (*services.Attachment, error)
}

type HTTPServer struct {
	address         string
	users           UserService
	capsules        CapsuleService
	messages        MessageService
	logger          logging.Logger
	shutdownTimeout time.Duration
	listen          func(srv *http.Server) error
}

func NewHTTPServer(a string, l logging.Logger, us UserService, cs CapsuleService, ms MessageService, shutdownTimeout time.Duration) *HTTPServer {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &HTTPServer{
		address:         a,
		logger:          l.With("module", "http_server"),
		users:           us,
		capsules:        cs,
		messages:        ms,
		shutdownTimeout: shutdownTimeout,
		listen:          (*http.Server).ListenAndServe,
	}
}

// Run serves requests until ctx is cancelled, then shuts the server down
// gracefully.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.NewRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		stopped <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := s.listen(srv); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return <-stopped
}

func closeQuietly(c io.Closer) { _ = c.Close() }
