package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/timecapsule/internal/common"
	"github.com/dmitrijs2005/timecapsule/internal/server/access"
	"github.com/go-chi/chi/v5/middleware"
)

type ctxKey string

const requesterKey ctxKey = "requester"

func withRequester(ctx context.Context, r access.Requester) context.Context {
	return context.WithValue(ctx, requesterKey, r)
}

func requesterFrom(ctx context.Context) (access.Requester, bool) {
	r, ok := ctx.Value(requesterKey).(access.Requester)
	return r, ok
}

// authenticate resolves the bearer token into a requester and stores it in
// the request context.
func (s *HTTPServer) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get(common.AuthorizationHeaderName)
		if !strings.HasPrefix(header, common.BearerPrefix) {
			s.writeError(w, r, common.ErrorUnauthorized)
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, common.BearerPrefix))
		if token == "" {
			s.writeError(w, r, common.ErrorUnauthorized)
			return
		}

		requester, err := s.users.Authenticate(r.Context(), token)
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		next.ServeHTTP(w, r.WithContext(withRequester(r.Context(), requester)))
	})
}

func (s *HTTPServer) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		s.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
