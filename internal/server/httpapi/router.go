package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
)

func (s *HTTPServer) NewRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeDetail(w, http.StatusOK, "ok")
	})
	r.Post("/users/", s.handleRegister)
	r.Post("/login", s.handleLogin)
	r.Post("/refresh", s.handleRefresh)

	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)

		r.Get("/me", s.handleMe)
		r.Route("/users/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetUser)
			r.Put("/", s.handleUpdateUser)
			r.Delete("/", s.handleDeleteUser)
		})

		r.Post("/capsules/", s.handleCreateCapsule)
		r.Route("/capsules/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetCapsule)
			r.Put("/", s.handleUpdateCapsule)
			r.Delete("/", s.handleDeleteCapsule)

			r.Post("/messages/", s.handleCreateMessage)
			r.Route("/messages/{mid}", func(r chi.Router) {
				r.Get("/", s.handleGetMessage)
				r.Put("/", s.handleUpdateMessage)
				r.Delete("/", s.handleDeleteMessage)
				r.Get("/file", s.handleDownload)
			})
		})
	})

	return r
}
