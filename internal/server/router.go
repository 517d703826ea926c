// internal/server/router.go

// Package server assembles the HTTP API from the bounded-context handlers.
package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"librarium/internal/catalog"
	"librarium/internal/circulation"
	"librarium/internal/clients"
	"librarium/internal/httpx"
	"librarium/internal/membership"
)

// Deps are the services the router exposes.
type Deps struct {
	Users       membership.Service
	Tokens      *membership.TokenIssuer
	Catalog     catalog.Service
	Clients     clients.Service
	Circulation circulation.Service
	Logger      *slog.Logger

	// Ping reports storage health for /healthz. Optional.
	Ping func(ctx context.Context) error
}

// compressionLevel applies to both gzip and brotli responses.
const compressionLevel = 5

type healthResponse struct {
	Status string `json:"status"`
}

// NewRouter builds the /api/v1 route table.
func NewRouter(d Deps) http.Handler {
	users := membership.NewHandler(d.Users, d.Logger)
	books := catalog.NewHandler(d.Catalog, d.Logger)
	profiles := clients.NewHandler(d.Clients, d.Logger)
	checkouts := circulation.NewHandler(d.Circulation, d.Logger)

	authenticated := membership.Authenticate(d.Tokens, d.Logger)
	admin := membership.RequireRoles(d.Logger, membership.RoleAdmin)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestLogger(d.Logger))
	r.Use(middleware.Recoverer)
	r.Use(compressor().Handler)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if d.Ping != nil {
			if err := d.Ping(r.Context()); err != nil {
				d.Logger.ErrorContext(r.Context(), "health check failed", slog.Any("error", err))
				httpx.WriteJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		httpx.WriteJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/auth/login", users.HandleLogin)
		r.Post("/users/register", users.HandleRegister)

		r.Get("/books", books.HandleList)
		r.Get("/books/{id}", books.HandleGet)
		r.Get("/books/isbn/{isbn}", books.HandleGetByISBN)

		r.Group(func(r chi.Router) {
			r.Use(authenticated)

			r.Put("/users/{id}", users.HandleUpdate)
			r.Patch("/users/{id}", users.HandleUpdate)
			r.Get("/clients", profiles.HandleList)
			r.Get("/checkouts/book/{id}/available", checkouts.HandleAvailable)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticated, admin)

			r.Post("/users/create", users.HandleCreate)
			r.Get("/users", users.HandleList)
			r.Get("/users/{id}", users.HandleGet)
			r.Delete("/users/{id}", users.HandleDelete)

			r.Post("/books", books.HandleCreate)
			r.Put("/books/{id}", books.HandleUpdate)
			r.Delete("/books/{id}", books.HandleDelete)

			r.Post("/clients", profiles.HandleCreate)
			r.Post("/clients/search", profiles.HandleSearch)
			r.Get("/clients/{id}", profiles.HandleGet)
			r.Put("/clients/{id}", profiles.HandleUpdate)
			r.Delete("/clients/{id}", profiles.HandleDelete)

			r.Get("/checkouts", checkouts.HandleList)
			r.Post("/checkouts", checkouts.HandleCreate)
			r.Get("/checkouts/active", checkouts.HandleActive)
			r.Get("/checkouts/expired", checkouts.HandleExpired)
			r.Post("/checkouts/quick", checkouts.HandleQuick)
			r.Post("/checkouts/search", checkouts.HandleSearch)
			r.Get("/checkouts/client/{id}", checkouts.HandleByClient)
			r.Get("/checkouts/client/{id}/active", checkouts.HandleClientActive)
			r.Get("/checkouts/book/{id}", checkouts.HandleByBook)
			r.Get("/checkouts/{id}", checkouts.HandleGet)
			r.Put("/checkouts/{id}", checkouts.HandleUpdate)
			r.Post("/checkouts/{id}/extend", checkouts.HandleExtend)
			r.Delete("/checkouts/{id}", checkouts.HandleReturn)
		})
	})

	return r
}

// compressor negotiates brotli or gzip for JSON responses.
func compressor() *middleware.Compressor {
	c := middleware.NewCompressor(compressionLevel, "application/json")
	c.SetEncoder("br", func(w io.Writer, level int) io.Writer {
		return brotli.NewWriterLevel(w, level)
	})
	return c
}
