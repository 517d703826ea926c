// cmd/api/main.go
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"librarium/internal/catalog"
	"librarium/internal/circulation"
	"librarium/internal/clients"
	"librarium/internal/config"
	"librarium/internal/database"
	"librarium/internal/membership"
	"librarium/internal/server"
	"librarium/internal/telemetry"
)

var version = "dev"

// repositories bundles the storage of every context for one driver.
type repositories struct {
	users   membership.Repository
	books   catalog.Repository
	clients clients.Repository
	db      *sqlx.DB
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := telemetry.NewLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.OTLPEndpoint, version)
	if err != nil {
		log.Fatalf("Failed to set up tracing: %v", err)
	}

	repos, err := openRepositories(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to open storage: %v", err)
	}
	if repos.db != nil {
		defer repos.db.Close()
	}

	if cfg.UsesDefaultSecret() {
		logger.Warn("APP_SECRET_KEY is not set, tokens are signed with the development default")
	}
	tokens := membership.NewTokenIssuer(cfg.SecretKey, cfg.TokenTTL)
	users := membership.NewService(repos.users, tokens, membership.WithLogger(logger))

	if cfg.AdminEmail != "" {
		if _, err := users.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
			log.Fatalf("Failed to create admin account: %v", err)
		}
	}

	books := catalog.NewService(repos.books, logger)
	profiles := clients.NewService(repos.clients, users, clients.WithLogger(logger))

	var store circulation.Store
	if repos.db != nil {
		store = circulation.NewPostgresStore(repos.db, database.NewBreaker("circulation", logger))
	} else {
		store = circulation.NewMemoryStore(books, profiles)
	}
	loans := circulation.NewService(store, circulation.WithLogger(logger))

	deps := server.Deps{
		Users:       users,
		Tokens:      tokens,
		Catalog:     books,
		Clients:     profiles,
		Circulation: loans,
		Logger:      logger,
	}
	if repos.db != nil {
		deps.Ping = repos.db.PingContext
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	go func() {
		logger.Info("server listening",
			slog.String("addr", cfg.HTTPAddr),
			slog.String("store", cfg.StoreDriver),
			slog.String("version", version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
	}
	if err := shutdownTracing(shutdownCtx); err != nil {
		logger.Error("tracer shutdown failed", slog.Any("error", err))
	}
}

func openRepositories(ctx context.Context, cfg *config.Config) (*repositories, error) {
	if cfg.StoreDriver == config.DriverMemory {
		return &repositories{
			users:   membership.NewMemoryRepository(),
			books:   catalog.NewMemoryRepository(),
			clients: clients.NewMemoryRepository(),
		}, nil
	}

	db, err := database.Open(ctx, cfg.StoreDriver, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	if cfg.Migrate {
		if err := database.Migrate(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return &repositories{
		users:   membership.NewPostgresRepository(db),
		books:   catalog.NewPostgresRepository(db),
		clients: clients.NewPostgresRepository(db),
		db:      db,
	}, nil
}
