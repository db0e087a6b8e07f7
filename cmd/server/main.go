package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quickcart/usersync/internal/config"
	"github.com/quickcart/usersync/internal/eventbus"
	"github.com/quickcart/usersync/internal/httpapi"
	sharedauth "github.com/quickcart/usersync/internal/platform/auth"
	"github.com/quickcart/usersync/internal/platform/logging"
	sharedserver "github.com/quickcart/usersync/internal/platform/server"
	"github.com/quickcart/usersync/internal/storage"
	"github.com/quickcart/usersync/internal/usersync"
	"github.com/quickcart/usersync/internal/webhook"
)

const serviceName = "usersync"

func main() {
	ctx := context.Background()
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Errorf("config error: %w", err))
	}

	logger := logging.NewLogger(serviceName, cfg.Development())

	store, err := storage.Open(ctx, cfg.Store, logger)
	if err != nil {
		panic(fmt.Errorf("store: %w", err))
	}

	// The store connects lazily and ensures indexes on every dial; this only warms it up.
	indexCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	if err := storage.Prepare(indexCtx, store.Store); err != nil {
		logger.Warn("store indexes not ensured", slog.Any("error", err))
	}
	cancel()

	reconciler, err := usersync.NewReconciler(store.Store, logger)
	if err != nil {
		panic(fmt.Errorf("reconciler: %w", err))
	}

	svixVerifier, err := webhook.NewVerifier(cfg.Webhook.ClerkSecret)
	if err != nil {
		panic(fmt.Errorf("webhook verifier: %w", err))
	}
	webhookHandler, err := webhook.NewHandler(svixVerifier, reconciler, logger)
	if err != nil {
		panic(fmt.Errorf("webhook handler: %w", err))
	}

	busCfg := eventbus.Config{
		AppID:      cfg.EventBus.AppID,
		BaseURL:    cfg.EventBus.BaseURL,
		EventKey:   cfg.EventBus.EventKey,
		SigningKey: cfg.EventBus.SigningKey,
		Dev:        cfg.EventBus.Dev,
	}
	bus, err := eventbus.NewClient(busCfg, logger)
	if err != nil {
		panic(fmt.Errorf("event bus: %w", err))
	}
	if _, err := eventbus.UserSyncFunctions(bus, reconciler); err != nil {
		panic(fmt.Errorf("event functions: %w", err))
	}

	operator, err := sharedauth.NewVerifier(sharedauth.Config{
		Mode:     sharedauth.Mode(cfg.Auth.Mode),
		JWKSURL:  cfg.Auth.JWKSURL,
		Audience: cfg.Auth.Audience,
		Issuer:   cfg.Auth.Issuer,
		Token:    cfg.Auth.Token,
		Role:     cfg.Auth.Role,
		Logger:   logger,
	})
	if err != nil {
		panic(fmt.Errorf("auth verifier error: %w", err))
	}
	if operator == nil {
		logger.Warn("operator authentication disabled")
	}

	router := sharedserver.NewRouter(serviceName, func(r chi.Router) {
		httpapi.RegisterRoutes(r, httpapi.Options{
			Webhook:     webhookHandler,
			Events:      bus.Serve(),
			Store:       store.Store,
			Connection:  store.Redacted,
			Environment: cfg.Environment,
			Sender:      eventbus.NewPublisher(bus, busCfg),
			Operator:    operator,
		}, logger)
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	if err := sharedserver.Run(ctx, srv, logger, store.Close); err != nil && !errors.Is(err, http.ErrServerClosed) {
		panic(err)
	}
}
