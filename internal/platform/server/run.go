package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// ShutdownFunc releases a resource once the HTTP server has stopped accepting requests.
type ShutdownFunc func(ctx context.Context) error

// Run starts the HTTP server and performs a graceful shutdown when the process receives an interrupt.
// Hooks run in order after the server drains, sharing the shutdown deadline.
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger, hooks ...ShutdownFunc) error {
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", "addr", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case <-ctx.Done():
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := srv.Shutdown(shutdownCtx)
	for _, hook := range hooks {
		if hookErr := hook(shutdownCtx); hookErr != nil {
			logger.Error("shutdown hook failed", slog.Any("error", hookErr))
			err = errors.Join(err, hookErr)
		}
	}
	return err
}
