package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/quickcart/usersync/internal/platform/dto"
)

func TestNewRouter_Healthz(t *testing.T) {
	router := NewRouter("usersync", nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp dto.HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" || resp.Service != "usersync" || resp.Version != Version {
		t.Fatalf("unexpected health response: %+v", resp)
	}
}

func TestRun_ShutdownHooks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls []string
	hookErr := errors.New("disconnect failed")
	srv := &http.Server{Addr: "127.0.0.1:0", Handler: http.NotFoundHandler()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	err := Run(ctx, srv, logger,
		func(context.Context) error { calls = append(calls, "first"); return nil },
		func(context.Context) error { calls = append(calls, "second"); return hookErr },
	)
	if len(calls) != 2 || calls[0] != "first" || calls[1] != "second" {
		t.Fatalf("hooks not run in order: %v", calls)
	}
	if !errors.Is(err, hookErr) {
		t.Fatalf("expected hook error to be returned, got %v", err)
	}
}
