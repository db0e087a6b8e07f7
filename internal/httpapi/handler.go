package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/quickcart/usersync/internal/eventbus"
	"github.com/quickcart/usersync/internal/platform/auth"
	"github.com/quickcart/usersync/internal/platform/dto"
	"github.com/quickcart/usersync/internal/usersync"
)

const (
	serviceTimeout     = 8 * time.Second
	maxReplayBodyBytes = 1 << 20
)

var errInvalidPayload = errors.New("invalid payload")

// Inspector is the read-only view of the store used by diagnostics.
type Inspector interface {
	usersync.Diagnostics
	Count(ctx context.Context) (int64, error)
}

// Sender publishes events to the event bus.
type Sender interface {
	Send(ctx context.Context, events ...eventbus.Event) ([]string, error)
}

// Options wires the service's HTTP surface.
type Options struct {
	Webhook http.Handler
	Events  http.Handler

	Store       Inspector
	Connection  string
	Environment string
	Sender      Sender
	Operator    auth.Verifier
}

// RegisterRoutes registers the webhook, event bus and operator routes.
func RegisterRoutes(r chi.Router, opts Options, logger *slog.Logger) {
	if opts.Webhook != nil {
		r.Handle("/api/webhooks/clerk", opts.Webhook)
	}
	if opts.Events != nil {
		r.Handle("/api/events", opts.Events)
	}

	r.Route("/debug", func(r chi.Router) {
		r.Use(auth.Middleware(opts.Operator))

		if opts.Store != nil {
			inspect := inspectStore(opts.Store, opts.Connection, opts.Environment, logger)
			r.Get("/store", inspect)
			r.Post("/store", inspect)
		}
		if opts.Sender != nil {
			r.Post("/replay", replayEvent(opts.Sender, logger))
		}
	})
}

func inspectStore(store Inspector, connection, environment string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		report := dto.StoreReport{
			Backend:     store.Backend(),
			Database:    store.Database(),
			Connection:  connection,
			Environment: environment,
		}

		if err := store.Ping(ctx); err != nil {
			logRequestError(r.Context(), logger, "store ping failed", err, "")
			report.Status = "failed"
			report.CacheState = store.CacheState()
			report.Error = errorDetail(environment, err, "store unreachable")
			writeJSON(w, http.StatusInternalServerError, report)
			return
		}

		var (
			count       int64
			collections []string
		)
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			n, err := store.Count(gctx)
			count = n
			return err
		})
		g.Go(func() error {
			names, err := store.Collections(gctx)
			collections = names
			return err
		})
		err := g.Wait()
		report.CacheState = store.CacheState()
		if err != nil {
			logRequestError(r.Context(), logger, "store inspection failed", err, "")
			report.Status = "failed"
			report.Error = errorDetail(environment, err, "store inspection failed")
			writeJSON(w, http.StatusInternalServerError, report)
			return
		}

		report.Status = "success"
		report.UserCount = count
		report.Collections = collections
		writeJSON(w, http.StatusOK, report)
	}
}

type replayRequest struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type replayResponse struct {
	Success bool     `json:"success"`
	IDs     []string `json:"ids"`
}

func replayEvent(sender Sender, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxReplayBodyBytes)
		ev, err := decodeReplay(r.Body)
		if err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				writeError(w, http.StatusRequestEntityTooLarge, "payload too large")
				return
			}
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		busEvent, err := eventbus.UserEvent(ev)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
		defer cancel()

		ids, err := sender.Send(ctx, busEvent)
		if err != nil {
			logRequestError(r.Context(), logger, "replay send failed", err, ev.Payload.ID)
			if errors.Is(err, eventbus.ErrMissingEventKey) {
				writeError(w, http.StatusServiceUnavailable, "event bus is not configured")
				return
			}
			writeError(w, http.StatusBadGateway, "failed to send event")
			return
		}

		if operator, ok := auth.OperatorFromContext(r.Context()); ok {
			logger.Info("event replayed", slog.String("operator", operator.Subject), slog.String("userId", ev.Payload.ID), slog.Any("ids", ids))
		} else {
			logger.Info("event replayed", slog.String("userId", ev.Payload.ID), slog.Any("ids", ids))
		}
		writeJSON(w, http.StatusAccepted, replayResponse{Success: true, IDs: ids})
	}
}

func decodeReplay(body io.Reader) (usersync.Event, error) {
	var req replayRequest
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return usersync.Event{}, err
		}
		return usersync.Event{}, errInvalidPayload
	}

	kind, err := usersync.ParseKind(req.Type)
	if err != nil {
		return usersync.Event{}, err
	}

	var payload usersync.Payload
	if len(req.Data) == 0 || json.Unmarshal(req.Data, &payload) != nil {
		return usersync.Event{}, errInvalidPayload
	}
	if strings.TrimSpace(payload.ID) == "" {
		return usersync.Event{}, usersync.ErrMissingUserID
	}
	return usersync.Event{Kind: kind, Payload: payload}, nil
}

func errorDetail(environment string, err error, fallback string) string {
	if environment == "development" {
		return err.Error()
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func logRequestError(ctx context.Context, logger *slog.Logger, message string, err error, userID string) {
	if logger == nil || err == nil {
		return
	}
	attrs := []any{
		slog.String("userId", userID),
		slog.Any("error", err),
	}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		attrs = append(attrs, slog.String("requestId", reqID))
	}
	logger.Error(message, attrs...)
}
