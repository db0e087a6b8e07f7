// Package webhook receives signed identity-provider webhooks and hands them to the reconciler.
package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	svix "github.com/svix/svix-webhooks/go"

	"github.com/quickcart/usersync/internal/platform/logging"
	"github.com/quickcart/usersync/internal/platform/server"
	"github.com/quickcart/usersync/internal/usersync"
)

const (
	serviceTimeout = 8 * time.Second
	maxBodyBytes   = 1 << 20
)

var signatureHeaders = []string{"svix-id", "svix-timestamp", "svix-signature"}

// Verifier checks a payload against the signature headers.
type Verifier interface {
	Verify(payload []byte, headers http.Header) error
}

// Reconciler applies a normalized identity event.
type Reconciler interface {
	Reconcile(ctx context.Context, ev usersync.Event) (usersync.Result, error)
}

// NewVerifier returns a svix verifier for the shared webhook secret ("whsec_...").
func NewVerifier(secret string) (Verifier, error) {
	wh, err := svix.NewWebhook(secret)
	if err != nil {
		return nil, err
	}
	return wh, nil
}

// Response is the JSON body returned for every handled webhook.
type Response struct {
	Success bool             `json:"success"`
	Message string           `json:"message,omitempty"`
	Event   string           `json:"event,omitempty"`
	UserID  string           `json:"userId,omitempty"`
	Outcome usersync.Outcome `json:"outcome,omitempty"`
	Error   string           `json:"error,omitempty"`
}

// Handler is the HTTP endpoint for provider webhooks.
type Handler struct {
	verifier   Verifier
	reconciler Reconciler
	logger     *slog.Logger
}

// NewHandler constructs the webhook endpoint.
func NewHandler(verifier Verifier, reconciler Reconciler, logger *slog.Logger) (*Handler, error) {
	if verifier == nil {
		return nil, errors.New("verifier is required")
	}
	if reconciler == nil {
		return nil, errors.New("reconciler is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{verifier: verifier, reconciler: reconciler, logger: logger}, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	logger := logging.FromContext(r.Context(), h.logger)

	if r.Method != http.MethodPost {
		server.WriteJSON(w, http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
		return
	}

	for _, name := range signatureHeaders {
		if r.Header.Get(name) == "" {
			logger.Warn("webhook rejected", slog.String("reason", "missing signature headers"))
			server.WriteJSON(w, http.StatusBadRequest, Response{Error: "missing svix headers"})
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			server.WriteJSON(w, http.StatusRequestEntityTooLarge, Response{Error: "payload too large"})
			return
		}
		server.WriteJSON(w, http.StatusBadRequest, Response{Error: "failed to read body"})
		return
	}

	if err := h.verifier.Verify(body, r.Header); err != nil {
		logger.Warn("webhook rejected", slog.String("reason", "verification failed"), slog.Any("error", err))
		server.WriteJSON(w, http.StatusBadRequest, Response{Error: "webhook verification failed"})
		return
	}

	var envelope usersync.Envelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		server.WriteJSON(w, http.StatusBadRequest, Response{Error: "invalid webhook payload"})
		return
	}

	ev, err := envelope.Event()
	if errors.Is(err, usersync.ErrUnknownEventType) {
		logger.Info("webhook ignored", slog.String("type", envelope.Type))
		server.WriteJSON(w, http.StatusOK, Response{Success: true, Message: "event received but not processed", Event: envelope.Type})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), serviceTimeout)
	defer cancel()

	res, err := h.reconciler.Reconcile(ctx, ev)
	if err != nil {
		logger.Error("webhook reconcile failed",
			slog.String("type", envelope.Type),
			slog.String("userId", ev.Payload.ID),
			slog.Any("error", err),
		)
		server.WriteJSON(w, http.StatusInternalServerError, Response{
			Success: false,
			Event:   envelope.Type,
			UserID:  ev.Payload.ID,
			Error:   err.Error(),
		})
		return
	}

	server.WriteJSON(w, http.StatusOK, Response{
		Success: true,
		Message: message(res),
		Event:   envelope.Type,
		UserID:  res.UserID,
		Outcome: res.Outcome,
	})
}

func message(res usersync.Result) string {
	switch res.Outcome {
	case usersync.OutcomeCreated:
		return "user created successfully"
	case usersync.OutcomeUpserted:
		return "user already exists, fields updated"
	case usersync.OutcomeUpdated:
		return "user updated successfully"
	case usersync.OutcomeDeleted:
		return "user deleted successfully"
	case usersync.OutcomeNotFound:
		return "user not found, nothing to delete"
	default:
		return string(res.Outcome)
	}
}
