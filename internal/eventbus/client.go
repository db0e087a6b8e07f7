// Package eventbus registers the user-sync functions with Inngest and publishes
// identity events to it.
package eventbus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/inngest/inngestgo"
)

// ErrMissingEventKey is returned by Send when no event key is configured outside dev mode.
var ErrMissingEventKey = errors.New("event key is not configured")

// Event is the unit sent to and received from the bus.
type Event = inngestgo.Event

// Config describes the Inngest app this service serves.
type Config struct {
	AppID      string
	BaseURL    string
	EventKey   string
	SigningKey string
	// Dev talks to a local dev server and skips request signing.
	Dev bool
}

// NewClient builds the Inngest client shared by the serve handler and the publisher.
func NewClient(cfg Config, logger *slog.Logger) (inngestgo.Client, error) {
	if strings.TrimSpace(cfg.AppID) == "" {
		return nil, errors.New("app id is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	opts := inngestgo.ClientOpts{
		AppID:  cfg.AppID,
		Logger: logger,
		Dev:    ptr(cfg.Dev),
	}
	if key := strings.TrimSpace(cfg.EventKey); key != "" {
		opts.EventKey = ptr(key)
	}
	if key := strings.TrimSpace(cfg.SigningKey); key != "" {
		opts.SigningKey = ptr(key)
	}
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		opts.EventAPIBaseURL = ptr(base)
	}

	client, err := inngestgo.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("inngest client: %w", err)
	}
	return client, nil
}

// Publisher sends events through an Inngest client.
type Publisher struct {
	client  inngestgo.Client
	canSend bool
	newID   func() string
}

// NewPublisher wraps client. Without an event key, Send fails fast unless cfg.Dev is set.
func NewPublisher(client inngestgo.Client, cfg Config) *Publisher {
	return &Publisher{
		client:  client,
		canSend: cfg.Dev || strings.TrimSpace(cfg.EventKey) != "",
		newID:   uuid.NewString,
	}
}

// Send publishes events and returns the ids the bus assigned. Missing event ids are
// filled in; the bus deduplicates on id, so resending the same Event value is safe.
func (p *Publisher) Send(ctx context.Context, events ...Event) ([]string, error) {
	if !p.canSend {
		return nil, ErrMissingEventKey
	}
	if len(events) == 0 {
		return nil, nil
	}

	batch := make([]any, len(events))
	for i, ev := range events {
		if ev.Name == "" {
			return nil, fmt.Errorf("event %d: name is required", i)
		}
		if ev.ID == nil || *ev.ID == "" {
			ev.ID = ptr(p.newID())
		}
		if ev.Data == nil {
			ev.Data = map[string]any{}
		}
		batch[i] = ev
	}

	ids, err := p.client.SendMany(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("send events: %w", err)
	}
	return ids, nil
}

func ptr[T any](v T) *T { return &v }
