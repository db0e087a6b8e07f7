package eventbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/inngest/inngestgo"
	inngesterrors "github.com/inngest/inngestgo/errors"

	"github.com/quickcart/usersync/internal/usersync"
)

// Event names for identity lifecycle changes relayed through the bus.
const (
	EventUserCreated = "clerk/user.created"
	EventUserUpdated = "clerk/user.updated"
	EventUserDeleted = "clerk/user.deleted"
)

const defaultRetries = 3

// Reconciler applies a normalized identity event.
type Reconciler interface {
	Reconcile(ctx context.Context, ev usersync.Event) (usersync.Result, error)
}

// SyncResult is what every user-sync function reports back to the bus.
type SyncResult struct {
	Success bool             `json:"success"`
	UserID  string           `json:"userId,omitempty"`
	Outcome usersync.Outcome `json:"outcome,omitempty"`
	Error   string           `json:"error,omitempty"`
}

type syncFunction struct {
	id    string
	name  string
	event string
	kind  usersync.Kind
}

var syncFunctions = []syncFunction{
	{id: "sync-user-creation", name: "Sync user creation", event: EventUserCreated, kind: usersync.KindCreated},
	{id: "sync-user-update", name: "Sync user update", event: EventUserUpdated, kind: usersync.KindUpdated},
	{id: "sync-user-deletion", name: "Sync user deletion", event: EventUserDeleted, kind: usersync.KindDeleted},
}

// UserSyncFunctions registers the three user-sync functions on client.
func UserSyncFunctions(client inngestgo.Client, rec Reconciler) ([]inngestgo.ServableFunction, error) {
	fns := make([]inngestgo.ServableFunction, 0, len(syncFunctions))
	for _, sf := range syncFunctions {
		fn, err := inngestgo.CreateFunction(
			client,
			inngestgo.FunctionOpts{ID: sf.id, Name: sf.name, Retries: ptr(defaultRetries)},
			inngestgo.EventTrigger(sf.event, nil),
			syncHandler(rec, sf.kind),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", sf.id, err)
		}
		fns = append(fns, fn)
	}
	return fns, nil
}

// EventName maps a reconciler kind to its bus event name.
func EventName(kind usersync.Kind) string {
	return "clerk/" + string(kind)
}

// UserEvent encodes a normalized identity event for Send.
func UserEvent(ev usersync.Event) (Event, error) {
	raw, err := json.Marshal(ev.Payload)
	if err != nil {
		return Event{}, fmt.Errorf("encode payload: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return Event{}, fmt.Errorf("encode payload: %w", err)
	}
	return Event{Name: EventName(ev.Kind), Data: data}, nil
}

func syncHandler(rec Reconciler, kind usersync.Kind) func(context.Context, inngestgo.Input[usersync.Payload]) (any, error) {
	return func(ctx context.Context, input inngestgo.Input[usersync.Payload]) (any, error) {
		return runSync(ctx, rec, kind, input.Event.Data)
	}
}

// runSync reconciles one delivery. Validation and conflict failures are wrapped so
// the bus stops redelivering; transient failures are retried.
func runSync(ctx context.Context, rec Reconciler, kind usersync.Kind, payload usersync.Payload) (SyncResult, error) {
	res, err := rec.Reconcile(ctx, usersync.Event{Kind: kind, Payload: payload})
	if err != nil {
		out := SyncResult{UserID: payload.ID, Error: err.Error()}
		if !usersync.IsRetryable(err) {
			return out, inngesterrors.NoRetryError(err)
		}
		return out, err
	}
	return SyncResult{Success: true, UserID: res.UserID, Outcome: res.Outcome}, nil
}
