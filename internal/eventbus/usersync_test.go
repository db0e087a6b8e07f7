package eventbus

import (
	"context"
	"errors"
	"testing"

	"github.com/inngest/inngestgo"
	inngesterrors "github.com/inngest/inngestgo/errors"

	"github.com/quickcart/usersync/internal/usersync"
)

type reconcilerFunc func(ctx context.Context, ev usersync.Event) (usersync.Result, error)

func (f reconcilerFunc) Reconcile(ctx context.Context, ev usersync.Event) (usersync.Result, error) {
	return f(ctx, ev)
}

func TestUserSyncFunctions_RegistersTriggers(t *testing.T) {
	client, err := NewClient(testConfig("", ""), discardLogger())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	fns, err := UserSyncFunctions(client, reconcilerFunc(func(context.Context, usersync.Event) (usersync.Result, error) {
		return usersync.Result{}, nil
	}))
	if err != nil {
		t.Fatalf("UserSyncFunctions: %v", err)
	}

	want := []string{"sync-user-creation", "sync-user-update", "sync-user-deletion"}
	if len(fns) != len(want) {
		t.Fatalf("expected %d functions, got %d", len(want), len(fns))
	}
	for i, fn := range fns {
		opts := fn.Config()
		if opts.ID != want[i] {
			t.Fatalf("function %d: expected id %s, got %s", i, want[i], opts.ID)
		}
		if opts.Retries == nil || *opts.Retries != defaultRetries {
			t.Fatalf("%s: expected %d retries, got %v", opts.ID, defaultRetries, opts.Retries)
		}
	}
}

func TestSyncHandler_ReconcilesPayload(t *testing.T) {
	var got usersync.Event
	handler := syncHandler(reconcilerFunc(func(_ context.Context, ev usersync.Event) (usersync.Result, error) {
		got = ev
		return usersync.Result{Kind: ev.Kind, UserID: ev.Payload.ID, Outcome: usersync.OutcomeCreated}, nil
	}), usersync.KindCreated)

	var input inngestgo.Input[usersync.Payload]
	input.Event.Name = EventUserCreated
	input.Event.Data = usersync.Payload{ID: "user_1"}

	out, err := handler(context.Background(), input)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	res, ok := out.(SyncResult)
	if !ok || !res.Success || res.UserID != "user_1" || res.Outcome != usersync.OutcomeCreated {
		t.Fatalf("unexpected result: %+v", out)
	}
	if got.Kind != usersync.KindCreated || got.Payload.ID != "user_1" {
		t.Fatalf("unexpected event: %+v", got)
	}
}

func TestRunSync_RetryClassification(t *testing.T) {
	tests := []struct {
		name      string
		kind      usersync.ErrorKind
		wantRetry bool
	}{
		{"validation", usersync.KindValidation, false},
		{"conflict", usersync.KindConflict, false},
		{"transient", usersync.KindTransient, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cause := &usersync.ReconcileError{Kind: tt.kind, Err: errors.New(tt.name)}
			rec := reconcilerFunc(func(context.Context, usersync.Event) (usersync.Result, error) {
				return usersync.Result{}, cause
			})

			res, err := runSync(context.Background(), rec, usersync.KindUpdated, usersync.Payload{ID: "user_2"})
			if err == nil {
				t.Fatalf("expected error")
			}
			if res.Success || res.UserID != "user_2" || res.Error == "" {
				t.Fatalf("unexpected result: %+v", res)
			}
			if inngesterrors.IsNoRetryError(err) == tt.wantRetry {
				t.Fatalf("retry = %v, want %v (err %v)", !tt.wantRetry, tt.wantRetry, err)
			}
		})
	}
}

func TestUserEvent_EncodesPayload(t *testing.T) {
	first := "Ada"
	ev, err := UserEvent(usersync.Event{Kind: usersync.KindDeleted, Payload: usersync.Payload{ID: "user_3", FirstName: &first}})
	if err != nil {
		t.Fatalf("UserEvent: %v", err)
	}
	if ev.Name != EventUserDeleted || ev.Data["id"] != "user_3" || ev.Data["first_name"] != "Ada" {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.ID != nil {
		t.Fatalf("id is assigned at send time, got %v", *ev.ID)
	}
}
