package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/quickcart/usersync/internal/eventbus"
	"github.com/quickcart/usersync/internal/platform/auth"
	"github.com/quickcart/usersync/internal/platform/dto"
)

const operatorToken = "operator-secret"

type fakeInspector struct {
	pingFn       func(ctx context.Context) error
	countFn       func(ctx context.Context) (int64, error)
	collectionsFn func(ctx context.Context) ([]string, error)
}

func (f *fakeInspector) Backend() string    { return "mongo" }
func (f *fakeInspector) Database() string   { return "quickcart" }
func (f *fakeInspector) CacheState() string { return "ready" }

func (f *fakeInspector) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeInspector) Collections(ctx context.Context) ([]string, error) {
	if f.collectionsFn != nil {
		return f.collectionsFn(ctx)
	}
	return []string{"users"}, nil
}

func (f *fakeInspector) Count(ctx context.Context) (int64, error) {
	if f.countFn != nil {
		return f.countFn(ctx)
	}
	return 0, nil
}

type fakeSender struct {
	sendFn func(ctx context.Context, events ...eventbus.Event) ([]string, error)
}

func (f *fakeSender) Send(ctx context.Context, events ...eventbus.Event) ([]string, error) {
	return f.sendFn(ctx, events...)
}

func newTestRouter(t *testing.T, opts Options) http.Handler {
	t.Helper()
	verifier, err := auth.NewVerifier(auth.Config{Mode: auth.ModeToken, Token: operatorToken})
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	opts.Operator = verifier
	r := chi.NewRouter()
	RegisterRoutes(r, opts, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return r
}

func do(router http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestInspectStore_Success(t *testing.T) {
	router := newTestRouter(t, Options{
		Store:       &fakeInspector{countFn: func(context.Context) (int64, error) { return 42, nil }},
		Connection:  "mongodb://*****@db:27017/quickcart",
		Environment: "production",
	})

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		rec := do(router, method, "/debug/store", "", operatorToken)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", method, rec.Code)
		}
		var report dto.StoreReport
		if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if report.Status != "success" || report.UserCount != 42 || report.Collections[0] != "users" {
			t.Fatalf("unexpected report: %+v", report)
		}
		if strings.Contains(report.Connection, "secret") || report.Backend != "mongo" {
			t.Fatalf("unexpected connection details: %+v", report)
		}
	}
}

func TestInspectStore_Failures(t *testing.T) {
	pingErr := errors.New("server selection timeout")
	tests := []struct {
		name        string
		store       *fakeInspector
		environment string
		wantError   string
	}{
		{
			name:        "ping fails in production",
			store:       &fakeInspector{pingFn: func(context.Context) error { return pingErr }},
			environment: "production",
			wantError:   "store unreachable",
		},
		{
			name:        "ping fails in development",
			store:       &fakeInspector{pingFn: func(context.Context) error { return pingErr }},
			environment: "development",
			wantError:   pingErr.Error(),
		},
		{
			name: "count fails",
			store: &fakeInspector{countFn: func(context.Context) (int64, error) {
				return 0, errors.New("not authorized on quickcart")
			}},
			environment: "production",
			wantError:   "store inspection failed",
		},
	}

	for _, tt := range tests {
		router := newTestRouter(t, Options{Store: tt.store, Environment: tt.environment})
		rec := do(router, http.MethodGet, "/debug/store", "", operatorToken)
		if rec.Code != http.StatusInternalServerError {
			t.Fatalf("%s: expected 500, got %d", tt.name, rec.Code)
		}
		var report dto.StoreReport
		if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
			t.Fatalf("%s: decode: %v", tt.name, err)
		}
		if report.Status != "failed" || report.Error != tt.wantError {
			t.Fatalf("%s: unexpected report %+v", tt.name, report)
		}
	}
}

func TestDebugRoutes_RequireOperator(t *testing.T) {
	router := newTestRouter(t, Options{Store: &fakeInspector{}, Sender: &fakeSender{}})

	if rec := do(router, http.MethodGet, "/debug/store", "", ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}
	if rec := do(router, http.MethodPost, "/debug/replay", `{}`, "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with wrong token, got %d", rec.Code)
	}
}

func TestReplay_SendsUserEvent(t *testing.T) {
	var sent []eventbus.Event
	router := newTestRouter(t, Options{Sender: &fakeSender{sendFn: func(_ context.Context, events ...eventbus.Event) ([]string, error) {
		sent = events
		return []string{"evt_123"}, nil
	}}})

	body := `{"type":"user.updated","data":{"id":"user_7","first_name":"Grace","email_addresses":[{"email_address":"grace@example.com"}]}}`
	rec := do(router, http.MethodPost, "/debug/replay", body, operatorToken)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp replayResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || len(resp.IDs) != 1 || resp.IDs[0] != "evt_123" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if len(sent) != 1 || sent[0].Name != eventbus.EventUserUpdated {
		t.Fatalf("unexpected events: %+v", sent)
	}

	if sent[0].Data["id"] != "user_7" || sent[0].Data["first_name"] != "Grace" {
		t.Fatalf("unexpected payload %+v", sent[0].Data)
	}
}

func TestReplay_RejectsBadRequests(t *testing.T) {
	sender := &fakeSender{sendFn: func(context.Context, ...eventbus.Event) ([]string, error) {
		t.Fatalf("send must not be called")
		return nil, nil
	}}
	router := newTestRouter(t, Options{Sender: sender})

	tests := []struct {
		name string
		body string
	}{
		{"malformed", `{`},
		{"unknown field", `{"type":"user.created","data":{"id":"u"},"extra":1}`},
		{"unknown type", `{"type":"session.created","data":{"id":"u"}}`},
		{"missing data", `{"type":"user.created"}`},
		{"missing id", `{"type":"user.deleted","data":{}}`},
	}
	for _, tt := range tests {
		if rec := do(router, http.MethodPost, "/debug/replay", tt.body, operatorToken); rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", tt.name, rec.Code)
		}
	}
}

func TestReplay_SendFailures(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{eventbus.ErrMissingEventKey, http.StatusServiceUnavailable},
		{errors.New("connection refused"), http.StatusBadGateway},
	}
	for _, tt := range tests {
		router := newTestRouter(t, Options{Sender: &fakeSender{sendFn: func(context.Context, ...eventbus.Event) ([]string, error) {
			return nil, tt.err
		}}})
		rec := do(router, http.MethodPost, "/debug/replay", `{"type":"user.deleted","data":{"id":"user_1"}}`, operatorToken)
		if rec.Code != tt.want {
			t.Fatalf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
	}
}

func TestRegisterRoutes_MountsAdapters(t *testing.T) {
	called := map[string]bool{}
	mark := func(name string) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			called[name] = true
			w.WriteHeader(http.StatusNoContent)
		})
	}
	router := newTestRouter(t, Options{Webhook: mark("webhook"), Events: mark("events")})

	do(router, http.MethodPost, "/api/webhooks/clerk", "", "")
	do(router, http.MethodGet, "/api/events", "", "")
	if !called["webhook"] || !called["events"] {
		t.Fatalf("adapters not mounted: %v", called)
	}
}
