package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	sharederrors "github.com/quickcart/usersync/internal/platform/errors"
)

// Mode represents the authentication strategy applied to operator endpoints.
type Mode string

const (
	// ModeClerk verifies Clerk-issued JWTs through the JWKS endpoint and requires an operator role.
	ModeClerk Mode = "clerk"
	// ModeToken compares the bearer token against a static shared token.
	ModeToken Mode = "token"
	// ModeNone disables operator authentication (local development only).
	ModeNone Mode = "none"
)

// Config captures the inputs required to initialize an authenticator.
type Config struct {
	Mode     Mode
	JWKSURL  string
	Audience string
	Issuer   string
	Token    string
	Role     string
	// Logger receives JWKS refresh failures in clerk mode.
	Logger *slog.Logger
}

// Operator is the authenticated subject allowed to reach operator endpoints.
type Operator struct {
	Subject string
	Role    string
}

// Verifier verifies a bearer token and returns the associated operator.
type Verifier interface {
	Verify(ctx context.Context, token string) (Operator, error)
}

var (
	errMissingAuthHeader = errors.New("authorization header missing")
	errInvalidAuthHeader = errors.New("authorization header is malformed")
)

type ctxKey string

const operatorCtxKey ctxKey = "usersync:operator"

// Middleware enforces authentication for the wrapped handler. A nil verifier lets every request through.
func Middleware(verifier Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if verifier == nil {
				next.ServeHTTP(w, r)
				return
			}

			token, err := tokenFromRequest(r)
			if err != nil {
				sharederrors.Write(w, r, "unauthorized", err.Error())
				return
			}

			operator, err := verifier.Verify(r.Context(), token)
			if errors.Is(err, errForbiddenRole) {
				sharederrors.Write(w, r, "forbidden", err.Error())
				return
			}
			if err != nil {
				sharederrors.Write(w, r, "unauthorized", err.Error())
				return
			}

			ctx := context.WithValue(r.Context(), operatorCtxKey, operator)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func tokenFromRequest(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errMissingAuthHeader
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", errInvalidAuthHeader
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", errInvalidAuthHeader
	}

	return token, nil
}

// OperatorFromContext extracts the authenticated operator from the request context.
func OperatorFromContext(ctx context.Context) (Operator, bool) {
	value, ok := ctx.Value(operatorCtxKey).(Operator)
	return value, ok
}

// NewVerifier constructs a Verifier matching the supplied configuration.
// ModeNone yields a nil verifier.
func NewVerifier(cfg Config) (Verifier, error) {
	switch cfg.Mode {
	case ModeClerk:
		return newClerkVerifier(cfg)
	case ModeToken:
		return newTokenVerifier(cfg)
	case ModeNone:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported auth mode: %s", cfg.Mode)
	}
}
