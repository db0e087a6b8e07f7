package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

const defaultOperatorRole = "admin"

var (
	errMissingSubject = errors.New("token missing subject claim")
	errForbiddenRole  = errors.New("token lacks operator role")
)

// clerkVerifier validates Clerk-issued JWTs using JWKS and checks the operator role claim.
type clerkVerifier struct {
	keys     jwt.Keyfunc
	audience string
	issuer   string
	role     string
}

func newClerkVerifier(cfg Config) (Verifier, error) {
	if cfg.JWKSURL == "" {
		return nil, fmt.Errorf("clerk JWKS URL is required")
	}

	jwks, err := keyfunc.Get(cfg.JWKSURL, keyfunc.Options{
		RefreshInterval:   10 * time.Minute,
		RefreshUnknownKID: true,
		RefreshErrorHandler: refreshErrorHandler(cfg.Logger, cfg.JWKSURL),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS: %w", err)
	}

	return newClerkVerifierWithKeys(jwks.Keyfunc, cfg), nil
}

func refreshErrorHandler(logger *slog.Logger, url string) keyfunc.ErrorHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(err error) {
		logger.Warn("jwks refresh failed", slog.String("url", url), slog.Any("error", err))
	}
}

func newClerkVerifierWithKeys(keys jwt.Keyfunc, cfg Config) *clerkVerifier {
	role := cfg.Role
	if role == "" {
		role = defaultOperatorRole
	}
	return &clerkVerifier{keys: keys, audience: cfg.Audience, issuer: cfg.Issuer, role: role}
}

func (v *clerkVerifier) Verify(_ context.Context, token string) (Operator, error) {
	options := []jwt.ParserOption{jwt.WithLeeway(5 * time.Second)}
	if v.audience != "" {
		options = append(options, jwt.WithAudience(v.audience))
	}
	if v.issuer != "" {
		options = append(options, jwt.WithIssuer(v.issuer))
	}

	t, err := jwt.Parse(token, v.keys, options...)
	if err != nil {
		return Operator{}, fmt.Errorf("token verification failed: %w", err)
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return Operator{}, errors.New("unexpected claims type")
	}

	subject, ok := claims["sub"].(string)
	if !ok || subject == "" {
		return Operator{}, errMissingSubject
	}

	role := roleFromClaims(claims)
	if role != v.role {
		return Operator{}, errForbiddenRole
	}

	return Operator{Subject: subject, Role: role}, nil
}

// roleFromClaims reads "role" or, for Clerk session templates, "metadata.role".
func roleFromClaims(claims jwt.MapClaims) string {
	if role, ok := claims["role"].(string); ok && role != "" {
		return role
	}
	if metadata, ok := claims["metadata"].(map[string]any); ok {
		if role, ok := metadata["role"].(string); ok {
			return role
		}
	}
	return ""
}
