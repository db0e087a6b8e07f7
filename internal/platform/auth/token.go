package auth

import (
	"context"
	"crypto/subtle"
	"errors"
)

var errInvalidToken = errors.New("invalid operator token")

type tokenVerifier struct {
	token []byte
}

func newTokenVerifier(cfg Config) (Verifier, error) {
	if cfg.Token == "" {
		return nil, errors.New("operator token is required")
	}
	return tokenVerifier{token: []byte(cfg.Token)}, nil
}

func (v tokenVerifier) Verify(_ context.Context, token string) (Operator, error) {
	if subtle.ConstantTimeCompare([]byte(token), v.token) != 1 {
		return Operator{}, errInvalidToken
	}
	return Operator{Subject: "operator", Role: defaultOperatorRole}, nil
}
