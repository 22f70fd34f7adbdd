// Package auth gates controller admissions behind an optional shared secret.
package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// SecretHeader is the header alternative to the `secret` query parameter.
const SecretHeader = "X-Relay-Secret"

var (
	// ErrMissingSecret indicates no secret was supplied while one is required.
	ErrMissingSecret = errors.New("controller secret required")
	// ErrSecretMismatch indicates the supplied secret did not match.
	ErrSecretMismatch = errors.New("controller secret mismatch")
)

// SecretGate verifies the controller shared secret before a socket upgrade.
// With no secret configured, every admission passes.
type SecretGate struct {
	secret string
}

// NewSecretGate constructs a gate; an empty secret disables the check.
func NewSecretGate(secret string) *SecretGate {
	return &SecretGate{secret: strings.TrimSpace(secret)}
}

// Enabled reports whether controller admissions are secret-protected.
func (g *SecretGate) Enabled() bool {
	return g != nil && g.secret != ""
}

// Authorize checks the request's secret, read from the `secret` query
// parameter or the X-Relay-Secret header. The comparison is constant-time.
func (g *SecretGate) Authorize(r *http.Request) error {
	if !g.Enabled() {
		return nil
	}
	supplied := strings.TrimSpace(r.URL.Query().Get("secret"))
	if supplied == "" {
		supplied = strings.TrimSpace(r.Header.Get(SecretHeader))
	}
	if supplied == "" {
		return ErrMissingSecret
	}
	if subtle.ConstantTimeCompare([]byte(supplied), []byte(g.secret)) != 1 {
		return ErrSecretMismatch
	}
	return nil
}
