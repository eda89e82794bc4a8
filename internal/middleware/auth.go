// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/opportune-hq/opportuned/internal/authclient"
	"github.com/opportune-hq/opportuned/internal/metrics"
)

// identityKey is the context key carrying the authenticated identity.
const identityKey contextKey = "identity"

// TokenValidator is the subset of the auth client the middleware needs.
// Tests substitute a stub.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (*authclient.Identity, error)
}

// AuthErrorWriter renders authentication failures. The api package
// supplies an implementation using its response envelope.
type AuthErrorWriter interface {
	Unauthorized(w http.ResponseWriter, r *http.Request, message string)
	ServiceUnavailable(w http.ResponseWriter, r *http.Request, message string)
}

// Authenticate validates the bearer token on every request and stores the
// resulting identity in the request context.
func Authenticate(validator TokenValidator, errWriter AuthErrorWriter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				metrics.AuthValidations.WithLabelValues("invalid").Inc()
				errWriter.Unauthorized(w, r, "missing bearer token")
				return
			}

			identity, err := validator.Validate(r.Context(), token)
			if err != nil {
				switch {
				case errors.Is(err, authclient.ErrInvalidToken):
					metrics.AuthValidations.WithLabelValues("invalid").Inc()
					errWriter.Unauthorized(w, r, "invalid token")
				case errors.Is(err, authclient.ErrServiceTimeout):
					metrics.AuthValidations.WithLabelValues("timeout").Inc()
					errWriter.ServiceUnavailable(w, r, "authentication service timed out")
				case errors.Is(err, authclient.ErrServiceUnavailable):
					metrics.AuthValidations.WithLabelValues("unavailable").Inc()
					errWriter.ServiceUnavailable(w, r, "authentication service unavailable")
				default:
					metrics.AuthValidations.WithLabelValues("error").Inc()
					errWriter.ServiceUnavailable(w, r, "authentication failed")
				}
				return
			}

			metrics.AuthValidations.WithLabelValues("valid").Inc()
			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFromContext returns the authenticated identity, or nil when the
// request skipped authentication.
func IdentityFromContext(ctx context.Context) *authclient.Identity {
	if id, ok := ctx.Value(identityKey).(*authclient.Identity); ok {
		return id
	}
	return nil
}

// bearerToken extracts the token from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(header) > len(prefix) && strings.EqualFold(header[:len(prefix)], prefix) {
		return strings.TrimSpace(header[len(prefix):])
	}
	return ""
}
