// Opportuned - Opportunity Intake and Review Service
// Copyright 2026 Opportune HQ
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/opportune-hq/opportuned

// Package authclient validates bearer tokens against the external
// authentication service.
//
// The service is a collaborator, not part of this codebase. Every API
// request costs one validation round trip; a circuit breaker and a client
// rate limiter keep a struggling auth service from taking the API down
// with it.
package authclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"syscall"
	"time"

	json "github.com/goccy/go-json"
	"github.com/golang-jwt/jwt/v5"
	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/opportune-hq/opportuned/internal/config"
	"github.com/opportune-hq/opportuned/internal/logging"
)

// Identity is the authenticated caller established by a valid token.
type Identity struct {
	UserID string
}

// validateRequest is the JSON body sent to the validation endpoint.
type validateRequest struct {
	Token string `json:"token"`
}

// validateResponse is the JSON body returned by the validation endpoint.
type validateResponse struct {
	Valid  bool   `json:"valid"`
	UserID string `json:"userId"`
}

// Validator checks bearer tokens against the external service.
type Validator struct {
	client   *http.Client
	breaker  *gobreaker.CircuitBreaker[*Identity]
	limiter  *rate.Limiter
	endpoint string
}

// New builds a Validator from configuration.
func New(cfg *config.AuthConfig) *Validator {
	settings := gobreaker.Settings{
		Name:     "authservice",
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Auth circuit breaker state changed")
		},
		// Token rejections are verdicts, not faults; only transport-level
		// failures should trip the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrInvalidToken)
		},
	}

	limit := rate.Limit(cfg.RateLimit)
	if cfg.RateLimit <= 0 {
		limit = rate.Inf
	}

	return &Validator{
		client:   &http.Client{Timeout: cfg.Timeout},
		breaker:  gobreaker.NewCircuitBreaker[*Identity](settings),
		limiter:  rate.NewLimiter(limit, int(cfg.RateLimit)+1),
		endpoint: strings.TrimRight(cfg.ServiceURL, "/") + cfg.ValidatePath,
	}
}

// Validate checks the token and returns the caller's identity.
//
// Error mapping is part of the API contract: ErrInvalidToken renders as
// 401, ErrServiceUnavailable and ErrServiceTimeout as 503.
func (v *Validator) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	if err := v.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}

	identity, err := v.breaker.Execute(func() (*Identity, error) {
		return v.callService(ctx, token)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: circuit breaker open", ErrServiceUnavailable)
	}
	return identity, err
}

// callService performs one validation round trip.
func (v *Validator) callService(ctx context.Context, token string) (*Identity, error) {
	body, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, ErrInvalidToken
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: upstream returned %d", ErrInternal, resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	var vr validateResponse
	if err := json.Unmarshal(raw, &vr); err != nil {
		return nil, fmt.Errorf("%w: malformed validation response: %v", ErrInternal, err)
	}
	if !vr.Valid {
		return nil, ErrInvalidToken
	}

	userID := vr.UserID
	if userID == "" {
		// Some auth service versions omit the user in the response body.
		// Fall back to the token's own claims; the service already vouched
		// for the token so the claims are trustworthy enough for identity.
		userID = subjectFromToken(token)
	}
	if userID == "" {
		return nil, fmt.Errorf("%w: validation response carries no user", ErrInternal)
	}

	return &Identity{UserID: userID}, nil
}

// classifyTransportError maps low-level HTTP client failures onto the
// package's error taxonomy.
func classifyTransportError(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrServiceTimeout, err)
	case errors.Is(err, syscall.ECONNREFUSED):
		return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	// net/http wraps timeouts in *url.Error with Timeout() true.
	var timeout interface{ Timeout() bool }
	if errors.As(err, &timeout) && timeout.Timeout() {
		return fmt.Errorf("%w: %v", ErrServiceTimeout, err)
	}
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}

// subjectFromToken extracts a user identifier from JWT claims without
// verifying the signature. Only used after the auth service has accepted
// the token.
func subjectFromToken(token string) string {
	parser := jwt.NewParser()
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return ""
	}
	if sub, err := claims.GetSubject(); err == nil && sub != "" {
		return sub
	}
	if id, ok := claims["userId"].(string); ok {
		return id
	}
	return ""
}
