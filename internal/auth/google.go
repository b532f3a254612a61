// Everly - Personal Diary and Travel Journal Backend
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/everly

package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"github.com/zitadel/oidc/v3/pkg/client/rp"
	"github.com/zitadel/oidc/v3/pkg/oidc"
	"golang.org/x/time/rate"

	"github.com/tomtom215/everly/internal/logging"
	"github.com/tomtom215/everly/internal/metrics"
)

// GoogleIssuer is the issuer of Google ID tokens.
const GoogleIssuer = "https://accounts.google.com"

// GoogleIdentity is the verified content of a Google ID token.
type GoogleIdentity struct {
	Subject       string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
}

// GoogleVerifier verifies Google ID tokens.
type GoogleVerifier interface {
	Verify(ctx context.Context, idToken string) (*GoogleIdentity, error)
}

// OIDCVerifierConfig configures an OIDCVerifier.
type OIDCVerifierConfig struct {
	Issuer       string
	ClientID     string
	ClientSecret string
	RedirectURL  string
	HTTPClient   *http.Client
}

// OIDCVerifier verifies ID tokens with a zitadel relying party. Discovery
// of the issuer runs on first use and is retried until it succeeds, so the
// service can start while the issuer is unreachable.
type OIDCVerifier struct {
	cfg OIDCVerifierConfig

	mu    sync.Mutex
	party rp.RelyingParty
}

// NewOIDCVerifier creates a verifier. The client id is the expected
// audience of every token.
func NewOIDCVerifier(cfg OIDCVerifierConfig) (*OIDCVerifier, error) {
	if cfg.ClientID == "" {
		return nil, errors.New("google client id is required")
	}
	if cfg.Issuer == "" {
		cfg.Issuer = GoogleIssuer
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &OIDCVerifier{cfg: cfg}, nil
}

func (v *OIDCVerifier) relyingParty(ctx context.Context) (rp.RelyingParty, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.party != nil {
		return v.party, nil
	}
	party, err := rp.NewRelyingPartyOIDC(ctx,
		v.cfg.Issuer,
		v.cfg.ClientID,
		v.cfg.ClientSecret,
		v.cfg.RedirectURL,
		[]string{oidc.ScopeOpenID, oidc.ScopeEmail, oidc.ScopeProfile},
		rp.WithHTTPClient(v.cfg.HTTPClient),
	)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", v.cfg.Issuer, err)
	}
	v.party = party
	return party, nil
}

// Verify checks signature, issuer, audience and expiry of idToken.
func (v *OIDCVerifier) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	party, err := v.relyingParty(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthenticatorUnavailable, err)
	}

	claims, err := rp.VerifyIDToken[*oidc.IDTokenClaims](ctx, idToken, party.IDTokenVerifier())
	if err != nil {
		if errors.Is(err, oidc.ErrExpired) {
			return nil, ErrExpiredCredentials
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCredentials, err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: token has no email claim", ErrInvalidCredentials)
	}

	return &GoogleIdentity{
		Subject:       claims.Subject,
		Email:         strings.ToLower(claims.Email),
		EmailVerified: bool(claims.EmailVerified),
		Name:          claims.Name,
		Picture:       claims.Picture,
	}, nil
}

// GuardConfig configures a GuardedVerifier.
type GuardConfig struct {
	// RatePerSec and Burst throttle outbound verifications.
	RatePerSec float64
	Burst      int
	// Failures consecutive upstream failures open the breaker for Timeout.
	Failures uint32
	Timeout  time.Duration
}

// GuardedVerifier throttles and circuit-breaks another verifier. Rejected
// or expired tokens do not count as failures; only an unavailable upstream
// trips the breaker.
type GuardedVerifier struct {
	next    GoogleVerifier
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[*GoogleIdentity]
}

// NewGuardedVerifier wraps next.
func NewGuardedVerifier(next GoogleVerifier, cfg GuardConfig) *GuardedVerifier {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.Failures == 0 {
		cfg.Failures = 5
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	failures := cfg.Failures
	cb := gobreaker.NewCircuitBreaker[*GoogleIdentity](gobreaker.Settings{
		Name:        "google-id-token",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !errors.Is(err, ErrAuthenticatorUnavailable)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Circuit breaker state transition")
		},
	})

	return &GuardedVerifier{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Burst),
		cb:      cb,
	}
}

// Verify waits for the rate limiter, then verifies through the breaker.
func (g *GuardedVerifier) Verify(ctx context.Context, idToken string) (*GoogleIdentity, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		metrics.GoogleVerifications.WithLabelValues("throttled").Inc()
		return nil, fmt.Errorf("%w: %v", ErrAuthenticatorUnavailable, err)
	}

	id, err := g.cb.Execute(func() (*GoogleIdentity, error) {
		return g.next.Verify(ctx, idToken)
	})
	switch {
	case err == nil:
		metrics.GoogleVerifications.WithLabelValues("success").Inc()
		return id, nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.GoogleVerifications.WithLabelValues("rejected").Inc()
		return nil, fmt.Errorf("%w: %v", ErrAuthenticatorUnavailable, err)
	case errors.Is(err, ErrAuthenticatorUnavailable):
		metrics.GoogleVerifications.WithLabelValues("unavailable").Inc()
	default:
		metrics.GoogleVerifications.WithLabelValues("invalid").Inc()
	}
	return nil, err
}

// State returns the breaker state: closed, half-open or open.
func (g *GuardedVerifier) State() string {
	return g.cb.State().String()
}
