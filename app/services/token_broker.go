// Package services provides marketplace API integrations: token management, paged fetching and catalog access
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/amirphl/sneaker-price-ledger/config"
	"github.com/amirphl/sneaker-price-ledger/utils"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
)

// MarketplaceCredentials are the OAuth client, refresh token and API key issued by the marketplace
type MarketplaceCredentials struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	APIKey       string
}

// CredentialsFromConfig extracts the credentials from the marketplace configuration
func CredentialsFromConfig(cfg config.MarketplaceConfig) MarketplaceCredentials {
	return MarketplaceCredentials{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RefreshToken: cfg.RefreshToken,
		APIKey:       cfg.APIKey,
	}
}

// Validate returns a ConfigurationError naming the first missing credential
func (c MarketplaceCredentials) Validate() error {
	required := []struct {
		key   string
		value string
	}{
		{"STOCKX_CLIENT_ID", c.ClientID},
		{"STOCKX_CLIENT_SECRET", c.ClientSecret},
		{"STOCKX_REFRESH_TOKEN", c.RefreshToken},
		{"STOCKX_API_KEY", c.APIKey},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return &ConfigurationError{Key: r.key}
		}
	}
	return nil
}

// TokenAuthorizer supplies bearer tokens and the API key for marketplace requests
type TokenAuthorizer interface {
	ValidToken(ctx context.Context) (string, error)
	ForceRefresh(ctx context.Context) (string, error)
	APIKey() string
}

// TokenBrokerOptions configures a TokenBroker
type TokenBrokerOptions struct {
	AuthURL      string
	HTTPClient   *http.Client
	Clock        utils.Clock
	SafetyMargin time.Duration
	Logger       *log.Logger
}

// TokenBroker owns the marketplace access token: it refreshes with the OAuth2 refresh token grant
// and caches the result until shortly before it expires. Refreshes are serialized.
type TokenBroker struct {
	creds      MarketplaceCredentials
	oauth      *oauth2.Config
	httpClient *http.Client
	clock      utils.Clock
	margin     time.Duration
	logger     *log.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenBroker validates the credentials and builds a broker; it performs no network I/O
func NewTokenBroker(creds MarketplaceCredentials, opts TokenBrokerOptions) (*TokenBroker, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if opts.AuthURL == "" {
		return nil, &ConfigurationError{Key: "STOCKX_AUTH_URL"}
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	margin := opts.SafetyMargin
	if margin <= 0 {
		margin = utils.TokenSafetyMargin
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}

	return &TokenBroker{
		creds: creds,
		oauth: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint: oauth2.Endpoint{
				TokenURL:  opts.AuthURL,
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		httpClient: httpClient,
		clock:      utils.ClockOrSystem(opts.Clock),
		margin:     margin,
		logger:     logger,
	}, nil
}

// APIKey returns the marketplace API key
func (b *TokenBroker) APIKey() string {
	return b.creds.APIKey
}

// ValidToken returns the cached access token, refreshing it when it is missing or about to expire
func (b *TokenBroker) ValidToken(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.token != "" && b.clock.Now().Before(b.expiry.Add(-b.margin)) {
		return b.token, nil
	}
	return b.refreshLocked(ctx)
}

// ForceRefresh discards the cached token and authenticates again
func (b *TokenBroker) ForceRefresh(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.token = ""
	b.expiry = time.Time{}
	return b.refreshLocked(ctx)
}

func (b *TokenBroker) refreshLocked(ctx context.Context) (string, error) {
	issuedAt := b.clock.Now()
	ctx = context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)

	tok, err := b.oauth.TokenSource(ctx, &oauth2.Token{RefreshToken: b.creds.RefreshToken}).Token()
	if err != nil {
		b.token = ""
		b.expiry = time.Time{}
		TokenRefreshTotal.WithLabelValues("error").Inc()
		authErr := toAuthError(err)
		b.logger.Printf("marketplace token refresh failed: %v", authErr)
		return "", authErr
	}

	lifetime := tokenLifetime(tok, issuedAt)
	b.token = tok.AccessToken
	b.expiry = issuedAt.Add(lifetime)
	TokenRefreshTotal.WithLabelValues("success").Inc()
	b.logger.Printf("marketplace token refreshed expires_in=%s", lifetime)

	return b.token, nil
}

func toAuthError(err error) *AuthError {
	var rErr *oauth2.RetrieveError
	if errors.As(err, &rErr) && rErr.Response != nil {
		return &AuthError{
			StatusCode: rErr.Response.StatusCode,
			Body:       truncateBody(rErr.Body),
			Err:        err,
		}
	}
	return &AuthError{Err: err}
}

// tokenLifetime reads expires_in, then the JWT exp claim, then falls back to the default lifetime
func tokenLifetime(tok *oauth2.Token, issuedAt time.Time) time.Duration {
	if secs, ok := numericSeconds(tok.Extra("expires_in")); ok && secs > 0 {
		return time.Duration(secs) * time.Second
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tok.AccessToken, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			if d := exp.Sub(issuedAt); d > 0 {
				return d
			}
		}
	}

	return utils.DefaultTokenLifetime
}

func numericSeconds(v any) (int64, bool) {
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	case string:
		parsed, err := strconv.ParseInt(strings.TrimSpace(n), 10, 64)
		return parsed, err == nil
	default:
		return 0, false
	}
}

func truncateBody(body []byte) string {
	const limit = 512
	if len(body) > limit {
		return fmt.Sprintf("%s...", body[:limit])
	}
	return string(body)
}
