package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	testingutil "github.com/amirphl/sneaker-price-ledger/testing"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCredentials() MarketplaceCredentials {
	return MarketplaceCredentials{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RefreshToken: "refresh-token",
		APIKey:       "api-key",
	}
}

// tokenServer issues numbered access tokens and counts refresh requests
type tokenServer struct {
	*httptest.Server
	calls     atomic.Int32
	status    atomic.Int32
	expiresIn any
	token     func(n int32) string
	lastForm  atomic.Value
}

func newTokenServer(t *testing.T) *tokenServer {
	ts := &tokenServer{expiresIn: 3600}
	ts.status.Store(http.StatusOK)
	ts.token = func(n int32) string { return fmt.Sprintf("access-%d", n) }
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := ts.calls.Add(1)
		require.NoError(t, r.ParseForm())
		ts.lastForm.Store(r.PostForm)

		status := int(ts.status.Load())
		w.Header().Set("Content-Type", "application/json")
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		body := map[string]any{"access_token": ts.token(n), "token_type": "Bearer"}
		if ts.expiresIn != nil {
			body["expires_in"] = ts.expiresIn
		}
		_ = json.NewEncoder(w).Encode(body)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func newTestBroker(t *testing.T, ts *tokenServer, clock *testingutil.FakeClock) *TokenBroker {
	broker, err := NewTokenBroker(testCredentials(), TokenBrokerOptions{
		AuthURL:    ts.URL + "/oauth/token",
		HTTPClient: ts.Client(),
		Clock:      clock,
	})
	require.NoError(t, err)
	return broker
}

func TestNewTokenBroker(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*MarketplaceCredentials)
		wantKey string
	}{
		{"missing client id", func(c *MarketplaceCredentials) { c.ClientID = "" }, "STOCKX_CLIENT_ID"},
		{"missing client secret", func(c *MarketplaceCredentials) { c.ClientSecret = " " }, "STOCKX_CLIENT_SECRET"},
		{"missing refresh token", func(c *MarketplaceCredentials) { c.RefreshToken = "" }, "STOCKX_REFRESH_TOKEN"},
		{"missing api key", func(c *MarketplaceCredentials) { c.APIKey = "" }, "STOCKX_API_KEY"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			creds := testCredentials()
			tt.mutate(&creds)

			broker, err := NewTokenBroker(creds, TokenBrokerOptions{AuthURL: "http://localhost/oauth/token"})
			require.Error(t, err)
			assert.Nil(t, broker)
			assert.True(t, IsConfigurationError(err))

			var cfgErr *ConfigurationError
			require.ErrorAs(t, err, &cfgErr)
			assert.Equal(t, tt.wantKey, cfgErr.Key)
		})
	}

	t.Run("valid credentials", func(t *testing.T) {
		broker, err := NewTokenBroker(testCredentials(), TokenBrokerOptions{AuthURL: "http://localhost/oauth/token"})
		require.NoError(t, err)
		assert.Equal(t, "api-key", broker.APIKey())
	})
}

func TestTokenBroker_ValidToken(t *testing.T) {
	ctx := context.Background()

	t.Run("sends refresh token grant", func(t *testing.T) {
		ts := newTokenServer(t)
		broker := newTestBroker(t, ts, testingutil.NewFakeClock(time.Now()))

		token, err := broker.ValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "access-1", token)

		form := ts.lastForm.Load().(url.Values)
		assert.Equal(t, []string{"refresh_token"}, form["grant_type"])
		assert.Equal(t, []string{"refresh-token"}, form["refresh_token"])
		assert.Equal(t, []string{"client-id"}, form["client_id"])
		assert.Equal(t, []string{"client-secret"}, form["client_secret"])
	})

	t.Run("caches within expiry window", func(t *testing.T) {
		ts := newTokenServer(t)
		clock := testingutil.NewFakeClock(time.Now())
		broker := newTestBroker(t, ts, clock)

		_, err := broker.ValidToken(ctx)
		require.NoError(t, err)
		require.Equal(t, int32(1), ts.calls.Load())

		first, err := broker.ValidToken(ctx)
		require.NoError(t, err)
		clock.Advance(3539 * time.Second)
		second, err := broker.ValidToken(ctx)
		require.NoError(t, err)

		assert.Equal(t, int32(1), ts.calls.Load())
		assert.Equal(t, "access-1", first)
		assert.Equal(t, "access-1", second)
	})

	t.Run("refreshes once after expiry", func(t *testing.T) {
		ts := newTokenServer(t)
		clock := testingutil.NewFakeClock(time.Now())
		broker := newTestBroker(t, ts, clock)

		_, err := broker.ValidToken(ctx)
		require.NoError(t, err)

		clock.Advance(3541 * time.Second)
		token, err := broker.ValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, "access-2", token)

		_, err = broker.ValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(2), ts.calls.Load())
	})

	t.Run("uses jwt exp when expires_in is absent", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.expiresIn = nil
		clock := testingutil.NewFakeClock(time.Unix(1_700_000_000, 0))
		ts.token = func(n int32) string {
			signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
				"exp": clock.Now().Add(10 * time.Minute).Unix(),
				"n":   n,
			}).SignedString([]byte("test-signing-key"))
			require.NoError(t, err)
			return signed
		}
		broker := newTestBroker(t, ts, clock)

		_, err := broker.ValidToken(ctx)
		require.NoError(t, err)
		clock.Advance(530 * time.Second)
		_, err = broker.ValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(1), ts.calls.Load())

		clock.Advance(20 * time.Second)
		_, err = broker.ValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(2), ts.calls.Load())
	})

	t.Run("defaults lifetime to one hour", func(t *testing.T) {
		ts := newTokenServer(t)
		ts.expiresIn = nil
		clock := testingutil.NewFakeClock(time.Now())
		broker := newTestBroker(t, ts, clock)

		_, err := broker.ValidToken(ctx)
		require.NoError(t, err)
		clock.Advance(58 * time.Minute)
		_, err = broker.ValidToken(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(1), ts.calls.Load())
	})

	t.Run("serializes concurrent refreshes", func(t *testing.T) {
		ts := newTokenServer(t)
		broker := newTestBroker(t, ts, testingutil.NewFakeClock(time.Now()))

		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := broker.ValidToken(ctx)
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), ts.calls.Load())
	})
}

func TestTokenBroker_RefreshFailure(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	clock := testingutil.NewFakeClock(time.Now())
	broker := newTestBroker(t, ts, clock)

	_, err := broker.ValidToken(ctx)
	require.NoError(t, err)

	ts.status.Store(http.StatusUnauthorized)
	token, err := broker.ForceRefresh(ctx)
	require.Error(t, err)
	assert.Empty(t, token)
	assert.True(t, IsAuthError(err))

	var authErr *AuthError
	require.ErrorAs(t, err, &authErr)
	assert.Equal(t, http.StatusUnauthorized, authErr.StatusCode)
	assert.Contains(t, authErr.Body, "invalid_grant")

	// the failed refresh cleared the cache, so the next call goes back to the server
	ts.status.Store(http.StatusOK)
	token, err = broker.ValidToken(ctx)
	require.NoError(t, err)
	assert.Equal(t, "access-3", token)
	assert.Equal(t, int32(3), ts.calls.Load())
}

func TestTokenBroker_ForceRefresh(t *testing.T) {
	ctx := context.Background()
	ts := newTokenServer(t)
	broker := newTestBroker(t, ts, testingutil.NewFakeClock(time.Now()))

	first, err := broker.ValidToken(ctx)
	require.NoError(t, err)
	refreshed, err := broker.ForceRefresh(ctx)
	require.NoError(t, err)

	assert.NotEqual(t, first, refreshed)
	assert.Equal(t, int32(2), ts.calls.Load())
}
