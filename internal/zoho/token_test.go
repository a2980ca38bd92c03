package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/himplant/crmsync/internal/logger"
	"github.com/himplant/crmsync/internal/syncerr"
)

type fakeRefresher struct {
	mu    sync.Mutex
	calls int
	ttl   int64
	err   error
	empty bool
}

func (f *fakeRefresher) Refresh(context.Context) (*oauth2.Token, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	if f.empty {
		return &oauth2.Token{}, nil
	}
	return &oauth2.Token{AccessToken: "tok", ExpiresIn: f.ttl}, nil
}

func (f *fakeRefresher) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestCache(r Refresher) (*TokenCache, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	cache := NewTokenCache(logger.Discard(), r, time.Minute)
	cache.SetClock(clock.Now)
	return cache, clock
}

func TestTokenCacheNoRefreshBeforeExpiry(t *testing.T) {
	r := &fakeRefresher{ttl: 3600}
	cache, clock := newTestCache(r)

	tok, err := cache.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok", tok)
	assert.Equal(t, 1, r.count())

	clock.Advance(58 * time.Minute)
	_, err = cache.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.count(), "token still outside margin must be reused")
}

func TestTokenCacheRefreshesOnceAfterExpiry(t *testing.T) {
	r := &fakeRefresher{ttl: 3600}
	cache, clock := newTestCache(r)

	_, err := cache.AccessToken(context.Background())
	require.NoError(t, err)

	clock.Advance(59*time.Minute + 30*time.Second)
	for range 3 {
		_, err = cache.AccessToken(context.Background())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, r.count())
}

func TestTokenCacheConcurrentCallersShareRefresh(t *testing.T) {
	r := &fakeRefresher{ttl: 3600}
	cache, _ := newTestCache(r)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = cache.AccessToken(context.Background())
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, r.count())
}

func TestTokenCacheFallbackTTL(t *testing.T) {
	r := &fakeRefresher{}
	cache, clock := newTestCache(r)

	_, err := cache.AccessToken(context.Background())
	require.NoError(t, err)
	clock.Advance(50 * time.Minute)
	_, err = cache.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, r.count())
}

func TestTokenCacheErrorsAreAuth(t *testing.T) {
	cache, _ := newTestCache(&fakeRefresher{err: errors.New("invalid_code")})
	_, err := cache.AccessToken(context.Background())
	assert.True(t, syncerr.Is(err, syncerr.KindAuth))

	cache, _ = newTestCache(&fakeRefresher{empty: true})
	_, err = cache.AccessToken(context.Background())
	assert.True(t, syncerr.Is(err, syncerr.KindAuth))
}

func TestTokenCacheInvalidate(t *testing.T) {
	r := &fakeRefresher{ttl: 3600}
	cache, _ := newTestCache(r)

	_, _ = cache.AccessToken(context.Background())
	cache.Invalidate()
	_, _ = cache.AccessToken(context.Background())
	assert.Equal(t, 2, r.count())
}

func TestOAuthRefresher(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "refresh-1", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret-1", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "1000.abc",
			"expires_in":   3600,
			"token_type":   "Bearer",
			"api_domain":   "https://www.zohoapis.com",
		})
	}))
	defer srv.Close()

	refresher := NewOAuthRefresher("client-1", "secret-1", "refresh-1", srv.URL, srv.Client())
	cache := NewTokenCache(logger.Discard(), refresher, 0)

	tok, err := cache.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000.abc", tok)

	tok, err = cache.AccessToken(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1000.abc", tok)
	assert.Equal(t, 1, calls)
}

func TestOAuthRefresherMissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"error":"invalid_code"}`))
	}))
	defer srv.Close()

	cache := NewTokenCache(logger.Discard(), NewOAuthRefresher("c", "s", "r", srv.URL, srv.Client()), 0)
	_, err := cache.AccessToken(context.Background())
	require.Error(t, err)
	assert.True(t, syncerr.Is(err, syncerr.KindAuth))
}
