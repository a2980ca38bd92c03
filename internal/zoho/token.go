package zoho

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/himplant/crmsync/internal/syncerr"
)

// Token cache defaults.
const (
	DefaultTokenMargin = 60 * time.Second
	FallbackTokenTTL   = time.Hour
)

// Refresher obtains a fresh access token from the accounts server.
type Refresher interface {
	Refresh(ctx context.Context) (*oauth2.Token, error)
}

// TokenCache keeps one access token in memory and refreshes it on demand
// when it is within margin of its expiry. Callers that arrive during a
// refresh wait for it and then reuse its result.
type TokenCache struct {
	refresher Refresher
	margin    time.Duration
	now       func() time.Time
	logger    *slog.Logger

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewTokenCache builds a cache. margin <= 0 uses DefaultTokenMargin.
func NewTokenCache(log *slog.Logger, refresher Refresher, margin time.Duration) *TokenCache {
	if margin <= 0 {
		margin = DefaultTokenMargin
	}
	return &TokenCache{
		refresher: refresher,
		margin:    margin,
		now:       time.Now,
		logger:    log.With(slog.String("component", "zoho_token")),
	}
}

// SetClock replaces the time source.
func (c *TokenCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now != nil {
		c.now = now
	}
}

// AccessToken returns a token valid for at least margin.
func (c *TokenCache) AccessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if c.token != "" && now.Before(c.expiry.Add(-c.margin)) {
		return c.token, nil
	}
	if c.refresher == nil {
		return "", syncerr.Auth("zoho token", errors.New("no refresher configured"))
	}

	tok, err := c.refresher.Refresh(ctx)
	if err != nil {
		return "", syncerr.Auth("zoho token refresh", err)
	}
	if tok == nil || strings.TrimSpace(tok.AccessToken) == "" {
		return "", syncerr.Auth("zoho token refresh", errors.New("response has no access_token"))
	}

	c.token = tok.AccessToken
	c.expiry = c.expiryOf(tok, now)
	c.logger.Debug("access token refreshed", slog.Time("expires_at", c.expiry))
	return c.token, nil
}

// Invalidate drops the cached token so the next call refreshes.
func (c *TokenCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = ""
	c.expiry = time.Time{}
}

func (c *TokenCache) expiryOf(tok *oauth2.Token, now time.Time) time.Time {
	if tok.ExpiresIn > 0 {
		return now.Add(time.Duration(tok.ExpiresIn) * time.Second)
	}
	if !tok.Expiry.IsZero() {
		return tok.Expiry
	}
	return now.Add(FallbackTokenTTL)
}
