// Package boot turns the loaded configuration into validated runtime settings.
package boot

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/himplant/crmsync/internal/config"
)

// RuntimeConfig holds parsed runtime settings derived from config.Config.
type RuntimeConfig struct {
	ServerAddr       string
	DefaultDuration  time.Duration
	SyncTimeout      time.Duration
	FetchDelay       time.Duration
	FetchAttempts    int
	TokenMargin      time.Duration
	SquareTimeout    time.Duration
	ZohoTimeout      time.Duration
	JournalRetention time.Duration
	SignatureEnabled bool
}

// ProvideRuntimeConfig validates required credentials and parses durations.
func ProvideRuntimeConfig(cfg config.Config) (*RuntimeConfig, error) {
	var missing []string
	if strings.TrimSpace(cfg.Square.AccessToken) == "" {
		missing = append(missing, "square.access_token (SQUARE_ACCESS_TOKEN)")
	}
	if strings.TrimSpace(cfg.Zoho.ClientID) == "" {
		missing = append(missing, "zoho.client_id (ZOHO_CLIENT_ID)")
	}
	if strings.TrimSpace(cfg.Zoho.ClientSecret) == "" {
		missing = append(missing, "zoho.client_secret (ZOHO_CLIENT_SECRET)")
	}
	if strings.TrimSpace(cfg.Zoho.RefreshToken) == "" {
		missing = append(missing, "zoho.refresh_token (ZOHO_REFRESH_TOKEN)")
	}
	if len(missing) > 0 {
		return nil, errors.New("missing required settings: " + strings.Join(missing, ", "))
	}

	ret := &RuntimeConfig{
		ServerAddr:       cfg.Server.Addr,
		FetchAttempts:    cfg.Sync.FetchAttempts,
		SquareTimeout:    secondsOr(cfg.Square.TimeoutSeconds, config.DefaultSquareTimeout),
		ZohoTimeout:      secondsOr(cfg.Zoho.TimeoutSeconds, config.DefaultZohoTimeout),
		SignatureEnabled: strings.TrimSpace(cfg.Square.WebhookKey) != "",
	}
	if ret.ServerAddr == "" {
		ret.ServerAddr = config.DefaultHTTPAddr
	}
	if ret.FetchAttempts <= 0 {
		ret.FetchAttempts = 1
	}

	durations := []struct {
		name  string
		value string
		def   string
		dst   *time.Duration
	}{
		{"sync.default_duration", cfg.Sync.DefaultDuration, config.DefaultDuration, &ret.DefaultDuration},
		{"sync.timeout", cfg.Sync.Timeout, config.DefaultSyncTimeout, &ret.SyncTimeout},
		{"sync.fetch_delay", cfg.Sync.FetchDelay, config.DefaultFetchDelay, &ret.FetchDelay},
		{"zoho.token_margin", cfg.Zoho.TokenMargin, config.DefaultTokenMargin, &ret.TokenMargin},
		{"journal.retention", cfg.Journal.Retention, config.DefaultJournalRetain, &ret.JournalRetention},
	}
	for _, d := range durations {
		value := strings.TrimSpace(d.value)
		if value == "" {
			value = d.def
		}
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return nil, fmt.Errorf("invalid %s: %w", d.name, err)
		}
		if parsed < 0 {
			return nil, fmt.Errorf("invalid %s: must not be negative", d.name)
		}
		*d.dst = parsed
	}
	return ret, nil
}

func secondsOr(value, fallback int) time.Duration {
	if value <= 0 {
		value = fallback
	}
	return time.Duration(value) * time.Second
}
