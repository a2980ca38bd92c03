package boot

import (
	"strings"
	"testing"
	"time"

	"github.com/himplant/crmsync/internal/config"
)

func validConfig() config.Config {
	cfg := config.Default()
	cfg.Square.AccessToken = "sq"
	cfg.Zoho.ClientID = "id"
	cfg.Zoho.ClientSecret = "secret"
	cfg.Zoho.RefreshToken = "refresh"
	return cfg
}

func TestProvideRuntimeConfigDefaults(t *testing.T) {
	rc, err := ProvideRuntimeConfig(validConfig())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rc.DefaultDuration != 30*time.Minute {
		t.Errorf("default duration = %v, want 30m", rc.DefaultDuration)
	}
	if rc.TokenMargin != time.Minute {
		t.Errorf("token margin = %v, want 1m", rc.TokenMargin)
	}
	if rc.ZohoTimeout != 15*time.Second || rc.SquareTimeout != 10*time.Second {
		t.Errorf("unexpected timeouts: zoho=%v square=%v", rc.ZohoTimeout, rc.SquareTimeout)
	}
	if rc.SignatureEnabled {
		t.Error("signature verification should be disabled without a webhook key")
	}
}

func TestProvideRuntimeConfigMissingCredentials(t *testing.T) {
	cfg := validConfig()
	cfg.Zoho.RefreshToken = ""
	cfg.Square.AccessToken = " "

	_, err := ProvideRuntimeConfig(cfg)
	if err == nil {
		t.Fatal("expected error for missing credentials")
	}
	if !strings.Contains(err.Error(), "ZOHO_REFRESH_TOKEN") || !strings.Contains(err.Error(), "SQUARE_ACCESS_TOKEN") {
		t.Fatalf("error should name both missing settings: %v", err)
	}
}

func TestProvideRuntimeConfigInvalidDuration(t *testing.T) {
	cfg := validConfig()
	cfg.Sync.DefaultDuration = "half an hour"

	if _, err := ProvideRuntimeConfig(cfg); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestProvideRuntimeConfigSignatureEnabled(t *testing.T) {
	cfg := validConfig()
	cfg.Square.WebhookKey = "key"
	cfg.Sync.FetchAttempts = 0

	rc, err := ProvideRuntimeConfig(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !rc.SignatureEnabled {
		t.Error("expected signature verification enabled")
	}
	if rc.FetchAttempts != 1 {
		t.Errorf("fetch attempts = %d, want 1", rc.FetchAttempts)
	}
}
