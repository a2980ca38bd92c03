// Package config loads and exposes application configuration (TOML, .env and environment).
package config

import (
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath      = "config.toml"
	DefaultEnvPath         = ".env"
	DefaultHTTPAddr        = ":8080"
	DefaultSquareBaseURL   = "https://connect.squareup.com/v2"
	DefaultSquareVersion   = "2024-05-15"
	DefaultZohoBaseURL     = "https://www.zohoapis.com/crm/v5"
	DefaultZohoTokenURL    = "https://accounts.zoho.com/oauth/v2/token"
	DefaultTitleLabel      = "Himplant virtual consultation"
	DefaultLeadSource      = "Square"
	DefaultLastName        = "(Square)"
	DefaultDuration        = "30m"
	DefaultSyncTimeout     = "30s"
	DefaultFetchDelay      = "2s"
	DefaultFetchAttempts   = 3
	DefaultTokenMargin     = "60s"
	DefaultPipeline        = "Standard"
	DefaultBookedStage     = "Consultation Scheduled"
	DefaultRescheduled     = "Consultation Rescheduled"
	DefaultLostStage       = "Closed Lost"
	DefaultJournalDriver   = "memory"
	DefaultJournalRetain   = "72h"
	DefaultSweepSchedule   = "@every 1h"
	DefaultPGHost          = "127.0.0.1"
	DefaultPGPort          = 5432
	DefaultPGUser          = "postgres"
	DefaultPGDatabase      = "crmsync"
	DefaultPGSSLMode       = "disable"
	DefaultSquareTimeout   = 10
	DefaultZohoTimeout     = 15
	DefaultZohoRPS         = 8.0
	DefaultZohoBurst       = 4
	DefaultTitleField      = "Event_Title"
	DefaultStatusField     = "Meeting_Status"
	DefaultExternalIDField = "Square_Meeting_ID"
)

// Config is the root application configuration.
type Config struct {
	Log      LogConfig      `toml:"log"`
	Server   ServerConfig   `toml:"server"`
	Square   SquareConfig   `toml:"square"`
	Zoho     ZohoConfig     `toml:"zoho"`
	Sync     SyncConfig     `toml:"sync"`
	Deals    DealsConfig    `toml:"deals"`
	Journal  JournalConfig  `toml:"journal"`
	Postgres PostgresConfig `toml:"postgres"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// SquareConfig holds booking platform credentials and the webhook signature settings.
type SquareConfig struct {
	AccessToken     string `toml:"access_token"`
	BaseURL         string `toml:"base_url"`
	APIVersion      string `toml:"api_version"`
	WebhookKey      string `toml:"webhook_key"`
	NotificationURL string `toml:"notification_url"`
	TimeoutSeconds  int    `toml:"timeout_seconds"`
}

// ZohoConfig holds CRM OAuth credentials, endpoints, pacing and field-name overrides.
type ZohoConfig struct {
	ClientID          string      `toml:"client_id"`
	ClientSecret      string      `toml:"client_secret"`
	RefreshToken      string      `toml:"refresh_token"`
	BaseURL           string      `toml:"base_url"`
	TokenURL          string      `toml:"token_url"`
	TokenMargin       string      `toml:"token_margin"`
	TimeoutSeconds    int         `toml:"timeout_seconds"`
	RequestsPerSecond float64     `toml:"requests_per_second"`
	Burst             int         `toml:"burst"`
	Fields            FieldConfig `toml:"fields"`
}

// FieldConfig overrides CRM field API names used for calendar entries and deals.
type FieldConfig struct {
	Title          string `toml:"title"`
	Status         string `toml:"status"`
	ExternalID     string `toml:"external_id"`
	DealExternalID string `toml:"deal_external_id"`
}

// SyncConfig holds the knobs of the synchronization engine.
type SyncConfig struct {
	TitleLabel             string `toml:"title_label"`
	LeadSource             string `toml:"lead_source"`
	DefaultLastName        string `toml:"default_last_name"`
	DefaultDuration        string `toml:"default_duration"`
	MatchMobile            bool   `toml:"match_mobile"`
	PlaceholderEmailDomain string `toml:"placeholder_email_domain"`
	FetchAttempts          int    `toml:"fetch_attempts"`
	FetchDelay             string `toml:"fetch_delay"`
	Timeout                string `toml:"timeout"`
}

// DealsConfig holds pipeline deal sync settings.
type DealsConfig struct {
	Enabled          bool   `toml:"enabled"`
	Pipeline         string `toml:"pipeline"`
	BookedStage      string `toml:"booked_stage"`
	RescheduledStage string `toml:"rescheduled_stage"`
	LostStage        string `toml:"lost_stage"`
}

// JournalConfig selects the sync journal backend and its retention.
type JournalConfig struct {
	Driver        string `toml:"driver"`
	Retention     string `toml:"retention"`
	SweepSchedule string `toml:"sweep_schedule"`
	AutoMigrate   bool   `toml:"auto_migrate"`
}

// PostgresConfig holds PostgreSQL connection parameters. URL, when set, wins over the discrete fields.
type PostgresConfig struct {
	URL      string `toml:"url"`
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Square: SquareConfig{
			BaseURL:        DefaultSquareBaseURL,
			APIVersion:     DefaultSquareVersion,
			TimeoutSeconds: DefaultSquareTimeout,
		},
		Zoho: ZohoConfig{
			BaseURL:           DefaultZohoBaseURL,
			TokenURL:          DefaultZohoTokenURL,
			TokenMargin:       DefaultTokenMargin,
			TimeoutSeconds:    DefaultZohoTimeout,
			RequestsPerSecond: DefaultZohoRPS,
			Burst:             DefaultZohoBurst,
			Fields: FieldConfig{
				Title:      DefaultTitleField,
				Status:     DefaultStatusField,
				ExternalID: DefaultExternalIDField,
			},
		},
		Sync: SyncConfig{
			TitleLabel:      DefaultTitleLabel,
			LeadSource:      DefaultLeadSource,
			DefaultLastName: DefaultLastName,
			DefaultDuration: DefaultDuration,
			MatchMobile:     true,
			FetchAttempts:   DefaultFetchAttempts,
			FetchDelay:      DefaultFetchDelay,
			Timeout:         DefaultSyncTimeout,
		},
		Deals: DealsConfig{
			Pipeline:         DefaultPipeline,
			BookedStage:      DefaultBookedStage,
			RescheduledStage: DefaultRescheduled,
			LostStage:        DefaultLostStage,
		},
		Journal: JournalConfig{
			Driver:        DefaultJournalDriver,
			Retention:     DefaultJournalRetain,
			SweepSchedule: DefaultSweepSchedule,
			AutoMigrate:   true,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
	}
}

// Load reads the TOML config file at path, loads .env into the process
// environment and applies environment overrides. Missing files are not errors.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, err
		}
	} else if !os.IsNotExist(err) {
		return cfg, err
	}

	if err := godotenv.Load(DefaultEnvPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return cfg, err
	}

	ApplyEnv(&cfg, os.LookupEnv)
	return cfg, nil
}

// ApplyEnv overrides cfg with values found through lookup (usually os.LookupEnv).
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
			*dst = strings.TrimSpace(value)
		}
	}

	set("SQUARE_ACCESS_TOKEN", &cfg.Square.AccessToken)
	set("SQUARE_WEBHOOK_KEY", &cfg.Square.WebhookKey)
	set("SQUARE_NOTIFICATION_URL", &cfg.Square.NotificationURL)
	set("ZOHO_CLIENT_ID", &cfg.Zoho.ClientID)
	set("ZOHO_CLIENT_SECRET", &cfg.Zoho.ClientSecret)
	set("ZOHO_REFRESH_TOKEN", &cfg.Zoho.RefreshToken)
	set("ZOHO_FIELD_SQUARE_ID", &cfg.Zoho.Fields.ExternalID)
	set("DATABASE_URL", &cfg.Postgres.URL)
	set("LOG_LEVEL", &cfg.Log.Level)
	set("LOG_FORMAT", &cfg.Log.Format)

	if value, ok := lookup("PORT"); ok && strings.TrimSpace(value) != "" {
		cfg.Server.Addr = ":" + strings.TrimSpace(value)
	}
	set("HTTP_ADDR", &cfg.Server.Addr)

	if value, ok := lookup("DEALS_ENABLED"); ok {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes":
			cfg.Deals.Enabled = true
		case "0", "false", "no":
			cfg.Deals.Enabled = false
		}
	}
}
