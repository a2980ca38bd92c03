package modules

import (
	"log/slog"
	"net/http"

	"go.uber.org/fx"

	"github.com/himplant/crmsync/internal/boot"
	"github.com/himplant/crmsync/internal/bookingsync"
	"github.com/himplant/crmsync/internal/config"
	"github.com/himplant/crmsync/internal/contacts"
	"github.com/himplant/crmsync/internal/deals"
	"github.com/himplant/crmsync/internal/journal"
	"github.com/himplant/crmsync/internal/meetings"
	"github.com/himplant/crmsync/internal/retry"
	"github.com/himplant/crmsync/internal/signature"
	"github.com/himplant/crmsync/internal/square"
	"github.com/himplant/crmsync/internal/zoho"
)

// DomainModule provides the upstream clients and the sync pipeline.
var DomainModule = fx.Module(
	"domain",
	fx.Provide(
		provideTokenCache,
		provideZohoClient,
		provideSquareClient,
		provideResolver,
		provideUpserter,
		provideDealSyncer,
		provideVerifier,
		provideSyncService,
	),
)

func provideTokenCache(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) *zoho.TokenCache {
	refresher := zoho.NewOAuthRefresher(
		cfg.Zoho.ClientID,
		cfg.Zoho.ClientSecret,
		cfg.Zoho.RefreshToken,
		cfg.Zoho.TokenURL,
		&http.Client{Timeout: rc.ZohoTimeout},
	)
	return zoho.NewTokenCache(log, refresher, rc.TokenMargin)
}

func provideZohoClient(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig, tokens *zoho.TokenCache) *zoho.Client {
	exec := retry.New(log.With(slog.String("upstream", "zoho")),
		retry.WithLimiter(retry.NewLimiter(cfg.Zoho.RequestsPerSecond, cfg.Zoho.Burst)),
	)
	return zoho.NewClient(log, cfg.Zoho.BaseURL, tokens, exec, rc.ZohoTimeout)
}

func provideSquareClient(log *slog.Logger, cfg config.Config, rc *boot.RuntimeConfig) *square.Client {
	exec := retry.New(log.With(slog.String("upstream", "square")))
	return square.NewClient(log, cfg.Square.BaseURL, cfg.Square.AccessToken, cfg.Square.APIVersion, exec, rc.SquareTimeout)
}

func provideResolver(log *slog.Logger, cfg config.Config, crm *zoho.Client) *contacts.Resolver {
	return contacts.NewResolver(log, crm, contacts.Options{
		LeadSource:      cfg.Sync.LeadSource,
		DefaultLastName: cfg.Sync.DefaultLastName,
		MatchMobile:     cfg.Sync.MatchMobile,
	})
}

func provideUpserter(log *slog.Logger, cfg config.Config, crm *zoho.Client) *meetings.Upserter {
	return meetings.NewUpserter(log, crm, meetings.Fields{
		Title:      cfg.Zoho.Fields.Title,
		Status:     cfg.Zoho.Fields.Status,
		ExternalID: cfg.Zoho.Fields.ExternalID,
	})
}

// provideDealSyncer returns nil when the deal pipeline is disabled.
func provideDealSyncer(log *slog.Logger, cfg config.Config, crm *zoho.Client) bookingsync.DealSyncer {
	if !cfg.Deals.Enabled {
		log.Info("deal pipeline disabled")
		return nil
	}
	return deals.NewManager(log, crm, deals.Options{
		Pipeline:         cfg.Deals.Pipeline,
		BookedStage:      cfg.Deals.BookedStage,
		RescheduledStage: cfg.Deals.RescheduledStage,
		LostStage:        cfg.Deals.LostStage,
		ExternalIDField:  cfg.Zoho.Fields.DealExternalID,
	})
}

func provideVerifier(cfg config.Config) *signature.Verifier {
	return signature.NewVerifier(cfg.Square.WebhookKey, cfg.Square.NotificationURL)
}

type syncServiceParams struct {
	fx.In

	Logger        *slog.Logger
	Config        config.Config
	RuntimeConfig *boot.RuntimeConfig
	Bookings      *square.Client
	Resolver      *contacts.Resolver
	Upserter      *meetings.Upserter
	Deals         bookingsync.DealSyncer
	Journal       journal.Store
}

func provideSyncService(p syncServiceParams) *bookingsync.Service {
	return bookingsync.NewService(p.Logger, p.Bookings, p.Resolver, p.Upserter, p.Deals, p.Journal, bookingsync.Options{
		TitleLabel:             p.Config.Sync.TitleLabel,
		DefaultDuration:        p.RuntimeConfig.DefaultDuration,
		FetchAttempts:          p.RuntimeConfig.FetchAttempts,
		FetchDelay:             p.RuntimeConfig.FetchDelay,
		Timeout:                p.RuntimeConfig.SyncTimeout,
		PlaceholderEmailDomain: p.Config.Sync.PlaceholderEmailDomain,
	})
}
