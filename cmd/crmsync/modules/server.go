package modules

import (
	"context"
	"fmt"
	"log/slog"

	"go.uber.org/fx"

	"github.com/himplant/crmsync/internal/bookingsync"
	"github.com/himplant/crmsync/internal/boot"
	"github.com/himplant/crmsync/internal/handlers"
	"github.com/himplant/crmsync/internal/server"
	"github.com/himplant/crmsync/internal/signature"
	"github.com/himplant/crmsync/internal/version"
)

// ServerModule provides the HTTP handlers and runs the server.
var ServerModule = fx.Module(
	"server",
	fx.Provide(
		provideServerHandler(handlers.NewPingHandler),
		provideServerHandler(newWebhookHandler),
		provideServer,
	),
	fx.Invoke(startServer),
)

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func newWebhookHandler(log *slog.Logger, events *bookingsync.Service, verifier *signature.Verifier) *handlers.WebhookHandler {
	return handlers.NewWebhookHandler(log, events, verifier)
}

type serverParams struct {
	fx.In

	Logger         *slog.Logger
	RuntimeConfig  *boot.RuntimeConfig
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.NewServer(params.Logger, params.RuntimeConfig.ServerAddr, params.ServerHandlers...)
}

func startServer(lc fx.Lifecycle, logger *slog.Logger, srv *server.Server, shutdowner fx.Shutdowner, rc *boot.RuntimeConfig) {
	logger.Info("starting crmsync",
		slog.String("version", version.GetInfo()),
		slog.String("addr", srv.Addr()),
		slog.Bool("signature_enabled", rc.SignatureEnabled),
	)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("server failed", slog.Any("error", err))
					_ = shutdowner.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := srv.Stop(ctx); err != nil {
				return fmt.Errorf("server stop: %w", err)
			}
			return nil
		},
	})
}
