package main

import (
	"context"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/nunutzi10/foam-ai/internal/admins"
	"github.com/nunutzi10/foam-ai/internal/apikeys"
	"github.com/nunutzi10/foam-ai/internal/bots"
	"github.com/nunutzi10/foam-ai/internal/completions"
	"github.com/nunutzi10/foam-ai/internal/config"
	"github.com/nunutzi10/foam-ai/internal/contacts"
	"github.com/nunutzi10/foam-ai/internal/conversations"
	"github.com/nunutzi10/foam-ai/internal/db"
	"github.com/nunutzi10/foam-ai/internal/handlers"
	"github.com/nunutzi10/foam-ai/internal/logger"
	"github.com/nunutzi10/foam-ai/internal/messages"
	"github.com/nunutzi10/foam-ai/internal/prompt"
	"github.com/nunutzi10/foam-ai/internal/retention"
	"github.com/nunutzi10/foam-ai/internal/server"
	"github.com/nunutzi10/foam-ai/internal/tenants"
	"github.com/nunutzi10/foam-ai/internal/vonage"
	"github.com/nunutzi10/foam-ai/internal/webhook"
)

func runServe() {
	fx.New(
		fx.Provide(
			loadConfig,
			provideLogger,
			provideDBConn,
			provideQuerier,
			provideAuthConfig,
			provideRetentionConfig,
			tenants.NewService,
			admins.NewService,
			apikeys.NewService,
			bots.NewService,
			contacts.NewService,
			conversations.NewService,
			completions.NewService,
			messages.NewService,
			provideEngine,
			provideNormalizer,
			provideVonageCache,
			provideOrchestrator,
			webhook.NewStatusReconciler,
			retention.NewPurger,
			provideServerHandler(handlers.NewPingHandler),
			provideServerHandler(handlers.NewAdminsHandler),
			provideServerHandler(handlers.NewTenantsHandler),
			provideServerHandler(handlers.NewBotsHandler),
			provideServerHandler(handlers.NewAPIKeysHandler),
			provideServerHandler(handlers.NewCompletionsHandler),
			provideServerHandler(handlers.NewConversationsHandler),
			provideServerHandler(handlers.NewChatHandler),
			provideServerHandler(handlers.NewVonageHandler),
			provideServer,
		),
		fx.Invoke(
			startRetention,
			startServer,
		),
		fx.WithLogger(func(logger *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: logger.With(slog.String("component", "fx"))}
		}),
	).Run()
}

func provideServerHandler(fn any) any {
	return fx.Annotate(
		fn,
		fx.As(new(server.Handler)),
		fx.ResultTags(`group:"server_handlers"`),
	)
}

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	pool, err := db.Connect(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{OnStop: func(context.Context) error { pool.Close(); return nil }})
	return pool, nil
}

func provideQuerier(pool *pgxpool.Pool) db.Querier { return pool }

func provideAuthConfig(cfg config.Config) config.AuthConfig { return cfg.Auth }

func provideRetentionConfig(cfg config.Config) config.RetentionConfig { return cfg.Retention }

func provideEngine(log *slog.Logger, service *completions.Service, cfg config.Config) *completions.Engine {
	return completions.NewEngine(log, service, completions.NewOpenAIProvider(), cfg.OpenAI.Model)
}

func provideNormalizer(log *slog.Logger, cfg config.Config) *prompt.Normalizer {
	return prompt.NewNormalizer(log,
		prompt.NewHTTPDownloader(nil),
		&prompt.TesseractOCR{},
		&prompt.WhisperTranscriber{},
		cfg.Media.TmpDir)
}

func provideVonageCache(log *slog.Logger, cfg config.Config) *vonage.Cache {
	return vonage.NewCache(log, cfg.Vonage.HostOverride, nil)
}

func provideOrchestrator(
	log *slog.Logger,
	pool *pgxpool.Pool,
	botSvc *bots.Service,
	tenantSvc *tenants.Service,
	contactSvc *contacts.Service,
	messageSvc *messages.Service,
	completionSvc *completions.Service,
	engine *completions.Engine,
	normalizer *prompt.Normalizer,
	cache *vonage.Cache,
) *webhook.Orchestrator {
	return webhook.NewOrchestrator(log, db.Pool{Pool: pool},
		botSvc, tenantSvc, contactSvc, messageSvc, completionSvc, engine,
		normalizer, &webhook.CacheSender{Cache: cache})
}

type serverParams struct {
	fx.In
	Logger         *slog.Logger
	Config         config.Config
	ServerHandlers []server.Handler `group:"server_handlers"`
}

func provideServer(params serverParams) *server.Server {
	return server.New(params.Logger, params.Config.Server.Addr,
		params.Config.Auth.JWTSecret, params.ServerHandlers)
}

func startServer(lc fx.Lifecycle, s *server.Server, log *slog.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := s.Start(); err != nil {
					log.Error("server stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error { return s.Stop(ctx) },
	})
}

func startRetention(lc fx.Lifecycle, purger *retention.Purger) {
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error { return purger.Start() },
		OnStop:  func(ctx context.Context) error { return purger.Stop(ctx) },
	})
}
