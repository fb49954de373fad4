package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	httptransport "github.com/spec-kit/ticket-engine/internal/api/http"
	"github.com/spec-kit/ticket-engine/internal/api/http/handlers"
	"github.com/spec-kit/ticket-engine/internal/config"
	"github.com/spec-kit/ticket-engine/internal/events"
	"github.com/spec-kit/ticket-engine/internal/lock"
	"github.com/spec-kit/ticket-engine/internal/observability"
	"github.com/spec-kit/ticket-engine/internal/persistence"
	"github.com/spec-kit/ticket-engine/internal/platform/discord"
	"github.com/spec-kit/ticket-engine/internal/repository"
	"github.com/spec-kit/ticket-engine/internal/service"
	"github.com/spec-kit/ticket-engine/internal/transcript"
	"github.com/spec-kit/ticket-engine/internal/worker"
)

type stores struct {
	tickets repository.TicketRepository
	history repository.TicketHistoryRepository
	deps    []handlers.Dependency
	close   func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, cfg.App.Name)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	st := openStores(ctx, cfg, logger)
	defer st.close()

	var guard lock.Guard = lock.NewMemoryGuard(cfg.Switch.Cooldown())
	if cfg.Switch.Backend == config.GuardBackendRedis {
		redis := persistence.NewRedis(ctx, cfg.Redis, logger)
		defer redis.Close()
		guard = lock.NewRedisGuard(redis.Client, cfg.Switch.Cooldown())
		st.deps = append(st.deps, handlers.Dependency{Name: "redis", Pinger: redis})
	}

	client, err := discord.New(cfg.Discord.Token, logger)
	if err != nil {
		logger.Fatal("failed to init discord session", zap.Error(err))
	}
	defer client.Close() //nolint:errcheck

	exporter := transcript.NewExporter(client, transcript.Options{
		PlainLimit: cfg.Transcript.PlainLimit,
		HTMLCap:    cfg.Transcript.HTMLCap,
	}, logger)
	storage := openTranscriptStorage(ctx, cfg, logger)

	dispatcher := events.NewInMemoryDispatcher(logger)
	worker.StartAuditWorker(service.NewAuditService(dispatcher, st.history, logger))

	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo:  st.tickets,
		HistoryRepo: st.history,
		Platform:    client,
		Exporter:    exporter,
		Storage:     storage,
		Guard:       guard,
		Dispatcher:  dispatcher,
		Config:      cfg.Tickets,
		GuildID:     cfg.Discord.GuildID,
		Logger:      logger,
	})

	if cfg.Watchdog.Enabled {
		watchdog := worker.NewWatchdog(st.tickets, client, ticketService, cfg.Watchdog, logger.Named("watchdog"))
		go watchdog.Run(ctx)
	}

	metrics := observability.NewMetrics()
	app := fiber.New(fiber.Config{AppName: cfg.App.Name})
	httptransport.RegisterMiddlewares(app, logger, metrics, cfg.App.RequestTimeout())
	httptransport.RegisterRoutes(app, httptransport.RouteConfig{
		Health:  handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, metrics, st.deps...),
		Tickets: handlers.NewTicketsHandler(ticketService, metrics),
	})

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	cancel()
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) stores {
	switch cfg.Store.Driver {
	case config.StoreDriverMongo:
		m, err := persistence.NewMongo(ctx, cfg.Mongo, logger)
		if err != nil {
			logger.Fatal("failed to connect mongo", zap.Error(err))
		}
		tickets, err := repository.NewMongoTicketRepository(ctx, m.DB)
		if err != nil {
			logger.Fatal("failed to prepare mongo indexes", zap.Error(err))
		}
		return stores{
			tickets: tickets,
			history: repository.NewMongoHistoryRepository(m.DB),
			deps:    []handlers.Dependency{{Name: "mongo", Pinger: m}},
			close: func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				m.Close(closeCtx)
			},
		}
	case config.StoreDriverMemory:
		logger.Warn("using in-memory ticket store; records are lost on restart")
		mem := repository.NewMemoryStore()
		return stores{tickets: mem.Tickets(), history: mem.History(), close: func() {}}
	default:
		pg, err := persistence.NewPostgres(ctx, cfg.Postgres, logger)
		if err != nil {
			logger.Fatal("failed to connect postgres", zap.Error(err))
		}
		if cfg.Postgres.RunMigrations {
			if err := persistence.RunMigrations(ctx, pg.Pool, logger); err != nil {
				logger.Fatal("failed to run migrations", zap.Error(err))
			}
		}
		return stores{
			tickets: repository.NewTicketRepository(pg.Pool),
			history: repository.NewTicketHistoryRepository(pg.Pool),
			deps:    []handlers.Dependency{{Name: "postgres", Pinger: pg}},
			close:   pg.Close,
		}
	}
}

func openTranscriptStorage(ctx context.Context, cfg *config.Config, logger *zap.Logger) transcript.Storage {
	compression := transcript.CompressionNone
	if cfg.Transcript.Gzip {
		compression = transcript.CompressionGzip
	}
	switch cfg.Transcript.Backend {
	case config.TranscriptBackendMinio:
		storage, err := transcript.NewMinioStorage(ctx, transcript.MinioOptions{
			Endpoint:  cfg.Minio.Endpoint,
			AccessKey: cfg.Minio.AccessKey,
			SecretKey: cfg.Minio.SecretKey,
			Bucket:    cfg.Minio.Bucket,
			UseSSL:    cfg.Minio.UseSSL,
		}, compression)
		if err != nil {
			logger.Fatal("failed to init transcript storage", zap.Error(err))
		}
		return storage
	case config.TranscriptBackendNone:
		return transcript.NopStorage{}
	default:
		return transcript.NewLocalStorage(cfg.Transcript.Dir, compression)
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
