package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/Freeeeeet/engagement_service/internal/app"
	"github.com/Freeeeeet/engagement_service/internal/cache"
	"github.com/Freeeeeet/engagement_service/internal/config"
	"github.com/Freeeeeet/engagement_service/internal/controller"
	"github.com/Freeeeeet/engagement_service/internal/controller/httpapi"
	"github.com/Freeeeeet/engagement_service/internal/delivery"
	"github.com/Freeeeeet/engagement_service/internal/events"
	"github.com/Freeeeeet/engagement_service/internal/repository"
	"github.com/Freeeeeet/engagement_service/internal/repository/base"
	"github.com/Freeeeeet/engagement_service/internal/repository/memory"
	"github.com/Freeeeeet/engagement_service/internal/service"
	"github.com/Freeeeeet/engagement_service/internal/validation"
	"github.com/go-telegram/bot"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment, cfg.LogLevel)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Service stopped with error", zap.Error(err))
	}
	logger.Info("Service stopped")
}

type stores struct {
	requests      service.RequestRepository
	engagements   service.EngagementRepository
	access        service.AccessRepository
	conversations service.ConversationRepository
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	logger.Info("Starting engagement service",
		zap.String("environment", cfg.Environment),
		zap.String("storage", cfg.Storage))

	st, closeStores, err := openStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStores()

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("ping redis: %w", err)
		}
		logger.Info("✅ Connected to Redis", zap.String("addr", cfg.RedisAddr))
	}

	dispatcher := events.NewDispatcher(logger, events.DefaultSinkTimeout)
	if len(cfg.KafkaBrokers) > 0 {
		kafkaSink := events.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaEventsTopic, logger)
		defer kafkaSink.Close()
		dispatcher.Register(kafkaSink)
	}

	v := validation.New()

	var accessCache service.AccessCache
	if rdb != nil {
		accessCache = cache.NewRedisAccessCache(rdb, logger)
	}

	registry := service.NewEngagementRegistry(st.requests, st.engagements, nil, logger)
	access := service.NewAccessService(st.access, accessCache, nil, logger)
	access.SetCacheTTL(cfg.AccessCacheTTL)
	conversations := service.NewConversationService(st.conversations, dispatcher, v, nil, logger)
	coordinator := service.NewCoordinator(registry, access, conversations, dispatcher, v, service.DefaultRetryPolicy, nil, logger)

	broker := delivery.NewBroker(conversations, logger, delivery.WithSnapshotSize(cfg.SnapshotSize))
	defer broker.Close()

	var wg sync.WaitGroup
	defer wg.Wait()

	// фоновые горутины завершаются до wg.Wait и при выходе по ошибке
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if rdb != nil {
		relay := delivery.NewRedisRelay(rdb, broker, cfg.RedisChannelPrefix, logger)
		dispatcher.Register(relay)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := relay.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Redis relay stopped", zap.Error(err))
			}
		}()
	} else {
		dispatcher.Register(broker)
	}

	if cfg.TelegramToken != "" {
		botInstance, err := bot.New(cfg.TelegramToken)
		if err != nil {
			return fmt.Errorf("create telegram bot: %w", err)
		}
		dispatcher.Register(controller.NewNotifier(botInstance, cfg.TelegramAdminChatID, logger))

		botController := controller.NewBotController(botInstance, coordinator, registry, cfg.TelegramAdminChatID, logger)
		if err := botController.RegisterHandlers(ctx); err != nil {
			logger.Warn("Failed to register bot commands", zap.Error(err))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = botController.Start(ctx)
		}()
	}

	scheduler := app.NewScheduler(registry, access, cfg.BillingCron, cfg.GrantExpiryCron, logger)
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}
	defer scheduler.Stop()

	stream := httpapi.NewStreamHandler(conversations, broker, httpapi.DefaultHeartbeat)
	router := httpapi.NewRouter(httpapi.Handlers{
		Requests:      httpapi.NewRequestHandler(coordinator, registry),
		Engagements:   httpapi.NewEngagementHandler(coordinator, registry),
		Access:        httpapi.NewAccessHandler(access),
		Conversations: httpapi.NewConversationHandler(conversations, stream),
	}, logger)

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("Shutting down server...")
	// открытые стримы закрываются вместе с брокером
	broker.Close()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*stores, func(), error) {
	if cfg.Storage == config.StorageMemory {
		logger.Warn("Using in-memory storage, data will be lost on restart")
		store := memory.New()
		return &stores{
			requests:      store.Requests,
			engagements:   store.Engagements,
			access:        store.Access,
			conversations: store.Conversations,
		}, func() {}, nil
	}

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("create db pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping db: %w", err)
	}
	logger.Info("✅ Connected to database")

	if cfg.AutoMigrate {
		if err := migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, nil, err
		}
	}

	b := base.NewRepository(pool, cfg.StoreTimeout)
	return &stores{
		requests:      repository.NewRequestRepository(b),
		engagements:   repository.NewEngagementRepository(b),
		access:        repository.NewAccessRepository(b),
		conversations: repository.NewConversationRepository(b),
	}, pool.Close, nil
}

// migrate применяет миграции и закрывает sql.DB мигратора; пул остаётся открытым
func migrate(ctx context.Context, pool *pgxpool.Pool, logger *zap.Logger) error {
	migrator, err := app.NewMigrator(pool, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	return migrator.Run(ctx)
}
