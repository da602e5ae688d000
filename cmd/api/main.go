package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	httptransport "github.com/librosfab/support-service/internal/api/http"
	"github.com/librosfab/support-service/internal/api/http/handlers"
	"github.com/librosfab/support-service/internal/auth"
	"github.com/librosfab/support-service/internal/config"
	"github.com/librosfab/support-service/internal/events"
	"github.com/librosfab/support-service/internal/observability"
	"github.com/librosfab/support-service/internal/persistence"
	"github.com/librosfab/support-service/internal/service"
	"github.com/librosfab/support-service/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logger, observability.WithService(cfg.App.Name))
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logger.Sync() //nolint:errcheck

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := persistence.OpenStore(ctx, *cfg, logger)
	if err != nil {
		logger.Fatal("failed to open store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer store.Close()

	redis := persistence.NewRedis(ctx, cfg.Redis, logger)
	defer redis.Close()

	dispatcher := events.NewInMemoryDispatcher(logger)
	notifications, err := worker.StartNotificationWorker(dispatcher, cfg.AMQP, logger)
	if err != nil {
		logger.Fatal("failed to connect amqp", zap.Error(err))
	}
	defer notifications.Stop()

	tokens := auth.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL())
	authService := service.NewAuthService(service.AuthDependencies{
		UserRepo:   store.Users,
		Tokens:     tokens,
		Sessions:   redis.Sessions(),
		BcryptCost: cfg.Auth.BcryptCost,
	})
	ticketService := service.NewTicketService(service.TicketDependencies{
		TicketRepo: store.Tickets,
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	threadService := service.NewThreadService(service.ThreadDependencies{
		ThreadRepo: store.Threads,
		Cache:      redis.ThreadCache(cfg.Chat),
		Dispatcher: dispatcher,
		Logger:     logger,
	})
	gateway := service.NewTicketGateway(ticketService, threadService)

	metrics := observability.NewMetrics()
	app := httptransport.NewApp(cfg.App.Name, httptransport.ServerDeps{
		Logger:         logger,
		Metrics:        metrics,
		RequestTimeout: cfg.App.RequestTimeout(),
	}, httptransport.RouteConfig{
		Health:             handlers.NewHealthHandler(cfg.App.Name, cfg.App.Version, store, redis),
		Auth:               handlers.NewAuthHandler(authService, cfg.Auth.SessionCookie, cfg.App.Env == "production"),
		Tickets:            handlers.NewTicketsHandler(gateway, cfg.Chat.PollInterval),
		AuthMiddleware:     auth.NewMiddleware(tokens, authService.SessionStore(), store.Users, cfg.Auth.SessionCookie, logger),
		PollRequestsPerMin: cfg.Chat.PollRequestsPerMin,
	})

	stats := worker.NewStatsReporter(ticketService, metrics, logger)
	if err := stats.Start(cfg.Stats.Schedule); err != nil {
		logger.Fatal("invalid stats schedule", zap.String("schedule", cfg.Stats.Schedule), zap.Error(err))
	}
	defer stats.Stop()

	go func() {
		if err := app.Listen(cfg.App.Addr()); err != nil {
			logger.Fatal("fiber listen", zap.Error(err))
		}
	}()

	waitForShutdown(logger)

	if err := app.Shutdown(); err != nil {
		logger.Warn("fiber shutdown", zap.Error(err))
	}
}

func waitForShutdown(logger *zap.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("shutting down", zap.String("signal", sig.String()))
}
