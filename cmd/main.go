package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"escrow-service/internal/auth"
	"escrow-service/internal/config"
	"escrow-service/internal/escrow"
	"escrow-service/internal/httpserver"
	"escrow-service/internal/mqhandler"
	"escrow-service/internal/notify"
	"escrow-service/internal/repository"
	"escrow-service/internal/workflow"
	"escrow-service/pkg/db"
	"escrow-service/pkg/logger"
	"escrow-service/pkg/mq"
	"escrow-service/pkg/outbox"
	pkgredis "escrow-service/pkg/redis"
	"escrow-service/pkg/util"

	"go.uber.org/zap"
)

func main() {
	log := logger.NewLogger()
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	pool, err := db.NewConnection(cfg.DB, log)
	if err != nil {
		log.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()

	publisher, err := mq.NewPublisher(cfg.MQ.URL)
	if err != nil {
		log.Fatal("Failed to connect to MQ", zap.Error(err))
	}
	defer publisher.Close()

	rdb := pkgredis.NewRedisClient(cfg.Redis)
	defer rdb.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Repositories.
	store := repository.NewPGStore(pool, log)
	outboxRepo := outbox.NewRepository(pool)
	notificationStore := repository.NewNotificationStore(pool, outboxRepo, log)

	// Notification pipeline: services enqueue, the dispatcher persists rows
	// plus outbox events, the outbox dispatcher pushes them to the broker.
	dispatcher := notify.NewDispatcher(notificationStore, cfg.Escrow.NotificationBuffer, log)
	go dispatcher.Run(ctx)

	outboxDispatcher := outbox.NewDispatcher(outboxRepo, publisher, log)
	go outboxDispatcher.Start(ctx)

	// Services.
	windows := escrow.Windows{
		Emergency:   time.Duration(cfg.Escrow.EmergencyWindowHours) * time.Hour,
		Abandonment: time.Duration(cfg.Escrow.AbandonmentWindowHours) * time.Hour,
	}
	escrowService := escrow.NewService(store, dispatcher, windows, log)
	workflowService := workflow.NewService(store, dispatcher, rdb, log)

	verifier := auth.DisabledVerifier()
	if cfg.Auth.DevVerifier {
		log.Warn("Wallet signature verification is in dev mode, any signature is accepted")
		verifier = auth.InsecureDevVerifier()
	}
	authService := auth.NewService(store, verifier, cfg.Auth.JWT.Secret,
		time.Duration(cfg.Auth.TokenTTLHours)*time.Hour, log)

	// Delivery consumer for notification.created events.
	deduper := util.NewDeduper(rdb, 24*time.Hour, log)
	retries := util.NewRetryCounter(rdb, time.Hour)
	deliveryHandler := mqhandler.NewNotificationCreatedHandler(notificationStore, deduper, retries, log)

	consumer, err := mq.NewConsumer(cfg.MQ.URL, "notification-delivery", "notification.created", log)
	if err != nil {
		log.Fatal("Failed to create consumer", zap.Error(err))
	}
	consumer.SetHandler(deliveryHandler.Handle)
	go func() {
		if err := consumer.StartConsuming(); err != nil {
			log.Error("Consumer stopped", zap.Error(err))
		}
	}()

	router := httpserver.NewRouter(httpserver.Deps{
		Logger:        log,
		DB:            pool,
		Publisher:     publisher,
		Auth:          authService,
		AuthHandler:   httpserver.NewAuthHandler(authService),
		Escrow:        httpserver.NewEscrowHandler(escrowService, workflowService),
		Workflow:      httpserver.NewWorkflowHandler(workflowService),
		Admin:         httpserver.NewAdminHandler(escrowService),
		Notifications: httpserver.NewNotificationHandler(notificationStore),
	})

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		log.Info("Escrow service listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server shutdown failed", zap.Error(err))
	}

	consumer.Stop()
	cancel()
	dispatcher.Wait()
	log.Info("Shutdown complete")
}
