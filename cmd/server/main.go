package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"floraledger/internal/config"
	"floraledger/internal/extractor"
	"floraledger/internal/handler"
	"floraledger/internal/infrastructure/cache"
	"floraledger/internal/infrastructure/database"
	"floraledger/internal/infrastructure/lock"
	"floraledger/internal/infrastructure/mq"
	"floraledger/internal/job"
	"floraledger/internal/notify"
	"floraledger/internal/service"
	"floraledger/pkg/idgen"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", configPath).Msg("load config")
	}
	setupLogger(cfg)

	if err := idgen.Init(1); err != nil {
		log.Fatal().Err(err).Msg("init id generator")
	}

	db, err := database.InitMySQL(&cfg.MySQL, !cfg.IsProduction())
	if err != nil {
		log.Fatal().Err(err).Msg("init mysql")
	}

	redisClient, err := cache.InitRedis(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("init redis")
	}
	defer redisClient.Close()

	notifier, err := notify.NewTelegramNotifier(cfg.Telegram.Token)
	if err != nil {
		log.Fatal().Err(err).Msg("init telegram")
	}

	inventory := service.NewInventoryService(redisClient, cfg)
	txns := service.NewTransactionService(db, inventory, lock.NewRedisLocker(redisClient, cfg.LockTTL()), cfg)
	audit := service.NewAuditService(db)
	bot := service.NewBotService(txns, inventory, audit, extractor.NewOpenAIExtractor(&cfg.OpenAI), notifier, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Kafka.Enabled {
		producer, err := mq.InitKafka(&cfg.Kafka)
		if err != nil {
			log.Fatal().Err(err).Msg("init kafka")
		}
		defer producer.Close()

		outboxSender := job.NewOutboxSender(db, producer, cfg)
		go outboxSender.Start(ctx)
	}

	closureJob := job.NewClosureReportJob(txns, notifier, cfg)
	if closureJob.Enabled() {
		go closureJob.Start(ctx)
	}

	webhook := handler.NewWebhookHandler(bot, lock.NewUpdateGuard(redisClient, cfg.UpdateDedupeTTL()), notifier, cfg.App.PublicURL, cfg.Telegram.WebhookPath)
	router := handler.SetupRouter(handler.NewHandler(txns, inventory), webhook, cfg)

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.App.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Int("port", cfg.App.Port).Str("env", cfg.App.Env).Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")

	// stop background jobs before draining requests
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server shutdown")
	}

	log.Info().Msg("server stopped")
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339
	if cfg.IsProduction() {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		return
	}
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
}
