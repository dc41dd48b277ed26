package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	openai "github.com/sashabaranov/go-openai"

	"github.com/hackgods/dental-appointment-assistant/internal/api"
	"github.com/hackgods/dental-appointment-assistant/internal/appointment"
	"github.com/hackgods/dental-appointment-assistant/internal/assistant"
	"github.com/hackgods/dental-appointment-assistant/internal/config"
	"github.com/hackgods/dental-appointment-assistant/internal/db"
	"github.com/hackgods/dental-appointment-assistant/internal/observability/metrics"
	redisclient "github.com/hackgods/dental-appointment-assistant/internal/redis"
	"github.com/hackgods/dental-appointment-assistant/internal/tools"
	"github.com/hackgods/dental-appointment-assistant/pkg/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Default().Error("config load error", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel)
	logger.Info("api-server starting up", "env", cfg.Env, "http_port", cfg.HTTPPort, "version", cfg.Version)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN, cfg.PostgresMaxConns)
	cancelPg()
	if err != nil {
		logger.Error("postgres connection error", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()
	logger.Info("connected to Postgres")

	// Connect Redis
	rdb, err := redisclient.NewRedisClient(rootCtx, redisclient.ClientOptions{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUsername,
		Password: cfg.RedisPassword,
	})
	if err != nil {
		logger.Error("redis connection error", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			logger.Warn("error closing redis", "error", err)
		}
	}()
	logger.Info("connected to Redis")

	schedulingMetrics := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)

	repo := appointment.NewPgRepository(pgPool)
	locker := redisclient.NewRedisSlotLocker(rdb, cfg.LockTTL, logger, schedulingMetrics)
	svc := appointment.NewService(repo, locker, logger, schedulingMetrics)

	dispatcher := tools.NewDispatcher(svc, cfg.Location(), logger, schedulingMetrics)

	var chat api.ChatResponder
	if cfg.OpenAIAPIKey != "" {
		openaiCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
		if cfg.OpenAIBaseURL != "" {
			openaiCfg.BaseURL = cfg.OpenAIBaseURL
		}
		chat = assistant.New(openai.NewClientWithConfig(openaiCfg), dispatcher, rdb, assistant.Options{
			Model:         cfg.OpenAIModel,
			MaxToolRounds: cfg.ChatMaxToolRounds,
			Timeout:       cfg.ChatTimeout,
			HistoryTTL:    cfg.ChatHistoryTTL,
			Location:      cfg.Location(),
		}, logger)
		logger.Info("chat assistant enabled", "model", cfg.OpenAIModel)
	} else {
		logger.Warn("OPENAI_API_KEY not set, /chat is disabled")
	}

	router := api.NewRouter(api.RouterConfig{
		Scheduler:     svc,
		Chat:          chat,
		Postgres:      pgPool,
		Redis:         rdb,
		Env:           cfg.Env,
		Version:       cfg.Version,
		Logger:        logger,
		Metrics:       schedulingMetrics,
		ChatTimeout:   cfg.ChatTimeout,
		ChatRateLimit: cfg.ChatRateLimit,
		ChatRateBurst: cfg.ChatRateBurst,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case <-rootCtx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Error("http server error", "error", err)
		}
	}

	logger.Info("shutting down api-server", "timeout", cfg.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
