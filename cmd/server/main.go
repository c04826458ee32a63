package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"letsee/internal/cache"
	"letsee/internal/config"
	"letsee/internal/judge"
	"letsee/internal/memory"
	"letsee/internal/moderation"
	"letsee/internal/registry"
	"letsee/internal/repository"
	"letsee/internal/service"
	"letsee/internal/timer"
	"letsee/internal/transport/rest"
	"letsee/internal/transport/ws"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx := context.Background()
	cfg := config.Load()

	aiConfig := config.DefaultAIConfig()
	if aiConfig.IsEnabled() {
		logger.Info("scoring service configured",
			"topics", aiConfig.Models.Topics,
			"score", aiConfig.Models.Score,
			"review", aiConfig.Models.Review)
	} else {
		logger.Warn("GEMINI_API_KEY not set, using heuristic judging")
	}

	// MongoDB connection (optional: sessions are kept in memory when absent)
	var mongoClient *mongo.Client
	if cfg.MongoURI != "" {
		var err error
		mongoClient, err = mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			logger.Error("mongodb connect failed", "error", err)
			os.Exit(1)
		}
		defer mongoClient.Disconnect(ctx)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := mongoClient.Ping(pingCtx, nil); err != nil {
			cancel()
			logger.Error("mongodb ping failed", "error", err)
			os.Exit(1)
		}
		cancel()
		logger.Info("connected to mongodb")
	} else {
		logger.Warn("MONGO_URI not set, finished sessions will not be archived")
	}

	// Redis connection (optional: cache and argument memory degrade to off)
	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		addr := strings.TrimPrefix(cfg.RedisAddr, "redis://")
		rdb = redis.NewClient(&redis.Options{Addr: addr})
		defer rdb.Close()

		if _, err := rdb.Ping(ctx).Result(); err != nil {
			logger.Error("redis ping failed", "error", err)
			os.Exit(1)
		}
		logger.Info("connected to redis")
	} else {
		logger.Warn("REDIS_ADDR not set, snapshot cache and argument memory disabled")
	}

	archiveRepo := repository.NewArchiveRepo(mongoClient, cfg.MongoDB)
	snapshotCache := cache.NewSnapshotCache(rdb)
	memoryStore := memory.NewStore(rdb)

	evaluator := service.NewEvaluatorService(aiConfig, logger)
	pipeline := judge.NewPipeline(evaluator, evaluator, memoryStore, archiveRepo, snapshotCache, logger)

	scheduler := timer.New(time.Second)
	defer scheduler.Shutdown()

	gate := moderation.NewGate(cfg.BlockedPhrases)
	wsHub := ws.NewHub(logger)

	reg := registry.New(cfg.SessionLimits(), registry.Deps{
		Scheduler:   scheduler,
		Gate:        gate,
		Broadcaster: wsHub,
		Judge:       pipeline,
		Logger:      logger,
	})

	reaperCtx, stopReaper := context.WithCancel(ctx)
	defer stopReaper()
	reg.StartReaper(reaperCtx, cfg.SessionRetention, time.Minute)

	wsHandler := ws.NewHandler(wsHub, reg, cfg.CORSOrigins, cfg.MaxArgumentLength, logger)

	router := rest.NewRouter(&rest.Container{
		Config:    cfg,
		Registry:  reg,
		Evaluator: evaluator,
		Cache:     snapshotCache,
		Archive:   archiveRepo,
		WSHandler: wsHandler,
	})

	srv := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: router,
	}

	go func() {
		logger.Info("server starting", "port", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("listen and serve", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited")
}
