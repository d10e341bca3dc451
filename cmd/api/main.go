package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"nimo/identity-platform/verification-engine/internal/api"
	"nimo/identity-platform/verification-engine/internal/config"
	"nimo/identity-platform/verification-engine/internal/engine"
	"nimo/identity-platform/verification-engine/internal/ledger"
	"nimo/identity-platform/verification-engine/internal/reasoning"
	"nimo/identity-platform/verification-engine/internal/rewards"
)

func main() {
	_ = godotenv.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.LoadConfig(os.Getenv("CONFIG_PATH"))
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := db.AutoMigrate(&ledger.Transaction{}); err != nil {
		logger.Fatal("Failed to migrate schema", zap.Error(err))
	}

	// ---------------- LEDGER ----------------
	stellarClient, err := ledger.NewStellarClient(&cfg.Stellar)
	if err != nil {
		logger.Fatal("Failed to create stellar client", zap.Error(err))
	}

	var keyStore ledger.KeyStore
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		keyStore = ledger.NewRedisKeyStore(rdb, 0)
		logger.Info("Using redis processed-key store", zap.String("addr", cfg.Redis.Addr))
	} else {
		keyStore = ledger.NewMemoryKeyStore()
	}

	repo := ledger.NewRepository(db)
	bridge := ledger.NewBridge(stellarClient, repo, keyStore, logger, cfg.Ledger)

	// ---------------- ENGINE ----------------
	reasoningClient := reasoning.NewHTTPClient(cfg.Reasoning)
	primary := engine.NewMettaBackend(reasoningClient, cfg.Engine.MinVerifyConfidence)

	fallbackCfg := cfg.Engine.Fallback
	if fallbackCfg.MinVerifyScore == 0 {
		fallbackCfg.MinVerifyScore = cfg.Engine.MinVerifyConfidence
	}
	fallback := engine.NewFallbackBackend(fallbackCfg)
	selector := engine.NewSelector(primary, fallback, logger)

	calculator := rewards.NewCalculator(cfg.Rewards)
	service := engine.NewService(selector, engine.NewFraudDetector(), calculator, bridge, logger, engine.ServiceConfig{
		BackendTimeout: cfg.Engine.BackendTimeout,
	})
	orchestrator := engine.NewOrchestrator(service, logger, cfg.Engine.Batch)

	// ---------------- HTTP ----------------
	r := gin.Default()

	handler := api.NewHandler(service, orchestrator, bridge, logger)
	handler.RegisterRoutes(r.Group("/api/v1"))

	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "API alive!"})
	})

	srv := &http.Server{
		Addr:         cfg.Server.GetServerAddr(),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("Server running", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server error", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutdown signal received")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Forced shutdown", zap.Error(err))
	}
	logger.Info("Server stopped")
}
