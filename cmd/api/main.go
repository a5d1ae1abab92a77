package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"dama-exam/internal/config"
	"dama-exam/internal/db"
	"dama-exam/internal/export"
	apihttp "dama-exam/internal/http"
	"dama-exam/internal/llm"
	"dama-exam/internal/repository"
	"dama-exam/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx := context.Background()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Username: cfg.RedisUser,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
	if err := redisClient.Ping(ctxPing).Err(); err != nil {
		cancel()
		logger.Fatal("redis ping failed", zap.Error(err))
	}
	cancel()

	directoryRepo := repository.NewPgDirectoryRepository(pool)
	resultRepo := repository.NewPgResultRepository(pool)
	settingsRepo := repository.NewPgSettingsRepository(pool)

	sessionStore := service.NewRedisSessionStore(redisClient, cfg.SessionTTL, logger)
	settingsCache := service.NewSettingsCache(redisClient, settingsRepo, logger)

	judge := llm.NewOpenAIJudge(cfg.ScoringTimeout, logger)
	scoringSvc := service.NewScoringService(judge, settingsCache, sessionStore, cfg.ScoringRetries, logger)
	reportSvc := service.NewReportService(sessionStore, resultRepo, settingsCache, logger)

	var exports service.Exporter = export.NewDisabledStorage("")
	if cfg.MinioEndpoint != "" {
		storage, err := export.NewMinioStorage(ctx, cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioSecure, logger)
		if err != nil {
			logger.Warn("minio init failed, reports will be delivered directly", zap.Error(err))
		} else {
			exports = storage
		}
	}

	examSvc := service.NewExamService(sessionStore, directoryRepo, resultRepo, scoringSvc, reportSvc, exports, logger)

	authSvc := service.NewAuthService(
		cfg.AdminPasswordHash,
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		service.NewRedisRefreshTokenStore(redisClient),
	)
	if cfg.JWTSecret == "" || cfg.AdminPasswordHash == "" {
		logger.Warn("admin auth not fully configured")
	}

	examHandler := apihttp.NewExamHandler(logger, examSvc)
	adminHandler := apihttp.NewAdminHandler(logger, authSvc, settingsRepo, settingsCache)
	router := apihttp.NewRouter(logger, authSvc, examHandler, adminHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatal("server error", zap.Error(err))
	}
}
