package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	_ "github.com/noah-isme/union-api/api/swagger"
	"github.com/noah-isme/union-api/internal/handler"
	"github.com/noah-isme/union-api/internal/repository"
	"github.com/noah-isme/union-api/internal/server"
	"github.com/noah-isme/union-api/internal/service"
	"github.com/noah-isme/union-api/pkg/cache"
	"github.com/noah-isme/union-api/pkg/config"
	"github.com/noah-isme/union-api/pkg/database"
	"github.com/noah-isme/union-api/pkg/logger"
	"github.com/noah-isme/union-api/pkg/response"
)

// @title Student Union API
// @version 1.0.0
// @description Elections, ballots and results for the student union
// @BasePath /
// @schemes http
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}
	response.ExposeDetails(cfg.ExposeErrorDetails)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("redis unavailable, election cache disabled", zap.Error(err))
		redisClient = nil
	}
	if redisClient != nil {
		defer redisClient.Close()
	}
	cacheRepo := repository.NewCacheRepository(redisClient, "union")

	validate := validator.New()
	metrics := service.NewMetricsService()
	cacheSvc := service.NewCacheService(cacheRepo, metrics, cfg.Elections.CacheTTL, logr, cfg.Elections.CacheEnabled && redisClient != nil)

	audit := service.NewAuditService(repository.NewAuditRepository(db), metrics, logr, service.AuditConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		Retries:    cfg.Audit.Retries,
	})
	audit.Start(context.Background())

	users := repository.NewUserRepository(db)
	if cfg.Bootstrap.AdminEmail != "" {
		created, err := service.NewUserService(users, validate, logr).EnsureAdmin(ctx, service.BootstrapAdminRequest{
			Email:    cfg.Bootstrap.AdminEmail,
			FullName: cfg.Bootstrap.AdminName,
			Password: cfg.Bootstrap.AdminPassword,
		})
		if err != nil {
			logr.Fatal("failed to bootstrap admin", zap.Error(err))
		}
		if created {
			logr.Info("bootstrap admin created", zap.String("email", cfg.Bootstrap.AdminEmail))
		}
	}

	authSvc := service.NewAuthService(users, audit, validate, logr, service.AuthConfig{
		AccessTokenSecret:     cfg.JWT.Secret,
		AccessTokenExpiry:     cfg.JWT.Expiration,
		Issuer:                cfg.JWT.Issuer,
		AllowLegacyTokens:     cfg.Auth.AllowLegacyTokens,
		TrustUnresolvedTokens: cfg.Auth.TrustUnresolvedTokens,
	})
	electionSvc := service.NewElectionService(repository.NewElectionRepository(db), cacheSvc, audit, metrics, validate, logr, service.ElectionServiceConfig{
		DefaultEligibleVoters: cfg.Elections.DefaultEligibleVoters,
		CacheTTL:              cfg.Elections.CacheTTL,
	})
	resultSvc := service.NewResultService(electionSvc, audit, logr)

	health := handler.NewHealthHandler(db, nil, metrics)
	if redisClient != nil {
		health = handler.NewHealthHandler(db, cacheRepo, metrics)
	}
	health.WithAuditStats(audit)

	router := server.NewRouter(server.Dependencies{
		Config:        cfg,
		Logger:        logr,
		Metrics:       metrics,
		Authenticator: authSvc,
		Auth:          handler.NewAuthHandler(authSvc),
		Elections:     handler.NewElectionHandler(electionSvc, resultSvc),
		Health:        health,
	})

	srv := server.New(cfg, router)
	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr()), zap.String("env", cfg.Env))
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		logr.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logr.Error("server failed", zap.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
	audit.Stop()
	logr.Info("server stopped")
}
