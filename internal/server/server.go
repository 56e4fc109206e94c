package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/union-api/internal/handler"
	"github.com/noah-isme/union-api/internal/middleware"
	"github.com/noah-isme/union-api/internal/models"
	"github.com/noah-isme/union-api/internal/service"
	"github.com/noah-isme/union-api/pkg/config"
	"github.com/noah-isme/union-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/union-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/union-api/pkg/middleware/requestid"
)

// Authenticator resolves bearer credentials into identities.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.Identity, error)
}

// Dependencies bundles what the router needs to mount every route.
type Dependencies struct {
	Config        *config.Config
	Logger        *zap.Logger
	Metrics       *service.MetricsService
	Authenticator Authenticator
	Auth          *handler.AuthHandler
	Elections     *handler.ElectionHandler
	Health        *handler.HealthHandler
}

// NewRouter builds the gin engine with the middleware chain and all routes.
func NewRouter(deps Dependencies) *gin.Engine {
	cfg := deps.Config
	logr := deps.Logger
	if logr == nil {
		logr = zap.NewNop()
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(deps.Metrics))
	r.Use(middleware.AuditContext())

	r.GET("/", deps.Health.Root)
	r.GET("/health", deps.Health.Live)
	r.GET("/ready", deps.Health.Ready)
	r.GET("/metrics", deps.Health.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	api.GET("/health", deps.Health.Detailed)

	authenticated := middleware.Authenticate(deps.Authenticator)
	optional := middleware.OptionalAuthenticate(deps.Authenticator)
	adminOnly := middleware.RequireAdmin()

	auth := api.Group("/auth")
	auth.POST("/login", deps.Auth.Login)
	auth.GET("/me", authenticated, deps.Auth.Me)

	elections := api.Group("/elections")
	elections.GET("", optional, deps.Elections.List)
	elections.GET("/:id", optional, deps.Elections.Get)
	elections.GET("/:id/results", optional, deps.Elections.Results)
	elections.POST("/:id/vote", authenticated, deps.Elections.Vote)

	admin := elections.Group("", authenticated, adminOnly)
	admin.POST("", deps.Elections.Create)
	admin.POST("/:id/candidates", deps.Elections.AddCandidate)
	admin.PATCH("/:id/status", deps.Elections.UpdateStatus)
	admin.POST("/:id/announce", deps.Elections.Announce)
	admin.DELETE("/:id", deps.Elections.Delete)
	admin.GET("/:id/results/export", deps.Elections.Export)

	return r
}

// Server wraps an http.Server with configured routes.
type Server struct {
	inner *http.Server
}

// New wraps handler in an http.Server listening on the configured port.
func New(cfg *config.Config, h http.Handler) *Server {
	return &Server{inner: &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}}
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.inner.Addr
}

// Start begins serving HTTP traffic. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	if err := s.inner.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
