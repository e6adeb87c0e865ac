package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/winfantasy/draft-proxy-server/internal/v1/acceptor"
	"github.com/winfantasy/draft-proxy-server/internal/v1/config"
	"github.com/winfantasy/draft-proxy-server/internal/v1/logging"
	"github.com/winfantasy/draft-proxy-server/internal/v1/middleware"
	"github.com/winfantasy/draft-proxy-server/internal/v1/ratelimit"
	"github.com/winfantasy/draft-proxy-server/internal/v1/registry"
	"github.com/winfantasy/draft-proxy-server/internal/v1/status"
	"github.com/winfantasy/draft-proxy-server/internal/v1/tracing"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load() // no .env file is normal outside local development

	cfg, err := config.ValidateEnv()
	if err != nil {
		slog.Error("startup failed", "error", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.GoEnv == "development"); err != nil {
		slog.Error("failed to initialize logger", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	if cfg.OtelCollectorAddr != "" {
		tp, err := tracing.InitTracer(ctx, "draft-proxy-server", cfg.OtelCollectorAddr)
		if err != nil {
			logging.Error(ctx, "failed to initialize tracer", zap.Error(err))
			os.Exit(1)
		}
		defer func() { _ = tp.Shutdown(ctx) }()
	}

	var redisClient *redis.Client
	if cfg.RedisEnabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       0,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := redisClient.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			logging.Error(ctx, "failed to connect to redis", zap.Error(err))
			os.Exit(1)
		}
		defer redisClient.Close()
	}

	rl, err := ratelimit.NewRateLimiter(cfg, redisClient)
	if err != nil {
		logging.Error(ctx, "failed to initialize rate limiter", zap.Error(err))
		os.Exit(1)
	}

	reg := registry.New(cfg.HeartbeatInterval, cfg.ConnectionTimeout)
	acc := acceptor.New(reg, rl)
	surface := status.New(reg)

	if cfg.GoEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// The WebSocket route performs no origin check by design (spec.md §1) and
	// carries no HTTP middleware stack of its own.
	router.GET(acceptor.Path, acc.HandleConnect)

	diagnostics := router.Group("/")
	diagnostics.Use(gin.Recovery())
	diagnostics.Use(middleware.CorrelationID())
	diagnostics.Use(otelgin.Middleware("draft-proxy-server"))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	diagnostics.Use(cors.New(corsConfig))

	diagnostics.GET("/metrics", gin.WrapH(promhttp.Handler()))
	surface.RegisterRoutes(diagnostics)

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logging.Info(ctx, "draft proxy starting", zap.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Fatal(ctx, "server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logging.Info(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, cfg.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	reg.Shutdown(1001, "Server shutdown")

	if shutdownErr != nil {
		logging.Error(ctx, "server forced to shutdown", zap.Error(shutdownErr))
		os.Exit(1)
	}

	logging.Info(ctx, "shutdown complete")
}
