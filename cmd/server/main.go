package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/iliyamo/childcare-checkin/internal/app"
	"github.com/iliyamo/childcare-checkin/internal/config"
	"github.com/iliyamo/childcare-checkin/internal/handler"
	"github.com/iliyamo/childcare-checkin/internal/logger"
	"github.com/iliyamo/childcare-checkin/internal/middleware"
	"github.com/iliyamo/childcare-checkin/internal/queue"
	"github.com/iliyamo/childcare-checkin/internal/router"
	"github.com/iliyamo/childcare-checkin/internal/service"
	"github.com/iliyamo/childcare-checkin/internal/store"
)

func main() {
	config.LoadDotEnv()
	cfg := config.Load()

	lc := config.LoadLogConfig(cfg.Env)
	lg, err := logger.New(logger.Config{Level: lc.Level, Format: lc.Format, Output: lc.Output})
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb := config.NewRedisClient()
	backend, err := app.OpenBackend(ctx, cfg, rdb, lg)
	if err != nil {
		lg.Fatal("backend", zap.Error(err))
	}
	defer func() { _ = backend.Close() }()

	sc := config.LoadSyncConfig()
	storeCfg := store.DefaultConfig()
	storeCfg.DeviceID = "api"
	storeCfg.DefaultMaxOccupancy = sc.DefaultMaxOccupancy
	storeCfg.SweepEnabled = sc.SweepEnabled
	storeCfg.SelectionTTL = sc.SelectionTTL
	st := store.New(backend.Remote,
		store.WithConfig(storeCfg),
		store.WithPrefs(backend.Prefs),
		store.WithLogger(lg.Named("store")))
	defer func() { _ = st.Close() }()

	var opts []handler.Option
	opts = append(opts, handler.WithLogger(lg.Named("http")))
	if cfg.AMQPURL != "" {
		opts = append(opts, handler.WithAudit(service.NewEmergencyPublisher(cfg.AMQPURL, lg.Named("amqp"))))
		consumer := &queue.Consumer{URL: cfg.AMQPURL, Dir: "logs", Logger: lg.Named("audit")}
		go func() {
			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				lg.Warn("emergency consumer stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.RequestLoggerWithConfig(echomw.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v echomw.RequestLoggerValues) error {
			lg.Info("request",
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency))
			return nil
		},
	}))

	router.RegisterRoutes(e, handler.Ready(backend.Ping))
	router.RegisterAPI(e, handler.New(st, opts...),
		middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, lg.Named("ratelimit")),
		middleware.NewRedisCache(config.LoadCacheConfig(), rdb, lg.Named("cache")),
	)

	addr := ":" + cfg.Port
	go func() {
		lg.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			lg.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Warn("shutdown", zap.Error(err))
	}
}
