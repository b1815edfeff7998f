package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/prismsocial/prism-server/client"
	"github.com/prismsocial/prism-server/internal/config"
	"github.com/prismsocial/prism-server/internal/infrastructure/database"
	"github.com/prismsocial/prism-server/internal/infrastructure/gateway"
	"github.com/prismsocial/prism-server/internal/infrastructure/repository"
	"github.com/prismsocial/prism-server/internal/present/rest"
	"github.com/prismsocial/prism-server/internal/present/rest/middleware"
	"github.com/prismsocial/prism-server/internal/service"
	"github.com/prismsocial/prism-server/internal/usecase"
)

func main() {

	configPath := os.Getenv("PRISM_CONFIG")
	if configPath == "" {
		configPath = "/etc/prism/config.yaml"
	}

	conf, err := config.Load(configPath)
	if err != nil {
		slog.Error("Failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}

	if conf.Server.EnableTrace {
		shutdown, err := setupTracer(conf.Server.TraceEndpoint)
		if err != nil {
			slog.Error("Failed to set up tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer shutdown()
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		slog.Error("Failed to connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	err = database.MigratePostgres(db)
	if err != nil {
		slog.Error("Failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb, err := database.NewRedis(conf.Server.RedisAddr, "", conf.Server.RedisDB)
	if err != nil {
		slog.Error("Failed to connect redis", slog.String("error", err.Error()))
		os.Exit(1)
	}

	mc, err := database.NewMemcached(conf.Server.MemcachedAddr)
	if err != nil {
		slog.Error("Failed to connect memcached", slog.String("error", err.Error()))
		os.Exit(1)
	}

	contentRepo := repository.NewContentRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	historyRepo := repository.NewHistoryRepository(db)

	providerGateway := gateway.NewProviderGateway(client.New(conf.Sync.ProviderTimeout()))

	signalService := service.NewSignalService(rdb)
	syncGuard := service.NewSyncGuardService(rdb)
	filterCache := service.NewFilterCacheService(mc, conf.Feed.FilterCacheTTL())
	trendingCache := service.NewTrendingCacheService(conf.Feed.TrendingCacheTTL())

	reconcileUC := usecase.NewReconcileUsecase(
		contentRepo,
		providerGateway,
		syncGuard,
		signalService,
		conf.Libraries,
		conf.Sync.RunCeiling(),
	)
	viewUC := usecase.NewViewUsecase(historyRepo, contentRepo, filterCache)
	interestUC := usecase.NewInterestUsecase(ledgerRepo, contentRepo)
	feedUC := usecase.NewFeedUsecase(contentRepo, ledgerRepo, viewUC, trendingCache, usecase.FeedOptions{
		ColdStartThreshold: conf.Feed.ColdStartThreshold,
		DecayFactor:        conf.Feed.DecayFactor,
		DecayPeriod:        conf.Feed.DecayPeriod(),
	})

	scheduler := service.NewScheduler(reconcileUC, viewUC, interestUC, conf.Sync, conf.Feed)
	scheduler.Start(context.Background())
	defer scheduler.Stop()

	e := echo.New()
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("prism-server"))
	}

	identity := middleware.NewIdentityMiddleware()
	e.Use(identity.IdentifyRequester)

	handler := rest.NewHandler(reconcileUC, viewUC, interestUC, feedUC, signalService)
	handler.RegisterRoutes(e)

	go func() {
		if err := e.Start(conf.Server.Listen); err != nil {
			slog.Info("Server stopped", slog.String("reason", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		slog.Error("Failed to shut down cleanly", slog.String("error", err.Error()))
	}
}

func setupTracer(endpoint string) (func(), error) {
	exporter, err := otlptracehttp.New(
		context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
	)
	otel.SetTracerProvider(provider)

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			slog.Error("Failed to shut down tracer", slog.String("error", err.Error()))
		}
	}, nil
}
