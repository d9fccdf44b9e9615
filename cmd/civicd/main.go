package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/civicworks/civicd/internal/config"
	"github.com/civicworks/civicd/internal/infra/database"
	"github.com/civicworks/civicd/internal/infra/gateway"
	"github.com/civicworks/civicd/internal/infra/repository"
	"github.com/civicworks/civicd/internal/present/rest"
	"github.com/civicworks/civicd/internal/present/rest/middleware"
	"github.com/civicworks/civicd/internal/service"
	"github.com/civicworks/civicd/internal/usecase"
)

func main() {
	configPath := os.Getenv("CIVICD_CONFIG")
	if configPath == "" {
		configPath = "/etc/civicd/config.yaml"
	}

	conf, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config",
			slog.String("error", err.Error()),
			slog.String("path", configPath),
		)
		os.Exit(1)
	}

	if conf.Server.EnableTrace {
		cleanup, err := setupTraceProvider(conf.Server.TraceEndpoint)
		if err != nil {
			slog.Error("failed to set up tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer cleanup()
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		slog.Error("failed to connect to postgres", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := database.MigratePostgres(db); err != nil {
		slog.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := database.NewRedis(conf.Server.RedisAddr, conf.Server.RedisDB)

	userRepo := repository.NewUserRepository(db)
	issueRepo := repository.NewIssueRepository(db)

	authService := service.NewAuthService(
		conf.Auth.Secret,
		time.Duration(conf.Auth.TokenTTLHours)*time.Hour,
		userRepo,
	)
	signalService := service.NewSignalService(rdb)

	var categorizer usecase.Categorizer
	if conf.Categorizer.Endpoint != "" {
		mc := database.NewMemcached(conf.Server.MemcachedAddr)
		categorizer = gateway.NewCategorizerGateway(conf.Categorizer.Endpoint, mc)
	}

	var mailer usecase.Mailer
	if conf.Mail.Enabled {
		mailer = gateway.NewSMTPMailer(conf.Mail.Addr, conf.Mail.From, conf.Mail.Username, conf.Mail.Password)
	}

	locator := usecase.NewLocator(userRepo)
	issueUsecase := usecase.NewIssueUsecase(issueRepo, userRepo, locator, categorizer, mailer, signalService)
	accountUsecase := usecase.NewAccountUsecase(userRepo, authService)

	authMiddleware := middleware.NewAuthMiddleware(authService)
	handler := rest.NewHandler(accountUsecase, issueUsecase, signalService)

	e := echo.New()
	e.HideBanner = true
	e.Use(echomiddleware.Logger())
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("civicd"))
	}

	handler.RegisterRoutes(e, authMiddleware)

	e.Logger.Fatal(e.Start(conf.Server.Listen))
}

func setupTraceProvider(endpoint string) (func(), error) {
	exporter, err := otlptracehttp.New(
		context.Background(),
		otlptracehttp.WithEndpoint(endpoint),
		otlptracehttp.WithInsecure(),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(resource.NewSchemaless(
			attribute.String("service.name", "civicd"),
		)),
	)
	otel.SetTracerProvider(tracerProvider)

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracerProvider.Shutdown(ctx); err != nil {
			slog.Error("failed to shut down tracer provider", slog.String("error", err.Error()))
		}
	}
	return cleanup, nil
}
