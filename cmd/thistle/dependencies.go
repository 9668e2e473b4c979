package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Ramsey-B/thistle/config"
	"github.com/Ramsey-B/thistle/pkg/audit"
	"github.com/Ramsey-B/thistle/pkg/kafka"
	"github.com/Ramsey-B/thistle/pkg/routes"
	"github.com/Ramsey-B/thistle/pkg/routes/health"
	"github.com/Ramsey-B/thistle/pkg/tracing"
	"github.com/Ramsey-B/thistle/pkg/workspace"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

type tracingDependency struct {
	cfg      *config.Config
	provider *sdktrace.TracerProvider
}

func (d *tracingDependency) GetName() string     { return "tracing" }
func (d *tracingDependency) DependsOn() []string { return nil }

func (d *tracingDependency) Start(ctx context.Context) error {
	provider, err := tracing.NewProvider(ctx, d.cfg.Tracing())
	if err != nil {
		return err
	}
	d.provider = provider
	return nil
}

func (d *tracingDependency) Stop(ctx context.Context) error {
	return d.provider.Shutdown(ctx)
}

type kafkaDependency struct {
	cfg      *config.Config
	logger   *zap.Logger
	producer *kafka.Producer
}

func (d *kafkaDependency) GetName() string     { return "kafka" }
func (d *kafkaDependency) DependsOn() []string { return nil }

func (d *kafkaDependency) Start(ctx context.Context) error {
	if err := kafka.Ping(ctx, d.cfg.KafkaBrokers); err != nil {
		return err
	}
	d.producer = kafka.NewProducer(d.cfg.Producer(), d.logger)
	return nil
}

func (d *kafkaDependency) Stop(ctx context.Context) error {
	return d.producer.Close()
}

type workspaceDependency struct {
	cfg    *config.Config
	logger *zap.Logger
	kafka  *kafkaDependency
	ws     *workspace.Workspace
}

func (d *workspaceDependency) GetName() string { return "workspace" }

func (d *workspaceDependency) DependsOn() []string {
	if d.kafka != nil {
		return []string{"kafka"}
	}
	return nil
}

func (d *workspaceDependency) Start(ctx context.Context) error {
	sinks := audit.MultiSink{audit.NewLogSink(d.logger)}
	if d.kafka != nil {
		sinks = append(sinks, audit.NewKafkaSink(d.kafka.producer))
	}

	ws, err := workspace.Open(ctx, d.cfg.Database(), d.logger, workspace.WithForwardSink(sinks))
	if err != nil {
		return err
	}
	d.ws = ws
	return nil
}

func (d *workspaceDependency) Stop(ctx context.Context) error {
	return d.ws.Close()
}

type serverDependency struct {
	cfg       *config.Config
	logger    *zap.Logger
	workspace *workspaceDependency
	server    *http.Server
	checker   *health.Checker
	errs      chan error
}

func (d *serverDependency) GetName() string     { return "http" }
func (d *serverDependency) DependsOn() []string { return []string{"tracing", "workspace"} }

func (d *serverDependency) Start(ctx context.Context) error {
	ws := d.workspace.ws
	services := routes.NewServices(ws)
	services.Indexer.WithBatchSize(d.cfg.PresenceBatchSize)

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORSWithConfig(echomiddleware.CORSConfig{
		AllowOrigins: d.cfg.AllowOrigins,
		AllowMethods: d.cfg.AllowMethods,
	}))
	e.Use(otelecho.Middleware(d.cfg.AppName))

	d.checker = health.NewChecker(ws.DB(), d.cfg.Version)
	routes.Register(e, d.logger, services, d.checker)

	d.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", d.cfg.Port),
		Handler:           e,
		ReadTimeout:       time.Duration(d.cfg.HttpServerReadTimeoutSeconds) * time.Second,
		WriteTimeout:      time.Duration(d.cfg.HttpServerWriteTimeoutSeconds) * time.Second,
		IdleTimeout:       time.Duration(d.cfg.HttpServerIdleTimeoutSeconds) * time.Second,
		ReadHeaderTimeout: time.Duration(d.cfg.ReadHeaderTimeoutSeconds) * time.Second,
		MaxHeaderBytes:    d.cfg.MaxHeaderBytes,
	}

	d.errs = make(chan error, 1)
	go func() {
		d.logger.Info("HTTP server listening", zap.String("addr", d.server.Addr))
		if err := d.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			d.errs <- err
		}
		close(d.errs)
	}()
	d.checker.SetReady(true)
	return nil
}

func (d *serverDependency) Stop(ctx context.Context) error {
	d.checker.SetReady(false)
	return d.server.Shutdown(ctx)
}
