package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/tejusbharadwaj/pvwatch/internal/api"
	"github.com/tejusbharadwaj/pvwatch/internal/config"
	"github.com/tejusbharadwaj/pvwatch/internal/database"
	server "github.com/tejusbharadwaj/pvwatch/internal/grpc"
	"github.com/tejusbharadwaj/pvwatch/internal/history"
	"github.com/tejusbharadwaj/pvwatch/internal/ingest"
	"github.com/tejusbharadwaj/pvwatch/internal/logging"
	"github.com/tejusbharadwaj/pvwatch/internal/metrics"
	"github.com/tejusbharadwaj/pvwatch/internal/parser"
	"github.com/tejusbharadwaj/pvwatch/internal/remote"
	"github.com/tejusbharadwaj/pvwatch/internal/scheduler"
	"github.com/tejusbharadwaj/pvwatch/internal/snapshot"
)

const defaultConfigFile = "config.yaml"

// application holds the wired components shared by all commands.
type application struct {
	cfg        *config.Config
	logger     *logrus.Logger
	closeLog   func() error
	repo       database.TimeSeriesRepository
	source     remote.Source
	downloader *snapshot.Downloader
	parser     *parser.Parser
	history    *history.Service
	monitor    *ingest.Monitor
	health     *server.HealthChecker
	registry   *prometheus.Registry
}

func newApplication(ctx context.Context, path string) (*application, error) {
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, closeLog, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return nil, err
	}

	repo, err := openRepository(ctx, cfg.Database)
	if err != nil {
		closeLog()
		return nil, fmt.Errorf("failed to open repository: %w", err)
	}

	source := remote.NewBreakerSource(
		remote.NewFTPSource(remote.FTPConfig{
			Host:     cfg.Remote.Host,
			Port:     cfg.Remote.Port,
			User:     cfg.Remote.User,
			Password: cfg.Remote.Password,
			Path:     cfg.Remote.Path,
			Timeout:  cfg.Remote.Timeout,
			MaxSize:  cfg.Remote.MaxSize,
		}),
		remote.BreakerConfig{
			Failures: cfg.Remote.BreakerFailures,
			Cooldown: cfg.Remote.BreakerCooldown,
		},
		logger,
	)
	downloader := snapshot.NewDownloader(source, cfg.Snapshots.ArchiveDir, cfg.Snapshots.LatestPath)
	p := parser.New()

	svc, err := history.NewService(repo, downloader, p, cfg.Server.CacheSize, logger)
	if err != nil {
		repo.Close()
		closeLog()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	if err := metrics.Register(registry); err != nil {
		repo.Close()
		closeLog()
		return nil, err
	}

	logger.WithFields(logrus.Fields{
		"driver": cfg.Database.Driver,
		"remote": cfg.Remote.Host,
		"path":   cfg.Remote.Path,
	}).Info("pvwatch initialized")

	return &application{
		cfg:        cfg,
		logger:     logger,
		closeLog:   closeLog,
		repo:       repo,
		source:     source,
		downloader: downloader,
		parser:     p,
		history:    svc,
		monitor:    ingest.NewMonitor(),
		health:     server.NewHealthChecker(),
		registry:   registry,
	}, nil
}

func openRepository(ctx context.Context, cfg config.DatabaseConfig) (database.TimeSeriesRepository, error) {
	switch cfg.Driver {
	case "postgres":
		repo, err := database.NewPostgresRepo(ctx, cfg.ConnString())
		if err != nil {
			return nil, err
		}
		return repo, nil
	default:
		repo, err := database.NewSQLiteRepo(cfg.Path)
		if err != nil {
			return nil, err
		}
		return repo, nil
	}
}

// newScheduler builds the poll loop. The remote host must be configured.
func (a *application) newScheduler(opts scheduler.Options) (*scheduler.Scheduler, error) {
	if a.cfg.Remote.Host == "" {
		return nil, errors.New("remote.host is required for polling")
	}

	ingester := ingest.NewIngester(
		a.source,
		a.downloader,
		a.parser,
		a.repo,
		ingest.Config{
			ProbeTimeout:          a.cfg.Poll.ProbeTimeout,
			DownloadTimeout:       a.cfg.Poll.DownloadTimeout,
			SchemaRetries:         a.cfg.Poll.SchemaRetries,
			FallbackOnUnsupported: a.cfg.Poll.FallbackOnUnsupported,
			SourceTag:             parser.SourceLive,
		},
		a.logger,
	)
	return scheduler.NewScheduler(ingester, opts, a.logger), nil
}

func (a *application) recordOutcome(outcome ingest.Outcome, err error) {
	a.monitor.Record(outcome, err)
	a.health.ReportOutcome(outcome)
}

// Serve runs the poll loop and both servers until ctx is cancelled.
func (a *application) Serve(ctx context.Context) error {
	schedule, err := scheduler.ParseSchedule(a.cfg.Poll.Schedule, a.cfg.Poll.Interval)
	if err != nil {
		return err
	}
	sched, err := a.newScheduler(scheduler.Options{
		Schedule:   schedule,
		Iterations: a.cfg.Poll.Iterations,
		OnTick:     a.recordOutcome,
	})
	if err != nil {
		return err
	}

	errChan := make(chan error, 2)

	httpApp := api.NewApp(a.history, a.monitor, a.registry, api.ServerConfig{
		RateLimit:      a.cfg.Server.RateLimit,
		RateLimitBurst: a.cfg.Server.RateLimitBurst,
	}, a.logger)
	if a.cfg.Server.Port > 0 {
		addr := fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.Port)
		a.logger.WithField("addr", addr).Info("Starting HTTP server")
		go func() {
			if err := httpApp.Listen(addr); err != nil {
				errChan <- fmt.Errorf("http server error: %w", err)
			}
		}()
	}

	var grpcServer *grpc.Server
	if a.cfg.Server.GRPCPort > 0 {
		grpcServer, err = server.SetupServer(a.health, server.ServerConfig{
			RateLimit:      a.cfg.Server.RateLimit,
			RateLimitBurst: a.cfg.Server.RateLimitBurst,
		}, a.logger)
		if err != nil {
			return fmt.Errorf("failed to setup grpc server: %w", err)
		}
		lis, err := net.Listen("tcp", fmt.Sprintf("%s:%d", a.cfg.Server.Host, a.cfg.Server.GRPCPort))
		if err != nil {
			return fmt.Errorf("failed to listen: %w", err)
		}
		a.logger.WithField("port", a.cfg.Server.GRPCPort).Info("Starting gRPC server")
		go func() {
			if err := grpcServer.Serve(lis); err != nil {
				errChan <- fmt.Errorf("grpc server error: %w", err)
			}
		}()
	}

	sched.Start(ctx)

	select {
	case <-ctx.Done():
		a.logger.Info("Received shutdown signal")
	case err = <-errChan:
		a.logger.WithError(err).Error("Service error, shutting down")
	}

	sched.Stop()
	shutdownCtx, cancel := shutdownContext()
	defer cancel()
	if shutdownErr := httpApp.ShutdownWithContext(shutdownCtx); shutdownErr != nil {
		a.logger.WithError(shutdownErr).Warn("HTTP shutdown failed")
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	a.logger.Info("Server stopped")
	return err
}

func (a *application) Close() {
	if err := a.repo.Close(); err != nil {
		a.logger.WithError(err).Warn("closing repository failed")
	}
	a.closeLog()
}
