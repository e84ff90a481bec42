package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/johnayoung/go-trades-archiver/internal/archive"
	"github.com/johnayoung/go-trades-archiver/internal/config"
	"github.com/johnayoung/go-trades-archiver/internal/events"
	"github.com/johnayoung/go-trades-archiver/internal/exchange"
	"github.com/johnayoung/go-trades-archiver/internal/ledger"
	"github.com/johnayoung/go-trades-archiver/internal/logger"
	"github.com/johnayoung/go-trades-archiver/internal/metrics"
	"github.com/johnayoung/go-trades-archiver/internal/pipeline"
	"github.com/johnayoung/go-trades-archiver/internal/upload"
)

// App holds the components shared by the commands
type App struct {
	config    *config.AppConfig
	logs      *logger.LoggerManager
	logger    *slog.Logger
	recorder  *ledger.Session
	ledger    ledger.Ledger
	publisher events.Publisher
	metrics   *metrics.MetricsCollector
}

// newApp loads configuration with flag overrides applied and sets up logging.
// The ledger is not opened here: runs are recorded through a session that holds the
// database only while writing, and history opens it on demand.
func newApp(ctx context.Context, configPath string, stderr io.Writer, override func(*config.AppConfig)) (*App, error) {
	bootstrap := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	cfg, err := config.NewConfigManager(configPath, bootstrap).
		WithOverride(override).
		LoadConfig(ctx)
	if err != nil {
		return nil, configError(err)
	}

	logs, err := logger.NewLoggerManager(cfg.Logging)
	if err != nil {
		return nil, configError(fmt.Errorf("failed to setup logging: %w", err))
	}

	app := &App{
		config:    cfg,
		logs:      logs,
		logger:    logs.GetComponentLogger("cli").Logger,
		publisher: events.NewNoopPublisher(),
		metrics:   metrics.NewMetricsCollector(cfg.Metrics, logs),
	}

	app.recorder = ledger.NewSession(cfg.Ledger, logs.GetComponentLogger("ledger").Logger)
	app.metrics.RegisterHealthChecker("ledger", app.recorder)

	if cfg.Events.Enabled {
		writeTimeout, _ := time.ParseDuration(cfg.Events.WriteTimeout)
		publisher, err := events.NewKafkaPublisher(events.KafkaConfig{
			Brokers:      cfg.Events.Brokers,
			Topic:        cfg.Events.Topic,
			WriteTimeout: writeTimeout,
		}, logs.GetComponentLogger("events").Logger)
		if err != nil {
			app.Close()
			return nil, configError(fmt.Errorf("failed to create event publisher: %w", err))
		}
		app.publisher = publisher
	}

	return app, nil
}

// buildPipeline wires the fetcher, writer and uploader described by the configuration
func (a *App) buildPipeline(ctx context.Context) (*pipeline.Pipeline, error) {
	cfg := a.config

	fetcher, err := exchange.NewRESTClient(exchange.ClientConfig{
		BaseURL:   cfg.Exchange.BaseURL,
		Timeout:   cfg.HTTPTimeout(),
		UserAgent: cfg.Exchange.UserAgent,
	}, a.logs.GetComponentLogger("exchange").Logger)
	if err != nil {
		return nil, configError(fmt.Errorf("failed to create exchange client: %w", err))
	}

	writer := archive.NewWriter(archive.Config{
		Directory:  cfg.Archive.Directory,
		FilePrefix: cfg.Archive.FilePrefix,
		Location:   cfg.ArchiveLocation(),
	}, a.logs.GetComponentLogger("archive").Logger)

	uploader, err := upload.NewS3Uploader(ctx, upload.Config{
		Bucket:          cfg.Upload.Bucket,
		Folder:          cfg.Upload.Folder,
		Region:          cfg.Upload.Region,
		AccessKeyID:     cfg.Upload.AccessKeyID,
		SecretAccessKey: cfg.Upload.SecretAccessKey,
		Endpoint:        cfg.Upload.Endpoint,
		UsePathStyle:    cfg.Upload.UsePathStyle,
	}, a.logs.GetComponentLogger("upload").Logger)
	if err != nil {
		return nil, err
	}

	p, err := pipeline.NewBuilder().
		WithFetcher(fetcher).
		WithPersister(writer).
		WithUploader(uploader).
		WithLedger(a.recorder).
		WithPublisher(a.publisher).
		WithObserver(a.metrics).
		WithSymbol(cfg.Exchange.Symbol).
		WithLogger(a.logs.GetComponentLogger("pipeline").Logger).
		Build()
	if err != nil {
		return nil, configError(err)
	}

	return p, nil
}

// openLedger opens and initializes the ledger for reading. It is closed by Close.
func (a *App) openLedger(ctx context.Context) (ledger.Ledger, error) {
	runs, err := ledger.Open(a.config.Ledger, a.logs.GetComponentLogger("ledger").Logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open ledger: %w", err)
	}
	if err := runs.Initialize(ctx); err != nil {
		_ = runs.Close()
		return nil, fmt.Errorf("failed to initialize ledger: %w", err)
	}
	a.ledger = runs
	return runs, nil
}

// Close releases the ledger, the publisher and the log writer
func (a *App) Close() {
	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.logger.Warn("failed to close event publisher", "error", err)
		}
	}
	if a.ledger != nil {
		if err := a.ledger.Close(); err != nil {
			a.logger.Warn("failed to close ledger", "error", err)
		}
	}
	if a.recorder != nil {
		if err := a.recorder.Close(); err != nil {
			a.logger.Warn("failed to close ledger session", "error", err)
		}
	}
	if a.logs != nil {
		_ = a.logs.Close()
	}
}
