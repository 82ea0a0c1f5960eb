// Package app wires configuration into the running service graph shared by
// the daemon and the CLI.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/joseph-ayodele/shift-reports/internal/async"
	"github.com/joseph-ayodele/shift-reports/internal/common"
	"github.com/joseph-ayodele/shift-reports/internal/export"
	"github.com/joseph-ayodele/shift-reports/internal/extract"
	"github.com/joseph-ayodele/shift-reports/internal/ingest"
	"github.com/joseph-ayodele/shift-reports/internal/ledger"
	"github.com/joseph-ayodele/shift-reports/internal/llm"
	"github.com/joseph-ayodele/shift-reports/internal/llm/gemini"
	"github.com/joseph-ayodele/shift-reports/internal/llm/openai"
	"github.com/joseph-ayodele/shift-reports/internal/llm/stub"
	"github.com/joseph-ayodele/shift-reports/internal/metrics"
	"github.com/joseph-ayodele/shift-reports/internal/objectstore"
	"github.com/joseph-ayodele/shift-reports/internal/pipeline"
	"github.com/joseph-ayodele/shift-reports/internal/records"
	"github.com/joseph-ayodele/shift-reports/internal/render"
	"github.com/joseph-ayodele/shift-reports/internal/repository"
	"github.com/joseph-ayodele/shift-reports/internal/server"
)

type App struct {
	Config    *common.Config
	Logger    *slog.Logger
	DB        *repository.DB
	Store     *objectstore.BlobStore
	Ledger    *ledger.Ledger
	Records   repository.RecordRepository
	Provider  llm.Provider
	Processor *pipeline.Processor
	Queue     *async.ProcessorQueue
	Gateway   *ingest.Gateway
	Exporter  *export.Service
	Renderer  *render.Client
}

// New opens the database and object store, migrates when configured, and
// builds the pipeline. Close releases what New opened.
func New(ctx context.Context, cfg *common.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	provider, err := NewProvider(cfg.LLM, logger)
	if err != nil {
		return nil, err
	}
	var invokerOpts []extract.InvokerOption
	if cfg.LLM.HEICConverter != "" {
		conv, err := extract.NewHEICConverter(cfg.LLM.HEICConverter, nil, logger)
		if err != nil {
			return nil, common.NewAppError(common.CodeConfig, err.Error(), common.ErrInvalidInput)
		}
		invokerOpts = append(invokerOpts, extract.WithHEICConverter(conv))
	}

	db, err := repository.Open(ctx, repository.Config{
		Driver:           cfg.Database.Driver,
		DSN:              cfg.Database.DSN,
		MaxConns:         cfg.Database.MaxConns,
		MinConns:         cfg.Database.MinConns,
		MaxConnLifetime:  cfg.Database.MaxConnLifetime,
		MaxConnIdleTime:  cfg.Database.MaxConnIdleTime,
		DialTimeout:      cfg.Database.DialTimeout,
		StatementTimeout: cfg.Database.StatementTimeout,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if cfg.Database.AutoMigrate {
		if err := repository.Migrate(ctx, db, logger); err != nil {
			db.Close(logger)
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	store, err := objectstore.Open(ctx, objectstore.Config{
		BucketURL:     cfg.Storage.BucketURL,
		PublicBaseURL: cfg.Storage.PublicBaseURL,
	}, logger)
	if err != nil {
		db.Close(logger)
		return nil, fmt.Errorf("open object store: %w", err)
	}

	uploads := repository.NewUploadRepository(db, logger)
	recs := repository.NewRecordRepository(db, logger)
	l := ledger.New(uploads, logger)
	proc := pipeline.NewProcessor(l,
		extract.NewInvoker(store, provider, cfg.LLM.MaxImageDim, logger, invokerOpts...),
		records.NewWriter(recs, logger),
		pipeline.RetryPolicy{Attempts: cfg.LLM.RetryAttempts, Delay: cfg.LLM.RetryDelay},
		logger,
	)

	// the queue handler needs the gateway and the gateway needs the queue
	var gw *ingest.Gateway
	q := async.NewProcessorQueue(func(ctx context.Context, job async.Job) error {
		return gw.HandleJob(ctx, job)
	}, logger,
		async.WithWorkers(cfg.Watch.Workers),
		async.WithQueueSize(cfg.Watch.QueueSize),
		async.WithProcessTimeout(jobTimeout(cfg.LLM)),
	)
	gw = ingest.NewGateway(store, l, proc, logger,
		ingest.WithQueue(q),
		ingest.WithMaxBytes(cfg.Server.MaxUploadBytes),
	)

	logger.Info("app.ready",
		"db_driver", db.Dialect,
		"bucket", cfg.Storage.BucketURL,
		"llm_provider", provider.Name(),
		"retry_attempts", cfg.LLM.RetryAttempts,
	)
	return &App{
		Config:    cfg,
		Logger:    logger,
		DB:        db,
		Store:     store,
		Ledger:    l,
		Records:   recs,
		Provider:  provider,
		Processor: proc,
		Queue:     q,
		Gateway:   gw,
		Exporter:  export.NewService(l, recs, logger),
		Renderer:  render.NewClient(render.Config{BaseURL: cfg.Render.BaseURL, Timeout: cfg.Render.Timeout}, logger),
	}, nil
}

// NewProvider selects the extraction backend named by cfg.Provider.
func NewProvider(cfg common.LLMConfig, logger *slog.Logger) (llm.Provider, error) {
	switch cfg.Provider {
	case "openai":
		return openai.NewClient(openai.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger), nil
	case "gemini":
		return gemini.NewClient(gemini.Config{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		}, logger), nil
	case "stub":
		return stub.New(), nil
	}
	return nil, common.NewAppError(common.CodeConfig, "unknown llm provider "+cfg.Provider, common.ErrInvalidInput)
}

// jobTimeout bounds one queued job: every extraction attempt plus its backoff.
func jobTimeout(cfg common.LLMConfig) time.Duration {
	attempts := time.Duration(max(cfg.RetryAttempts, 1))
	return attempts*(cfg.Timeout+cfg.RetryDelay) + time.Minute
}

// Router builds the HTTP surface over the app's services.
func (a *App) Router() *gin.Engine {
	return server.NewRouter(server.HTTPConfig{
		CORSOrigins:    a.Config.Server.CORSOrigins,
		MaxUploadBytes: a.Config.Server.MaxUploadBytes,
	}, server.HTTPDeps{
		Gateway:  a.Gateway,
		Ledger:   a.Ledger,
		Records:  a.Records,
		Exporter: a.Exporter,
		Renderer: a.Renderer,
		Files:    a.Store,
		Health:   a.Health,
	}, a.Logger)
}

// GRPCServer builds the ledger gRPC server.
func (a *App) GRPCServer(opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	svc := server.NewLedgerService(a.Ledger, ledger.NewPoller(a.Ledger), a.Logger)
	return server.NewGRPCServer(svc, a.Logger, opts...)
}

// Watch feeds the watch folder into the worker queue until ctx is done.
// It is a no-op when no watch root is configured.
func (a *App) Watch(ctx context.Context) error {
	if a.Config.Watch.Root == "" {
		return nil
	}
	return ingest.RunWatcher(ctx, ingest.WatchConfig{
		Root:        a.Config.Watch.Root,
		InitialScan: true,
		Debounce:    a.Config.Watch.Debounce,
		Logger:      a.Logger,
	}, a.Queue)
}

func (a *App) Health(ctx context.Context) error {
	return a.DB.HealthCheck(ctx, a.Config.Database.DialTimeout)
}

// ReportDBStats publishes connection pool gauges every interval until ctx is done.
func (a *App) ReportDBStats(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		metrics.UpdateDatabaseStats(a.DB.Stats())
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
	}
}

// Close drains the worker queue and releases the store and database.
func (a *App) Close(ctx context.Context) {
	a.Queue.Shutdown(ctx)
	if err := a.Store.Close(); err != nil {
		a.Logger.Error("failed to close object store", "error", err)
	}
	a.DB.Close(a.Logger)
}
