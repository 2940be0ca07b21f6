package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/file-toolbox/internal/catalog"
	"github.com/kirillkom/file-toolbox/internal/config"
	"github.com/kirillkom/file-toolbox/internal/core/ports"
	"github.com/kirillkom/file-toolbox/internal/core/usecase"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/archive/zipper"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/converter"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/queue/nats"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/resilience"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/file-toolbox/internal/infrastructure/transcoder/ffmpeg"
)

// App wires the conversion backend: catalog, storage, transcoder and events.
type App struct {
	Config  config.Config
	Catalog *catalog.Registry

	ConvertUC ports.BatchConverter
	FetchUC   ports.ArtifactFetcher
	ExpireUC  ports.ArtifactExpirer

	// Events is nil when NATS_URL is empty.
	Events ports.EventSubscriber
	// Ledger is nil when POSTGRES_DSN is empty.
	Ledger ports.BatchLedger

	closeFns []func()
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	registry, err := catalog.Load()
	if err != nil {
		return nil, fmt.Errorf("load tool catalog: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init artifact storage: %w", err)
	}

	app := &App{Config: cfg, Catalog: registry}

	var publisher ports.EventPublisher = nats.Noop{}
	if cfg.NATSURL != "" {
		bus, err := nats.New(cfg.NATSURL, cfg.NATSSubject, nats.Options{
			Guard: resilience.NewGuard(cfg.Resilience()),
		})
		if err != nil {
			return nil, fmt.Errorf("init event bus: %w", err)
		}
		publisher, app.Events = bus, bus
		app.closeFns = append(app.closeFns, bus.Close)
	} else {
		slog.Info("event_bus_disabled", "reason", "NATS_URL is empty")
	}

	if cfg.PostgresDSN != "" {
		db, err := postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			app.Close()
			return nil, fmt.Errorf("open batch ledger: %w", err)
		}
		app.closeFns = append(app.closeFns, func() { _ = db.Close() })

		repo := postgres.NewBatchRepository(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			app.Close()
			return nil, fmt.Errorf("ensure batch ledger schema: %w", err)
		}
		app.Ledger = repo
	} else {
		slog.Info("batch_ledger_disabled", "reason", "POSTGRES_DSN is empty")
	}

	convertUC := usecase.NewConvertBatchUseCase(
		registry,
		storage,
		ffmpeg.New(cfg.FFmpegPath),
		zipper.New(),
		publisher,
	)
	fetchUC := usecase.NewFetchArtifactUseCase(storage)
	expireUC := usecase.NewExpireArtifactUseCase(storage, cfg.ArtifactTTL())
	if app.Ledger != nil {
		convertUC.WithLedger(app.Ledger)
		fetchUC.WithLedger(app.Ledger)
		expireUC.WithLedger(app.Ledger)
	}

	app.ConvertUC = convertUC
	app.FetchUC = fetchUC
	app.ExpireUC = expireUC
	return app, nil
}

// Close releases connections in reverse order of opening.
func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

// NewOrchestrator builds the client side of a tool page: the conversion client for the tool's
// endpoint and an orchestrator that hands finished artifacts to trigger.
func NewOrchestrator(cfg config.Config, registry *catalog.Registry, toolID string, trigger ports.DownloadTrigger, logger *slog.Logger) (*usecase.UploadOrchestrator, error) {
	policy, err := registry.PolicyFor(toolID)
	if err != nil {
		return nil, err
	}

	client := converter.New(cfg.ConverterBaseURL, policy.Endpoint, converter.Options{
		Timeout: cfg.ConverterTimeout(),
		Guard:   resilience.NewGuard(cfg.Resilience()),
	})

	opts := usecase.OrchestratorOptions{
		StartDelay:      time.Duration(cfg.ProgressStartDelayMS) * time.Millisecond,
		SingleDuration:  time.Duration(cfg.ProgressSingleMS) * time.Millisecond,
		BatchDuration:   time.Duration(cfg.ProgressBatchMS) * time.Millisecond,
		DownloadDelay:   time.Duration(cfg.DownloadDelayMS) * time.Millisecond,
		Simulator:       usecase.NewProgressSimulator(cfg.ProgressSteps),
		DownloadBaseURL: cfg.ConverterBaseURL,
		Logger:          logger,
	}
	return usecase.NewUploadOrchestrator(client, trigger, policy, opts), nil
}
