package bootstrap

import (
	"context"
	"log/slog"
	"time"

	"github.com/pdmworks/cadbridge/internal/adapters/report"
	"github.com/pdmworks/cadbridge/internal/config"
	"github.com/pdmworks/cadbridge/internal/core/ports"
	"github.com/pdmworks/cadbridge/internal/core/usecase"
	"github.com/pdmworks/cadbridge/internal/infrastructure/filelock"
	"github.com/pdmworks/cadbridge/internal/infrastructure/resilience"
	"github.com/pdmworks/cadbridge/internal/infrastructure/solidworks"
	"github.com/pdmworks/cadbridge/internal/infrastructure/swdm"
	"github.com/pdmworks/cadbridge/internal/observability/logging"
	"github.com/pdmworks/cadbridge/internal/observability/metrics"
)

const serviceName = "cadbridge"

type App struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.BridgeMetrics

	MetadataUC ports.DocumentMetadataService
	LiveUC     ports.LiveAutomationService

	closeFn func()
}

// New wires every adapter behind the two inbound services. The metadata
// engine stays unloaded until the first document operation touches it.
func New(cfg config.Config) *App {
	logger := logging.NewJSONLogger(serviceName, cfg.LogLevel)
	slog.SetDefault(logger)

	bridgeMetrics := metrics.NewBridgeMetrics(serviceName)

	driver := swdm.NewDriver()
	engine := swdm.NewEngine(driver, swdm.ResolverOptions{
		LicenseKey:   cfg.LicenseKey,
		OverridePath: cfg.LibraryPath,
	})
	bridgeMetrics.TrackEngine(
		func() float64 { return float64(engine.OpenSessions()) },
		func() float64 { return float64(engine.HandleReleases()) },
	)

	locks := filelock.NewWithOptions(filelock.Options{SidecarDir: cfg.LockDir})
	exporter := report.NewExcelExporter(logger)
	metadataUC := usecase.NewDocumentMetadataUseCase(engine, locks, exporter, cfg.MirrorProperty)

	live := solidworks.NewClient(solidworks.Options{
		Resilience: resilience.Config{
			RetryMaxAttempts:    cfg.RetryMaxAttempts,
			RetryInitialBackoff: time.Duration(cfg.RetryBaseDelayMS) * time.Millisecond,
			RetryMaxBackoff:     time.Duration(cfg.RetryMaxDelayMS) * time.Millisecond,
			BreakerEnabled:      cfg.BreakerEnabled,
		},
		GateTimeout: time.Duration(cfg.GateTimeoutMS) * time.Millisecond,
		Recorder:    bridgeMetrics,
		OnBusyRetry: bridgeMetrics.RecordBusyRetry,
	})
	liveUC := usecase.NewLiveAutomationUseCase(live)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    bridgeMetrics,
		MetadataUC: metadataUC,
		LiveUC:     liveUC,
		closeFn: func() {
			if _, err := engine.ReleaseAll(context.Background()); err != nil {
				logger.Warn("engine_release_failed", "error", err)
			}
			live.Close()
		},
	}
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
