package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"NewsDigest/internal/config"
	"NewsDigest/internal/enrichment"
	"NewsDigest/internal/httpapi"
	"NewsDigest/internal/infrastructure/extract"
	"NewsDigest/internal/infrastructure/feed"
	"NewsDigest/internal/infrastructure/llm"
	"NewsDigest/internal/infrastructure/scheduler"
	"NewsDigest/internal/infrastructure/telegram"
	"NewsDigest/internal/logging"
	"NewsDigest/internal/metrics"
	"NewsDigest/internal/ports"
	"NewsDigest/internal/usecase"
)

const shutdownTimeout = 30 * time.Second

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	pipeline  *usecase.Pipeline
	scheduler *usecase.Scheduler
	router    http.Handler
}

// New builds the application around an article repository.
func New(cfg config.Config, baseLogger *slog.Logger, repository ports.ArticleRepository) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level, cfg.Logging.Format)
	}
	if repository == nil {
		return nil, errors.New("article repository is required")
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder := metrics.NewCollector(registry)

	feeds := feed.NewReader(
		&http.Client{Timeout: cfg.Extractor.Timeout},
		cfg.Extractor.UserAgent,
		baseLogger.With("component", "feed"),
	)

	var pageClient *http.Client
	if !cfg.Extractor.AllowPrivateNetworks {
		pageClient = extract.NewSafeClient(cfg.Extractor.Timeout)
	}
	extractor := extract.NewExtractor(pageClient, extract.Options{
		Timeout:           cfg.Extractor.Timeout,
		RequestsPerSecond: cfg.Extractor.RequestsPerSecond,
		MaxBodyBytes:      cfg.Extractor.MaxBodyBytes,
		UserAgent:         cfg.Extractor.UserAgent,
	}, baseLogger.With("component", "extractor"))

	enrichLogger := baseLogger.With("component", "enrichment")
	governor, err := enrichment.NewGovernor(
		cfg.Gemini.MaxRPM,
		cfg.Gemini.APIKeys,
		llm.NewGeminiFactory(cfg.Gemini),
		enrichment.WithLogger(enrichLogger),
		enrichment.WithRecorder(recorder),
	)
	if err != nil {
		return nil, fmt.Errorf("enrichment governor: %w", err)
	}
	enricher := enrichment.NewClient(governor, enrichment.Options{
		CallTimeout:   cfg.Gemini.CallTimeout,
		FailoverPause: cfg.Gemini.FailoverPause,
	}, enrichLogger, recorder)

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.Enabled() {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram, "")
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Sources:    cfg.DomainSources(),
		Feeds:      feeds,
		Extractor:  extractor,
		Enricher:   enricher,
		Persister:  usecase.NewPersister(repository),
		Notifier:   notifier,
		Recorder:   recorder,
		Logger:     baseLogger.With("component", "pipeline"),
		EntryLimit: cfg.Pipeline.FeedLimit,
		Workers:    cfg.Pipeline.Workers,
		JitterMin:  cfg.Pipeline.JitterMin,
		JitterMax:  cfg.Pipeline.JitterMax,
	})

	start, end := cfg.Scheduler.WindowBounds()
	window := usecase.Window{Start: start, End: end, Location: cfg.Scheduler.Location()}
	sched := usecase.NewScheduler(
		scheduler.NewIntervalScheduler(cfg.Scheduler.Interval),
		pipeline,
		window,
		baseLogger.With("component", "scheduler"),
		recorder,
	)

	router := httpapi.NewRouter(repository, httpapi.Options{
		CORSAllowedOrigin: cfg.HTTP.CORSAllowedOrigin,
		DefaultLimit:      cfg.HTTP.DefaultLimit,
		MaxLimit:          cfg.HTTP.MaxLimit,
		Metrics:           metrics.Handler(registry),
	}, baseLogger.With("component", "httpapi"))

	return &Application{
		cfg:       cfg,
		logger:    baseLogger,
		pipeline:  pipeline,
		scheduler: sched,
		router:    router,
	}, nil
}

// Handler exposes the read API.
func (a *Application) Handler() http.Handler {
	return a.router
}

// RunPass executes a single ingestion pass regardless of the active window.
func (a *Application) RunPass(ctx context.Context) error {
	_, err := a.pipeline.Run(ctx)
	return err
}

// Run starts the scheduler and the read API and blocks until ctx is done or
// the HTTP server fails.
func (a *Application) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	srv := &http.Server{
		Addr:              a.cfg.HTTP.Addr,
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("read api listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	a.logger.Info("scheduler starting",
		"interval", a.cfg.Scheduler.Interval,
		"window", a.cfg.Scheduler.WindowStart+"-"+a.cfg.Scheduler.WindowEnd,
		"timezone", a.cfg.Scheduler.Timezone,
	)
	var runErr error
	if err := a.scheduler.Start(runCtx); err != nil {
		runErr = fmt.Errorf("start scheduler: %w", err)
	} else {
		select {
		case <-runCtx.Done():
		case err, ok := <-serveErr:
			if ok {
				runErr = fmt.Errorf("http server: %w", err)
			}
		}
	}

	cancel()
	shutdownCtx, stop := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stop()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("http shutdown", "error", err)
	}
	if err := a.scheduler.Stop(shutdownCtx); err != nil {
		a.logger.Warn("scheduler shutdown", "error", err)
	}
	a.logger.Info("application stopped")
	return runErr
}
