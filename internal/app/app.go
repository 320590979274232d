// Package app wires settings, storage, the MailChimp client and the
// migration stages into a runnable application.
package app

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/tphakala/mcmigrate/internal/api"
	"github.com/tphakala/mcmigrate/internal/buildinfo"
	"github.com/tphakala/mcmigrate/internal/conf"
	"github.com/tphakala/mcmigrate/internal/datastore"
	"github.com/tphakala/mcmigrate/internal/datastore/repository"
	"github.com/tphakala/mcmigrate/internal/errors"
	"github.com/tphakala/mcmigrate/internal/eventrel"
	"github.com/tphakala/mcmigrate/internal/listgroup"
	"github.com/tphakala/mcmigrate/internal/logger"
	"github.com/tphakala/mcmigrate/internal/mailchimp"
	"github.com/tphakala/mcmigrate/internal/migration"
	"github.com/tphakala/mcmigrate/internal/observability"
)

const flushTimeout = 2 * time.Second

// Option customizes an App.
type Option func(*options)

type options struct {
	transport http.RoundTripper
	log       logger.Logger
	build     *buildinfo.Context
}

// WithTransport sets the HTTP transport of the MailChimp client.
func WithTransport(rt http.RoundTripper) Option {
	return func(o *options) { o.transport = rt }
}

// WithLogger replaces the logger built from the settings.
func WithLogger(log logger.Logger) Option {
	return func(o *options) { o.log = log }
}

// WithBuildInfo sets the version reported to Sentry.
func WithBuildInfo(b *buildinfo.Context) Option {
	return func(o *options) { o.build = b }
}

// App owns every long lived component of a migration run.
type App struct {
	settings *conf.Settings
	log      logger.Logger
	central  *logger.CentralLogger
	store    datastore.Manager
	state    *datastore.StateManager
	metrics  *observability.Metrics
	client   *mailchimp.Client
	runner   *migration.Runner
	runID    string

	closeOnce sync.Once
	closeErr  error
}

// New builds an App. Close must be called when done.
func New(settings *conf.Settings, opts ...Option) (*App, error) {
	o := options{build: buildinfo.Current()}
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{settings: settings, runID: uuid.NewString()}

	if o.log != nil {
		a.log = o.log
	} else {
		central, err := logger.NewCentralLogger(LoggingConfig(settings))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize logging: %w", err)
		}
		a.central = central
		a.log = central.Module("app")
	}
	a.log = a.log.With(logger.String("run_id", a.runID))

	if settings.Telemetry.Sentry.Enabled {
		if err := errors.InitSentry(settings.Telemetry.Sentry.DSN, o.build.Release()); err != nil {
			a.log.Warn("sentry disabled", logger.Error(err))
		}
	}

	m, err := observability.NewMetrics()
	if err != nil {
		a.closeLogger()
		return nil, err
	}
	a.metrics = m

	store, err := datastore.Open(settings, a.moduleLogger("datastore"))
	if err != nil {
		a.closeLogger()
		return nil, err
	}
	a.store = store
	a.state = datastore.NewStateManager(store.DB(), a.runID, m.Datastore)

	a.client = mailchimp.NewClient(mailchimp.Config{
		APIKey:    settings.MailChimp.APIKey,
		BaseURL:   settings.MailChimp.BaseURL,
		Timeout:   settings.MailChimp.Timeout,
		RateLimit: settings.MailChimp.RateLimit,
		CacheTTL:  settings.MailChimp.CacheTTL,
		Transport: o.transport,
		Logger:    a.moduleLogger("mailchimp"),
		Observer:  m.Migration,
	})

	stages, err := a.buildStages()
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.runner = migration.NewRunner(&migration.RunnerConfig{
		Stages:       stages,
		BatchSize:    settings.Migration.BatchSize,
		SleepBetween: settings.Migration.SleepBetween,
		Logger:       a.moduleLogger("migration"),
	})

	a.log.Info("application initialized",
		logger.String("database", store.Path()),
		logger.Int("stages", len(stages)))
	return a, nil
}

// LoggingConfig maps settings onto the central logger configuration.
func LoggingConfig(settings *conf.Settings) *logger.LoggingConfig {
	level := settings.Logging.Level
	if settings.Debug {
		level = string(logger.LogLevelDebug)
	}
	return &logger.LoggingConfig{
		DefaultLevel: level,
		Timezone:     settings.Logging.Timezone,
		Console:      &logger.ConsoleOutput{Enabled: true, Level: level},
		FileOutput: &logger.FileOutput{
			Enabled: settings.Logging.File.Enabled,
			Path:    settings.Logging.File.Path,
			Level:   settings.Logging.File.Level,
		},
		ModuleLevels: settings.Logging.ModuleLevels,
	}
}

func (a *App) moduleLogger(name string) logger.Logger {
	if a.central != nil {
		return a.central.Module(name).With(logger.String("run_id", a.runID))
	}
	return a.log.Module(name)
}

func (a *App) buildStages() ([]migration.Stage, error) {
	db := a.store.DB()
	rec := a.metrics.Datastore
	rows := repository.NewListGroupRepository(db, rec)

	stages := make([]migration.Stage, 0, len(a.settings.Migration.Stages))
	for _, name := range a.settings.Migration.Stages {
		switch name {
		case conf.StageEventRel:
			stages = append(stages, eventrel.NewStage(eventrel.Config{
				Source:   repository.NewEventRelRepository(db, rec),
				EventMap: repository.NewEventMapRepository(db, rec),
				Target:   rows,
				Errors:   a.state,
				Logger:   a.moduleLogger("eventrel"),
				Metrics:  a.metrics.Migration,
			}, a.state))
		case conf.StageListGroup:
			stage, _ := listgroup.NewStage(listgroup.Config{
				Rows:      rows,
				Directory: a.client,
				Errors:    a.state,
				Logger:    a.moduleLogger("listgroup"),
				Metrics:   a.metrics.Migration,
			}, a.state)
			stages = append(stages, stage)
		default:
			return nil, fmt.Errorf("unknown migration stage %q", name)
		}
	}
	return stages, nil
}

// StageName maps a configured stage key to its stored name.
func StageName(key string) (string, error) {
	switch key {
	case conf.StageEventRel:
		return eventrel.StageName, nil
	case conf.StageListGroup:
		return listgroup.StageName, nil
	default:
		return "", fmt.Errorf("unknown migration stage %q", key)
	}
}

// Run executes the migration. The metrics endpoint (when telemetry is
// enabled) and, with serve set, the control API run alongside the runner
// and stop once it finishes.
func (a *App) Run(ctx context.Context, serve bool) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)

	if a.settings.Telemetry.Enabled {
		ep, err := observability.NewEndpoint(a.settings.Telemetry.Listen, a.metrics, a.log)
		if err != nil {
			return err
		}
		g.Go(func() error { return ep.Run(gctx) })
	}
	if serve {
		srv, err := api.NewServer(api.Config{
			Listen: a.settings.API.Listen,
			Runner: a.runner,
			Stages: a.state,
			Logger: a.log,
		})
		if err != nil {
			return err
		}
		g.Go(func() error { return srv.Run(gctx) })
	}

	g.Go(func() error {
		defer cancel()
		return a.runner.Run(gctx)
	})

	// an interrupted run is resumed from its checkpoint next time
	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, migration.ErrRunnerStopped) {
		err = nil
	}
	status := a.runner.Status()
	a.log.Info("migration run finished",
		logger.Int64("processed", status.Processed),
		logger.String("last_error", status.LastError))
	return err
}

// Reset returns the named stages to pending and clears their errors.
func (a *App) Reset(ctx context.Context, keys []string) error {
	for _, key := range keys {
		name, err := StageName(key)
		if err != nil {
			return err
		}
		if err := a.state.ResetStage(ctx, name); err != nil && !errors.Is(err, datastore.ErrStageNotFound) {
			return err
		}
		a.log.Info("stage reset", logger.String("stage", name))
	}
	return nil
}

// ValidateKey asks MailChimp whether the configured key works.
func (a *App) ValidateKey(ctx context.Context) error {
	return a.client.ValidateKey(ctx)
}

// Runner returns the stage runner.
func (a *App) Runner() *migration.Runner { return a.runner }

// State returns the stage state manager.
func (a *App) State() *datastore.StateManager { return a.state }

// Metrics returns the metric collectors.
func (a *App) Metrics() *observability.Metrics { return a.metrics }

// Store returns the database manager.
func (a *App) Store() datastore.Manager { return a.store }

// Close releases every resource.
func (a *App) Close() error {
	a.closeOnce.Do(func() { a.closeErr = a.close() })
	return a.closeErr
}

func (a *App) close() error {
	var errs []error
	if a.client != nil {
		a.client.Close()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	errors.FlushTelemetry(flushTimeout)
	if err := a.closeLogger(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (a *App) closeLogger() error {
	if a.central == nil {
		return nil
	}
	err := a.central.Close()
	a.central = nil
	return err
}
