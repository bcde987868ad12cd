package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/hochfrequenz/vacancy-verifier/internal/config"
	"github.com/hochfrequenz/vacancy-verifier/internal/credentials"
	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
	"github.com/hochfrequenz/vacancy-verifier/internal/engine"
	"github.com/hochfrequenz/vacancy-verifier/internal/notify"
	"github.com/hochfrequenz/vacancy-verifier/internal/provider"
	"github.com/hochfrequenz/vacancy-verifier/internal/sites"
)

// app wires the configured collaborators into one engine
type app struct {
	cfg      *config.Config
	logger   *slog.Logger
	provider *provider.Provider
	loader   *credentials.Loader
	registry *sites.Registry
	notifier notify.Notifier
	engine   *engine.Engine
}

func loadConfig() (*config.Config, error) {
	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	return config.Load(path)
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	p, err := provider.New(cfg, logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		provider: p,
		loader:   credentials.NewLoader(cfg.Credentials.Dir, credentials.WithLogger(logger)),
		notifier: notify.NewMultiNotifier(
			notify.LogNotifier{Logger: logger},
			notify.NewSlackNotifier(cfg.Notifications.SlackWebhook),
		),
	}
	a.registry = sites.NewRegistry(a.loader, logger)
	a.engine = engine.New(engine.Options{
		Launcher:       p.Launcher,
		Sites:          a.registry,
		Persister:      p.Results,
		StepDelay:      config.Millis(cfg.Pacing.StepDelayMS),
		UploadDelay:    config.Millis(cfg.Pacing.UploadDelayMS),
		SampleInterval: config.Millis(cfg.Pacing.SampleIntervalMS),
		Settle:         config.Millis(cfg.Pacing.SettleMS),
		Logger:         logger,
		OnComplete:     a.onComplete,
	})
	return a, nil
}

// onComplete records the run and announces it
func (a *app) onComplete(summary domain.RunSummary, _ []domain.FinalVerdict) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.provider.Results.SaveRun(ctx, summary); err != nil {
		a.logger.Warn("saving run summary", "run", summary.ID, "error", err)
	}
	if err := a.notifier.Send(notify.ForRun(summary)); err != nil {
		a.logger.Warn("sending run notification", "run", summary.ID, "error", err)
	}
}

func (a *app) Close() error {
	return a.provider.Close()
}
