// Package provider assembles the external collaborators of a run. Live mode
// drives Chrome, calls the extraction service and stores verdicts in
// SQLite; fixture mode swaps all three for canned stand-ins so the whole
// pipeline runs without external dependencies.
package provider

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/hochfrequenz/vacancy-verifier/internal/browser"
	"github.com/hochfrequenz/vacancy-verifier/internal/config"
	"github.com/hochfrequenz/vacancy-verifier/internal/extract"
	"github.com/hochfrequenz/vacancy-verifier/internal/resultstore"
	"github.com/hochfrequenz/vacancy-verifier/internal/sites"
)

// Mode selects live or fixture collaborators
type Mode string

const (
	ModeLive    Mode = "live"
	ModeFixture Mode = "fixture"
)

// ParseMode validates a mode string
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLive, ModeFixture:
		return Mode(s), nil
	}
	return "", fmt.Errorf("unknown mode %q", s)
}

// Provider bundles the collaborators selected for a mode
type Provider struct {
	Mode      Mode
	Launcher  browser.Launcher
	Extractor extract.Extractor
	Results   resultstore.Repository

	close func() error
}

// New builds the provider for cfg.General.Mode
func New(cfg *config.Config, logger *slog.Logger) (*Provider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode, err := ParseMode(cfg.General.Mode)
	if err != nil {
		return nil, err
	}

	if mode == ModeFixture {
		logger.Info("running in fixture mode")
		return &Provider{
			Mode:      ModeFixture,
			Launcher:  FixtureLauncher(),
			Extractor: extract.NewFixtureExtractor(),
			Results:   resultstore.NewMemoryPersister(),
			close:     func() error { return nil },
		}, nil
	}

	if dir := filepath.Dir(cfg.General.DatabasePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}
	store, err := resultstore.New(cfg.General.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("opening result store: %w", err)
	}

	opts := browser.DefaultChromeOptions()
	opts.Headless = cfg.Browser.Headless
	opts.UserAgent = cfg.Browser.UserAgent
	opts.ExecPath = cfg.Browser.ExecPath
	if cfg.Browser.NavigateTimeoutMS > 0 {
		opts.NavigateTimeout = config.Millis(cfg.Browser.NavigateTimeoutMS)
	}
	if cfg.Browser.ActionTimeoutMS > 0 {
		opts.ActionTimeout = config.Millis(cfg.Browser.ActionTimeoutMS)
	}

	if cfg.Extraction.Endpoint == "" {
		logger.Warn("extraction endpoint not configured, document upload will fail")
	}

	return &Provider{
		Mode:      ModeLive,
		Launcher:  browser.NewChromeLauncher(opts, logger),
		Extractor: extract.NewHTTPExtractor(cfg.Extraction.Endpoint, cfg.ExtractionAPIKey()),
		Results:   store,
		close:     store.Close,
	}, nil
}

// Close releases the result store
func (p *Provider) Close() error {
	if p.close == nil {
		return nil
	}
	return p.close()
}

// FixtureLauncher serves canned pages for the demo sites
func FixtureLauncher() *browser.FixtureLauncher {
	demo := sites.DemoSites()
	return &browser.FixtureLauncher{
		Pages: map[string]string{
			demo[0].URL: "検索結果 1件 空室あり 募集中",
			demo[1].URL: "該当する物件が見つかりませんでした",
		},
		DefaultPage: "お問い合わせください",
	}
}
