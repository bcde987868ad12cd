package sites

import (
	"log/slog"

	"github.com/hochfrequenz/vacancy-verifier/internal/credentials"
	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// Registry resolves the run's site list from the credentials on disk,
// falling back to the demo sites whenever they cannot be used.
type Registry struct {
	loader *credentials.Loader
	logger *slog.Logger
}

// NewRegistry creates a registry backed by loader. A nil loader always
// yields the demo sites.
func NewRegistry(loader *credentials.Loader, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{loader: loader, logger: logger}
}

// Sites returns the sites to visit. It never fails.
func (r *Registry) Sites() []domain.Site {
	if r.loader == nil {
		return DemoSites()
	}

	source, ok := r.loader.Locate()
	if !ok {
		r.logger.Info("no credentials file found, using demo sites", "dir", r.loader.Dir())
		return DemoSites()
	}

	creds, err := r.loader.Load(source, false)
	if err != nil {
		r.logger.Warn("credentials unusable, using demo sites", "source", source, "error", err)
		return DemoSites()
	}
	return Resolve(creds)
}
