// Package credentials locates and parses the per-site credentials table
// (spreadsheet or delimited text) used to log in to listing sites.
package credentials

import (
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

var nameKeywords = []string{
	"credential", "password", "account", "login", "auth",
	"認証", "パスワード", "アカウント", "ログイン",
}

var supportedExts = map[string]bool{
	".xlsx": true,
	".xlsm": true,
	".csv":  true,
	".tsv":  true,
	".txt":  true,
}

// IsCredentialFile reports whether a file name looks like a credentials source
func IsCredentialFile(name string) bool {
	base := filepath.Base(name)
	if strings.HasPrefix(base, "~$") || strings.HasPrefix(base, ".") {
		return false // office lock files and hidden files
	}
	if !supportedExts[strings.ToLower(filepath.Ext(base))] {
		return false
	}
	lower := strings.ToLower(base)
	for _, kw := range nameKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Loader reads credentials from a lookup directory and caches the parsed
// records until ClearCache or a forced reload.
type Loader struct {
	dir    string
	logger *slog.Logger

	mu      sync.Mutex
	source  string
	records []domain.SiteCredential
	loaded  bool
}

// Option configures a Loader
type Option func(*Loader)

// WithLogger sets the logger used for dropped rows and layout fallbacks
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a loader scanning dir for credential files
func NewLoader(dir string, opts ...Option) *Loader {
	l := &Loader{dir: dir}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = slog.Default()
	}
	return l
}

// Dir returns the lookup directory
func (l *Loader) Dir() string {
	return l.dir
}

// Locate returns the first credential file in the lookup directory in
// lexical order. A missing or unreadable directory is reported as not found.
func (l *Loader) Locate() (string, bool) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		l.logger.Debug("credential directory not readable", "dir", l.dir, "error", err)
		return "", false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	for _, name := range names {
		if IsCredentialFile(name) {
			return filepath.Join(l.dir, name), true
		}
	}
	return "", false
}

// Load parses source, serving the cached records on repeat calls for the
// same source unless forceRefresh is set. On error the cache is left as is.
func (l *Loader) Load(source string, forceRefresh bool) ([]domain.SiteCredential, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.loaded && !forceRefresh && l.source == source {
		return cloneCredentials(l.records), nil
	}

	rows, err := readRows(source)
	if err != nil {
		return nil, err
	}
	records, err := parseRows(source, rows, l.logger)
	if err != nil {
		return nil, err
	}

	l.source = source
	l.records = records
	l.loaded = true
	l.logger.Info("loaded site credentials", "source", source, "count", len(records))
	return cloneCredentials(records), nil
}

// GetAll returns the cached credentials, or nil before the first Load
func (l *Loader) GetAll() []domain.SiteCredential {
	l.mu.Lock()
	defer l.mu.Unlock()
	return cloneCredentials(l.records)
}

// GetForSite returns the first cached credential whose site name contains
// the fragment or is contained in it, ignoring case.
func (l *Loader) GetForSite(fragment string) (domain.SiteCredential, bool) {
	q := strings.ToLower(strings.TrimSpace(fragment))
	if q == "" {
		return domain.SiteCredential{}, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	for _, c := range l.records {
		name := strings.ToLower(c.SiteName)
		if strings.Contains(name, q) || strings.Contains(q, name) {
			return c, true
		}
	}
	return domain.SiteCredential{}, false
}

// ClearCache forgets the parsed records so the next Load re-reads the source
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.source = ""
	l.records = nil
	l.loaded = false
}

func cloneCredentials(in []domain.SiteCredential) []domain.SiteCredential {
	if in == nil {
		return nil
	}
	out := make([]domain.SiteCredential, len(in))
	copy(out, in)
	return out
}
