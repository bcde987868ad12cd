package resultstore

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// MemoryPersister keeps verdicts in memory. Fixture mode and tests use it.
type MemoryPersister struct {
	// FailWith makes every Persist call fail with this message
	FailWith string

	mu       sync.Mutex
	verdicts []StoredVerdict
	runs     []domain.RunSummary
}

// NewMemoryPersister creates an empty persister
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

func (m *MemoryPersister) Persist(ctx context.Context, verdict domain.FinalVerdict) domain.PersistResult {
	if err := ctx.Err(); err != nil {
		return domain.PersistResult{Error: err.Error()}
	}
	if m.FailWith != "" {
		return domain.PersistResult{Error: m.FailWith}
	}
	id := uuid.New().String()
	m.mu.Lock()
	m.verdicts = append(m.verdicts, StoredVerdict{ID: id, FinalVerdict: verdict, CreatedAt: time.Now()})
	m.mu.Unlock()
	return domain.PersistResult{Success: true, PageID: id, URL: VerdictURL(id)}
}

func (m *MemoryPersister) GetVerdict(_ context.Context, id string) (*StoredVerdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.verdicts {
		if m.verdicts[i].ID == id {
			v := m.verdicts[i]
			return &v, nil
		}
	}
	return nil, ErrNotFound
}

// ListVerdicts returns matching verdicts, newest first
func (m *MemoryPersister) ListVerdicts(_ context.Context, opts ListOptions) ([]StoredVerdict, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []StoredVerdict
	for i := len(m.verdicts) - 1; i >= 0; i-- {
		v := m.verdicts[i]
		if opts.Status != "" && v.FinalStatus != opts.Status {
			continue
		}
		if opts.Property != "" && !strings.Contains(v.PropertyName, opts.Property) {
			continue
		}
		out = append(out, v)
		if opts.Limit > 0 && len(out) == opts.Limit {
			break
		}
	}
	return out, nil
}

func (m *MemoryPersister) SaveRun(_ context.Context, run domain.RunSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.runs {
		if m.runs[i].ID == run.ID {
			m.runs[i] = run
			return nil
		}
	}
	m.runs = append(m.runs, run)
	return nil
}

func (m *MemoryPersister) ListRuns(_ context.Context, limit int) ([]domain.RunSummary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.RunSummary
	for i := len(m.runs) - 1; i >= 0; i-- {
		out = append(out, m.runs[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
