// Package aggregate collects per-site visit outcomes and folds them into one
// final verdict per property.
package aggregate

import (
	"fmt"
	"sync"
	"time"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// Outcome is what a single site visit concluded
type Outcome struct {
	Status      domain.SiteStatus
	LastUpdated *time.Time
	Notes       string
}

// Aggregator owns the site results and verdicts of one run. Results are
// kept per task value, so tasks sharing an id never mix their sites.
type Aggregator struct {
	now func() time.Time

	mu       sync.Mutex
	results  map[*domain.PropertyTask][]domain.SiteVerificationResult
	verdicts []domain.FinalVerdict
}

// New creates an empty aggregator
func New() *Aggregator {
	return &Aggregator{
		now:     time.Now,
		results: make(map[*domain.PropertyTask][]domain.SiteVerificationResult),
	}
}

// RecordSiteOutcome appends the result of visiting site for task
func (a *Aggregator) RecordSiteOutcome(task *domain.PropertyTask, site domain.Site, outcome Outcome) domain.SiteVerificationResult {
	result := domain.SiteVerificationResult{
		SiteName:    site.Name,
		URL:         site.URL,
		Status:      outcome.Status,
		LastUpdated: outcome.LastUpdated,
		Notes:       outcome.Notes,
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.results[task] = append(a.results[task], result)
	return result
}

// Results returns the results recorded so far for task
func (a *Aggregator) Results(task *domain.PropertyTask) []domain.SiteVerificationResult {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.SiteVerificationResult, len(a.results[task]))
	copy(out, a.results[task])
	return out
}

// Finalize computes the verdict for task over the sites that were visited
// and adds it to the batch returned by Verdicts.
func (a *Aggregator) Finalize(task *domain.PropertyTask, visitedSites []domain.Site) domain.FinalVerdict {
	results := a.Results(task)

	verdict := domain.FinalVerdict{
		PropertyName:        task.PropertyName,
		RoomNumber:          task.RoomNumber,
		Address:             task.Address,
		ManagementCompany:   task.ManagementCompany,
		VerificationResults: results,
		FinalStatus:         Decide(results, len(visitedSites)),
		LastVerified:        a.now(),
		Notes:               summarize(results, len(visitedSites)),
	}

	a.mu.Lock()
	a.verdicts = append(a.verdicts, verdict)
	a.mu.Unlock()
	return verdict
}

// Verdicts returns the finalized verdicts in the order they were produced
func (a *Aggregator) Verdicts() []domain.FinalVerdict {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]domain.FinalVerdict, len(a.verdicts))
	copy(out, a.verdicts)
	return out
}

// Decide applies the verdict precedence, first match wins:
//  1. any available and no occupied -> available
//  2. any occupied -> occupied
//  3. inconclusive (error + unknown) outcomes exceed half the visited sites -> needs_call
//  4. otherwise unknown
func Decide(results []domain.SiteVerificationResult, visited int) domain.FinalStatus {
	var available, occupied, inconclusive int
	for _, r := range results {
		switch {
		case r.Status == domain.SiteAvailable:
			available++
		case r.Status == domain.SiteOccupied:
			occupied++
		case r.Status.Inconclusive():
			inconclusive++
		}
	}

	switch {
	case available > 0 && occupied == 0:
		return domain.FinalAvailable
	case occupied > 0:
		return domain.FinalOccupied
	case float64(inconclusive) > float64(visited)/2:
		return domain.FinalNeedsCall
	default:
		return domain.FinalUnknown
	}
}

func summarize(results []domain.SiteVerificationResult, visited int) string {
	if visited == 0 {
		return "no sites available for verification"
	}
	counts := make(map[domain.SiteStatus]int)
	for _, r := range results {
		counts[r.Status]++
	}
	return fmt.Sprintf("%d site(s) checked: %d available, %d occupied, %d unknown, %d error",
		visited, counts[domain.SiteAvailable], counts[domain.SiteOccupied],
		counts[domain.SiteUnknown], counts[domain.SiteError])
}
