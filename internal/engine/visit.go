package engine

import (
	"fmt"
	"time"

	"github.com/hochfrequenz/vacancy-verifier/internal/browser"
	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// VisitPlan selects the step sequence for a site visit. It is either
// Authenticated or Public.
type VisitPlan interface {
	isVisitPlan()
}

// Authenticated visits log in with Credential before searching
type Authenticated struct {
	Credential domain.SiteCredential
}

// Public visits search without logging in
type Public struct{}

func (Authenticated) isVisitPlan() {}
func (Public) isVisitPlan()        {}

// PlanFor picks the plan for site
func PlanFor(site domain.Site) VisitPlan {
	if site.Credential != nil {
		return Authenticated{Credential: *site.Credential}
	}
	return Public{}
}

// Steps returns the ordered steps of visiting site for task under plan
func Steps(plan VisitPlan, site domain.Site, task *domain.PropertyTask, settle time.Duration) []browser.Step {
	query := task.SearchQuery()
	wait := browser.Step{
		Kind:        browser.StepWait,
		Description: fmt.Sprintf("Waiting for %s to load", site.Name),
		Settle:      settle,
	}
	search := browser.Step{
		Kind:        browser.StepSearch,
		Description: fmt.Sprintf("Searching %s for %s", site.Name, query),
		Query:       query,
	}
	extract := browser.Step{
		Kind:        browser.StepExtract,
		Description: fmt.Sprintf("Reading listing status for %s", task.Label()),
	}

	switch p := plan.(type) {
	case Authenticated:
		cred := p.Credential
		login := browser.Step{
			Kind:        browser.StepLogin,
			Description: fmt.Sprintf("Logging in to %s as %s", site.Name, cred.Username),
			Credential:  &cred,
		}
		return []browser.Step{login, wait, search, extract}
	case Public:
		return []browser.Step{wait, search, extract}
	default:
		panic(fmt.Sprintf("engine: unknown visit plan %T", plan))
	}
}

func stateForStep(kind browser.StepKind) (State, bool) {
	switch kind {
	case browser.StepLogin:
		return StateAuthenticating, true
	case browser.StepSearch:
		return StateSearching, true
	case browser.StepExtract:
		return StateExtracting, true
	}
	return "", false
}

func thoughtForStep(step browser.Step) string {
	switch step.Kind {
	case browser.StepLogin:
		return "Signing in with the stored credential"
	case browser.StepWait:
		return "Letting the page finish rendering"
	case browser.StepSearch:
		return fmt.Sprintf("Looking for %q in the listings", step.Query)
	case browser.StepExtract:
		return "Checking the listing for vacancy keywords"
	}
	return ""
}
