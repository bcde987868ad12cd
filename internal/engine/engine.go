// Package engine runs verification: it walks properties and sites in order
// on one browser session, streams telemetry while it works, and hands the
// verdicts to a persister when the run ends.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/hochfrequenz/vacancy-verifier/internal/aggregate"
	"github.com/hochfrequenz/vacancy-verifier/internal/browser"
	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
	"github.com/hochfrequenz/vacancy-verifier/internal/telemetry"
)

// Default pacing
const (
	DefaultStepDelay   = time.Second
	DefaultUploadDelay = 350 * time.Millisecond
)

// SiteSource provides the sites to visit for each property
type SiteSource interface {
	Sites() []domain.Site
}

// SiteList is a fixed SiteSource
type SiteList []domain.Site

// Sites returns the list
func (l SiteList) Sites() []domain.Site { return l }

// Persister stores finished verdicts
type Persister interface {
	Persist(ctx context.Context, verdict domain.FinalVerdict) domain.PersistResult
}

// Options configures an Engine. Zero delays disable pacing.
type Options struct {
	Launcher       browser.Launcher
	Sites          SiteSource
	Persister      Persister
	StepDelay      time.Duration
	UploadDelay    time.Duration
	SampleInterval time.Duration
	Settle         time.Duration
	Logger         *slog.Logger
	// OnComplete is called with the summary and verdicts of every run
	OnComplete func(summary domain.RunSummary, verdicts []domain.FinalVerdict)
}

// Engine runs at most one verification run at a time
type Engine struct {
	opts    Options
	logger  *slog.Logger
	machine *machine

	running atomic.Bool

	mu     sync.Mutex
	active *run
	last   *domain.RunSummary
}

type run struct {
	id       string
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu      sync.Mutex
	sampler *telemetry.Sampler

	summary domain.RunSummary
	err     error
}

func (r *run) requestStop() {
	r.stopOnce.Do(func() { close(r.stop) })
	r.mu.Lock()
	sampler := r.sampler
	r.mu.Unlock()
	if sampler != nil {
		sampler.Stop()
	}
}

func (r *run) stopRequested() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

// startSampler starts s unless the run was stopped already
func (r *run) startSampler(ctx context.Context, s *telemetry.Sampler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopRequested() {
		return
	}
	r.sampler = s
	s.Start(ctx)
}

// New creates an engine
func New(opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Sites == nil {
		opts.Sites = SiteList(nil)
	}
	return &Engine{
		opts:    opts,
		logger:  logger,
		machine: newMachine(),
	}
}

// Start begins a run in the background. It returns ErrRunActive while a
// run is in progress.
func (e *Engine) Start(ctx context.Context, tasks []*domain.PropertyTask, ch *telemetry.Channel) error {
	r, err := e.begin()
	if err != nil {
		return err
	}
	go e.execute(ctx, r, tasks, ch)
	return nil
}

// Run executes a run and blocks until it finishes
func (e *Engine) Run(ctx context.Context, tasks []*domain.PropertyTask, ch *telemetry.Channel) (domain.RunSummary, error) {
	r, err := e.begin()
	if err != nil {
		return domain.RunSummary{}, err
	}
	e.execute(ctx, r, tasks, ch)
	return r.summary, r.err
}

func (e *Engine) begin() (*run, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.running.CompareAndSwap(false, true) {
		e.logger.Warn("verification run already active, ignoring start")
		return nil, ErrRunActive
	}
	// running and active change together under mu
	r := &run{
		id:   uuid.New().String(),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
	e.active = r
	return r, nil
}

// Stop asks the active run to stop at the next boundary. It reports
// whether a run was active.
func (e *Engine) Stop() bool {
	e.mu.Lock()
	r := e.active
	e.mu.Unlock()
	if r == nil {
		return false
	}
	e.logger.Info("stop requested", "run", r.id)
	r.requestStop()
	return true
}

// Wait blocks until the active run, if any, has finished
func (e *Engine) Wait() {
	e.mu.Lock()
	r := e.active
	e.mu.Unlock()
	if r != nil {
		<-r.done
	}
}

// Running reports whether a run is active
func (e *Engine) Running() bool {
	return e.running.Load()
}

// State returns the current pipeline state
func (e *Engine) State() State {
	return e.machine.current()
}

// LastSummary returns the summary of the most recent finished run
func (e *Engine) LastSummary() (domain.RunSummary, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return domain.RunSummary{}, false
	}
	return *e.last, true
}

func (e *Engine) transition(to State) {
	if err := e.machine.transition(to); err != nil {
		e.logger.Error("state machine", "error", err)
	}
}

func (e *Engine) execute(ctx context.Context, r *run, tasks []*domain.PropertyTask, ch *telemetry.Channel) {
	logger := e.logger.With("run", r.id)
	agg := aggregate.New()
	r.summary = domain.RunSummary{
		ID:         r.id,
		StartedAt:  time.Now(),
		Properties: len(tasks),
	}

	var session browser.Session
	teardown := func() {
		r.mu.Lock()
		sampler := r.sampler
		r.mu.Unlock()
		if sampler != nil {
			sampler.Stop()
		}
		if session != nil {
			if err := session.Close(); err != nil {
				logger.Debug("closing browser session", "error", err)
			}
		}
	}

	defer func() {
		if p := recover(); p != nil {
			logger.Error("verification run panicked", "panic", p)
			teardown()
			e.transition(StateError)
			r.err = fmt.Errorf("verification run panicked: %v", p)
			r.summary.Outcome = domain.RunFailed
			r.summary.Message = r.err.Error()
			ch.Error(r.err.Error())
			ch.Update(func(s *telemetry.Snapshot) {
				s.Status = telemetry.StatusError
				s.CurrentAction = "Verification failed"
				s.AIThought = ""
			})
		}
		e.finish(r, agg, logger)
	}()

	e.transition(StateInitializing)
	ch.Update(func(s *telemetry.Snapshot) {
		s.Status = telemetry.StatusConnecting
		s.CurrentSite = ""
		s.CurrentAction = "Launching browser"
		s.AIThought = fmt.Sprintf("Preparing to verify %d properties", len(tasks))
		s.Progress = telemetry.Progress{Current: 0, Total: len(tasks)}
	})

	var err error
	session, err = e.opts.Launcher.Launch(ctx)
	if err != nil {
		initErr := &SessionInitError{Err: err}
		logger.Error("browser session failed to start", "error", err)
		e.transition(StateError)
		r.err = initErr
		r.summary.Outcome = domain.RunFailed
		r.summary.Message = initErr.Error()
		ch.Error(initErr.Error())
		ch.Update(func(s *telemetry.Snapshot) {
			s.Status = telemetry.StatusError
			s.CurrentAction = "Browser session failed to start"
			s.AIThought = ""
		})
		return
	}
	defer teardown()

	r.startSampler(ctx, telemetry.NewSampler(e.opts.SampleInterval, session.Screenshot, ch, logger))
	ch.Update(func(s *telemetry.Snapshot) {
		s.Status = telemetry.StatusRunning
		s.CurrentAction = "Browser ready"
	})
	logger.Info("verification run started", "properties", len(tasks))

	stopped := false
	for i, task := range tasks {
		if e.shouldStop(ctx, r) {
			stopped = true
			break
		}
		if task.Status.IsTerminal() {
			logger.Info("skipping finished property", "property", task.Label(), "status", task.Status)
			continue
		}
		if !e.verifyProperty(ctx, r, logger, session, agg, ch, task, i, len(tasks)) {
			stopped = true
			break
		}
		r.summary.Completed++
	}

	teardown()
	e.transition(StateUploading)
	e.upload(ctx, r, logger, agg.Verdicts(), ch)

	message := ""
	switch {
	case stopped:
		r.summary.Outcome = domain.RunStopped
		message = fmt.Sprintf("Verification stopped: %d of %d properties verified", r.summary.Completed, len(tasks))
	case r.summary.UploadsFailed > 0:
		r.summary.Outcome = domain.RunPartial
		message = fmt.Sprintf("Verification finished: %d of %d results saved", r.summary.Uploaded, r.summary.Uploaded+r.summary.UploadsFailed)
	default:
		r.summary.Outcome = domain.RunCompleted
		message = fmt.Sprintf("Verification complete: %d properties verified", r.summary.Completed)
	}
	r.summary.Message = message
	ch.Update(func(s *telemetry.Snapshot) {
		s.Status = telemetry.StatusIdle
		s.CurrentSite = ""
		s.CurrentAction = message
		s.AIThought = ""
		s.Progress.SiteName = ""
	})
	logger.Info("verification run finished", "outcome", r.summary.Outcome,
		"completed", r.summary.Completed, "uploaded", r.summary.Uploaded, "upload_failures", r.summary.UploadsFailed)
}

// finish records the summary and releases the single-flight guard
func (e *Engine) finish(r *run, agg *aggregate.Aggregator, logger *slog.Logger) {
	r.summary.FinishedAt = time.Now()
	if e.machine.current() != StateIdle {
		e.transition(StateIdle)
	}
	if e.machine.current() != StateIdle {
		logger.Warn("forcing engine back to idle", "state", e.machine.current())
		e.machine.reset()
	}

	if e.opts.OnComplete != nil {
		e.opts.OnComplete(r.summary, agg.Verdicts())
	}

	summary := r.summary
	e.mu.Lock()
	e.last = &summary
	e.active = nil
	e.running.Store(false)
	e.mu.Unlock()
	close(r.done)
}

func (e *Engine) shouldStop(ctx context.Context, r *run) bool {
	return r.stopRequested() || ctx.Err() != nil
}

// pace waits StepDelay unless the run is stopped first
func (e *Engine) pace(ctx context.Context, r *run) error {
	if e.shouldStop(ctx, r) {
		return errStopped
	}
	if e.opts.StepDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(e.opts.StepDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-r.stop:
		return errStopped
	case <-ctx.Done():
		return errStopped
	}
}

// verifyProperty visits every site for task. It returns false when the
// run was stopped before the property finished.
func (e *Engine) verifyProperty(ctx context.Context, r *run, logger *slog.Logger, session browser.Session,
	agg *aggregate.Aggregator, ch *telemetry.Channel, task *domain.PropertyTask, index, total int) bool {

	task.Status = domain.TaskInProgress
	sites := e.opts.Sites.Sites()
	logger = logger.With("property", task.Label())
	logger.Info("verifying property", "sites", len(sites))

	ch.Update(func(s *telemetry.Snapshot) {
		s.Status = telemetry.StatusRunning
		s.CurrentAction = fmt.Sprintf("Verifying %s", task.Label())
		s.AIThought = fmt.Sprintf("Checking %d site(s) for %s", len(sites), task.Label())
		s.Progress = telemetry.Progress{Current: index + 1, Total: total}
	})

	visited := make([]domain.Site, 0, len(sites))
	for _, site := range sites {
		if e.shouldStop(ctx, r) {
			task.Status = domain.TaskError
			return false
		}

		outcome, err := e.visitSite(ctx, r, session, ch, site, task)
		if errors.Is(err, errStopped) {
			task.Status = domain.TaskError
			return false
		}
		visited = append(visited, site)
		if err != nil {
			logger.Warn("site visit failed", "site", site.Name, "error", err)
			outcome = aggregate.Outcome{Status: domain.SiteError, Notes: err.Error()}
			ch.Action(telemetry.ActionInfo, site.Name, fmt.Sprintf("%s could not be checked, moving to next site", site.Name))
		}

		e.transition(StateRecording)
		result := agg.RecordSiteOutcome(task, site, outcome)
		logger.Debug("site outcome", "site", site.Name, "status", result.Status, "notes", result.Notes)
	}

	verdict := agg.Finalize(task, visited)
	task.Result = &verdict
	task.Status = domain.TaskCompleted
	ch.PropertyResult(task)
	logger.Info("property verified", "status", verdict.FinalStatus)
	return true
}

func (e *Engine) visitSite(ctx context.Context, r *run, session browser.Session, ch *telemetry.Channel,
	site domain.Site, task *domain.PropertyTask) (aggregate.Outcome, error) {

	e.transition(StateNavigating)
	ch.Update(func(s *telemetry.Snapshot) {
		s.CurrentSite = site.Name
		s.CurrentAction = fmt.Sprintf("Navigating to %s", site.Name)
		s.Progress.SiteName = site.Name
	})
	ch.Action(telemetry.ActionNavigate, site.URL, fmt.Sprintf("Opening %s", site.Name))

	if site.URL == "" {
		return aggregate.Outcome{}, &SiteVisitError{Site: site.Name, Step: "navigate", Err: errors.New("no URL known for site")}
	}
	if err := session.Navigate(ctx, site.URL); err != nil {
		return aggregate.Outcome{}, &SiteVisitError{Site: site.Name, Step: "navigate", Err: err}
	}

	for _, step := range Steps(PlanFor(site), site, task, e.opts.Settle) {
		if err := e.pace(ctx, r); err != nil {
			return aggregate.Outcome{}, err
		}
		if state, ok := stateForStep(step.Kind); ok {
			e.transition(state)
		}
		ch.Update(func(s *telemetry.Snapshot) {
			s.CurrentAction = step.Description
			s.AIThought = thoughtForStep(step)
		})
		ch.Action(telemetry.ActionType(step.Kind), site.Name, step.Description)

		if err := session.Perform(ctx, step); err != nil {
			return aggregate.Outcome{}, &SiteVisitError{Site: site.Name, Step: string(step.Kind), Err: err}
		}
	}

	text, err := session.PageText(ctx)
	if err != nil {
		return aggregate.Outcome{}, &SiteVisitError{Site: site.Name, Step: "read", Err: err}
	}
	status, notes := Classify(text)
	return aggregate.Outcome{Status: status, LastUpdated: LastUpdated(text), Notes: notes}, nil
}

// upload hands verdicts to the persister in order. Stop does not interrupt
// it; a cancelled ctx does.
func (e *Engine) upload(ctx context.Context, r *run, logger *slog.Logger, verdicts []domain.FinalVerdict, ch *telemetry.Channel) {
	if e.opts.Persister == nil || len(verdicts) == 0 {
		return
	}
	ch.Update(func(s *telemetry.Snapshot) {
		s.CurrentSite = ""
		s.CurrentAction = fmt.Sprintf("Saving %d result(s)", len(verdicts))
		s.AIThought = ""
	})

	for i, v := range verdicts {
		if i > 0 && e.opts.UploadDelay > 0 {
			timer := time.NewTimer(e.opts.UploadDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
			}
		}
		label := v.PropertyName
		if v.RoomNumber != "" {
			label += " " + v.RoomNumber
		}
		if err := ctx.Err(); err != nil {
			r.summary.UploadsFailed += len(verdicts) - i
			logger.Warn("upload interrupted", "remaining", len(verdicts)-i, "error", err)
			break
		}

		res := e.opts.Persister.Persist(ctx, v)
		if !res.Success {
			perr := &PersistenceError{Property: label, Err: errors.New(res.Error)}
			logger.Warn("saving verdict failed", "error", perr)
			r.summary.UploadsFailed++
			continue
		}
		r.summary.Uploaded++
		logger.Debug("verdict saved", "property", label, "page_id", res.PageID)
	}

	if r.summary.UploadsFailed > 0 {
		ch.Action(telemetry.ActionInfo, "",
			fmt.Sprintf("%d of %d result(s) could not be saved", r.summary.UploadsFailed, len(verdicts)))
	}
}
