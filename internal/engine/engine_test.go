package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/hochfrequenz/vacancy-verifier/internal/browser"
	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
	"github.com/hochfrequenz/vacancy-verifier/internal/sites"
	"github.com/hochfrequenz/vacancy-verifier/internal/telemetry"
)

type recorder struct {
	mu   sync.Mutex
	envs []telemetry.Envelope
}

func (r *recorder) Send(env telemetry.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.envs = append(r.envs, env)
	return nil
}

func (r *recorder) ofType(typ string) []telemetry.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []telemetry.Envelope
	for _, e := range r.envs {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

type persisterFunc func(ctx context.Context, v domain.FinalVerdict) domain.PersistResult

func (f persisterFunc) Persist(ctx context.Context, v domain.FinalVerdict) domain.PersistResult {
	return f(ctx, v)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTasks(names ...string) []*domain.PropertyTask {
	tasks := make([]*domain.PropertyTask, len(names))
	for i, n := range names {
		tasks[i] = &domain.PropertyTask{ID: n, PropertyName: n, RoomNumber: "101", Status: domain.TaskPending}
	}
	return tasks
}

func newChannel(rec *recorder) *telemetry.Channel {
	return telemetry.NewChannel(rec, telemetry.WithLogger(testLogger()), telemetry.WithQueueSize(4096))
}

func TestEngine_EndToEndDemoMode(t *testing.T) {
	demo := sites.DemoSites()
	launcher := &browser.FixtureLauncher{
		Pages: map[string]string{
			demo[0].URL: "サニーハイツ 101号室 募集中 更新日：2026年4月1日",
			demo[1].URL: "",
		},
	}
	var mu sync.Mutex
	var persisted []string
	e := New(Options{
		Launcher: launcher,
		Sites:    SiteList(demo),
		Persister: persisterFunc(func(_ context.Context, v domain.FinalVerdict) domain.PersistResult {
			mu.Lock()
			defer mu.Unlock()
			persisted = append(persisted, v.PropertyName)
			return domain.PersistResult{Success: true, PageID: "p"}
		}),
		Logger: testLogger(),
	})

	rec := &recorder{}
	ch := newChannel(rec)
	tasks := newTasks("Sunny Heights", "Maple Court")

	summary, err := e.Run(context.Background(), tasks, ch)
	ch.Close()
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	sessions := launcher.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("launched %d sessions, want 1", len(sessions))
	}
	if visits := sessions[0].Visits(); len(visits) != 4 {
		t.Errorf("got %d site visits, want 4: %v", len(visits), visits)
	}
	if !sessions[0].Closed() {
		t.Error("session not closed after run")
	}

	results := rec.ofType(telemetry.TypePropertyResult)
	if len(results) != 2 {
		t.Fatalf("got %d property_result events, want 2", len(results))
	}
	for i, want := range []string{"Sunny Heights", "Maple Court"} {
		got := results[i].Data.(*domain.PropertyTask)
		if got.PropertyName != want {
			t.Errorf("property_result %d = %s, want %s", i, got.PropertyName, want)
		}
		if got.Status != domain.TaskCompleted || got.Result == nil {
			t.Errorf("property_result %d not terminal: %+v", i, got)
		}
	}

	for _, task := range tasks {
		if task.Result == nil {
			t.Fatalf("%s has no verdict", task.PropertyName)
		}
		if task.Result.FinalStatus != domain.FinalAvailable {
			t.Errorf("%s verdict = %s, want available", task.PropertyName, task.Result.FinalStatus)
		}
		vr := task.Result.VerificationResults
		if len(vr) != 2 || vr[0].Status != domain.SiteAvailable || vr[1].Status != domain.SiteUnknown {
			t.Errorf("%s site results = %+v", task.PropertyName, vr)
		}
		if vr[0].LastUpdated == nil || vr[0].LastUpdated.Month() != time.April {
			t.Errorf("last updated not parsed: %v", vr[0].LastUpdated)
		}
	}

	if len(persisted) != 2 || persisted[0] != "Sunny Heights" || persisted[1] != "Maple Court" {
		t.Errorf("persisted %v, want task order", persisted)
	}
	if summary.Outcome != domain.RunCompleted || summary.Completed != 2 || summary.Uploaded != 2 {
		t.Errorf("summary = %+v", summary)
	}
	if snap := ch.Snapshot(); snap.Status != telemetry.StatusIdle {
		t.Errorf("final status = %s, want idle", snap.Status)
	}
	if e.State() != StateIdle || e.Running() {
		t.Errorf("engine not idle after run: state=%s running=%v", e.State(), e.Running())
	}
	if last, ok := e.LastSummary(); !ok || last.ID != summary.ID {
		t.Errorf("LastSummary() = %+v, %v", last, ok)
	}
}

func TestEngine_StartTwiceRunsOnce(t *testing.T) {
	navigated := make(chan struct{}, 16)
	launcher := &browser.FixtureLauncher{
		OnNavigate: func(string) {
			select {
			case navigated <- struct{}{}:
			default:
			}
		},
	}
	e := New(Options{
		Launcher:  launcher,
		Sites:     SiteList(sites.DemoSites()),
		StepDelay: time.Hour,
		Logger:    testLogger(),
	})
	ch := newChannel(&recorder{})
	defer ch.Close()

	if err := e.Start(context.Background(), newTasks("a"), ch); err != nil {
		t.Fatalf("first Start() = %v", err)
	}
	if err := e.Start(context.Background(), newTasks("b"), ch); !errors.Is(err, ErrRunActive) {
		t.Errorf("second Start() = %v, want ErrRunActive", err)
	}
	if _, err := e.Run(context.Background(), newTasks("c"), ch); !errors.Is(err, ErrRunActive) {
		t.Errorf("Run() during active run = %v, want ErrRunActive", err)
	}

	<-navigated
	e.Stop()
	e.Wait()

	if n := len(launcher.Sessions()); n != 1 {
		t.Errorf("launched %d sessions, want 1", n)
	}
}

func TestEngine_StopMidRun(t *testing.T) {
	navigated := make(chan struct{}, 16)
	launcher := &browser.FixtureLauncher{
		OnNavigate: func(string) {
			select {
			case navigated <- struct{}{}:
			default:
			}
		},
	}
	var completed domain.RunSummary
	e := New(Options{
		Launcher:       launcher,
		Sites:          SiteList(sites.DemoSites()),
		StepDelay:      time.Hour,
		SampleInterval: 5 * time.Millisecond,
		Logger:         testLogger(),
		OnComplete:     func(s domain.RunSummary, _ []domain.FinalVerdict) { completed = s },
	})
	rec := &recorder{}
	ch := newChannel(rec)
	tasks := newTasks("first", "second")

	if err := e.Start(context.Background(), tasks, ch); err != nil {
		t.Fatal(err)
	}
	select {
	case <-navigated:
	case <-time.After(5 * time.Second):
		t.Fatal("run never navigated")
	}
	if !e.Stop() {
		t.Fatal("Stop() reported no active run")
	}
	e.Wait()
	ch.Close()

	if !launcher.Sessions()[0].Closed() {
		t.Error("session still open after stop")
	}
	if tasks[0].Status != domain.TaskError || tasks[0].Result != nil {
		t.Errorf("interrupted task = %s with result %v, want error without verdict", tasks[0].Status, tasks[0].Result)
	}
	if tasks[1].Status != domain.TaskPending {
		t.Errorf("untouched task = %s, want pending", tasks[1].Status)
	}
	if snap := ch.Snapshot(); snap.Status != telemetry.StatusIdle {
		t.Errorf("final status = %s, want idle", snap.Status)
	}
	if completed.Outcome != domain.RunStopped {
		t.Errorf("outcome = %s, want stopped", completed.Outcome)
	}
	if len(rec.ofType(telemetry.TypePropertyResult)) != 0 {
		t.Error("stopped property should not emit a result")
	}
	if e.Running() || e.Stop() {
		t.Error("engine still reports an active run")
	}
}

func TestEngine_SessionInitFailure(t *testing.T) {
	e := New(Options{
		Launcher: &browser.FixtureLauncher{LaunchErr: errors.New("chrome not found")},
		Sites:    SiteList(sites.DemoSites()),
		Logger:   testLogger(),
	})
	rec := &recorder{}
	ch := newChannel(rec)
	tasks := newTasks("a")

	summary, err := e.Run(context.Background(), tasks, ch)
	ch.Close()

	var initErr *SessionInitError
	if !errors.As(err, &initErr) {
		t.Fatalf("Run() error = %v, want SessionInitError", err)
	}
	if summary.Outcome != domain.RunFailed {
		t.Errorf("outcome = %s, want failed", summary.Outcome)
	}
	if len(rec.ofType(telemetry.TypeError)) != 1 {
		t.Error("expected one error message")
	}
	if snap := ch.Snapshot(); snap.Status != telemetry.StatusError {
		t.Errorf("final status = %s, want error", snap.Status)
	}
	if tasks[0].Status != domain.TaskPending {
		t.Errorf("task = %s, want pending", tasks[0].Status)
	}
	if e.State() != StateIdle || e.Running() {
		t.Error("engine did not return to idle")
	}
}

func TestEngine_SiteFailureMovesOn(t *testing.T) {
	demo := sites.DemoSites()
	launcher := &browser.FixtureLauncher{
		Pages:        map[string]string{demo[1].URL: "この部屋は成約済みです"},
		NavigateErrs: map[string]error{demo[0].URL: errors.New("net::ERR_TIMED_OUT")},
	}
	unresolved := domain.Site{Name: "Manual Board"}
	e := New(Options{
		Launcher: launcher,
		Sites:    SiteList(append(demo, unresolved)),
		Logger:   testLogger(),
	})
	rec := &recorder{}
	ch := newChannel(rec)
	tasks := newTasks("a")

	summary, err := e.Run(context.Background(), tasks, ch)
	ch.Close()
	if err != nil {
		t.Fatal(err)
	}

	vr := tasks[0].Result.VerificationResults
	if len(vr) != 3 {
		t.Fatalf("got %d results, want 3", len(vr))
	}
	want := []domain.SiteStatus{domain.SiteError, domain.SiteOccupied, domain.SiteError}
	for i := range want {
		if vr[i].Status != want[i] {
			t.Errorf("result %d = %s, want %s", i, vr[i].Status, want[i])
		}
	}
	if tasks[0].Result.FinalStatus != domain.FinalOccupied {
		t.Errorf("verdict = %s, want occupied", tasks[0].Result.FinalStatus)
	}

	var infos int
	for _, env := range rec.ofType(telemetry.TypeAIAction) {
		if env.Data.(telemetry.Action).Type == telemetry.ActionInfo {
			infos++
		}
	}
	if infos != 2 {
		t.Errorf("got %d moving-on actions, want 2", infos)
	}
	if summary.Outcome != domain.RunCompleted {
		t.Errorf("outcome = %s", summary.Outcome)
	}
}

func TestEngine_AuthenticatedVisitLogsIn(t *testing.T) {
	site := domain.Site{
		Name:       "REINS",
		URL:        "https://system.reins.jp/",
		Credential: &domain.SiteCredential{SiteName: "REINS", Username: "agent01", Password: "pw"},
	}
	launcher := &browser.FixtureLauncher{DefaultPage: "空室あり"}
	e := New(Options{Launcher: launcher, Sites: SiteList{site}, Logger: testLogger()})
	ch := newChannel(&recorder{})

	if _, err := e.Run(context.Background(), newTasks("a"), ch); err != nil {
		t.Fatal(err)
	}
	ch.Close()

	steps := launcher.Sessions()[0].Steps()
	kinds := make([]browser.StepKind, len(steps))
	for i, s := range steps {
		kinds[i] = s.Kind
	}
	want := []browser.StepKind{browser.StepLogin, browser.StepWait, browser.StepSearch, browser.StepExtract}
	if len(kinds) != len(want) {
		t.Fatalf("steps = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Errorf("step %d = %s, want %s", i, kinds[i], want[i])
		}
	}
	if steps[0].Credential.Username != "agent01" {
		t.Errorf("login used %+v", steps[0].Credential)
	}
}

func TestEngine_PersistenceFailureIsPartial(t *testing.T) {
	calls := 0
	e := New(Options{
		Launcher: &browser.FixtureLauncher{DefaultPage: "募集中"},
		Sites:    SiteList(sites.DemoSites()),
		Persister: persisterFunc(func(context.Context, domain.FinalVerdict) domain.PersistResult {
			calls++
			if calls == 1 {
				return domain.PersistResult{Error: "rate limited"}
			}
			return domain.PersistResult{Success: true}
		}),
		Logger: testLogger(),
	})
	ch := newChannel(&recorder{})
	tasks := newTasks("a", "b")

	summary, err := e.Run(context.Background(), tasks, ch)
	ch.Close()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Outcome != domain.RunPartial || summary.Uploaded != 1 || summary.UploadsFailed != 1 {
		t.Errorf("summary = %+v", summary)
	}
	for _, task := range tasks {
		if task.Status != domain.TaskCompleted {
			t.Errorf("%s = %s, upload failure must not undo results", task.PropertyName, task.Status)
		}
	}
	if snap := ch.Snapshot(); snap.Status != telemetry.StatusIdle {
		t.Errorf("final status = %s, want idle", snap.Status)
	}
}

func TestEngine_SkipsFinishedTasks(t *testing.T) {
	launcher := &browser.FixtureLauncher{DefaultPage: "募集中"}
	e := New(Options{Launcher: launcher, Sites: SiteList(sites.DemoSites()), Logger: testLogger()})
	ch := newChannel(&recorder{})
	tasks := newTasks("done", "todo")
	tasks[0].Status = domain.TaskCompleted

	if _, err := e.Run(context.Background(), tasks, ch); err != nil {
		t.Fatal(err)
	}
	ch.Close()

	if n := len(launcher.Sessions()[0].Visits()); n != 2 {
		t.Errorf("got %d visits, want 2", n)
	}
	if tasks[0].Result != nil {
		t.Error("finished task was re-verified")
	}
}

func TestEngine_NoSites(t *testing.T) {
	e := New(Options{Launcher: &browser.FixtureLauncher{}, Logger: testLogger()})
	ch := newChannel(&recorder{})
	tasks := newTasks("a")

	if _, err := e.Run(context.Background(), tasks, ch); err != nil {
		t.Fatal(err)
	}
	ch.Close()
	if tasks[0].Result == nil || tasks[0].Result.FinalStatus != domain.FinalUnknown {
		t.Errorf("result = %+v, want unknown verdict", tasks[0].Result)
	}
}

func TestEngine_CancelledContextStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	launcher := &browser.FixtureLauncher{OnNavigate: func(string) { cancel() }}
	e := New(Options{
		Launcher:  launcher,
		Sites:     SiteList(sites.DemoSites()),
		StepDelay: time.Hour,
		Logger:    testLogger(),
	})
	ch := newChannel(&recorder{})

	summary, err := e.Run(ctx, newTasks("a"), ch)
	ch.Close()
	if err != nil {
		t.Fatal(err)
	}
	if summary.Outcome != domain.RunStopped {
		t.Errorf("outcome = %s, want stopped", summary.Outcome)
	}
}

func TestEngine_TasksSharingAnIDKeepTheirOwnResults(t *testing.T) {
	demo := sites.DemoSites()
	launcher := &browser.FixtureLauncher{DefaultPage: "募集中"}
	e := New(Options{Launcher: launcher, Sites: SiteList(demo), Logger: testLogger()})
	ch := newChannel(&recorder{})
	tasks := newTasks("Sunny Heights", "Maple Court")
	tasks[0].ID, tasks[1].ID = "1", "1"

	if _, err := e.Run(context.Background(), tasks, ch); err != nil {
		t.Fatal(err)
	}
	ch.Close()

	for _, task := range tasks {
		if task.Result == nil {
			t.Fatalf("%s has no verdict", task.PropertyName)
		}
		if n := len(task.Result.VerificationResults); n != len(demo) {
			t.Errorf("%s verdict has %d site results, want %d", task.PropertyName, n, len(demo))
		}
	}
}

func TestEngine_StopSeesRunAsSoonAsItIsRunning(t *testing.T) {
	for i := 0; i < 50; i++ {
		e := New(Options{
			Launcher:  &browser.FixtureLauncher{},
			Sites:     SiteList(sites.DemoSites()),
			StepDelay: time.Hour,
			Logger:    testLogger(),
		})
		ch := newChannel(&recorder{})

		started := make(chan error, 1)
		go func() { started <- e.Start(context.Background(), newTasks("a"), ch) }()
		for !e.Running() {
			time.Sleep(time.Microsecond)
		}
		if !e.Stop() {
			t.Fatal("Stop() missed a run that reports Running()")
		}
		if err := <-started; err != nil {
			t.Fatal(err)
		}
		e.Wait()
		ch.Close()
	}
}
