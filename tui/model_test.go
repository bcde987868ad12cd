package tui

import (
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
	"github.com/hochfrequenz/vacancy-verifier/internal/telemetry"
)

type fakeConn struct {
	mu   sync.Mutex
	sent []telemetry.Envelope
	in   chan telemetry.EnvelopeRaw
	err  error
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan telemetry.EnvelopeRaw, 16)}
}

func (f *fakeConn) Receive() (telemetry.EnvelopeRaw, error) {
	env, ok := <-f.in
	if !ok {
		return env, errors.New("connection closed")
	}
	return env, nil
}

func (f *fakeConn) Send(env telemetry.Envelope) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, env)
	return f.err
}

func (f *fakeConn) Close() error { return nil }

func raw(t *testing.T, typ string, data interface{}) telemetry.EnvelopeRaw {
	t.Helper()
	b, err := json.Marshal(data)
	if err != nil {
		t.Fatal(err)
	}
	return telemetry.EnvelopeRaw{Type: typ, Data: b}
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func TestNewModel(t *testing.T) {
	m := NewModel(ModelConfig{Conn: newFakeConn(), URL: "ws://localhost:8080/ws"})
	if !m.connected {
		t.Error("model with a connection should start connected")
	}
	if m.Snapshot().Status != telemetry.StatusIdle {
		t.Errorf("initial status = %s, want idle", m.Snapshot().Status)
	}
	if m.activeTab != TabLive {
		t.Errorf("activeTab = %d, want live", m.activeTab)
	}

	if NewModel(ModelConfig{}).connected {
		t.Error("model without a connection should start disconnected")
	}
}

func TestModel_MergesBrowserState(t *testing.T) {
	m := NewModel(ModelConfig{Conn: newFakeConn()})

	m, _ = update(m, EnvelopeMsg{Env: raw(t, telemetry.TypeBrowserState, telemetry.Snapshot{
		Status:        telemetry.StatusRunning,
		CurrentSite:   "SUUMO",
		CurrentAction: "Searching",
		Progress:      telemetry.Progress{Current: 1, Total: 3},
	})})
	m, _ = update(m, EnvelopeMsg{Env: raw(t, telemetry.TypeBrowserState, telemetry.ScreenshotPatch{
		Screenshot: "data:image/png;base64,iVBORw0KGgo=",
	})})

	s := m.Snapshot()
	if s.CurrentSite != "SUUMO" || s.Status != telemetry.StatusRunning || s.Progress.Total != 3 {
		t.Errorf("patch overwrote state: %+v", s)
	}
	if s.Screenshot == "" || m.screenshotLen != 9 {
		t.Errorf("screenshot not merged: len=%d %q", m.screenshotLen, s.Screenshot)
	}

	// full snapshots leave the screenshot out; the last sample stays
	m, _ = update(m, EnvelopeMsg{Env: raw(t, telemetry.TypeBrowserState, telemetry.Snapshot{
		Status:      telemetry.StatusIdle,
		CurrentSite: "",
	})})
	if m.Snapshot().Screenshot == "" {
		t.Error("full snapshot cleared the screenshot")
	}
	if m.Snapshot().Status != telemetry.StatusIdle {
		t.Errorf("status = %s, want idle", m.Snapshot().Status)
	}
}

func TestModel_CollectsEvents(t *testing.T) {
	m := NewModel(ModelConfig{Conn: newFakeConn()})

	m, _ = update(m, EnvelopeMsg{Env: raw(t, telemetry.TypeAIAction, telemetry.Action{
		Type: telemetry.ActionNavigate, Target: "SUUMO", Description: "Opening SUUMO", Timestamp: time.Now(),
	})})

	task := &domain.PropertyTask{ID: "t1", PropertyName: "Sunny Heights", Status: domain.TaskCompleted,
		Result: &domain.FinalVerdict{PropertyName: "Sunny Heights", FinalStatus: domain.FinalAvailable}}
	m, _ = update(m, EnvelopeMsg{Env: raw(t, telemetry.TypePropertyResult, task)})
	task.Result.FinalStatus = domain.FinalOccupied
	m, _ = update(m, EnvelopeMsg{Env: raw(t, telemetry.TypePropertyResult, task)})

	m, _ = update(m, EnvelopeMsg{Env: raw(t, telemetry.TypeError, telemetry.ErrorMessage{Message: "browser crashed"})})

	if len(m.Actions()) != 1 || m.Actions()[0].Target != "SUUMO" {
		t.Errorf("actions = %+v", m.Actions())
	}
	if len(m.Results()) != 1 {
		t.Fatalf("results = %d, want the repeated property merged", len(m.Results()))
	}
	if m.Results()[0].Result.FinalStatus != domain.FinalOccupied {
		t.Errorf("result not replaced: %+v", m.Results()[0].Result)
	}
	if m.lastError != "browser crashed" {
		t.Errorf("lastError = %q", m.lastError)
	}
	if counts := m.countByStatus(); counts[domain.FinalOccupied] != 1 {
		t.Errorf("counts = %v", counts)
	}
}

func TestModel_ActionLogIsBounded(t *testing.T) {
	m := NewModel(ModelConfig{Conn: newFakeConn()})
	for i := 0; i < maxActions+10; i++ {
		m.apply(raw(t, telemetry.TypeAIAction, telemetry.Action{Type: telemetry.ActionWait, Target: "x"}))
	}
	if len(m.Actions()) != maxActions {
		t.Errorf("kept %d actions, want %d", len(m.Actions()), maxActions)
	}
}

func TestModel_Commands(t *testing.T) {
	conn := newFakeConn()
	tasks := []*domain.PropertyTask{{PropertyName: "Sunny Heights"}}
	m := NewModel(ModelConfig{Conn: conn, Tasks: tasks})

	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	if cmd == nil {
		t.Fatal("g returned no command")
	}
	if sent, ok := cmd().(SentMsg); !ok || sent.Type != telemetry.TypeStartVerification || sent.Err != nil {
		t.Errorf("start command result = %+v", sent)
	}

	m, cmd = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if cmd == nil {
		t.Fatal("s returned no command")
	}
	cmd()

	if len(conn.sent) != 2 || conn.sent[0].Type != telemetry.TypeStartVerification || conn.sent[1].Type != telemetry.TypeStopVerification {
		t.Fatalf("sent = %+v", conn.sent)
	}
	start := conn.sent[0].Data.(telemetry.StartCommand)
	if len(start.Properties) != 1 || start.Properties[0].PropertyName != "Sunny Heights" {
		t.Errorf("start payload = %+v", start)
	}

	conn.err = errors.New("broken pipe")
	m, _ = update(m, SentMsg{Type: telemetry.TypeStopVerification, Err: conn.err})
	if !strings.Contains(m.notice, "broken pipe") {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestModel_StartWithoutTasks(t *testing.T) {
	m := NewModel(ModelConfig{Conn: newFakeConn()})
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("g")})
	if cmd != nil {
		t.Error("g without tasks should not send anything")
	}
	if m.notice != "no task file loaded" {
		t.Errorf("notice = %q", m.notice)
	}
}

func TestModel_Disconnect(t *testing.T) {
	conn := newFakeConn()
	m := NewModel(ModelConfig{Conn: conn})

	close(conn.in)
	msg := receiveCmd(conn)()
	m, _ = update(m, msg)
	if m.connected {
		t.Error("still connected after DisconnectedMsg")
	}

	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("s")})
	if cmd != nil || m.notice != "not connected" {
		t.Errorf("stop while disconnected: cmd=%v notice=%q", cmd != nil, m.notice)
	}
}

func TestModel_TabSwitching(t *testing.T) {
	m := NewModel(ModelConfig{})
	m.width, m.height = 100, 40

	for _, want := range []int{TabResults, TabActions, TabLive} {
		m, _ = update(m, tea.KeyMsg{Type: tea.KeyTab})
		if m.activeTab != want {
			t.Errorf("activeTab = %d, want %d", m.activeTab, want)
		}
	}

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("a")})
	if m.activeTab != TabActions {
		t.Errorf("a: activeTab = %d", m.activeTab)
	}
}

func TestModel_SelectionStaysInRange(t *testing.T) {
	m := NewModel(ModelConfig{})
	m.activeTab = TabResults
	m.results = []*domain.PropertyTask{{ID: "1"}, {ID: "2"}}

	for i := 0; i < 5; i++ {
		m, _ = update(m, tea.KeyMsg{Type: tea.KeyDown})
	}
	if m.selectedRow != 1 {
		t.Errorf("selectedRow = %d, want 1", m.selectedRow)
	}
	for i := 0; i < 5; i++ {
		m, _ = update(m, tea.KeyMsg{Type: tea.KeyUp})
	}
	if m.selectedRow != 0 {
		t.Errorf("selectedRow = %d, want 0", m.selectedRow)
	}
}

func TestView(t *testing.T) {
	m := NewModel(ModelConfig{Conn: newFakeConn(), URL: "ws://localhost:8080/ws"})
	if m.View() != "Loading..." {
		t.Errorf("View before size = %q", m.View())
	}

	m, _ = update(m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m.apply(raw(t, telemetry.TypeBrowserState, telemetry.Snapshot{
		Status: telemetry.StatusRunning, CurrentSite: "HOME'S", CurrentAction: "Reading results",
	}))
	m.results = []*domain.PropertyTask{{
		ID: "1", PropertyName: "Sunny Heights", Status: domain.TaskCompleted,
		Result: &domain.FinalVerdict{FinalStatus: domain.FinalNeedsCall, LastVerified: time.Now()},
	}}

	live := m.View()
	for _, want := range []string{"Vacancy Verifier", "HOME'S", "Reading results", "connected"} {
		if !strings.Contains(live, want) {
			t.Errorf("live view missing %q", want)
		}
	}

	m.activeTab = TabResults
	results := m.View()
	for _, want := range []string{"Sunny Heights", "needs_call"} {
		if !strings.Contains(results, want) {
			t.Errorf("results view missing %q", want)
		}
	}
}

func TestHelpers(t *testing.T) {
	if got := truncate("サンライズ代々木", 4); got != "サンラ…" {
		t.Errorf("truncate = %q", got)
	}
	if got := progressBar(1, 4, 8); got != "[██░░░░░░]" {
		t.Errorf("progressBar = %q", got)
	}
	if got := screenshotSize("data:image/png;base64,AAAA"); got != 3 {
		t.Errorf("screenshotSize = %d, want 3", got)
	}
	if got := screenshotSize("garbage"); got != 0 {
		t.Errorf("screenshotSize(garbage) = %d", got)
	}
}
