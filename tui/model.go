// Package tui is a terminal observer for a running verification server. It
// follows the telemetry stream over the observer socket and can start and
// stop runs.
package tui

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
	"github.com/hochfrequenz/vacancy-verifier/internal/telemetry"
)

// maxActions bounds the action log kept in memory
const maxActions = 200

// Tabs
const (
	TabLive = iota
	TabResults
	TabActions
	tabCount
)

// Model is the TUI application model
type Model struct {
	conn Conn
	url  string
	now  func() time.Time

	// Telemetry
	snapshot      telemetry.Snapshot
	screenshotAt  time.Time
	screenshotLen int
	actions       []telemetry.Action
	results       []*domain.PropertyTask
	lastError     string
	errorAt       time.Time

	// Connection
	connected   bool
	disconnect  error
	lastMessage time.Time

	// Tasks the "g" key starts
	tasks []*domain.PropertyTask

	// UI state
	width       int
	height      int
	activeTab   int
	selectedRow int
	notice      string
}

// ModelConfig holds initial data for the TUI model
type ModelConfig struct {
	Conn  Conn
	URL   string
	Tasks []*domain.PropertyTask
	Now   func() time.Time
}

// NewModel creates a new TUI model
func NewModel(cfg ModelConfig) Model {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return Model{
		conn:      cfg.Conn,
		url:       cfg.URL,
		now:       now,
		tasks:     cfg.Tasks,
		connected: cfg.Conn != nil,
		snapshot:  telemetry.Snapshot{Status: telemetry.StatusIdle},
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd()}
	if m.conn != nil {
		cmds = append(cmds, receiveCmd(m.conn))
	}
	return tea.Batch(cmds...)
}

// TickMsg triggers a redraw so relative times stay current
type TickMsg time.Time

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// apply merges one server message into the model
func (m *Model) apply(env telemetry.EnvelopeRaw) {
	m.lastMessage = m.now()

	switch env.Type {
	case telemetry.TypeBrowserState:
		// full snapshots omit the screenshot and patches carry only the
		// screenshot, so decoding onto the current state merges both
		before := m.snapshot.Screenshot
		if err := json.Unmarshal(env.Data, &m.snapshot); err != nil {
			return
		}
		if m.snapshot.Screenshot != before {
			m.screenshotAt = m.now()
			m.screenshotLen = screenshotSize(m.snapshot.Screenshot)
		}

	case telemetry.TypeAIAction:
		var action telemetry.Action
		if err := json.Unmarshal(env.Data, &action); err != nil {
			return
		}
		m.actions = append(m.actions, action)
		if len(m.actions) > maxActions {
			m.actions = m.actions[len(m.actions)-maxActions:]
		}

	case telemetry.TypePropertyResult:
		var task domain.PropertyTask
		if err := json.Unmarshal(env.Data, &task); err != nil {
			return
		}
		for i, r := range m.results {
			if r.ID == task.ID {
				m.results[i] = &task
				return
			}
		}
		m.results = append(m.results, &task)

	case telemetry.TypeError:
		var msg telemetry.ErrorMessage
		if err := json.Unmarshal(env.Data, &msg); err != nil {
			return
		}
		m.lastError = msg.Message
		m.errorAt = m.now()
	}
}

// screenshotSize returns the decoded byte size of a data URL
func screenshotSize(dataURL string) int {
	i := strings.IndexByte(dataURL, ',')
	if i < 0 {
		return 0
	}
	return base64.StdEncoding.DecodedLen(len(dataURL) - i - 1)
}

// Snapshot returns the merged live state
func (m Model) Snapshot() telemetry.Snapshot {
	return m.snapshot
}

// Results returns the finished properties in arrival order
func (m Model) Results() []*domain.PropertyTask {
	return m.results
}

// Actions returns the action log, oldest first
func (m Model) Actions() []telemetry.Action {
	return m.actions
}

// countByStatus tallies finished properties by verdict
func (m Model) countByStatus() map[domain.FinalStatus]int {
	counts := make(map[domain.FinalStatus]int)
	for _, r := range m.results {
		if r.Result != nil {
			counts[r.Result.FinalStatus]++
		}
	}
	return counts
}
