package tui

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hochfrequenz/vacancy-verifier/internal/telemetry"
)

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "j", "down":
			if m.selectedRow < m.rowCount()-1 {
				m.selectedRow++
			}
		case "k", "up":
			if m.selectedRow > 0 {
				m.selectedRow--
			}
		case "tab":
			m.activeTab = (m.activeTab + 1) % tabCount
			m.selectedRow = 0
		case "l":
			m.activeTab = TabLive
			m.selectedRow = 0
		case "r":
			m.activeTab = TabResults
			m.selectedRow = 0
		case "a":
			m.activeTab = TabActions
			m.selectedRow = 0
		case "g":
			if !m.connected {
				m.notice = "not connected"
				return m, nil
			}
			if len(m.tasks) == 0 {
				m.notice = "no task file loaded"
				return m, nil
			}
			m.notice = fmt.Sprintf("starting verification of %d properties", len(m.tasks))
			return m, sendCmd(m.conn, telemetry.Envelope{
				Type: telemetry.TypeStartVerification,
				Data: telemetry.StartCommand{Properties: m.tasks},
			})
		case "s":
			if !m.connected {
				m.notice = "not connected"
				return m, nil
			}
			m.notice = "stop requested"
			return m, sendCmd(m.conn, telemetry.Envelope{Type: telemetry.TypeStopVerification})
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case TickMsg:
		return m, tickCmd()

	case EnvelopeMsg:
		m.apply(msg.Env)
		return m, receiveCmd(m.conn)

	case DisconnectedMsg:
		m.connected = false
		m.disconnect = msg.Err
		return m, nil

	case SentMsg:
		if msg.Err != nil {
			m.notice = fmt.Sprintf("%s failed: %v", msg.Type, msg.Err)
		}
		return m, nil
	}

	return m, nil
}

func (m Model) rowCount() int {
	switch m.activeTab {
	case TabResults:
		return len(m.results)
	case TabActions:
		return len(m.actions)
	}
	return 0
}
