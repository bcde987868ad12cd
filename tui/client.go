package tui

import (
	"encoding/json"
	"fmt"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/vacancy-verifier/internal/telemetry"
)

// Conn is the observer's link to a running server
type Conn interface {
	Receive() (telemetry.EnvelopeRaw, error)
	Send(env telemetry.Envelope) error
	Close() error
}

// Client is a Conn over the server's /ws observer socket
type Client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Dial connects to the observer socket at url (ws://host:port/ws)
func Dial(url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

// Receive blocks for the next well-formed message
func (c *Client) Receive() (telemetry.EnvelopeRaw, error) {
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			return telemetry.EnvelopeRaw{}, err
		}
		var env telemetry.EnvelopeRaw
		if json.Unmarshal(data, &env) == nil {
			return env, nil
		}
	}
}

// Send writes a command
func (c *Client) Send(env telemetry.Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(env)
}

// Close sends a close frame and closes the connection
func (c *Client) Close() error {
	c.writeMu.Lock()
	c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	c.writeMu.Unlock()
	return c.conn.Close()
}

// EnvelopeMsg carries one message from the server
type EnvelopeMsg struct {
	Env telemetry.EnvelopeRaw
}

// DisconnectedMsg is sent when the connection drops
type DisconnectedMsg struct {
	Err error
}

// SentMsg reports the outcome of a command
type SentMsg struct {
	Type string
	Err  error
}

func receiveCmd(conn Conn) tea.Cmd {
	return func() tea.Msg {
		env, err := conn.Receive()
		if err != nil {
			return DisconnectedMsg{Err: err}
		}
		return EnvelopeMsg{Env: env}
	}
}

func sendCmd(conn Conn, env telemetry.Envelope) tea.Cmd {
	return func() tea.Msg {
		return SentMsg{Type: env.Type, Err: conn.Send(env)}
	}
}
