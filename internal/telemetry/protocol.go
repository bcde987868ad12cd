// Package telemetry defines the observer protocol and the outbound channel
// that streams live run state. Messages flow over WebSocket connections as
// JSON envelopes.
package telemetry

import (
	"encoding/json"
	"time"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// Envelope wraps all messages with a type discriminator.
// When marshaling, Data can be any message struct.
// When unmarshaling, use EnvelopeRaw for type-based dispatch.
type Envelope struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// EnvelopeRaw is used for receiving messages where the data needs to be
// unmarshaled based on the message type.
type EnvelopeRaw struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// MarshalEnvelope creates an envelope with the given type and data
func MarshalEnvelope(msgType string, data interface{}) ([]byte, error) {
	return json.Marshal(Envelope{Type: msgType, Data: data})
}

// Engine -> observer messages
const (
	TypeBrowserState   = "browser_state"
	TypeAIAction       = "ai_action"
	TypePropertyResult = "property_result"
	TypeError          = "error"
)

// Observer -> engine commands
const (
	TypeStartVerification = "start_verification"
	TypeStopVerification  = "stop_verification"
)

// BrowserStatus is the coarse run status shown to observers
type BrowserStatus string

const (
	StatusIdle       BrowserStatus = "idle"
	StatusConnecting BrowserStatus = "connecting"
	StatusRunning    BrowserStatus = "running"
	StatusError      BrowserStatus = "error"
)

// Progress tracks the position of the run in its task list
type Progress struct {
	Current  int    `json:"current"`
	Total    int    `json:"total"`
	SiteName string `json:"siteName"`
}

// Snapshot is the live state of a run. Observers merge every browser_state
// message they receive into their copy.
type Snapshot struct {
	Status        BrowserStatus `json:"status"`
	CurrentSite   string        `json:"currentSite"`
	CurrentAction string        `json:"currentAction"`
	Screenshot    string        `json:"screenshot,omitempty"` // data URL
	AIThought     string        `json:"aiThought"`
	Progress      Progress      `json:"progress"`
}

// ScreenshotPatch is a partial browser_state carrying only a visual sample
type ScreenshotPatch struct {
	Screenshot string `json:"screenshot"`
}

// ActionType classifies discrete automation events
type ActionType string

const (
	ActionNavigate ActionType = "navigate"
	ActionLogin    ActionType = "login"
	ActionSearch   ActionType = "search"
	ActionWait     ActionType = "wait"
	ActionExtract  ActionType = "extract"
	ActionInfo     ActionType = "info"
)

// Action is a one-shot ai_action event
type Action struct {
	Type        ActionType `json:"type"`
	Target      string     `json:"target"`
	Description string     `json:"description"`
	Timestamp   time.Time  `json:"timestamp"`
}

// ErrorMessage is the payload of an error message
type ErrorMessage struct {
	Message string `json:"message"`
}

// StartCommand asks the engine to verify the given properties
type StartCommand struct {
	Properties []*domain.PropertyTask `json:"properties"`
}
