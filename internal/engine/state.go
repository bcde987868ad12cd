package engine

import (
	"fmt"
	"sync"
)

// State is the position of the engine in a run
type State string

const (
	StateIdle           State = "idle"
	StateInitializing   State = "initializing"
	StateNavigating     State = "navigating"
	StateAuthenticating State = "authenticating"
	StateSearching      State = "searching"
	StateExtracting     State = "extracting"
	StateRecording      State = "recording"
	StateUploading      State = "uploading"
	StateError          State = "error"
)

var allowedTransitions = map[State]map[State]struct{}{
	StateIdle: {
		StateInitializing: {},
	},
	StateInitializing: {
		StateNavigating: {},
		StateUploading:  {},
		StateError:      {},
	},
	StateNavigating: {
		StateAuthenticating: {},
		StateSearching:      {},
		StateRecording:      {},
		StateUploading:      {},
		StateError:          {},
	},
	StateAuthenticating: {
		StateSearching: {},
		StateRecording: {},
		StateUploading: {},
		StateError:     {},
	},
	StateSearching: {
		StateExtracting: {},
		StateRecording:  {},
		StateUploading:  {},
		StateError:      {},
	},
	StateExtracting: {
		StateRecording: {},
		StateUploading: {},
		StateError:     {},
	},
	StateRecording: {
		StateNavigating: {},
		StateUploading:  {},
		StateError:      {},
	},
	StateUploading: {
		StateIdle:  {},
		StateError: {},
	},
	StateError: {
		StateIdle: {},
	},
}

func canTransition(from, to State) bool {
	_, ok := allowedTransitions[from][to]
	return ok
}

// machine holds the current state and rejects transitions the run
// lifecycle does not allow.
type machine struct {
	mu    sync.Mutex
	state State
}

func newMachine() *machine {
	return &machine{state: StateIdle}
}

func (m *machine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *machine) transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !canTransition(m.state, to) {
		return fmt.Errorf("invalid engine transition: %s -> %s", m.state, to)
	}
	m.state = to
	return nil
}

// reset forces the machine back to idle after teardown
func (m *machine) reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = StateIdle
}
