package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/hochfrequenz/vacancy-verifier/internal/telemetry"
)

// sseClientBuffer is how many events a slow SSE client may lag behind
// before it is dropped
const sseClientBuffer = 64

// SSEHub fans telemetry out to server-sent event clients. It is a
// telemetry.Sink and never blocks the sender.
type SSEHub struct {
	mu      sync.Mutex
	clients map[chan telemetry.Envelope]struct{}
	closed  bool
}

// NewSSEHub creates a new SSE hub
func NewSSEHub() *SSEHub {
	return &SSEHub{clients: make(map[chan telemetry.Envelope]struct{})}
}

func (h *SSEHub) register() (chan telemetry.Envelope, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, false
	}
	client := make(chan telemetry.Envelope, sseClientBuffer)
	h.clients[client] = struct{}{}
	return client, true
}

func (h *SSEHub) unregister(client chan telemetry.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		close(client)
	}
}

// Send delivers env to every client. Clients whose buffer is full are
// disconnected.
func (h *SSEHub) Send(env telemetry.Envelope) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		select {
		case client <- env:
		default:
			delete(h.clients, client)
			close(client)
		}
	}
	return nil
}

// Clients returns the number of connected clients
func (h *SSEHub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects all clients and rejects new ones
func (h *SSEHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		close(client)
	}
}

func (s *Server) sseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		flusher, ok := w.(http.Flusher)
		if !ok {
			writeError(w, http.StatusInternalServerError, "streaming not supported")
			return
		}

		client, ok := s.sseHub.register()
		if !ok {
			writeError(w, http.StatusServiceUnavailable, "server shutting down")
			return
		}
		defer s.sseHub.unregister(client)

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)

		// the current state first, so late subscribers are not blank
		writeSSE(w, telemetry.Envelope{Type: telemetry.TypeBrowserState, Data: s.channel.Snapshot()})
		flusher.Flush()

		for {
			select {
			case <-r.Context().Done():
				return
			case env, ok := <-client:
				if !ok {
					return
				}
				if err := writeSSE(w, env); err != nil {
					return
				}
				flusher.Flush()
			}
		}
	}
}

func writeSSE(w http.ResponseWriter, env telemetry.Envelope) error {
	data, err := json.Marshal(env.Data)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", env.Type, data)
	return err
}
