// web/api/ws.go
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
	"github.com/hochfrequenz/vacancy-verifier/internal/extract"
	"github.com/hochfrequenz/vacancy-verifier/internal/telemetry"
)

const (
	observerSendBuffer = 256
	writeTimeout       = 10 * time.Second
)

// Commander executes observer commands
type Commander interface {
	StartVerification(tasks []*domain.PropertyTask) error
	StopVerification() bool
	Snapshot() telemetry.Snapshot
}

// ObserverConfig configures the observer socket heartbeat
type ObserverConfig struct {
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
}

type observer struct {
	id          string
	conn        *websocket.Conn
	connectedAt time.Time
	send        chan []byte
	done        chan struct{}
	closeOnce   sync.Once
	writeMu     sync.Mutex // protects conn writes
}

func (o *observer) write(messageType int, data []byte) error {
	o.writeMu.Lock()
	defer o.writeMu.Unlock()
	o.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return o.conn.WriteMessage(messageType, data)
}

func (o *observer) close() {
	o.closeOnce.Do(func() {
		close(o.done)
		o.conn.Close()
	})
}

// ObserverHub serves the /ws observer socket. It broadcasts telemetry to
// every connected observer and turns their commands into runs. It is a
// telemetry.Sink; a slow observer is disconnected rather than waited for.
type ObserverHub struct {
	config    ObserverConfig
	commander Commander
	logger    *slog.Logger
	upgrader  websocket.Upgrader

	mu        sync.RWMutex
	observers map[string]*observer
	closed    bool
}

// NewObserverHub creates a hub dispatching commands to commander
func NewObserverHub(config ObserverConfig, commander Commander, logger *slog.Logger) *ObserverHub {
	if config.HeartbeatInterval == 0 {
		config.HeartbeatInterval = 30 * time.Second
	}
	if config.HeartbeatTimeout == 0 {
		config.HeartbeatTimeout = 90 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ObserverHub{
		config:    config,
		commander: commander,
		logger:    logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		observers: make(map[string]*observer),
	}
}

// HandleWebSocket upgrades the request and serves one observer until it
// disconnects
func (h *ObserverHub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	o := &observer{
		id:          uuid.New().String(),
		conn:        conn,
		connectedAt: time.Now(),
		send:        make(chan []byte, observerSendBuffer),
		done:        make(chan struct{}),
	}
	if !h.add(o) {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	logger := h.logger.With("observer", o.id)
	logger.Info("observer connected", "remote", r.RemoteAddr)

	defer func() {
		h.remove(o)
		o.close()
		logger.Info("observer disconnected")
	}()

	if data, err := telemetry.MarshalEnvelope(telemetry.TypeBrowserState, h.commander.Snapshot()); err == nil {
		o.send <- data
	}
	go h.writeLoop(o, logger)

	h.readLoop(o, logger)
}

func (h *ObserverHub) readLoop(o *observer, logger *slog.Logger) {
	o.conn.SetReadDeadline(time.Now().Add(h.config.HeartbeatTimeout))
	o.conn.SetPongHandler(func(string) error {
		o.conn.SetReadDeadline(time.Now().Add(h.config.HeartbeatTimeout))
		return nil
	})

	for {
		_, message, err := o.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn("observer read failed", "error", err)
			}
			return
		}
		o.conn.SetReadDeadline(time.Now().Add(h.config.HeartbeatTimeout))

		var env telemetry.EnvelopeRaw
		if err := json.Unmarshal(message, &env); err != nil {
			h.reply(o, "invalid message: "+err.Error())
			continue
		}

		switch env.Type {
		case telemetry.TypeStartVerification:
			tasks, err := extract.ParseTasks(env.Data, ".json")
			if err != nil {
				h.reply(o, err.Error())
				continue
			}
			logger.Info("start requested", "properties", len(tasks))
			if err := h.commander.StartVerification(tasks); err != nil {
				h.reply(o, err.Error())
			}

		case telemetry.TypeStopVerification:
			logger.Info("stop requested")
			if !h.commander.StopVerification() {
				logger.Debug("stop requested with no active run")
			}

		default:
			h.reply(o, "unknown message type: "+env.Type)
		}
	}
}

// writeLoop is the only goroutine writing data frames to o
func (h *ObserverHub) writeLoop(o *observer, logger *slog.Logger) {
	ticker := time.NewTicker(h.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-o.done:
			return
		case data := <-o.send:
			if err := o.write(websocket.TextMessage, data); err != nil {
				logger.Debug("observer write failed", "error", err)
				o.close()
				return
			}
		case <-ticker.C:
			o.writeMu.Lock()
			err := o.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			o.writeMu.Unlock()
			if err != nil {
				o.close()
				return
			}
		}
	}
}

// reply sends an error message to a single observer
func (h *ObserverHub) reply(o *observer, message string) {
	data, err := telemetry.MarshalEnvelope(telemetry.TypeError, telemetry.ErrorMessage{Message: message})
	if err != nil {
		return
	}
	select {
	case o.send <- data:
	case <-o.done:
	default:
	}
}

func (h *ObserverHub) add(o *observer) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	h.observers[o.id] = o
	return true
}

func (h *ObserverHub) remove(o *observer) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.observers, o.id)
}

// Send broadcasts env to all observers
func (h *ObserverHub) Send(env telemetry.Envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, o := range h.observers {
		select {
		case o.send <- data:
		case <-o.done:
		default:
			h.logger.Warn("observer too slow, disconnecting", "observer", o.id)
			o.close()
		}
	}
	return nil
}

// Count returns the number of connected observers
func (h *ObserverHub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.observers)
}

// Close disconnects every observer and rejects new connections
func (h *ObserverHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, o := range h.observers {
		o.writeMu.Lock()
		o.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
			time.Now().Add(time.Second))
		o.writeMu.Unlock()
		o.close()
		delete(h.observers, id)
	}
}
