package telemetry

import (
	"encoding/base64"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hochfrequenz/vacancy-verifier/internal/domain"
)

// DefaultQueueSize bounds the outbound queue of a Channel
const DefaultQueueSize = 256

// Channel is the single outbound stream of a run. Producers enqueue without
// blocking; a dedicated goroutine drains the queue into the Sink. Delivery
// is best effort: a full queue or a failing sink drops messages.
type Channel struct {
	sink   Sink
	logger *slog.Logger
	now    func() time.Time

	queue   chan Envelope
	done    chan struct{}
	dropped atomic.Int64

	mu       sync.Mutex // guards snapshot, closed and sends on queue
	snapshot Snapshot
	closed   bool
}

// ChannelOption configures a Channel
type ChannelOption func(*channelConfig)

type channelConfig struct {
	queueSize int
	logger    *slog.Logger
	now       func() time.Time
}

// WithQueueSize overrides DefaultQueueSize
func WithQueueSize(n int) ChannelOption {
	return func(c *channelConfig) { c.queueSize = n }
}

// WithLogger sets the logger for dropped messages and sink errors
func WithLogger(logger *slog.Logger) ChannelOption {
	return func(c *channelConfig) { c.logger = logger }
}

// WithClock sets the time source used for action timestamps
func WithClock(now func() time.Time) ChannelOption {
	return func(c *channelConfig) { c.now = now }
}

// NewChannel creates a channel delivering to sink and starts its drain loop
func NewChannel(sink Sink, opts ...ChannelOption) *Channel {
	cfg := channelConfig{queueSize: DefaultQueueSize}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}
	if cfg.now == nil {
		cfg.now = time.Now
	}
	if cfg.queueSize <= 0 {
		cfg.queueSize = DefaultQueueSize
	}

	c := &Channel{
		sink:     sink,
		logger:   cfg.logger,
		now:      cfg.now,
		queue:    make(chan Envelope, cfg.queueSize),
		done:     make(chan struct{}),
		snapshot: Snapshot{Status: StatusIdle},
	}
	go c.drain()
	return c
}

func (c *Channel) drain() {
	defer close(c.done)
	for env := range c.queue {
		if err := c.sink.Send(env); err != nil {
			c.logger.Debug("telemetry delivery failed", "type", env.Type, "error", err)
		}
	}
}

// Send enqueues env. It never blocks and reports whether env was queued.
func (c *Channel) Send(env Envelope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueueLocked(env)
}

func (c *Channel) enqueueLocked(env Envelope) bool {
	if c.closed {
		return false
	}
	select {
	case c.queue <- env:
		return true
	default:
		c.dropped.Add(1)
		c.logger.Debug("telemetry queue full, dropping message", "type", env.Type)
		return false
	}
}

// Update applies fn to the live snapshot and broadcasts the result. The
// screenshot is left out of the broadcast; observers keep their last sample.
func (c *Channel) Update(fn func(s *Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.snapshot)
	out := c.snapshot
	out.Screenshot = ""
	c.enqueueLocked(Envelope{Type: TypeBrowserState, Data: out})
}

// Screenshot records a PNG visual sample and broadcasts it as a partial
// browser_state.
func (c *Channel) Screenshot(png []byte) {
	url := "data:image/png;base64," + base64.StdEncoding.EncodeToString(png)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot.Screenshot = url
	c.enqueueLocked(Envelope{Type: TypeBrowserState, Data: ScreenshotPatch{Screenshot: url}})
}

// Action emits a discrete ai_action event
func (c *Channel) Action(typ ActionType, target, description string) {
	c.Send(Envelope{Type: TypeAIAction, Data: Action{
		Type:        typ,
		Target:      target,
		Description: description,
		Timestamp:   c.now(),
	}})
}

// PropertyResult emits a finished task
func (c *Channel) PropertyResult(task *domain.PropertyTask) {
	snapshot := *task
	c.Send(Envelope{Type: TypePropertyResult, Data: &snapshot})
}

// Error emits an error message
func (c *Channel) Error(message string) {
	c.Send(Envelope{Type: TypeError, Data: ErrorMessage{Message: message}})
}

// Snapshot returns a copy of the live snapshot
func (c *Channel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// Dropped returns how many messages were discarded because the queue was full
func (c *Channel) Dropped() int64 {
	return c.dropped.Load()
}

// Close stops accepting messages, delivers what is queued and waits for
// the drain loop to exit. Safe to call more than once.
func (c *Channel) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		<-c.done
		return
	}
	c.closed = true
	close(c.queue)
	c.mu.Unlock()
	<-c.done
}
