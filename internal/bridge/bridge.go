package bridge

import (
	"context"
	"sync"
	"time"
)

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Transport is the serial port as seen by the bridge: a line-oriented
// read side and a raw write side. A timed-out read returns an empty
// chunk and a nil error.
type Transport interface {
	// ReadLine returns the next available line, or nil when the read
	// timed out with nothing buffered.
	ReadLine() ([]byte, error)

	// WriteString sends a request line to the machine.
	WriteString(s string) error
}

// ChunkHandler consumes raw chunks from the read loop. Router (polling
// mode) and Forwarder (line mode) both implement it.
type ChunkHandler interface {
	HandleChunk(chunk []byte)
}

// Bridge owns the serial read loop and, in polling mode, the request
// cycle. It wires the transport to a chunk handler and coordinates
// startup and shutdown of all loops.
type Bridge struct {
	transport Transport
	handler   ChunkHandler
	poller    *Poller
	health    *HealthReporter

	idlePoll    time.Duration
	readBackoff time.Duration

	// Shutdown coordination (stopOnce prevents double-close panics)
	cancel   context.CancelFunc
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
	started  bool
	mu       sync.Mutex

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// Config holds configuration for the bridge lifecycle.
type Config struct {
	// Transport is the serial port (required).
	Transport Transport

	// Handler consumes each chunk read from the port (required).
	Handler ChunkHandler

	// Poller drives the request cycle (optional; nil in line mode).
	Poller *Poller

	// Health publishes periodic status reports (optional).
	Health *HealthReporter

	// IdlePoll is the pause between read attempts when the port is
	// quiet. Default: 100 milliseconds.
	IdlePoll time.Duration

	// ReadBackoff is the pause after a failed read before retrying.
	// Default: 1 second.
	ReadBackoff time.Duration
}

// New creates a bridge.
//
// Parameters:
//   - cfg: Bridge configuration
//
// Returns:
//   - *Bridge: Ready to start (call Start to begin bridging)
//   - error: ErrMissingTransport or ErrMissingHandler on bad config
func New(cfg Config) (*Bridge, error) {
	if cfg.Transport == nil {
		return nil, ErrMissingTransport
	}
	if cfg.Handler == nil {
		return nil, ErrMissingHandler
	}

	idlePoll := cfg.IdlePoll
	if idlePoll == 0 {
		idlePoll = 100 * time.Millisecond
	}
	readBackoff := cfg.ReadBackoff
	if readBackoff == 0 {
		readBackoff = time.Second
	}

	return &Bridge{
		transport:   cfg.Transport,
		handler:     cfg.Handler,
		poller:      cfg.Poller,
		health:      cfg.Health,
		idlePoll:    idlePoll,
		readBackoff: readBackoff,
		done:        make(chan struct{}),
	}, nil
}

// SetLogger sets the logger for this bridge.
func (b *Bridge) SetLogger(logger Logger) {
	b.loggerMu.Lock()
	b.logger = logger
	b.loggerMu.Unlock()
}

// Start launches the read loop, the poll cycle (when configured), and
// health reporting. Non-blocking; call Stop to shut down.
//
// Parameters:
//   - ctx: Parent context; cancellation stops all loops
//
// Returns:
//   - error: ErrAlreadyStarted if called twice
func (b *Bridge) Start(ctx context.Context) error {
	b.mu.Lock()
	if b.started {
		b.mu.Unlock()
		return ErrAlreadyStarted
	}
	b.started = true
	b.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	b.cancel = cancel

	b.wg.Add(1)
	go b.readLoop(runCtx)

	if b.poller != nil {
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.poller.Run(runCtx)
		}()
	}

	if b.health != nil {
		if err := b.health.PublishStarting(); err != nil {
			b.logError("failed to publish starting status", err)
		}
		b.health.Start(runCtx)
	}

	b.logInfo("bridge started",
		"polling", b.poller != nil,
		"idle_poll", b.idlePoll,
	)
	return nil
}

// Stop gracefully shuts down all loops. Blocks until the read loop
// and the poll cycle have exited. Safe to call multiple times.
func (b *Bridge) Stop() {
	b.stopOnce.Do(func() {
		close(b.done)
		if b.cancel != nil {
			b.cancel()
		}
		b.wg.Wait()

		if b.health != nil {
			b.health.Stop()
		}

		b.logInfo("bridge stopped")
	})
}

// readLoop drains the serial port and hands chunks to the handler.
// Read errors back off briefly and retry; a dead port is reported
// through health status rather than crashing the loop.
func (b *Bridge) readLoop(ctx context.Context) {
	defer b.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-b.done:
			return
		default:
		}

		chunk, err := b.transport.ReadLine()
		if err != nil {
			b.logWarn("serial read failed", "error", err)
			if !sleepCtx(ctx, b.readBackoff) {
				return
			}
			continue
		}

		if len(chunk) == 0 {
			if !sleepCtx(ctx, b.idlePoll) {
				return
			}
			continue
		}

		b.handler.HandleChunk(chunk)
	}
}

func (b *Bridge) logInfo(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (b *Bridge) logWarn(msg string, keysAndValues ...any) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (b *Bridge) logError(msg string, err error) {
	b.loggerMu.RLock()
	logger := b.logger
	b.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
