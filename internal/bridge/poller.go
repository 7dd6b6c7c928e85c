package bridge

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RequestWriter is the write side of the serial transport.
type RequestWriter interface {
	// WriteString sends a request line to the machine.
	WriteString(s string) error
}

// Poller drives the periodic Q-code request cycle. Each cycle walks
// the configured codes in order, writing "<code>\n" to the transport
// and pausing after each write so the machine has time to answer
// before the next request lands.
type Poller struct {
	codes         []string
	perCodeWait   time.Duration
	cycleInterval time.Duration
	writer        RequestWriter

	// Counters for health reporting
	requestsSent  atomic.Uint64
	writeFailures atomic.Uint64

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// PollerConfig holds configuration for the poller.
type PollerConfig struct {
	// Codes is the ordered request set. Nil means DefaultCodes(); an
	// explicitly empty list sends no requests, so each cycle is just
	// the idle interval.
	Codes []string

	// PerCodeWait is the pause after each request.
	// Default: 2 seconds.
	PerCodeWait time.Duration

	// CycleInterval is the idle period between full cycles.
	// Default: 30 seconds.
	CycleInterval time.Duration

	// Writer sends requests to the machine.
	Writer RequestWriter
}

// NewPoller creates a poller. Call Run to start the cycle.
func NewPoller(cfg PollerConfig) *Poller {
	codes := cfg.Codes
	if codes == nil {
		codes = DefaultCodes()
	}
	perCodeWait := cfg.PerCodeWait
	if perCodeWait == 0 {
		perCodeWait = 2 * time.Second
	}
	cycleInterval := cfg.CycleInterval
	if cycleInterval == 0 {
		cycleInterval = 30 * time.Second
	}

	return &Poller{
		codes:         codes,
		perCodeWait:   perCodeWait,
		cycleInterval: cycleInterval,
		writer:        cfg.Writer,
	}
}

// SetLogger sets the logger for this poller.
func (p *Poller) SetLogger(logger Logger) {
	p.loggerMu.Lock()
	p.logger = logger
	p.loggerMu.Unlock()
}

// Codes returns the configured request set.
func (p *Poller) Codes() []string {
	return p.codes
}

// RequestsSent returns the total number of requests written.
func (p *Poller) RequestsSent() uint64 {
	return p.requestsSent.Load()
}

// WriteFailures returns the total number of failed request writes.
func (p *Poller) WriteFailures() uint64 {
	return p.writeFailures.Load()
}

// Run executes request cycles until the context is cancelled.
// A failed write is logged and the cycle moves on to the next code;
// the transport owner decides whether the failure is fatal.
//
// Blocks until ctx is done. Cancellation is honoured mid-wait, so
// shutdown never has to ride out a full cycle.
func (p *Poller) Run(ctx context.Context) {
	for {
		for _, code := range p.codes {
			if ctx.Err() != nil {
				return
			}

			if err := p.writer.WriteString(code + "\n"); err != nil {
				p.writeFailures.Add(1)
				p.logWarn("request write failed", "code", code, "error", err)
			} else {
				p.requestsSent.Add(1)
				p.logDebug("request sent", "code", code)
			}

			if !sleepCtx(ctx, p.perCodeWait) {
				return
			}
		}

		if !sleepCtx(ctx, p.cycleInterval) {
			return
		}
	}
}

// sleepCtx waits for d or until ctx is cancelled.
// Returns false if the context ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (p *Poller) logDebug(msg string, keysAndValues ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (p *Poller) logWarn(msg string, keysAndValues ...any) {
	p.loggerMu.RLock()
	logger := p.logger
	p.loggerMu.RUnlock()

	if logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}
