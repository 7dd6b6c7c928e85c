package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// HealthStatus is the bridge status published on the status topic.
type HealthStatus string

const (
	HealthStarting HealthStatus = "starting"
	HealthHealthy  HealthStatus = "healthy"
	HealthDegraded HealthStatus = "degraded"
	HealthStopping HealthStatus = "stopping"
)

// Stats is a snapshot of the bridge counters included in health
// messages.
type Stats struct {
	RequestsSent    uint64 `json:"requests_sent"`
	Published       uint64 `json:"readings_published"`
	PublishFailures uint64 `json:"publish_failures"`
	DecodeFailures  uint64 `json:"decode_failures"`
}

// StatsProvider returns the current counter snapshot.
type StatsProvider func() Stats

// Check is a named connection check evaluated on every status report.
// A failing check degrades the published status and its error becomes
// the reason field, so sink outages surface on the status topic.
type Check struct {
	Name  string
	Check func(ctx context.Context) error
}

// checkTimeout bounds each check so a hung sink cannot stall reporting.
const checkTimeout = 3 * time.Second

// healthMessage is the JSON wire format for a health report.
type healthMessage struct {
	Status        HealthStatus `json:"status"`
	BridgeID      string       `json:"bridge_id"`
	Version       string       `json:"version,omitempty"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	Stats         Stats        `json:"stats"`
	Reason        string       `json:"reason,omitempty"`
	Timestamp     string       `json:"timestamp"`
}

// HealthReporter publishes periodic bridge status messages to MQTT.
type HealthReporter struct {
	bridgeID  string
	version   string
	topic     string
	interval  time.Duration
	startTime time.Time
	publisher Publisher
	stats     StatsProvider
	checks    []Check

	// Shutdown coordination (stopOnce prevents double-close panics)
	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once

	// Logger (optional)
	logger   Logger
	loggerMu sync.RWMutex
}

// HealthReporterConfig holds configuration for the health reporter.
type HealthReporterConfig struct {
	// BridgeID identifies this bridge instance in health messages.
	BridgeID string

	// Version is the bridge software version.
	Version string

	// Topic is the status topic to publish on.
	Topic string

	// Interval is how often to publish health status.
	// Default: 30 seconds.
	Interval time.Duration

	// Publisher is the MQTT client for publishing messages.
	Publisher Publisher

	// Stats supplies the counter snapshot for each report (optional).
	Stats StatsProvider

	// Checks are sink health checks evaluated on every report (optional).
	Checks []Check
}

// NewHealthReporter creates a health reporter.
// Call Start to begin reporting, Stop to shut down.
func NewHealthReporter(cfg HealthReporterConfig) *HealthReporter {
	interval := cfg.Interval
	if interval == 0 {
		interval = 30 * time.Second
	}

	return &HealthReporter{
		bridgeID:  cfg.BridgeID,
		version:   cfg.Version,
		topic:     cfg.Topic,
		interval:  interval,
		startTime: time.Now(),
		publisher: cfg.Publisher,
		stats:     cfg.Stats,
		checks:    cfg.Checks,
		done:      make(chan struct{}),
	}
}

// SetLogger sets the logger for this reporter.
func (h *HealthReporter) SetLogger(logger Logger) {
	h.loggerMu.Lock()
	h.logger = logger
	h.loggerMu.Unlock()
}

// Start begins periodic health reporting.
//
// Parameters:
//   - ctx: Context for cancellation (will stop reporting when cancelled)
func (h *HealthReporter) Start(ctx context.Context) {
	h.wg.Add(1)
	go h.reportLoop(ctx)
}

// Stop gracefully stops health reporting.
// Publishes a final "stopping" status before returning.
// Safe to call multiple times (uses sync.Once).
func (h *HealthReporter) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)
		h.wg.Wait()

		// Best-effort during shutdown, nothing we can do if it fails
		//nolint:errcheck
		h.publishStatus(HealthStopping, "")
	})
}

// PublishStarting publishes a "starting" status.
// Called during bridge initialisation.
func (h *HealthReporter) PublishStarting() error {
	return h.publishStatus(HealthStarting, "bridge starting")
}

// PublishNow publishes the current health status immediately.
func (h *HealthReporter) PublishNow() error {
	status, reason := h.determineStatus()
	return h.publishStatus(status, reason)
}

// reportLoop runs the periodic health reporting.
func (h *HealthReporter) reportLoop(ctx context.Context) {
	defer h.wg.Done()

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	if err := h.PublishNow(); err != nil {
		h.logError("failed to publish initial health", err)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-h.done:
			return
		case <-ticker.C:
			if err := h.PublishNow(); err != nil {
				h.logError("failed to publish health", err)
			}
		}
	}
}

// determineStatus evaluates the current bridge status: the broker
// connection first, then each registered sink check.
func (h *HealthReporter) determineStatus() (HealthStatus, string) {
	if h.publisher == nil || !h.publisher.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(context.Background(), checkTimeout)
		defer cancel()

		for _, c := range h.checks {
			if err := c.Check(ctx); err != nil {
				return HealthDegraded, fmt.Sprintf("%s: %v", c.Name, err)
			}
		}
	}

	return HealthHealthy, ""
}

// publishStatus publishes a health status message (QoS 1, retained).
func (h *HealthReporter) publishStatus(status HealthStatus, reason string) error {
	if h.publisher == nil {
		return nil
	}

	var stats Stats
	if h.stats != nil {
		stats = h.stats()
	}

	msg := healthMessage{
		Status:        status,
		BridgeID:      h.bridgeID,
		Version:       h.version,
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
		Stats:         stats,
		Reason:        reason,
		Timestamp:     time.Now().UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	return h.publisher.Publish(h.topic, payload, 1, true)
}

func (h *HealthReporter) logError(msg string, err error) {
	h.loggerMu.RLock()
	logger := h.logger
	h.loggerMu.RUnlock()

	if logger != nil {
		logger.Error(msg, "error", err)
	}
}
