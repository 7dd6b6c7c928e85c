// Serial Bridge - RS-232 to MQTT gateway for CNC machine data.
//
// This is the polling personality: it drives a periodic Q-code request
// cycle over the serial line, decodes the machine's framed replies and
// spontaneous reports, and publishes each reading as JSON on a
// per-code MQTT topic. Readings can additionally be logged to SQLite
// and forwarded to InfluxDB.
//
// For the raw line-forwarding personality, see cmd/linebridge.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/lefebvresam/serialbridge/internal/bridge"
	"github.com/lefebvresam/serialbridge/internal/history"
	"github.com/lefebvresam/serialbridge/internal/infrastructure/config"
	"github.com/lefebvresam/serialbridge/internal/infrastructure/influxdb"
	"github.com/lefebvresam/serialbridge/internal/infrastructure/logging"
	"github.com/lefebvresam/serialbridge/internal/infrastructure/mqtt"
	"github.com/lefebvresam/serialbridge/internal/infrastructure/serialport"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// Exit codes. Transport and broker failures get distinct codes so
// supervisors can tell a missing USB adapter from a dead broker.
const (
	exitOK          = 0
	exitFailure     = 1
	exitSerialOpen  = 2
	exitMQTTConnect = 3
)

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
	os.Exit(exitOK)
}

// exitCode maps a run error to the process exit code.
func exitCode(err error) int {
	switch {
	case errors.Is(err, serialport.ErrOpenFailed):
		return exitSerialOpen
	case errors.Is(err, mqtt.ErrConnectionFailed):
		return exitMQTTConnect
	default:
		return exitFailure
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//   - args: Command-line arguments (without the program name)
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("serialbridge", flag.ContinueOnError)
	configPath := flags.String("config", getConfigPath(), "path to configuration file")
	interval := flags.Int("interval", 0, "override poll cycle interval in seconds")
	qcodes := flags.String("qcodes", "", "override Q-code list (comma-separated)")
	recent := flags.Int("recent", 0, "print the N most recent stored readings and exit")
	recentCode := flags.String("recent-code", "", "restrict -recent output to one Q-code")
	showVersion := flags.Bool("version", false, "print version and exit")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if *showVersion {
		fmt.Printf("serialbridge %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting serial bridge",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", *configPath)

	// Command-line overrides
	if *interval > 0 {
		cfg.Polling.CycleInterval = *interval
	}
	if *qcodes != "" {
		cfg.Polling.Codes = splitCodes(*qcodes)
	}

	// Query mode: dump stored readings without touching the serial
	// port or the broker.
	if *recent > 0 {
		return showRecent(ctx, cfg, *recent, *recentCode)
	}

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open the serial port
	port, err := serialport.Open(serialport.Config{
		Device:      cfg.Serial.Device,
		Baud:        cfg.Serial.Baud,
		Parity:      cfg.Serial.Parity,
		StopBits:    cfg.Serial.StopBits,
		ReadTimeout: cfg.GetReadTimeout(),
	})
	if err != nil {
		return fmt.Errorf("opening serial port: %w", err)
	}
	defer func() {
		log.Info("closing serial port")
		if closeErr := port.Close(); closeErr != nil {
			log.Error("error closing serial port", "error", closeErr)
		}
	}()
	log.Info("serial port open",
		"device", cfg.Serial.Device,
		"baud", cfg.Serial.Baud,
	)

	// Connect to MQTT broker
	topics := mqtt.Topics{Prefix: cfg.Bridge.TopicPrefix}
	mqttClient, err := mqtt.Connect(cfg.MQTT, topics)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(topics); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Optional sinks: SQLite history and InfluxDB telemetry. Each sink
	// also registers a named health check so an outage shows up as a
	// degraded status on the status topic.
	var (
		sinks  []bridge.ReadingSink
		checks []bridge.Check
	)
	checks = append(checks, bridge.Check{Name: "mqtt", Check: mqttClient.HealthCheck})

	if cfg.History.Enabled {
		store, openErr := history.Open(ctx, history.Config{
			Path:        cfg.History.Path,
			WALMode:     cfg.History.WALMode,
			BusyTimeout: cfg.History.BusyTimeout,
		})
		if openErr != nil {
			return fmt.Errorf("opening history store: %w", openErr)
		}
		defer func() {
			log.Info("closing history store")
			if closeErr := store.Close(); closeErr != nil {
				log.Error("error closing history store", "error", closeErr)
			}
		}()
		log.Info("history store open", "path", cfg.History.Path)

		if cfg.History.RetentionDays > 0 {
			cutoff := time.Now().AddDate(0, 0, -cfg.History.RetentionDays)
			pruned, pruneErr := store.Prune(ctx, cutoff)
			if pruneErr != nil {
				log.Warn("history prune failed", "error", pruneErr)
			} else if pruned > 0 {
				log.Info("pruned old readings",
					"count", pruned,
					"retention_days", cfg.History.RetentionDays,
				)
			}
		}

		sinks = append(sinks, &historySink{store: store})
		checks = append(checks, bridge.Check{Name: "history", Check: store.HealthCheck})
	} else {
		log.Info("history store disabled")
	}

	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		sinks = append(sinks, &influxSink{client: influxClient})
		checks = append(checks, bridge.Check{Name: "influxdb", Check: influxClient.HealthCheck})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Assemble the bridge: router for decoded readings, poller for the
	// request cycle, health reporter on the status topic.
	router := bridge.NewRouter(bridge.RouterConfig{
		TopicPrefix: cfg.Bridge.TopicPrefix,
		QoS:         byte(cfg.MQTT.QoS),
		Retain:      cfg.MQTT.Retain,
		Publisher:   mqttClient,
		Sinks:       sinks,
	})
	router.SetLogger(log)

	poller := bridge.NewPoller(bridge.PollerConfig{
		Codes:         cfg.Polling.Codes,
		PerCodeWait:   cfg.GetPerCodeWait(),
		CycleInterval: cfg.GetCycleInterval(),
		Writer:        port,
	})
	poller.SetLogger(log)

	var health *bridge.HealthReporter
	if cfg.Bridge.HealthInterval > 0 {
		health = bridge.NewHealthReporter(bridge.HealthReporterConfig{
			BridgeID:  cfg.Bridge.ID,
			Version:   version,
			Topic:     topics.Status(),
			Interval:  cfg.GetHealthInterval(),
			Publisher: mqttClient,
			Checks:    checks,
			Stats: func() bridge.Stats {
				return bridge.Stats{
					RequestsSent:    poller.RequestsSent(),
					Published:       router.Published(),
					PublishFailures: router.PublishFailures(),
					DecodeFailures:  router.DecodeFailures(),
				}
			},
		})
		health.SetLogger(log)
	}

	b, err := bridge.New(bridge.Config{
		Transport: port,
		Handler:   router,
		Poller:    poller,
		Health:    health,
	})
	if err != nil {
		return fmt.Errorf("creating bridge: %w", err)
	}
	b.SetLogger(log)

	if err := b.Start(ctx); err != nil {
		return fmt.Errorf("starting bridge: %w", err)
	}
	defer func() {
		log.Info("stopping bridge")
		b.Stop()
	}()

	log.Info("initialisation complete, polling",
		"codes", len(poller.Codes()),
		"cycle_interval", cfg.GetCycleInterval(),
	)

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}

// showRecent prints the most recent stored readings, newest first, and
// returns without starting the bridge.
//
// Parameters:
//   - ctx: Context for cancellation
//   - cfg: Loaded configuration (history section must be enabled)
//   - limit: Maximum number of readings to print
//   - code: Optional Q-code filter, "" for all codes
//
// Returns:
//   - error: If the store cannot be opened or queried
func showRecent(ctx context.Context, cfg *config.Config, limit int, code string) error {
	if !cfg.History.Enabled {
		return errors.New("history store is disabled in the configuration")
	}

	store, err := history.Open(ctx, history.Config{
		Path:        cfg.History.Path,
		WALMode:     cfg.History.WALMode,
		BusyTimeout: cfg.History.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening history store: %w", err)
	}
	defer store.Close()

	entries, err := store.Recent(ctx, code, limit)
	if err != nil {
		return fmt.Errorf("querying history: %w", err)
	}
	for _, e := range entries {
		fmt.Printf("%s  %-8s %-14s %s\n",
			e.ReceivedAt.Format(time.RFC3339), e.Code, e.Kind, e.Value)
	}
	return nil
}

// getConfigPath returns the configuration file path default.
// Uses SERIALBRIDGE_CONFIG environment variable if set.
func getConfigPath() string {
	if path := os.Getenv("SERIALBRIDGE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// splitCodes parses a comma-separated Q-code list, dropping empty
// entries and surrounding whitespace.
func splitCodes(s string) []string {
	var codes []string
	for _, part := range strings.Split(s, ",") {
		if code := strings.TrimSpace(part); code != "" {
			codes = append(codes, code)
		}
	}
	return codes
}

// historySink adapts the SQLite store to the bridge sink interface.
type historySink struct {
	store *history.Store
}

func (s *historySink) StoreReading(r bridge.Reading) error {
	return s.store.Record(context.Background(), history.Entry{
		ReceivedAt: r.ReceivedAt,
		Code:       r.Code,
		Value:      r.Value,
		Kind:       string(r.Kind),
		Raw:        r.Raw,
	})
}

// influxSink adapts the InfluxDB client to the bridge sink interface.
// Writes are batched and asynchronous, so this never blocks the read
// loop.
type influxSink struct {
	client *influxdb.Client
}

func (s *influxSink) StoreReading(r bridge.Reading) error {
	s.client.WriteReading(r.Code, string(r.Kind), r.Value, r.ReceivedAt)
	return nil
}
