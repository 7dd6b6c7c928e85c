// Line Bridge - raw serial line to MQTT forwarder.
//
// This is the line-forwarding personality: every line read from the
// serial port is published verbatim to a single MQTT topic, with
// optional terminator rewriting and rate limiting. No decoding, no
// polling; machines that stream plain text get a transparent pipe to
// the broker.
//
// Unlike cmd/serialbridge this personality is configured from
// command-line flags, so it can be dropped into a shell script or a
// systemd unit without a config file. An optional -config flag loads
// a configuration file (the serial, mqtt, forward, and logging
// sections) as defaults; explicit flags always win.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lefebvresam/serialbridge/internal/bridge"
	"github.com/lefebvresam/serialbridge/internal/infrastructure/config"
	"github.com/lefebvresam/serialbridge/internal/infrastructure/logging"
	"github.com/lefebvresam/serialbridge/internal/infrastructure/mqtt"
	"github.com/lefebvresam/serialbridge/internal/infrastructure/serialport"
)

// Version information - set at build time via ldflags
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

// Exit codes. Transport and broker failures get distinct codes so
// supervisors can tell a missing USB adapter from a dead broker.
const (
	exitOK          = 0
	exitFailure     = 1
	exitSerialOpen  = 2
	exitMQTTConnect = 3
)

// options holds the parsed command-line flags.
type options struct {
	configPath string

	device   string
	baud     int
	parity   string
	stopBits int
	timeout  int

	host     string
	port     int
	clientID string
	username string
	password string
	qos      int
	retain   bool
	tls      bool

	topic       string
	lineEnding  string
	rateLimitMs int
	logLevel    string
	showVersion bool
}

func main() {
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

// parseFlags parses args into options, recording which flags were
// explicitly set so config-file values never override them.
func parseFlags(args []string) (*options, map[string]bool, error) {
	opts := &options{}
	flags := flag.NewFlagSet("linebridge", flag.ContinueOnError)

	flags.StringVar(&opts.configPath, "config", "", "optional configuration file providing flag defaults")

	flags.StringVar(&opts.device, "device", "", "serial device path (required)")
	flags.IntVar(&opts.baud, "baud", 38400, "serial baud rate")
	flags.StringVar(&opts.parity, "parity", "none", "parity: none, even, odd")
	flags.IntVar(&opts.stopBits, "stopbits", 1, "stop bits: 1 or 2")
	flags.IntVar(&opts.timeout, "timeout", 1000, "serial read timeout in milliseconds")

	flags.StringVar(&opts.host, "host", "", "MQTT broker host (required)")
	flags.IntVar(&opts.port, "port", 1883, "MQTT broker port")
	flags.StringVar(&opts.clientID, "client-id", "linebridge", "MQTT client ID")
	flags.StringVar(&opts.username, "username", "", "MQTT username")
	flags.StringVar(&opts.password, "password", "", "MQTT password")
	flags.IntVar(&opts.qos, "qos", 1, "MQTT publish QoS (0-2)")
	flags.BoolVar(&opts.retain, "retain", false, "publish retained messages")
	flags.BoolVar(&opts.tls, "tls", false, "connect to the broker over TLS")

	flags.StringVar(&opts.topic, "topic", "", "MQTT publish topic (required)")
	flags.StringVar(&opts.lineEnding, "line-ending", "strip", "line ending handling: strip, keep, crlf, lf")
	flags.IntVar(&opts.rateLimitMs, "rate-limit-ms", 0, "minimum interval between publishes in milliseconds (0 = unlimited)")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	flags.BoolVar(&opts.showVersion, "version", false, "print version and exit")

	if err := flags.Parse(args); err != nil {
		return nil, nil, err
	}

	set := make(map[string]bool)
	flags.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	return opts, set, nil
}

// applyConfig fills options from a loaded configuration file.
// Only flags the user did not set explicitly are touched.
func applyConfig(opts *options, cfg *config.Config, set map[string]bool) {
	if !set["device"] {
		opts.device = cfg.Serial.Device
	}
	if !set["baud"] {
		opts.baud = cfg.Serial.Baud
	}
	if !set["parity"] {
		opts.parity = cfg.Serial.Parity
	}
	if !set["stopbits"] {
		opts.stopBits = cfg.Serial.StopBits
	}
	if !set["timeout"] {
		opts.timeout = int(cfg.GetReadTimeout() / time.Millisecond)
	}

	if !set["host"] {
		opts.host = cfg.MQTT.Broker.Host
	}
	if !set["port"] {
		opts.port = cfg.MQTT.Broker.Port
	}
	if !set["tls"] {
		opts.tls = cfg.MQTT.Broker.TLS
	}
	if !set["client-id"] {
		opts.clientID = cfg.MQTT.Broker.ClientID
	}
	if !set["username"] {
		opts.username = cfg.MQTT.Auth.Username
	}
	if !set["password"] {
		opts.password = cfg.MQTT.Auth.Password
	}
	if !set["qos"] {
		opts.qos = cfg.MQTT.QoS
	}
	if !set["retain"] {
		opts.retain = cfg.MQTT.Retain
	}

	if !set["topic"] {
		opts.topic = cfg.Forward.Topic
	}
	if !set["line-ending"] {
		opts.lineEnding = cfg.Forward.LineEnding
	}
	if !set["rate-limit-ms"] {
		opts.rateLimitMs = int(cfg.GetRateLimit() / time.Millisecond)
	}
	if !set["log-level"] {
		opts.logLevel = cfg.Logging.Level
	}
}

// validate checks the merged options.
func (o *options) validate() error {
	if o.device == "" {
		return errors.New("-device is required")
	}
	if o.host == "" {
		return errors.New("-host is required")
	}
	if o.topic == "" {
		return errors.New("-topic is required")
	}
	if o.qos < 0 || o.qos > 2 {
		return fmt.Errorf("invalid QoS %d: must be 0, 1 or 2", o.qos)
	}
	switch bridge.LineEnding(o.lineEnding) {
	case bridge.LineEndingStrip, bridge.LineEndingKeep, bridge.LineEndingCRLF, bridge.LineEndingLF:
	default:
		return fmt.Errorf("invalid line ending %q: must be strip, keep, crlf or lf", o.lineEnding)
	}
	return nil
}

// buildOptions parses flags, merges in the optional config file, and
// validates the result.
func buildOptions(args []string) (*options, error) {
	opts, set, err := parseFlags(args)
	if err != nil {
		return nil, err
	}
	if opts.showVersion {
		return opts, nil
	}

	if opts.configPath != "" {
		cfg, err := config.Load(opts.configPath)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		applyConfig(opts, cfg, set)
	}

	if err := opts.validate(); err != nil {
		return nil, err
	}
	return opts, nil
}

func run(ctx context.Context, args []string) error {
	opts, err := buildOptions(args)
	if err != nil {
		return err
	}
	if opts.showVersion {
		fmt.Printf("linebridge %s (commit %s, built %s)\n", version, commit, date)
		return nil
	}

	log := logging.New(config.LoggingConfig{
		Level:  opts.logLevel,
		Format: "text",
		Output: "stderr",
	}, version)
	log.Info("starting line bridge",
		"version", version,
		"device", opts.device,
		"topic", opts.topic,
	)

	// Open the serial port
	port, err := serialport.Open(serialport.Config{
		Device:      opts.device,
		Baud:        opts.baud,
		Parity:      opts.parity,
		StopBits:    opts.stopBits,
		ReadTimeout: time.Duration(opts.timeout) * time.Millisecond,
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
	log.Info("serial port open", "device", opts.device, "baud", opts.baud)

	// Connect to MQTT broker. The status topic sits alongside the
	// line topic.
	topics := mqtt.Topics{Prefix: opts.topic}
	mqttClient, err := mqtt.Connect(config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     opts.host,
			Port:     opts.port,
			TLS:      opts.tls,
			ClientID: opts.clientID,
		},
		Auth: config.MQTTAuthConfig{
			Username: opts.username,
			Password: opts.password,
		},
		QoS:    opts.qos,
		Retain: opts.retain,
	}, topics)
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
		"broker", fmt.Sprintf("%s:%d", opts.host, opts.port),
		"client_id", opts.clientID,
	)

	mqttClient.SetOnConnect(func() {
		log.Info("MQTT reconnected")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	var limiter *bridge.RateLimiter
	if opts.rateLimitMs > 0 {
		limiter = bridge.NewRateLimiter(time.Duration(opts.rateLimitMs) * time.Millisecond)
	}

	forwarder := bridge.NewForwarder(bridge.ForwarderConfig{
		Topic:      opts.topic,
		QoS:        byte(opts.qos),
		Retain:     opts.retain,
		LineEnding: bridge.LineEnding(opts.lineEnding),
		Limiter:    limiter,
		Publisher:  mqttClient,
	})
	forwarder.SetLogger(log)

	b, err := bridge.New(bridge.Config{
		Transport: port,
		Handler:   forwarder,
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

	log.Info("forwarding lines", "topic", opts.topic, "line_ending", opts.lineEnding)

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	return nil
}
