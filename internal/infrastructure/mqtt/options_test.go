package mqtt

import (
	"strings"
	"testing"

	"github.com/lefebvresam/serialbridge/internal/infrastructure/config"
)

func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:      "127.0.0.1",
			Port:      1883,
			ClientID:  "serialbridge-test",
			KeepAlive: 60,
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     30,
		},
	}
}

func TestBuildClientOptions(t *testing.T) {
	opts := buildClientOptions(testConfig())

	if len(opts.Servers) != 1 {
		t.Fatalf("expected 1 broker URL, got %d", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want tcp://127.0.0.1:1883", got)
	}
	if opts.ClientID != "serialbridge-test" {
		t.Errorf("ClientID = %q, want serialbridge-test", opts.ClientID)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].Scheme; got != "ssl" {
		t.Errorf("scheme = %q, want ssl", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLSConfig not set for TLS broker")
	}
}

func TestBuildClientOptionsAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "vives"
	cfg.Auth.Password = "vives"

	opts := buildClientOptions(cfg)

	if opts.Username != "vives" {
		t.Errorf("Username = %q, want vives", opts.Username)
	}
	if opts.Password != "vives" {
		t.Errorf("Password not carried through")
	}
}

func TestConfigureWill(t *testing.T) {
	opts := buildClientOptions(testConfig())
	topics := Topics{Prefix: "serial/data"}

	configureWill(opts, "serialbridge-test", topics)

	if !opts.WillEnabled {
		t.Fatal("will not enabled")
	}
	if opts.WillTopic != "serial/data/status" {
		t.Errorf("will topic = %q, want serial/data/status", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("will should be retained")
	}
	payload := string(opts.WillPayload)
	if !strings.Contains(payload, `"status":"offline"`) {
		t.Errorf("will payload missing offline status: %s", payload)
	}
	if !strings.Contains(payload, "unexpected_disconnect") {
		t.Errorf("will payload missing reason: %s", payload)
	}
}

func TestStatusPayloads(t *testing.T) {
	online := buildOnlinePayload("bridge-01")
	if !strings.Contains(online, `"status":"online"`) || !strings.Contains(online, "bridge-01") {
		t.Errorf("online payload malformed: %s", online)
	}

	offline := buildOfflinePayload("bridge-01")
	if !strings.Contains(offline, `"status":"offline"`) || !strings.Contains(offline, "graceful_shutdown") {
		t.Errorf("offline payload malformed: %s", offline)
	}
}

func TestTopicsStatus(t *testing.T) {
	topics := Topics{Prefix: "serial/data"}
	if got := topics.Status(); got != "serial/data/status" {
		t.Errorf("Status() = %q, want serial/data/status", got)
	}
}
