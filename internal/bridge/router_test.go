package bridge

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"
)

// fakePublisher records published messages for inspection.
type fakePublisher struct {
	mu        sync.Mutex
	messages  []publishedMessage
	connected bool
	err       error
}

type publishedMessage struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

func (p *fakePublisher) Publish(topic string, payload []byte, qos byte, retained bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.messages = append(p.messages, publishedMessage{topic, payload, qos, retained})
	return nil
}

func (p *fakePublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

func (p *fakePublisher) published() []publishedMessage {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]publishedMessage, len(p.messages))
	copy(out, p.messages)
	return out
}

// fakeSink records readings handed to it.
type fakeSink struct {
	readings []Reading
	err      error
}

func (s *fakeSink) StoreReading(r Reading) error {
	if s.err != nil {
		return s.err
	}
	s.readings = append(s.readings, r)
	return nil
}

func TestRouterTopic(t *testing.T) {
	r := NewRouter(RouterConfig{TopicPrefix: "serial/data"})

	tests := []struct {
		name    string
		reading Reading
		want    string
	}{
		{
			name:    "coded response",
			reading: Reading{Code: "Q100", Kind: KindCodedResponse},
			want:    "serial/data/qcode/q100",
		},
		{
			name:    "spontaneous",
			reading: Reading{Code: "SPONT_ALARM", Kind: KindSpontaneous},
			want:    "serial/data/spontaneous/spont_alarm",
		},
		{
			name:    "unparseable",
			reading: Reading{Code: "RAW", Kind: KindUnparseable},
			want:    "serial/data/unknown/raw",
		},
		{
			name:    "unknown coded reply stays in qcode class",
			reading: Reading{Code: "UNKNOWN", Kind: KindCodedResponse},
			want:    "serial/data/qcode/unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := r.Topic(tt.reading); got != tt.want {
				t.Errorf("Topic() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRouterDefaultPrefix(t *testing.T) {
	r := NewRouter(RouterConfig{})
	got := r.Topic(Reading{Code: "Q100", Kind: KindCodedResponse})
	if got != "serial/data/qcode/q100" {
		t.Errorf("Topic() = %q, want default prefix applied", got)
	}
}

func TestRouterRoute(t *testing.T) {
	pub := &fakePublisher{connected: true}
	sink := &fakeSink{}
	r := NewRouter(RouterConfig{
		TopicPrefix: "serial/data",
		QoS:         1,
		Publisher:   pub,
		Sinks:       []ReadingSink{sink},
	})

	reading := Reading{
		ReceivedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
		Code:       "Q100",
		Value:      "CNC001234",
		Raw:        "\x02Q100,CNC001234\x17\r\n>",
		Kind:       KindCodedResponse,
	}
	r.Route(reading)

	msgs := pub.published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "serial/data/qcode/q100" {
		t.Errorf("topic = %q, want %q", msgs[0].topic, "serial/data/qcode/q100")
	}
	if msgs[0].qos != 1 {
		t.Errorf("qos = %d, want 1", msgs[0].qos)
	}
	if msgs[0].retained {
		t.Error("reading message should not be retained")
	}

	var decoded map[string]string
	if err := json.Unmarshal(msgs[0].payload, &decoded); err != nil {
		t.Fatalf("payload is not valid JSON: %v", err)
	}
	want := map[string]string{
		"timestamp":    "09:26:53",
		"qcode":        "Q100",
		"value":        "CNC001234",
		"message_type": "qcode_response",
		"raw_data":     "\x02Q100,CNC001234\x17\r\n>",
	}
	for k, v := range want {
		if decoded[k] != v {
			t.Errorf("payload[%q] = %q, want %q", k, decoded[k], v)
		}
	}

	if len(sink.readings) != 1 {
		t.Fatalf("sink received %d readings, want 1", len(sink.readings))
	}
	if r.Published() != 1 {
		t.Errorf("Published() = %d, want 1", r.Published())
	}
}

func TestRouterPublishFailure(t *testing.T) {
	pub := &fakePublisher{err: errors.New("broker down")}
	sink := &fakeSink{}
	r := NewRouter(RouterConfig{
		Publisher: pub,
		Sinks:     []ReadingSink{sink},
	})

	r.Route(Reading{Code: "Q100", Kind: KindCodedResponse, ReceivedAt: time.Now()})

	if r.PublishFailures() != 1 {
		t.Errorf("PublishFailures() = %d, want 1", r.PublishFailures())
	}
	if r.Published() != 0 {
		t.Errorf("Published() = %d, want 0", r.Published())
	}
	// Sinks still see the reading even when the broker is down.
	if len(sink.readings) != 1 {
		t.Errorf("sink received %d readings, want 1", len(sink.readings))
	}
}

func TestRouterSinkFailureDoesNotBlockOthers(t *testing.T) {
	pub := &fakePublisher{connected: true}
	bad := &fakeSink{err: errors.New("disk full")}
	good := &fakeSink{}
	r := NewRouter(RouterConfig{
		Publisher: pub,
		Sinks:     []ReadingSink{bad, good},
	})

	r.Route(Reading{Code: "Q201", Kind: KindCodedResponse, ReceivedAt: time.Now()})

	if len(good.readings) != 1 {
		t.Errorf("second sink received %d readings, want 1", len(good.readings))
	}
}

func TestRouterHandleChunk(t *testing.T) {
	pub := &fakePublisher{connected: true}
	r := NewRouter(RouterConfig{Publisher: pub})

	r.HandleChunk([]byte("\x02Q104,MDI\x17\r\n>"))

	msgs := pub.published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if msgs[0].topic != "serial/data/qcode/q104" {
		t.Errorf("topic = %q, want %q", msgs[0].topic, "serial/data/qcode/q104")
	}
}

func TestRouterHandleChunkInvalidEncoding(t *testing.T) {
	pub := &fakePublisher{connected: true}
	r := NewRouter(RouterConfig{Publisher: pub})

	r.HandleChunk([]byte{0xff, 0xfe})

	if len(pub.published()) != 0 {
		t.Error("undecodable chunk should not be published")
	}
	if r.DecodeFailures() != 1 {
		t.Errorf("DecodeFailures() = %d, want 1", r.DecodeFailures())
	}
}

func TestRouterHandleChunkEmpty(t *testing.T) {
	pub := &fakePublisher{connected: true}
	r := NewRouter(RouterConfig{Publisher: pub})

	r.HandleChunk(nil)

	if len(pub.published()) != 0 {
		t.Error("empty chunk should not be published")
	}
}
