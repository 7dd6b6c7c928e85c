package bridge

import (
	"strings"
	"testing"
	"time"
)

func TestForwarderStrip(t *testing.T) {
	tests := []struct {
		name  string
		chunk []byte
		want  string
		skip  bool
	}{
		{
			name:  "trailing CRLF removed",
			chunk: []byte("T01 M06\r\n"),
			want:  "T01 M06",
		},
		{
			name:  "trailing spaces and tabs removed",
			chunk: []byte("STATUS OK \t\r\n"),
			want:  "STATUS OK",
		},
		{
			name:  "leading whitespace kept",
			chunk: []byte("  indented\n"),
			want:  "  indented",
		},
		{
			name:  "whitespace-only line skipped",
			chunk: []byte(" \t\r\n"),
			skip:  true,
		},
		{
			name:  "empty chunk skipped",
			chunk: nil,
			skip:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{connected: true}
			f := NewForwarder(ForwarderConfig{
				Topic:     "machines/cnc1/output",
				Publisher: pub,
			})

			f.HandleChunk(tt.chunk)

			msgs := pub.published()
			if tt.skip {
				if len(msgs) != 0 {
					t.Fatalf("published %d messages, want 0", len(msgs))
				}
				return
			}
			if len(msgs) != 1 {
				t.Fatalf("published %d messages, want 1", len(msgs))
			}
			if got := string(msgs[0].payload); got != tt.want {
				t.Errorf("payload = %q, want %q", got, tt.want)
			}
			if msgs[0].topic != "machines/cnc1/output" {
				t.Errorf("topic = %q, want %q", msgs[0].topic, "machines/cnc1/output")
			}
		})
	}
}

func TestForwarderLineEndings(t *testing.T) {
	tests := []struct {
		name   string
		ending LineEnding
		chunk  []byte
		want   string
	}{
		{
			name:   "keep leaves the line untouched",
			ending: LineEndingKeep,
			chunk:  []byte("hello\r\n"),
			want:   "hello\r\n",
		},
		{
			name:   "crlf normalises bare LF",
			ending: LineEndingCRLF,
			chunk:  []byte("hello\n"),
			want:   "hello\r\n",
		},
		{
			name:   "crlf leaves existing CRLF alone",
			ending: LineEndingCRLF,
			chunk:  []byte("hello\r\n"),
			want:   "hello\r\n",
		},
		{
			name:   "lf normalises CRLF",
			ending: LineEndingLF,
			chunk:  []byte("hello\r\n"),
			want:   "hello\n",
		},
		{
			name:   "lf adds terminator to bare line",
			ending: LineEndingLF,
			chunk:  []byte("hello"),
			want:   "hello\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &fakePublisher{connected: true}
			f := NewForwarder(ForwarderConfig{
				Topic:      "machines/cnc1/output",
				LineEnding: tt.ending,
				Publisher:  pub,
			})

			f.HandleChunk(tt.chunk)

			msgs := pub.published()
			if len(msgs) != 1 {
				t.Fatalf("published %d messages, want 1", len(msgs))
			}
			if got := string(msgs[0].payload); got != tt.want {
				t.Errorf("payload = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestForwarderInvalidUTF8Replaced(t *testing.T) {
	pub := &fakePublisher{connected: true}
	f := NewForwarder(ForwarderConfig{
		Topic:     "machines/cnc1/output",
		Publisher: pub,
	})

	f.HandleChunk([]byte{'O', 'K', 0xff, 0xfe, '\n'})

	msgs := pub.published()
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	got := string(msgs[0].payload)
	if !strings.HasPrefix(got, "OK") {
		t.Errorf("payload = %q, want OK prefix preserved", got)
	}
	if !strings.Contains(got, "�") {
		t.Errorf("payload = %q, want invalid bytes replaced with U+FFFD", got)
	}
}

func TestForwarderRateLimit(t *testing.T) {
	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	current := base

	limiter := NewRateLimiter(100 * time.Millisecond)
	limiter.now = func() time.Time { return current }

	pub := &fakePublisher{connected: true}
	f := NewForwarder(ForwarderConfig{
		Topic:     "machines/cnc1/output",
		Limiter:   limiter,
		Publisher: pub,
	})

	f.HandleChunk([]byte("first\n"))
	current = base.Add(10 * time.Millisecond)
	f.HandleChunk([]byte("too fast\n"))
	current = base.Add(200 * time.Millisecond)
	f.HandleChunk([]byte("third\n"))

	msgs := pub.published()
	if len(msgs) != 2 {
		t.Fatalf("published %d messages, want 2", len(msgs))
	}
	if string(msgs[0].payload) != "first" || string(msgs[1].payload) != "third" {
		t.Errorf("published %q and %q, want first and third", msgs[0].payload, msgs[1].payload)
	}
	if f.RateLimited() != 1 {
		t.Errorf("RateLimited() = %d, want 1", f.RateLimited())
	}
}
