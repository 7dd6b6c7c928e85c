package bridge

import (
	"errors"
	"sync"
	"testing"
	"time"
)

// fakeTransport serves a scripted sequence of chunks, then reports
// idle (nil, nil) forever.
type fakeTransport struct {
	mu      sync.Mutex
	chunks  [][]byte
	readErr error
	writes  []string
}

func (t *fakeTransport) ReadLine() ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.readErr != nil {
		return nil, t.readErr
	}
	if len(t.chunks) == 0 {
		return nil, nil
	}
	chunk := t.chunks[0]
	t.chunks = t.chunks[1:]
	return chunk, nil
}

func (t *fakeTransport) WriteString(s string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.writes = append(t.writes, s)
	return nil
}

// recordingHandler collects chunks from the read loop.
type recordingHandler struct {
	mu     sync.Mutex
	chunks [][]byte
}

func (h *recordingHandler) HandleChunk(chunk []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.chunks = append(h.chunks, chunk)
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.chunks)
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Handler: &recordingHandler{}})
	if !errors.Is(err, ErrMissingTransport) {
		t.Errorf("New() without transport error = %v, want ErrMissingTransport", err)
	}

	_, err = New(Config{Transport: &fakeTransport{}})
	if !errors.Is(err, ErrMissingHandler) {
		t.Errorf("New() without handler error = %v, want ErrMissingHandler", err)
	}

	b, err := New(Config{Transport: &fakeTransport{}, Handler: &recordingHandler{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if b == nil {
		t.Fatal("New() returned nil bridge")
	}
}

func TestBridgeDispatchesChunks(t *testing.T) {
	transport := &fakeTransport{
		chunks: [][]byte{
			[]byte("\x02Q100,CNC001234\x17\r\n>"),
			[]byte("\x02Q201,12\x17\r\n>"),
		},
	}
	handler := &recordingHandler{}

	b, err := New(Config{
		Transport: transport,
		Handler:   handler,
		IdlePoll:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := b.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for handler.count() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("handler received %d chunks, want 2", handler.count())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBridgeRunsPoller(t *testing.T) {
	transport := &fakeTransport{}
	poller := NewPoller(PollerConfig{
		Codes:       []string{"Q100"},
		PerCodeWait: time.Millisecond,
		Writer:      transport,
	})

	b, err := New(Config{
		Transport: transport,
		Handler:   &recordingHandler{},
		Poller:    poller,
		IdlePoll:  time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := b.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer b.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for poller.RequestsSent() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("poller sent no requests")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBridgeReadErrorBackoff(t *testing.T) {
	transport := &fakeTransport{readErr: errors.New("device unplugged")}
	handler := &recordingHandler{}

	b, err := New(Config{
		Transport:   transport,
		Handler:     handler,
		IdlePoll:    time.Millisecond,
		ReadBackoff: time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := b.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// The loop must survive persistent read errors and still stop
	// promptly.
	time.Sleep(20 * time.Millisecond)
	start := time.Now()
	b.Stop()
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Stop() took %v, want well under 1s", elapsed)
	}

	if handler.count() != 0 {
		t.Errorf("handler received %d chunks from a failing port, want 0", handler.count())
	}
}

func TestBridgeStartTwice(t *testing.T) {
	b, err := New(Config{Transport: &fakeTransport{}, Handler: &recordingHandler{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := b.Start(t.Context()); err != nil {
		t.Fatalf("first Start() error = %v", err)
	}
	defer b.Stop()

	if err := b.Start(t.Context()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
}

func TestBridgeStopIdempotent(t *testing.T) {
	b, err := New(Config{Transport: &fakeTransport{}, Handler: &recordingHandler{}})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := b.Start(t.Context()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	b.Stop()
	b.Stop() // must not panic
}
