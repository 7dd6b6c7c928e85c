package serialport

import (
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"
)

// Config contains the settings needed to open a serial port.
type Config struct {
	// Device is the port path (e.g., "/dev/ttyUSB1").
	Device string

	// Baud is the line speed in bits per second.
	Baud int

	// Parity is one of "none", "even", "odd".
	Parity string

	// StopBits is 1 or 2.
	StopBits int

	// ReadTimeout bounds how long a single read blocks. Reads return
	// whatever bytes arrived within the window, possibly none.
	ReadTimeout time.Duration
}

// Port wraps a go.bug.st/serial port with line-oriented reads and
// string writes.
//
// The bridge uses the port from two goroutines with disjoint roles:
// the poll loop writes, the read loop reads. The underlying OS handle
// supports that split, so no locking is needed here.
type Port struct {
	port serial.Port
	cfg  Config
}

// Open opens the configured serial device.
//
// The port is configured for 8 data bits with the requested baud,
// parity, and stop bits, and the read timeout is applied immediately.
// The machine side also expects XON/XOFF flow control; go.bug.st/serial
// does not expose software flow control, and in practice the machine's
// short responses never fill the FIFOs.
//
// Parameters:
//   - cfg: Port configuration
//
// Returns:
//   - *Port: Open port ready for use
//   - error: ErrOpenFailed (wrapped) if the device cannot be opened
func Open(cfg Config) (*Port, error) {
	parity, err := parseParity(cfg.Parity)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}
	stopBits, err := parseStopBits(cfg.StopBits)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrOpenFailed, err)
	}

	mode := &serial.Mode{
		BaudRate: cfg.Baud,
		DataBits: 8,
		Parity:   parity,
		StopBits: stopBits,
	}

	port, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrOpenFailed, cfg.Device, err)
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("%w: setting read timeout: %w", ErrOpenFailed, err)
	}

	return &Port{port: port, cfg: cfg}, nil
}

// ReadLine reads bytes until a newline or the read timeout elapses.
//
// It returns whatever arrived within the window: a complete line
// (newline included), a partial line if the machine stalled mid-send,
// or nil if the line was quiet. A nil result with nil error simply
// means "nothing yet" — callers poll again.
//
// Returns:
//   - []byte: The raw chunk, or nil when no bytes arrived
//   - error: ErrReadFailed (wrapped) on a transport-level failure
func (p *Port) ReadLine() ([]byte, error) {
	var line []byte
	buf := make([]byte, 1)

	for {
		n, err := p.port.Read(buf)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrReadFailed, err)
		}
		if n == 0 {
			// Timeout: hand back whatever we have
			if len(line) == 0 {
				return nil, nil
			}
			return line, nil
		}

		line = append(line, buf[0])
		if buf[0] == '\n' {
			return line, nil
		}
	}
}

// WriteString writes UTF-8 text to the port.
//
// Used by the poll scheduler to send code requests ("Q100\n").
//
// Returns:
//   - error: ErrWriteFailed (wrapped) on failure or short write
func (p *Port) WriteString(s string) error {
	data := []byte(s)
	n, err := p.port.Write(data)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrWriteFailed, err)
	}
	if n != len(data) {
		return fmt.Errorf("%w: short write (%d of %d bytes)", ErrWriteFailed, n, len(data))
	}
	return nil
}

// Close releases the port handle.
func (p *Port) Close() error {
	if p.port == nil {
		return nil
	}
	return p.port.Close()
}

// parseParity maps a config parity string to the serial library constant.
func parseParity(s string) (serial.Parity, error) {
	switch strings.ToLower(s) {
	case "", "none":
		return serial.NoParity, nil
	case "even":
		return serial.EvenParity, nil
	case "odd":
		return serial.OddParity, nil
	default:
		return serial.NoParity, fmt.Errorf("unsupported parity %q", s)
	}
}

// parseStopBits maps a config stop-bit count to the serial library constant.
func parseStopBits(n int) (serial.StopBits, error) {
	switch n {
	case 0, 1:
		return serial.OneStopBit, nil
	case 2:
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("unsupported stop bits %d", n)
	}
}
