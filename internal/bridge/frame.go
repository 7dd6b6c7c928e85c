package bridge

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Control bytes used by the machine's framed response format:
// <STX><code>,<value><ETB><CR/LF>'>'
const (
	stx = 0x02 // start of text, opens a framed reply
	etb = 0x17 // end of transmission block, closes the payload
)

// Decode parses a raw chunk read from the serial port into a Reading.
//
// Three shapes are recognised, tried in order:
//
//  1. A framed reply starting with STX and containing ETB. The bytes
//     between them split on the first comma into code and value. A
//     framed reply without a comma is kept with code "UNKNOWN".
//  2. A spontaneous report: any line containing "SPONT_" and ETB,
//     scanned line by line. Spontaneous lines without a comma are
//     skipped rather than reported as UNKNOWN.
//  3. Anything else becomes a KindUnparseable reading with code "RAW"
//     and the whitespace-trimmed text as value.
//
// Parameters:
//   - chunk: Raw bytes from the serial port
//   - now: Receive time stamped onto the reading
//
// Returns:
//   - *Reading: The decoded reading, or nil for an empty chunk
//   - error: ErrInvalidEncoding if the chunk is not valid UTF-8
func Decode(chunk []byte, now time.Time) (*Reading, error) {
	if len(chunk) == 0 {
		return nil, nil
	}
	if !utf8.Valid(chunk) {
		return nil, fmt.Errorf("%w: % x", ErrInvalidEncoding, chunk)
	}

	text := string(chunk)

	// Framed reply: STX at the start, payload up to ETB.
	if text[0] == stx {
		if etbPos := strings.IndexByte(text, etb); etbPos > 0 {
			payload := text[1:etbPos]
			if code, value, ok := strings.Cut(payload, ","); ok {
				return &Reading{
					ReceivedAt: now,
					Code:       code,
					Value:      value,
					Raw:        text,
					Kind:       KindCodedResponse,
				}, nil
			}
			return &Reading{
				ReceivedAt: now,
				Code:       "UNKNOWN",
				Value:      payload,
				Raw:        text,
				Kind:       KindCodedResponse,
			}, nil
		}
	}

	// Spontaneous report: scan lines for SPONT_ markers. The first
	// byte of a matching line is assumed to be STX and skipped.
	if strings.Contains(text, "SPONT_") {
		for _, line := range strings.Split(text, "\n") {
			if !strings.Contains(line, "SPONT_") {
				continue
			}
			etbPos := strings.IndexByte(line, etb)
			if etbPos <= 0 {
				continue
			}
			payload := line[1:etbPos]
			code, value, ok := strings.Cut(payload, ",")
			if !ok {
				continue
			}
			return &Reading{
				ReceivedAt: now,
				Code:       code,
				Value:      value,
				Raw:        text,
				Kind:       KindSpontaneous,
			}, nil
		}
	}

	// Unparseable data is still published so nothing is lost.
	return &Reading{
		ReceivedAt: now,
		Code:       "RAW",
		Value:      strings.TrimSpace(text),
		Raw:        text,
		Kind:       KindUnparseable,
	}, nil
}
