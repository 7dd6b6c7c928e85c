package bridge

import (
	"errors"
	"testing"
	"time"
)

func TestDecodeCodedResponse(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

	tests := []struct {
		name      string
		chunk     []byte
		wantCode  string
		wantValue string
		wantKind  Kind
	}{
		{
			name:      "serial number reply",
			chunk:     []byte("\x02Q100,CNC001234\x17\r\n>"),
			wantCode:  "Q100",
			wantValue: "CNC001234",
			wantKind:  KindCodedResponse,
		},
		{
			name:      "value containing commas kept whole",
			chunk:     []byte("\x02Q500,PROGRAM, O01234, PARTS, 42\x17\r\n>"),
			wantCode:  "Q500",
			wantValue: "PROGRAM, O01234, PARTS, 42",
			wantKind:  KindCodedResponse,
		},
		{
			name:      "framed reply without comma",
			chunk:     []byte("\x02STATUS\x17\r\n>"),
			wantCode:  "UNKNOWN",
			wantValue: "STATUS",
			wantKind:  KindCodedResponse,
		},
		{
			name:      "empty payload between markers",
			chunk:     []byte("\x02\x17"),
			wantCode:  "UNKNOWN",
			wantValue: "",
			wantKind:  KindCodedResponse,
		},
		{
			name:      "spontaneous alarm line",
			chunk:     []byte("\x02SPONT_ALARM,OVERHEAT\x17\r\n"),
			wantCode:  "SPONT_ALARM",
			wantValue: "OVERHEAT",
			wantKind:  KindSpontaneous,
		},
		{
			name:      "spontaneous line after noise",
			chunk:     []byte("noise\n\x02SPONT_DOOR,OPEN\x17\r"),
			wantCode:  "SPONT_DOOR",
			wantValue: "OPEN",
			wantKind:  KindSpontaneous,
		},
		{
			name:      "plain text falls back to raw",
			chunk:     []byte("garbage\r\n"),
			wantCode:  "RAW",
			wantValue: "garbage",
			wantKind:  KindUnparseable,
		},
		{
			name:      "stx without etb falls back to raw",
			chunk:     []byte("\x02Q100,CNC001234\r\n"),
			wantCode:  "RAW",
			wantValue: "\x02Q100,CNC001234",
			wantKind:  KindUnparseable,
		},
		{
			name:      "commaless spontaneous line falls back to raw",
			chunk:     []byte("xSPONT_PING\x17\n"),
			wantCode:  "RAW",
			wantValue: "xSPONT_PING\x17",
			wantKind:  KindUnparseable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.chunk, now)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if got == nil {
				t.Fatal("Decode() returned nil reading")
			}
			if got.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", got.Code, tt.wantCode)
			}
			if got.Value != tt.wantValue {
				t.Errorf("Value = %q, want %q", got.Value, tt.wantValue)
			}
			if got.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", got.Kind, tt.wantKind)
			}
			if got.Raw != string(tt.chunk) {
				t.Errorf("Raw = %q, want %q", got.Raw, string(tt.chunk))
			}
			if !got.ReceivedAt.Equal(now) {
				t.Errorf("ReceivedAt = %v, want %v", got.ReceivedAt, now)
			}
		})
	}
}

func TestDecodeEmptyChunk(t *testing.T) {
	got, err := Decode(nil, time.Now())
	if err != nil {
		t.Fatalf("Decode(nil) error = %v", err)
	}
	if got != nil {
		t.Errorf("Decode(nil) = %+v, want nil", got)
	}

	got, err = Decode([]byte{}, time.Now())
	if err != nil {
		t.Fatalf("Decode(empty) error = %v", err)
	}
	if got != nil {
		t.Errorf("Decode(empty) = %+v, want nil", got)
	}
}

func TestDecodeInvalidUTF8(t *testing.T) {
	_, err := Decode([]byte{0x02, 0xff, 0xfe, 0x17}, time.Now())
	if !errors.Is(err, ErrInvalidEncoding) {
		t.Errorf("Decode() error = %v, want ErrInvalidEncoding", err)
	}
}

func TestDecodeIdempotent(t *testing.T) {
	now := time.Now()
	chunk := []byte("\x02Q201,12\x17\r\n>")

	first, err := Decode(chunk, now)
	if err != nil {
		t.Fatalf("first Decode() error = %v", err)
	}
	second, err := Decode(chunk, now)
	if err != nil {
		t.Fatalf("second Decode() error = %v", err)
	}
	if *first != *second {
		t.Errorf("Decode() not deterministic: %+v vs %+v", first, second)
	}
}

func TestTimeString(t *testing.T) {
	r := Reading{ReceivedAt: time.Date(2026, 3, 14, 9, 5, 3, 0, time.UTC)}
	if got := r.TimeString(); got != "09:05:03" {
		t.Errorf("TimeString() = %q, want %q", got, "09:05:03")
	}
}
