package codec

import (
	"bytes"
	"errors"
	"testing"
)

func TestPutUint16(t *testing.T) {
	tests := []struct {
		name  string
		value uint16
		want  []byte
	}{
		{"zero", 0x0000, []byte{0x00, 0x00}},
		{"little endian", 0x0102, []byte{0x02, 0x01}},
		{"max", 0xFFFF, []byte{0xFF, 0xFF}},
		{"CIP port 44818", 44818, []byte{0x12, 0xAF}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, 2)
			offset := 0
			if err := PutUint16(buf, &offset, tt.value); err != nil {
				t.Fatalf("PutUint16 error: %v", err)
			}
			if !bytes.Equal(buf, tt.want) {
				t.Errorf("PutUint16() = %v, want %v", buf, tt.want)
			}
			if offset != 2 {
				t.Errorf("offset = %d, want 2", offset)
			}
		})
	}
}

func TestPutUint32(t *testing.T) {
	buf := make([]byte, 6)
	offset := 2
	if err := PutUint32(buf, &offset, 0x12345678); err != nil {
		t.Fatalf("PutUint32 error: %v", err)
	}
	want := []byte{0x00, 0x00, 0x78, 0x56, 0x34, 0x12}
	if !bytes.Equal(buf, want) {
		t.Errorf("PutUint32() = %v, want %v", buf, want)
	}
	if offset != 6 {
		t.Errorf("offset = %d, want 6", offset)
	}
}

func TestRoundTripWidths(t *testing.T) {
	buf := make([]byte, 1+2+4+8+8)
	offset := 0
	if err := PutUint8(buf, &offset, 0xAB); err != nil {
		t.Fatal(err)
	}
	if err := PutUint16(buf, &offset, 0xBEEF); err != nil {
		t.Fatal(err)
	}
	if err := PutUint32(buf, &offset, 0xDEADBEEF); err != nil {
		t.Fatal(err)
	}
	if err := PutUint64(buf, &offset, 0x0102030405060708); err != nil {
		t.Fatal(err)
	}
	if err := PutInt64(buf, &offset, -2); err != nil {
		t.Fatal(err)
	}
	if offset != len(buf) {
		t.Fatalf("offset = %d, want %d", offset, len(buf))
	}

	offset = 0
	if v, err := GetUint8(buf, &offset); err != nil || v != 0xAB {
		t.Fatalf("GetUint8 = 0x%02X, %v", v, err)
	}
	if v, err := GetUint16(buf, &offset); err != nil || v != 0xBEEF {
		t.Fatalf("GetUint16 = 0x%04X, %v", v, err)
	}
	if v, err := GetUint32(buf, &offset); err != nil || v != 0xDEADBEEF {
		t.Fatalf("GetUint32 = 0x%08X, %v", v, err)
	}
	if v, err := GetUint64(buf, &offset); err != nil || v != 0x0102030405060708 {
		t.Fatalf("GetUint64 = 0x%016X, %v", v, err)
	}
	if v, err := GetInt64(buf, &offset); err != nil || v != -2 {
		t.Fatalf("GetInt64 = %d, %v", v, err)
	}
}

func TestBigEndianVariants(t *testing.T) {
	buf := make([]byte, 8)
	offset := 0
	if err := PutInt16BE(buf, &offset, 2); err != nil {
		t.Fatal(err)
	}
	if err := PutUint16BE(buf, &offset, 44818); err != nil {
		t.Fatal(err)
	}
	if err := PutUint32BE(buf, &offset, 0xC0A80001); err != nil {
		t.Fatal(err)
	}
	want := []byte{0x00, 0x02, 0xAF, 0x12, 0xC0, 0xA8, 0x00, 0x01}
	if !bytes.Equal(buf, want) {
		t.Fatalf("big endian encode = %v, want %v", buf, want)
	}

	offset = 0
	if v, _ := GetInt16BE(buf, &offset); v != 2 {
		t.Errorf("GetInt16BE = %d, want 2", v)
	}
	if v, _ := GetUint16BE(buf, &offset); v != 44818 {
		t.Errorf("GetUint16BE = %d, want 44818", v)
	}
	if v, _ := GetUint32BE(buf, &offset); v != 0xC0A80001 {
		t.Errorf("GetUint32BE = 0x%08X", v)
	}
}

func TestBufferTooSmall(t *testing.T) {
	tests := []struct {
		name string
		fn   func(buf []byte, offset *int) error
		size int
	}{
		{"put u8", func(b []byte, o *int) error { return PutUint8(b, o, 1) }, 0},
		{"put u16", func(b []byte, o *int) error { return PutUint16(b, o, 1) }, 1},
		{"put u32", func(b []byte, o *int) error { return PutUint32(b, o, 1) }, 3},
		{"put u64", func(b []byte, o *int) error { return PutUint64(b, o, 1) }, 7},
		{"get u16", func(b []byte, o *int) error { _, err := GetUint16(b, o); return err }, 1},
		{"get u32", func(b []byte, o *int) error { _, err := GetUint32(b, o); return err }, 3},
		{"get i64", func(b []byte, o *int) error { _, err := GetInt64(b, o); return err }, 7},
		{"get bytes", func(b []byte, o *int) error { _, err := GetBytes(b, o, 5); return err }, 4},
		{"put bytes", func(b []byte, o *int) error { return PutBytes(b, o, []byte{1, 2, 3}) }, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.size)
			offset := 0
			err := tt.fn(buf, &offset)
			if !errors.Is(err, ErrBufferTooSmall) {
				t.Fatalf("expected ErrBufferTooSmall, got %v", err)
			}
			if offset != 0 {
				t.Errorf("offset advanced to %d on failure", offset)
			}
		})
	}
}

func TestOffsetPastEnd(t *testing.T) {
	buf := make([]byte, 4)
	offset := 6
	if _, err := GetUint8(buf, &offset); !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("expected ErrBufferTooSmall, got %v", err)
	}
	offset = -1
	if err := PutUint8(buf, &offset, 0); !errors.Is(err, ErrBufferTooSmall) {
		t.Fatalf("expected ErrBufferTooSmall for negative offset, got %v", err)
	}
}

func TestGetBytesCopies(t *testing.T) {
	buf := []byte{1, 2, 3, 4}
	offset := 1
	got, err := GetBytes(buf, &offset, 2)
	if err != nil {
		t.Fatal(err)
	}
	got[0] = 0xFF
	if buf[1] != 2 {
		t.Fatalf("GetBytes aliased the source buffer")
	}
	if offset != 3 {
		t.Fatalf("offset = %d, want 3", offset)
	}
}

func TestAppendHelpers(t *testing.T) {
	out := AppendUint16(nil, 0x0102)
	out = AppendUint32(out, 0x03040506)
	out = AppendUint64(out, 0x0708090A0B0C0D0E)
	want := []byte{0x02, 0x01, 0x06, 0x05, 0x04, 0x03, 0x0E, 0x0D, 0x0C, 0x0B, 0x0A, 0x09, 0x08, 0x07}
	if !bytes.Equal(out, want) {
		t.Fatalf("append = %v, want %v", out, want)
	}
	if Remaining(out, 10) != 4 || Remaining(out, 20) != 0 {
		t.Fatalf("Remaining mismatch")
	}
}
