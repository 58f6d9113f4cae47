package codec

// Bounded little-endian octet primitives shared by the ENIP and CIP layers.
//
// Put* and Get* thread an offset through the buffer and advance it by the
// width of the value. Bounds are checked before the slice is touched.

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrBufferTooSmall is returned when a read or write would cross the buffer bound.
	ErrBufferTooSmall = errors.New("buffer too small")

	// ErrFormat marks malformed or undersized wire data found while decoding.
	ErrFormat = errors.New("format error")
)

func reserve(buf []byte, offset *int, width int) (int, error) {
	if offset == nil {
		return 0, fmt.Errorf("nil offset: %w", ErrBufferTooSmall)
	}
	start := *offset
	if start < 0 || width > len(buf)-start {
		return 0, fmt.Errorf("%w: need %d bytes at offset %d, have %d", ErrBufferTooSmall, width, start, len(buf))
	}
	*offset = start + width
	return start, nil
}

// Remaining reports how many bytes are left after offset.
func Remaining(buf []byte, offset int) int {
	if offset >= len(buf) {
		return 0
	}
	return len(buf) - offset
}

// PutUint8 writes a single byte at offset.
func PutUint8(buf []byte, offset *int, value uint8) error {
	at, err := reserve(buf, offset, 1)
	if err != nil {
		return err
	}
	buf[at] = value
	return nil
}

// PutUint16 writes a little-endian uint16 at offset.
func PutUint16(buf []byte, offset *int, value uint16) error {
	at, err := reserve(buf, offset, 2)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(buf[at:], value)
	return nil
}

// PutUint32 writes a little-endian uint32 at offset.
func PutUint32(buf []byte, offset *int, value uint32) error {
	at, err := reserve(buf, offset, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(buf[at:], value)
	return nil
}

// PutUint64 writes a little-endian uint64 at offset.
func PutUint64(buf []byte, offset *int, value uint64) error {
	at, err := reserve(buf, offset, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(buf[at:], value)
	return nil
}

// PutInt64 writes a little-endian int64 at offset.
func PutInt64(buf []byte, offset *int, value int64) error {
	return PutUint64(buf, offset, uint64(value))
}

// PutBytes copies src into buf at offset.
func PutBytes(buf []byte, offset *int, src []byte) error {
	at, err := reserve(buf, offset, len(src))
	if err != nil {
		return err
	}
	copy(buf[at:], src)
	return nil
}

// PutUint16BE writes a big-endian uint16 at offset (sockaddr fields only).
func PutUint16BE(buf []byte, offset *int, value uint16) error {
	at, err := reserve(buf, offset, 2)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint16(buf[at:], value)
	return nil
}

// PutInt16BE writes a big-endian int16 at offset.
func PutInt16BE(buf []byte, offset *int, value int16) error {
	return PutUint16BE(buf, offset, uint16(value))
}

// PutUint32BE writes a big-endian uint32 at offset.
func PutUint32BE(buf []byte, offset *int, value uint32) error {
	at, err := reserve(buf, offset, 4)
	if err != nil {
		return err
	}
	binary.BigEndian.PutUint32(buf[at:], value)
	return nil
}

// GetUint8 reads a single byte at offset.
func GetUint8(buf []byte, offset *int) (uint8, error) {
	at, err := reserve(buf, offset, 1)
	if err != nil {
		return 0, err
	}
	return buf[at], nil
}

// GetUint16 reads a little-endian uint16 at offset.
func GetUint16(buf []byte, offset *int) (uint16, error) {
	at, err := reserve(buf, offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(buf[at:]), nil
}

// GetUint32 reads a little-endian uint32 at offset.
func GetUint32(buf []byte, offset *int) (uint32, error) {
	at, err := reserve(buf, offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[at:]), nil
}

// GetUint64 reads a little-endian uint64 at offset.
func GetUint64(buf []byte, offset *int) (uint64, error) {
	at, err := reserve(buf, offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[at:]), nil
}

// GetInt64 reads a little-endian int64 at offset.
func GetInt64(buf []byte, offset *int) (int64, error) {
	v, err := GetUint64(buf, offset)
	return int64(v), err
}

// GetBytes returns a copy of the next n bytes at offset.
func GetBytes(buf []byte, offset *int, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative length %d", ErrBufferTooSmall, n)
	}
	at, err := reserve(buf, offset, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, buf[at:at+n])
	return out, nil
}

// GetUint16BE reads a big-endian uint16 at offset.
func GetUint16BE(buf []byte, offset *int) (uint16, error) {
	at, err := reserve(buf, offset, 2)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(buf[at:]), nil
}

// GetInt16BE reads a big-endian int16 at offset.
func GetInt16BE(buf []byte, offset *int) (int16, error) {
	v, err := GetUint16BE(buf, offset)
	return int16(v), err
}

// GetUint32BE reads a big-endian uint32 at offset.
func GetUint32BE(buf []byte, offset *int) (uint32, error) {
	at, err := reserve(buf, offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[at:]), nil
}

// AppendUint16 appends a little-endian uint16 to dst.
func AppendUint16(dst []byte, value uint16) []byte {
	return binary.LittleEndian.AppendUint16(dst, value)
}

// AppendUint32 appends a little-endian uint32 to dst.
func AppendUint32(dst []byte, value uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, value)
}

// AppendUint64 appends a little-endian uint64 to dst.
func AppendUint64(dst []byte, value uint64) []byte {
	return binary.LittleEndian.AppendUint64(dst, value)
}
