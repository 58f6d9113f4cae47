package session

import (
	"errors"
	"fmt"
	"io"

	"github.com/tturner/enipcore/internal/cip/codec"
	"github.com/tturner/enipcore/internal/enip"
)

// ErrConnectionClosed is returned when the channel stops moving bytes before
// a whole frame has been transferred.
var ErrConnectionClosed = errors.New("connection closed")

// WriteFull writes frame to w, looping over short writes. A write that makes
// no progress without an error is treated as a closed channel.
func WriteFull(w io.Writer, frame []byte) error {
	sent := 0
	for sent < len(frame) {
		n, err := w.Write(frame[sent:])
		sent += n
		if err != nil {
			if errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.EOF) {
				return fmt.Errorf("%w after %d of %d bytes: %v", ErrConnectionClosed, sent, len(frame), err)
			}
			return fmt.Errorf("write frame: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w after %d of %d bytes", ErrConnectionClosed, sent, len(frame))
		}
	}
	return nil
}

// readExact fills buf from r. Zero-byte reads and EOF before buf is full are
// reported as ErrConnectionClosed.
func readExact(r io.Reader, buf []byte) error {
	got := 0
	for got < len(buf) {
		n, err := r.Read(buf[got:])
		got += n
		if got == len(buf) {
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return fmt.Errorf("%w after %d of %d bytes", ErrConnectionClosed, got, len(buf))
			}
			return fmt.Errorf("read frame: %w", err)
		}
		if n == 0 {
			return fmt.Errorf("%w after %d of %d bytes", ErrConnectionClosed, got, len(buf))
		}
	}
	return nil
}

// ReadFrame reads exactly one encapsulation frame: the 24-byte header, then
// the number of payload bytes the header declares. The returned slice holds
// header and payload.
func ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, enip.HeaderSize)
	if err := readExact(r, header); err != nil {
		return nil, fmt.Errorf("header: %w", err)
	}
	offset := 2
	length, err := codec.GetUint16(header, &offset)
	if err != nil {
		return nil, err
	}
	frame := make([]byte, enip.HeaderSize+int(length))
	copy(frame, header)
	if err := readExact(r, frame[enip.HeaderSize:]); err != nil {
		return nil, fmt.Errorf("payload: %w", err)
	}
	return frame, nil
}
