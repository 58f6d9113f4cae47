package session

import (
	"bytes"
	"errors"
	"io"
	"testing"

	"github.com/tturner/enipcore/internal/enip"
)

// chunkReader hands out at most n bytes per Read.
type chunkReader struct {
	data []byte
	n    int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	size := r.n
	if size > len(p) {
		size = len(p)
	}
	if size > len(r.data) {
		size = len(r.data)
	}
	copy(p, r.data[:size])
	r.data = r.data[size:]
	return size, nil
}

// zeroReader returns (0, nil) once its data runs out.
type zeroReader struct{ data []byte }

func (r *zeroReader) Read(p []byte) (int, error) {
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

// shortWriter accepts at most limit bytes per call; after budget bytes it
// stops making progress.
type shortWriter struct {
	bytes.Buffer
	limit  int
	budget int
}

func (w *shortWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n > w.limit {
		n = w.limit
	}
	if w.budget >= 0 && w.Len()+n > w.budget {
		n = w.budget - w.Len()
	}
	w.Buffer.Write(p[:n])
	return n, nil
}

func TestReadFrameAcrossChunks(t *testing.T) {
	frame := enip.BuildRegisterSession(0x0102030405060708)
	for _, size := range []int{1, 3, 24, 27, 100} {
		got, err := ReadFrame(&chunkReader{data: append([]byte(nil), frame...), n: size})
		if err != nil {
			t.Fatalf("chunk %d: ReadFrame failed: %v", size, err)
		}
		if !bytes.Equal(got, frame) {
			t.Fatalf("chunk %d: frame = % X, want % X", size, got, frame)
		}
	}
}

func TestReadFrameLeavesNextFrame(t *testing.T) {
	first := enip.BuildRegisterSession(1)
	second := enip.BuildUnregisterSession(5, 2)
	r := bytes.NewReader(append(append([]byte(nil), first...), second...))
	got, err := ReadFrame(r)
	if err != nil || !bytes.Equal(got, first) {
		t.Fatalf("first frame = % X, %v", got, err)
	}
	got, err = ReadFrame(r)
	if err != nil || !bytes.Equal(got, second) {
		t.Fatalf("second frame = % X, %v", got, err)
	}
}

func TestReadFrameClosed(t *testing.T) {
	frame := enip.BuildRegisterSession(1)
	tests := []struct {
		name string
		r    io.Reader
	}{
		{"empty", bytes.NewReader(nil)},
		{"partial header", bytes.NewReader(frame[:10])},
		{"partial payload", bytes.NewReader(frame[:26])},
		{"zero-byte read", &zeroReader{data: frame[:12]}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadFrame(tt.r)
			if !errors.Is(err, ErrConnectionClosed) {
				t.Fatalf("err = %v, want ErrConnectionClosed", err)
			}
		})
	}
}

func TestWriteFullLoopsOverShortWrites(t *testing.T) {
	frame := enip.BuildRegisterSession(9)
	w := &shortWriter{limit: 5, budget: -1}
	if err := WriteFull(w, frame); err != nil {
		t.Fatalf("WriteFull failed: %v", err)
	}
	if !bytes.Equal(w.Bytes(), frame) {
		t.Fatalf("written = % X", w.Bytes())
	}
}

func TestWriteFullZeroWrite(t *testing.T) {
	w := &shortWriter{limit: 4, budget: 10}
	err := WriteFull(w, enip.BuildRegisterSession(9))
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("err = %v, want ErrConnectionClosed", err)
	}
	if w.Len() != 10 {
		t.Fatalf("wrote %d bytes before stalling, want 10", w.Len())
	}
}

func TestWriteFullError(t *testing.T) {
	err := WriteFull(failingWriter{err: io.ErrClosedPipe}, []byte{1})
	if !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("err = %v, want ErrConnectionClosed", err)
	}
	boom := errors.New("boom")
	err = WriteFull(failingWriter{err: boom}, []byte{1})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

type failingWriter struct{ err error }

func (w failingWriter) Write(p []byte) (int, error) { return 0, w.err }
