// Package capture records decoded frames to a stream and reads them back.
//
// Each record is the canonical frame encoding prefixed by its length as a
// 4-byte little-endian integer.
package capture

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/golang/glog"

	"github.com/robotalks/radiolink/pkg/radio/wire"
)

// Writer appends frames to a stream.
type Writer struct {
	w      *bufio.Writer
	closer io.Closer
	lock   sync.Mutex
	count  int
}

// NewWriter creates a Writer over w.
func NewWriter(w io.Writer) *Writer {
	cw := &Writer{w: bufio.NewWriter(w)}
	if c, ok := w.(io.Closer); ok {
		cw.closer = c
	}
	return cw
}

// Create creates or truncates the capture file at path.
func Create(path string) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	return NewWriter(f), nil
}

// WriteFrame appends one record.
func (w *Writer) WriteFrame(frame *wire.Frame) error {
	b, err := wire.Marshal(frame)
	if err != nil {
		return err
	}
	w.lock.Lock()
	defer w.lock.Unlock()
	if err = binary.Write(w.w, binary.LittleEndian, uint32(len(b))); err != nil {
		return err
	}
	if _, err = w.w.Write(b); err != nil {
		return err
	}
	w.count++
	return nil
}

// HandleFrame implements forward.FrameHandler.
func (w *Writer) HandleFrame(ctx context.Context, frame *wire.Frame) {
	if err := w.WriteFrame(frame); err != nil {
		glog.Errorf("capture frame %d: %v", frame.Sequence, err)
	}
}

// Count returns the number of frames written.
func (w *Writer) Count() int {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.count
}

// Flush writes buffered records to the underlying stream.
func (w *Writer) Flush() error {
	w.lock.Lock()
	defer w.lock.Unlock()
	return w.w.Flush()
}

// Close flushes and closes the underlying stream if it is a Closer.
func (w *Writer) Close() error {
	err := w.Flush()
	if w.closer != nil {
		if cerr := w.closer.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Reader reads frames back.
type Reader struct {
	r      *bufio.Reader
	closer io.Closer
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	cr := &Reader{r: bufio.NewReader(r)}
	if c, ok := r.(io.Closer); ok {
		cr.closer = c
	}
	return cr
}

// Open opens the capture file at path.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return NewReader(f), nil
}

// ReadFrame reads the next record. It returns io.EOF at a clean end of
// stream and io.ErrUnexpectedEOF for a truncated record.
func (r *Reader) ReadFrame() (*wire.Frame, error) {
	var size uint32
	if err := binary.Read(r.r, binary.LittleEndian, &size); err != nil {
		return nil, err
	}
	if size > wire.MaxFrameSize {
		return nil, fmt.Errorf("record of %d bytes exceeds frame size limit", size)
	}
	b := make([]byte, size)
	if _, err := io.ReadFull(r.r, b); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	frame, n, err := wire.Unmarshal(b)
	if err != nil {
		return nil, err
	}
	if n != len(b) {
		return nil, fmt.Errorf("%w: %d trailing bytes in record", wire.ErrMalformed, len(b)-n)
	}
	return frame, nil
}

// Close closes the underlying stream if it is a Closer.
func (r *Reader) Close() error {
	if r.closer != nil {
		return r.closer.Close()
	}
	return nil
}
