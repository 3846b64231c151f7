package framing

import "bytes"

// Accumulator buffers bytes received from the link until they are consumed.
// It is owned by a single goroutine.
type Accumulator struct {
	buf []byte
}

// Append adds a chunk to the tail.
func (a *Accumulator) Append(chunk []byte) {
	a.buf = append(a.buf, chunk...)
}

// Len returns the number of unconsumed bytes.
func (a *Accumulator) Len() int {
	return len(a.buf)
}

// Bytes returns the unconsumed bytes. The slice is only valid until the
// next mutation and must not be modified.
func (a *Accumulator) Bytes() []byte {
	return a.buf
}

// IndexByte returns the offset of the first c, or -1.
func (a *Accumulator) IndexByte(c byte) int {
	return bytes.IndexByte(a.buf, c)
}

// Consume removes and returns the first n bytes.
// Consuming more than Len is a programming error and panics.
func (a *Accumulator) Consume(n int) []byte {
	if n < 0 || n > len(a.buf) {
		panic("framing: consume beyond buffered bytes")
	}
	out := make([]byte, n)
	copy(out, a.buf)
	// compact to the unconsumed tail
	a.buf = append(a.buf[:0], a.buf[n:]...)
	return out
}

// Clear discards everything.
func (a *Accumulator) Clear() {
	a.buf = a.buf[:0]
}
