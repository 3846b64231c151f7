package wire

import (
	"encoding/binary"
	"math"

	"github.com/golang/protobuf/proto"
)

const maxVarintLen = 10

// Unmarshal decodes the frame at the start of b and returns it with the
// number of bytes it occupies. Bytes after the frame are not examined.
//
// ErrIncomplete is returned when b ends inside a frame that may still be
// valid; any other error wraps ErrMalformed.
func Unmarshal(b []byte) (*Frame, int, error) {
	r := &reader{buf: b, top: true, msg: "frame"}
	var (
		f    Frame
		kind Kind
		last uint64
	)
	for {
		if r.pos >= len(r.buf) {
			return nil, 0, r.eof()
		}
		if last == 0 && r.buf[r.pos] != Marker {
			return nil, 0, r.fail("missing kind")
		}
		field, wt, err := r.next(&last, fieldSegment)
		if err != nil {
			return nil, 0, err
		}
		switch field {
		case fieldKind:
			var x uint64
			if x, err = r.uint(wt, math.MaxUint32); err != nil {
				return nil, 0, err
			}
			if kind = Kind(x); kind < KindApps || kind > KindPack {
				return nil, 0, r.fail("unknown kind")
			}
		case fieldSequence:
			var x uint64
			x, err = r.uint(wt, math.MaxUint32)
			f.Sequence = uint32(x)
		case fieldTimestamp:
			f.Timestamp, err = r.uint(wt, math.MaxUint64)
		case fieldSegment:
			var sub *reader
			if sub, err = r.message(wt, "segment"); err == nil {
				var s *Segment
				if s, err = sub.segment(); err == nil {
					f.Segments = append(f.Segments, s)
				}
			}
		case fieldApps, fieldInverter, fieldPack:
			var sub *reader
			if sub, err = r.message(wt, Kind(field-fieldApps+1).String()); err != nil {
				return nil, 0, err
			}
			if f.Payload, err = sub.payload(field); err != nil {
				return nil, 0, err
			}
			if f.Payload.Kind() != kind {
				return nil, 0, r.fail("payload does not match kind")
			}
			if r.pos > MaxFrameSize {
				return nil, 0, r.fail("frame too large")
			}
			return &f, r.pos, nil
		default:
			return nil, 0, r.fail("unknown field")
		}
		if err != nil {
			return nil, 0, err
		}
	}
}

// reader walks one (sub)message. Running out of bytes in the top-level
// message means more data is needed; in a sub-message it is malformed.
type reader struct {
	buf   []byte
	pos   int
	base  int
	top   bool
	msg   string
	field uint64
}

func (r *reader) fail(reason string) error {
	return &FieldError{Message: r.msg, Field: r.field, Offset: r.base + r.pos, Reason: reason}
}

func (r *reader) eof() error {
	if !r.top {
		return r.fail("truncated")
	}
	if len(r.buf) >= MaxFrameSize {
		return r.fail("frame too large")
	}
	return ErrIncomplete
}

func (r *reader) varint() (uint64, error) {
	x, n := proto.DecodeVarint(r.buf[r.pos:])
	if n == 0 {
		if rest := r.buf[r.pos:]; len(rest) < maxVarintLen && continued(rest) {
			return 0, r.eof()
		}
		return 0, r.fail("bad varint")
	}
	if n != proto.SizeVarint(x) {
		return 0, r.fail("non-minimal varint")
	}
	r.pos += n
	return x, nil
}

func continued(b []byte) bool {
	for _, c := range b {
		if c&0x80 == 0 {
			return false
		}
	}
	return true
}

// next reads a key. Fields must be ascending; only the repeated field may
// appear more than once in a row.
func (r *reader) next(last *uint64, repeated uint64) (field, wireType uint64, err error) {
	key, err := r.varint()
	if err != nil {
		return 0, 0, err
	}
	field, wireType = key>>3, key&7
	r.field = field
	if field == 0 {
		return 0, 0, r.fail("field 0")
	}
	if field < *last || (field == *last && field != repeated) {
		return 0, 0, r.fail("field out of order")
	}
	*last = field
	return field, wireType, nil
}

func (r *reader) expect(wireType, want uint64) error {
	if wireType != want {
		return r.fail("unexpected wire type")
	}
	return nil
}

func (r *reader) uint(wireType uint64, max uint64) (uint64, error) {
	if err := r.expect(wireType, wireVarint); err != nil {
		return 0, err
	}
	x, err := r.varint()
	if err != nil {
		return 0, err
	}
	if x == 0 {
		return 0, r.fail("zero value encoded")
	}
	if x > max {
		return 0, r.fail("value out of range")
	}
	return x, nil
}

func (r *reader) sint32(wireType uint64) (int32, error) {
	x, err := r.uint(wireType, math.MaxUint32)
	if err != nil {
		return 0, err
	}
	u := uint32(x)
	return int32(u>>1) ^ -int32(u&1), nil
}

func (r *reader) bool(wireType uint64) (bool, error) {
	x, err := r.uint(wireType, 1)
	return x == 1, err
}

func (r *reader) float(wireType uint64) (float32, error) {
	if err := r.expect(wireType, wireFixed32); err != nil {
		return 0, err
	}
	if r.pos+4 > len(r.buf) {
		return 0, r.eof()
	}
	bits := binary.LittleEndian.Uint32(r.buf[r.pos:])
	if bits == 0 {
		return 0, r.fail("zero value encoded")
	}
	r.pos += 4
	return math.Float32frombits(bits), nil
}

func (r *reader) bytes(wireType uint64) ([]byte, int, error) {
	if err := r.expect(wireType, wireBytes); err != nil {
		return nil, 0, err
	}
	l, err := r.varint()
	if err != nil {
		return nil, 0, err
	}
	if l > MaxFrameSize {
		return nil, 0, r.fail("length too large")
	}
	start := r.pos
	end := start + int(l)
	if end > len(r.buf) {
		if r.top && r.base+end > MaxFrameSize {
			return nil, 0, r.fail("frame too large")
		}
		return nil, 0, r.eof()
	}
	r.pos = end
	return r.buf[start:end], start, nil
}

func (r *reader) message(wireType uint64, name string) (*reader, error) {
	b, start, err := r.bytes(wireType)
	if err != nil {
		return nil, err
	}
	return &reader{buf: b, base: r.base + start, msg: name}, nil
}

func (r *reader) floats(wireType uint64) ([]float32, error) {
	b, _, err := r.bytes(wireType)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 || len(b)%4 != 0 {
		return nil, r.fail("bad packed floats")
	}
	vals := make([]float32, len(b)/4)
	for n := range vals {
		vals[n] = math.Float32frombits(binary.LittleEndian.Uint32(b[n*4:]))
	}
	return vals, nil
}

func (r *reader) segment() (*Segment, error) {
	var (
		s    Segment
		last uint64
	)
	for r.pos < len(r.buf) {
		field, wt, err := r.next(&last, 0)
		if err != nil {
			return nil, err
		}
		switch field {
		case 1:
			var x uint64
			x, err = r.uint(wt, math.MaxUint32)
			s.ID = uint32(x)
		case 2:
			s.Offset, err = r.sint32(wt)
		case 3:
			s.Values, err = r.floats(wt)
		default:
			err = r.fail("unknown field")
		}
		if err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func (r *reader) payload(field uint64) (Payload, error) {
	var (
		apps *Apps
		inv  *Inverter
		pack *Pack
		last uint64
	)
	switch field {
	case fieldApps:
		apps = &Apps{}
	case fieldInverter:
		inv = &Inverter{}
	default:
		pack = &Pack{}
	}
	for r.pos < len(r.buf) {
		f, wt, err := r.next(&last, 0)
		if err != nil {
			return nil, err
		}
		switch {
		case apps != nil && f == 1:
			apps.PedalA, err = r.float(wt)
		case apps != nil && f == 2:
			apps.PedalB, err = r.float(wt)
		case apps != nil && f == 3:
			apps.Implausible, err = r.bool(wt)
		case inv != nil && f == 1:
			inv.RPM, err = r.sint32(wt)
		case inv != nil && f == 2:
			inv.Torque, err = r.float(wt)
		case inv != nil && f == 3:
			inv.Temperature, err = r.sint32(wt)
		case pack != nil && f == 1:
			pack.Voltage, err = r.float(wt)
		case pack != nil && f == 2:
			pack.Current, err = r.float(wt)
		case pack != nil && f == 3:
			var x uint64
			x, err = r.uint(wt, math.MaxUint32)
			pack.SOC = uint32(x)
		case pack != nil && f == 4:
			pack.CellTemps, err = r.floats(wt)
		default:
			err = r.fail("unknown field")
		}
		if err != nil {
			return nil, err
		}
	}
	switch {
	case apps != nil:
		return apps, nil
	case inv != nil:
		return inv, nil
	}
	return pack, nil
}
