package wire

import (
	"encoding/binary"
	"math"

	"github.com/golang/protobuf/proto"
)

// Marshal encodes the frame canonically.
func Marshal(f *Frame) ([]byte, error) {
	payload, err := marshalPayload(f.Payload)
	if err != nil {
		return nil, err
	}
	var e encoder
	e.uint(fieldKind, uint64(f.Kind()))
	e.uint(fieldSequence, uint64(f.Sequence))
	e.uint(fieldTimestamp, f.Timestamp)
	for _, s := range f.Segments {
		var se encoder
		se.uint(1, uint64(s.ID))
		se.sint32(2, s.Offset)
		se.floats(3, s.Values)
		e.message(fieldSegment, se.Bytes())
	}
	e.message(f.Payload.payloadField(), payload)
	return e.Bytes(), nil
}

// Size returns the canonical encoded size of the frame, or -1 if it
// can't be encoded.
func Size(f *Frame) int {
	b, err := Marshal(f)
	if err != nil {
		return -1
	}
	return len(b)
}

func marshalPayload(p Payload) ([]byte, error) {
	var e encoder
	switch p := p.(type) {
	case *Apps:
		if p == nil {
			return nil, ErrNoPayload
		}
		e.float(1, p.PedalA)
		e.float(2, p.PedalB)
		e.bool(3, p.Implausible)
	case *Inverter:
		if p == nil {
			return nil, ErrNoPayload
		}
		e.sint32(1, p.RPM)
		e.float(2, p.Torque)
		e.sint32(3, p.Temperature)
	case *Pack:
		if p == nil {
			return nil, ErrNoPayload
		}
		e.float(1, p.Voltage)
		e.float(2, p.Current)
		e.uint(3, uint64(p.SOC))
		e.floats(4, p.CellTemps)
	default:
		return nil, ErrNoPayload
	}
	return e.Bytes(), nil
}

// encoder writes proto3 fields, omitting zero values.
// proto.Buffer never fails on encoding, so errors are dropped.
type encoder struct {
	proto.Buffer
}

func (e *encoder) uint(field, x uint64) {
	if x != 0 {
		e.EncodeVarint(tag(field, wireVarint))
		e.EncodeVarint(x)
	}
}

func (e *encoder) sint32(field uint64, v int32) {
	if v != 0 {
		e.EncodeVarint(tag(field, wireVarint))
		e.EncodeZigzag32(uint64(v))
	}
}

func (e *encoder) bool(field uint64, v bool) {
	if v {
		e.uint(field, 1)
	}
}

func (e *encoder) float(field uint64, v float32) {
	if bits := math.Float32bits(v); bits != 0 {
		e.EncodeVarint(tag(field, wireFixed32))
		e.EncodeFixed32(uint64(bits))
	}
}

func (e *encoder) floats(field uint64, vals []float32) {
	if len(vals) == 0 {
		return
	}
	packed := make([]byte, 4*len(vals))
	for n, v := range vals {
		binary.LittleEndian.PutUint32(packed[n*4:], math.Float32bits(v))
	}
	e.message(field, packed)
}

func (e *encoder) message(field uint64, b []byte) {
	e.EncodeVarint(tag(field, wireBytes))
	e.EncodeRawBytes(b)
}
