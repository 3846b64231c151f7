package wire

import "fmt"

const (
	// Marker is the first byte of every frame: the varint tag of field 1.
	Marker byte = 0x08
	// MaxFrameSize bounds the encoded size of a single frame.
	MaxFrameSize = 512
)

// Kind identifies the payload carried by a frame.
type Kind uint32

// Frame kinds.
const (
	KindUnknown  Kind = 0
	KindApps     Kind = 1
	KindInverter Kind = 2
	KindPack     Kind = 3
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindApps:
		return "apps"
	case KindInverter:
		return "inverter"
	case KindPack:
		return "pack"
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// Frame is one decoded telemetry message.
type Frame struct {
	Sequence  uint32
	Timestamp uint64
	Segments  []*Segment
	Payload   Payload
}

// Kind returns the kind derived from the payload.
func (f *Frame) Kind() Kind {
	if f.Payload == nil {
		return KindUnknown
	}
	return f.Payload.Kind()
}

// Segment carries a block of sampled values.
type Segment struct {
	ID     uint32    `json:"id"`
	Offset int32     `json:"offset,omitempty"`
	Values []float32 `json:"values,omitempty"`
}

// Payload is one of *Apps, *Inverter or *Pack.
type Payload interface {
	Kind() Kind
	payloadField() uint64
}

// Apps is the accelerator pedal position record.
type Apps struct {
	PedalA      float32 `json:"pedal_a"`
	PedalB      float32 `json:"pedal_b"`
	Implausible bool    `json:"implausible,omitempty"`
}

// Kind implements Payload.
func (*Apps) Kind() Kind { return KindApps }

func (*Apps) payloadField() uint64 { return fieldApps }

// Inverter is the motor inverter record.
type Inverter struct {
	RPM         int32   `json:"rpm"`
	Torque      float32 `json:"torque"`
	Temperature int32   `json:"temperature"`
}

// Kind implements Payload.
func (*Inverter) Kind() Kind { return KindInverter }

func (*Inverter) payloadField() uint64 { return fieldInverter }

// Pack is the battery pack record.
type Pack struct {
	Voltage   float32   `json:"voltage"`
	Current   float32   `json:"current"`
	SOC       uint32    `json:"soc"`
	CellTemps []float32 `json:"cell_temps,omitempty"`
}

// Kind implements Payload.
func (*Pack) Kind() Kind { return KindPack }

func (*Pack) payloadField() uint64 { return fieldPack }

// field numbers of Frame.
const (
	fieldKind      = 1
	fieldSequence  = 2
	fieldTimestamp = 3
	fieldSegment   = 4
	fieldApps      = 5
	fieldInverter  = 6
	fieldPack      = 7
)

// protobuf wire types.
const (
	wireVarint  = 0
	wireBytes   = 2
	wireFixed32 = 5
)

func tag(field, wireType uint64) uint64 {
	return field<<3 | wireType
}
