package wire

import "encoding/json"

type frameJSON struct {
	Kind      string     `json:"kind"`
	Sequence  uint32     `json:"seq"`
	Timestamp uint64     `json:"ts"`
	Segments  []*Segment `json:"segments,omitempty"`
	Payload   Payload    `json:"payload"`
}

// MarshalJSON implements json.Marshaler for dashboards.
func (f *Frame) MarshalJSON() ([]byte, error) {
	return json.Marshal(&frameJSON{
		Kind:      f.Kind().String(),
		Sequence:  f.Sequence,
		Timestamp: f.Timestamp,
		Segments:  f.Segments,
		Payload:   f.Payload,
	})
}
