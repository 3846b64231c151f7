// Package wire provides the telemetry frame schema carried over the radio.
package wire

// Frames are encoded with the protobuf wire format but there is no outer
// length prefix: a frame starts with the tag of field 1 (Marker) and ends
// with its payload field, which is always the last one written.
//
// The decoder only accepts the canonical encoding produced by Marshal:
// fields in ascending order, minimal varints, no zero-valued scalars and no
// unknown fields. Anything else is reported as malformed so the framing
// layer can resynchronize instead of consuming a wrong number of bytes.
//
//   Frame:
//     1 kind      varint (1 APPS, 2 INVERTER, 3 PACK)
//     2 sequence  uint32
//     3 timestamp uint64
//     4 segments  repeated Segment
//     5 apps      Apps      \
//     6 inverter  Inverter   > exactly one
//     7 pack      Pack      /
//   Segment:  1 id uint32, 2 offset sint32, 3 values packed float
//   Apps:     1 pedal_a float, 2 pedal_b float, 3 implausible bool
//   Inverter: 1 rpm sint32, 2 torque float, 3 temperature sint32
//   Pack:     1 voltage float, 2 current float, 3 soc uint32,
//             4 cell_temps packed float
