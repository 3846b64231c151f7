package framing

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/radiolink/pkg/radio/wire"
)

func TestAccumulator(t *testing.T) {
	var acc Accumulator
	require.Equal(t, 0, acc.Len())
	acc.Append([]byte{1, 2, 3})
	acc.Append([]byte{'\n', 5})
	require.Equal(t, 5, acc.Len())
	require.Equal(t, 3, acc.IndexByte('\n'))
	require.Equal(t, -1, acc.IndexByte(9))

	require.Equal(t, []byte{1, 2}, acc.Consume(2))
	require.Equal(t, []byte{3, '\n', 5}, acc.Bytes())
	require.Equal(t, []byte{}, acc.Consume(0))
	require.Panics(t, func() { acc.Consume(4) })

	acc.Clear()
	require.Equal(t, 0, acc.Len())
	require.Panics(t, func() { acc.Consume(1) })
}

func TestAccumulatorConsumeCopies(t *testing.T) {
	var acc Accumulator
	acc.Append([]byte{1, 2, 3, 4})
	head := acc.Consume(2)
	acc.Append([]byte{5, 6})
	require.Equal(t, []byte{1, 2}, head)
	require.Equal(t, []byte{3, 4, 5, 6}, acc.Bytes())
}

func testFrames() []*wire.Frame {
	return []*wire.Frame{
		{Sequence: 1, Timestamp: 1000, Payload: &wire.Apps{PedalA: 0.5, PedalB: 0.49}},
		{Sequence: 2, Timestamp: 1010, Segments: []*wire.Segment{{ID: 1, Values: []float32{1, 2, 3}}}, Payload: &wire.Inverter{RPM: 5400, Torque: 88.5, Temperature: 61}},
		{Sequence: 3, Timestamp: 1020, Payload: &wire.Pack{Voltage: 398.7, Current: -3, SOC: 76, CellTemps: []float32{30, 31}}},
		{Sequence: 4, Payload: &wire.Apps{Implausible: true}},
	}
}

func encodeFrames(t *testing.T, frames ...*wire.Frame) []byte {
	var out []byte
	for _, f := range frames {
		b, err := wire.Marshal(f)
		require.NoError(t, err)
		out = append(out, b...)
	}
	return out
}

func feed(d *Decoder, acc *Accumulator, chunks ...[]byte) (res Result) {
	for _, chunk := range chunks {
		acc.Append(chunk)
		r := d.Decode(acc)
		res.Frames = append(res.Frames, r.Frames...)
		res.Events = append(res.Events, r.Events...)
	}
	return
}

func split(b []byte, at ...int) [][]byte {
	var chunks [][]byte
	prev := 0
	for _, n := range at {
		chunks = append(chunks, b[prev:n])
		prev = n
	}
	return append(chunks, b[prev:])
}

func TestDecodeChunking(t *testing.T) {
	frames := testFrames()
	stream := encodeFrames(t, frames...)

	var acc Accumulator
	whole := feed(NewDecoder(), &acc, stream)
	require.Equal(t, frames, whole.Frames)
	require.Empty(t, whole.Events)
	require.Equal(t, 0, acc.Len())

	t.Run("byte by byte", func(t *testing.T) {
		var acc Accumulator
		chunks := make([][]byte, len(stream))
		for n := range stream {
			chunks[n] = stream[n : n+1]
		}
		res := feed(NewDecoder(), &acc, chunks...)
		require.Equal(t, whole, res)
	})

	rnd := rand.New(rand.NewSource(1))
	for i := 0; i < 50; i++ {
		var at []int
		for n := 1; n < len(stream); n++ {
			if rnd.Intn(6) == 0 {
				at = append(at, n)
			}
		}
		var acc Accumulator
		res := feed(NewDecoder(), &acc, split(stream, at...)...)
		require.Equalf(t, whole, res, "split at %v", at)
		require.Equal(t, 0, acc.Len())
	}
}

func TestDecodeAppsSplitMidMessage(t *testing.T) {
	b := encodeFrames(t, &wire.Frame{Sequence: 7, Timestamp: 99, Payload: &wire.Apps{PedalA: 0.1, PedalB: 0.2}})
	require.Equal(t, []byte{0x08, 0x01}, b[:2])

	var acc Accumulator
	d := NewDecoder()
	res := feed(d, &acc, b[:len(b)/2])
	require.Empty(t, res.Frames)
	require.Empty(t, res.Events)

	res = feed(d, &acc, b[len(b)/2:])
	require.Len(t, res.Frames, 1)
	require.Equal(t, wire.KindApps, res.Frames[0].Kind())
	require.Empty(t, res.Events)
}

func TestDecodeLeadingGarbage(t *testing.T) {
	msg := encodeFrames(t, testFrames()[0])
	var acc Accumulator
	res := feed(NewDecoder(), &acc, append([]byte{0xff, 0xff}, msg...))
	require.Equal(t, []Event{{Kind: EventResync, Bytes: 2}}, res.Events)
	require.Equal(t, testFrames()[:1], res.Frames)
}

func TestDecodeStrayMarkerInGarbage(t *testing.T) {
	msg := encodeFrames(t, testFrames()[1])
	var acc Accumulator
	res := feed(NewDecoder(), &acc, append([]byte{0x08, 0x09, 0xff}, msg...))
	require.Equal(t, []Event{{Kind: EventResync, Bytes: 3}}, res.Events)
	require.Equal(t, testFrames()[1:2], res.Frames)
}

func TestDecodeRandomGarbage(t *testing.T) {
	frames := testFrames()
	msg := encodeFrames(t, frames[2])
	rnd := rand.New(rand.NewSource(7))
	for k := 1; k < DefaultLookahead; k++ {
		garbage := make([]byte, k)
		for n := range garbage {
			c := byte(rnd.Intn(256))
			for c == wire.Marker {
				c = byte(rnd.Intn(256))
			}
			garbage[n] = c
		}
		var acc Accumulator
		d := NewDecoder()
		chunks := split(append(garbage, msg...), k/2+1)
		res := feed(d, &acc, chunks...)
		require.LessOrEqualf(t, len(res.Events), 1, "garbage %x", garbage)
		require.Equalf(t, frames[2:3], res.Frames, "garbage %x", garbage)
	}
}

func TestDecodeHeaderShapedGarbage(t *testing.T) {
	frames := testFrames()
	testCases := []struct {
		name    string
		garbage []byte
		frames  []*wire.Frame
	}{
		{"unfinished inverter header", []byte{0x08, 0x02, 0x32, 0x30}, frames[:1]},
		{"unfinished apps candidate", []byte{0xff, 0x08, 0x01, 0x2a, 0x30}, frames[:1]},
		{"malformed candidate in between", []byte{0x08, 0x01, 0x2a, 0x30, 0x08, 0x03}, frames[:1]},
		{"long pack header", []byte{0x08, 0x03, 0x3a, 0x7f, 0xff}, frames[:1]},
		{"followed by another frame", []byte{0x08, 0x02, 0x32, 0x30}, []*wire.Frame{frames[0], frames[3]}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var acc Accumulator
			res := feed(NewDecoder(), &acc, append(append([]byte{}, tc.garbage...), encodeFrames(t, tc.frames...)...))
			require.Equal(t, tc.frames, res.Frames)
			require.Equal(t, []Event{{Kind: EventResync, Bytes: len(tc.garbage)}}, res.Events)
			require.Equal(t, 0, acc.Len())
		})
	}
}

func TestDecodeHeaderShapedGarbageWaits(t *testing.T) {
	msg := encodeFrames(t, testFrames()[0])
	garbage := []byte{0x08, 0x02, 0x32, 0x30}
	var acc Accumulator
	d := NewDecoder()
	res := feed(d, &acc, append(append([]byte{}, garbage...), msg[:10]...))
	require.Empty(t, res.Frames)
	require.Empty(t, res.Events)
	require.Equal(t, len(garbage)+10, acc.Len())

	res = feed(d, &acc, msg[10:])
	require.Equal(t, testFrames()[:1], res.Frames)
	require.Equal(t, []Event{{Kind: EventResync, Bytes: len(garbage)}}, res.Events)
}

func TestDecodeRandomHeaderGarbage(t *testing.T) {
	frames := testFrames()
	msg := encodeFrames(t, frames[2])
	rnd := rand.New(rand.NewSource(11))
	for i := 0; i < 200; i++ {
		target := 1 + rnd.Intn(26)
		var garbage []byte
		for len(garbage) < target {
			if rnd.Intn(2) == 0 {
				c := byte(rnd.Intn(256))
				for c == wire.Marker {
					c = byte(rnd.Intn(256))
				}
				garbage = append(garbage, c)
				continue
			}
			// marker, kind, payload tag and a length running past the buffer
			kind := byte(1 + rnd.Intn(3))
			garbage = append(garbage, wire.Marker, kind, 0x22+kind<<3, byte(0x40+rnd.Intn(0x40)))
		}
		var acc Accumulator
		res := feed(NewDecoder(), &acc, append(append([]byte{}, garbage...), msg...))
		require.Equalf(t, frames[2:3], res.Frames, "garbage %x", garbage)
		require.Equalf(t, []Event{{Kind: EventResync, Bytes: len(garbage)}}, res.Events, "garbage %x", garbage)
		require.Equal(t, 0, acc.Len())
	}
}

func TestDecodeGarbageBetweenFrames(t *testing.T) {
	frames := testFrames()
	stream := encodeFrames(t, frames[0])
	stream = append(stream, 0x11, 0x22, 0x33)
	stream = append(stream, encodeFrames(t, frames[1], frames[2])...)

	var acc Accumulator
	res := feed(NewDecoder(), &acc, stream)
	require.Equal(t, frames[:3], res.Frames)
	require.Equal(t, []Event{{Kind: EventResync, Bytes: 3}}, res.Events)
}

func TestDecodeOversize(t *testing.T) {
	d := &Decoder{Lookahead: 32, Oversize: 300}
	var acc Accumulator
	chunk := make([]byte, 64)
	for n := range chunk {
		chunk[n] = 0xaa
	}
	var events []Event
	for i := 0; i < 7; i++ {
		res := feed(d, &acc, chunk)
		require.Empty(t, res.Frames)
		events = append(events, res.Events...)
		if acc.Len() > 0 {
			require.LessOrEqual(t, acc.Len(), 300)
		}
	}
	require.Equal(t, []Event{{Kind: EventOversize, Bytes: 320}}, events)
	require.Equal(t, 128, acc.Len())
}

func TestDecodeWaitsForMarker(t *testing.T) {
	var acc Accumulator
	d := NewDecoder()
	res := feed(d, &acc, []byte{0x01, 0x02, 0x03})
	require.Empty(t, res.Frames)
	require.Empty(t, res.Events)
	require.Equal(t, 3, acc.Len())

	res = feed(d, &acc, encodeFrames(t, testFrames()[3]))
	require.Equal(t, []Event{{Kind: EventResync, Bytes: 3}}, res.Events)
	require.Len(t, res.Frames, 1)
}

func TestDecodeSingleByte(t *testing.T) {
	var acc Accumulator
	res := feed(NewDecoder(), &acc, []byte{0xff})
	require.Empty(t, res.Events)
	require.Equal(t, 1, acc.Len())
}

func TestEventString(t *testing.T) {
	require.Equal(t, "resync discard (2 bytes)", Event{Kind: EventResync, Bytes: 2}.String())
	require.Equal(t, "oversize clear (9 bytes)", Event{Kind: EventOversize, Bytes: 9}.String())
}
