package framing

import (
	"fmt"

	"github.com/golang/glog"

	"github.com/robotalks/radiolink/pkg/radio/wire"
)

// Default limits of Decoder.
const (
	DefaultLookahead = 40
	DefaultOversize  = 1024
)

// EventKind classifies a framing event.
type EventKind int

const (
	// EventResync means leading bytes were discarded to realign on a frame.
	EventResync EventKind = iota
	// EventOversize means the whole buffer was dropped because no frame
	// start could be found in it.
	EventOversize
)

// Event reports bytes lost while framing.
type Event struct {
	Kind  EventKind
	Bytes int
}

// String implements fmt.Stringer.
func (e Event) String() string {
	if e.Kind == EventOversize {
		return fmt.Sprintf("oversize clear (%d bytes)", e.Bytes)
	}
	return fmt.Sprintf("resync discard (%d bytes)", e.Bytes)
}

// Result is what one Decode pass produced.
type Result struct {
	Frames []*wire.Frame
	Events []Event
}

// Decoder extracts frames from the front of an Accumulator.
type Decoder struct {
	// Lookahead is how far a resync scans for the next Marker.
	Lookahead int
	// Oversize is the buffered length above which a buffer without any
	// frame start is dropped.
	Oversize int
}

// NewDecoder creates a Decoder with default limits.
func NewDecoder() *Decoder {
	return &Decoder{Lookahead: DefaultLookahead, Oversize: DefaultOversize}
}

// Decode consumes as many frames as possible from acc.
// Undecodable bytes are discarded and reported as events, never as errors.
func (d *Decoder) Decode(acc *Accumulator) (res Result) {
	for acc.Len() >= 2 {
		frame, n, err := decodeFrame(acc.Bytes())
		if err == nil {
			acc.Consume(n)
			res.Frames = append(res.Frames, frame)
			continue
		}
		buf := acc.Bytes()
		if wire.IsIncomplete(err) {
			// an unfinished head must not hold back a finished frame behind it
			if k := d.confirmed(buf, 1); k > 0 {
				acc.Consume(k)
				res.Events = append(res.Events, Event{Kind: EventResync, Bytes: k})
				continue
			}
			return
		}
		if glog.V(2) {
			glog.Infof("decode at head failed: %v", err)
		}
		if k := d.resync(buf); k > 0 {
			if _, _, err := decodeFrame(buf[k:]); wire.IsIncomplete(err) {
				if next := d.confirmed(buf, k+1); next > 0 {
					k = next
				}
			}
			acc.Consume(k)
			res.Events = append(res.Events, Event{Kind: EventResync, Bytes: k})
			continue
		}
		if l := acc.Len(); l > d.oversize() {
			acc.Clear()
			res.Events = append(res.Events, Event{Kind: EventOversize, Bytes: l})
		}
		return
	}
	return
}

// resync returns the offset of the first plausible frame start after the
// head, or 0 if none is within the lookahead window.
func (d *Decoder) resync(buf []byte) int {
	limit := d.lookahead()
	for k := 1; k < len(buf) && k <= limit; k++ {
		if buf[k] != wire.Marker {
			continue
		}
		if _, _, err := decodeFrame(buf[k:]); err == nil || wire.IsIncomplete(err) {
			return k
		}
	}
	return 0
}

// confirmed returns the offset, starting at from and within the lookahead
// window, of the first frame which decodes completely and is followed by
// either the end of buf or another Marker. It returns 0 if there is none.
func (d *Decoder) confirmed(buf []byte, from int) int {
	limit := d.lookahead()
	for k := from; k < len(buf) && k <= limit; k++ {
		if buf[k] != wire.Marker {
			continue
		}
		if _, n, err := decodeFrame(buf[k:]); err == nil {
			if end := k + n; end == len(buf) || buf[end] == wire.Marker {
				return k
			}
		}
	}
	return 0
}

func (d *Decoder) lookahead() int {
	if d.Lookahead > 0 {
		return d.Lookahead
	}
	return DefaultLookahead
}

func (d *Decoder) oversize() int {
	if d.Oversize > 0 {
		return d.Oversize
	}
	return DefaultOversize
}

// decodeFrame decodes a frame and measures it by re-encoding. A frame whose
// canonical encoding differs in length from the bytes it was parsed from
// would shift every later boundary, so it is rejected as malformed.
func decodeFrame(buf []byte) (*wire.Frame, int, error) {
	frame, n, err := wire.Unmarshal(buf)
	if err != nil {
		return nil, 0, err
	}
	size := wire.Size(frame)
	if size != n {
		return nil, 0, fmt.Errorf("%w: re-encoded %d bytes, parsed %d", wire.ErrMalformed, size, n)
	}
	return frame, size, nil
}
