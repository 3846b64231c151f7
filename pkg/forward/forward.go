// Package forward delivers what a link session produces to consumers
// outside the process.
package forward

import (
	"context"
	"encoding/json"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/radiolink/pkg/radio/link"
	"github.com/robotalks/radiolink/pkg/radio/wire"
)

// FrameHandler is called for every decoded frame.
type FrameHandler interface {
	HandleFrame(context.Context, *wire.Frame)
}

// HandleFrameFunc is func type of FrameHandler.
type HandleFrameFunc func(context.Context, *wire.Frame)

// HandleFrame implements FrameHandler.
func (f HandleFrameFunc) HandleFrame(ctx context.Context, frame *wire.Frame) {
	f(ctx, frame)
}

// DiagnosticHandler is called for every transport diagnostic.
type DiagnosticHandler interface {
	HandleDiagnostic(context.Context, link.Diagnostic)
}

// HandleDiagnosticFunc is func type of DiagnosticHandler.
type HandleDiagnosticFunc func(context.Context, link.Diagnostic)

// HandleDiagnostic implements DiagnosticHandler.
func (f HandleDiagnosticFunc) HandleDiagnostic(ctx context.Context, d link.Diagnostic) {
	f(ctx, d)
}

// Source produces frames and diagnostics, like *link.Session.
type Source interface {
	Frames() <-chan *wire.Frame
	Diagnostics() <-chan link.Diagnostic
}

// Dispatcher fans the output of a Source out to handlers.
type Dispatcher struct {
	Source      Source
	Frames      []FrameHandler
	Diagnostics []DiagnosticHandler
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(src Source) *Dispatcher {
	return &Dispatcher{Source: src}
}

// HandleFrames adds frame handlers.
func (d *Dispatcher) HandleFrames(handlers ...FrameHandler) *Dispatcher {
	d.Frames = append(d.Frames, handlers...)
	return d
}

// HandleDiagnostics adds diagnostic handlers.
func (d *Dispatcher) HandleDiagnostics(handlers ...DiagnosticHandler) *Dispatcher {
	d.Diagnostics = append(d.Diagnostics, handlers...)
	return d
}

// Run implements Runnable. It returns when both chans of the Source are
// closed or ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	frameCh, diagCh := d.Source.Frames(), d.Source.Diagnostics()
	for frameCh != nil || diagCh != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case frame, ok := <-frameCh:
			if !ok {
				frameCh = nil
				continue
			}
			for _, h := range d.Frames {
				h.HandleFrame(ctx, frame)
			}
		case diag, ok := <-diagCh:
			if !ok {
				diagCh = nil
				continue
			}
			for _, h := range d.Diagnostics {
				h.HandleDiagnostic(ctx, diag)
			}
		}
	}
	glog.V(4).Info("dispatcher source closed")
	return nil
}

// DiagnosticRecord is the serializable form of a link.Diagnostic.
type DiagnosticRecord struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Bytes   int    `json:"bytes,omitempty"`
	From    string `json:"from,omitempty"`
	To      string `json:"to,omitempty"`
	Command string `json:"command,omitempty"`
	Error   string `json:"error,omitempty"`
	Time    int64  `json:"time"`
}

// NewDiagnosticRecord converts d, stamped with t.
func NewDiagnosticRecord(d link.Diagnostic, t time.Time) *DiagnosticRecord {
	r := &DiagnosticRecord{Type: d.Type(), Message: d.String(), Time: t.UnixMilli()}
	var err error
	switch v := d.(type) {
	case link.ResyncDiscard:
		r.Bytes = v.Bytes
	case link.OversizeClear:
		r.Bytes = v.Bytes
	case link.ModeTransition:
		r.From, r.To, err = v.From.String(), v.To.String(), v.Err
	case link.CommandResult:
		r.Command, err = v.Command, v.Err
	case link.TransportFailure:
		err = v.Err
	}
	if err != nil {
		r.Error = err.Error()
	}
	return r
}

// EncodeDiagnostic renders d as JSON.
func EncodeDiagnostic(d link.Diagnostic, t time.Time) ([]byte, error) {
	return json.Marshal(NewDiagnosticRecord(d, t))
}
