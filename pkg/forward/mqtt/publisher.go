package mqtt

import (
	"context"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/golang/glog"

	"github.com/robotalks/radiolink/pkg/forward"
	"github.com/robotalks/radiolink/pkg/radio/link"
	"github.com/robotalks/radiolink/pkg/radio/wire"
)

// Topic layout below the queue prefix:
//
//	<station>/frames/<kind>  canonical frame bytes
//	<station>/diag           diagnostic JSON
//	<station>/status         retained "online" or "offline"
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// FrameTopic is the topic of frames of kind from station.
func FrameTopic(station string, kind wire.Kind) string {
	return station + "/frames/" + kind.String()
}

// DiagTopic is the topic of diagnostics from station.
func DiagTopic(station string) string {
	return station + "/diag"
}

// StatusTopic is the retained status topic of station.
func StatusTopic(station string) string {
	return station + "/status"
}

// SetStatusWill registers the offline status as the last will, so
// subscribers learn about a station which vanished.
func SetStatusWill(opts *paho.ClientOptions, topicPrefix, station string) {
	opts.SetBinaryWill(topicPrefix+StatusTopic(station), []byte(StatusOffline), 1, true)
}

// Publisher publishes frames and diagnostics of a station.
type Publisher struct {
	Queue   *Queue
	Station string
	QoS     byte

	now func() time.Time
}

// NewPublisher creates a Publisher. The station goes online whenever the
// queue connects.
func NewPublisher(q *Queue, station string) *Publisher {
	p := &Publisher{Queue: q, Station: station, now: time.Now}
	q.OnConnect = func(q *Queue) {
		q.PubWith(StatusTopic(station), []byte(StatusOnline), 1, true)
	}
	return p
}

// HandleFrame implements forward.FrameHandler.
func (p *Publisher) HandleFrame(ctx context.Context, frame *wire.Frame) {
	payload, err := wire.Marshal(frame)
	if err != nil {
		glog.Errorf("encode frame %d: %v", frame.Sequence, err)
		return
	}
	p.Queue.PubWith(FrameTopic(p.Station, frame.Kind()), payload, p.QoS, false)
}

// HandleDiagnostic implements forward.DiagnosticHandler.
func (p *Publisher) HandleDiagnostic(ctx context.Context, d link.Diagnostic) {
	payload, err := forward.EncodeDiagnostic(d, p.now())
	if err != nil {
		glog.Errorf("encode diagnostic: %v", err)
		return
	}
	p.Queue.PubWith(DiagTopic(p.Station), payload, p.QoS, false)
}

// Offline publishes the offline status before a graceful shutdown.
func (p *Publisher) Offline() error {
	token := p.Queue.PubWith(StatusTopic(p.Station), []byte(StatusOffline), 1, true)
	if !token.WaitTimeout(time.Second) {
		return nil
	}
	return token.Error()
}
