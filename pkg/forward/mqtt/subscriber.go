package mqtt

import (
	"encoding/json"
	"strings"

	"github.com/golang/glog"

	"github.com/robotalks/radiolink/pkg/forward"
	"github.com/robotalks/radiolink/pkg/radio/wire"
)

// SubscribeFrames subscribes to frames of every station.
func SubscribeFrames(q *Queue, fn func(station string, frame *wire.Frame)) *Subscription {
	return q.Sub("+/frames/+", func(topic string, payload []byte) {
		frame, n, err := wire.Unmarshal(payload)
		if err == nil && n != len(payload) {
			err = wire.ErrMalformed
		}
		if err != nil {
			glog.Warningf("%s: bad frame: %v", topic, err)
			return
		}
		fn(stationOf(topic), frame)
	})
}

// SubscribeDiagnostics subscribes to diagnostics of every station.
func SubscribeDiagnostics(q *Queue, fn func(station string, rec *forward.DiagnosticRecord)) *Subscription {
	return q.Sub("+/diag", func(topic string, payload []byte) {
		var rec forward.DiagnosticRecord
		if err := json.Unmarshal(payload, &rec); err != nil {
			glog.Warningf("%s: bad diagnostic: %v", topic, err)
			return
		}
		fn(stationOf(topic), &rec)
	})
}

// SubscribeStatus subscribes to the online status of every station.
func SubscribeStatus(q *Queue, fn func(station, status string)) *Subscription {
	return q.Sub("+/status", func(topic string, payload []byte) {
		fn(stationOf(topic), string(payload))
	})
}

func stationOf(topic string) string {
	station, _, _ := strings.Cut(topic, "/")
	return station
}
