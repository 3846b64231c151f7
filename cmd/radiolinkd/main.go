package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/radiolink/pkg/capture"
	"github.com/robotalks/radiolink/pkg/config"
	"github.com/robotalks/radiolink/pkg/env"
	"github.com/robotalks/radiolink/pkg/forward"
	"github.com/robotalks/radiolink/pkg/forward/mqtt"
	"github.com/robotalks/radiolink/pkg/forward/websocket"
	fx "github.com/robotalks/radiolink/pkg/framework"
	"github.com/robotalks/radiolink/pkg/radio/link"
)

func init() {
	config.SetupFlags()
}

type daemon struct {
	conf    *config.Config
	session *link.Session
	runner  *fx.Runner

	dispatcher *forward.Dispatcher
	feed       *websocket.Server
	publisher  *mqtt.Publisher
	queue      *mqtt.Queue
	capture    *capture.Writer
}

func (d *daemon) setupMQTT() error {
	opts, prefix, err := mqtt.ClientOptionsFromURL(d.conf.MQTT.URL)
	if err != nil {
		return err
	}
	station := d.conf.MQTT.Station
	if station == "" {
		station = env.StationID()
	}
	mqtt.SetStatusWill(opts, prefix, station)
	d.queue = mqtt.NewQueue(opts, prefix)
	d.publisher = mqtt.NewPublisher(d.queue, station)
	d.publisher.QoS = byte(d.conf.MQTT.QoS)
	if token := d.queue.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("connect MQTT broker: %w", token.Error())
	}
	glog.Infof("publishing as station %q to %s", station, d.conf.MQTT.URL)
	d.dispatcher.HandleFrames(d.publisher).HandleDiagnostics(d.publisher)
	return nil
}

func (d *daemon) setup() (err error) {
	d.session = link.New(d.conf.LinkConfig())
	d.dispatcher = forward.NewDispatcher(d.session).
		HandleDiagnostics(forward.HandleDiagnosticFunc(logDiagnostic))
	if d.conf.Capture.Path != "" {
		if d.capture, err = capture.Create(d.conf.Capture.Path); err != nil {
			return err
		}
		d.dispatcher.HandleFrames(d.capture)
	}
	if d.conf.MQTT.URL != "" {
		if err = d.setupMQTT(); err != nil {
			return err
		}
	}
	if d.conf.WebSocket.Listen != "" {
		hub := websocket.NewHub()
		d.dispatcher.HandleFrames(hub).HandleDiagnostics(hub)
		d.feed = &websocket.Server{
			Addr: d.conf.WebSocket.Listen,
			Path: d.conf.WebSocket.Path,
			Hub:  hub,
		}
	}
	return d.session.Open(0)
}

func (d *daemon) run() error {
	if d.feed != nil {
		d.runner.Go(fx.NamedRun("websocket", d.feed))
	}
	d.runner.Go(
		fx.NamedRun("session", d.session),
		fx.NamedRun("dispatcher", fx.RunnableFunc(func(ctx context.Context) error {
			err := d.dispatcher.Run(ctx)
			// the session is gone, nothing left to serve
			d.runner.Cancel()
			return err
		})),
	)
	return d.runner.Wait()
}

func (d *daemon) shutdown() {
	var errs fx.AggregatedError
	if d.session != nil {
		errs.Add(d.session.Close())
	}
	if d.publisher != nil {
		errs.Add(d.publisher.Offline())
		errs.Add(d.queue.Close())
	}
	if d.capture != nil {
		glog.Infof("captured %d frames to %s", d.capture.Count(), d.conf.Capture.Path)
		errs.Add(d.capture.Close())
	}
	if err := errs.Aggregate(); err != nil {
		glog.Errorf("shutdown: %v", err)
	}
}

func logDiagnostic(ctx context.Context, diag link.Diagnostic) {
	switch diag.(type) {
	case link.TransportFailure:
		glog.Error(diag.String())
	case link.ResyncDiscard:
		glog.V(1).Info(diag.String())
	default:
		glog.Info(diag.String())
	}
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf, err := config.FromFlags()
	if err != nil {
		log.Fatalln(err)
	}
	if conf.Link.Port == "" {
		log.Fatalln("serial port must be specified with -port or RADIOLINK_PORT")
	}

	d := &daemon{conf: conf, runner: fx.NewRunner().HandleSignals()}
	if err = d.setup(); err == nil {
		glog.Infof("radio link on %s at %d baud", conf.Link.Port, conf.Link.Baud)
		err = d.run()
	}
	d.shutdown()
	if err != nil {
		glog.Flush()
		log.Fatalln(err)
	}
}
