package main

import (
	"context"
	"flag"
	"io"
	"log"
	"os"

	"github.com/robotalks/radiolink/pkg/capture"
	"github.com/robotalks/radiolink/pkg/forward"
	"github.com/robotalks/radiolink/pkg/forward/mqtt"
	fx "github.com/robotalks/radiolink/pkg/framework"
	"github.com/robotalks/radiolink/pkg/radio/wire"
)

var (
	mqttURL    = "mqtt://localhost:1883/radiolink/"
	replayPath string
	outputJSON bool
)

func init() {
	if val := os.Getenv("RADIOLINK_MQTT_URL"); val != "" {
		mqttURL = val
	}
	flag.StringVar(&mqttURL, "mqtt", mqttURL, "MQTT broker URL.")
	flag.StringVar(&replayPath, "replay", replayPath, "Print frames from a capture file instead of MQTT.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print frames in JSON.")
}

func printFrame(source string, frame *wire.Frame) {
	if outputJSON {
		out, err := frame.MarshalJSON()
		if err != nil {
			log.Printf("%s: %v", source, err)
			return
		}
		log.Printf("%s: %s", source, out)
		return
	}
	log.Printf("%s: [%s] seq=%d ts=%d segments=%d", source,
		frame.Kind(), frame.Sequence, frame.Timestamp, len(frame.Segments))
}

func replay(path string) error {
	r, err := capture.Open(path)
	if err != nil {
		return err
	}
	defer r.Close()
	for {
		frame, err := r.ReadFrame()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		printFrame(path, frame)
	}
}

func monitor() error {
	q, err := mqtt.NewQueueFromURL(mqttURL)
	if err != nil {
		return err
	}
	mqtt.SubscribeStatus(q, func(station, status string) {
		log.Printf("%s: %s", station, status)
	})
	mqtt.SubscribeDiagnostics(q, func(station string, rec *forward.DiagnosticRecord) {
		log.Printf("%s: <%s> %s", station, rec.Type, rec.Message)
	})
	mqtt.SubscribeFrames(q, printFrame)
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	defer q.Close()

	return fx.NewRunner().HandleSignals().Go(fx.RunnableFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return nil
	})).Wait()
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	var err error
	if replayPath != "" {
		err = replay(replayPath)
	} else {
		err = monitor()
	}
	if err != nil {
		log.Fatalln(err)
	}
}
