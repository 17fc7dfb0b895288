package main

import (
	"context"
	"flag"
	"log"
	"strings"

	"github.com/robotalks/servolink/pkg/bridge/mqtt"
	"github.com/robotalks/servolink/pkg/env"
	fx "github.com/robotalks/servolink/pkg/framework"
)

var (
	topic = "#"
)

func init() {
	env.SetupFlags()
	flag.StringVar(&topic, "topic", topic, "Topic to watch, relative to the prefix of the broker URL.")
}

func printMessage(topic string, payload []byte) {
	segs := strings.Split(topic, "/")
	if len(segs) > 1 && segs[len(segs)-2] == mqtt.TopicTelemetry {
		out, err := mqtt.SampleJSON(payload)
		if err != nil {
			log.Printf("%s: bad sample: %v", topic, err)
			return
		}
		log.Printf("%s: %s", topic, out)
		return
	}
	log.Printf("%s: %s", topic, string(payload))
}

func main() {
	flag.Parse()
	log.SetFlags(log.Lmicroseconds)

	conf := env.NewConfig()
	if conf.MQTTBrokerURL == "" {
		conf.MQTTBrokerURL = "mqtt://localhost:1883/"
	}
	q, err := mqtt.NewQueueFromURL(conf.MQTTBrokerURL)
	if err != nil {
		log.Fatalln(err)
	}
	if token := q.Connect(); token.Wait() && token.Error() != nil {
		log.Fatalln(token.Error())
	}
	q.Sub(topic, printMessage)

	r := fx.NewRunner().HandleSignals()
	r.Go(fx.RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return q.Close()
	}))
	if err := r.Wait(); err != nil {
		log.Fatalln(err)
	}
}
