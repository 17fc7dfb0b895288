package main

import (
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/servolink/pkg/bridge/mqtt"
	"github.com/robotalks/servolink/pkg/cli/sh"
	"github.com/robotalks/servolink/pkg/env"
	fx "github.com/robotalks/servolink/pkg/framework"
	"github.com/robotalks/servolink/pkg/link"

	_ "github.com/robotalks/servolink/pkg/cli/cmds/servo"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
}

func main() {
	flag.Parse()
	conf := env.NewConfig()
	s := sh.New(conf).WithAutoConnect(true)
	if conf.MQTTBrokerURL == "" {
		s.Run(flag.Args()...)
		return
	}

	events := make(chan link.Command, 64)
	s.OnEvent = func(cmd link.Command) {
		select {
		case events <- cmd:
		default:
			glog.Warningf("bridge busy, drop %s", cmd.Opcode())
		}
	}
	b, err := mqtt.NewBridge(conf.MQTTBrokerURL, conf.ID, s, events)
	if err != nil {
		log.Fatalln(err)
	}
	b.Meta.Port = conf.Port
	b.Timeout = conf.Timeout
	r := fx.NewRunner()
	r.Go(fx.NamedRun("mqtt", b))
	s.Run(flag.Args()...)
	r.Stop()
	if err := r.Wait(); err != nil {
		log.Fatalln(err)
	}
}
