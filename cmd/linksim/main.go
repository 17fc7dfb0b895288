package main

import (
	"context"
	"flag"
	"log"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/servolink/pkg/env"
	fx "github.com/robotalks/servolink/pkg/framework"
	"github.com/robotalks/servolink/pkg/link"
	"github.com/robotalks/servolink/pkg/sim"
	"github.com/robotalks/servolink/pkg/transport"
)

//go-build: CGO_ENABLED=0

var (
	propsFile   string
	cadence     = 100 * time.Millisecond
	simulator   = sim.NewSimulator()
	slewRate    = int(sim.DefaultSlewRate)
	initiateReq bool
)

func init() {
	env.SetupFlags()
	flag.StringVar(&propsFile, "props", propsFile, "TOML file defining device properties.")
	flag.IntVar(&slewRate, "slew", slewRate, "Surface slew rate in per-mille of full travel per second.")
	flag.DurationVar(&simulator.RebootDelay, "reboot-delay", simulator.RebootDelay, "Simulated reboot duration.")
	flag.DurationVar(&cadence, "cadence", cadence, "Initial telemetry cadence.")
	flag.BoolVar(&initiateReq, "handshake", initiateReq, "Initiate the handshake when a link is opened.")
}

func main() {
	flag.Parse()
	conf := env.NewConfig()

	if propsFile != "" {
		props, err := sim.LoadProperties(propsFile)
		if err != nil {
			log.Fatalln(err)
		}
		simulator.Properties = props
	}
	simulator.SlewRate = int32(slewRate)
	simulator.Cadence = link.CadenceOf(cadence)
	simulator.Handshake = initiateReq

	r := fx.NewRunner().HandleSignals()
	addr, err := transport.ParseAddress(conf.Port)
	if err != nil {
		log.Fatalln(err)
	}
	if addr.Scheme == transport.SchemeSerial {
		stream := conf.MustOpen()
		glog.Infof("simulating on %s", conf.Port)
		r.Go(fx.NamedRun("sim", fx.RunFunc(func(ctx context.Context) error {
			return fx.RunWithContextCloser(ctx, stream, func() error {
				return simulator.Serve(ctx, stream)
			})
		})))
	} else {
		ln, err := conf.Listen()
		if err != nil {
			log.Fatalln(err)
		}
		glog.Infof("simulating on %s", ln.URL())
		r.Go(fx.NamedRun("listener", fx.RunFunc(func(ctx context.Context) error {
			return ln.Serve(ctx, simulator)
		})))
	}
	if err := r.Wait(); err != nil {
		log.Fatalln(err)
	}
}
