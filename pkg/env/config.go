// Package env provides the common configuration of link binaries from
// environment variables and command line flags.
package env

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/denisbrodbeck/machineid"
	"github.com/golang/glog"

	"github.com/robotalks/servolink/pkg/transport"
)

// Config provides common options to open a link.
type Config struct {
	// Port is the stream address, e.g. /dev/ttyUSB0, tcp://host:port,
	// ws://host:port/path.
	Port string
	// BaudRate of serial ports.
	BaudRate int
	// MQTTBrokerURL enables the MQTT bridge, e.g. mqtt://host:port/topic-prefix
	MQTTBrokerURL string
	// ID identifies the link on MQTT.
	ID string
	// Timeout of command replies.
	Timeout time.Duration
}

var defaultConfig = Config{
	Port:     "tcp://localhost:7700",
	BaudRate: transport.DefaultBaudRate,
	Timeout:  time.Second,
}

func init() {
	defaultConfig.ID = MachineID()
	loadEnv(&defaultConfig, os.LookupEnv)
}

func loadEnv(c *Config, lookup func(string) (string, bool)) {
	if val, ok := lookup("LINK_PORT"); ok && val != "" {
		c.Port = val
	}
	if val, ok := lookup("LINK_BAUD"); ok && val != "" {
		if baud, err := strconv.Atoi(val); err == nil && baud > 0 {
			c.BaudRate = baud
		} else {
			glog.Warningf("ignore invalid LINK_BAUD %q", val)
		}
	}
	if val, ok := lookup("LINK_MQTT_URL"); ok {
		c.MQTTBrokerURL = val
	}
	if val, ok := lookup("LINK_ID"); ok && val != "" {
		c.ID = val
	}
}

// MachineID retrieves the unique ID identifying the machine,
// falling back to the host name.
func MachineID() string {
	id, err := machineid.ProtectedID("servolink")
	if err == nil {
		return id
	}
	glog.Warningf("machine ID unavailable: %v", err)
	if host, err := os.Hostname(); err == nil {
		return host
	}
	return "link"
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	flag.StringVar(&defaultConfig.Port, "port", defaultConfig.Port, "Link address: serial device, tcp://host:port or ws://host:port/path")
	flag.IntVar(&defaultConfig.BaudRate, "baud", defaultConfig.BaudRate, "Serial baud rate")
	flag.StringVar(&defaultConfig.MQTTBrokerURL, "mqtt", defaultConfig.MQTTBrokerURL, "MQTT broker URL, e.g. mqtt://localhost:1883/link/")
	flag.StringVar(&defaultConfig.ID, "id", defaultConfig.ID, "Link ID")
	flag.DurationVar(&defaultConfig.Timeout, "timeout", defaultConfig.Timeout, "Command reply timeout")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// TransportOptions returns the options to open the stream.
func (c *Config) TransportOptions() transport.Options {
	return transport.Options{BaudRate: c.BaudRate}
}

// Open opens the link stream.
func (c *Config) Open() (io.ReadWriteCloser, error) {
	if c.Port == "" {
		return nil, fmt.Errorf("link port must be specified")
	}
	return transport.Open(c.Port, c.TransportOptions())
}

// MustOpen opens the link stream and fails on error.
func (c *Config) MustOpen() io.ReadWriteCloser {
	rw, err := c.Open()
	if err != nil {
		log.Fatalln(err)
	}
	return rw
}

// Listen listens on the link address for peers, used by simulators.
func (c *Config) Listen() (*transport.Listener, error) {
	return transport.Listen(c.Port)
}
