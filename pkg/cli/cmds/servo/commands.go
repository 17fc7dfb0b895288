// Package servo registers the link commands in the shell.
package servo

import (
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/servolink/pkg/cli/sh"
	"github.com/robotalks/servolink/pkg/link"
	"github.com/robotalks/servolink/pkg/link/notation"
)

func linkCmd(name string, aliases []string, help string) *ishell.Cmd {
	return &ishell.Cmd{
		Name:    name,
		Aliases: aliases,
		Help:    help,
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			cmd, err := notation.ParseArgs(name, c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoCommand(c, cmd)
		}),
	}
}

var (
	// HelloCmd starts a session.
	HelloCmd = linkCmd("hello", []string{"init"}, "start a session")
	// SetCmd moves a control surface.
	SetCmd = linkCmd("set", nil, "AXIS(rudder|elevator) POSITION(min|neutral|max)")
	// PropCmd reads or writes a property.
	PropCmd = linkCmd("prop", []string{"p"}, "KEY [VALUE...]")
	// SwapCmd stages or commits a property swap.
	SwapCmd = linkCmd("swap", nil, "KEY [VALUE...]")
	// ScheduleCmd queries or changes the telemetry cadence.
	ScheduleCmd = linkCmd("schedule", []string{"sched"}, "[MS|DURATION|0]")
	// StreamCmd subscribes telemetry fields.
	StreamCmd = linkCmd("stream", []string{"s"}, "FIELD...|off, fields: "+fieldNames())
	// ValueCmd reads a telemetry value once.
	ValueCmd = linkCmd("value", []string{"v"}, "FIELD")
	// RebootCmd reboots the device.
	RebootCmd = linkCmd("reboot", nil, "")
)

func fieldNames() string {
	names := make([]string, link.NumFields)
	for n := range names {
		names[n] = link.Field(n).String()
	}
	return strings.Join(names, ",")
}

func init() {
	sh.AddCmds(
		HelloCmd,
		SetCmd,
		PropCmd,
		SwapCmd,
		ScheduleCmd,
		StreamCmd,
		ValueCmd,
		RebootCmd,
	)
}
