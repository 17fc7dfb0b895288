package transport

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenSerial opens a serial port in 8N1 mode.
func OpenSerial(portName string, baudRate int) (serial.Port, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}
	port, err := serial.Open(portName, &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", portName, err)
	}
	return port, nil
}

// SerialPorts lists the serial ports of the system.
func SerialPorts() ([]string, error) {
	return serial.GetPortsList()
}
