//go:build !js

package provider

import (
	"fmt"
	"io"

	"github.com/jacobsa/go-serial/serial"
)

// SerialOptions select the receiver's serial port.
type SerialOptions struct {
	Port string
	Baud uint
}

// DefaultSerialOptions returns the Raspberry Pi UART at 9600 baud.
func DefaultSerialOptions() SerialOptions {
	return SerialOptions{Port: "/dev/serial0", Baud: 9600}
}

// OpenSerial opens the port 8N1 for NMEA input.
func OpenSerial(opts SerialOptions) (io.ReadWriteCloser, error) {
	def := DefaultSerialOptions()
	if opts.Port == "" {
		opts.Port = def.Port
	}
	if opts.Baud == 0 {
		opts.Baud = def.Baud
	}

	port, err := serial.Open(serial.OpenOptions{
		PortName:              opts.Port,
		BaudRate:              opts.Baud,
		DataBits:              8,
		StopBits:              1,
		MinimumReadSize:       1,
		ParityMode:            serial.PARITY_NONE,
		InterCharacterTimeout: 0,
	})
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %w", opts.Port, err)
	}
	return port, nil
}
