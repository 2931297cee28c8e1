//go:build !tinygo

package bridge

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/tarm/serial"
)

// SerialConfig selects the UART the target proxy listens on.
type SerialConfig struct {
	Device      string
	Baud        int
	ReadTimeout time.Duration
}

// DefaultSerialConfig returns 115200 baud with a 100ms reply timeout.
func DefaultSerialConfig(device string) SerialConfig {
	return SerialConfig{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// Serial is a [Transport] over a UART. The UART frames nothing on its own, so
// chip select and the ready wait are no-ops; a reply that does not arrive
// within ReadTimeout is reported as short.
type Serial struct {
	port io.ReadWriteCloser
}

// OpenSerial opens the port described by cfg.
func OpenSerial(cfg SerialConfig) (*Serial, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.ReadTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("bridge: failed to open serial port %s: %w", cfg.Device, err)
	}
	return &Serial{port: port}, nil
}

// NewSerial wraps an already open stream, such as a pty or a net.Conn.
func NewSerial(rw io.ReadWriteCloser) *Serial {
	return &Serial{port: rw}
}

func (s *Serial) Write(data []byte, start bool, _ bool) (uint, error) {
	if f, ok := s.port.(interface{ Flush() error }); ok && start {
		// Drop whatever is left of an earlier, abandoned reply.
		if err := f.Flush(); err != nil {
			return 0, err
		}
	}
	n, err := s.port.Write(data)
	return uint(n), err
}

func (s *Serial) Read(count uint, _ bool, _ bool) ([]byte, error) {
	b := make([]byte, count)
	n, err := io.ReadFull(s.port, b)
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return b[:n], fmt.Errorf("%w: %d of %d bytes", ErrShortReply, n, count)
	}
	return b[:n], err
}

func (s *Serial) WaitReady() error { return nil }

func (s *Serial) SetCS(bool) error { return nil }

func (s *Serial) Close() error {
	return s.port.Close()
}
