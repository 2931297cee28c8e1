// Package ft232h wires an FTDI FT232H to the SPI port of a target running the
// register proxy, and implements [bridge.Transport] on top of it.
package ft232h

import (
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/yunginnanet/ft232h"

	"github.com/yunginnanet/stm32l0-analog/pkg/bridge"
)

var _ bridge.Transport = (*FT232H)(nil)

// DeviceInfo represents a snapshot of the device information for the [FT232H] device.
type DeviceInfo struct {
	Index       int
	Serial      string
	Description string
	ProductID   string
	VendorID    string
	IsOpen      bool
	IsHighSpeed bool
}

// String returns a string representation of the device information.
func (ft DeviceInfo) String() string {
	return fmt.Sprintf(
		"DeviceInfo{Index:%d, Serial:%s, Description:%s, ProductID:%s, VendorID:%s, IsOpen:%t, IsHighSpeed:%t}",
		ft.Index, ft.Serial, ft.Description, ft.ProductID, ft.VendorID, ft.IsOpen, ft.IsHighSpeed,
	)
}

// Pins lists the C-bus lines wired to the target. Zero leaves a line unused.
type Pins struct {
	CS    uint // chip select, driven low for a whole request/reply exchange
	Ready uint // target pulls it low once a reply is ready
	Reset uint // target NRST, active low
}

// Config represents user-level configuration parameters
type Config struct {
	Clock uint32 // SPI clock in Hz
	Mode  byte   // SPI mode, CPOL/CPHA
	Pins  Pins

	// Settle is how long to wait for a reply when no ready line is wired.
	Settle time.Duration
	// ReadyTimeout bounds the wait on the ready line.
	ReadyTimeout time.Duration

	Log zerolog.Logger
}

// DefaultConfig provides default config. You can adjust as needed
func DefaultConfig() Config {
	return Config{
		Clock:        1_000_000,
		Mode:         0,
		Pins:         Pins{CS: 0x10},
		Settle:       50 * time.Microsecond,
		ReadyTimeout: 10 * time.Millisecond,
		Log:          zerolog.Nop(),
	}
}

// FT232H represents an FT232H device.
type FT232H struct {
	*ft232h.FT232H
	info DeviceInfo
	cfg  Config
	log  zerolog.Logger

	csPin    ft232h.CPin
	readyPin ft232h.CPin
	resetPin ft232h.CPin
}

// Info returns a snapshot of the device information for the FT232H device. Read-only.
func (ft *FT232H) Info() DeviceInfo {
	vid, pid := ft.vidPid()
	return DeviceInfo{
		Index:       ft.Index(),
		Serial:      ft.Serial(),
		Description: ft.Desc(),
		ProductID:   pid,
		VendorID:    vid,
		IsOpen:      ft.IsOpen(),
		IsHighSpeed: ft.IsHiSpeed(),
	}
}

// String returns a string representation of the FT232H device. It includes the vendor ID, product ID, and description.
func (ft *FT232H) String() string {
	s := fmt.Sprintf("FT232H[%s:%s]: %s", ft.info.VendorID, ft.info.ProductID, ft.Desc())
	return s
}

// Connect opens the FT232H selected by choice, or the first one found.
func Connect(choice ...Descriptor) (ft *FT232H, err error) {
	ft = &FT232H{log: zerolog.Nop()}

	switch len(choice) {
	case 0:
		ft.FT232H, err = ft232h.New()
	case 1:
		desc := choice[0]
		if err = desc.Validate(); err != nil {
			return nil, err
		}
		ft.FT232H, err = ft232h.OpenMask(desc.Mask())
	default:
		return nil, fmt.Errorf("ft232h: expected at most one descriptor, got %d", len(choice))
	}
	if err != nil {
		return nil, err
	}

	ft.info = ft.Info()
	return ft, nil
}

// Setup configures the SPI engine and the GPIO lines in cfg.
func (ft *FT232H) Setup(cfg Config) error {
	ft.cfg = cfg
	ft.log = cfg.Log.With().Str("ftdi", ft.info.Serial).Logger()

	spiCfg := ft.SPI.GetConfig()
	spiCfg.Clock = cfg.Clock
	spiCfg.Mode = cfg.Mode
	spiCfg.CS = ft232h.C(cfg.Pins.CS)
	spiCfg.ActiveLow = false

	ft.log.Debug().Any("config", spiCfg).Msg("initializing SPI")
	if err := ft.SPI.Config(spiCfg); err != nil {
		return fmt.Errorf("ft232h: failed to configure SPI: %w", err)
	}

	ft.csPin = ft232h.CPin(cfg.Pins.CS)
	if err := ft.GPIO.ConfigPin(ft.csPin, ft232h.Output, true); err != nil {
		return fmt.Errorf("ft232h: cs pin: %w", err)
	}
	if cfg.Pins.Ready != 0 {
		ft.readyPin = ft232h.CPin(cfg.Pins.Ready)
		if err := ft.GPIO.ConfigPin(ft.readyPin, ft232h.Input, true); err != nil {
			return fmt.Errorf("ft232h: ready pin: %w", err)
		}
	}
	if cfg.Pins.Reset != 0 {
		ft.resetPin = ft232h.CPin(cfg.Pins.Reset)
		// Idle high: target running.
		if err := ft.GPIO.ConfigPin(ft.resetPin, ft232h.Output, true); err != nil {
			return fmt.Errorf("ft232h: reset pin: %w", err)
		}
	}
	return nil
}

// Close closes the SPI engine and the device.
func (ft *FT232H) Close() error {
	return errors.Join(ft.SPI.Close(), ft.FT232H.Close())
}
