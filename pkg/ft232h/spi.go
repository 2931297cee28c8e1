package ft232h

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/yunginnanet/stm32l0-analog/pkg/regfile"
)

var ErrNoResetPin = errors.New("ft232h: reset pin not set")

func (ft *FT232H) SetCS(high bool) error {
	return ft.GPIO.Set(ft.csPin, high)
}

func (ft *FT232H) Read(count uint, start bool, stop bool) ([]byte, error) {
	return ft.SPI.Read(count, start, stop)
}

func (ft *FT232H) Write(data []byte, start bool, stop bool) (uint, error) {
	return ft.SPI.Write(data, start, stop)
}

// WaitReady waits for the target to pull the ready line low. Without a ready
// line it sleeps for the configured settle time instead.
func (ft *FT232H) WaitReady() error {
	if ft.cfg.Pins.Ready == 0 {
		time.Sleep(ft.cfg.Settle)
		return nil
	}
	lim := regfile.Limit{Timeout: ft.cfg.ReadyTimeout, Interval: 100 * time.Microsecond}
	err := regfile.Until(context.Background(), lim, func() (bool, error) {
		hl, err := ft.GPIO.Get(ft.readyPin)
		if err != nil {
			return false, fmt.Errorf("failed to read ready pin: %w", err)
		}
		return !hl, nil
	})
	if err != nil {
		return fmt.Errorf("ft232h: ready line: %w", err)
	}
	return nil
}

// ResetTarget pulses the target NRST line low for d.
func (ft *FT232H) ResetTarget(d time.Duration) error {
	if ft.cfg.Pins.Reset == 0 {
		return ErrNoResetPin
	}
	if err := ft.GPIO.Set(ft.resetPin, false); err != nil {
		return fmt.Errorf("failed to assert reset: %w", err)
	}
	time.Sleep(d)
	if err := ft.GPIO.Set(ft.resetPin, true); err != nil {
		return fmt.Errorf("failed to release reset: %w", err)
	}
	ft.log.Debug().Dur("pulse", d).Msg("target reset")
	return nil
}
