//go:build tinygo

// Command l0proxy is the target half of the register bridge. It runs on the
// STM32L0 itself and answers register requests from the host on the default
// UART, so the host-side drivers can be exercised against real silicon.
package main

import (
	"machine"
	"time"

	"github.com/yunginnanet/stm32l0-analog/pkg/bridge"
	"github.com/yunginnanet/stm32l0-analog/pkg/regfile"
)

// uart blocks reads until at least one byte is buffered.
type uart struct {
	*machine.UART
}

func (u uart) Read(b []byte) (int, error) {
	for u.Buffered() == 0 {
		time.Sleep(50 * time.Microsecond)
	}
	return u.UART.Read(b)
}

func main() {
	machine.DefaultUART.Configure(machine.UARTConfig{BaudRate: 115200})
	port := uart{machine.DefaultUART}

	for {
		// Serve only returns when it loses framing; start over on the next byte.
		if err := bridge.Serve(port, regfile.Volatile{}); err != nil {
			println("l0proxy:", err.Error())
		}
	}
}
