//go:build linux && !tinygo

package main

import (
	"errors"
	"io"

	"github.com/yunginnanet/stm32l0-analog/pkg/regfile"
	"github.com/yunginnanet/stm32l0-analog/pkg/stm32l0"
)

// windows are the physical pages the drivers touch.
var windows = []struct {
	base uint32
	size int
}{
	{stm32l0.RCCBase &^ 0xFFF, 0x1000},
	{stm32l0.GPIOABase, 0x1000},
	{stm32l0.ADC1Base &^ 0xFFF, 0x1000},
	{stm32l0.DACBase &^ 0xFFF, 0x1000},
	{stm32l0.VREFINT_CAL &^ 0xFFF, 0x1000},
}

func openDevMem() (regfile.Bus, io.Closer, error) {
	mem, err := regfile.OpenDevMem()
	if err != nil {
		return nil, nil, err
	}
	for _, w := range windows {
		if err = mem.Map(w.base, w.size); err != nil {
			return nil, nil, errors.Join(err, mem.Close())
		}
	}
	log.Info().Int("windows", len(windows)).Msg("mapped /dev/mem")
	return mem, mem, nil
}
