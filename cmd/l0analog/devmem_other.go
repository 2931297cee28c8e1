//go:build !linux || tinygo

package main

import (
	"errors"
	"io"

	"github.com/yunginnanet/stm32l0-analog/pkg/regfile"
)

func openDevMem() (regfile.Bus, io.Closer, error) {
	return nil, nil, errors.New("the devmem backend needs linux")
}
