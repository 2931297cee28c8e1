package adc

import (
	"context"
	"sync"

	"periph.io/x/conn/v3/physic"
	"tinygo.org/x/drivers"
)

var _ drivers.Sensor = (*TempSensor)(nil)

// TempSensor exposes the internal temperature sensor through the TinyGo
// sensor interface. The ADC must already be initialized. Readers may run
// concurrently with Update.
type TempSensor struct {
	adc *ADC
	ctx context.Context

	mu      sync.Mutex
	celsius int32
}

// NewTempSensor wraps a. ctx bounds every Update; nil means background.
func NewTempSensor(ctx context.Context, a *ADC) *TempSensor {
	if ctx == nil {
		ctx = context.Background()
	}
	return &TempSensor{adc: a, ctx: ctx}
}

// Update takes a new reading when which includes drivers.Temperature.
func (s *TempSensor) Update(which drivers.Measurement) error {
	if which&drivers.Temperature == 0 {
		return nil
	}
	c, err := s.adc.IntTemp(s.ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.celsius = c
	s.mu.Unlock()
	return nil
}

// Temperature returns the last reading in milli-degrees Celsius, the unit
// TinyGo drivers use.
func (s *TempSensor) Temperature() int32 {
	return s.last() * 1000
}

// Physic returns the last reading as a physic.Temperature.
func (s *TempSensor) Physic() physic.Temperature {
	return Celsius(s.last())
}

func (s *TempSensor) last() int32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.celsius
}
