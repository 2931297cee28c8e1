package adc

import (
	"context"
	"errors"
	"fmt"

	"periph.io/x/conn/v3/physic"

	"github.com/yunginnanet/stm32l0-analog/pkg/stm32l0"
)

// ErrDegenerateCalibration means both factory calibration points are equal,
// so no line can be drawn through them.
var ErrDegenerateCalibration = errors.New("adc: TS_CAL1 equals TS_CAL2")

// CalibrationSupply is the VDDA (in centivolts) the factory calibration words
// were measured at.
const CalibrationSupply = 300

// Calibration holds the factory temperature sensor readings taken at 30 °C
// and 130 °C.
type Calibration struct {
	TS30  uint16
	TS130 uint16
}

// Calibration reads TS_CAL1 and TS_CAL2 from system memory.
func (a *ADC) Calibration() (Calibration, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calibration()
}

func (a *ADC) calibration() (Calibration, error) {
	var (
		cal Calibration
		err error
	)
	if cal.TS30, err = a.bus.Read16(stm32l0.TS_CAL1); err != nil {
		return cal, fmt.Errorf("adc: read TS_CAL1: %w", err)
	}
	if cal.TS130, err = a.bus.Read16(stm32l0.TS_CAL2); err != nil {
		return cal, fmt.Errorf("adc: read TS_CAL2: %w", err)
	}
	return cal, nil
}

// Scale rescales a raw sample taken at supply centivolts to what it would have
// read at the 3.0 V calibration supply.
func Scale(raw uint16, supply int32) int32 {
	return int32(raw) * supply / CalibrationSupply
}

// Interpolate maps a scaled sample onto the line through the two calibration
// points. Integer division truncates toward zero.
func (c Calibration) Interpolate(scaled int32) (int32, error) {
	c30, c130 := int32(c.TS30), int32(c.TS130)
	if c30 == c130 {
		return 0, ErrDegenerateCalibration
	}
	const span = stm32l0.TS_CAL2_Temp - stm32l0.TS_CAL1_Temp
	return (scaled-c30)*span/(c130-c30) + stm32l0.TS_CAL1_Temp, nil
}

// TemperatureFromRaw converts a temperature sensor sample to whole degrees
// Celsius.
func TemperatureFromRaw(raw uint16, supply int32, cal Calibration) (int32, error) {
	return cal.Interpolate(Scale(raw, supply))
}

// IntTemp measures the die temperature in whole degrees Celsius. The result is
// not clamped to the sensor's rated range.
func (a *ADC) IntTemp(ctx context.Context) (int32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	raw, err := a.readChannel(ctx, stm32l0.ChannelTemp, a.cfg.TempSampleTime)
	if err != nil {
		return 0, err
	}
	cal, err := a.calibration()
	if err != nil {
		return 0, err
	}
	t, err := TemperatureFromRaw(raw, a.cfg.SupplyCentivolts, cal)
	if err != nil {
		return 0, err
	}
	a.log.Debug().Uint16("raw", raw).Uint16("ts_cal1", cal.TS30).Uint16("ts_cal2", cal.TS130).
		Int32("celsius", t).Msg("temperature")
	return t, nil
}

// Celsius converts whole degrees Celsius to a physic.Temperature.
func Celsius(c int32) physic.Temperature {
	return physic.ZeroCelsius + physic.Temperature(c)*physic.Kelvin
}
