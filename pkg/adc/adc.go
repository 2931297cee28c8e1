// Package adc drives the STM32L0x3 analog-to-digital converter: clock gating,
// self-calibration, a fixed single-conversion configuration, single-channel
// reads and the factory-calibrated internal temperature sensor.
//
// No DMA, no interrupts, no hardware triggers. Every operation is a blocking
// register sequence bounded by [Config.Poll].
package adc

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yunginnanet/stm32l0-analog/pkg/regfile"
	"github.com/yunginnanet/stm32l0-analog/pkg/stm32l0"
)

var (
	ErrInvalidChannel = errors.New("adc: invalid channel")
)

// Config represents user-level configuration parameters
type Config struct {
	// Poll bounds every busy-wait. The zero value waits forever, like the
	// hardware-only firmware does.
	Poll regfile.Limit

	// AutoOff powers the converter down between conversions. When it is off,
	// Init enables the converter and waits for ADRDY instead.
	AutoOff bool
	// Wait stalls conversions until DR has been read, so a slow caller
	// never sees an overrun.
	Wait bool

	// SupplyCentivolts is the board VDDA. The factory calibration was taken
	// at 300 (3.0 V).
	SupplyCentivolts int32

	// TempSampleTime must give at least 10 µs of acquisition at the ADC clock.
	TempSampleTime stm32l0.SampleTime
	// ExternalSampleTime is kept high to cope with unknown source impedance.
	ExternalSampleTime stm32l0.SampleTime

	Log zerolog.Logger
}

// DefaultConfig provides default config. You can adjust as needed
func DefaultConfig() Config {
	return Config{
		Poll:               regfile.Unbounded,
		AutoOff:            true,
		Wait:               true,
		SupplyCentivolts:   330,
		TempSampleTime:     stm32l0.SMP160_5, // 10 µs at 16 MHz
		ExternalSampleTime: stm32l0.SMP160_5,
		Log:                zerolog.Nop(),
	}
}

// ADC provides control over the STM32L0x3 ADC through a register file.
type ADC struct {
	mu  sync.Mutex // Serializes register sequences
	cfg Config
	log zerolog.Logger

	apb2enr regfile.Register
	iopenr  regfile.Register
	moderB  regfile.Register
	isr     regfile.Register
	cr      regfile.Register
	cfgr1   regfile.Register
	cfgr2   regfile.Register
	smpr    regfile.Register
	chselr  regfile.Register
	dr      regfile.Register
	calfact regfile.Register
	ccr     regfile.Register

	bus regfile.Bus
}

// New constructs an ADC on bus. It does not touch the hardware; call Init.
func New(bus regfile.Bus, cfg Config) *ADC {
	return &ADC{
		cfg:     cfg,
		log:     cfg.Log.With().Str("periph", "adc").Logger(),
		bus:     bus,
		apb2enr: regfile.Reg(bus, "RCC_APB2ENR", stm32l0.RCC_APB2ENR),
		iopenr:  regfile.Reg(bus, "RCC_IOPENR", stm32l0.RCC_IOPENR),
		moderB:  regfile.Reg(bus, "GPIOB_MODER", stm32l0.GPIOB_MODER),
		isr:     regfile.Reg(bus, "ADC_ISR", stm32l0.ADC_ISR),
		cr:      regfile.Reg(bus, "ADC_CR", stm32l0.ADC_CR),
		cfgr1:   regfile.Reg(bus, "ADC_CFGR1", stm32l0.ADC_CFGR1),
		cfgr2:   regfile.Reg(bus, "ADC_CFGR2", stm32l0.ADC_CFGR2),
		smpr:    regfile.Reg(bus, "ADC_SMPR", stm32l0.ADC_SMPR),
		chselr:  regfile.Reg(bus, "ADC_CHSELR", stm32l0.ADC_CHSELR),
		dr:      regfile.Reg(bus, "ADC_DR", stm32l0.ADC_DR),
		calfact: regfile.Reg(bus, "ADC_CALFACT", stm32l0.ADC_CALFACT),
		ccr:     regfile.Reg(bus, "ADC_CCR", stm32l0.ADC_CCR),
	}
}

// Init clocks, stops, calibrates and configures the converter. It is safe to
// call from any state, including a conversion in progress.
func (a *ADC) Init(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	// The clock gate must be open before any other ADC register is touched.
	if err := a.apb2enr.SetBits(stm32l0.RCC_APB2ENR_ADCEN); err != nil {
		return err
	}

	if err := a.stop(ctx); err != nil {
		return err
	}

	for _, r := range []regfile.Register{a.cfgr1, a.cfgr2, a.cr} {
		if err := r.Set(0); err != nil {
			return err
		}
	}

	if err := a.calibrate(ctx); err != nil {
		return err
	}

	if err := a.configure(); err != nil {
		return err
	}

	if !a.cfg.AutoOff {
		// Without AUTOFF the converter has to be enabled by hand. With it,
		// ADRDY self-clears and must not be polled.
		if err := a.enable(ctx); err != nil {
			return err
		}
	}

	a.log.Debug().Bool("autoff", a.cfg.AutoOff).Bool("wait", a.cfg.Wait).Msg("initialized")
	return nil
}

// stop halts an ongoing conversion and disables the converter. Configuration
// registers may only be written once both are done.
func (a *ADC) stop(ctx context.Context) error {
	running, err := a.cr.HasBits(stm32l0.ADC_CR_ADSTART)
	if err != nil {
		return err
	}
	if running {
		a.log.Debug().Msg("stopping conversion")
		if err = a.cr.SetBits(stm32l0.ADC_CR_ADSTP); err != nil {
			return err
		}
		if err = a.cr.WaitClear(ctx, a.cfg.Poll, stm32l0.ADC_CR_ADSTP); err != nil {
			return a.fail("stop", err)
		}
	}

	enabled, err := a.cr.HasBits(stm32l0.ADC_CR_ADEN)
	if err != nil {
		return err
	}
	if enabled {
		a.log.Debug().Msg("disabling")
		if err = a.cr.SetBits(stm32l0.ADC_CR_ADDIS); err != nil {
			return err
		}
		if err = a.cr.WaitClear(ctx, a.cfg.Poll, stm32l0.ADC_CR_ADDIS); err != nil {
			return a.fail("disable", err)
		}
	}
	return nil
}

func (a *ADC) calibrate(ctx context.Context) error {
	if err := a.cr.SetBits(stm32l0.ADC_CR_ADCAL); err != nil {
		return err
	}
	if err := a.isr.WaitSet(ctx, a.cfg.Poll, stm32l0.ADC_ISR_EOCAL); err != nil {
		return a.fail("calibrate", err)
	}
	// Write exactly the EOCAL bit. ORing the read value back would clear
	// every other pending flag as well.
	if err := a.isr.Set(stm32l0.ADC_ISR_EOCAL); err != nil {
		return err
	}

	if e := a.log.Debug(); e.Enabled() {
		if f, err := a.calfact.Get(); err == nil {
			e.Uint32("calfact", f&stm32l0.ADC_CALFACT_Msk).Msg("calibrated")
		}
	}
	return nil
}

func (a *ADC) configure() error {
	cfgr1 := stm32l0.ADCCFGR1{
		AutoOff: a.cfg.AutoOff,
		Wait:    a.cfg.Wait,
		Res:     stm32l0.Res12Bit,
	}
	if err := a.cfgr1.Set(cfgr1.Pack()); err != nil {
		return err
	}
	// CKMODE 00: asynchronous HSI16 clock. No oversampling.
	if err := a.cfgr2.Set(0); err != nil {
		return err
	}
	// Fastest sample time. Each read sets its own.
	if err := a.smpr.Set(uint32(stm32l0.SMP1_5)); err != nil {
		return err
	}
	// No internal channels powered, no prescaler.
	return a.ccr.Set(0)
}

func (a *ADC) enable(ctx context.Context) error {
	if err := a.isr.Set(stm32l0.ADC_ISR_ADRDY); err != nil {
		return err
	}
	if err := a.cr.SetBits(stm32l0.ADC_CR_ADEN); err != nil {
		return err
	}
	if err := a.isr.WaitSet(ctx, a.cfg.Poll, stm32l0.ADC_ISR_ADRDY); err != nil {
		return a.fail("enable", err)
	}
	return a.isr.Set(stm32l0.ADC_ISR_ADRDY)
}

// CalibrationFactor returns the offset found by the last calibration.
func (a *ADC) CalibrationFactor() (uint8, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	v, err := a.calfact.Get()
	return uint8(v & stm32l0.ADC_CALFACT_Msk), err
}

// ReadChannel performs one conversion on ch with the given sample time and
// returns the right-aligned 12-bit result.
//
// CHSELR is written, not ORed, so exactly one channel is ever selected. All
// channels share DR and would overwrite each other otherwise.
func (a *ADC) ReadChannel(ctx context.Context, ch stm32l0.Channel, smp stm32l0.SampleTime) (uint16, error) {
	if !ch.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.readChannel(ctx, ch, smp)
}

func (a *ADC) readChannel(ctx context.Context, ch stm32l0.Channel, smp stm32l0.SampleTime) (uint16, error) {
	if err := a.chselr.Set(ch.Mask()); err != nil {
		return 0, err
	}
	if err := a.smpr.ReplaceBits(uint32(smp), stm32l0.ADC_SMPR_SMP_Msk, stm32l0.ADC_SMPR_SMP_Pos); err != nil {
		return 0, err
	}
	if ch == stm32l0.ChannelTemp {
		if err := a.ccr.SetBits(stm32l0.ADC_CCR_TSEN); err != nil {
			return 0, err
		}
	}

	if err := a.cr.SetBits(stm32l0.ADC_CR_ADSTART); err != nil {
		return 0, err
	}
	if err := a.isr.WaitSet(ctx, a.cfg.Poll, stm32l0.ADC_ISR_EOC); err != nil {
		return 0, a.fail("convert "+ch.String(), err)
	}

	// Reading DR clears EOC.
	v, err := a.dr.Get()
	if err != nil {
		return 0, err
	}
	a.log.Trace().Stringer("channel", ch).Stringer("smp", smp).Uint32("raw", v).Msg("conversion")
	return uint16(v & stm32l0.ADC_DR_DATA_Msk), nil
}

// SingleChannelReadout reads the external input on PB0 (ADC_IN8) and returns
// the raw sample. Converting it to a physical unit is up to the caller.
func (a *ADC) SingleChannelReadout(ctx context.Context) (int32, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.iopenr.SetBits(stm32l0.RCC_IOPENR_IOPBEN); err != nil {
		return 0, err
	}
	// PB0 resets to analog mode already; write it anyway so the pin does not
	// depend on what ran before us.
	if err := a.moderB.ReplaceBits(stm32l0.GPIO_MODE_Analog, stm32l0.GPIO_MODE_Msk, 0); err != nil {
		return 0, err
	}

	v, err := a.readChannel(ctx, stm32l0.ChannelPB0, a.cfg.ExternalSampleTime)
	return int32(v), err
}

func (a *ADC) fail(step string, err error) error {
	a.log.Error().Err(err).Str("step", step).Msg("poll failed")
	return fmt.Errorf("adc: %s: %w", step, err)
}
