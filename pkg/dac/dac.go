// Package dac drives channel 1 of the STM32L0x3 digital-to-analog converter on
// PA4, using software triggers only.
package dac

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/yunginnanet/stm32l0-analog/pkg/regfile"
	"github.com/yunginnanet/stm32l0-analog/pkg/stm32l0"
)

const (
	// MaxValue is the full-scale 12-bit output code.
	MaxValue = 1<<12 - 1
	// MaxNoiseLevel is the widest LFSR mask MAMP1 can select.
	MaxNoiseLevel = 15
)

var (
	ErrValueRange = errors.New("dac: value out of range")
	ErrNoiseLevel = errors.New("dac: noise level out of range")
)

// Alignment selects the data holding register an output code is written to.
type Alignment uint8

const (
	Right12 Alignment = iota // DHR12R1, code in bits 11:0
	Left12                   // DHR12L1, code in bits 15:4
	Right8                   // DHR8R1, 8-bit code in bits 7:0
)

func (a Alignment) String() string {
	switch a {
	case Right12:
		return "12-bit right"
	case Left12:
		return "12-bit left"
	case Right8:
		return "8-bit right"
	default:
		return fmt.Sprintf("Alignment(%d)", uint8(a))
	}
}

// Max returns the largest code accepted with this alignment.
func (a Alignment) Max() uint16 {
	if a == Right8 {
		return stm32l0.DAC_DHR8_Msk
	}
	return MaxValue
}

// Config represents user-level configuration parameters
type Config struct {
	// Poll bounds the wait for the software trigger to be taken.
	Poll      regfile.Limit
	Alignment Alignment
	Log       zerolog.Logger
}

// DefaultConfig provides default config. You can adjust as needed
func DefaultConfig() Config {
	return Config{
		Poll:      regfile.Unbounded,
		Alignment: Right12,
		Log:       zerolog.Nop(),
	}
}

// DAC provides control over DAC channel 1 through a register file.
type DAC struct {
	mu  sync.Mutex
	cfg Config
	log zerolog.Logger

	iopenr  regfile.Register
	apb1enr regfile.Register
	moderA  regfile.Register
	cr      regfile.Register
	swtrigr regfile.Register
	dhr     regfile.Register
	dor     regfile.Register
}

// New constructs a DAC on bus. It does not touch the hardware; call Init.
func New(bus regfile.Bus, cfg Config) *DAC {
	d := &DAC{
		cfg:     cfg,
		log:     cfg.Log.With().Str("periph", "dac").Logger(),
		iopenr:  regfile.Reg(bus, "RCC_IOPENR", stm32l0.RCC_IOPENR),
		apb1enr: regfile.Reg(bus, "RCC_APB1ENR", stm32l0.RCC_APB1ENR),
		moderA:  regfile.Reg(bus, "GPIOA_MODER", stm32l0.GPIOA_MODER),
		cr:      regfile.Reg(bus, "DAC_CR", stm32l0.DAC_CR),
		swtrigr: regfile.Reg(bus, "DAC_SWTRIGR", stm32l0.DAC_SWTRIGR),
		dor:     regfile.Reg(bus, "DAC_DOR1", stm32l0.DAC_DOR1),
	}
	switch cfg.Alignment {
	case Left12:
		d.dhr = regfile.Reg(bus, "DAC_DHR12L1", stm32l0.DAC_DHR12L1)
	case Right8:
		d.dhr = regfile.Reg(bus, "DAC_DHR8R1", stm32l0.DAC_DHR8R1)
	default:
		d.cfg.Alignment = Right12
		d.dhr = regfile.Reg(bus, "DAC_DHR12R1", stm32l0.DAC_DHR12R1)
	}
	return d
}

// pa4 is the MODER field position of the DAC_OUT pin.
const pa4 = 4 * 2

// Init clocks PA4 and the DAC, then enables channel 1 with the output buffer
// on and the software trigger selected.
func (d *DAC) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.iopenr.SetBits(stm32l0.RCC_IOPENR_IOPAEN); err != nil {
		return err
	}
	// PA4 is not analog out of reset.
	if err := d.moderA.ReplaceBits(stm32l0.GPIO_MODE_Analog, stm32l0.GPIO_MODE_Msk, pa4); err != nil {
		return err
	}
	if err := d.apb1enr.SetBits(stm32l0.RCC_APB1ENR_DACEN); err != nil {
		return err
	}

	v, err := d.cr.Get()
	if err != nil {
		return err
	}
	cr := stm32l0.UnpackDACCR(v)
	cr.TriggerSel = stm32l0.DAC_TSEL_Software
	cr.TriggerEnable = true
	cr.BufferOff = false
	cr.Enable = true
	if err = d.cr.Set(cr.Merge(v)); err != nil {
		return err
	}

	d.log.Debug().Stringer("alignment", d.cfg.Alignment).Msg("initialized")
	return nil
}

// Generate outputs a constant level. The wave generator is switched off; the
// noise amplitude is left as it was.
func (d *DAC) Generate(ctx context.Context, value uint16) error {
	if value > d.cfg.Alignment.Max() {
		return fmt.Errorf("%w: %d > %d", ErrValueRange, value, d.cfg.Alignment.Max())
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.cr.ClearBits(stm32l0.DAC_CR_WAVE1_Msk); err != nil {
		return err
	}
	if err := d.write(value); err != nil {
		return err
	}
	return d.trigger(ctx)
}

// Noise adds LFSR noise of the given level (0 to 15, the number of mask bits
// minus one) on top of value.
func (d *DAC) Noise(ctx context.Context, value uint16, level uint8) error {
	if value > d.cfg.Alignment.Max() {
		return fmt.Errorf("%w: %d > %d", ErrValueRange, value, d.cfg.Alignment.Max())
	}
	if level > MaxNoiseLevel {
		return fmt.Errorf("%w: %d > %d", ErrNoiseLevel, level, MaxNoiseLevel)
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.write(value); err != nil {
		return err
	}
	if err := d.cr.ReplaceBits(uint32(level), stm32l0.DAC_CR_MAMP1_Msk>>stm32l0.DAC_CR_MAMP1_Pos, stm32l0.DAC_CR_MAMP1_Pos); err != nil {
		return err
	}
	// Only the noise bit of WAVE1. The triangle bit is not ours to clear.
	if err := d.cr.SetBits(uint32(stm32l0.WaveNoise) << stm32l0.DAC_CR_WAVE1_Pos); err != nil {
		return err
	}
	return d.trigger(ctx)
}

// Output returns the code currently driven on the pin (DOR1).
func (d *DAC) Output() (uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, err := d.dor.Get()
	return uint16(v & stm32l0.DAC_DHR12_Msk), err
}

func (d *DAC) write(value uint16) error {
	v := uint32(value)
	if d.cfg.Alignment == Left12 {
		v <<= 4
	}
	return d.dhr.Set(v)
}

// trigger fires the software trigger and waits for the hardware to take it.
// SWTRIGR is re-read every iteration.
func (d *DAC) trigger(ctx context.Context) error {
	if err := d.swtrigr.SetBits(stm32l0.DAC_SWTRIGR_SWTRIG1); err != nil {
		return err
	}
	if err := d.swtrigr.WaitClear(ctx, d.cfg.Poll, stm32l0.DAC_SWTRIGR_SWTRIG1); err != nil {
		d.log.Error().Err(err).Msg("software trigger not taken")
		return fmt.Errorf("dac: trigger: %w", err)
	}
	return nil
}
