// Package sim is a behavioural model of the STM32L0x3 ADC and DAC built on a
// [regfile.Sim]. It reproduces the parts of the hardware the drivers depend
// on: clock gating, write-1-to-clear status flags, self-clearing control bits
// that take a number of polls to complete, data register side effects and the
// factory calibration words.
package sim

import (
	"sync"

	"github.com/yunginnanet/stm32l0-analog/pkg/regfile"
	"github.com/yunginnanet/stm32l0-analog/pkg/stm32l0"
)

// Options tunes how many bus reads each hardware operation takes to finish.
type Options struct {
	CalibrationPolls int // ISR reads after ADCAL before EOCAL sets
	ConversionPolls  int // ISR reads after ADSTART before EOC sets
	StopPolls        int // CR reads after ADSTP/ADDIS before they clear
	TriggerPolls     int // SWTRIGR reads after SWTRIG1 before it clears

	TSCal1     uint16
	TSCal2     uint16
	VRefIntCal uint16
	CalFactor  uint8
}

// DefaultOptions returns calibration words typical of an STM32L053R8.
func DefaultOptions() Options {
	return Options{
		CalibrationPolls: 3,
		ConversionPolls:  2,
		StopPolls:        2,
		TriggerPolls:     2,
		TSCal1:           674,
		TSCal2:           886,
		VRefIntCal:       1671,
		CalFactor:        0x3A,
	}
}

// Device is a simulated ADC and DAC. It embeds the register file so it can be
// handed to the drivers directly.
type Device struct {
	*regfile.Sim
	opts Options

	mu      sync.Mutex
	samples map[stm32l0.Channel]uint16
	frozen  bool

	calPolls  int // -1 when idle
	convPolls int
	stpPolls  int
	disPolls  int
	trigPolls int

	conversions int
	triggers    int
	dhr         uint32
	lfsr        uint32
}

// New returns a device in its reset state.
func New(opts Options) *Device {
	d := &Device{
		Sim:       regfile.NewSim(),
		opts:      opts,
		samples:   make(map[stm32l0.Channel]uint16),
		calPolls:  -1,
		convPolls: -1,
		stpPolls:  -1,
		disPolls:  -1,
		trigPolls: -1,
		lfsr:      0xAAA,
	}

	d.Seed(stm32l0.GPIOA_MODER, stm32l0.GPIOA_MODER_Reset)
	d.Seed(stm32l0.GPIOB_MODER, stm32l0.GPIOB_MODER_Reset)
	d.Seed16(stm32l0.TS_CAL1, opts.TSCal1)
	d.Seed16(stm32l0.TS_CAL2, opts.TSCal2)
	d.Seed16(stm32l0.VREFINT_CAL, opts.VRefIntCal)

	readOnly := func(_ regfile.Mem, _, old, _ uint32) uint32 { return old }
	d.OnWrite(stm32l0.TS_CAL1, readOnly)
	d.OnWrite(stm32l0.TS_CAL2, readOnly)
	d.OnWrite(stm32l0.VREFINT_CAL, readOnly)

	adcConfig := []uint32{
		stm32l0.ADC_IER, stm32l0.ADC_CFGR1, stm32l0.ADC_CFGR2, stm32l0.ADC_SMPR,
		stm32l0.ADC_TR, stm32l0.ADC_CHSELR, stm32l0.ADC_CCR,
	}
	for _, addr := range adcConfig {
		d.OnWrite(addr, d.gate(stm32l0.RCC_APB2ENR, stm32l0.RCC_APB2ENR_ADCEN))
	}
	d.OnWrite(stm32l0.ADC_ISR, d.writeISR)
	d.OnRead(stm32l0.ADC_ISR, d.readISR)
	d.OnWrite(stm32l0.ADC_CR, d.writeCR)
	d.OnRead(stm32l0.ADC_CR, d.readCR)
	d.OnRead(stm32l0.ADC_DR, d.readDR)
	d.OnWrite(stm32l0.ADC_DR, readOnly)
	d.OnWrite(stm32l0.ADC_CALFACT, readOnly)

	dacGate := d.gate(stm32l0.RCC_APB1ENR, stm32l0.RCC_APB1ENR_DACEN)
	d.OnWrite(stm32l0.DAC_CR, dacGate)
	d.OnWrite(stm32l0.DAC_DHR12R1, d.writeDHR(0, stm32l0.DAC_DHR12_Msk))
	d.OnWrite(stm32l0.DAC_DHR12L1, d.writeDHR(4, stm32l0.DAC_DHR12_Msk<<4))
	d.OnWrite(stm32l0.DAC_DHR8R1, d.writeDHR(-4, stm32l0.DAC_DHR8_Msk))
	d.OnWrite(stm32l0.DAC_SWTRIGR, d.writeSWTRIGR)
	d.OnRead(stm32l0.DAC_SWTRIGR, d.readSWTRIGR)
	d.OnWrite(stm32l0.DAC_DOR1, readOnly)

	return d
}

// SetSample sets the value the next conversions of ch will return.
func (d *Device) SetSample(ch stm32l0.Channel, v uint16) {
	d.mu.Lock()
	d.samples[ch] = v
	d.mu.Unlock()
}

// Freeze stops all in-flight hardware operations from making progress, which
// simulates an unresponsive peripheral.
func (d *Device) Freeze(frozen bool) {
	d.mu.Lock()
	d.frozen = frozen
	d.mu.Unlock()
}

// Conversions returns how many ADC conversions completed.
func (d *Device) Conversions() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conversions
}

// Triggers returns how many DAC software triggers were latched.
func (d *Device) Triggers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.triggers
}

func (d *Device) gate(enr, bit uint32) regfile.WriteHook {
	return func(mem regfile.Mem, _, old, val uint32) uint32 {
		if mem.Peek(enr)&bit == 0 {
			return old
		}
		return val
	}
}

func (d *Device) adcClocked(mem regfile.Mem) bool {
	return mem.Peek(stm32l0.RCC_APB2ENR)&stm32l0.RCC_APB2ENR_ADCEN != 0
}

// tick advances a countdown. It reports true when the countdown expires.
func (d *Device) tick(n *int) bool {
	if *n < 0 || d.frozen {
		return false
	}
	*n--
	if *n <= 0 {
		*n = -1
		return true
	}
	return false
}

func (d *Device) writeISR(mem regfile.Mem, _, old, val uint32) uint32 {
	if !d.adcClocked(mem) {
		return old
	}
	return old &^ val
}

func (d *Device) readISR(mem regfile.Mem, addr, _ uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tick(&d.calPolls) {
		mem.ClearBits(stm32l0.ADC_CR, stm32l0.ADC_CR_ADCAL)
		mem.SetBits(stm32l0.ADC_ISR, stm32l0.ADC_ISR_EOCAL)
		mem.Poke(stm32l0.ADC_CALFACT, uint32(d.opts.CalFactor)&stm32l0.ADC_CALFACT_Msk)
	}
	if d.tick(&d.convPolls) {
		d.convert(mem)
	}
	return mem.Peek(addr)
}

func (d *Device) convert(mem regfile.Mem) {
	var v uint16
	chsel := mem.Peek(stm32l0.ADC_CHSELR) & stm32l0.ADC_CHSELR_Msk
	// Every selected channel lands in the same DR; the highest channel of an
	// upward scan wins.
	for ch := stm32l0.Channel(0); ch <= stm32l0.MaxChannel; ch++ {
		if chsel&ch.Mask() == 0 {
			continue
		}
		v = d.samples[ch]
		if ch == stm32l0.ChannelTemp && mem.Peek(stm32l0.ADC_CCR)&stm32l0.ADC_CCR_TSEN == 0 {
			v = 0
		}
	}
	mem.Poke(stm32l0.ADC_DR, uint32(v)&0xFFF)
	mem.ClearBits(stm32l0.ADC_CR, stm32l0.ADC_CR_ADSTART)
	mem.SetBits(stm32l0.ADC_ISR, stm32l0.ADC_ISR_EOC|stm32l0.ADC_ISR_EOS|stm32l0.ADC_ISR_EOSMP)
	d.conversions++
}

func (d *Device) writeCR(mem regfile.Mem, _, old, val uint32) uint32 {
	if !d.adcClocked(mem) {
		return old
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if val&stm32l0.ADC_CR_ADCAL != 0 && old&stm32l0.ADC_CR_ADCAL == 0 {
		d.calPolls = d.opts.CalibrationPolls
	}
	if val&stm32l0.ADC_CR_ADSTART != 0 && old&stm32l0.ADC_CR_ADSTART == 0 {
		d.convPolls = d.opts.ConversionPolls
	}
	if val&stm32l0.ADC_CR_ADSTP != 0 && old&stm32l0.ADC_CR_ADSTP == 0 {
		d.stpPolls = d.opts.StopPolls
	}
	if val&stm32l0.ADC_CR_ADDIS != 0 && old&stm32l0.ADC_CR_ADDIS == 0 {
		d.disPolls = d.opts.StopPolls
	}
	if val&stm32l0.ADC_CR_ADEN != 0 && old&stm32l0.ADC_CR_ADEN == 0 {
		mem.SetBits(stm32l0.ADC_ISR, stm32l0.ADC_ISR_ADRDY)
	}
	return val
}

func (d *Device) readCR(mem regfile.Mem, addr, _ uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tick(&d.stpPolls) {
		mem.ClearBits(stm32l0.ADC_CR, stm32l0.ADC_CR_ADSTP|stm32l0.ADC_CR_ADSTART)
		d.convPolls = -1
	}
	if d.tick(&d.disPolls) {
		mem.ClearBits(stm32l0.ADC_CR, stm32l0.ADC_CR_ADDIS|stm32l0.ADC_CR_ADEN)
		mem.ClearBits(stm32l0.ADC_ISR, stm32l0.ADC_ISR_ADRDY)
	}
	return mem.Peek(addr)
}

func (d *Device) readDR(mem regfile.Mem, _, stored uint32) uint32 {
	mem.ClearBits(stm32l0.ADC_ISR, stm32l0.ADC_ISR_EOC)
	return stored & stm32l0.ADC_DR_DATA_Msk
}

// writeDHR maps the three data holding registers onto the single internal
// DHR, which is what the hardware does.
func (d *Device) writeDHR(shift int, mask uint32) regfile.WriteHook {
	return func(mem regfile.Mem, _, old, val uint32) uint32 {
		if mem.Peek(stm32l0.RCC_APB1ENR)&stm32l0.RCC_APB1ENR_DACEN == 0 {
			return old
		}
		val &= mask
		d.mu.Lock()
		switch {
		case shift > 0:
			d.dhr = val >> shift
		case shift < 0:
			d.dhr = val << -shift
		default:
			d.dhr = val
		}
		d.mu.Unlock()
		return val
	}
}

func (d *Device) writeSWTRIGR(mem regfile.Mem, _, old, val uint32) uint32 {
	if mem.Peek(stm32l0.RCC_APB1ENR)&stm32l0.RCC_APB1ENR_DACEN == 0 {
		return old
	}
	cr := stm32l0.UnpackDACCR(mem.Peek(stm32l0.DAC_CR))
	if val&stm32l0.DAC_SWTRIGR_SWTRIG1 == 0 || !cr.Enable || !cr.TriggerEnable || cr.TriggerSel != stm32l0.DAC_TSEL_Software {
		return old
	}
	d.mu.Lock()
	d.trigPolls = d.opts.TriggerPolls
	d.mu.Unlock()
	return val & stm32l0.DAC_SWTRIGR_SWTRIG1
}

func (d *Device) readSWTRIGR(mem regfile.Mem, addr, _ uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.tick(&d.trigPolls) {
		mem.ClearBits(stm32l0.DAC_SWTRIGR, stm32l0.DAC_SWTRIGR_SWTRIG1)
		mem.Poke(stm32l0.DAC_DOR1, d.output(stm32l0.UnpackDACCR(mem.Peek(stm32l0.DAC_CR))))
		d.triggers++
	}
	return mem.Peek(addr)
}

// output computes DOR1 for the current DHR and wave settings. The noise
// generator is the 12-bit LFSR from RM0367, masked by MAMP1.
func (d *Device) output(cr stm32l0.DACCR) uint32 {
	v := d.dhr
	if cr.Wave == stm32l0.WaveNoise {
		bit := (d.lfsr ^ d.lfsr>>1 ^ d.lfsr>>4 ^ d.lfsr>>6) & 1
		d.lfsr = (d.lfsr>>1 | bit<<11) & 0xFFF
		mask := uint32(1)<<(cr.Amplitude+1) - 1
		v += d.lfsr & mask
	}
	if v > stm32l0.DAC_DHR12_Msk {
		v = stm32l0.DAC_DHR12_Msk
	}
	return v
}
