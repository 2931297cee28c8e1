package stm32l0

import "fmt"

// Channel is an ADC input channel, 0 through 18.
type Channel uint8

const (
	// ChannelPB0 is ADC_IN8 on pin PB0.
	ChannelPB0     Channel = 8
	// ChannelVREFINT is the internal voltage reference.
	ChannelVREFINT Channel = 17
	// ChannelTemp is the internal temperature sensor.
	ChannelTemp    Channel = 18

	MaxChannel = ChannelTemp
)

// Mask returns the CHSELR bit selecting c.
func (c Channel) Mask() uint32 {
	return 1 << c
}

func (c Channel) Valid() bool {
	return c <= MaxChannel
}

func (c Channel) String() string {
	switch c {
	case ChannelTemp:
		return "ADC_IN18(TS)"
	case ChannelVREFINT:
		return "ADC_IN17(VREFINT)"
	default:
		return fmt.Sprintf("ADC_IN%d", uint8(c))
	}
}

// SampleTime is the ADC_SMPR SMP field.
type SampleTime uint8

const (
	SMP1_5 SampleTime = iota
	SMP3_5
	SMP7_5
	SMP12_5
	SMP19_5
	SMP39_5
	SMP79_5
	SMP160_5
)

// HalfCycles returns the sampling time in half ADC clock cycles.
func (s SampleTime) HalfCycles() int {
	return [...]int{3, 7, 15, 25, 39, 79, 159, 321}[s&ADC_SMPR_SMP_Msk]
}

func (s SampleTime) String() string {
	h := s.HalfCycles()
	return fmt.Sprintf("%d.5 cycles", h/2)
}

// Resolution is the ADC_CFGR1 RES field.
type Resolution uint8

const (
	Res12Bit Resolution = iota
	Res10Bit
	Res8Bit
	Res6Bit
)

// ADCCFGR1 is the decoded ADC_CFGR1 register.
type ADCCFGR1 struct {
	DMAEn     bool
	DMACirc   bool
	ScanDown  bool // SCANDIR: false scans channel 0 up to 18
	Res       Resolution
	AlignLeft bool
	ExtSel    uint8
	ExtEn     uint8 // 0 disables hardware triggers
	OvrMod    bool
	Cont      bool
	Wait      bool
	AutoOff   bool
	DiscEn    bool
}

func bit(b bool, mask uint32) uint32 {
	if b {
		return mask
	}
	return 0
}

func (c ADCCFGR1) Pack() uint32 {
	v := bit(c.DMAEn, ADC_CFGR1_DMAEN) |
		bit(c.DMACirc, ADC_CFGR1_DMACFG) |
		bit(c.ScanDown, ADC_CFGR1_SCANDIR) |
		bit(c.AlignLeft, ADC_CFGR1_ALIGN) |
		bit(c.OvrMod, ADC_CFGR1_OVRMOD) |
		bit(c.Cont, ADC_CFGR1_CONT) |
		bit(c.Wait, ADC_CFGR1_WAIT) |
		bit(c.AutoOff, ADC_CFGR1_AUTOFF) |
		bit(c.DiscEn, ADC_CFGR1_DISCEN)
	v |= uint32(c.Res)<<ADC_CFGR1_RES_Pos&ADC_CFGR1_RES_Msk
	v |= uint32(c.ExtSel)<<ADC_CFGR1_EXTSEL_Pos&ADC_CFGR1_EXTSEL_Msk
	v |= uint32(c.ExtEn)<<ADC_CFGR1_EXTEN_Pos&ADC_CFGR1_EXTEN_Msk
	return v
}

func UnpackADCCFGR1(v uint32) ADCCFGR1 {
	return ADCCFGR1{
		DMAEn:     v&ADC_CFGR1_DMAEN != 0,
		DMACirc:   v&ADC_CFGR1_DMACFG != 0,
		ScanDown:  v&ADC_CFGR1_SCANDIR != 0,
		Res:       Resolution(v & ADC_CFGR1_RES_Msk >> ADC_CFGR1_RES_Pos),
		AlignLeft: v&ADC_CFGR1_ALIGN != 0,
		ExtSel:    uint8(v & ADC_CFGR1_EXTSEL_Msk >> ADC_CFGR1_EXTSEL_Pos),
		ExtEn:     uint8(v & ADC_CFGR1_EXTEN_Msk >> ADC_CFGR1_EXTEN_Pos),
		OvrMod:    v&ADC_CFGR1_OVRMOD != 0,
		Cont:      v&ADC_CFGR1_CONT != 0,
		Wait:      v&ADC_CFGR1_WAIT != 0,
		AutoOff:   v&ADC_CFGR1_AUTOFF != 0,
		DiscEn:    v&ADC_CFGR1_DISCEN != 0,
	}
}

// Wave is the DAC_CR WAVE1 field.
type Wave uint8

const (
	WaveNone Wave = iota
	WaveNoise
	WaveTriangle
)

// DACCR is the decoded channel 1 half of DAC_CR.
type DACCR struct {
	Enable        bool
	// BufferOff mirrors BOFF1. The output buffer is ENABLED when this is false.
	BufferOff     bool
	TriggerEnable bool
	TriggerSel    uint8
	Wave          Wave
	Amplitude     uint8 // MAMP1, noise LFSR mask or triangle amplitude
	DMAEn         bool
}

// DACCR_Msk covers the DAC_CR bits [DACCR] decodes. DMAUDRIE1 and the
// channel 2 half are outside it.
const DACCR_Msk = DAC_CR_EN1 | DAC_CR_BOFF1 | DAC_CR_TEN1 | DAC_CR_TSEL1_Msk |
	DAC_CR_WAVE1_Msk | DAC_CR_MAMP1_Msk | DAC_CR_DMAEN1

func (c DACCR) Pack() uint32 {
	v := bit(c.Enable, DAC_CR_EN1) |
		bit(c.BufferOff, DAC_CR_BOFF1) |
		bit(c.TriggerEnable, DAC_CR_TEN1) |
		bit(c.DMAEn, DAC_CR_DMAEN1)
	v |= uint32(c.TriggerSel)<<DAC_CR_TSEL1_Pos&DAC_CR_TSEL1_Msk
	v |= uint32(c.Wave)<<DAC_CR_WAVE1_Pos&DAC_CR_WAVE1_Msk
	v |= uint32(c.Amplitude)<<DAC_CR_MAMP1_Pos&DAC_CR_MAMP1_Msk
	return v
}

// Merge returns v with the channel 1 fields replaced by c and every other bit
// kept.
func (c DACCR) Merge(v uint32) uint32 {
	return v&^DACCR_Msk | c.Pack()
}

func UnpackDACCR(v uint32) DACCR {
	return DACCR{
		Enable:        v&DAC_CR_EN1 != 0,
		BufferOff:     v&DAC_CR_BOFF1 != 0,
		TriggerEnable: v&DAC_CR_TEN1 != 0,
		TriggerSel:    uint8(v & DAC_CR_TSEL1_Msk >> DAC_CR_TSEL1_Pos),
		Wave:          Wave(v & DAC_CR_WAVE1_Msk >> DAC_CR_WAVE1_Pos),
		Amplitude:     uint8(v & DAC_CR_MAMP1_Msk >> DAC_CR_MAMP1_Pos),
		DMAEn:         v&DAC_CR_DMAEN1 != 0,
	}
}
