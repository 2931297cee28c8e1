// Package stm32l0 holds the STM32L0x3 register map used by the ADC and DAC
// drivers: peripheral addresses, bit positions and the factory calibration
// words. Values are from RM0367.
package stm32l0

// Peripheral base addresses
const (
	RCCBase   = 0x4002_1000
	GPIOABase = 0x5000_0000
	GPIOBBase = 0x5000_0400
	ADC1Base  = 0x4001_2400
	DACBase   = 0x4000_7400
)

// RCC registers
const (
	RCC_IOPENR  = RCCBase + 0x2C // GPIO clock enable
	RCC_AHBENR  = RCCBase + 0x30
	RCC_APB2ENR = RCCBase + 0x34
	RCC_APB1ENR = RCCBase + 0x38

	RCC_IOPENR_IOPAEN = 1 << 0
	RCC_IOPENR_IOPBEN = 1 << 1

	RCC_APB2ENR_ADCEN = 1 << 9
	RCC_APB1ENR_DACEN = 1 << 29
)

// GPIO registers
const (
	GPIO_MODER = 0x00 // offset from port base

	GPIOA_MODER = GPIOABase + GPIO_MODER
	GPIOB_MODER = GPIOBBase + GPIO_MODER

	// GPIO_MODE_Analog is the two-bit MODERy value for analog mode.
	GPIO_MODE_Analog = 0b11
	GPIO_MODE_Msk    = 0b11

	// GPIOA_MODER_Reset is the documented reset value of GPIOA_MODER. PA4 is
	// not analog out of reset.
	GPIOA_MODER_Reset = 0xEBFF_FCFF
	GPIOB_MODER_Reset = 0xFFFF_FFFF
)

// ADC registers
const (
	ADC_ISR     = ADC1Base + 0x00
	ADC_IER     = ADC1Base + 0x04
	ADC_CR      = ADC1Base + 0x08
	ADC_CFGR1   = ADC1Base + 0x0C
	ADC_CFGR2   = ADC1Base + 0x10
	ADC_SMPR    = ADC1Base + 0x14
	ADC_TR      = ADC1Base + 0x20
	ADC_CHSELR  = ADC1Base + 0x28
	ADC_DR      = ADC1Base + 0x40
	ADC_CALFACT = ADC1Base + 0xB4
	ADC_CCR     = ADC1Base + 0x308 // common control register
)

// Bits for ADC_ISR. Flags are cleared by writing 1.
const (
	ADC_ISR_ADRDY = 1 << 0
	ADC_ISR_EOSMP = 1 << 1
	ADC_ISR_EOC   = 1 << 2
	ADC_ISR_EOS   = 1 << 3
	ADC_ISR_OVR   = 1 << 4
	ADC_ISR_AWD   = 1 << 7
	ADC_ISR_EOCAL = 1 << 11
)

// Bits for ADC_CR
const (
	ADC_CR_ADEN     = 1 << 0
	ADC_CR_ADDIS    = 1 << 1
	ADC_CR_ADSTART  = 1 << 2
	ADC_CR_ADSTP    = 1 << 4
	ADC_CR_ADVREGEN = 1 << 28
	ADC_CR_ADCAL    = 1 << 31
)

// Bits for ADC_CFGR1
const (
	ADC_CFGR1_DMAEN      = 1 << 0
	ADC_CFGR1_DMACFG     = 1 << 1
	ADC_CFGR1_SCANDIR    = 1 << 2
	ADC_CFGR1_RES_Pos    = 3
	ADC_CFGR1_RES_Msk    = 0b11 << ADC_CFGR1_RES_Pos
	ADC_CFGR1_ALIGN      = 1 << 5
	ADC_CFGR1_EXTSEL_Pos = 6
	ADC_CFGR1_EXTSEL_Msk = 0b111 << ADC_CFGR1_EXTSEL_Pos
	ADC_CFGR1_EXTEN_Pos  = 10
	ADC_CFGR1_EXTEN_Msk  = 0b11 << ADC_CFGR1_EXTEN_Pos
	ADC_CFGR1_OVRMOD     = 1 << 12
	ADC_CFGR1_CONT       = 1 << 13
	ADC_CFGR1_WAIT       = 1 << 14
	ADC_CFGR1_AUTOFF     = 1 << 15
	ADC_CFGR1_DISCEN     = 1 << 16
)

// Bits for ADC_CFGR2
const (
	ADC_CFGR2_OVSE       = 1 << 0
	ADC_CFGR2_CKMODE_Pos = 30
	ADC_CFGR2_CKMODE_Msk = 0b11 << ADC_CFGR2_CKMODE_Pos
)

// ADC_SMPR sample time field
const (
	ADC_SMPR_SMP_Pos = 0
	ADC_SMPR_SMP_Msk = 0b111
)

// Bits for ADC_CCR
const (
	ADC_CCR_PRESC_Pos = 18
	ADC_CCR_PRESC_Msk = 0b1111 << ADC_CCR_PRESC_Pos
	ADC_CCR_VREFEN    = 1 << 22
	ADC_CCR_TSEN      = 1 << 23
	ADC_CCR_LFMEN     = 1 << 25
)

const (
	ADC_DR_DATA_Msk = 0xFFFF
	ADC_CALFACT_Msk = 0x7F
	ADC_CHSELR_Msk  = 0x7FFFF // channels 0..18
)

// DAC registers (channel 1 only; the L0x3 has a single channel)
const (
	DAC_CR      = DACBase + 0x00
	DAC_SWTRIGR = DACBase + 0x04
	DAC_DHR12R1 = DACBase + 0x08
	DAC_DHR12L1 = DACBase + 0x0C
	DAC_DHR8R1  = DACBase + 0x10
	DAC_DOR1    = DACBase + 0x2C
	DAC_SR      = DACBase + 0x34
)

// Bits for DAC_CR
const (
	DAC_CR_EN1       = 1 << 0
	DAC_CR_BOFF1     = 1 << 1 // set DISABLES the output buffer
	DAC_CR_TEN1      = 1 << 2
	DAC_CR_TSEL1_Pos = 3
	DAC_CR_TSEL1_Msk = 0b111 << DAC_CR_TSEL1_Pos
	DAC_CR_WAVE1_Pos = 6
	DAC_CR_WAVE1_Msk = 0b11 << DAC_CR_WAVE1_Pos
	DAC_CR_MAMP1_Pos = 8
	DAC_CR_MAMP1_Msk = 0b1111 << DAC_CR_MAMP1_Pos
	DAC_CR_DMAEN1    = 1 << 12

	// DAC_TSEL_Software selects SWTRIGR as the trigger source.
	DAC_TSEL_Software = 0b111
)

const (
	DAC_SWTRIGR_SWTRIG1 = 1 << 0
	DAC_DHR12_Msk       = 0xFFF
	DAC_DHR8_Msk        = 0xFF
)

// Factory calibration words. Read only, 16 bits each, measured at VDDA = 3.0 V.
const (
	VREFINT_CAL = 0x1FF8_0078
	TS_CAL1     = 0x1FF8_007A // temperature sensor at 30 °C
	TS_CAL2     = 0x1FF8_007E // temperature sensor at 130 °C

	TS_CAL1_Temp = 30
	TS_CAL2_Temp = 130
)
