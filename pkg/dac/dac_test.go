package dac

import (
	"context"
	"errors"
	"testing"

	"github.com/l0nax/go-spew/spew"

	"github.com/yunginnanet/stm32l0-analog/pkg/regfile"
	"github.com/yunginnanet/stm32l0-analog/pkg/stm32l0"
	"github.com/yunginnanet/stm32l0-analog/pkg/stm32l0/sim"
)

var pprint = spew.ConfigState{
	Indent:   "\t",
	SortKeys: true,
}

func newTestDAC(t *testing.T, cfg Config) (*DAC, *sim.Device) {
	t.Helper()
	dev := sim.New(sim.DefaultOptions())
	if cfg.Poll == regfile.Unbounded {
		cfg.Poll = regfile.Limit{MaxPolls: 100}
	}
	d := New(dev, cfg)
	if err := d.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	return d, dev
}

func crOf(dev *sim.Device) stm32l0.DACCR {
	return stm32l0.UnpackDACCR(dev.Peek(stm32l0.DAC_CR))
}

func TestInit(t *testing.T) {
	dev := sim.New(sim.DefaultOptions())
	dev.Seed(stm32l0.GPIOA_MODER, 0)
	dev.Seed(stm32l0.DAC_CR, stm32l0.DAC_CR_BOFF1)

	d := New(dev, DefaultConfig())
	if err := d.Init(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if dev.Peek(stm32l0.RCC_IOPENR)&stm32l0.RCC_IOPENR_IOPAEN == 0 {
		t.Error("GPIOA clock not enabled")
	}
	if dev.Peek(stm32l0.RCC_APB1ENR)&stm32l0.RCC_APB1ENR_DACEN == 0 {
		t.Error("DAC clock not enabled")
	}
	if got := dev.Peek(stm32l0.GPIOA_MODER); got != 0b11<<8 {
		t.Errorf("expected PA4 analog (0x300), got 0x%X", got)
	}
	want := stm32l0.DACCR{
		Enable:        true,
		TriggerEnable: true,
		TriggerSel:    stm32l0.DAC_TSEL_Software,
	}
	if got := crOf(dev); got != want {
		t.Errorf("unexpected DAC_CR:\n%s", pprint.Sdump(got))
	}
	if got := dev.Peek(stm32l0.DAC_CR); got != 0x3D {
		t.Errorf("expected DAC_CR 0x3D, got 0x%X", got)
	}
}

func TestInitKeepsUnownedBits(t *testing.T) {
	dev := sim.New(sim.DefaultOptions())
	// DMAUDRIE1 plus a configured channel 2.
	const unowned = 0x003D2000
	dev.Seed(stm32l0.DAC_CR, unowned|stm32l0.DAC_CR_BOFF1)

	if err := New(dev, DefaultConfig()).Init(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := dev.Peek(stm32l0.DAC_CR)
	if got&^stm32l0.DACCR_Msk != unowned {
		t.Errorf("DAC_CR lost bits outside channel 1: 0x%08X", got)
	}
	if got&stm32l0.DACCR_Msk != 0x3D {
		t.Errorf("expected channel 1 half 0x3D, got 0x%X", got&stm32l0.DACCR_Msk)
	}
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()

	t.Run("AfterInit", func(t *testing.T) {
		d, dev := newTestDAC(t, DefaultConfig())
		dev.ResetTrace()
		if err := d.Generate(ctx, 1234); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// WAVE1 goes off before the new level is loaded.
		crAt, dhrAt := -1, -1
		for i, w := range dev.Writes() {
			switch {
			case w.Addr == stm32l0.DAC_CR && crAt < 0:
				crAt = i
			case w.Addr == stm32l0.DAC_DHR12R1 && dhrAt < 0:
				dhrAt = i
			}
		}
		if crAt < 0 || dhrAt < 0 || crAt > dhrAt {
			t.Errorf("expected DAC_CR write before DHR12R1 write:\n%s", pprint.Sdump(dev.Writes()))
		}
		if got := dev.Peek(stm32l0.DAC_DHR12R1); got != 1234 {
			t.Errorf("expected DHR12R1 1234, got %d", got)
		}
		cr := crOf(dev)
		if cr.Wave != stm32l0.WaveNone || cr.Amplitude != 0 {
			t.Errorf("expected no wave and MAMP1 0:\n%s", pprint.Sdump(cr))
		}
		if dev.Peek(stm32l0.DAC_SWTRIGR) != 0 {
			t.Error("SWTRIG1 still set")
		}
		out, err := d.Output()
		if err != nil || out != 1234 {
			t.Errorf("expected DOR1 1234, got %d (%v)", out, err)
		}
	})

	t.Run("ClearsWave", func(t *testing.T) {
		d, dev := newTestDAC(t, DefaultConfig())
		dev.Seed(stm32l0.DAC_CR, dev.Peek(stm32l0.DAC_CR)|stm32l0.DAC_CR_WAVE1_Msk|9<<stm32l0.DAC_CR_MAMP1_Pos)
		if err := d.Generate(ctx, 4095); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		cr := crOf(dev)
		if cr.Wave != stm32l0.WaveNone {
			t.Errorf("WAVE1 not cleared: %d", cr.Wave)
		}
		if cr.Amplitude != 9 {
			t.Errorf("MAMP1 should be left alone, got %d", cr.Amplitude)
		}
	})

	t.Run("OutOfRange", func(t *testing.T) {
		d, dev := newTestDAC(t, DefaultConfig())
		dev.ResetTrace()
		if err := d.Generate(ctx, 4096); !errors.Is(err, ErrValueRange) {
			t.Errorf("expected ErrValueRange, got %v", err)
		}
		if n := len(dev.Writes()); n != 0 {
			t.Errorf("rejected value caused %d writes", n)
		}
	})

	t.Run("RereadsTrigger", func(t *testing.T) {
		opts := sim.DefaultOptions()
		opts.TriggerPolls = 5
		dev := sim.New(opts)
		cfg := DefaultConfig()
		cfg.Poll = regfile.Limit{MaxPolls: 50}
		d := New(dev, cfg)
		if err := d.Init(); err != nil {
			t.Fatalf("init failed: %v", err)
		}
		if err := d.Generate(ctx, 100); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		// One read for the read-modify-write, then one per poll.
		if n := dev.Reads(stm32l0.DAC_SWTRIGR); n != 6 {
			t.Errorf("expected 6 reads of SWTRIGR, got %d", n)
		}
		if dev.Triggers() != 1 {
			t.Errorf("expected 1 trigger, got %d", dev.Triggers())
		}
	})

	t.Run("Timeout", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Poll = regfile.Limit{MaxPolls: 4}
		d, dev := newTestDAC(t, cfg)
		dev.Freeze(true)
		if err := d.Generate(ctx, 1); !errors.Is(err, regfile.ErrTimeout) {
			t.Errorf("expected ErrTimeout, got %v", err)
		}
	})
}

func TestNoise(t *testing.T) {
	ctx := context.Background()

	t.Run("Level5", func(t *testing.T) {
		d, dev := newTestDAC(t, DefaultConfig())
		if err := d.Noise(ctx, 500, 5); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := dev.Peek(stm32l0.DAC_DHR12R1); got != 500 {
			t.Errorf("expected DHR12R1 500, got %d", got)
		}
		cr := crOf(dev)
		if cr.Amplitude != 5 {
			t.Errorf("expected MAMP1 5, got %d", cr.Amplitude)
		}
		if cr.Wave != stm32l0.WaveNoise {
			t.Errorf("expected noise wave, got %d", cr.Wave)
		}
		out, err := d.Output()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if out < 500 || out > 500+63 {
			t.Errorf("expected output within 500..563, got %d", out)
		}
	})

	t.Run("TriangleBitUntouched", func(t *testing.T) {
		d, dev := newTestDAC(t, DefaultConfig())
		triangle := uint32(stm32l0.WaveTriangle) << stm32l0.DAC_CR_WAVE1_Pos
		dev.Seed(stm32l0.DAC_CR, dev.Peek(stm32l0.DAC_CR)|triangle)
		if err := d.Noise(ctx, 10, 0); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if dev.Peek(stm32l0.DAC_CR)&triangle == 0 {
			t.Error("triangle bit was cleared")
		}
	})

	t.Run("ReplacesLevel", func(t *testing.T) {
		d, dev := newTestDAC(t, DefaultConfig())
		if err := d.Noise(ctx, 0, 15); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := d.Noise(ctx, 0, 2); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := crOf(dev).Amplitude; got != 2 {
			t.Errorf("expected MAMP1 2, got %d", got)
		}
	})

	t.Run("OutOfRange", func(t *testing.T) {
		d, _ := newTestDAC(t, DefaultConfig())
		if err := d.Noise(ctx, 0, 16); !errors.Is(err, ErrNoiseLevel) {
			t.Errorf("expected ErrNoiseLevel, got %v", err)
		}
		if err := d.Noise(ctx, 5000, 1); !errors.Is(err, ErrValueRange) {
			t.Errorf("expected ErrValueRange, got %v", err)
		}
	})
}

func TestAlignment(t *testing.T) {
	ctx := context.Background()

	t.Run("Left12", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Alignment = Left12
		d, dev := newTestDAC(t, cfg)
		if err := d.Generate(ctx, 0xABC); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := dev.Peek(stm32l0.DAC_DHR12L1); got != 0xABC0 {
			t.Errorf("expected DHR12L1 0xABC0, got 0x%X", got)
		}
		if out, _ := d.Output(); out != 0xABC {
			t.Errorf("expected DOR1 0xABC, got 0x%X", out)
		}
	})

	t.Run("Right8", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Alignment = Right8
		d, dev := newTestDAC(t, cfg)
		if err := d.Generate(ctx, 0xAB); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := dev.Peek(stm32l0.DAC_DHR8R1); got != 0xAB {
			t.Errorf("expected DHR8R1 0xAB, got 0x%X", got)
		}
		if out, _ := d.Output(); out != 0xAB0 {
			t.Errorf("expected DOR1 0xAB0, got 0x%X", out)
		}
		if err := d.Generate(ctx, 256); !errors.Is(err, ErrValueRange) {
			t.Errorf("expected ErrValueRange, got %v", err)
		}
	})
}
