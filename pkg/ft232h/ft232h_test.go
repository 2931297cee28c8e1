package ft232h

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/l0nax/go-spew/spew"
	"github.com/yunginnanet/ft232h"

	"github.com/yunginnanet/stm32l0-analog/pkg/bridge"
	"github.com/yunginnanet/stm32l0-analog/pkg/stm32l0"
)

var pprint = spew.ConfigState{
	Indent:   "\t",
	SortKeys: true,
}

func TestDescriptor(t *testing.T) {
	t.Run("ByIndex", func(t *testing.T) {
		desc := ByIndex(0)
		if err := desc.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		t.Run("Invalid", func(t *testing.T) {
			desc = ByIndex(-1)
			if err := desc.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	})
	t.Run("BySerial", func(t *testing.T) {
		desc := BySerial("123456")
		if err := desc.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		t.Run("Invalid", func(t *testing.T) {
			desc = BySerial("")
			if err := desc.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	})
	t.Run("ByMask", func(t *testing.T) {
		mask := new(ft232h.Mask)
		mask.Index = "0"
		desc := ByMask(mask)
		if err := desc.Validate(); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		t.Run("Invalid", func(t *testing.T) {
			desc = ByMask(nil)
			if err := desc.Validate(); err == nil {
				t.Error("expected error")
			}
		})
	})
	t.Run("Mask", func(t *testing.T) {
		if ByIndex(5).Mask().Index != "5" {
			t.Error("unexpected mask index")
		}
		if BySerial("5").Mask().Serial != "5" {
			t.Error("unexpected mask serial")
		}
	})
}

func testConnect(t *testing.T, desc *Descriptor, validMask bool) DeviceInfo {
	t.Helper()

	var (
		ftdi *FT232H
		err  error
	)

	if validMask {
		if desc == nil {
			t.Fatalf("descriptor is nil")
		}
		if err = desc.Validate(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	if desc == nil {
		ftdi, err = Connect()
	} else {
		ftdi, err = Connect(*desc)
	}

	if err != nil {
		t.Fatalf("failed to connect to FT232H: %v", err)
	}
	t.Logf("FT232H connected: %s", ftdi.String())

	info := ftdi.Info()
	if err = ftdi.Close(); err != nil {
		t.Errorf("failed to close FT232H: %v", err)
	}

	return info
}

func TestConnect(t *testing.T) {
	if os.Getenv("TEST_FT232H") == "" {
		t.Skip("set 'TEST_FT232H' in environment to run this test")
	}

	testInfo := testConnect(t, nil, false)

	t.Run("ByIndex", func(t *testing.T) {
		desc := ByIndex(0)
		if os.Getenv("TEST_FT232H_INDEX") != "" {
			idx, err := strconv.Atoi(strings.TrimSpace(os.Getenv("TEST_FT232H_INDEX")))
			if err != nil {
				t.Fatalf(
					"bad 'TEST_FT232H_INDEX' environment variable: %v\nvalue: %s",
					err, os.Getenv("TEST_FT232H_INDEX"),
				)
			}
			desc = ByIndex(idx)
		}

		_ = testConnect(t, &desc, true)
	})

	t.Run("BySerial", func(t *testing.T) {
		serial := ""
		if os.Getenv("TEST_FT232H_SERIAL") != "" {
			serial = strings.TrimSpace(os.Getenv("TEST_FT232H_SERIAL"))
		}

		if serial == "" {
			serial = testInfo.Serial
		}

		if serial == "" {
			t.Skip("no serial number provided, try setting 'TEST_FT232H_SERIAL' in environment")
		}

		desc := BySerial(serial)

		_ = testConnect(t, &desc, true)
	})

}

func TestParseDescriptor(t *testing.T) {
	t.Run("Index", func(t *testing.T) {
		d, err := ParseDescriptor(" 2 ")
		if err != nil || d.Index != 2 || d.Serial != "" {
			t.Errorf("unexpected descriptor %s (%v)", d, err)
		}
	})
	t.Run("Serial", func(t *testing.T) {
		d, err := ParseDescriptor("serial:FT6ZQ1AB")
		if err != nil || d.Serial != "FT6ZQ1AB" || d.Index != -1 {
			t.Errorf("unexpected descriptor %s (%v)", d, err)
		}
	})
	t.Run("Invalid", func(t *testing.T) {
		for _, s := range []string{"", "serial:", "usb0", "-1"} {
			if _, err := ParseDescriptor(s); !errors.Is(err, ErrBadDescriptor) {
				t.Errorf("%q: expected ErrBadDescriptor, got %v", s, err)
			}
		}
	})
}

// TestBridge reads the factory calibration words of a target wired to an
// FT232H over SPI. The target must answer bridge frames on its SPI slave.
func TestBridge(t *testing.T) {
	if os.Getenv("TEST_FT232H") == "" || os.Getenv("TEST_FT232H_BRIDGE") == "" {
		t.Skip("set 'TEST_FT232H' and 'TEST_FT232H_BRIDGE' in environment to run this test")
	}

	ftdi, err := Connect()
	if err != nil {
		t.Fatalf("failed to connect to FT232H: %v", err)
	}
	cfg := DefaultConfig()
	cfg.Settle = time.Millisecond
	if err = ftdi.Setup(cfg); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	bus := bridge.New(ftdi, cfg.Log)
	defer func() {
		if err := bus.Close(); err != nil {
			t.Errorf("failed to close: %v", err)
		}
	}()

	ts1, err := bus.Read16(stm32l0.TS_CAL1)
	if err != nil {
		t.Fatalf("read TS_CAL1: %v", err)
	}
	ts2, err := bus.Read16(stm32l0.TS_CAL2)
	if err != nil {
		t.Fatalf("read TS_CAL2: %v", err)
	}
	t.Log(pprint.Sdump(map[string]uint16{"TS_CAL1": ts1, "TS_CAL2": ts2}))
	if ts1 == ts2 {
		t.Errorf("calibration words are equal (%d)", ts1)
	}
}
