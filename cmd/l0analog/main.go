package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/rs/zerolog"
	"github.com/warthog618/config"
	"github.com/warthog618/config/blob"
	"github.com/warthog618/config/blob/decoder/json"
	"github.com/warthog618/config/dict"
	"github.com/warthog618/config/env"
	"github.com/warthog618/config/pflag"
	"tinygo.org/x/drivers"

	"github.com/yunginnanet/stm32l0-analog/pkg/adc"
	"github.com/yunginnanet/stm32l0-analog/pkg/bridge"
	"github.com/yunginnanet/stm32l0-analog/pkg/dac"
	"github.com/yunginnanet/stm32l0-analog/pkg/ft232h"
	"github.com/yunginnanet/stm32l0-analog/pkg/regfile"
	"github.com/yunginnanet/stm32l0-analog/pkg/stm32l0"
	"github.com/yunginnanet/stm32l0-analog/pkg/stm32l0/sim"
)

var log zerolog.Logger

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func init() {
	cw := zerolog.ConsoleWriter{Out: os.Stdout}
	log = zerolog.New(cw).With().Timestamp().Logger()
}

func loadConfig() *config.Config {
	defaultConfig := map[string]interface{}{
		"backend":        "sim",  // sim, spi, serial, devmem
		"op":             "temp", // temp, read, cal, dac, noise, reset
		"debug":          false,
		"channel":        int(stm32l0.ChannelPB0),
		"value":          2048,
		"noise":          0,
		"align":          "right12",
		"supply":         330,
		"autoff":         true,
		"poll.max":       0,
		"poll.timeout":   "1s",
		"ft.device":      "0",
		"ft.clock":       1000000,
		"ft.cs":          0x10,
		"ft.ready":       0,
		"ft.reset":       0,
		"ft.settle":      "50us",
		"ft.pulse":       "10ms",
		"serial.device":  "/dev/ttyUSB0",
		"serial.baud":    115200,
		"serial.timeout": "100ms",
		"sim.sample":     1861,
		"sim.temp":       710,
	}
	def := dict.New(dict.WithMap(defaultConfig))
	flags := []pflag.Flag{
		{Short: 'c', Name: "config-file"},
		{Short: 'b', Name: "backend"},
		{Short: 'o', Name: "op"},
	}
	cfg := config.New(
		pflag.New(pflag.WithFlags(flags)),
		env.New(env.WithEnvPrefix("L0ANALOG_")),
		config.WithDefault(def))
	cfg.Append(
		blob.NewConfigFile(cfg, "config.file", "l0analog.json", json.NewDecoder()))
	cfg = cfg.GetConfig("", config.WithMust)
	return cfg
}

func pollLimit(cfg *config.Config) regfile.Limit {
	return regfile.Limit{
		MaxPolls: int(cfg.MustGet("poll.max").Int()),
		Timeout:  cfg.MustGet("poll.timeout").Duration(),
	}
}

func openBus(cfg *config.Config) (regfile.Bus, io.Closer, error) {
	switch backend := cfg.MustGet("backend").String(); backend {
	case "sim":
		dev := sim.New(sim.DefaultOptions())
		dev.SetSample(stm32l0.Channel(cfg.MustGet("channel").Int()), uint16(cfg.MustGet("sim.sample").Int()))
		dev.SetSample(stm32l0.ChannelTemp, uint16(cfg.MustGet("sim.temp").Int()))
		dev.SetLogger(log.Level(zerolog.TraceLevel))
		return dev, nopCloser{}, nil

	case "spi":
		ftdi, err := openFT232H(cfg)
		if err != nil {
			return nil, nil, err
		}
		bus := bridge.New(ftdi, log)
		return bus, bus, nil

	case "serial":
		scfg := bridge.DefaultSerialConfig(cfg.MustGet("serial.device").String())
		scfg.Baud = int(cfg.MustGet("serial.baud").Int())
		scfg.ReadTimeout = cfg.MustGet("serial.timeout").Duration()
		port, err := bridge.OpenSerial(scfg)
		if err != nil {
			return nil, nil, err
		}
		bus := bridge.New(port, log)
		return bus, bus, nil

	case "devmem":
		return openDevMem()

	default:
		return nil, nil, fmt.Errorf("unknown backend %q", backend)
	}
}

func openFT232H(cfg *config.Config) (*ft232h.FT232H, error) {
	desc, err := ft232h.ParseDescriptor(cfg.MustGet("ft.device").String())
	if err != nil {
		return nil, err
	}
	ftdi, err := ft232h.Connect(desc)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to FT232H: %w", err)
	}
	log.Info().Any("info", ftdi.Info()).Msgf("connected to FT232H: %s", ftdi)

	fcfg := ft232h.DefaultConfig()
	fcfg.Clock = uint32(cfg.MustGet("ft.clock").Uint())
	fcfg.Pins = ft232h.Pins{
		CS:    uint(cfg.MustGet("ft.cs").Uint()),
		Ready: uint(cfg.MustGet("ft.ready").Uint()),
		Reset: uint(cfg.MustGet("ft.reset").Uint()),
	}
	fcfg.Settle = cfg.MustGet("ft.settle").Duration()
	fcfg.Log = log
	if err = ftdi.Setup(fcfg); err != nil {
		_ = ftdi.Close()
		return nil, err
	}
	return ftdi, nil
}

func resetTarget(cfg *config.Config) error {
	if backend := cfg.MustGet("backend").String(); backend != "spi" {
		return fmt.Errorf("reset needs the spi backend, not %q", backend)
	}
	ftdi, err := openFT232H(cfg)
	if err != nil {
		return err
	}
	err = ftdi.ResetTarget(cfg.MustGet("ft.pulse").Duration())
	if cerr := ftdi.Close(); cerr != nil {
		log.Error().Err(cerr).Msg("failed to close FT232H")
	}
	return err
}

func parseAlignment(s string) (dac.Alignment, error) {
	switch strings.ToLower(s) {
	case "right12", "":
		return dac.Right12, nil
	case "left12":
		return dac.Left12, nil
	case "right8":
		return dac.Right8, nil
	default:
		return 0, fmt.Errorf("unknown alignment %q", s)
	}
}

func runADC(ctx context.Context, cfg *config.Config, bus regfile.Bus) error {
	acfg := adc.DefaultConfig()
	acfg.Poll = pollLimit(cfg)
	acfg.AutoOff = cfg.MustGet("autoff").Bool()
	acfg.SupplyCentivolts = int32(cfg.MustGet("supply").Int())
	acfg.Log = log

	log.Debug().Any("config", acfg).Msg("initializing ADC")
	a := adc.New(bus, acfg)
	if err := a.Init(ctx); err != nil {
		return fmt.Errorf("failed to initialize ADC: %w", err)
	}
	log.Info().Msg("initialized ADC")

	switch op := cfg.MustGet("op").String(); op {
	case "temp":
		s := adc.NewTempSensor(ctx, a)
		if err := s.Update(drivers.Temperature); err != nil {
			return err
		}
		log.Info().Int32("milli_celsius", s.Temperature()).Stringer("temperature", s.Physic()).Msg("die temperature")

	case "read":
		ch := stm32l0.Channel(cfg.MustGet("channel").Int())
		var (
			v   int32
			err error
		)
		if ch == stm32l0.ChannelPB0 {
			v, err = a.SingleChannelReadout(ctx)
		} else {
			var raw uint16
			raw, err = a.ReadChannel(ctx, ch, acfg.ExternalSampleTime)
			v = int32(raw)
		}
		if err != nil {
			return err
		}
		log.Info().Stringer("channel", ch).Int32("raw", v).Msg("conversion")

	case "cal":
		cal, err := a.Calibration()
		if err != nil {
			return err
		}
		f, err := a.CalibrationFactor()
		if err != nil {
			return err
		}
		log.Info().Uint16("ts_cal1", cal.TS30).Uint16("ts_cal2", cal.TS130).Uint8("calfact", f).Msg("calibration")

	default:
		return fmt.Errorf("unknown operation %q", op)
	}
	return nil
}

// dacArgs range checks the configured output code and noise level before they
// are narrowed to the driver's types.
func dacArgs(value, level uint64, align dac.Alignment) (uint16, uint8, error) {
	if value > uint64(align.Max()) {
		return 0, 0, fmt.Errorf("%w: %d > %d", dac.ErrValueRange, value, align.Max())
	}
	if level > dac.MaxNoiseLevel {
		return 0, 0, fmt.Errorf("%w: %d > %d", dac.ErrNoiseLevel, level, dac.MaxNoiseLevel)
	}
	return uint16(value), uint8(level), nil
}

func runDAC(ctx context.Context, cfg *config.Config, bus regfile.Bus) error {
	align, err := parseAlignment(cfg.MustGet("align").String())
	if err != nil {
		return err
	}
	dcfg := dac.DefaultConfig()
	dcfg.Poll = pollLimit(cfg)
	dcfg.Alignment = align
	dcfg.Log = log

	d := dac.New(bus, dcfg)
	if err = d.Init(); err != nil {
		return fmt.Errorf("failed to initialize DAC: %w", err)
	}
	log.Info().Stringer("alignment", align).Msg("initialized DAC")

	value, level, err := dacArgs(uint64(cfg.MustGet("value").Uint()), uint64(cfg.MustGet("noise").Uint()), align)
	if err != nil {
		return err
	}
	if cfg.MustGet("op").String() == "noise" {
		err = d.Noise(ctx, value, level)
	} else {
		err = d.Generate(ctx, value)
	}
	if err != nil {
		return err
	}

	out, err := d.Output()
	if err != nil {
		return err
	}
	log.Info().Uint16("value", value).Uint16("dor1", out).Msg("output")
	return nil
}

func main() {
	cfg := loadConfig()
	if cfg.MustGet("debug").Bool() {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	if cfg.MustGet("op").String() == "reset" {
		if err := resetTarget(cfg); err != nil {
			log.Fatal().Err(err).Msg("failed to reset target")
		}
		log.Info().Msg("target reset")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	bus, closer, err := openBus(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open register bus")
	}

	switch cfg.MustGet("op").String() {
	case "dac", "noise":
		err = runDAC(ctx, cfg, bus)
	default:
		err = runADC(ctx, cfg, bus)
	}

	if cerr := closer.Close(); cerr != nil {
		log.Error().Err(cerr).Msg("failed to close register bus")
	}
	if err != nil {
		log.Fatal().Err(err).Msg("operation failed")
	}
}
