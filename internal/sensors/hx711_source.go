// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"fmt"
	"log"
	"sync"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/devices/v3/hx711"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/scale_monitor/internal/config"
	"github.com/relabs-tech/scale_monitor/internal/weight"
)

const (
	// Holding SCK high for more than 60us puts the HX711 into
	// power-down mode (datasheet section "Power Down").
	powerDownHold = 100 * time.Microsecond
	// Settle time after releasing SCK before the chip accepts clocks.
	powerUpSettle = 100 * time.Microsecond
)

type hx711Source struct {
	dev  *hx711.Dev
	clk  gpio.PinIO
	data gpio.PinIO

	factor  float64
	offset  float64
	timeout time.Duration

	mu     sync.Mutex
	closed bool
}

// NewHX711Source acquires the two configured GPIO lines, configures the
// HX711 channel/gain, resets the chip and captures a tare offset by
// sampling with no load on the scale. The returned source owns the GPIO
// lines until Close.
func NewHX711Source() (weight.Source, error) {
	cfg := config.Get()

	// config.Load already rejects a zero factor; guard again here so a
	// hand-built Config cannot reach the division in weight.Grams.
	if cfg.ScaleCalibrationFactor == 0 {
		return nil, fmt.Errorf("scale: calibration factor must be non-zero")
	}

	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("scale: periph host init: %w", err)
	}

	clk := gpioreg.ByName(cfg.ScaleSCKPin)
	if clk == nil {
		return nil, fmt.Errorf("scale: SCK pin %q not found", cfg.ScaleSCKPin)
	}
	data := gpioreg.ByName(cfg.ScaleDTPin)
	if data == nil {
		return nil, fmt.Errorf("scale: DT pin %q not found", cfg.ScaleDTPin)
	}

	dev, err := hx711.New(clk, data)
	if err != nil {
		return nil, fmt.Errorf("scale: HX711 device creation: %w", err)
	}

	s := &hx711Source{
		dev:     dev,
		clk:     clk,
		data:    data,
		factor:  cfg.ScaleCalibrationFactor,
		timeout: time.Duration(cfg.ScaleReadTimeout) * time.Millisecond,
	}

	mode, err := inputMode(cfg.ScaleInputMode)
	if err != nil {
		s.release()
		return nil, err
	}
	if err := dev.SetInputMode(mode); err != nil {
		s.release()
		return nil, fmt.Errorf("scale: set input mode %s: %w", cfg.ScaleInputMode, err)
	}
	log.Printf("scale: HX711 on DT=%s SCK=%s, input mode %s, factor %g",
		cfg.ScaleDTPin, cfg.ScaleSCKPin, cfg.ScaleInputMode, cfg.ScaleCalibrationFactor)

	// Reset the internal amplifier/oscillator state before taring.
	if err := s.reset(); err != nil {
		s.release()
		return nil, fmt.Errorf("scale: reset: %w", err)
	}

	if err := s.tare(cfg.ScaleSampleCount); err != nil {
		s.release()
		return nil, fmt.Errorf("scale: tare: %w", err)
	}
	log.Printf("scale: tare offset %.1f", s.offset)

	return s, nil
}

// inputMode maps the config value to the HX711 channel/gain selection.
func inputMode(name string) (hx711.InputMode, error) {
	switch name {
	case "A128":
		return hx711.CHANNEL_A_GAIN_128, nil
	case "B32":
		return hx711.CHANNEL_B_GAIN_32, nil
	case "A64":
		return hx711.CHANNEL_A_GAIN_64, nil
	default:
		return 0, fmt.Errorf("scale: unknown input mode %q", name)
	}
}

// ReadAverage averages the given number of raw readings and converts the
// result to grams using the tare offset and calibration factor.
func (s *hx711Source) ReadAverage(samples int) (weight.Sample, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return weight.Sample{}, weight.NewFatal(fmt.Errorf("scale: source is closed"))
	}

	raw, err := s.readRawAverage(samples)
	if err != nil {
		return weight.Sample{}, weight.NewTransient(err)
	}

	return weight.Sample{
		Grams: weight.Grams(raw, s.offset, s.factor),
		Raw:   raw,
		Time:  time.Now(),
	}, nil
}

// readRawAverage takes consecutive raw readings, waiting for the ready
// line before each one, and returns their mean.
func (s *hx711Source) readRawAverage(samples int) (float64, error) {
	if samples < 1 {
		return 0, fmt.Errorf("scale: sample count must be at least 1, got %d", samples)
	}

	var sum int64
	for i := 0; i < samples; i++ {
		v, err := s.dev.ReadTimeout(s.timeout)
		if err != nil {
			return 0, fmt.Errorf("scale: raw read %d/%d: %w", i+1, samples, err)
		}
		sum += int64(v)
	}
	return float64(sum) / float64(samples), nil
}

// tare captures the raw no-load baseline. Called once at startup; the
// offset is never recomputed during the run.
func (s *hx711Source) tare(samples int) error {
	raw, err := s.readRawAverage(samples)
	if err != nil {
		return err
	}
	s.offset = raw
	return nil
}

// PowerDown pulls SCK high and holds it past the 60us threshold, putting
// the HX711 into power-down mode.
func (s *hx711Source) PowerDown() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.powerDownLocked()
}

func (s *hx711Source) powerDownLocked() error {
	// Low first so the chip sees a clean rising edge.
	if err := s.clk.Out(gpio.Low); err != nil {
		return fmt.Errorf("scale: power down: %w", err)
	}
	if err := s.clk.Out(gpio.High); err != nil {
		return fmt.Errorf("scale: power down: %w", err)
	}
	time.Sleep(powerDownHold)
	return nil
}

// PowerUp releases SCK; the chip wakes and resets to its default
// channel/gain on the next conversion.
func (s *hx711Source) PowerUp() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.clk.Out(gpio.Low); err != nil {
		return fmt.Errorf("scale: power up: %w", err)
	}
	time.Sleep(powerUpSettle)
	return nil
}

// reset power-cycles the chip, clearing its internal state.
func (s *hx711Source) reset() error {
	if err := s.PowerDown(); err != nil {
		return err
	}
	return s.PowerUp()
}

// Close powers the chip down and releases both GPIO lines. Safe to call
// more than once; release errors are logged and swallowed so cleanup
// never fails the shutdown path.
func (s *hx711Source) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.release()
	return nil
}

func (s *hx711Source) release() {
	if err := s.powerDownLocked(); err != nil {
		log.Printf("scale: power down on release: %v", err)
	}
	if err := s.dev.Halt(); err != nil {
		log.Printf("scale: HX711 halt: %v", err)
	}
	if err := s.data.Halt(); err != nil {
		log.Printf("scale: DT pin release: %v", err)
	}
	if err := s.clk.Halt(); err != nil {
		log.Printf("scale: SCK pin release: %v", err)
	}
}
