// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/relabs-tech/scale_monitor/internal/config"
	"github.com/relabs-tech/scale_monitor/internal/sensors"
	"github.com/relabs-tech/scale_monitor/internal/weight"
)

// runState is the monitor's position in its control loop. The source is
// acquired and tared before the loop starts, so the loop itself begins
// at stateTared.
type runState int

const (
	stateTared runState = iota
	stateReading
	stateShuttingDown
	stateTerminated
)

// monitor owns the weight source for the lifetime of the run loop and
// routes every exit path through one guarded shutdown.
type monitor struct {
	src      weight.Source
	samples  int
	interval time.Duration
	backoff  time.Duration

	display *weightDisplay // nil when the status display is disabled
	out     io.Writer

	shutdownOnce sync.Once
	fatalErr     error
}

// RunScaleMonitor initializes the HX711 source, then reads a damped
// weight estimate in a loop until interrupted. Weight lines go to
// stdout; diagnostics go to the log.
func RunScaleMonitor() error {
	cfg := config.Get()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	src, err := sensors.NewHX711Source()
	if err != nil {
		// Nothing was left acquired: the constructor releases on its
		// own failure paths.
		return fmt.Errorf("scale init: %w", err)
	}

	m := &monitor{
		src:      src,
		samples:  cfg.ScaleSampleCount,
		interval: time.Duration(cfg.ScaleSampleInterval) * time.Millisecond,
		backoff:  time.Duration(cfg.ScaleErrorBackoff) * time.Millisecond,
		out:      os.Stdout,
	}
	// The shutdown routine runs exactly once no matter how run exits.
	defer m.shutdown()

	if cfg.DisplayEnabled {
		disp, err := newWeightDisplay(cfg.DisplayI2CAddr)
		if err != nil {
			log.Printf("monitor: status display unavailable, continuing without it: %v", err)
		} else {
			m.display = disp
		}
	}

	return m.run(sigCh)
}

// run drives the control loop state machine. It returns nil on an
// interrupt-driven stop and an error only for fatal read conditions.
func (m *monitor) run(stop <-chan os.Signal) error {
	state := stateTared

	for state != stateTerminated {
		switch state {
		case stateTared:
			fmt.Fprintln(m.out, "Tare done. Place weight on the scale.")
			state = stateReading

		case stateReading:
			// The interrupt is observable at the iteration boundary as
			// well as inside both sleeps.
			select {
			case <-stop:
				state = stateShuttingDown
			default:
				state = m.readOnce(stop)
			}

		case stateShuttingDown:
			m.shutdown()
			state = stateTerminated
		}
	}
	return m.fatalErr
}

// readOnce performs one sample cycle and returns the next state.
// Transient errors are reported and retried after the back-off; only
// errors classified fatal end the loop.
func (m *monitor) readOnce(stop <-chan os.Signal) runState {
	s, err := m.src.ReadAverage(m.samples)
	if err != nil {
		if weight.SeverityOf(err) == weight.Fatal {
			log.Printf("monitor: fatal read error: %v", err)
			m.fatalErr = err
			return stateShuttingDown
		}
		fmt.Fprintf(m.out, "Error reading weight: %v\n", err)
		if !m.wait(m.backoff, stop) {
			return stateShuttingDown
		}
		return stateReading
	}

	fmt.Fprintf(m.out, "Weight: %.2f g\n", s.Grams)

	if m.display != nil {
		if err := m.display.update(s); err != nil {
			log.Printf("monitor: display update: %v", err)
		}
	}

	// Power-cycle the ADC after the read to reset its amplifier and
	// oscillator state between samples.
	if err := m.src.PowerDown(); err != nil {
		log.Printf("monitor: power down: %v", err)
	}
	if err := m.src.PowerUp(); err != nil {
		log.Printf("monitor: power up: %v", err)
	}

	if !m.wait(m.interval, stop) {
		return stateShuttingDown
	}
	return stateReading
}

// wait sleeps for d unless the stop signal arrives first. Returns false
// when interrupted.
func (m *monitor) wait(d time.Duration, stop <-chan os.Signal) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-stop:
		return false
	}
}

// shutdown powers the ADC down and releases the GPIO lines. It is safe
// to call from multiple paths; release errors are swallowed so cleanup
// always completes.
func (m *monitor) shutdown() {
	m.shutdownOnce.Do(func() {
		fmt.Fprintln(m.out, "Cleaning up GPIO and exiting...")
		if err := m.src.PowerDown(); err != nil {
			log.Printf("monitor: power down on shutdown: %v", err)
		}
		if err := m.src.Close(); err != nil {
			log.Printf("monitor: source close: %v", err)
		}
		if m.display != nil {
			m.display.close()
		}
	})
}
