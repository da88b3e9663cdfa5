// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package app

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/scale_monitor/internal/config"
	"github.com/relabs-tech/scale_monitor/internal/weight"
)

// RunSimConsole drives the monitor loop with the mock weight source, so
// the output format and shutdown behavior can be exercised without a
// load cell attached. Uses the default timing; no config file needed.
func RunSimConsole() error {
	cfg := config.Default()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	m := &monitor{
		src:      weight.NewMockSource(),
		samples:  cfg.ScaleSampleCount,
		interval: time.Duration(cfg.ScaleSampleInterval) * time.Millisecond,
		backoff:  time.Duration(cfg.ScaleErrorBackoff) * time.Millisecond,
		out:      os.Stdout,
	}
	defer m.shutdown()

	return m.run(sigCh)
}
