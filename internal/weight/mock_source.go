// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text


package weight

import (
	"errors"
	"math"
	"sync"
	"time"
)

var errMockClosed = errors.New("mock source is closed")

type mockSource struct {
	start time.Time

	mu     sync.Mutex
	closed bool
}

// NewMockSource creates a mock weight source that generates smooth
// changing values, as if a weight were slowly placed on and lifted
// off the scale.
func NewMockSource() Source {
	return &mockSource{start: time.Now()}
}

func (m *mockSource) ReadAverage(samples int) (Sample, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return Sample{}, NewFatal(errMockClosed)
	}

	elapsed := time.Since(m.start).Seconds()

	// 0..500 g swell with a small per-read ripple standing in for
	// load-cell noise that the averaging would normally damp.
	grams := 250 + 250*math.Sin(elapsed*0.2) + 0.5*math.Sin(elapsed*7)

	return Sample{
		Grams: grams,
		Raw:   grams * mockFactor,
		Time:  time.Now(),
	}, nil
}

func (m *mockSource) PowerDown() error { return nil }

func (m *mockSource) PowerUp() error { return nil }

func (m *mockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// mockFactor matches the default calibration factor so the mock's raw
// counts look like real HX711 output.
const mockFactor = -7050
