package app

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/scale_monitor/internal/weight"
)

// scriptedSource fails the reads listed in errs, succeeds otherwise,
// and signals every completed read on readCh.
type scriptedSource struct {
	mu     sync.Mutex
	errs   []error
	reads  int
	closes int
	grams  float64

	readCh chan struct{}
}

func newScriptedSource(grams float64, errs ...error) *scriptedSource {
	return &scriptedSource{
		errs:   errs,
		grams:  grams,
		readCh: make(chan struct{}, 64),
	}
}

func (s *scriptedSource) ReadAverage(samples int) (weight.Sample, error) {
	s.mu.Lock()
	i := s.reads
	s.reads++
	s.mu.Unlock()

	defer func() {
		select {
		case s.readCh <- struct{}{}:
		default:
		}
	}()

	if i < len(s.errs) && s.errs[i] != nil {
		return weight.Sample{}, s.errs[i]
	}
	return weight.Sample{Grams: s.grams, Time: time.Now()}, nil
}

func (s *scriptedSource) PowerDown() error { return nil }

func (s *scriptedSource) PowerUp() error { return nil }

func (s *scriptedSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	return nil
}

func (s *scriptedSource) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

func newTestMonitor(src weight.Source, out *bytes.Buffer, interval time.Duration) *monitor {
	return &monitor{
		src:      src,
		samples:  5,
		interval: interval,
		backoff:  interval,
		out:      out,
	}
}

// waitReads blocks until the source has completed n reads.
func waitReads(t *testing.T, src *scriptedSource, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		select {
		case <-src.readCh:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for read %d/%d", i+1, n)
		}
	}
}

func runMonitor(m *monitor, stop chan os.Signal) chan error {
	done := make(chan error, 1)
	go func() {
		done <- m.run(stop)
	}()
	return done
}

func waitDone(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("monitor did not shut down")
		return nil
	}
}

func TestMonitorPrintsWeight(t *testing.T) {
	src := newScriptedSource(1000)
	var out bytes.Buffer
	m := newTestMonitor(src, &out, time.Millisecond)

	stop := make(chan os.Signal, 1)
	done := runMonitor(m, stop)

	waitReads(t, src, 2)
	stop <- syscall.SIGINT
	require.NoError(t, waitDone(t, done))

	assert.Contains(t, out.String(), "Tare done. Place weight on the scale.\n")
	assert.Contains(t, out.String(), "Weight: 1000.00 g\n")
	assert.Equal(t, 1, strings.Count(out.String(), "Cleaning up GPIO and exiting...\n"))
	assert.Equal(t, 1, src.closeCount())
}

func TestMonitorTransientErrorContinues(t *testing.T) {
	src := newScriptedSource(42, errors.New("line timing fault"))
	var out bytes.Buffer
	m := newTestMonitor(src, &out, time.Millisecond)

	stop := make(chan os.Signal, 1)
	done := runMonitor(m, stop)

	// First read fails; the next scheduled attempts must still happen.
	waitReads(t, src, 3)
	stop <- syscall.SIGINT
	require.NoError(t, waitDone(t, done))

	assert.Contains(t, out.String(), "Error reading weight: line timing fault\n")
	assert.Contains(t, out.String(), "Weight: 42.00 g\n")
	assert.Equal(t, 1, src.closeCount())
}

func TestMonitorFatalErrorShutsDown(t *testing.T) {
	fatal := weight.NewFatal(errors.New("source is closed"))
	src := newScriptedSource(0, fatal)
	var out bytes.Buffer
	m := newTestMonitor(src, &out, time.Millisecond)

	stop := make(chan os.Signal, 1)
	done := runMonitor(m, stop)

	err := waitDone(t, done)
	require.Error(t, err)
	assert.Equal(t, weight.Fatal, weight.SeverityOf(err))

	assert.NotContains(t, out.String(), "Error reading weight:")
	assert.Equal(t, 1, strings.Count(out.String(), "Cleaning up GPIO and exiting...\n"))
	assert.Equal(t, 1, src.closeCount())
}

func TestMonitorInterruptDuringSleep(t *testing.T) {
	src := newScriptedSource(10)
	var out bytes.Buffer
	// Long interval: the interrupt must be observable inside the sleep.
	m := newTestMonitor(src, &out, time.Hour)

	stop := make(chan os.Signal, 1)
	done := runMonitor(m, stop)

	waitReads(t, src, 1)
	stop <- syscall.SIGINT
	require.NoError(t, waitDone(t, done))

	assert.Equal(t, 1, strings.Count(out.String(), "Cleaning up GPIO and exiting...\n"))
	assert.Equal(t, 1, src.closeCount())
}

func TestMonitorShutdownIdempotent(t *testing.T) {
	src := newScriptedSource(0)
	var out bytes.Buffer
	m := newTestMonitor(src, &out, time.Millisecond)

	m.shutdown()
	m.shutdown()
	m.shutdown()

	assert.Equal(t, 1, strings.Count(out.String(), "Cleaning up GPIO and exiting...\n"))
	assert.Equal(t, 1, src.closeCount())
}
