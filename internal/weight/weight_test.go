package weight

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGrams(t *testing.T) {
	// Reference point from the original calibration: factor -7050,
	// raw average -7050000, no tare offset => exactly 1 kg.
	assert.InDelta(t, 1000.0, Grams(-7050000, 0, -7050), 1e-9)

	// Tare offset is subtracted before scaling.
	assert.InDelta(t, 1000.0, Grams(-7051000, -1000, -7050), 1e-9)

	// No load reads as zero.
	assert.InDelta(t, 0.0, Grams(12345, 12345, -7050), 1e-9)

	// Positive factors work the same way.
	assert.InDelta(t, 250.0, Grams(250*420, 0, 420), 1e-9)
}

func TestGramsFormatting(t *testing.T) {
	// The monitor prints with two decimal places.
	assert.Equal(t, "1000.00", fmt.Sprintf("%.2f", Grams(-7050000, 0, -7050)))
}

func TestSeverityOf(t *testing.T) {
	base := errors.New("line timing fault")

	assert.Equal(t, Transient, SeverityOf(NewTransient(base)))
	assert.Equal(t, Fatal, SeverityOf(NewFatal(base)))

	// Unclassified errors never terminate the loop.
	assert.Equal(t, Transient, SeverityOf(base))

	// Classification survives wrapping.
	wrapped := fmt.Errorf("read 3/5: %w", NewFatal(base))
	assert.Equal(t, Fatal, SeverityOf(wrapped))
}

func TestReadErrorUnwrap(t *testing.T) {
	base := errors.New("boom")
	err := NewTransient(base)

	assert.EqualError(t, err, "boom")
	assert.True(t, errors.Is(err, base))
}

func TestMockSource(t *testing.T) {
	src := NewMockSource()

	s, err := src.ReadAverage(5)
	require.NoError(t, err)

	// The mock swells between roughly 0 and 500 g.
	assert.GreaterOrEqual(t, s.Grams, -10.0)
	assert.LessOrEqual(t, s.Grams, 510.0)
	assert.False(t, s.Time.IsZero())

	// Raw counts mirror the default calibration factor.
	assert.InDelta(t, s.Grams, Grams(s.Raw, 0, mockFactor), 1e-9)

	require.NoError(t, src.PowerDown())
	require.NoError(t, src.PowerUp())
}

func TestMockSourceClosed(t *testing.T) {
	src := NewMockSource()

	require.NoError(t, src.Close())
	require.NoError(t, src.Close()) // idempotent

	_, err := src.ReadAverage(5)
	require.Error(t, err)
	assert.Equal(t, Fatal, SeverityOf(err))
}
