package weight

import "time"

// Sample represents a single damped weight estimate from the load cell.
type Sample struct {
	Grams float64   `json:"grams"` // calibrated weight
	Raw   float64   `json:"raw"`   // averaged raw ADC counts
	Time  time.Time `json:"time"`
}

// Source is anything that can produce weight samples over time.
// There is a real HX711-backed source and a mock source for running
// without hardware.
type Source interface {
	// ReadAverage averages the given number of raw readings into one
	// damped estimate in grams.
	ReadAverage(samples int) (Sample, error)

	// PowerDown and PowerUp cycle the ADC after a read to reset its
	// amplifier and oscillator state.
	PowerDown() error
	PowerUp() error

	// Close releases the underlying GPIO lines. Safe to call more
	// than once.
	Close() error
}

// Grams converts an averaged raw ADC reading to grams using the tare
// offset and calibration factor. The factor must be non-zero; callers
// validate it at configuration time.
func Grams(raw, offset, factor float64) float64 {
	return (raw - offset) / factor
}
