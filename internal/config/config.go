package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// Scale hardware (HX711)
	ScaleDTPin  string // data line, e.g. "GPIO23"
	ScaleSCKPin string // clock line, e.g. "GPIO24"

	// Channel/gain selection for the HX711 read sequence:
	// "A128" (channel A, gain 128), "B32", "A64"
	ScaleInputMode string

	// Calibration factor dividing raw ADC counts into grams.
	// Determined empirically per load cell; must be non-zero.
	ScaleCalibrationFactor float64

	// Sampling
	ScaleSampleCount int // raw readings averaged per estimate
	ScaleReadTimeout int // milliseconds to wait for the HX711 ready line

	// Timing
	ScaleSampleInterval int // milliseconds between successful reads
	ScaleErrorBackoff   int // milliseconds after a failed read

	// Status display (optional SSD1306)
	DisplayEnabled bool
	DisplayI2CAddr uint16
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: unexported (lowercase) so other packages cannot access it directly.
//     This enforces encapsulation and prevents external code from modifying config without proper locking.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: RWMutex protects concurrent access. Write lock (Lock) for initialization,
//     read lock (RLock) for Get() allows multiple concurrent readers without blocking each other.
//
// External code must use InitGlobal() to set and Get() to read, ensuring thread safety.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Default returns a Config with defaults matching the original hardware:
// HX711 data on GPIO23, clock on GPIO24, calibration factor -7050,
// 5-sample averaging, 500 ms between reads, 1 s back-off on errors.
func Default() *Config {
	return &Config{
		ScaleDTPin:             "GPIO23",
		ScaleSCKPin:            "GPIO24",
		ScaleInputMode:         "A128",
		ScaleCalibrationFactor: -7050,
		ScaleSampleCount:       5,
		ScaleReadTimeout:       2000,
		ScaleSampleInterval:    500,
		ScaleErrorBackoff:      1000,
		DisplayEnabled:         false,
		DisplayI2CAddr:         0x3C,
	}
}

// Load reads the configuration file and returns a Config struct.
// Keys not present in the file keep their defaults.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Default()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	// Validate required fields
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	// Scale hardware
	case "SCALE_DT_PIN":
		c.ScaleDTPin = value
	case "SCALE_SCK_PIN":
		c.ScaleSCKPin = value
	case "SCALE_INPUT_MODE":
		switch value {
		case "A128", "B32", "A64":
			c.ScaleInputMode = value
		default:
			return fmt.Errorf("SCALE_INPUT_MODE must be A128, B32 or A64, got %q", value)
		}
	case "SCALE_CALIBRATION_FACTOR":
		factor, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid SCALE_CALIBRATION_FACTOR %q: %w", value, err)
		}
		c.ScaleCalibrationFactor = factor

	// Sampling
	case "SCALE_SAMPLE_COUNT":
		count, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SCALE_SAMPLE_COUNT %q: %w", value, err)
		}
		c.ScaleSampleCount = count
	case "SCALE_READ_TIMEOUT":
		timeout, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SCALE_READ_TIMEOUT %q: %w", value, err)
		}
		if timeout <= 0 {
			return fmt.Errorf("SCALE_READ_TIMEOUT must be positive, got %d", timeout)
		}
		c.ScaleReadTimeout = timeout

	// Timing
	case "SCALE_SAMPLE_INTERVAL":
		interval, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SCALE_SAMPLE_INTERVAL %q: %w", value, err)
		}
		c.ScaleSampleInterval = interval
	case "SCALE_ERROR_BACKOFF":
		backoff, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SCALE_ERROR_BACKOFF %q: %w", value, err)
		}
		c.ScaleErrorBackoff = backoff

	// Display
	case "DISPLAY_ENABLED":
		enabled, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_ENABLED %q: %w", value, err)
		}
		c.DisplayEnabled = enabled
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set and sane.
func (c *Config) validate() error {
	if c.ScaleDTPin == "" {
		return fmt.Errorf("SCALE_DT_PIN is required")
	}
	if c.ScaleSCKPin == "" {
		return fmt.Errorf("SCALE_SCK_PIN is required")
	}
	if c.ScaleDTPin == c.ScaleSCKPin {
		return fmt.Errorf("SCALE_DT_PIN and SCALE_SCK_PIN must differ, both are %q", c.ScaleDTPin)
	}
	// A zero factor would divide by zero on the first read; reject it
	// here rather than at sample time.
	if c.ScaleCalibrationFactor == 0 {
		return fmt.Errorf("SCALE_CALIBRATION_FACTOR must be non-zero")
	}
	if c.ScaleSampleCount < 1 {
		return fmt.Errorf("SCALE_SAMPLE_COUNT must be at least 1, got %d", c.ScaleSampleCount)
	}
	if c.ScaleSampleInterval <= 0 {
		return fmt.Errorf("SCALE_SAMPLE_INTERVAL must be positive, got %d", c.ScaleSampleInterval)
	}
	if c.ScaleErrorBackoff <= 0 {
		return fmt.Errorf("SCALE_ERROR_BACKOFF must be positive, got %d", c.ScaleErrorBackoff)
	}
	return nil
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
// Acquires write lock (configMu.Lock) during initialization to prevent concurrent access.
// This is the only function that can set globalConfig.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
// Uses read lock (configMu.RLock) to allow multiple concurrent readers without blocking.
// This is thread-safe and efficient for concurrent access across goroutines.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
