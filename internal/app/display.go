package app

import (
	"fmt"
	"image"
	"log"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/devices/v3/ssd1306"
	"periph.io/x/devices/v3/ssd1306/image1bit"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/scale_monitor/internal/weight"
)

// weightDisplay shows the latest weight estimate on an SSD1306 OLED.
// It is fed directly by the monitor loop; display failures are never
// fatal to the monitor.
type weightDisplay struct {
	bus i2c.BusCloser
	dev *ssd1306.Dev
}

func newWeightDisplay(addr uint16) (*weightDisplay, error) {
	// Initialize periph
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize periph: %w", err)
	}

	// Open I2C bus
	bus, err := i2creg.Open("")
	if err != nil {
		return nil, fmt.Errorf("failed to open I2C bus: %w", err)
	}

	dev, err := ssd1306.NewI2C(bus, &ssd1306.DefaultOpts)
	if err != nil {
		bus.Close()
		return nil, fmt.Errorf("failed to initialize display: %w", err)
	}
	log.Printf("display: initialized at 0x%02X", addr)

	d := &weightDisplay{bus: bus, dev: dev}
	if err := d.showSplash(); err != nil {
		log.Printf("display: error showing splash: %v", err)
	}
	return d, nil
}

// update redraws the display with the given sample.
func (d *weightDisplay) update(s weight.Sample) error {
	img := blankFrame()

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(0, 13)
	drawer.DrawBytes([]byte("Weight"))

	drawer.Dot = fixed.P(0, 33)
	drawer.DrawBytes([]byte(fmt.Sprintf("%9.2f g", s.Grams)))

	drawer.Dot = fixed.P(0, 56)
	drawer.DrawBytes([]byte(s.Time.Format("15:04:05")))

	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

func (d *weightDisplay) showSplash() error {
	img := blankFrame()

	drawer := &font.Drawer{
		Dst:  img,
		Src:  &image.Uniform{image1bit.On},
		Face: basicfont.Face7x13,
	}

	drawer.Dot = fixed.P(10, 26)
	drawer.DrawBytes([]byte("Scale Pi"))

	drawer.Dot = fixed.P(5, 43)
	drawer.DrawBytes([]byte("Taring..."))

	return d.dev.Draw(d.dev.Bounds(), img, image.Point{})
}

// close releases the I2C bus. Errors are swallowed; the display must
// never fail the shutdown path.
func (d *weightDisplay) close() {
	if err := d.dev.Halt(); err != nil {
		log.Printf("display: halt: %v", err)
	}
	if err := d.bus.Close(); err != nil {
		log.Printf("display: bus close: %v", err)
	}
}

func blankFrame() *image1bit.VerticalLSB {
	img := image1bit.NewVerticalLSB(image.Rect(0, 0, 128, 64))

	// Blank image
	for i := 0; i < 1024; i++ {
		img.Pix[i] = 0
	}
	return img
}
