package util

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// RgbToHsb converts 8-bit rgb into the 16-bit hue, saturation and brightness
// triple LIFX bulbs expect.
func RgbToHsb(r, g, b uint8) (uint16, uint16, uint16) {
	hue, saturation, value := colorful.Color{
		R: float64(r) / 255,
		G: float64(g) / 255,
		B: float64(b) / 255,
	}.Hsv()

	// Hsv reports hue in degrees
	return scale16(hue / 360), scale16(saturation), scale16(value)
}

func scale16(v float64) uint16 {
	return uint16(math.Round(math.Max(0, math.Min(1, v)) * 0xFFFF))
}
