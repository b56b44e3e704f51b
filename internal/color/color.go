// Package color holds the four channel color value used throughout the light pipeline.
package color

import (
	"math"

	"github.com/lucasb-eyer/go-colorful"
)

// Color is a linear intensity per channel. A doubles as the white channel of
// the device, it is not used for compositing. Intermediate values may leave
// the unit range; call Clamp before handing a color to anything downstream.
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

var (
	Off   = Color{}
	White = Color{R: 1, G: 1, B: 1, A: 1}
)

// Lerp interpolates every channel from c towards o. t is not clamped.
func (c Color) Lerp(o Color, t float64) Color {
	rgb := colorful.Color{R: c.R, G: c.G, B: c.B}.BlendRgb(colorful.Color{R: o.R, G: o.G, B: o.B}, t)
	return Color{
		R: rgb.R,
		G: rgb.G,
		B: rgb.B,
		A: c.A + (o.A-c.A)*t,
	}
}

// Lerp is the free function form of Color.Lerp.
func Lerp(a, b Color, t float64) Color {
	return a.Lerp(b, t)
}

// Clamp limits every channel to [0,1].
func (c Color) Clamp() Color {
	return Color{
		R: clamp01(c.R),
		G: clamp01(c.G),
		B: clamp01(c.B),
		A: clamp01(c.A),
	}
}

// Clamp is the free function form of Color.Clamp.
func Clamp(c Color) Color {
	return c.Clamp()
}

func (c Color) Add(o Color) Color {
	return Color{R: c.R + o.R, G: c.G + o.G, B: c.B + o.B, A: c.A + o.A}
}

func (c Color) Scale(s float64) Color {
	return Color{R: c.R * s, G: c.G * s, B: c.B * s, A: c.A * s}
}

// Complement returns 1-channel for each of r, g and b. Alpha is kept.
func (c Color) Complement() Color {
	return Color{R: 1 - c.R, G: 1 - c.G, B: 1 - c.B, A: c.A}
}

// Hex renders the rgb part as #rrggbb, clamped first.
func (c Color) Hex() string {
	cl := c.Clamp()
	return colorful.Color{R: cl.R, G: cl.G, B: cl.B}.Hex()
}

// ToBytes converts to 0..255 per channel with rounding.
func (c Color) ToBytes() (r, g, b, w uint8) {
	cl := c.Clamp()
	return toByte(cl.R), toByte(cl.G), toByte(cl.B), toByte(cl.A)
}

// FromBytes is the inverse of ToBytes: each channel divided by 255.
func FromBytes(r, g, b, w uint8) Color {
	return Color{
		R: float64(r) / 255,
		G: float64(g) / 255,
		B: float64(b) / 255,
		A: float64(w) / 255,
	}
}

func toByte(v float64) uint8 {
	return uint8(math.Round(v * 255))
}

func clamp01(v float64) float64 {
	// NaN collapses to 0
	if !(v > 0) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
