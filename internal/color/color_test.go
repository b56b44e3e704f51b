package color

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLerp(t *testing.T) {
	red := Color{R: 1, A: 1}
	blue := Color{B: 1, A: 1}

	assert.Equal(t, red, Lerp(red, blue, 0))
	assert.Equal(t, blue, Lerp(red, blue, 1))
	assert.Equal(t, Color{R: 0.5, B: 0.5, A: 1}, Lerp(red, blue, 0.5))

	// t is not clamped
	over := Lerp(Color{}, Color{R: 1, G: 1, B: 1, A: 1}, 2)
	assert.Equal(t, Color{R: 2, G: 2, B: 2, A: 2}, over)
}

func TestClamp(t *testing.T) {
	tests := []struct {
		name string
		in   Color
		want Color
	}{
		{"in range", Color{R: 0.2, G: 0.4, B: 0.6, A: 0.8}, Color{R: 0.2, G: 0.4, B: 0.6, A: 0.8}},
		{"above", Color{R: 1.5, G: 2, B: 1.0001, A: 9}, Color{R: 1, G: 1, B: 1, A: 1}},
		{"below", Color{R: -0.1, G: -3, B: 0, A: -1}, Color{}},
		{"nan", Color{R: math.NaN(), G: 0.5, B: math.Inf(1), A: math.Inf(-1)}, Color{G: 0.5, B: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Clamp(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, got, got.Clamp(), "clamp must be idempotent")
		})
	}
}

func TestBytesRoundTrip(t *testing.T) {
	c := FromBytes(255, 0, 128, 0)
	assert.Equal(t, Color{R: 1, G: 0, B: 128.0 / 255, A: 0}, c)

	r, g, b, w := c.ToBytes()
	assert.Equal(t, [4]uint8{255, 0, 128, 0}, [4]uint8{r, g, b, w})

	r, g, b, w = Color{R: 1.7, G: -1, B: 0.5, A: 0.999}.ToBytes()
	assert.Equal(t, [4]uint8{255, 0, 128, 255}, [4]uint8{r, g, b, w})
}

func TestHex(t *testing.T) {
	assert.Equal(t, "#ff0000", Color{R: 1, A: 1}.Hex())
	assert.Equal(t, "#000000", Off.Hex())
	assert.Equal(t, "#ffffff", Color{R: 3, G: 3, B: 3}.Hex())
}

func TestComplement(t *testing.T) {
	assert.Equal(t, Color{R: 0, G: 1, B: 0.75, A: 0.5}, Color{R: 1, G: 0, B: 0.25, A: 0.5}.Complement())
}
