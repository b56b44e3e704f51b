/*
Package animation synthesizes the speaking color of a crystal light.

ComputeColor is a pure function of the profile and the time since speaking
started, so the same inputs always produce the same color and the engine can
be exercised without timers.
*/
package animation

import (
	"math"

	"github.com/scheerer/crystal-lights/internal/color"
	"github.com/scheerer/crystal-lights/internal/profile"
)

var (
	shiftFrequencies = [4]float64{1, 1.3, 0.7, 2.1}
	shiftAmplitudes  = [4]float64{0.4, 0.3, 0.3, 0.2}

	pulseFrequencies     = [3]float64{1, 1.7, 3.2}
	breathingFrequencies = [3]float64{1, 0.6, 2.3}
	harmonicWeights      = [3]float64{1, 0.5, 0.3}
)

const (
	complementAmplitude = 0.15
	complementWeight    = 0.3
	hueAmplitude        = 0.1
	hueWeight           = 0.2
)

// ComputeColor returns the clamped color for elapsedSeconds into a speaking
// turn. Without a profile, or with a profile missing its primary or fade
// color, the last displayed color is returned clamped.
func ComputeColor(p *profile.Profile, elapsedSeconds float64, last color.Color) color.Color {
	if p == nil || p.Primary == nil || p.FadeTo == nil {
		return last.Clamp()
	}
	t := elapsedSeconds

	base := baseColor(p, t)
	comp := complementary(*p.Primary, p.ColorShiftSpeed, t)
	pulse := PulseFactor(p, t)
	breathing := BreathingFactor(p, t)
	warm, cool := hueShift(p.ColorShiftSpeed, t)

	gain := pulse * breathing
	final := color.Color{
		R: (base.R+comp.R*complementWeight)*gain + warm*hueWeight,
		G: (base.G+comp.G*complementWeight)*gain + (warm+cool)/2*hueWeight,
		B: (base.B+comp.B*complementWeight)*gain + cool*hueWeight,
		A: base.A * breathing,
	}
	return final.Clamp()
}

// ShiftFactor blends four sine waves into the primary to fade_to mix in [0,1].
func ShiftFactor(p *profile.Profile, t float64) float64 {
	phase := t * p.ColorShiftSpeed
	var sum float64
	for i, f := range shiftFrequencies {
		sum += math.Sin(phase*f) * shiftAmplitudes[i]
	}
	// nominal sum range is [-1.2,1.2]; the factor is kept inside [0,1]
	return math.Max(0, math.Min(1, (sum+1)/2))
}

// PulseFactor scales r, g and b.
func PulseFactor(p *profile.Profile, t float64) float64 {
	return harmonics(t*p.PulseSpeed, p.PulseIntensity, pulseFrequencies)
}

// BreathingFactor scales r, g, b and the alpha channel.
func BreathingFactor(p *profile.Profile, t float64) float64 {
	return harmonics(t*p.BreathingSpeed, p.BreathingIntensity, breathingFrequencies)
}

func harmonics(phase, intensity float64, freqs [3]float64) float64 {
	f := 1.0
	for i, m := range freqs {
		f += math.Sin(phase*m) * intensity * harmonicWeights[i]
	}
	return f
}

func baseColor(p *profile.Profile, t float64) color.Color {
	return color.Lerp(*p.Primary, *p.FadeTo, ShiftFactor(p, t))
}

// complementary is a small signed offset towards the complement of primary.
func complementary(primary color.Color, speed, t float64) color.Color {
	c := primary.Complement()
	phase := t * speed
	return color.Color{
		R: c.R * math.Sin(phase*0.7) * complementAmplitude,
		G: c.G * math.Sin(phase*1.1) * complementAmplitude,
		B: c.B * math.Sin(phase*0.9) * complementAmplitude,
	}
}

func hueShift(speed, t float64) (warm, cool float64) {
	phase := t * speed
	return math.Sin(phase*0.5) * hueAmplitude, math.Sin(phase*0.8) * hueAmplitude
}
