// Package profile describes how a bot's light behaves while it speaks and
// normalizes the loosely typed configuration it is read from.
package profile

import (
	"strings"

	"github.com/scheerer/crystal-lights/internal/color"
	"github.com/scheerer/crystal-lights/internal/util"
)

// Profile is immutable once normalized. Primary and FadeTo are pointers so an
// absent color can be told apart from black; Normalize always sets both.
type Profile struct {
	Primary *color.Color `json:"primary"`
	FadeTo  *color.Color `json:"fadeTo"`
	Off     color.Color  `json:"offColor"`

	ColorShiftSpeed    float64 `json:"colorShiftSpeed"`
	PulseSpeed         float64 `json:"pulseSpeed"`
	PulseIntensity     float64 `json:"pulseIntensity"`
	BreathingSpeed     float64 `json:"breathingSpeed"`
	BreathingIntensity float64 `json:"breathingIntensity"`

	// DeviceAddress is where the bot's light lives. Empty means the service
	// default is used.
	DeviceAddress string `json:"deviceAddress,omitempty"`
}

var (
	DefaultPrimary = color.Color{R: 0.8, G: 0.2, B: 1.0, A: 1.0}
	DefaultOff     = color.Off
)

const (
	DefaultColorShiftSpeed    = 2.0
	DefaultPulseSpeed         = 1.5
	DefaultPulseIntensity     = 0.2
	DefaultBreathingSpeed     = 0.8
	DefaultBreathingIntensity = 0.15
)

// Default is the profile used when a bot has no light configuration.
func Default() *Profile {
	p, _ := Normalize(nil)
	return p
}

type scalarField struct {
	names []string
	def   float64
	set   func(p *Profile, v float64)
}

// scalarFields enumerates every numeric field, every accepted spelling and its default.
var scalarFields = []scalarField{
	{[]string{"color_shift_speed", "colorShiftSpeed"}, DefaultColorShiftSpeed, func(p *Profile, v float64) { p.ColorShiftSpeed = v }},
	{[]string{"pulse_speed", "pulseSpeed"}, DefaultPulseSpeed, func(p *Profile, v float64) { p.PulseSpeed = v }},
	{[]string{"pulse_intensity", "pulseIntensity"}, DefaultPulseIntensity, func(p *Profile, v float64) { p.PulseIntensity = v }},
	{[]string{"breathing_speed", "breathingSpeed"}, DefaultBreathingSpeed, func(p *Profile, v float64) { p.BreathingSpeed = v }},
	{[]string{"breathing_intensity", "breathingIntensity"}, DefaultBreathingIntensity, func(p *Profile, v float64) { p.BreathingIntensity = v }},
}

var (
	primaryNames = []string{"primary_color", "primaryColor", "primary"}
	fadeToNames  = []string{"fade_to_color", "fadeToColor", "fadeTo"}
	offNames     = []string{"off_color", "offColor"}
	addressNames = []string{"shelly_ip", "shellyIp", "shelly_address", "shellyAddress", "device_address", "deviceAddress"}
)

// Normalize turns a raw light_config mapping into a Profile. Missing fields
// take their documented default, fade_to defaults to the primary color and
// negative speeds or intensities are clamped to zero. The returned list names
// the fields that were present but could not be used.
func Normalize(raw map[string]any) (*Profile, []string) {
	var ignored []string

	primary := DefaultPrimary
	if v, name, ok := lookup(raw, primaryNames); ok {
		c, good := parseColor(v, DefaultPrimary)
		if good {
			primary = c
		} else {
			ignored = append(ignored, name)
		}
	}

	fadeTo := primary
	if v, name, ok := lookup(raw, fadeToNames); ok {
		c, good := parseColor(v, primary)
		if good {
			fadeTo = c
		} else {
			ignored = append(ignored, name)
		}
	}

	off := DefaultOff
	if v, name, ok := lookup(raw, offNames); ok {
		c, good := parseColor(v, DefaultOff)
		if good {
			off = c
		} else {
			ignored = append(ignored, name)
		}
	}

	p := &Profile{
		Primary: &primary,
		FadeTo:  &fadeTo,
		Off:     off,
	}

	for _, f := range scalarFields {
		value := f.def
		if v, name, ok := lookup(raw, f.names); ok {
			if n, good := util.ParseFloat64(v); good {
				value = n
			} else {
				ignored = append(ignored, name)
			}
		}
		if value < 0 {
			value = 0
		}
		f.set(p, value)
	}

	if v, _, ok := lookup(raw, addressNames); ok {
		p.DeviceAddress = strings.TrimSpace(util.ParseString(v))
	}

	return p, ignored
}

func lookup(raw map[string]any, names []string) (any, string, bool) {
	for _, n := range names {
		if v, ok := raw[n]; ok && v != nil {
			return v, n, true
		}
	}
	return nil, "", false
}

// parseColor reads {r,g,b,a} (or red/green/blue/alpha|white). Missing
// channels fall back to def channel by channel.
func parseColor(v any, def color.Color) (color.Color, bool) {
	m, ok := asMap(v)
	if !ok {
		return def, false
	}
	c := def
	channels := []struct {
		names []string
		dst   *float64
	}{
		{[]string{"r", "red"}, &c.R},
		{[]string{"g", "green"}, &c.G},
		{[]string{"b", "blue"}, &c.B},
		{[]string{"a", "alpha", "w", "white"}, &c.A},
	}
	for _, ch := range channels {
		raw, _, found := lookup(m, ch.names)
		if !found {
			continue
		}
		n, good := util.ParseFloat64(raw)
		if !good {
			return def, false
		}
		*ch.dst = n
	}
	return c, true
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case map[any]any:
		out := make(map[string]any, len(m))
		for k, val := range m {
			out[util.ParseString(k)] = val
		}
		return out, true
	default:
		return nil, false
	}
}
