package util

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestGetenv(t *testing.T) {
	t.Setenv("CRYSTAL_TEST_DURATION", "250ms")
	t.Setenv("CRYSTAL_TEST_INT", "nope")

	assert.Equal(t, 250*time.Millisecond, Getenv("CRYSTAL_TEST_DURATION", time.Second))
	assert.Equal(t, 7, Getenv("CRYSTAL_TEST_INT", 7))
	assert.Equal(t, "fallback", Getenv("CRYSTAL_TEST_UNSET", "fallback"))
}

func TestParseStringAs(t *testing.T) {
	assert.Equal(t, 0.5, ParseStringAs(`"0.5"`, 1.0))
	assert.Equal(t, true, ParseStringAs("true", false))
	assert.Equal(t, []string{"a", "b"}, ParseStringAs("a, b,", []string{}))
	assert.Equal(t, int64(16), ParseStringAs("0x10", int64(0)))
}

func TestSplitKeyValues(t *testing.T) {
	got := SplitKeyValues("dispatch=debug, session = warn,broken")
	assert.Equal(t, map[string]string{"dispatch": "debug", "session": "warn"}, got)
}

func TestParseStringAsDecimal(t *testing.T) {
	assert.True(t, decimal.RequireFromString("1.5").Equal(ParseStringAs("1.5", decimal.Zero)))
}

func TestParseFloat64(t *testing.T) {
	tests := []struct {
		in     any
		want   float64
		wantOK bool
	}{
		{1, 1, true},
		{int64(2), 2, true},
		{float32(0.5), 0.5, true},
		{1.25, 1.25, true},
		{" 3.5 ", 3.5, true},
		{"abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
		{nil, 0, false},
		{true, 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseFloat64(tt.in)
		assert.Equal(t, tt.wantOK, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestRgbToHsb(t *testing.T) {
	h, s, b := RgbToHsb(255, 0, 0)
	assert.Equal(t, [3]uint16{0, 0xFFFF, 0xFFFF}, [3]uint16{h, s, b})

	h, s, b = RgbToHsb(0, 0, 0)
	assert.Equal(t, [3]uint16{0, 0, 0}, [3]uint16{h, s, b})

	h, _, _ = RgbToHsb(0, 0, 255)
	assert.InDelta(t, 0xFFFF*2.0/3.0, float64(h), 1)
}

func TestRandomString(t *testing.T) {
	assert.Len(t, RandomString(8), 8)
	assert.Len(t, RandomString(70), 70)
	assert.NotEqual(t, RandomString(16), RandomString(16))
}
