package util

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type StringParsable interface {
	string | []string | int | int64 | float64 | bool | time.Duration | decimal.Decimal
}

func envVarStringSplitter(s string) []string {
	parts := strings.Split(s, ",")
	v := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v = append(v, p)
	}
	return v
}

// ParseStringAs parses the input string as a StringParsable type, returning the default
// if an error occurs.
func ParseStringAs[T StringParsable](v string, def T) T {
	v = strings.Trim(v, `"`) // in case something comes in as if it were a json string

	var parser func(string) (any, error)
	switch any(def).(type) {
	case string:
		parser = func(s string) (any, error) { return s, nil }
	case []string:
		parser = func(s string) (any, error) { return envVarStringSplitter(s), nil }
	case int:
		parser = func(s string) (any, error) { return strconv.Atoi(s) }
	case int64:
		parser = func(s string) (any, error) { return strconv.ParseInt(s, 0, 64) }
	case time.Duration:
		parser = func(s string) (any, error) { return time.ParseDuration(s) }
	case bool:
		parser = func(s string) (any, error) { return strconv.ParseBool(s) }
	case float64:
		parser = func(s string) (any, error) { return strconv.ParseFloat(s, 64) }
	case decimal.Decimal:
		parser = func(s string) (any, error) { return decimal.NewFromString(s) }
	}

	val, err := parser(v)
	if err != nil {
		return def
	}
	return val.(T)
}

// SplitKeyValues parses "a=1,b=2" into a map. Entries without '=' are skipped.
func SplitKeyValues(s string) map[string]string {
	m := make(map[string]string)
	for _, part := range envVarStringSplitter(s) {
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			continue
		}
		m[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return m
}

// ParseString renders loosely typed config values as a string.
func ParseString(src any) string {
	if src == nil {
		return ""
	}
	switch v := src.(type) {
	case string:
		return v
	case []uint8:
		return string(v)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// ParseFloat64 converts loosely typed config values (yaml/json decoded) into a
// float. ok is false when the value is missing or not numeric.
func ParseFloat64(m any) (float64, bool) {
	switch val := m.(type) {
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case uint64:
		return float64(val), true
	case float32:
		return float64(val), true
	case float64:
		return val, true
	case string:
		// decimal rejects NaN and Inf, which strconv would accept
		d, err := decimal.NewFromString(strings.TrimSpace(val))
		if err != nil {
			return 0, false
		}
		return d.InexactFloat64(), true
	default:
		return 0, false
	}
}

func RandomString(l int) string {
	id := uuid.NewString()
	s := strings.ReplaceAll(id, "-", "")
	for len(s) < l {
		id = uuid.NewString()
		t := strings.ReplaceAll(id, "-", "")
		s = s + t
	}
	return s[:l]
}
