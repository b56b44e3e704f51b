package util

import (
	"os"
)

// Getenv reads key from the environment, falling back to def when the
// variable is unset or does not parse as T.
func Getenv[T StringParsable](key string, def T) T {
	v, ok := os.LookupEnv(key)
	if !ok {
		return def
	}
	return ParseStringAs(v, def)
}
