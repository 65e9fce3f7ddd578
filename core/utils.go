package core

import (
	"strings"
	"time"
)

// CleanString trims all leading and trailing whitespace in `s` and optionally lowers it.
func CleanString(s string, lower ...bool) string {
	s = strings.TrimSpace(s)
	if len(lower) > 0 && lower[0] {
		return strings.ToLower(s)
	}
	return s
}

// ToMillis converts t to unix milliseconds, the storage format of all timestamps.
func ToMillis(t time.Time) int64 {
	return t.UTC().UnixNano() / int64(time.Millisecond)
}

// FromMillis is the inverse of ToMillis.
func FromMillis(ms int64) time.Time {
	return time.Unix(0, ms*int64(time.Millisecond)).UTC()
}

// Now returns the current UTC time truncated to the storage precision.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}
