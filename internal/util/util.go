// Package util provides small numeric helpers shared by the derivation packages.
package util

import (
	"math"
	"strings"
)

// Clamp limits v to [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// RoundHalfUp rounds to the nearest integer with halves going towards +Inf,
// so 49.5 becomes 50 and -0.5 becomes 0.
func RoundHalfUp(x float64) float64 {
	return math.Floor(x + 0.5)
}

// NormalizeHeading maps any angle in degrees onto [0,360).
func NormalizeHeading(deg float64) float64 {
	h := math.Mod(deg, 360)
	if h < 0 {
		h += 360
	}
	return h
}

// TrimQuotes removes leading and trailing double quotes from a string.
func TrimQuotes(s string) string {
	return strings.Trim(s, `"`)
}
