package utils

import "math"

// Clamp limits v to the closed range [lo, hi].
func Clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Round1 rounds v to one decimal place. Half values round away from zero.
func Round1(v float64) float64 {
	return math.Round(v*10) / 10
}

// SafeRatio returns num/den, or 0 when den is zero.
func SafeRatio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}
