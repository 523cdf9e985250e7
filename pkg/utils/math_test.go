package utils

import "testing"

func TestClamp(t *testing.T) {
	tests := []struct {
		v, lo, hi, want float64
	}{
		{-5, 0, 100, 0},
		{50, 0, 100, 50},
		{150, 0, 100, 100},
		{0, 0, 100, 0},
	}
	for _, tt := range tests {
		if got := Clamp(tt.v, tt.lo, tt.hi); got != tt.want {
			t.Errorf("Clamp(%v, %v, %v) = %v, want %v", tt.v, tt.lo, tt.hi, got, tt.want)
		}
	}
}

func TestRound1(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{12.34, 12.3},
		{12.36, 12.4},
		{99.99, 100},
		{0, 0},
	}
	for _, tt := range tests {
		if got := Round1(tt.in); got != tt.want {
			t.Errorf("Round1(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSafeRatio(t *testing.T) {
	if SafeRatio(1, 0) != 0 {
		t.Error("zero denominator should return 0")
	}
	if SafeRatio(1, 4) != 0.25 {
		t.Errorf("got %v", SafeRatio(1, 4))
	}
}
