package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	if Truncate("hello", 10) != "hello" {
		t.Error("short string unchanged")
	}
	if Truncate("hello world", 5) != "hello..." {
		t.Errorf("got %s", Truncate("hello world", 5))
	}
	if got := Truncate("一蘭 渋谷店", 2); got != "一蘭..." {
		t.Errorf("multibyte: got %s", got)
	}
	if Truncate("x", 0) != "x" {
		t.Error("maxLen 0 returns as-is")
	}
}

func TestNormalizeTag(t *testing.T) {
	tests := map[string]string{
		"Gluten-Free":   "gluten_free",
		" gluten free ": "gluten_free",
		"VEGAN":         "vegan",
		"":              "",
	}
	for in, want := range tests {
		if got := NormalizeTag(in); got != want {
			t.Errorf("NormalizeTag(%q) = %q, want %q", in, got, want)
		}
	}
}
