package util

import "testing"

func TestClamp(t *testing.T) {
	tests := []struct {
		name     string
		v        float64
		expected float64
	}{
		{"below", -3, 0},
		{"inside", 35, 35},
		{"lower edge", 0, 0},
		{"upper edge", 60, 60},
		{"above", 61, 60},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Clamp(tt.v, 0, 60)
			if result != tt.expected {
				t.Errorf("Clamp(%v) = %v, want %v", tt.v, result, tt.expected)
			}
		})
	}
}

func TestRoundHalfUp(t *testing.T) {
	tests := []struct {
		name     string
		input    float64
		expected float64
	}{
		{"half rounds up", 49.5, 50},
		{"below half", 49.49, 49},
		{"above half", 12.51, 13},
		{"integer", 100, 100},
		{"negative half", -0.5, 0},
		{"zero", 0, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := RoundHalfUp(tt.input)
			if result != tt.expected {
				t.Errorf("RoundHalfUp(%v) = %v, want %v", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNormalizeHeading(t *testing.T) {
	tests := []struct {
		input    float64
		expected float64
	}{
		{0, 0},
		{359, 359},
		{360, 0},
		{450, 90},
		{-90, 270},
	}

	for _, tt := range tests {
		result := NormalizeHeading(tt.input)
		if result != tt.expected {
			t.Errorf("NormalizeHeading(%v) = %v, want %v", tt.input, result, tt.expected)
		}
	}
}

func TestTrimQuotes(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty string", "", ""},
		{"no quotes", "D-101", "D-101"},
		{"double quoted", `"D-101"`, "D-101"},
		{"only quotes", `""`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := TrimQuotes(tt.input)
			if result != tt.expected {
				t.Errorf("TrimQuotes(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}
