package pipeline

import (
	"testing"
)

func TestCategoryNormalizer_Normalize(t *testing.T) {
	n := NewCategoryNormalizer([]string{"Food & Dining", "Transportation", "Salary"})

	tests := []struct {
		name     string
		category string
		want     string
	}{
		{name: "exact match", category: "Food & Dining", want: "Food & Dining"},
		{name: "different case", category: "food & dining", want: "Food & Dining"},
		{name: "extra spaces", category: "  Food   &  Dining ", want: "Food & Dining"},
		{name: "unknown kept", category: " Pets  Supplies ", want: "Pets Supplies"},
		{name: "empty", category: "   ", want: UncategorizedCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := n.Normalize(tt.category); got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.category, got, tt.want)
			}
		})
	}

	if !n.Known("SALARY") || n.Known("Pets") {
		t.Error("Known() mismatch")
	}
}

func TestNormalizeCategory(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"HOUSING", "HOUSING"},
		{"housing", "HOUSING"},
		{"  Housing  ", "HOUSING"},
		{"Food  &\tDining", "FOOD & DINING"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := normalizeCategory(tt.input)
			if got != tt.want {
				t.Errorf("normalizeCategory(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
