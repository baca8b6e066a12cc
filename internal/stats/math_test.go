package stats

import (
	"testing"
)

func TestPercentOf(t *testing.T) {
	tests := []struct {
		name        string
		part, total float64
		expected    int
	}{
		{"ZeroTotal", 3, 0, 0},
		{"Whole", 13, 13, 100},
		{"RoundsDown", 3, 13, 23},
		{"RoundsHalfUp", 1, 8, 13},
		{"Nothing", 0, 5, 0},
		{"Third", 1, 3, 33},
		{"TwoThirds", 2, 3, 67},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PercentOf(tt.part, tt.total); got != tt.expected {
				t.Errorf("PercentOf(%v, %v) = %v, want %v", tt.part, tt.total, got, tt.expected)
			}
		})
	}
}

func TestCalculateMedianContinuous(t *testing.T) {
	tests := []struct {
		name     string
		values   []float64
		expected float64
	}{
		{"Empty", []float64{}, 0},
		{"SingleItem", []float64{5.5}, 5.5},
		{"OddCount", []float64{1.1, 3.3, 2.2, 4.4, 5.5}, 3.3},
		{"EvenCount", []float64{1.1, 2.2, 3.3, 4.4}, 2.75},
		{"Unsorted", []float64{10.5, 2.5, 8.5, 4.5, 6.5}, 6.5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CalculateMedianContinuous(tt.values); got != tt.expected {
				t.Errorf("CalculateMedianContinuous() = %v, want %v", got, tt.expected)
			}
		})
	}
}
