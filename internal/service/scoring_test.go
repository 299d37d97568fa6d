package service

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeScore(t *testing.T) {
	tests := []struct {
		name          string
		correct       int
		questionCount int
		totalValue    float64
		want          float64
	}{
		{"partial", 3, 5, 10, 6},
		{"all correct", 5, 5, 10, 10},
		{"none correct", 0, 5, 10, 0},
		{"rounds to two decimals", 1, 3, 10, 3.33},
		{"fractional value", 7, 10, 2.5, 1.75},
		{"zero count treated as one", 0, 0, 10, 0},
		{"negative count treated as one", 1, -4, 10, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeScore(tt.correct, tt.questionCount, tt.totalValue)
			require.Equal(t, tt.correct, got.Correct)
			require.InDelta(t, tt.want, got.Grade, 1e-9)
		})
	}
}
