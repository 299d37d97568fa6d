package service

import "math"

// Score is the outcome of grading one attempt.
type Score struct {
	Correct int
	Grade   float64
}

// ComputeScore grades correct answers against the simulado's configured
// question count and total value. A zero or negative count is treated as 1.
// Grades are rounded half away from zero to two decimals.
func ComputeScore(correct, questionCount int, totalValue float64) Score {
	if questionCount < 1 {
		questionCount = 1
	}
	raw := float64(correct) / float64(questionCount) * totalValue
	return Score{
		Correct: correct,
		Grade:   math.Round(raw*100) / 100,
	}
}
