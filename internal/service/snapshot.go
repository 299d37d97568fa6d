package service

import "math/rand"

// Shuffler draws the next index for a Fisher-Yates swap; rand.Intn fits.
type Shuffler func(n int) int

// BuildFrozenOrder returns a uniformly random permutation of the linked
// question ids. The input slice is left untouched.
func BuildFrozenOrder(linked []int64, intn Shuffler) ([]int64, error) {
	if len(linked) == 0 {
		return nil, ErrNoQuestionsConfigured
	}
	if intn == nil {
		intn = rand.Intn
	}

	order := make([]int64, len(linked))
	copy(order, linked)
	for i := len(order) - 1; i > 0; i-- {
		j := intn(i + 1)
		order[i], order[j] = order[j], order[i]
	}
	return order, nil
}
