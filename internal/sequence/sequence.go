package sequence

import (
	"errors"
	"fmt"
	"math/rand/v2"
)

var ErrNotEnoughPoses = errors.New("not enough poses for a distinct sequence")

// Generate picks k distinct indices in [0, n), uniformly and without replacement.
// The order is meaningful: the first index is the first slot of the round.
func Generate(rng *rand.Rand, k, n int) ([]int, error) {
	if k < 0 || k > n {
		return nil, fmt.Errorf("want %d of %d: %w", k, n, ErrNotEnoughPoses)
	}

	// partial Fisher-Yates over [0, n)
	pool := make([]int, n)
	for i := range pool {
		pool[i] = i
	}
	for i := 0; i < k; i++ {
		j := i + rng.IntN(n-i)
		pool[i], pool[j] = pool[j], pool[i]
	}
	return pool[:k:k], nil
}
