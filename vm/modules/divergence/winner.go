package divergence

// SelectWinner returns the index of the guess closest to two thirds of
// the mean, and that target. Ties go to the lower guess, then to the
// earlier submission. guesses must not be empty.
func SelectWinner(guesses []uint64) (idx int, target uint64) {
	var sum uint64
	for _, g := range guesses {
		sum += g
	}
	// Guesses are bounded by GuessUpperBound, so 2*sum cannot overflow.
	target = (2 * sum) / (3 * uint64(len(guesses)))

	best := ^uint64(0)
	for i, g := range guesses {
		d := distance(g, target)
		if d < best || (d == best && g < guesses[idx]) {
			best = d
			idx = i
		}
	}
	return idx, target
}

func distance(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}
