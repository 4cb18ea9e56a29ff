package cluster

// BestIndex returns the position of the highest quality score.
// Missing scores count as 0 and ties go to the first occurrence.
// Returns -1 for an empty input.
func BestIndex(scores []*float64) int {
	best := -1
	bestScore := 0.0
	for i, s := range scores {
		v := 0.0
		if s != nil {
			v = *s
		}
		if best == -1 || v > bestScore {
			best = i
			bestScore = v
		}
	}
	return best
}
