package cluster

// Noise is the label assigned to points that belong to no cluster.
const Noise = -1

const unvisited = -2

// DBSCAN labels points given their eps-neighborhoods.
//
// neighbors[i] lists every point within eps of point i, including i itself.
// A point is a core point when len(neighbors[i]) >= minSamples. Clusters are
// grown from core points in input order and each cluster is fully expanded
// before the next one starts, so a border point reachable from several
// clusters always ends up in the lowest-labeled one. For a fixed input order
// the labels are therefore reproducible run to run.
//
// Returns one label per point: dense cluster labels starting at 0, or Noise.
func DBSCAN(neighbors [][]int, minSamples int) []int {
	n := len(neighbors)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = unvisited
	}

	isCore := make([]bool, n)
	for i, nb := range neighbors {
		isCore[i] = len(nb) >= minSamples
	}

	next := 0
	stack := make([]int, 0, n)
	for i := range n {
		if labels[i] != unvisited || !isCore[i] {
			continue
		}

		label := next
		next++
		labels[i] = label
		stack = append(stack[:0], i)

		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			for _, q := range neighbors[p] {
				if labels[q] != unvisited {
					continue
				}
				labels[q] = label
				if isCore[q] {
					stack = append(stack, q)
				}
			}
		}
	}

	for i := range labels {
		if labels[i] == unvisited {
			labels[i] = Noise
		}
	}
	return labels
}
