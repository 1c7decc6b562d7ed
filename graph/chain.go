package graph

import "fmt"

// Edge is one directed reference between two resource keys.
type Edge struct {
	From string
	To   string
}

// ValidateChain checks a resolution chain for repeated nodes and for
// exceeding the detector's depth limit. The returned error names the
// offending node or the limit.
func (d *Detector) ValidateChain(chain []string) error {
	if len(chain) > d.maxDepth {
		return fmt.Errorf("chain length %d exceeds depth limit %d", len(chain), d.maxDepth)
	}
	seen := make(map[string]int, len(chain))
	for i, node := range chain {
		if first, ok := seen[node]; ok {
			return fmt.Errorf("chain revisits %q (positions %d and %d)", node, first, i)
		}
		seen[node] = i
	}
	return nil
}

// WouldCreateCycle reports whether adding the edge from→to to the
// existing edges closes a cycle, i.e. whether from is already reachable
// from to.
func WouldCreateCycle(edges []Edge, from, to string) bool {
	if from == to {
		return true
	}

	adjacency := make(map[string][]string, len(edges))
	for _, e := range edges {
		adjacency[e.From] = append(adjacency[e.From], e.To)
	}

	visited := map[string]bool{to: true}
	stack := []string{to}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if node == from {
			return true
		}
		for _, next := range adjacency[node] {
			if !visited[next] {
				visited[next] = true
				stack = append(stack, next)
			}
		}
	}
	return false
}

// ChainStats summarizes a set of resolution chains.
type ChainStats struct {
	Count       int
	MinLength   int
	MaxLength   int
	AvgLength   float64
	CyclicCount int
}

// Stats computes aggregate statistics for the given chains. A chain is
// cyclic when it revisits a node.
func Stats(chains [][]string) ChainStats {
	stats := ChainStats{Count: len(chains)}
	if len(chains) == 0 {
		return stats
	}

	total := 0
	stats.MinLength = len(chains[0])
	for _, chain := range chains {
		n := len(chain)
		total += n
		if n < stats.MinLength {
			stats.MinLength = n
		}
		if n > stats.MaxLength {
			stats.MaxLength = n
		}
		if revisits(chain) {
			stats.CyclicCount++
		}
	}
	stats.AvgLength = float64(total) / float64(len(chains))
	return stats
}

func revisits(chain []string) bool {
	seen := make(map[string]bool, len(chain))
	for _, node := range chain {
		if seen[node] {
			return true
		}
		seen[node] = true
	}
	return false
}
