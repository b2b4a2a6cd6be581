package ranking

import "math"

// Solver fitting limits
const (
	MinStrength = 0.01 // floor applied to every fitted strength

	IncrementalInterval   = 5    // resolved comparisons between incremental solves
	IncrementalIterations = 15   // iteration cap for incremental solves
	IncrementalTolerance  = 1e-3 // convergence threshold for incremental solves
	FinalIterations       = 50   // iteration cap for final solves
	FinalTolerance        = 1e-5 // convergence threshold for final solves
)

// SolveMode selects the iteration budget of a Bradley-Terry fit
type SolveMode int

// Supported solve modes
const (
	Incremental SolveMode = iota
	Final
)

func (m SolveMode) String() string {
	if m == Final {
		return "final"
	}
	return "incremental"
}

// limits returns the iteration cap and tolerance for a mode
func (m SolveMode) limits() (int, float64) {
	if m == Final {
		return FinalIterations, FinalTolerance
	}
	return IncrementalIterations, IncrementalTolerance
}

// SolveResult describes one solver run
type SolveResult struct {
	Iterations int     // iterations performed
	MaxChange  float64 // largest per-item change in the last iteration
	Converged  bool    // MaxChange fell below the mode tolerance
}

// SolveStrengths fits Bradley-Terry strengths with the minorization-maximization
// update s_i = W_i / sum_j n_ij/(s_i+s_j). strengths is indexed like ids and is
// updated in place. Items without comparisons keep their strength.
func SolveStrengths(ids []int, strengths []float64, matrix *ComparisonMatrix, mode SolveMode) SolveResult {
	maxIterations, tolerance := mode.limits()

	index := make(map[int]int, len(ids))
	for i, id := range ids {
		index[id] = i
	}

	// Wins and opponent lists do not change during a solve
	opponents := matrix.opponents()
	wins := make([]float64, len(ids))
	for i, id := range ids {
		for _, opp := range opponents[id] {
			wins[i] += float64(matrix.Lookup(id, opp).Wins)
		}
	}

	result := SolveResult{}
	next := make([]float64, len(strengths))
	for result.Iterations < maxIterations {
		result.Iterations++
		result.MaxChange = 0
		copy(next, strengths)

		for i, id := range ids {
			opps := opponents[id]
			if len(opps) == 0 {
				continue
			}

			denominator := 0.0
			for _, opp := range opps {
				j, ok := index[opp]
				if !ok {
					continue
				}
				n := float64(matrix.Combined(id, opp))
				denominator += n / (strengths[i] + strengths[j])
			}
			if denominator == 0 || math.IsNaN(denominator) || math.IsInf(denominator, 0) {
				continue
			}

			updated := math.Max(MinStrength, wins[i]/denominator)
			next[i] = updated
			result.MaxChange = math.Max(result.MaxChange, math.Abs(updated-strengths[i]))
		}

		copy(strengths, next)
		if result.MaxChange < tolerance {
			result.Converged = true
			break
		}
	}

	return result
}

// SeedStrength maps a prior 1-10 rating onto the strength scale
func SeedStrength(prior float64) float64 {
	return math.Max(MinStrength, math.Exp((prior-7.0)/2.0))
}
