package ranking

import "gonum.org/v1/gonum/mathext"

// Beta quantile search limits used by the distribution display mode
const (
	quantileTolerance     = 1e-4
	quantileMaxIterations = 50
)

// BetaQuantile inverts the Beta(a, b) CDF by bisection over the regularized
// incomplete beta function
func BetaQuantile(a, b, p float64) float64 {
	switch {
	case p <= 0:
		return 0
	case p >= 1:
		return 1
	}

	lo, hi := 0.0, 1.0
	mid := 0.5
	for i := 0; i < quantileMaxIterations; i++ {
		mid = (lo + hi) / 2
		if hi-lo < quantileTolerance {
			break
		}
		if mathext.RegIncBeta(a, b, mid) < p {
			lo = mid
		} else {
			hi = mid
		}
	}
	return mid
}
