package ranking

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// Rating scale
const (
	MinDisplayRating = 1.0
	MaxDisplayRating = 10.0
	CenterRating     = 7.0 // rating of an item with average log-strength
	RatingSpread     = 1.5 // rating points per standard deviation

	degenerateSpread = 10 * FinalTolerance // log-strength spread below solver precision counts as zero

	distributionAlpha = 7.0
	distributionBeta  = 3.0
)

// DisplayMode selects how fitted strengths become display ratings
type DisplayMode string

// Supported display modes
const (
	DisplayZScore       DisplayMode = "zscore"       // log-strength z-score mapping
	DisplayDistribution DisplayMode = "distribution" // rank order mapped onto Beta(7,3) quantiles
)

// Validate checks the mode is known
func (m DisplayMode) Validate() error {
	switch m {
	case DisplayZScore, DisplayDistribution:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidDisplayMode, m)
}

// NormalizeRatings assigns a display rating to every item and returns the items
// sorted by descending rating. The input slice is not modified.
func NormalizeRatings(items []Item, mode DisplayMode) []Item {
	rated := make([]Item, len(items))
	copy(rated, items)

	logs := make([]float64, 0, len(rated))
	for _, item := range rated {
		if validStrength(item.Strength) {
			logs = append(logs, math.Log(item.Strength))
		}
	}
	mean, std := meanStd(logs)

	for i := range rated {
		z := 0.0
		if std > degenerateSpread && validStrength(rated[i].Strength) {
			z = (math.Log(rated[i].Strength) - mean) / std
		}
		rated[i].Rating = roundTenth(clamp(CenterRating+z*RatingSpread, MinDisplayRating, MaxDisplayRating))
	}

	sortByRating(rated)

	if mode == DisplayDistribution {
		applyDistribution(rated)
	}
	return rated
}

// applyDistribution re-skins already sorted ratings onto Beta(7,3) quantiles.
// Tied ratings share a quantile; a fully tied list is left unchanged.
func applyDistribution(sorted []Item) {
	n := len(sorted)
	if n < 2 || sorted[0].Rating == sorted[n-1].Rating {
		return
	}

	values := make([]float64, n)
	for start := 0; start < n; {
		end := start
		for end+1 < n && sorted[end+1].Rating == sorted[start].Rating {
			end++
		}
		// midpoint rank of the tie group, 0 = best
		rank := float64(start+end) / 2
		p := 1 - (rank+0.5)/float64(n)
		q := BetaQuantile(distributionAlpha, distributionBeta, p) * MaxDisplayRating
		for i := start; i <= end; i++ {
			values[i] = q
		}
		start = end + 1
	}

	top := values[0]
	scale := 1.0
	if top > 0 && top < MaxDisplayRating {
		scale = MaxDisplayRating / top
	}
	for i := range sorted {
		sorted[i].Rating = roundTenth(clamp(values[i]*scale, MinDisplayRating, MaxDisplayRating))
	}
}

// sortByRating orders items by descending rating, then strength, then id
func sortByRating(items []Item) {
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].Rating != items[b].Rating {
			return items[a].Rating > items[b].Rating
		}
		if items[a].Strength != items[b].Strength {
			return items[a].Strength > items[b].Strength
		}
		return items[a].ID < items[b].ID
	})
}

// meanStd returns the population mean and standard deviation
func meanStd(values []float64) (float64, float64) {
	if len(values) == 0 {
		return 0, 0
	}
	return stat.PopMeanStdDev(values, nil)
}

func validStrength(s float64) bool {
	return s > 0 && !math.IsNaN(s) && !math.IsInf(s, 0)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}
