package ranking

import "math"

// Accuracy weights
const (
	coverageWeight = 0.7
	balanceWeight  = 0.3
)

// ProgressPercent returns resolved comparisons as a rounded percentage of the target
func ProgressPercent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return min(100, int(math.Round(float64(done)/float64(total)*100)))
}

// AccuracyScore blends how many comparisons items received on average (coverage)
// with how evenly they were spread (balance)
func AccuracyScore(items []Item, done int) int {
	if done == 0 || len(items) == 0 {
		return 0
	}

	total := 0
	lowest, highest := items[0].Comparisons, items[0].Comparisons
	for _, item := range items {
		total += item.Comparisons
		lowest = min(lowest, item.Comparisons)
		highest = max(highest, item.Comparisons)
	}

	coverage := 0.0
	if ideal := ComparisonsPerItem(len(items)); ideal > 0 {
		average := float64(total) / float64(len(items))
		coverage = math.Min(100, average/float64(ideal)*100)
	}

	balance := 0.0
	if highest > 0 {
		balance = 100 * float64(lowest) / float64(highest)
	}

	return int(math.Round(coverageWeight*coverage + balanceWeight*balance))
}
