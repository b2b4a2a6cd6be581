package ranking

import (
	"math"
	"math/rand/v2"
	"slices"
	"sort"
)

// Match is one planned comparison. Left and Right are positions into the
// scheduler's shuffled order, not item ids.
type Match struct {
	Left  int `json:"left"`
	Right int `json:"right"`
}

// Scheduler plans which pairs are presented. It builds a balanced round-based
// plan up front and falls back to random pairs among the least compared items
// once the plan runs out.
type Scheduler struct {
	order   []int   // shuffled item indices
	matches []Match // planned matches over positions in order
	cursor  int     // next match to hand out
	total   int     // comparisons required for completion
	rng     *rand.Rand
}

// ComparisonsPerItem returns the number of scheduling rounds for n items
func ComparisonsPerItem(n int) int {
	if n <= 0 {
		return 0
	}
	return int(math.Ceil(math.Log2(float64(n+1)) * 3))
}

// TargetComparisons returns the uncapped comparison budget for n items
func TargetComparisons(n int, reduction float64) int {
	if n <= 0 {
		return 0
	}
	base := math.Ceil(float64(n) * math.Log2(float64(n+1)) * 2)
	return int(math.Ceil(base * reduction))
}

// NewScheduler creates a scheduler drawing randomness from rng
func NewScheduler(rng *rand.Rand) *Scheduler {
	return &Scheduler{rng: rng}
}

// Build plans the schedule for len(strengths) items.
// With strengthBias set, odd rounds break count ties by descending strength so
// that items of similar prior strength tend to meet. For odd n every round
// leaves one item out, so rounds continue until each item is scheduled at
// least ComparisonsPerItem(n)-1 times.
func (s *Scheduler) Build(strengths []float64, reduction float64, strengthBias bool) {
	n := len(strengths)
	s.order = s.rng.Perm(n)
	s.matches = s.matches[:0]
	s.cursor = 0
	s.total = 0
	if n < 2 {
		return
	}

	counts := make([]int, n)
	rounds := ComparisonsPerItem(n)
	for round := 0; round < rounds || slices.Min(counts) < rounds-1; round++ {
		positions := s.rng.Perm(n)
		biased := strengthBias && round%2 == 1
		sort.SliceStable(positions, func(a, b int) bool {
			pa, pb := positions[a], positions[b]
			if counts[pa] != counts[pb] {
				return counts[pa] < counts[pb]
			}
			if biased {
				return strengths[s.order[pa]] > strengths[s.order[pb]]
			}
			return false
		})
		for i := 0; i+1 < n; i += 2 {
			left, right := positions[i], positions[i+1]
			s.matches = append(s.matches, Match{Left: left, Right: right})
			counts[left]++
			counts[right]++
		}
	}

	s.rng.Shuffle(len(s.matches), func(i, j int) {
		s.matches[i], s.matches[j] = s.matches[j], s.matches[i]
	})

	s.total = min(len(s.matches), TargetComparisons(n, reduction))
}

// Total returns the number of comparisons required for completion
func (s *Scheduler) Total() int {
	return s.total
}

// Len returns the number of planned matches
func (s *Scheduler) Len() int {
	return len(s.matches)
}

// Cursor returns the index of the next planned match
func (s *Scheduler) Cursor() int {
	return s.cursor
}

// SetCursor moves the cursor, clamped to the plan
func (s *Scheduler) SetCursor(cursor int) {
	s.cursor = max(0, min(cursor, len(s.matches)))
}

// Next returns the item indices of the next pair. comparisons holds the
// resolved comparison count of every item and drives the fallback pool.
func (s *Scheduler) Next(comparisons []int) (int, int, bool) {
	n := len(comparisons)
	if n < 2 {
		return 0, 0, false
	}

	for s.cursor < len(s.matches) {
		m := s.matches[s.cursor]
		s.cursor++
		a, b := s.resolve(m)
		if a < n && b < n && a != b {
			return a, b, true
		}
	}

	a, b := s.fallback(comparisons)
	return a, b, true
}

// Peek returns up to count upcoming planned pairs without consuming them
func (s *Scheduler) Peek(count int) [][2]int {
	result := make([][2]int, 0, count)
	for i := s.cursor; i < len(s.matches) && len(result) < count; i++ {
		a, b := s.resolve(s.matches[i])
		result = append(result, [2]int{a, b})
	}
	return result
}

// resolve maps a match onto item indices
func (s *Scheduler) resolve(m Match) (int, int) {
	return s.order[m.Left], s.order[m.Right]
}

// fallback draws two distinct items from the least compared half
func (s *Scheduler) fallback(comparisons []int) (int, int) {
	indices := leastCompared(comparisons)
	pool := indices[:max(2, (len(indices)+1)/2)]

	a := pool[s.rng.IntN(len(pool))]
	b := pool[s.rng.IntN(len(pool))]
	for a == b {
		b = pool[s.rng.IntN(len(pool))]
	}
	return a, b
}

// leastCompared returns item indices ordered by ascending comparison count
func leastCompared(comparisons []int) []int {
	indices := make([]int, len(comparisons))
	for i := range indices {
		indices[i] = i
	}
	sort.SliceStable(indices, func(a, b int) bool {
		return comparisons[indices[a]] < comparisons[indices[b]]
	})
	return indices
}

// snapshot exports the plan for serialization
func (s *Scheduler) snapshot() scheduleState {
	return scheduleState{
		Order:   append([]int(nil), s.order...),
		Matches: append([]Match(nil), s.matches...),
		Cursor:  s.cursor,
		Total:   s.total,
	}
}

// restore loads a plan previously exported by snapshot
func (s *Scheduler) restore(st scheduleState) {
	s.order = append([]int(nil), st.Order...)
	s.matches = append([]Match(nil), st.Matches...)
	s.total = st.Total
	s.SetCursor(st.Cursor)
}
