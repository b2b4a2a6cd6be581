package ranking

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// PairKey identifies an ordered (winner, loser) pair of item ids
type PairKey struct {
	Winner int
	Loser  int
}

// String renders the key as "winner-loser"
func (k PairKey) String() string {
	return strconv.Itoa(k.Winner) + "-" + strconv.Itoa(k.Loser)
}

// parsePairKey is the inverse of PairKey.String
func parsePairKey(s string) (PairKey, error) {
	// ids may be negative, so split on the separator that follows the first digit
	idx := strings.Index(s[min(1, len(s)):], "-")
	if idx < 0 {
		return PairKey{}, fmt.Errorf("%w: malformed pair key %q", ErrInvalidState, s)
	}
	idx += min(1, len(s))
	winner, err := strconv.Atoi(s[:idx])
	if err != nil {
		return PairKey{}, fmt.Errorf("%w: malformed pair key %q", ErrInvalidState, s)
	}
	loser, err := strconv.Atoi(s[idx+1:])
	if err != nil {
		return PairKey{}, fmt.Errorf("%w: malformed pair key %q", ErrInvalidState, s)
	}
	return PairKey{Winner: winner, Loser: loser}, nil
}

// MatrixEntry counts how often Winner beat Loser and how often the two met at all
type MatrixEntry struct {
	Wins  int `json:"wins"`
	Total int `json:"total"`
}

// ComparisonMatrix accumulates directional win counts for every pair actually compared.
// Both directions of a pair are stored and always share the same Total.
type ComparisonMatrix struct {
	entries map[PairKey]MatrixEntry
}

// NewComparisonMatrix creates an empty matrix
func NewComparisonMatrix() *ComparisonMatrix {
	return &ComparisonMatrix{entries: make(map[PairKey]MatrixEntry)}
}

// Record adds one win for winner over loser
func (m *ComparisonMatrix) Record(winner, loser int) {
	forward := m.entries[PairKey{Winner: winner, Loser: loser}]
	forward.Wins++
	forward.Total++
	m.entries[PairKey{Winner: winner, Loser: loser}] = forward

	backward := m.entries[PairKey{Winner: loser, Loser: winner}]
	backward.Total++
	m.entries[PairKey{Winner: loser, Loser: winner}] = backward
}

// Lookup returns the entry for winner over loser, zero if the pair never met
func (m *ComparisonMatrix) Lookup(winner, loser int) MatrixEntry {
	return m.entries[PairKey{Winner: winner, Loser: loser}]
}

// Combined returns how many times i and j were compared in either direction
func (m *ComparisonMatrix) Combined(i, j int) int {
	return m.entries[PairKey{Winner: i, Loser: j}].Total
}

// Len returns the number of directional entries
func (m *ComparisonMatrix) Len() int {
	return len(m.entries)
}

// Clone returns an independent copy
func (m *ComparisonMatrix) Clone() *ComparisonMatrix {
	clone := make(map[PairKey]MatrixEntry, len(m.entries))
	for k, v := range m.entries {
		clone[k] = v
	}
	return &ComparisonMatrix{entries: clone}
}

// Entries returns a copy of the underlying map
func (m *ComparisonMatrix) Entries() map[PairKey]MatrixEntry {
	return m.Clone().entries
}

// opponents lists, for each item id, the ids it has been compared with.
// Results are sorted so that solver iteration order is stable.
func (m *ComparisonMatrix) opponents() map[int][]int {
	result := make(map[int][]int)
	for k := range m.entries {
		result[k.Winner] = append(result[k.Winner], k.Loser)
	}
	for id := range result {
		sort.Ints(result[id])
	}
	return result
}

// MarshalJSON encodes the matrix as {"winner-loser": {"wins": w, "total": t}}
func (m *ComparisonMatrix) MarshalJSON() ([]byte, error) {
	out := make(map[string]MatrixEntry, len(m.entries))
	for k, v := range m.entries {
		out[k.String()] = v
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes the format written by MarshalJSON
func (m *ComparisonMatrix) UnmarshalJSON(data []byte) error {
	var raw map[string]MatrixEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	entries := make(map[PairKey]MatrixEntry, len(raw))
	for s, v := range raw {
		key, err := parsePairKey(s)
		if err != nil {
			return err
		}
		if v.Wins < 0 || v.Total < v.Wins {
			return fmt.Errorf("%w: inconsistent counts for %q", ErrInvalidState, s)
		}
		entries[key] = v
	}
	for key, forward := range entries {
		backward, ok := entries[PairKey{Winner: key.Loser, Loser: key.Winner}]
		if !ok || forward.Total != backward.Total || forward.Wins+backward.Wins != forward.Total {
			return fmt.Errorf("%w: directions of %s disagree", ErrInvalidState, key)
		}
	}
	m.entries = entries
	return nil
}
