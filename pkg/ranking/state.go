package ranking

import (
	"encoding/json"
	"fmt"
)

// stateVersion is bumped whenever the serialized layout changes
const stateVersion = 1

// scheduleState is the serialized form of a Scheduler
type scheduleState struct {
	Order   []int   `json:"order"`
	Matches []Match `json:"matches"`
	Cursor  int     `json:"cursor"`
	Total   int     `json:"total"`
}

// itemStats carries the fitted part of an item
type itemStats struct {
	ID          int     `json:"id"`
	Strength    float64 `json:"strength"`
	Comparisons int     `json:"comparisons"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
}

// sessionState is the serialized engine session
type sessionState struct {
	Version          int               `json:"version"`
	Items            []itemStats       `json:"items"`
	CurrentPair      *[2]int           `json:"currentPair"`
	ComparisonsDone  int               `json:"comparisonsDone"`
	TotalComparisons int               `json:"totalComparisons"`
	IsComplete       bool              `json:"isComplete"`
	Matrix           *ComparisonMatrix `json:"comparisonMatrix"`
	Schedule         scheduleState     `json:"schedule"`
}

// SerializeState encodes the session so RestoreState can resume it later.
// Titles and artwork are not included; they come back with the item list.
func (e *Engine) SerializeState() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := sessionState{
		Version:          stateVersion,
		Items:            make([]itemStats, len(e.items)),
		CurrentPair:      e.currentPair,
		ComparisonsDone:  e.done,
		TotalComparisons: e.scheduler.Total(),
		IsComplete:       e.complete,
		Matrix:           e.matrix,
		Schedule:         e.scheduler.snapshot(),
	}
	for i, item := range e.items {
		st.Items[i] = itemStats{
			ID:          item.ID,
			Strength:    item.Strength,
			Comparisons: item.Comparisons,
			Wins:        item.Wins,
			Losses:      item.Losses,
		}
	}

	data, err := json.Marshal(st)
	if err != nil {
		return nil, fmt.Errorf("failed to encode session: %w", err)
	}
	return data, nil
}

// RestoreState resumes a session serialized by SerializeState for items.
// When data does not match items the engine is reinitialized over items
// without prior ratings and an error wrapping ErrInvalidState is returned.
func (e *Engine) RestoreState(items []Item, data []byte) error {
	e.mu.Lock()

	st, err := decodeSessionState(items, data)
	if err != nil {
		seeds := make([]ItemSeed, len(items))
		for i, item := range items {
			seeds[i] = ItemSeed{ID: item.ID, Title: item.Title, ImageURL: item.ImageURL}
		}
		e.initializeLocked(seeds, false)
		e.logger.Warn("discarding saved session", "error", err)
	} else {
		e.restoreLocked(items, st)
		e.logger.Info("session restored",
			"items", len(e.items),
			"done", e.done,
			"total", e.scheduler.Total())
	}

	snapshot, subs := e.snapshotForNotify()
	e.mu.Unlock()

	notify(subs, snapshot)
	return err
}

func (e *Engine) restoreLocked(items []Item, st *sessionState) {
	e.resetLocked()

	for i, item := range items {
		stats := st.Items[i]
		item.Strength = stats.Strength
		item.Comparisons = stats.Comparisons
		item.Wins = stats.Wins
		item.Losses = stats.Losses
		item.Rating = 0
		e.index[item.ID] = i
		e.items = append(e.items, item)
	}

	e.matrix = st.Matrix.Clone()
	e.scheduler.restore(st.Schedule)
	e.done = st.ComparisonsDone
	e.complete = st.IsComplete || len(e.items) < 2 || e.done >= e.scheduler.Total()
	if st.CurrentPair != nil && !e.complete {
		p := *st.CurrentPair
		e.currentPair = &p
	} else if !e.complete {
		e.advanceLocked()
	}
	e.history.Push(e.historyEntryLocked())
}

// decodeSessionState parses data and checks it against items
func decodeSessionState(items []Item, data []byte) (*sessionState, error) {
	var st sessionState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := st.validate(items); err != nil {
		return nil, err
	}
	return &st, nil
}

func (st *sessionState) validate(items []Item) error {
	if st.Version != stateVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidState, st.Version)
	}
	if len(st.Items) != len(items) {
		return fmt.Errorf("%w: saved session has %d items, list has %d", ErrInvalidState, len(st.Items), len(items))
	}

	ids := make(map[int]bool, len(items))
	for i, stats := range st.Items {
		if stats.ID != items[i].ID {
			return fmt.Errorf("%w: item %d is %d, expected %d", ErrInvalidState, i, stats.ID, items[i].ID)
		}
		if ids[stats.ID] {
			return fmt.Errorf("%w: duplicate item %d", ErrInvalidState, stats.ID)
		}
		ids[stats.ID] = true
		if !validStrength(stats.Strength) || stats.Strength < MinStrength {
			return fmt.Errorf("%w: item %d has strength %v", ErrInvalidState, stats.ID, stats.Strength)
		}
		if stats.Wins < 0 || stats.Losses < 0 || stats.Wins+stats.Losses != stats.Comparisons {
			return fmt.Errorf("%w: item %d has inconsistent counts", ErrInvalidState, stats.ID)
		}
	}

	if st.Matrix == nil {
		return fmt.Errorf("%w: missing comparison matrix", ErrInvalidState)
	}
	for key := range st.Matrix.entries {
		if !ids[key.Winner] || !ids[key.Loser] || key.Winner == key.Loser {
			return fmt.Errorf("%w: matrix references unknown pair %s", ErrInvalidState, key)
		}
	}

	if st.ComparisonsDone < 0 {
		return fmt.Errorf("%w: negative comparison count", ErrInvalidState)
	}
	if st.CurrentPair != nil {
		if !ids[st.CurrentPair[0]] || !ids[st.CurrentPair[1]] || st.CurrentPair[0] == st.CurrentPair[1] {
			return fmt.Errorf("%w: current pair references unknown items", ErrInvalidState)
		}
	}

	return st.Schedule.validate(len(items), st.TotalComparisons)
}

func (s scheduleState) validate(n, total int) error {
	if len(s.Order) != n {
		return fmt.Errorf("%w: schedule order covers %d of %d items", ErrInvalidState, len(s.Order), n)
	}
	seen := make([]bool, n)
	for _, pos := range s.Order {
		if pos < 0 || pos >= n || seen[pos] {
			return fmt.Errorf("%w: schedule order is not a permutation", ErrInvalidState)
		}
		seen[pos] = true
	}
	for _, m := range s.Matches {
		if m.Left < 0 || m.Left >= n || m.Right < 0 || m.Right >= n || m.Left == m.Right {
			return fmt.Errorf("%w: scheduled match out of range", ErrInvalidState)
		}
	}
	if s.Cursor < 0 || s.Cursor > len(s.Matches) {
		return fmt.Errorf("%w: schedule cursor out of range", ErrInvalidState)
	}
	if s.Total != total || s.Total < 0 || s.Total > len(s.Matches) {
		return fmt.Errorf("%w: inconsistent comparison total", ErrInvalidState)
	}
	return nil
}
