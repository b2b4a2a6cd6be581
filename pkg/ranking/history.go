package ranking

// HistoryEntry is an immutable snapshot taken after a resolved comparison
type HistoryEntry struct {
	Items           []Item            // item store copy
	CurrentPair     *[2]int           // ids of the pair on screen, nil when none
	ComparisonsDone int               // resolved comparisons at snapshot time
	SchedulerCursor int               // next planned match
	Matrix          *ComparisonMatrix // evidence at snapshot time
}

// History is a linear undo/redo log. New entries discard anything that was
// undone but not redone.
type History struct {
	entries []HistoryEntry
	pointer int // -1 when empty
}

// NewHistory creates an empty history
func NewHistory() *History {
	return &History{pointer: -1}
}

// Push truncates forward entries and appends entry as the new head
func (h *History) Push(entry HistoryEntry) {
	h.entries = append(h.entries[:h.pointer+1], entry)
	h.pointer = len(h.entries) - 1
}

// CanUndo reports whether an older snapshot exists
func (h *History) CanUndo() bool {
	return h.pointer > 0
}

// CanRedo reports whether an undone snapshot can be reapplied
func (h *History) CanRedo() bool {
	return h.pointer < len(h.entries)-1
}

// Undo steps back and returns the snapshot to restore
func (h *History) Undo() (HistoryEntry, bool) {
	if !h.CanUndo() {
		return HistoryEntry{}, false
	}
	h.pointer--
	return h.entries[h.pointer], true
}

// Redo steps forward and returns the snapshot to restore
func (h *History) Redo() (HistoryEntry, bool) {
	if !h.CanRedo() {
		return HistoryEntry{}, false
	}
	h.pointer++
	return h.entries[h.pointer], true
}

// Len returns the number of stored snapshots
func (h *History) Len() int {
	return len(h.entries)
}

// Pointer returns the index of the current snapshot
func (h *History) Pointer() int {
	return h.pointer
}

// Reset drops every snapshot
func (h *History) Reset() {
	h.entries = nil
	h.pointer = -1
}

// newHistoryEntry deep-copies engine state into a snapshot
func newHistoryEntry(items []Item, pair *[2]int, done, cursor int, matrix *ComparisonMatrix) HistoryEntry {
	entry := HistoryEntry{
		Items:           cloneItems(items),
		ComparisonsDone: done,
		SchedulerCursor: cursor,
		Matrix:          matrix.Clone(),
	}
	if pair != nil {
		p := *pair
		entry.CurrentPair = &p
	}
	return entry
}
