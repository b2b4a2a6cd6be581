// Package ranking turns a sequence of pairwise preferences into a 1-10 rating scale.
// It schedules balanced comparisons, fits a Bradley-Terry model to the accumulated
// evidence, normalizes fitted strengths into display ratings and keeps an
// undo/redo history over the comparison sequence.
package ranking

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"
)

// Error types for validation
var (
	ErrInvalidThreshold   = errors.New("prior coverage threshold must be within [0, 1]")
	ErrInvalidReduction   = errors.New("prior reduction must be within (0, 1]")
	ErrInvalidDisplayMode = errors.New("unknown display mode")
	ErrInvalidState       = errors.New("engine state is invalid")
)

// Item is a ranked entity together with its fitted strength and comparison record
type Item struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	ImageURL    string  `json:"imageUrl,omitempty"`
	Strength    float64 `json:"strength"`
	Comparisons int     `json:"comparisons"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	Rating      float64 `json:"rating,omitempty"` // zero until normalized
}

// ItemSeed is an item as supplied by a list importer
type ItemSeed struct {
	ID          int
	Title       string
	ImageURL    string
	PriorRating *float64 // existing 1-10 score, nil when unrated
}

// Pair is the comparison currently presented
type Pair struct {
	Left  Item
	Right Item
}

// State is a copy of the externally observable engine state
type State struct {
	CurrentPair      *Pair
	ComparisonsDone  int
	TotalComparisons int
	IsComplete       bool
	CanUndo          bool
	CanRedo          bool
	Matrix           map[PairKey]MatrixEntry
}

// Config holds configuration parameters for the ranking engine
type Config struct {
	DisplayMode            DisplayMode  // how final ratings are presented
	PriorCoverageThreshold float64      // share of items with prior ratings that enables the reduced budget
	PriorReduction         float64      // comparison budget multiplier for well-seeded lists
	StrengthBias           bool         // pair similar prior strengths on alternate rounds of seeded lists
	Seed                   uint64       // random seed, 0 picks one at random
	Logger                 *slog.Logger // defaults to slog.Default()
}

// DefaultConfig returns recommended engine settings
func DefaultConfig() Config {
	return Config{
		DisplayMode:            DisplayZScore,
		PriorCoverageThreshold: 0.7,
		PriorReduction:         0.6,
		StrengthBias:           true,
	}
}

// Validate checks configuration values
func (c Config) Validate() error {
	if c.PriorCoverageThreshold < 0 || c.PriorCoverageThreshold > 1 {
		return ErrInvalidThreshold
	}
	if c.PriorReduction <= 0 || c.PriorReduction > 1 {
		return ErrInvalidReduction
	}
	return c.DisplayMode.Validate()
}

// Engine owns the item store, matrix, schedule and history of one ranking session.
// All methods are safe for concurrent use; subscribers are called after the
// engine lock has been released.
type Engine struct {
	mu     sync.Mutex
	config Config
	logger *slog.Logger
	rng    *rand.Rand

	items       []Item
	index       map[int]int // item id -> position in items
	matrix      *ComparisonMatrix
	scheduler   *Scheduler
	history     *History
	currentPair *[2]int // item ids, nil when nothing to compare
	done        int
	complete    bool

	subscribers map[int]func(State)
	nextSubID   int
}

// NewEngine creates a new ranking engine with specified configuration
func NewEngine(config Config) (*Engine, error) {
	if config.DisplayMode == "" {
		config.DisplayMode = DisplayZScore
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	seed := config.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))

	e := &Engine{
		config:      config,
		logger:      logger.With("component", "ranking"),
		rng:         rng,
		matrix:      NewComparisonMatrix(),
		scheduler:   NewScheduler(rng),
		history:     NewHistory(),
		index:       make(map[int]int),
		subscribers: make(map[int]func(State)),
		complete:    true,
	}
	return e, nil
}

// Initialize replaces the session with a fresh one over seeds. Seeds with a
// duplicate id are dropped. Prior ratings only seed strengths when
// useExistingRatings is set.
func (e *Engine) Initialize(seeds []ItemSeed, useExistingRatings bool) {
	e.mu.Lock()
	e.initializeLocked(seeds, useExistingRatings)
	st, subs := e.snapshotForNotify()
	e.mu.Unlock()

	notify(subs, st)
}

func (e *Engine) initializeLocked(seeds []ItemSeed, useExistingRatings bool) {
	e.resetLocked()

	seeded := 0
	for _, seed := range seeds {
		if _, dup := e.index[seed.ID]; dup {
			e.logger.Warn("duplicate item ignored", "id", seed.ID, "title", seed.Title)
			continue
		}
		item := Item{ID: seed.ID, Title: seed.Title, ImageURL: seed.ImageURL, Strength: 1.0}
		if useExistingRatings && seed.PriorRating != nil && *seed.PriorRating > 0 {
			item.Strength = SeedStrength(*seed.PriorRating)
			seeded++
		}
		e.index[item.ID] = len(e.items)
		e.items = append(e.items, item)
	}

	n := len(e.items)
	reduction := 1.0
	if useExistingRatings && n > 0 && float64(seeded)/float64(n) >= e.config.PriorCoverageThreshold {
		reduction = e.config.PriorReduction
	}

	strengths := make([]float64, n)
	for i, item := range e.items {
		strengths[i] = item.Strength
	}
	e.scheduler.Build(strengths, reduction, e.config.StrengthBias && seeded > 0)

	e.complete = n < 2
	if !e.complete {
		e.advanceLocked()
	}
	e.history.Push(e.historyEntryLocked())

	e.logger.Info("session initialized",
		"items", n,
		"seeded", seeded,
		"planned", e.scheduler.Len(),
		"total", e.scheduler.Total())
}

// RecordComparison resolves the current comparison in favour of winnerID.
// Unknown ids and winnerID == loserID are ignored.
func (e *Engine) RecordComparison(winnerID, loserID int) {
	e.mu.Lock()
	wi, okW := e.index[winnerID]
	li, okL := e.index[loserID]
	if !okW || !okL || wi == li {
		e.mu.Unlock()
		e.logger.Debug("comparison ignored", "winner", winnerID, "loser", loserID)
		return
	}

	e.matrix.Record(winnerID, loserID)
	e.items[wi].Comparisons++
	e.items[wi].Wins++
	e.items[li].Comparisons++
	e.items[li].Losses++
	e.done++

	if e.done%IncrementalInterval == 0 {
		e.solveLocked(Incremental)
	}

	if e.done >= e.scheduler.Total() {
		if !e.complete {
			e.solveLocked(Final)
		}
		e.complete = true
		e.currentPair = nil
	} else {
		e.advanceLocked()
	}
	e.history.Push(e.historyEntryLocked())

	e.logger.Debug("comparison recorded",
		"winner", winnerID,
		"loser", loserID,
		"done", e.done,
		"total", e.scheduler.Total())

	st, subs := e.snapshotForNotify()
	e.mu.Unlock()

	notify(subs, st)
}

// Skip replaces the current pair without recording anything
func (e *Engine) Skip() {
	e.mu.Lock()
	if e.complete || e.currentPair == nil {
		e.mu.Unlock()
		return
	}
	skipped := *e.currentPair
	e.advanceLocked()
	e.logger.Debug("pair skipped", "left", skipped[0], "right", skipped[1])

	st, subs := e.snapshotForNotify()
	e.mu.Unlock()

	notify(subs, st)
}

// Undo reverts the most recent resolved comparison
func (e *Engine) Undo() {
	e.mu.Lock()
	entry, ok := e.history.Undo()
	if !ok {
		e.mu.Unlock()
		return
	}
	e.applyLocked(entry)
	e.complete = false
	if e.currentPair == nil && len(e.items) >= 2 {
		e.advanceLocked()
	}
	e.logger.Debug("undo", "done", e.done)

	st, subs := e.snapshotForNotify()
	e.mu.Unlock()

	notify(subs, st)
}

// Redo reapplies the most recently undone comparison
func (e *Engine) Redo() {
	e.mu.Lock()
	entry, ok := e.history.Redo()
	if !ok {
		e.mu.Unlock()
		return
	}
	e.applyLocked(entry)
	e.complete = len(e.items) < 2 || e.done >= e.scheduler.Total()
	if e.complete {
		e.currentPair = nil
	}
	e.logger.Debug("redo", "done", e.done)

	st, subs := e.snapshotForNotify()
	e.mu.Unlock()

	notify(subs, st)
}

// CanUndo reports whether Undo would change anything
func (e *Engine) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

// CanRedo reports whether Redo would change anything
func (e *Engine) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanRedo()
}

// CurrentPair returns the pair awaiting a decision
func (e *Engine) CurrentPair() (Pair, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pair := e.pairLocked()
	if pair == nil {
		return Pair{}, false
	}
	return *pair, true
}

// Progress returns completion as a percentage of the comparison budget
func (e *Engine) Progress() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return ProgressPercent(e.done, e.scheduler.Total())
}

// Accuracy returns the 0-100 confidence score of the current ranking
func (e *Engine) Accuracy() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return AccuracyScore(e.items, e.done)
}

// IsComplete reports whether the comparison budget has been spent
func (e *Engine) IsComplete() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.complete
}

// CalculateFinalRatings fits strengths at final precision and returns every
// item with its display rating, best first. The session itself is not changed,
// so repeated calls return identical results.
func (e *Engine) CalculateFinalRatings() []Item {
	e.mu.Lock()
	defer e.mu.Unlock()

	items := cloneItems(e.items)
	ids := make([]int, len(items))
	strengths := make([]float64, len(items))
	for i, item := range items {
		ids[i] = item.ID
		strengths[i] = item.Strength
	}

	result := SolveStrengths(ids, strengths, e.matrix, Final)
	for i := range items {
		items[i].Strength = strengths[i]
	}
	e.logger.Debug("final ratings calculated",
		"iterations", result.Iterations,
		"converged", result.Converged,
		"max_change", result.MaxChange)

	return NormalizeRatings(items, e.config.DisplayMode)
}

// UpcomingCandidates returns up to count items likely to be shown next,
// starting with the current pair. Intended for prefetching artwork.
func (e *Engine) UpcomingCandidates(count int) []Item {
	e.mu.Lock()
	defer e.mu.Unlock()

	if count <= 0 || len(e.items) == 0 {
		return nil
	}

	seen := make(map[int]bool, count)
	result := make([]Item, 0, count)
	add := func(pos int) {
		if len(result) < count && !seen[pos] {
			seen[pos] = true
			result = append(result, e.items[pos])
		}
	}

	if e.currentPair != nil {
		add(e.index[e.currentPair[0]])
		add(e.index[e.currentPair[1]])
	}
	for _, pair := range e.scheduler.Peek(count) {
		add(pair[0])
		add(pair[1])
	}
	for _, pos := range leastCompared(e.comparisonCounts()) {
		add(pos)
	}
	return result
}

// Items returns a copy of the item store in initialization order
func (e *Engine) Items() []Item {
	e.mu.Lock()
	defer e.mu.Unlock()
	return cloneItems(e.items)
}

// Item returns a single item by id
func (e *Engine) Item(id int) (Item, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	pos, ok := e.index[id]
	if !ok {
		return Item{}, false
	}
	return e.items[pos], true
}

// State returns a copy of the observable session state
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.stateLocked()
}

// DisplayMode returns the active display mode
func (e *Engine) DisplayMode() DisplayMode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.config.DisplayMode
}

// SetDisplayMode switches how final ratings are presented
func (e *Engine) SetDisplayMode(mode DisplayMode) error {
	if err := mode.Validate(); err != nil {
		return err
	}
	e.mu.Lock()
	e.config.DisplayMode = mode
	e.mu.Unlock()
	return nil
}

// Reset discards the session
func (e *Engine) Reset() {
	e.mu.Lock()
	e.resetLocked()
	st, subs := e.snapshotForNotify()
	e.mu.Unlock()

	notify(subs, st)
}

// Subscribe registers fn to receive a state copy after every change and
// returns a function that removes the subscription
func (e *Engine) Subscribe(fn func(State)) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextSubID
	e.nextSubID++
	e.subscribers[id] = fn

	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		delete(e.subscribers, id)
	}
}

func (e *Engine) resetLocked() {
	e.items = nil
	e.index = make(map[int]int)
	e.matrix = NewComparisonMatrix()
	e.scheduler.Build(nil, 1, false)
	e.history.Reset()
	e.currentPair = nil
	e.done = 0
	e.complete = true
}

// advanceLocked moves the current pair to the next scheduled one
func (e *Engine) advanceLocked() {
	a, b, ok := e.scheduler.Next(e.comparisonCounts())
	if !ok {
		e.currentPair = nil
		return
	}
	e.currentPair = &[2]int{e.items[a].ID, e.items[b].ID}
}

// solveLocked refits live strengths
func (e *Engine) solveLocked(mode SolveMode) {
	ids := make([]int, len(e.items))
	strengths := make([]float64, len(e.items))
	for i, item := range e.items {
		ids[i] = item.ID
		strengths[i] = item.Strength
	}

	result := SolveStrengths(ids, strengths, e.matrix, mode)
	for i := range e.items {
		e.items[i].Strength = strengths[i]
	}

	e.logger.Debug("strengths refitted",
		"mode", mode,
		"iterations", result.Iterations,
		"converged", result.Converged)
}

func (e *Engine) applyLocked(entry HistoryEntry) {
	e.items = cloneItems(entry.Items)
	e.matrix = entry.Matrix.Clone()
	e.done = entry.ComparisonsDone
	e.scheduler.SetCursor(entry.SchedulerCursor)
	e.currentPair = nil
	if entry.CurrentPair != nil {
		p := *entry.CurrentPair
		e.currentPair = &p
	}
}

func (e *Engine) historyEntryLocked() HistoryEntry {
	return newHistoryEntry(e.items, e.currentPair, e.done, e.scheduler.Cursor(), e.matrix)
}

func (e *Engine) comparisonCounts() []int {
	counts := make([]int, len(e.items))
	for i, item := range e.items {
		counts[i] = item.Comparisons
	}
	return counts
}

func (e *Engine) pairLocked() *Pair {
	if e.currentPair == nil {
		return nil
	}
	return &Pair{
		Left:  e.items[e.index[e.currentPair[0]]],
		Right: e.items[e.index[e.currentPair[1]]],
	}
}

func (e *Engine) stateLocked() State {
	return State{
		CurrentPair:      e.pairLocked(),
		ComparisonsDone:  e.done,
		TotalComparisons: e.scheduler.Total(),
		IsComplete:       e.complete,
		CanUndo:          e.history.CanUndo(),
		CanRedo:          e.history.CanRedo(),
		Matrix:           e.matrix.Entries(),
	}
}

func (e *Engine) snapshotForNotify() (State, []func(State)) {
	if len(e.subscribers) == 0 {
		return State{}, nil
	}
	ids := make([]int, 0, len(e.subscribers))
	for id := range e.subscribers {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	subs := make([]func(State), 0, len(ids))
	for _, id := range ids {
		subs = append(subs, e.subscribers[id])
	}
	return e.stateLocked(), subs
}

func notify(subs []func(State), st State) {
	for _, fn := range subs {
		fn(st)
	}
}

func cloneItems(items []Item) []Item {
	if items == nil {
		return nil
	}
	clone := make([]Item, len(items))
	copy(clone, items)
	return clone
}
