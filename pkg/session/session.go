// Package session ties a ranking engine to its collaborators: progress storage,
// the audit journal, cover art lookups and exports. Both the terminal UI and
// the batch command loop drive a ranking through a Session.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/pashagolub/listrank/pkg/data"
	"github.com/pashagolub/listrank/pkg/images"
	"github.com/pashagolub/listrank/pkg/journal"
	"github.com/pashagolub/listrank/pkg/ranking"
)

// Error types for session management
var (
	ErrNoEngine     = errors.New("session requires an engine")
	ErrNoList       = errors.New("session requires a list")
	ErrNoStorage    = errors.New("session has no storage configured")
	ErrNoComparison = errors.New("no active comparison")
	ErrUnknownItem  = errors.New("item is not part of the current comparison")
)

// Mode tells whether a ranking starts fresh or continues saved progress
type Mode int

const (
	// StartMode indicates a new ranking should be created
	StartMode Mode = iota
	// ResumeMode indicates saved progress should be restored
	ResumeMode
)

// String returns a string representation of the Mode
func (m Mode) String() string {
	switch m {
	case StartMode:
		return "Start"
	case ResumeMode:
		return "Resume"
	default:
		return "Unknown"
	}
}

// DetectMode reports ResumeMode when storage holds unexpired progress for key
func DetectMode(ctx context.Context, storage data.Storage, key string) (Mode, error) {
	if storage == nil {
		return StartMode, nil
	}
	_, err := storage.Load(ctx, key)
	switch {
	case err == nil:
		return ResumeMode, nil
	case errors.Is(err, data.ErrProgressNotFound), errors.Is(err, data.ErrProgressExpired):
		return StartMode, nil
	default:
		return StartMode, err
	}
}

// Options configures a Session
type Options struct {
	Key      string
	Mode     Mode
	List     *data.List
	Engine   *ranking.Engine
	Storage  data.Storage        // optional
	Journal  *journal.AuditTrail // optional
	Images   *images.Service     // optional
	AutoSave bool                // save after every state change
	Prefetch int                 // upcoming items whose images jump the queue
	Logger   *slog.Logger
}

// Session is one ranking run over a list
type Session struct {
	key      string
	list     *data.List
	engine   *ranking.Engine
	storage  data.Storage
	journal  *journal.AuditTrail
	images   *images.Service
	exporter *journal.Exporter
	autoSave bool
	prefetch int
	logger   *slog.Logger
	now      func() time.Time

	mu          sync.RWMutex
	imageURLs   map[int]string
	startedAt   time.Time
	updatedAt   time.Time
	pairShownAt time.Time
	completed   bool
	listeners   []func(ranking.State)
	imageSubs   []func(id int, url string)
	unsubscribe func()
}

// New creates a Session around an engine that is already initialized or restored
func New(opts Options) (*Session, error) {
	if opts.Engine == nil {
		return nil, ErrNoEngine
	}
	if opts.List == nil {
		return nil, ErrNoList
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Session{
		key:       opts.Key,
		list:      opts.List,
		engine:    opts.Engine,
		storage:   opts.Storage,
		journal:   opts.Journal,
		images:    opts.Images,
		exporter:  journal.NewExporter(),
		autoSave:  opts.AutoSave,
		prefetch:  opts.Prefetch,
		logger:    logger.With("session", opts.Key),
		now:       time.Now,
		imageURLs: make(map[int]string),
	}
	s.startedAt = s.now()
	s.updatedAt = s.startedAt
	s.pairShownAt = s.startedAt

	for _, item := range opts.Engine.Items() {
		if item.ImageURL != "" {
			s.imageURLs[item.ID] = item.ImageURL
		}
	}
	s.completed = opts.Engine.IsComplete()
	s.unsubscribe = opts.Engine.Subscribe(s.onEngineChange)
	if s.images != nil {
		s.images.SetImageHandler(func(_ images.MediaType, id int, url string) {
			s.SetImageURL(id, url)
		})
	}

	if s.journal != nil {
		event := journal.EventSessionCreated
		if opts.Mode == ResumeMode {
			event = journal.EventSessionResumed
		}
		state := opts.Engine.State()
		if err := s.journal.LogSessionEvent(event, map[string]any{
			"key":               s.key,
			"kind":              string(s.list.Kind),
			"items":             len(opts.Engine.Items()),
			"comparisons_done":  state.ComparisonsDone,
			"total_comparisons": state.TotalComparisons,
		}); err != nil {
			return nil, fmt.Errorf("failed to journal session start: %w", err)
		}
	}
	return s, nil
}

// Key returns the progress key
func (s *Session) Key() string { return s.key }

// Kind returns the list kind
func (s *Session) Kind() data.ListKind { return s.list.Kind }

// Engine returns the underlying ranking engine
func (s *Session) Engine() *ranking.Engine { return s.engine }

// Journal returns the audit trail, nil when journaling is off
func (s *Session) Journal() *journal.AuditTrail { return s.journal }

// OnChange registers a listener called after every engine state change
func (s *Session) OnChange(fn func(ranking.State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// OnImage registers a listener called when cover art arrives, from the image
// service worker goroutine
func (s *Session) OnImage(fn func(id int, url string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.imageSubs = append(s.imageSubs, fn)
}

// Choose records the current pair's outcome. winnerID must be one side of
// the pair on screen.
func (s *Session) Choose(winnerID int) error {
	pair, ok := s.engine.CurrentPair()
	if !ok {
		return ErrNoComparison
	}
	var loserID int
	switch winnerID {
	case pair.Left.ID:
		loserID = pair.Right.ID
	case pair.Right.ID:
		loserID = pair.Left.ID
	default:
		return fmt.Errorf("%w: %d", ErrUnknownItem, winnerID)
	}

	elapsed := s.sincePairShown()
	s.engine.RecordComparison(winnerID, loserID)
	state := s.engine.State()
	s.logger.Debug("comparison chosen", "winner", winnerID, "loser", loserID, "done", state.ComparisonsDone)

	if s.journal != nil {
		if err := s.journal.LogComparison(journal.EventComparisonRecorded, journal.ComparisonAuditData{
			WinnerID:         winnerID,
			LoserID:          loserID,
			ComparisonsDone:  state.ComparisonsDone,
			TotalComparisons: state.TotalComparisons,
			Duration:         elapsed,
		}); err != nil {
			return fmt.Errorf("failed to journal comparison: %w", err)
		}
	}
	return s.afterMove(state)
}

// ChooseSide records the outcome by position, 0 for left and 1 for right
func (s *Session) ChooseSide(side int) error {
	pair, ok := s.engine.CurrentPair()
	if !ok {
		return ErrNoComparison
	}
	switch side {
	case 0:
		return s.Choose(pair.Left.ID)
	case 1:
		return s.Choose(pair.Right.ID)
	}
	return fmt.Errorf("%w: side %d", ErrUnknownItem, side)
}

// Skip moves past the current pair without recording a result
func (s *Session) Skip() error {
	pair, ok := s.engine.CurrentPair()
	if !ok {
		return ErrNoComparison
	}
	elapsed := s.sincePairShown()
	s.engine.Skip()
	state := s.engine.State()

	if s.journal != nil {
		if err := s.journal.LogComparison(journal.EventComparisonSkipped, journal.ComparisonAuditData{
			WinnerID:         pair.Left.ID,
			LoserID:          pair.Right.ID,
			ComparisonsDone:  state.ComparisonsDone,
			TotalComparisons: state.TotalComparisons,
			Duration:         elapsed,
		}); err != nil {
			return fmt.Errorf("failed to journal skip: %w", err)
		}
	}
	return s.afterMove(state)
}

// Undo reverts the last recorded comparison; it is a no-op at the start
func (s *Session) Undo() error {
	if !s.engine.CanUndo() {
		return nil
	}
	s.engine.Undo()
	return s.historyMove(journal.EventUndo)
}

// Redo reapplies an undone comparison; it is a no-op at the top of history
func (s *Session) Redo() error {
	if !s.engine.CanRedo() {
		return nil
	}
	s.engine.Redo()
	return s.historyMove(journal.EventRedo)
}

func (s *Session) historyMove(event journal.AuditEventType) error {
	state := s.engine.State()
	if s.journal != nil {
		if err := s.journal.LogHistoryMove(event, state); err != nil {
			return fmt.Errorf("failed to journal %s: %w", event, err)
		}
	}
	return s.afterMove(state)
}

// afterMove journals completion once and persists progress when autosave is on
func (s *Session) afterMove(state ranking.State) error {
	s.mu.Lock()
	s.updatedAt = s.now()
	justCompleted := state.IsComplete && !s.completed
	s.completed = state.IsComplete
	s.mu.Unlock()

	if justCompleted {
		s.logger.Info("ranking complete", "comparisons", state.ComparisonsDone)
		if s.journal != nil {
			if err := s.journal.LogSessionEvent(journal.EventSessionCompleted, map[string]any{
				"comparisons_done": state.ComparisonsDone,
				"accuracy":         s.engine.Accuracy(),
			}); err != nil {
				return fmt.Errorf("failed to journal completion: %w", err)
			}
		}
	}

	if !s.autoSave || s.storage == nil {
		return nil
	}
	return s.Save(context.Background())
}

// Ratings returns the current display ratings, best first, without touching
// the session
func (s *Session) Ratings() []ranking.Item {
	return s.withImages(s.engine.CalculateFinalRatings())
}

// Finalize computes final ratings and journals them
func (s *Session) Finalize() ([]ranking.Item, error) {
	items := s.Ratings()
	if s.journal != nil {
		if err := s.journal.LogFinalRatings(items); err != nil {
			return items, fmt.Errorf("failed to journal final ratings: %w", err)
		}
	}
	return items, nil
}

// Progress builds the persisted form of the session
func (s *Session) Progress() (*data.Progress, error) {
	blob, err := s.engine.SerializeState()
	if err != nil {
		return nil, err
	}
	return &data.Progress{
		Key:         s.key,
		Kind:        s.list.Kind,
		Format:      s.list.Format,
		Items:       s.withImages(s.engine.Items()),
		EngineState: blob,
		Original:    s.list.Original,
		DisplayMode: string(s.engine.DisplayMode()),
		SavedAt:     s.now(),
	}, nil
}

// Save writes progress to storage
func (s *Session) Save(ctx context.Context) error {
	if s.storage == nil {
		return ErrNoStorage
	}
	progress, err := s.Progress()
	if err != nil {
		return err
	}
	if err := s.storage.Save(ctx, progress); err != nil {
		return err
	}
	s.logger.Debug("progress saved", "items", len(progress.Items))
	if s.journal != nil {
		return s.journal.LogSessionEvent(journal.EventSessionSaved, map[string]any{"key": s.key})
	}
	return nil
}

// Discard deletes saved progress, used once a ranking has been exported
func (s *Session) Discard(ctx context.Context) error {
	if s.storage == nil {
		return ErrNoStorage
	}
	err := s.storage.Delete(ctx, s.key)
	if errors.Is(err, data.ErrProgressNotFound) {
		return nil
	}
	return err
}

// Snapshot returns the exportable view of the session with final ratings
func (s *Session) Snapshot(includeHistory bool) (*journal.Session, error) {
	items, err := s.Finalize()
	if err != nil {
		return nil, err
	}
	state := s.engine.State()

	s.mu.RLock()
	snapshot := &journal.Session{
		Key:              s.key,
		Kind:             s.list.Kind,
		Items:            items,
		ComparisonsDone:  state.ComparisonsDone,
		TotalComparisons: state.TotalComparisons,
		Accuracy:         s.engine.Accuracy(),
		Complete:         state.IsComplete,
		DisplayMode:      s.engine.DisplayMode(),
		Original:         s.list.Original,
		StartedAt:        s.startedAt,
		UpdatedAt:        s.updatedAt,
	}
	s.mu.RUnlock()

	if includeHistory && s.journal != nil {
		history, err := s.journal.GetSessionHistory()
		if err != nil {
			return nil, err
		}
		snapshot.History = history
	}
	return snapshot, nil
}

// Export writes final ratings in the requested format
func (s *Session) Export(writer io.Writer, options journal.ExportOptions) error {
	snapshot, err := s.Snapshot(options.IncludeAudit)
	if err != nil {
		return err
	}
	return s.exporter.Export(snapshot, writer, options)
}

// ExportToFile writes final ratings to path atomically
func (s *Session) ExportToFile(path string, options journal.ExportOptions) error {
	snapshot, err := s.Snapshot(options.IncludeAudit)
	if err != nil {
		return err
	}
	if err := s.exporter.ExportToFile(snapshot, path, options); err != nil {
		return err
	}
	s.logger.Info("ratings exported", "path", path, "format", options.Format)
	return nil
}

// ExportWithTemplate renders final ratings through a custom template
func (s *Session) ExportWithTemplate(writer io.Writer, tmpl journal.ExportTemplate, options journal.ExportOptions) error {
	snapshot, err := s.Snapshot(options.IncludeAudit)
	if err != nil {
		return err
	}
	return s.exporter.ExportWithTemplate(snapshot, writer, tmpl, options)
}

// ImageURL returns the known cover art for an item
func (s *Session) ImageURL(id int) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	url, ok := s.imageURLs[id]
	return url, ok
}

// SetImageURL stores cover art delivered by the image service
func (s *Session) SetImageURL(id int, url string) {
	s.mu.Lock()
	s.imageURLs[id] = url
	subs := append([]func(int, string){}, s.imageSubs...)
	s.mu.Unlock()

	for _, fn := range subs {
		fn(id, url)
	}
}

// QueueImages schedules cover art for every item, upcoming comparisons first
func (s *Session) QueueImages() {
	media, ok := s.media()
	if !ok {
		return
	}
	ids := make([]int, 0, len(s.list.Entries))
	for _, item := range s.engine.Items() {
		if _, known := s.ImageURL(item.ID); !known {
			ids = append(ids, item.ID)
		}
	}
	s.images.Enqueue(media, ids, false)
	s.prioritizeUpcoming()
}

func (s *Session) prioritizeUpcoming() {
	media, ok := s.media()
	if !ok || s.prefetch <= 0 {
		return
	}
	upcoming := s.engine.UpcomingCandidates(s.prefetch)
	ids := make([]int, 0, len(upcoming))
	for _, item := range upcoming {
		if _, known := s.ImageURL(item.ID); !known {
			ids = append(ids, item.ID)
		}
	}
	s.images.Enqueue(media, ids, true)
}

func (s *Session) media() (images.MediaType, bool) {
	if s.images == nil {
		return "", false
	}
	return images.MediaFor(s.list.Kind)
}

// onEngineChange runs outside the engine lock after every mutation
func (s *Session) onEngineChange(state ranking.State) {
	s.mu.Lock()
	s.pairShownAt = s.now()
	listeners := append([]func(ranking.State){}, s.listeners...)
	s.mu.Unlock()

	s.prioritizeUpcoming()
	for _, fn := range listeners {
		fn(state)
	}
}

func (s *Session) sincePairShown() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.now().Sub(s.pairShownAt)
}

func (s *Session) withImages(items []ranking.Item) []ranking.Item {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := range items {
		if url, ok := s.imageURLs[items[i].ID]; ok && items[i].ImageURL == "" {
			items[i].ImageURL = url
		}
	}
	return items
}

// Close stops listening to the engine and closes the journal
func (s *Session) Close() error {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	if s.journal != nil {
		return s.journal.Close()
	}
	return nil
}
