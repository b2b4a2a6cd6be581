// Package journal provides the audit trail and result exports for the listrank
// application. The audit trail is an append-only JSON Lines log with a hash chain
// so that the sequence of comparisons behind a ranking can be reviewed and checked
// for tampering.
package journal

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pashagolub/listrank/pkg/ranking"
)

// Error types for audit trail operations
var (
	ErrAuditLogCorrupted = errors.New("audit log corrupted or tampered")
	ErrInvalidLogEntry   = errors.New("invalid log entry format")
	ErrNotInitialized    = errors.New("audit trail not initialized")
	ErrEmptySessionID    = errors.New("session ID cannot be empty")
)

// AuditEventType represents the type of event being logged
type AuditEventType string

const (
	EventComparisonRecorded AuditEventType = "comparison_recorded"
	EventComparisonSkipped  AuditEventType = "comparison_skipped"
	EventUndo               AuditEventType = "undo"
	EventRedo               AuditEventType = "redo"
	EventRatingsFinalized   AuditEventType = "ratings_finalized"
	EventSessionCreated     AuditEventType = "session_created"
	EventSessionResumed     AuditEventType = "session_resumed"
	EventSessionSaved       AuditEventType = "session_saved"
	EventSessionCompleted   AuditEventType = "session_completed"
)

// AuditEntry represents a single entry in the audit log
type AuditEntry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	EventType AuditEventType `json:"event_type"`
	SessionID string         `json:"session_id"`

	Data map[string]any `json:"data"`

	PreviousHash string `json:"previous_hash"` // Hash of previous entry (tamper detection)
	EntryHash    string `json:"entry_hash"`    // Hash of this entry's content
	Sequence     uint64 `json:"sequence"`
}

// ComparisonAuditData describes one answered or skipped pair
type ComparisonAuditData struct {
	WinnerID         int
	LoserID          int
	ComparisonsDone  int
	TotalComparisons int
	Duration         time.Duration // time the pair was on screen, zero if unknown
}

// AuditTrail manages the append-only audit log for a session
type AuditTrail struct {
	sessionID     string
	logFilePath   string
	file          *os.File
	mutex         sync.Mutex
	lastHash      string
	sequence      uint64
	isInitialized bool
	now           func() time.Time
}

// NewAuditTrail opens or creates the audit trail for the session. An existing
// log is validated and appended to.
func NewAuditTrail(sessionID, logDirectory string) (*AuditTrail, error) {
	if sessionID == "" {
		return nil, ErrEmptySessionID
	}

	if err := os.MkdirAll(logDirectory, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	audit := &AuditTrail{
		sessionID:   sessionID,
		logFilePath: filepath.Join(logDirectory, fmt.Sprintf("audit_%s.jsonl", sessionID)),
		now:         time.Now,
	}

	if err := audit.initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize audit trail: %w", err)
	}

	return audit, nil
}

// initialize prepares the audit trail for use
func (a *AuditTrail) initialize() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if _, err := os.Stat(a.logFilePath); os.IsNotExist(err) {
		file, err := os.OpenFile(a.logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to create audit log file: %w", err)
		}
		a.file = file
		a.lastHash = ""
		a.sequence = 0
	} else {
		lastHash, sequence, err := a.verifyChain()
		if err != nil {
			return err
		}
		file, err := os.OpenFile(a.logFilePath, os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return fmt.Errorf("failed to open audit log file: %w", err)
		}
		a.file = file
		a.lastHash = lastHash
		a.sequence = sequence
	}

	a.isInitialized = true
	return nil
}

// verifyChain walks the log and returns the last hash and the next sequence number
func (a *AuditTrail) verifyChain() (string, uint64, error) {
	readFile, err := os.Open(a.logFilePath)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open audit log for verification: %w", err)
	}
	defer readFile.Close()

	scanner := bufio.NewScanner(readFile)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	var previousHash string
	sequence := uint64(0)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry AuditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			return "", 0, fmt.Errorf("%w: invalid JSON at sequence %d: %v", ErrInvalidLogEntry, sequence, err)
		}
		if entry.Sequence != sequence {
			return "", 0, fmt.Errorf("%w: sequence mismatch at entry %d, got %d", ErrAuditLogCorrupted, sequence, entry.Sequence)
		}
		if entry.PreviousHash != previousHash {
			return "", 0, fmt.Errorf("%w: hash chain broken at sequence %d", ErrAuditLogCorrupted, sequence)
		}
		if entry.EntryHash != calculateEntryHash(&entry) {
			return "", 0, fmt.Errorf("%w: entry hash mismatch at sequence %d", ErrAuditLogCorrupted, sequence)
		}

		previousHash = entry.EntryHash
		sequence++
	}

	if err := scanner.Err(); err != nil {
		return "", 0, fmt.Errorf("error reading audit log: %w", err)
	}
	return previousHash, sequence, nil
}

// LogComparison records an answered or skipped pair
func (a *AuditTrail) LogComparison(eventType AuditEventType, data ComparisonAuditData) error {
	eventData := map[string]any{
		"item_ids":          []int{data.WinnerID, data.LoserID},
		"comparisons_done":  data.ComparisonsDone,
		"total_comparisons": data.TotalComparisons,
	}
	if eventType == EventComparisonRecorded {
		eventData["winner_id"] = data.WinnerID
		eventData["loser_id"] = data.LoserID
	}
	if data.Duration > 0 {
		eventData["duration"] = data.Duration.String()
	}

	return a.logEntry(eventType, eventData)
}

// LogHistoryMove records an undo or redo together with the resulting progress
func (a *AuditTrail) LogHistoryMove(eventType AuditEventType, state ranking.State) error {
	if eventType != EventUndo && eventType != EventRedo {
		return fmt.Errorf("%w: %s is not a history event", ErrInvalidLogEntry, eventType)
	}
	return a.logEntry(eventType, map[string]any{
		"comparisons_done":  state.ComparisonsDone,
		"total_comparisons": state.TotalComparisons,
		"is_complete":       state.IsComplete,
	})
}

// LogFinalRatings records the final ranking, best first
func (a *AuditTrail) LogFinalRatings(items []ranking.Item) error {
	ranked := make([]map[string]any, len(items))
	for i, item := range items {
		ranked[i] = map[string]any{
			"id":     item.ID,
			"rating": item.Rating,
		}
	}
	return a.logEntry(EventRatingsFinalized, map[string]any{
		"items":   len(items),
		"ranking": ranked,
	})
}

// LogSessionEvent logs a session lifecycle event to the audit trail
func (a *AuditTrail) LogSessionEvent(eventType AuditEventType, metadata map[string]any) error {
	if metadata == nil {
		metadata = map[string]any{}
	}
	return a.logEntry(eventType, metadata)
}

// logEntry writes a new entry to the audit log
func (a *AuditTrail) logEntry(eventType AuditEventType, data map[string]any) error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if !a.isInitialized {
		return ErrNotInitialized
	}

	entry := AuditEntry{
		ID:           uuid.NewString(),
		Timestamp:    a.now().UTC(),
		EventType:    eventType,
		SessionID:    a.sessionID,
		Data:         data,
		PreviousHash: a.lastHash,
		Sequence:     a.sequence,
	}
	entry.EntryHash = calculateEntryHash(&entry)

	jsonData, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal audit entry: %w", err)
	}

	if _, err := a.file.Write(append(jsonData, '\n')); err != nil {
		return fmt.Errorf("failed to write audit entry: %w", err)
	}
	if err := a.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log: %w", err)
	}

	a.lastHash = entry.EntryHash
	a.sequence++

	return nil
}

// calculateEntryHash computes the SHA-256 hash of an entry's content
func calculateEntryHash(entry *AuditEntry) string {
	// EntryHash itself is excluded
	hashContent := fmt.Sprintf("%s|%s|%s|%s|%s|%d|%s",
		entry.ID,
		entry.Timestamp.Format(time.RFC3339Nano),
		entry.EventType,
		entry.SessionID,
		entry.PreviousHash,
		entry.Sequence,
		hashData(entry.Data))

	hash := sha256.Sum256([]byte(hashContent))
	return hex.EncodeToString(hash[:])
}

// hashData creates a deterministic hash of the data map; encoding/json sorts map keys
func hashData(data map[string]any) string {
	jsonData, _ := json.Marshal(data)
	hash := sha256.Sum256(jsonData)
	return hex.EncodeToString(hash[:])
}

// Close closes the audit trail and releases resources
func (a *AuditTrail) Close() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if a.file != nil {
		err := a.file.Close()
		a.file = nil
		a.isInitialized = false
		return err
	}

	return nil
}

// GetLogPath returns the path to the audit log file
func (a *AuditTrail) GetLogPath() string {
	return a.logFilePath
}

// GetSequence returns the number of entries written so far
func (a *AuditTrail) GetSequence() uint64 {
	a.mutex.Lock()
	defer a.mutex.Unlock()
	return a.sequence
}

// QueryOptions defines filtering criteria for audit log queries
type QueryOptions struct {
	EventTypes []AuditEventType `json:"event_types,omitempty"`
	StartTime  *time.Time       `json:"start_time,omitempty"`
	EndTime    *time.Time       `json:"end_time,omitempty"`
	ItemID     int              `json:"item_id,omitempty"` // Entries mentioning this item
	Limit      int              `json:"limit,omitempty"`
	Offset     int              `json:"offset,omitempty"`
}

// QueryResult contains the results of an audit log query
type QueryResult struct {
	Entries      []AuditEntry `json:"entries"`
	TotalCount   int          `json:"total_count"`
	HasMore      bool         `json:"has_more"`
	QueryOptions QueryOptions `json:"query_options"`
}

// Query searches the audit log for entries matching the specified criteria
func (a *AuditTrail) Query(options QueryOptions) (*QueryResult, error) {
	a.mutex.Lock()
	initialized := a.isInitialized
	a.mutex.Unlock()
	if !initialized {
		return nil, ErrNotInitialized
	}

	readFile, err := os.Open(a.logFilePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &QueryResult{Entries: []AuditEntry{}, QueryOptions: options}, nil
		}
		return nil, fmt.Errorf("failed to open audit log for reading: %w", err)
	}
	defer readFile.Close()

	var allMatches []AuditEntry
	scanner := bufio.NewScanner(readFile)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var entry AuditEntry
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue // VerifyIntegrity reports malformed lines
		}

		if matchesQuery(&entry, options) {
			allMatches = append(allMatches, entry)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading audit log during query: %w", err)
	}

	totalCount := len(allMatches)
	start := min(max(options.Offset, 0), totalCount)
	end := start + options.Limit
	if options.Limit <= 0 || end > totalCount {
		end = totalCount
	}

	return &QueryResult{
		Entries:      allMatches[start:end],
		TotalCount:   totalCount,
		HasMore:      end < totalCount,
		QueryOptions: options,
	}, nil
}

// matchesQuery determines if an entry matches the query criteria
func matchesQuery(entry *AuditEntry, options QueryOptions) bool {
	if len(options.EventTypes) > 0 {
		matches := false
		for _, eventType := range options.EventTypes {
			if entry.EventType == eventType {
				matches = true
				break
			}
		}
		if !matches {
			return false
		}
	}

	if options.StartTime != nil && entry.Timestamp.Before(*options.StartTime) {
		return false
	}
	if options.EndTime != nil && entry.Timestamp.After(*options.EndTime) {
		return false
	}

	if options.ItemID != 0 && !mentionsItem(entry.Data, options.ItemID) {
		return false
	}

	return true
}

// mentionsItem reports whether decoded event data references the item id.
// Decoded JSON numbers are float64.
func mentionsItem(data map[string]any, itemID int) bool {
	want := float64(itemID)
	if ids, ok := data["item_ids"].([]any); ok {
		for _, id := range ids {
			if v, ok := id.(float64); ok && v == want {
				return true
			}
		}
	}
	if ranked, ok := data["ranking"].([]any); ok {
		for _, raw := range ranked {
			if item, ok := raw.(map[string]any); ok && item["id"] == want {
				return true
			}
		}
	}
	return false
}

// GetItemHistory retrieves every entry that mentions the item
func (a *AuditTrail) GetItemHistory(itemID int) ([]AuditEntry, error) {
	result, err := a.Query(QueryOptions{ItemID: itemID})
	if err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// GetSessionHistory retrieves all audit entries for the session
func (a *AuditTrail) GetSessionHistory() ([]AuditEntry, error) {
	result, err := a.Query(QueryOptions{})
	if err != nil {
		return nil, err
	}
	return result.Entries, nil
}

// VerifyIntegrity performs a complete integrity check of the audit log
func (a *AuditTrail) VerifyIntegrity() error {
	a.mutex.Lock()
	defer a.mutex.Unlock()

	if !a.isInitialized {
		return ErrNotInitialized
	}
	_, _, err := a.verifyChain()
	return err
}

// GetStatistics returns statistics about the audit log
func (a *AuditTrail) GetStatistics() (*AuditStatistics, error) {
	result, err := a.Query(QueryOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to generate statistics: %w", err)
	}

	stats := &AuditStatistics{
		SessionID:    a.sessionID,
		TotalEntries: result.TotalCount,
		EventCounts:  make(map[AuditEventType]int),
		LastUpdated:  a.now().UTC(),
	}

	if len(result.Entries) > 0 {
		stats.FirstEntry = &result.Entries[0].Timestamp
		stats.LastEntry = &result.Entries[len(result.Entries)-1].Timestamp
	}

	for _, entry := range result.Entries {
		stats.EventCounts[entry.EventType]++
	}

	return stats, nil
}

// AuditStatistics provides summary information about the audit log
type AuditStatistics struct {
	SessionID    string                 `json:"session_id"`
	TotalEntries int                    `json:"total_entries"`
	EventCounts  map[AuditEventType]int `json:"event_counts"`
	FirstEntry   *time.Time             `json:"first_entry,omitempty"`
	LastEntry    *time.Time             `json:"last_entry,omitempty"`
	LastUpdated  time.Time              `json:"last_updated"`
}
