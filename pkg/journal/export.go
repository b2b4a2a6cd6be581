package journal

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	texttemplate "text/template"
	"time"

	"github.com/pashagolub/listrank/pkg/data"
	"github.com/pashagolub/listrank/pkg/ranking"
)

// Error types for export operations
var (
	ErrNothingToExport   = errors.New("no items to export")
	ErrUnsupportedFormat = errors.New("unsupported export format")
	ErrMissingOriginal   = errors.New("original MyAnimeList export is not available")
)

// Session is the read-only view of a ranking session that exports work from
type Session struct {
	Key              string
	Kind             data.ListKind
	Items            []ranking.Item // final ratings, any order
	ComparisonsDone  int
	TotalComparisons int
	Accuracy         int
	Complete         bool
	DisplayMode      ranking.DisplayMode
	Original         []byte // raw MyAnimeList XML, needed for mal-xml
	StartedAt        time.Time
	UpdatedAt        time.Time
	History          []AuditEntry // optional comparison history
}

// ExportFormat represents the format for exporting results
type ExportFormat string

const (
	FormatCSV     ExportFormat = "csv"
	FormatJSON    ExportFormat = "json"
	FormatText    ExportFormat = "text"
	FormatMALJSON ExportFormat = "mal-json"
	FormatMALXML  ExportFormat = "mal-xml"
)

// malCompletedStatus is the list status written by the MyAnimeList JSON export
const malCompletedStatus = "completed"

// ExportOptions configures export behavior
type ExportOptions struct {
	Format        ExportFormat `json:"format"`
	RoundDecimals int          `json:"round_decimals"`
	IncludeStats  bool         `json:"include_stats"` // Include confidence scores and stats
	IncludeAudit  bool         `json:"include_audit"` // Include comparison history
}

// ExportTemplate defines custom export formatting
type ExportTemplate struct {
	Name         string `json:"name" yaml:"name"`
	Description  string `json:"description" yaml:"description"`
	HeaderFormat string `json:"header" yaml:"header"`
	RowFormat    string `json:"row" yaml:"row"`
	FooterFormat string `json:"footer" yaml:"footer"`
}

// RankingExport represents the complete JSON export
type RankingExport struct {
	Key        string            `json:"key"`
	Kind       data.ListKind     `json:"kind"`
	ExportedAt time.Time         `json:"exported_at"`
	Rankings   []RankedItem      `json:"rankings"`
	Statistics *ExportStatistics `json:"statistics,omitempty"`
	AuditTrail []AuditEntry      `json:"audit_trail,omitempty"`
	Metadata   map[string]any    `json:"metadata,omitempty"`
}

// RankedItem is an item with its position in the final ranking
type RankedItem struct {
	Rank            int     `json:"rank"`
	ID              int     `json:"id"`
	Title           string  `json:"title"`
	Rating          float64 `json:"rating"`
	Strength        float64 `json:"strength"`
	Comparisons     int     `json:"comparisons"`
	Wins            int     `json:"wins"`
	Losses          int     `json:"losses"`
	ImageURL        string  `json:"image_url,omitempty"`
	ConfidenceScore float64 `json:"confidence_score,omitempty"`
}

// ExportStatistics provides summary statistics
type ExportStatistics struct {
	TotalItems        int     `json:"total_items"`
	ComparisonsDone   int     `json:"comparisons_done"`
	TotalComparisons  int     `json:"total_comparisons"`
	Accuracy          int     `json:"accuracy"`
	AverageRating     float64 `json:"average_rating"`
	RatingRange       float64 `json:"rating_range"`
	StandardDeviation float64 `json:"standard_deviation"`
	SessionDuration   string  `json:"session_duration"`
}

// malExport mirrors the MyAnimeList API list shape
type malExport struct {
	Data []malNode `json:"data"`
}

type malNode struct {
	Node struct {
		ID          int         `json:"id"`
		Title       string      `json:"title"`
		MainPicture *malPicture `json:"main_picture,omitempty"`
	} `json:"node"`
	ListStatus struct {
		Status string `json:"status"`
		Score  int    `json:"score"`
	} `json:"list_status"`
}

type malPicture struct {
	Medium string `json:"medium"`
	Large  string `json:"large"`
}

// Exporter handles ranking export operations
type Exporter struct {
	now func() time.Time
}

// NewExporter creates a new exporter instance
func NewExporter() *Exporter {
	return &Exporter{now: time.Now}
}

// Export writes the session in the requested format
func (e *Exporter) Export(session *Session, writer io.Writer, options ExportOptions) error {
	if len(session.Items) == 0 {
		return ErrNothingToExport
	}

	switch options.Format {
	case FormatCSV:
		return e.ExportCSV(session, writer, options)
	case FormatJSON:
		return e.ExportJSON(session, writer, options)
	case FormatText:
		return e.ExportRankingReport(session, writer, options)
	case FormatMALJSON:
		return e.ExportMALJSON(session, writer)
	case FormatMALXML:
		return e.ExportMALXML(session, writer)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, options.Format)
	}
}

// ExportToFile exports session results to a file, replacing it atomically
func (e *Exporter) ExportToFile(session *Session, filePath string, options ExportOptions) (err error) {
	dir := filepath.Dir(filePath)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	tempFile := filePath + ".tmp"
	file, err := os.Create(tempFile)
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer func() {
		_ = file.Close()
		if err != nil {
			_ = os.Remove(tempFile)
		}
	}()

	if err = e.Export(session, file, options); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}

	if err = file.Close(); err != nil {
		return fmt.Errorf("failed to close temporary file: %w", err)
	}

	if err = os.Rename(tempFile, filePath); err != nil {
		return fmt.Errorf("failed to replace target file: %w", err)
	}

	return nil
}

// ExportCSV exports rankings as id,title,rating[,image] rows, best first
func (e *Exporter) ExportCSV(session *Session, writer io.Writer, options ExportOptions) error {
	ranked := e.buildRankedItems(session, options.IncludeStats)
	if len(ranked) == 0 {
		return ErrNothingToExport
	}

	csvWriter := csv.NewWriter(writer)

	headers := []string{"id", "title", "score"}
	withImages := hasAnyImage(ranked)
	if withImages {
		headers = append(headers, "image")
	}
	if options.IncludeStats {
		headers = append(headers, "rank", "comparisons", "wins", "losses", "confidence_score")
	}

	if err := csvWriter.Write(headers); err != nil {
		return fmt.Errorf("failed to write CSV header: %w", err)
	}

	for _, item := range ranked {
		record := []string{
			strconv.Itoa(item.ID),
			item.Title,
			formatRating(item.Rating, options.RoundDecimals),
		}
		if withImages {
			record = append(record, item.ImageURL)
		}
		if options.IncludeStats {
			record = append(record,
				strconv.Itoa(item.Rank),
				strconv.Itoa(item.Comparisons),
				strconv.Itoa(item.Wins),
				strconv.Itoa(item.Losses),
				formatRating(item.ConfidenceScore, 2),
			)
		}

		if err := csvWriter.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV record for item %d: %w", item.ID, err)
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportJSON exports rankings in JSON format with comprehensive data
func (e *Exporter) ExportJSON(session *Session, writer io.Writer, options ExportOptions) error {
	ranked := e.buildRankedItems(session, options.IncludeStats)
	for i := range ranked {
		ranked[i].Rating = roundTo(ranked[i].Rating, options.RoundDecimals)
	}

	export := &RankingExport{
		Key:        session.Key,
		Kind:       session.Kind,
		ExportedAt: e.now().UTC(),
		Rankings:   ranked,
		Metadata: map[string]any{
			"complete":          session.Complete,
			"comparisons_done":  session.ComparisonsDone,
			"total_comparisons": session.TotalComparisons,
			"display_mode":      session.DisplayMode,
		},
	}

	if options.IncludeStats {
		export.Statistics = e.calculateExportStatistics(session)
	}
	if options.IncludeAudit {
		export.AuditTrail = session.History
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// ExportMALJSON writes the MyAnimeList API list shape with every item marked
// completed and its rating rounded to a whole score
func (e *Exporter) ExportMALJSON(session *Session, writer io.Writer) error {
	ranked := e.buildRankedItems(session, false)
	export := malExport{Data: make([]malNode, len(ranked))}

	for i, item := range ranked {
		node := &export.Data[i]
		node.Node.ID = item.ID
		node.Node.Title = item.Title
		if item.ImageURL != "" {
			node.Node.MainPicture = &malPicture{Medium: item.ImageURL, Large: item.ImageURL}
		}
		node.ListStatus.Status = malCompletedStatus
		node.ListStatus.Score = int(math.Round(item.Rating))
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}
	return nil
}

// ExportMALXML rewrites the original MyAnimeList export with the new scores
func (e *Exporter) ExportMALXML(session *Session, writer io.Writer) error {
	if len(session.Original) == 0 {
		return ErrMissingOriginal
	}

	ratings := make(map[int]float64, len(session.Items))
	for _, item := range session.Items {
		ratings[item.ID] = item.Rating
	}

	out, err := data.RewriteMALXML(session.Original, session.Kind, ratings)
	if err != nil {
		return err
	}
	if _, err := writer.Write(out); err != nil {
		return fmt.Errorf("failed to write XML: %w", err)
	}
	return nil
}

// ExportRankingReport generates a human-readable text report
func (e *Exporter) ExportRankingReport(session *Session, writer io.Writer, options ExportOptions) error {
	ranked := e.buildRankedItems(session, true)
	statistics := e.calculateExportStatistics(session)

	fmt.Fprintf(writer, "List Ranking Report\n")
	fmt.Fprintf(writer, "===================\n\n")
	fmt.Fprintf(writer, "List: %s (%s)\n", session.Key, session.Kind)
	fmt.Fprintf(writer, "Generated: %s\n", e.now().Format("2006-01-02 15:04:05"))
	if session.Complete {
		fmt.Fprintf(writer, "Status: complete\n\n")
	} else {
		fmt.Fprintf(writer, "Status: in progress\n\n")
	}

	if statistics != nil {
		fmt.Fprintf(writer, "Session Statistics\n")
		fmt.Fprintf(writer, "------------------\n")
		fmt.Fprintf(writer, "Items: %d\n", statistics.TotalItems)
		fmt.Fprintf(writer, "Comparisons: %d of %d\n", statistics.ComparisonsDone, statistics.TotalComparisons)
		fmt.Fprintf(writer, "Accuracy: %d%%\n", statistics.Accuracy)
		fmt.Fprintf(writer, "Average Rating: %.1f\n", statistics.AverageRating)
		fmt.Fprintf(writer, "Rating Range: %.1f\n", statistics.RatingRange)
		fmt.Fprintf(writer, "Standard Deviation: %.2f\n", statistics.StandardDeviation)
		fmt.Fprintf(writer, "Duration: %s\n\n", statistics.SessionDuration)
	}

	fmt.Fprintf(writer, "Final Rankings\n")
	fmt.Fprintf(writer, "==============\n\n")

	for _, item := range ranked {
		fmt.Fprintf(writer, "%d. %s\n", item.Rank, item.Title)
		fmt.Fprintf(writer, "   Rating: %s | W/L: %d/%d",
			formatRating(item.Rating, options.RoundDecimals), item.Wins, item.Losses)
		if options.IncludeStats {
			fmt.Fprintf(writer, " | Confidence: %.0f%%", item.ConfidenceScore*100)
		}
		fmt.Fprintf(writer, "\n\n")
	}

	if options.IncludeAudit {
		writeHistory(writer, session)
	}

	return nil
}

// writeHistory lists the most recent answered comparisons
func writeHistory(writer io.Writer, session *Session) {
	titles := make(map[int]string, len(session.Items))
	for _, item := range session.Items {
		titles[item.ID] = item.Title
	}

	var answered []AuditEntry
	for _, entry := range session.History {
		if entry.EventType == EventComparisonRecorded {
			answered = append(answered, entry)
		}
	}

	fmt.Fprintf(writer, "Comparison History\n")
	fmt.Fprintf(writer, "==================\n\n")
	fmt.Fprintf(writer, "Recorded Comparisons: %d\n\n", len(answered))

	recent := answered[max(0, len(answered)-10):]
	if len(recent) == 0 {
		return
	}

	fmt.Fprintf(writer, "Recent Comparisons:\n")
	for _, entry := range recent {
		winner, _ := entry.Data["winner_id"].(float64)
		loser, _ := entry.Data["loser_id"].(float64)
		fmt.Fprintf(writer, "- %s: %s beat %s\n",
			entry.Timestamp.Format("15:04:05"),
			titleOrID(titles, int(winner)),
			titleOrID(titles, int(loser)))
	}
}

func titleOrID(titles map[int]string, id int) string {
	if title, ok := titles[id]; ok {
		return title
	}
	return "#" + strconv.Itoa(id)
}

// ExportWithTemplate exports using a custom template
func (e *Exporter) ExportWithTemplate(session *Session, writer io.Writer, template ExportTemplate, options ExportOptions) error {
	ranked := e.buildRankedItems(session, options.IncludeStats)

	view := struct {
		Session    *Session
		TotalItems int
		Timestamp  string
		Rankings   []RankedItem
		Statistics *ExportStatistics
	}{
		Session:    session,
		TotalItems: len(ranked),
		Timestamp:  e.now().Format("2006-01-02 15:04:05"),
		Rankings:   ranked,
		Statistics: e.calculateExportStatistics(session),
	}

	if template.HeaderFormat != "" {
		tmpl, err := texttemplate.New("header").Parse(template.HeaderFormat)
		if err != nil {
			return fmt.Errorf("failed to parse header template: %w", err)
		}
		if err := tmpl.Execute(writer, view); err != nil {
			return fmt.Errorf("failed to execute header template: %w", err)
		}
	}

	if template.RowFormat != "" {
		tmpl, err := texttemplate.New("row").Parse(template.RowFormat)
		if err != nil {
			return fmt.Errorf("failed to parse row template: %w", err)
		}

		for i, item := range ranked {
			rowData := struct {
				RankedItem
				Index int
			}{
				RankedItem: item,
				Index:      i,
			}

			if err := tmpl.Execute(writer, rowData); err != nil {
				return fmt.Errorf("failed to execute row template for item %d: %w", item.ID, err)
			}
		}
	}

	if template.FooterFormat != "" {
		tmpl, err := texttemplate.New("footer").Parse(template.FooterFormat)
		if err != nil {
			return fmt.Errorf("failed to parse footer template: %w", err)
		}
		if err := tmpl.Execute(writer, view); err != nil {
			return fmt.Errorf("failed to execute footer template: %w", err)
		}
	}

	return nil
}

// Helper functions

// buildRankedItems sorts items best first and numbers them
func (e *Exporter) buildRankedItems(session *Session, includeStats bool) []RankedItem {
	items := make([]ranking.Item, len(session.Items))
	copy(items, session.Items)
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Rating != items[j].Rating {
			return items[i].Rating > items[j].Rating
		}
		return items[i].Strength > items[j].Strength
	})

	ranked := make([]RankedItem, len(items))
	for i, item := range items {
		ranked[i] = RankedItem{
			Rank:        i + 1,
			ID:          item.ID,
			Title:       item.Title,
			Rating:      item.Rating,
			Strength:    item.Strength,
			Comparisons: item.Comparisons,
			Wins:        item.Wins,
			Losses:      item.Losses,
			ImageURL:    item.ImageURL,
		}
		if includeStats {
			ranked[i].ConfidenceScore = confidenceScore(session, item)
		}
	}

	return ranked
}

func confidenceScore(session *Session, item ranking.Item) float64 {
	return ItemConfidence(session.Accuracy, item.Comparisons, len(session.Items))
}

// ItemConfidence blends session accuracy with how often an item was compared
// relative to the per-item schedule of a list with n items. The result is in [0, 1].
func ItemConfidence(accuracy, comparisons, n int) float64 {
	perItem := ranking.ComparisonsPerItem(n)
	participation := 1.0
	if perItem > 0 {
		participation = math.Min(1, float64(comparisons)/float64(perItem))
	}
	return (float64(accuracy)/100 + participation) / 2
}

// calculateExportStatistics computes summary statistics for the session
func (e *Exporter) calculateExportStatistics(session *Session) *ExportStatistics {
	if len(session.Items) == 0 {
		return nil
	}

	var sum, lowest, highest float64
	for i, item := range session.Items {
		sum += item.Rating
		if i == 0 || item.Rating < lowest {
			lowest = item.Rating
		}
		if i == 0 || item.Rating > highest {
			highest = item.Rating
		}
	}
	average := sum / float64(len(session.Items))

	var variance float64
	for _, item := range session.Items {
		diff := item.Rating - average
		variance += diff * diff
	}
	variance /= float64(len(session.Items))

	stats := &ExportStatistics{
		TotalItems:        len(session.Items),
		ComparisonsDone:   session.ComparisonsDone,
		TotalComparisons:  session.TotalComparisons,
		Accuracy:          session.Accuracy,
		AverageRating:     average,
		RatingRange:       highest - lowest,
		StandardDeviation: math.Sqrt(variance),
		SessionDuration:   "unknown",
	}
	if !session.StartedAt.IsZero() && !session.UpdatedAt.IsZero() {
		stats.SessionDuration = formatDuration(session.UpdatedAt.Sub(session.StartedAt))
	}
	return stats
}

// Utility functions

func hasAnyImage(items []RankedItem) bool {
	for _, item := range items {
		if item.ImageURL != "" {
			return true
		}
	}
	return false
}

func roundTo(value float64, decimals int) float64 {
	scale := math.Pow(10, float64(decimals))
	return math.Round(value*scale) / scale
}

// formatRating formats a rating with the configured precision
func formatRating(value float64, decimals int) string {
	return strconv.FormatFloat(roundTo(value, decimals), 'f', decimals, 64)
}

// formatDuration formats a duration for human reading
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
}
