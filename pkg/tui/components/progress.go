// Package components provides reusable TUI widgets for list ranking.
package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pashagolub/listrank/pkg/ranking"
)

// Metrics is the snapshot shown by the progress panel
type Metrics struct {
	Done      int
	Total     int
	Percent   int
	Accuracy  int
	Remaining int
	Complete  bool
	Elapsed   time.Duration // time spent in this session
}

// NewMetrics derives panel metrics from an engine state
func NewMetrics(state ranking.State, accuracy int, elapsed time.Duration) Metrics {
	remaining := state.TotalComparisons - state.ComparisonsDone
	if remaining < 0 || state.IsComplete {
		remaining = 0
	}
	return Metrics{
		Done:      state.ComparisonsDone,
		Total:     state.TotalComparisons,
		Percent:   ranking.ProgressPercent(state.ComparisonsDone, state.TotalComparisons),
		Accuracy:  accuracy,
		Remaining: remaining,
		Complete:  state.IsComplete,
		Elapsed:   elapsed,
	}
}

// Progress displays comparison progress and ranking accuracy
type Progress struct {
	// UI components
	container   *tview.Flex
	progressBar *tview.TextView
	accuracyBar *tview.TextView
	statusText  *tview.TextView

	// Data and state
	lastUpdate time.Time
	current    *Metrics
	completed  bool

	// Display configuration
	showBars       bool
	showAccuracy   bool
	showEstimates  bool
	updateInterval time.Duration

	// Colors
	textColor   tcell.Color
	borderColor tcell.Color

	// Update callbacks
	onUpdate   func(metrics Metrics)
	onComplete func(accuracy int)
}

// ProgressConfig holds configuration options for the progress indicator
type ProgressConfig struct {
	ShowBars       bool
	ShowAccuracy   bool
	ShowEstimates  bool
	UpdateInterval time.Duration
	TextColor      tcell.Color
	BorderColor    tcell.Color
	OnUpdate       func(metrics Metrics)
	OnComplete     func(accuracy int) // called once when the ranking completes
}

// NewProgress creates a new progress indicator component
func NewProgress(config ProgressConfig) *Progress {
	p := &Progress{
		container:      tview.NewFlex(),
		progressBar:    tview.NewTextView(),
		accuracyBar:    tview.NewTextView(),
		statusText:     tview.NewTextView(),
		showBars:       config.ShowBars,
		showAccuracy:   config.ShowAccuracy,
		showEstimates:  config.ShowEstimates,
		updateInterval: config.UpdateInterval,
		textColor:      config.TextColor,
		borderColor:    config.BorderColor,
		onUpdate:       config.OnUpdate,
		onComplete:     config.OnComplete,
	}

	if p.textColor == 0 {
		p.textColor = tcell.ColorWhite
	}
	if p.borderColor == 0 {
		p.borderColor = tcell.ColorDarkGray
	}

	p.initializeUI()
	return p
}

// DefaultProgressConfig returns sensible defaults for progress indicators
func DefaultProgressConfig() ProgressConfig {
	return ProgressConfig{
		ShowBars:      true,
		ShowAccuracy:  true,
		ShowEstimates: true,
		TextColor:     tcell.ColorWhite,
		BorderColor:   tcell.ColorDarkGray,
	}
}

// initializeUI sets up the progress indicator layout and styling
func (p *Progress) initializeUI() {
	for view, title := range map[*tview.TextView]string{
		p.progressBar: "Progress",
		p.accuracyBar: "Accuracy",
		p.statusText:  "Status",
	} {
		view.SetBorder(true).SetTitle(title)
		view.SetBorderColor(p.borderColor)
		view.SetTextColor(p.textColor)
		view.SetDynamicColors(true)
	}
	p.progressBar.SetTextAlign(tview.AlignCenter)
	p.accuracyBar.SetTextAlign(tview.AlignCenter)

	p.container.SetDirection(tview.FlexRow)
	if p.showBars {
		p.container.AddItem(p.progressBar, 4, 0, false)
	}
	if p.showAccuracy {
		p.container.AddItem(p.accuracyBar, 4, 0, false)
	}
	if p.showEstimates {
		p.container.AddItem(p.statusText, 0, 1, false)
	}
}

// Update refreshes the indicators. Updates closer together than the
// configured interval are dropped unless they complete the ranking.
func (p *Progress) Update(metrics Metrics) {
	now := time.Now()
	if p.updateInterval > 0 && now.Sub(p.lastUpdate) < p.updateInterval && !metrics.Complete {
		return
	}
	p.lastUpdate = now
	p.current = &metrics

	if p.showBars {
		text := createProgressBar(float64(metrics.Percent)/100, metrics.Complete)
		text += fmt.Sprintf("\n[white]%d / %d comparisons", metrics.Done, metrics.Total)
		p.progressBar.SetText(text)
	}
	if p.showAccuracy {
		text := createProgressBar(float64(metrics.Accuracy)/100, metrics.Accuracy >= 90)
		text += fmt.Sprintf("\n[white]%d%% accuracy", metrics.Accuracy)
		p.accuracyBar.SetText(text)
	}
	if p.showEstimates {
		p.updateStatusDisplay(metrics)
	}

	if metrics.Complete && !p.completed && p.onComplete != nil {
		p.onComplete(metrics.Accuracy)
	}
	p.completed = metrics.Complete

	if p.onUpdate != nil {
		p.onUpdate(metrics)
	}
}

// updateStatusDisplay refreshes the status text view
func (p *Progress) updateStatusDisplay(metrics Metrics) {
	var builder strings.Builder

	builder.WriteString(fmt.Sprintf("Remaining: [yellow]%d[white] comparisons\n", metrics.Remaining))

	if metrics.Done > 0 && metrics.Elapsed > 0 {
		perComparison := metrics.Elapsed / time.Duration(metrics.Done)
		builder.WriteString(fmt.Sprintf("Per comparison: [cyan]%s[white]\n", formatDuration(perComparison)))
		if metrics.Remaining > 0 {
			builder.WriteString(fmt.Sprintf("Estimated time: [cyan]%s[white]\n",
				formatDuration(perComparison*time.Duration(metrics.Remaining))))
		}
	}
	if metrics.Elapsed > 0 {
		builder.WriteString(fmt.Sprintf("Session time: [blue]%s[white]\n", formatDuration(metrics.Elapsed)))
	}

	builder.WriteString(fmt.Sprintf("\nStatus: %s\n", statusText(metrics)))
	if advice := recommendation(metrics); advice != "" {
		builder.WriteString(fmt.Sprintf("\n[green]Tip:[white]\n%s", advice))
	}

	p.statusText.SetText(builder.String())
}

// statusText returns a human-readable stage of the ranking
func statusText(metrics Metrics) string {
	switch {
	case metrics.Complete:
		return "[green]Complete[white]"
	case metrics.Percent < 30:
		return "[red]Early Stage[white]"
	case metrics.Percent < 70:
		return "[yellow]Progressing[white]"
	default:
		return "[blue]Nearly Done[white]"
	}
}

// recommendation provides an actionable hint
func recommendation(metrics Metrics) string {
	switch {
	case metrics.Complete:
		return "Ranking complete. Review the results and export them."
	case metrics.Done == 0:
		return "Pick the entry you like more. Skip pairs you cannot decide."
	case metrics.Accuracy < 50:
		return "Ratings are still rough. Keep comparing."
	default:
		return "Ratings are settling. A few more comparisons will firm them up."
	}
}

// GetContainer returns the main container for embedding in other views
func (p *Progress) GetContainer() tview.Primitive {
	return p.container
}

// GetMetrics returns the last displayed metrics, nil before the first update
func (p *Progress) GetMetrics() *Metrics {
	return p.current
}

// createProgressBar creates a visual progress bar using text characters
func createProgressBar(progress float64, isComplete bool) string {
	const barWidth = 30
	progress = max(0, min(1, progress))
	filledWidth := int(progress * barWidth)

	color := "[blue]"
	if isComplete {
		color = "[green]"
	}

	return color + strings.Repeat("█", filledWidth) + "[gray]" + strings.Repeat("░", barWidth-filledWidth) + "[white]"
}

// formatDuration formats a duration for display
func formatDuration(d time.Duration) string {
	if d < time.Minute {
		return fmt.Sprintf("%.0fs", d.Seconds())
	}
	if d < time.Hour {
		minutes := int(d.Minutes())
		seconds := int(d.Seconds()) - (minutes * 60)
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) - (hours * 60)
	return fmt.Sprintf("%dh %dm", hours, minutes)
}
