// Package screens provides the TUI screens for list ranking.
// This file implements the ranking screen where users view current ratings,
// filter and sort them, and trigger exports.
package screens

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pashagolub/listrank/pkg/journal"
	"github.com/pashagolub/listrank/pkg/ranking"
	"github.com/pashagolub/listrank/pkg/session"
)

// SortOrder represents the sorting direction for rankings
type SortOrder int

const (
	SortAsc SortOrder = iota
	SortDesc
)

// SortField represents the field to sort rankings by
type SortField int

const (
	SortByRank SortField = iota
	SortByRating
	SortByTitle
	SortByConfidence
	SortByComparisons
)

var sortFieldNames = []string{"Rank", "Rating", "Title", "Confidence", "Comparisons"}

// String returns the column name of the field
func (f SortField) String() string {
	if int(f) < len(sortFieldNames) {
		return sortFieldNames[f]
	}
	return "Unknown"
}

// FilterCriteria holds the current filtering settings
type FilterCriteria struct {
	SearchText    string  // Text to search in titles
	MinRating     float64 // Minimum display rating
	MaxRating     float64 // Maximum display rating
	MinConfidence float64 // Minimum confidence in percent
}

func defaultFilter() FilterCriteria {
	return FilterCriteria{MinRating: 0, MaxRating: ranking.MaxDisplayRating}
}

// rankedRow is an item with its overall rank and confidence
type rankedRow struct {
	ranking.Item
	Rank       int
	Confidence float64 // percent
}

// RankingScreen implements the ranking display interface
type RankingScreen struct {
	// UI components
	container     *tview.Flex
	mainLayout    *tview.Flex
	sidebarLayout *tview.Flex

	// Main ranking display
	rankingTable *tview.Table

	// Sidebar components
	filterForm      *tview.Form
	detailsPanel    *tview.TextView
	exportPanel     *tview.TextView
	statisticsPanel *tview.TextView

	// Control panels
	statusBar *tview.TextView
	helpBar   *tview.TextView

	// Current state
	rows        []rankedRow
	filtered    []rankedRow
	sortField   SortField
	sortOrder   SortOrder
	filter      FilterCriteria
	selectedRow int

	// App reference
	app any
}

const exportHint = "[yellow]Press 'e' to export ratings[white]\n\nFormats: csv, json, text,\nmal-json, mal-xml"

// NewRankingScreen creates a new ranking screen instance
func NewRankingScreen() *RankingScreen {
	rs := &RankingScreen{
		container:       tview.NewFlex(),
		mainLayout:      tview.NewFlex(),
		sidebarLayout:   tview.NewFlex(),
		rankingTable:    tview.NewTable(),
		filterForm:      tview.NewForm(),
		detailsPanel:    tview.NewTextView(),
		exportPanel:     tview.NewTextView(),
		statisticsPanel: tview.NewTextView(),
		statusBar:       tview.NewTextView(),
		helpBar:         tview.NewTextView(),
		sortField:       SortByRank,
		sortOrder:       SortAsc,
		filter:          defaultFilter(),
	}

	rs.setupUI()
	rs.setupKeyBindings()

	return rs
}

// GetPrimitive returns the main primitive for the ranking screen
func (rs *RankingScreen) GetPrimitive() tview.Primitive {
	return rs.container
}

// OnEnter is called when the ranking screen becomes active
func (rs *RankingScreen) OnEnter(app any) error {
	rs.app = app

	if err := rs.loadRatings(); err != nil {
		return fmt.Errorf("failed to load ratings: %w", err)
	}

	rs.applyFilterAndSort()
	rs.updateDisplay()
	rs.updateStatistics()

	return nil
}

// OnExit is called when leaving the ranking screen
func (rs *RankingScreen) OnExit(app any) error {
	return nil
}

// GetTitle returns the screen title
func (rs *RankingScreen) GetTitle() string {
	if len(rs.filtered) != len(rs.rows) {
		return fmt.Sprintf("Rankings (%d/%d entries)", len(rs.filtered), len(rs.rows))
	}
	return fmt.Sprintf("Rankings (%d entries)", len(rs.rows))
}

// setupUI initializes the user interface layout
func (rs *RankingScreen) setupUI() {
	rs.rankingTable.SetBorder(true).
		SetTitle(" Rankings ").
		SetTitleAlign(tview.AlignLeft)
	rs.rankingTable.SetSelectable(true, false)
	rs.rankingTable.SetFixed(1, 0)
	rs.rankingTable.SetSelectionChangedFunc(func(row, _ int) {
		if row > 0 {
			rs.selectedRow = row - 1
			rs.showDetails()
		}
	})

	rs.setupTableHeaders()
	rs.setupFilterForm()

	rs.detailsPanel.SetBorder(true).
		SetTitle(" Details ").
		SetTitleAlign(tview.AlignLeft)
	rs.detailsPanel.SetDynamicColors(true).SetWordWrap(true)

	rs.exportPanel.SetBorder(true).
		SetTitle(" Export ").
		SetTitleAlign(tview.AlignLeft)
	rs.exportPanel.SetDynamicColors(true).SetText(exportHint)

	rs.statisticsPanel.SetBorder(true).
		SetTitle(" Statistics ").
		SetTitleAlign(tview.AlignLeft)
	rs.statisticsPanel.SetDynamicColors(true)

	rs.statusBar.SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)

	rs.helpBar.SetDynamicColors(true).
		SetTextAlign(tview.AlignCenter).
		SetText("[gray]e:Export  s:Sort  o:Order  f:Filter  x:Clear  q:Back[white]")

	rs.sidebarLayout.SetDirection(tview.FlexRow).
		AddItem(rs.filterForm, 11, 0, false).
		AddItem(rs.detailsPanel, 0, 1, false).
		AddItem(rs.exportPanel, 6, 0, false).
		AddItem(rs.statisticsPanel, 0, 1, false)

	rs.mainLayout.SetDirection(tview.FlexColumn).
		AddItem(rs.rankingTable, 0, 3, true).
		AddItem(rs.sidebarLayout, 40, 1, false)

	rs.container.SetDirection(tview.FlexRow).
		AddItem(rs.mainLayout, 0, 1, true).
		AddItem(rs.statusBar, 1, 1, false).
		AddItem(rs.helpBar, 1, 1, false)
}

// setupTableHeaders configures the ranking table headers
func (rs *RankingScreen) setupTableHeaders() {
	headers := []string{"Rank", "Rating", "Confidence", "Title", "Record"}
	for col, header := range headers {
		cell := tview.NewTableCell(header).
			SetTextColor(tcell.ColorYellow).
			SetAlign(tview.AlignCenter).
			SetSelectable(false).
			SetExpansion(1)
		if col == 3 {
			cell.SetExpansion(4)
		}
		rs.rankingTable.SetCell(0, col, cell)
	}
}

// setupFilterForm configures the filter form
func (rs *RankingScreen) setupFilterForm() {
	rs.filterForm.SetBorder(true).
		SetTitle(" Filters ").
		SetTitleAlign(tview.AlignLeft)

	rs.filterForm.AddInputField("Search:", "", 24, nil, func(text string) {
		rs.filter.SearchText = text
		rs.refilter()
	})
	rs.filterForm.AddInputField("Min Rating:", "0", 6, tview.InputFieldFloat, func(text string) {
		if value, err := strconv.ParseFloat(text, 64); err == nil {
			rs.filter.MinRating = value
			rs.refilter()
		}
	})
	rs.filterForm.AddInputField("Max Rating:", strconv.Itoa(ranking.MaxDisplayRating), 6, tview.InputFieldFloat, func(text string) {
		if value, err := strconv.ParseFloat(text, 64); err == nil {
			rs.filter.MaxRating = value
			rs.refilter()
		}
	})
	rs.filterForm.AddInputField("Min Confidence:", "0", 6, tview.InputFieldFloat, func(text string) {
		if value, err := strconv.ParseFloat(text, 64); err == nil {
			rs.filter.MinConfidence = value
			rs.refilter()
		}
	})
	rs.filterForm.SetCancelFunc(rs.focusTable)
}

// setupKeyBindings configures keyboard shortcuts
func (rs *RankingScreen) setupKeyBindings() {
	rs.rankingTable.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEsc {
			rs.goBack()
			return nil
		}

		switch event.Rune() {
		case 's':
			rs.cycleSortField()
			return nil
		case 'o':
			rs.toggleSortOrder()
			return nil
		case 'f':
			rs.focusFilterForm()
			return nil
		case 'x':
			rs.clearFilters()
			return nil
		case 'q':
			rs.goBack()
			return nil
		}

		return event
	})
}

// loadRatings pulls the current ratings from the session
func (rs *RankingScreen) loadRatings() error {
	app, ok := rs.app.(interface{ GetSession() *session.Session })
	if !ok || app.GetSession() == nil {
		return fmt.Errorf("no active session")
	}
	sess := app.GetSession()

	items := sess.Ratings()
	accuracy := sess.Engine().Accuracy()
	rs.rows = make([]rankedRow, len(items))
	for i, item := range items {
		rs.rows[i] = rankedRow{
			Item:       item,
			Rank:       i + 1,
			Confidence: journal.ItemConfidence(accuracy, item.Comparisons, len(items)) * 100,
		}
	}
	return nil
}

// refilter reapplies the filter after a form change
func (rs *RankingScreen) refilter() {
	rs.applyFilterAndSort()
	rs.updateDisplay()
	rs.updateStatistics()
}

// applyFilterAndSort applies current filter criteria and sorts the results
func (rs *RankingScreen) applyFilterAndSort() {
	rs.filtered = make([]rankedRow, 0, len(rs.rows))
	for _, row := range rs.rows {
		if rs.matchesFilter(row) {
			rs.filtered = append(rs.filtered, row)
		}
	}
	rs.sortRows()
}

// matchesFilter checks if a row matches the current filter criteria
func (rs *RankingScreen) matchesFilter(row rankedRow) bool {
	if rs.filter.SearchText != "" &&
		!strings.Contains(strings.ToLower(row.Title), strings.ToLower(rs.filter.SearchText)) {
		return false
	}
	if row.Rating < rs.filter.MinRating || row.Rating > rs.filter.MaxRating {
		return false
	}
	return row.Confidence >= rs.filter.MinConfidence
}

// sortRows sorts the filtered rows by the current sort criteria
func (rs *RankingScreen) sortRows() {
	sort.SliceStable(rs.filtered, func(i, j int) bool {
		a, b := rs.filtered[i], rs.filtered[j]
		if rs.sortOrder == SortDesc {
			a, b = b, a
		}
		var less bool
		switch rs.sortField {
		case SortByRank:
			less = a.Rank < b.Rank
		case SortByRating:
			less = a.Rating > b.Rating
		case SortByTitle:
			less = strings.ToLower(a.Title) < strings.ToLower(b.Title)
		case SortByConfidence:
			less = a.Confidence > b.Confidence
		case SortByComparisons:
			less = a.Comparisons > b.Comparisons
		}
		return less
	})
}

// updateDisplay refreshes the ranking table with current data
func (rs *RankingScreen) updateDisplay() {
	rs.rankingTable.Clear()
	rs.setupTableHeaders()

	for i, row := range rs.filtered {
		rs.addRow(i+1, row)
	}

	rs.updateStatusBar()

	if rs.selectedRow >= len(rs.filtered) {
		rs.selectedRow = len(rs.filtered) - 1
	}
	if rs.selectedRow < 0 {
		rs.selectedRow = 0
	}
	if len(rs.filtered) > 0 {
		rs.rankingTable.Select(rs.selectedRow+1, 0)
	}
	rs.showDetails()
}

// addRow adds a single row to the table
func (rs *RankingScreen) addRow(tableRow int, row rankedRow) {
	rs.rankingTable.SetCell(tableRow, 0,
		tview.NewTableCell(strconv.Itoa(row.Rank)).
			SetAlign(tview.AlignCenter).
			SetTextColor(tcell.ColorWhite))

	rs.rankingTable.SetCell(tableRow, 1,
		tview.NewTableCell(fmt.Sprintf("%.1f", row.Rating)).
			SetAlign(tview.AlignCenter).
			SetTextColor(ratingColor(row.Rating)))

	rs.rankingTable.SetCell(tableRow, 2,
		tview.NewTableCell(fmt.Sprintf("%.0f%%", row.Confidence)).
			SetAlign(tview.AlignCenter).
			SetTextColor(confidenceColor(row.Confidence)))

	title := []rune(row.Title)
	if len(title) > 48 {
		title = append(title[:45], []rune("...")...)
	}
	rs.rankingTable.SetCell(tableRow, 3,
		tview.NewTableCell(string(title)).
			SetAlign(tview.AlignLeft).
			SetTextColor(tcell.ColorWhite).
			SetExpansion(4))

	rs.rankingTable.SetCell(tableRow, 4,
		tview.NewTableCell(fmt.Sprintf("%d-%d", row.Wins, row.Losses)).
			SetAlign(tview.AlignCenter).
			SetTextColor(tcell.ColorLightBlue))
}

// ratingColor returns the color for a 1-10 rating
func ratingColor(rating float64) tcell.Color {
	switch {
	case rating >= 8:
		return tcell.ColorGreen
	case rating >= 5:
		return tcell.ColorYellow
	default:
		return tcell.ColorRed
	}
}

// confidenceColor returns the color for a confidence percentage
func confidenceColor(confidence float64) tcell.Color {
	switch {
	case confidence >= 75:
		return tcell.ColorGreen
	case confidence >= 50:
		return tcell.ColorYellow
	default:
		return tcell.ColorRed
	}
}

// showDetails describes the selected row, including its journal history
func (rs *RankingScreen) showDetails() {
	if len(rs.filtered) == 0 || rs.selectedRow >= len(rs.filtered) {
		rs.detailsPanel.SetText("[gray]Nothing selected[white]")
		return
	}
	row := rs.filtered[rs.selectedRow]

	var details strings.Builder
	details.WriteString(fmt.Sprintf("[white::b]%s[white::-]\n", tview.Escape(row.Title)))
	details.WriteString(fmt.Sprintf("ID: %d\nRating: %.1f\nStrength: %.3f\n", row.ID, row.Rating, row.Strength))
	details.WriteString(fmt.Sprintf("Record: %d wins, %d losses\n", row.Wins, row.Losses))
	if row.ImageURL != "" {
		details.WriteString(fmt.Sprintf("Cover: %s\n", tview.Escape(row.ImageURL)))
	}

	if app, ok := rs.app.(interface{ GetSession() *session.Session }); ok && app.GetSession() != nil {
		if trail := app.GetSession().Journal(); trail != nil {
			if history, err := trail.GetItemHistory(row.ID); err == nil {
				details.WriteString(fmt.Sprintf("Journal entries: %d\n", len(history)))
			}
		}
	}

	rs.detailsPanel.SetText(details.String())
}

// updateStatusBar updates the status bar with current information
func (rs *RankingScreen) updateStatusBar() {
	sortOrderName := map[SortOrder]string{SortAsc: "↑", SortDesc: "↓"}[rs.sortOrder]

	status := fmt.Sprintf("[blue]Showing %d/%d entries | Sort: %s %s",
		len(rs.filtered), len(rs.rows), rs.sortField, sortOrderName)
	if rs.filter.SearchText != "" {
		status += fmt.Sprintf(" | Search: '%s'", tview.Escape(rs.filter.SearchText))
	}
	rs.statusBar.SetText(status + "[white]")
}

// updateStatistics updates the statistics panel
func (rs *RankingScreen) updateStatistics() {
	if len(rs.filtered) == 0 {
		rs.statisticsPanel.SetText("[gray]No entries to show[white]")
		return
	}

	var total, lowest, highest, totalConf float64
	for i, row := range rs.filtered {
		total += row.Rating
		totalConf += row.Confidence
		if i == 0 || row.Rating < lowest {
			lowest = row.Rating
		}
		if i == 0 || row.Rating > highest {
			highest = row.Rating
		}
	}
	n := float64(len(rs.filtered))

	rs.statisticsPanel.SetText(fmt.Sprintf(`[yellow]Ratings:[white]
Average: %.2f
Range: %.1f - %.1f

[yellow]Confidence:[white]
Average: %.0f%%

[yellow]Entries:[white] %d of %d`,
		total/n, lowest, highest, totalConf/n, len(rs.filtered), len(rs.rows)))
}

// cycleSortField cycles through available sort fields
func (rs *RankingScreen) cycleSortField() {
	rs.sortField = SortField((int(rs.sortField) + 1) % len(sortFieldNames))
	rs.applyFilterAndSort()
	rs.updateDisplay()
}

// toggleSortOrder toggles between ascending and descending sort
func (rs *RankingScreen) toggleSortOrder() {
	if rs.sortOrder == SortAsc {
		rs.sortOrder = SortDesc
	} else {
		rs.sortOrder = SortAsc
	}
	rs.applyFilterAndSort()
	rs.updateDisplay()
}

// focusFilterForm moves focus to the filter form
func (rs *RankingScreen) focusFilterForm() {
	if app, ok := rs.app.(interface{ SetFocus(tview.Primitive) }); ok {
		app.SetFocus(rs.filterForm)
	}
}

// focusTable moves focus back to the table
func (rs *RankingScreen) focusTable() {
	if app, ok := rs.app.(interface{ SetFocus(tview.Primitive) }); ok {
		app.SetFocus(rs.rankingTable)
	}
}

// clearFilters resets all filter criteria
func (rs *RankingScreen) clearFilters() {
	rs.filter = defaultFilter()

	rs.filterForm.GetFormItemByLabel("Search:").(*tview.InputField).SetText("")
	rs.filterForm.GetFormItemByLabel("Min Rating:").(*tview.InputField).SetText("0")
	rs.filterForm.GetFormItemByLabel("Max Rating:").(*tview.InputField).SetText(strconv.Itoa(ranking.MaxDisplayRating))
	rs.filterForm.GetFormItemByLabel("Min Confidence:").(*tview.InputField).SetText("0")

	rs.refilter()
}

// ShowExportResult reports the outcome of an export in the export panel
func (rs *RankingScreen) ShowExportResult(path string, err error) {
	if err != nil {
		rs.exportPanel.SetText(fmt.Sprintf("[red]Export failed![white]\n\n%s", tview.Escape(err.Error())))
		return
	}
	rs.exportPanel.SetText(fmt.Sprintf("[green]Exported![white]\n\n%s", tview.Escape(path)))
}

// goBack returns to the comparison screen
func (rs *RankingScreen) goBack() {
	if app, ok := rs.app.(interface{ ShowComparison() error }); ok {
		_ = app.ShowComparison()
	}
}
