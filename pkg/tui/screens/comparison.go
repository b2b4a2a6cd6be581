// Package screens provides the TUI screens for list ranking.
// This file implements the comparison screen where the user picks the
// preferred entry of each scheduled pair.
package screens

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pashagolub/listrank/pkg/images"
	"github.com/pashagolub/listrank/pkg/ranking"
	"github.com/pashagolub/listrank/pkg/session"
	"github.com/pashagolub/listrank/pkg/tui/components"
)

// ComparisonScreen shows the current pair side by side
type ComparisonScreen struct {
	// UI components
	container    *tview.Flex
	leftPanel    *tview.Flex
	rightPanel   *tview.Flex
	cardsPanel   *tview.Flex
	leftCard     *tview.TextView
	rightCard    *tview.TextView
	controlPanel *tview.TextView
	progress     *components.Progress
	upcoming     *components.Carousel
	statusBar    *tview.TextView

	// Comparison state
	pair      ranking.Pair
	hasPair   bool
	lastError error
	started   time.Time

	// App reference, asserted to the small interfaces it needs
	app any
}

// upcomingPreview is the number of entries shown in the "up next" carousel
const upcomingPreview = 5

// NewComparisonScreen creates a new comparison screen instance
func NewComparisonScreen(progressConfig components.ProgressConfig) *ComparisonScreen {
	cs := &ComparisonScreen{
		container:    tview.NewFlex(),
		leftPanel:    tview.NewFlex(),
		rightPanel:   tview.NewFlex(),
		cardsPanel:   tview.NewFlex(),
		leftCard:     tview.NewTextView(),
		rightCard:    tview.NewTextView(),
		controlPanel: tview.NewTextView(),
		progress:     components.NewProgress(progressConfig),
		statusBar:    tview.NewTextView(),
		started:      time.Now(),
	}

	carouselConfig := components.DefaultCarouselConfig()
	carouselConfig.ImageURL = func(id int) (string, bool) {
		if sess := cs.getSession(); sess != nil {
			return sess.ImageURL(id)
		}
		return "", false
	}
	cs.upcoming = components.NewCarousel(carouselConfig)

	cs.setupUI()
	return cs
}

// setupUI initializes the comparison screen layout
func (cs *ComparisonScreen) setupUI() {
	cs.container.SetDirection(tview.FlexColumn)

	cs.leftPanel.SetDirection(tview.FlexRow).
		SetBorder(true).
		SetTitle("Which do you prefer?").
		SetBorderColor(tcell.ColorBlue)

	cs.rightPanel.SetDirection(tview.FlexRow).
		SetBorder(true).
		SetTitle("Controls").
		SetBorderColor(tcell.ColorGreen)

	for i, card := range []*tview.TextView{cs.leftCard, cs.rightCard} {
		card.SetBorder(true)
		card.SetTitle(fmt.Sprintf(" %d ", i+1))
		card.SetWordWrap(true)
		card.SetDynamicColors(true)
		cs.cardsPanel.AddItem(card, 0, 1, false)
	}

	cs.controlPanel.
		SetBorder(true).
		SetTitle("Instructions")
	cs.controlPanel.SetWordWrap(true)
	cs.controlPanel.SetDynamicColors(true)

	cs.statusBar.
		SetBorder(true).
		SetTitle("Status")
	cs.statusBar.SetDynamicColors(true)

	cs.leftPanel.AddItem(cs.cardsPanel, 0, 1, false)

	cs.rightPanel.
		AddItem(cs.controlPanel, 11, 0, false).
		AddItem(cs.progress.GetContainer(), 0, 1, false).
		AddItem(cs.upcoming.GetPrimitive(), 8, 0, false).
		AddItem(cs.statusBar, 3, 0, false)

	cs.container.
		AddItem(cs.leftPanel, 0, 70, true).
		AddItem(cs.rightPanel, 0, 30, false)

	cs.container.SetInputCapture(cs.handleInput)

	cs.updateInstructions()
}

// GetPrimitive returns the main container primitive
func (cs *ComparisonScreen) GetPrimitive() tview.Primitive {
	return cs.container
}

// OnEnter is called when the screen becomes active
func (cs *ComparisonScreen) OnEnter(app any) error {
	cs.app = app
	if cs.getSession() == nil {
		return fmt.Errorf("no active session")
	}
	cs.Refresh()
	return nil
}

// OnExit is called when leaving the screen
func (cs *ComparisonScreen) OnExit(app any) error {
	return nil
}

// GetTitle returns the screen title
func (cs *ComparisonScreen) GetTitle() string {
	return "Comparison"
}

// handleInput processes keyboard input for the comparison screen
func (cs *ComparisonScreen) handleInput(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyLeft:
		cs.choose(0)
		return nil
	case tcell.KeyRight:
		cs.choose(1)
		return nil
	case tcell.KeyBackspace, tcell.KeyBackspace2:
		cs.apply((*session.Session).Undo)
		return nil
	}

	switch event.Rune() {
	case '1', 'h':
		cs.choose(0)
		return nil
	case '2', 'l':
		cs.choose(1)
		return nil
	case 's', ' ':
		cs.apply((*session.Session).Skip)
		return nil
	case 'u':
		cs.apply((*session.Session).Undo)
		return nil
	case 'r':
		cs.apply((*session.Session).Redo)
		return nil
	case 'd':
		cs.toggleDisplayMode()
		return nil
	case '[':
		cs.upcoming.Previous()
		return nil
	case ']':
		cs.upcoming.Next()
		return nil
	case 'p':
		cs.upcoming.ToggleExpandedView()
		return nil
	}

	return event
}

// choose resolves the current pair in favour of one side
func (cs *ComparisonScreen) choose(side int) {
	sess := cs.getSession()
	if sess == nil || !cs.hasPair {
		return
	}
	cs.apply(func(s *session.Session) error { return s.ChooseSide(side) })
}

// apply runs a session action and refreshes the screen
func (cs *ComparisonScreen) apply(action func(*session.Session) error) {
	sess := cs.getSession()
	if sess == nil {
		return
	}
	cs.lastError = action(sess)
	if errors.Is(cs.lastError, session.ErrNoComparison) {
		cs.lastError = nil
	}
	cs.Refresh()
}

// toggleDisplayMode switches between z-score and distribution ratings
func (cs *ComparisonScreen) toggleDisplayMode() {
	sess := cs.getSession()
	if sess == nil {
		return
	}
	engine := sess.Engine()
	next := ranking.DisplayDistribution
	if engine.DisplayMode() == ranking.DisplayDistribution {
		next = ranking.DisplayZScore
	}
	cs.lastError = engine.SetDisplayMode(next)
	cs.Refresh()
}

// Refresh redraws the screen from the session state
func (cs *ComparisonScreen) Refresh() {
	sess := cs.getSession()
	if sess == nil {
		return
	}
	cs.pair, cs.hasPair = sess.Engine().CurrentPair()

	if cs.hasPair {
		cs.leftCard.SetText(cs.formatItem(sess, cs.pair.Left))
		cs.rightCard.SetText(cs.formatItem(sess, cs.pair.Right))
	} else {
		cs.showCompletionMessage(sess)
	}

	cs.upcoming.SetItems(sess.Engine().UpcomingCandidates(upcomingPreview))

	cs.updateInstructions()
	cs.updateProgress(sess)
	cs.updateStatus(sess)
}

// ImageReady updates a card when cover art for one of the shown items arrives
func (cs *ComparisonScreen) ImageReady(id int) {
	if cs.hasPair && (cs.pair.Left.ID == id || cs.pair.Right.ID == id) {
		cs.Refresh()
		return
	}
	if item, ok := cs.upcoming.Current(); ok && item.ID == id {
		cs.upcoming.Refresh()
	}
}

// formatItem creates formatted text for an item card
func (cs *ComparisonScreen) formatItem(sess *session.Session, item ranking.Item) string {
	var content strings.Builder

	content.WriteString(fmt.Sprintf("[white::b]%s[white::-]\n\n", tview.Escape(item.Title)))
	content.WriteString(fmt.Sprintf("[yellow]ID:[-] %d\n", item.ID))

	if url, ok := sess.ImageURL(item.ID); ok && url != "" {
		content.WriteString(fmt.Sprintf("[green]Cover:[-] %s\n", tview.Escape(url)))
	} else if _, hasMedia := images.MediaFor(sess.Kind()); hasMedia {
		content.WriteString("[dim]Cover: loading...[-]\n")
	}

	content.WriteString(fmt.Sprintf("\n[blue]Record:[-] %d wins, %d losses", item.Wins, item.Losses))
	return content.String()
}

// showCompletionMessage fills the cards once the budget is spent
func (cs *ComparisonScreen) showCompletionMessage(sess *session.Session) {
	state := sess.Engine().State()

	if len(sess.Engine().Items()) < 2 {
		cs.leftCard.SetText("[yellow]Nothing to compare.[-]\n\nThe list needs at least two entries.")
		cs.rightCard.SetText("")
		return
	}

	cs.leftCard.SetText(fmt.Sprintf(
		"[green::b]Ranking complete![white::-]\n\nAll %d comparisons are done.\n\n[yellow]Options:[-]\n  [blue]v[-] - View rankings\n  [blue]e[-] - Export ratings\n  [blue]u[-] - Undo the last choice\n  [blue]Ctrl+C[-] - Exit",
		state.ComparisonsDone))

	top := sess.Ratings()
	var summary strings.Builder
	summary.WriteString("[blue::b]Top entries[white::-]\n\n")
	for i, item := range top {
		if i == 5 {
			break
		}
		summary.WriteString(fmt.Sprintf("%d. %s [yellow]%.1f[-]\n", i+1, tview.Escape(item.Title), item.Rating))
	}
	summary.WriteString(fmt.Sprintf("\n[yellow]Accuracy:[-] %d%%", sess.Engine().Accuracy()))
	cs.rightCard.SetText(summary.String())
}

// updateInstructions updates the control panel with current key bindings
func (cs *ComparisonScreen) updateInstructions() {
	var instructions strings.Builder

	instructions.WriteString("[white]Pick the entry you prefer:[-]\n")
	instructions.WriteString("  [yellow]1[-] / [yellow]h[-] / [yellow]←[-] - Left\n")
	instructions.WriteString("  [yellow]2[-] / [yellow]l[-] / [yellow]→[-] - Right\n")
	instructions.WriteString("  [yellow]s[-] - Skip this pair\n")
	instructions.WriteString("  [yellow]u[-] - Undo  [yellow]r[-] - Redo\n")
	instructions.WriteString("  [yellow]d[-] - Toggle rating scale\n")
	instructions.WriteString("  [yellow][[-] / [yellow]][-] - Browse up next, [yellow]p[-] details\n")
	instructions.WriteString("\n[blue]v[-] rankings  [blue]e[-] export  [blue]?[-] help")

	cs.controlPanel.SetText(instructions.String())
}

// updateProgress feeds the progress panel
func (cs *ComparisonScreen) updateProgress(sess *session.Session) {
	engine := sess.Engine()
	cs.progress.Update(components.NewMetrics(engine.State(), engine.Accuracy(), time.Since(cs.started)))
}

// updateStatus updates the status line
func (cs *ComparisonScreen) updateStatus(sess *session.Session) {
	if cs.lastError != nil {
		cs.statusBar.SetText(fmt.Sprintf("[red]%v[-]", cs.lastError))
		return
	}

	engine := sess.Engine()
	status := fmt.Sprintf("Entries: %d | Scale: %s", len(engine.Items()), engine.DisplayMode())
	if engine.CanUndo() {
		status += " | u: undo"
	}
	if engine.CanRedo() {
		status += " | r: redo"
	}
	cs.statusBar.SetText(status)
}

// getSession gets the current session from the app
func (cs *ComparisonScreen) getSession() *session.Session {
	if app, ok := cs.app.(interface{ GetSession() *session.Session }); ok {
		return app.GetSession()
	}
	return nil
}
