// Package tui provides the terminal user interface for list ranking.
// It implements the main application structure with screen management,
// keyboard shortcuts, export and the help system.
package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pashagolub/listrank/pkg/data"
	"github.com/pashagolub/listrank/pkg/journal"
	"github.com/pashagolub/listrank/pkg/session"
	"github.com/pashagolub/listrank/pkg/tui/components"
	"github.com/pashagolub/listrank/pkg/tui/screens"
)

// ErrNoSession is returned when the app is created without a session
var ErrNoSession = errors.New("session cannot be nil")

// ScreenType represents different screens in the TUI application
type ScreenType int

const (
	ScreenComparison ScreenType = iota
	ScreenRanking
	ScreenHelp
)

// String returns the string representation of ScreenType
func (s ScreenType) String() string {
	switch s {
	case ScreenComparison:
		return "comparison"
	case ScreenRanking:
		return "ranking"
	case ScreenHelp:
		return "help"
	default:
		return "unknown"
	}
}

// Screen interface defines the contract for all TUI screens
type Screen interface {
	// GetPrimitive returns the tview.Primitive for this screen
	GetPrimitive() tview.Primitive

	// OnEnter is called when the screen becomes active
	OnEnter(app any) error

	// OnExit is called when leaving the screen
	OnExit(app any) error

	// GetTitle returns the screen title for display
	GetTitle() string
}

// Options configures the application
type Options struct {
	Session    *session.Session
	UI         data.UIConfig
	Export     data.ExportConfig
	ExportPath string // destination of the export shortcut
	Logger     *slog.Logger
}

// AppState represents the current application state
type AppState struct {
	mu             sync.RWMutex
	session        *session.Session
	currentScreen  ScreenType
	previousScreen ScreenType
	isRunning      bool
	lastExportTime *time.Time
}

// App represents the main TUI application
type App struct {
	tviewApp   *tview.Application
	pages      *tview.Pages
	header     *tview.TextView
	footer     *tview.TextView
	state      *AppState
	screens    map[ScreenType]Screen
	ui         data.UIConfig
	export     data.ExportConfig
	exportPath string
	logger     *slog.Logger
	ctx        context.Context
	cancel     context.CancelFunc
	mu         sync.RWMutex
}

// KeyBinding represents a keyboard shortcut
type KeyBinding struct {
	Key         tcell.Key
	Rune        rune
	Description string
	Handler     func(app *App) error
}

// Global key bindings available across all screens
var globalKeyBindings = []KeyBinding{
	{Key: tcell.KeyCtrlC, Description: "Exit", Handler: (*App).Exit},
	{Key: tcell.KeyRune, Rune: 'v', Description: "Rankings", Handler: (*App).ShowRanking},
	{Key: tcell.KeyRune, Rune: 'c', Description: "Compare", Handler: (*App).ShowComparison},
	{Key: tcell.KeyRune, Rune: 'e', Description: "Export", Handler: (*App).exportFromKey},
	{Key: tcell.KeyRune, Rune: '?', Description: "Help", Handler: (*App).ShowHelp},
}

// NewApp creates a new TUI application instance
func NewApp(opts Options) (*App, error) {
	if opts.Session == nil {
		return nil, ErrNoSession
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	exportPath := opts.ExportPath
	if exportPath == "" {
		exportPath = DefaultExportPath(opts.Session.Key(), opts.Export.Format)
	}

	ctx, cancel := context.WithCancel(context.Background())

	app := &App{
		tviewApp: tview.NewApplication(),
		pages:    tview.NewPages(),
		header:   tview.NewTextView(),
		footer:   tview.NewTextView(),
		state: &AppState{
			session:       opts.Session,
			currentScreen: ScreenComparison,
		},
		screens:    make(map[ScreenType]Screen),
		ui:         opts.UI,
		export:     opts.Export,
		exportPath: exportPath,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	app.setupUI()
	return app, nil
}

// DefaultExportPath names the export file after the progress key
func DefaultExportPath(key, format string) string {
	ext := "csv"
	switch journal.ExportFormat(format) {
	case journal.FormatJSON, journal.FormatMALJSON:
		ext = "json"
	case journal.FormatText:
		ext = "txt"
	case journal.FormatMALXML:
		ext = "xml"
	}
	if key == "" {
		key = "ratings"
	}
	return fmt.Sprintf("%s-ratings.%s", key, ext)
}

// setupUI initializes the UI components and layout
func (a *App) setupUI() {
	a.header.SetBorder(true).
		SetTitle("List Ranking").
		SetTitleAlign(tview.AlignCenter).
		SetBackgroundColor(tcell.ColorDarkBlue)
	a.header.SetTextColor(tcell.ColorWhite)

	a.footer.SetBorder(true).
		SetTitle("Keyboard Shortcuts").
		SetTitleAlign(tview.AlignCenter).
		SetBackgroundColor(tcell.ColorDarkGreen)
	a.footer.SetTextColor(tcell.ColorWhite)

	a.updateFooter()

	mainLayout := tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 3, 0, false).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.footer, 3, 0, false)
	mainLayout.SetInputCapture(a.handleGlobalInput)

	a.tviewApp.SetRoot(mainLayout, true)
	a.tviewApp.EnableMouse(true)
	a.tviewApp.SetBeforeDrawFunc(func(screen tcell.Screen) bool {
		a.updateHeader()
		return false
	})
}

// RegisterDefaultScreens registers the comparison, ranking and help screens
// and routes session events to them
func (a *App) RegisterDefaultScreens() error {
	progressConfig := components.DefaultProgressConfig()
	progressConfig.ShowBars = a.ui.ShowProgress
	progressConfig.ShowAccuracy = a.ui.ShowAccuracy
	progressConfig.OnComplete = a.onRankingComplete

	comparison := screens.NewComparisonScreen(progressConfig)
	for screenType, screen := range map[ScreenType]Screen{
		ScreenComparison: comparison,
		ScreenRanking:    screens.NewRankingScreen(),
		ScreenHelp:       NewHelpScreen(),
	} {
		if err := a.RegisterScreen(screenType, screen); err != nil {
			return err
		}
	}

	a.GetSession().OnImage(func(id int, _ string) {
		a.queueUpdate(func() { comparison.ImageReady(id) })
	})
	return nil
}

// RegisterScreen registers a screen with the application
func (a *App) RegisterScreen(screenType ScreenType, screen Screen) error {
	if screen == nil {
		return fmt.Errorf("screen cannot be nil")
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	a.screens[screenType] = screen
	a.pages.AddPage(screenType.String(), screen.GetPrimitive(), true, false)

	return nil
}

// NavigateTo switches to the specified screen
func (a *App) NavigateTo(screenType ScreenType) error {
	a.mu.RLock()
	screen, exists := a.screens[screenType]
	a.mu.RUnlock()
	if !exists {
		return fmt.Errorf("screen %s not registered", screenType.String())
	}

	a.state.mu.RLock()
	previousScreen := a.state.currentScreen
	a.state.mu.RUnlock()

	a.mu.RLock()
	currentScreen, hasCurrentScreen := a.screens[previousScreen]
	a.mu.RUnlock()

	// screens call back into the app, so no lock is held here
	if hasCurrentScreen && previousScreen != screenType {
		if err := currentScreen.OnExit(a); err != nil {
			return fmt.Errorf("failed to exit screen %s: %w", previousScreen.String(), err)
		}
	}

	if err := screen.OnEnter(a); err != nil {
		return fmt.Errorf("failed to enter screen %s: %w", screenType.String(), err)
	}

	a.state.mu.Lock()
	if previousScreen != screenType {
		a.state.previousScreen = previousScreen
	}
	a.state.currentScreen = screenType
	a.state.mu.Unlock()

	a.pages.SwitchToPage(screenType.String())
	a.tviewApp.SetFocus(screen.GetPrimitive())

	return nil
}

// ShowRanking displays the ranking screen
func (a *App) ShowRanking() error {
	return a.NavigateTo(ScreenRanking)
}

// ShowComparison displays the comparison screen
func (a *App) ShowComparison() error {
	return a.NavigateTo(ScreenComparison)
}

// ShowHelp displays the help screen
func (a *App) ShowHelp() error {
	return a.NavigateTo(ScreenHelp)
}

// GoBack returns to the previously shown screen
func (a *App) GoBack() error {
	a.state.mu.RLock()
	previous := a.state.previousScreen
	a.state.mu.RUnlock()
	return a.NavigateTo(previous)
}

// Exit stops the application
func (a *App) Exit() error {
	a.state.mu.Lock()
	defer a.state.mu.Unlock()

	a.state.isRunning = false
	a.cancel()
	a.tviewApp.Stop()

	return nil
}

// ExportRankings writes the current ratings to the export path and returns it
func (a *App) ExportRankings() (string, error) {
	sess := a.GetSession()

	options := journal.ExportOptions{
		Format:        journal.ExportFormat(a.export.Format),
		RoundDecimals: a.export.RoundDecimals,
		IncludeStats:  true,
	}
	if options.Format == "" {
		options.Format = journal.FormatCSV
	}

	if err := sess.ExportToFile(a.exportPath, options); err != nil {
		a.logger.Error("export failed", "path", a.exportPath, "error", err)
		return "", fmt.Errorf("failed to export ratings: %w", err)
	}

	now := time.Now()
	a.state.mu.Lock()
	a.state.lastExportTime = &now
	a.state.mu.Unlock()

	return a.exportPath, nil
}

// exportFromKey exports and reports the outcome on the active screen
func (a *App) exportFromKey() error {
	path, err := a.ExportRankings()

	a.mu.RLock()
	screen := a.screens[a.GetCurrentScreen()]
	a.mu.RUnlock()
	if reporter, ok := screen.(interface{ ShowExportResult(string, error) }); ok {
		reporter.ShowExportResult(path, err)
		return err
	}
	if err != nil {
		a.showErrorDialog("Export Failed", err.Error())
		return err
	}
	a.showInfoDialog("Export", fmt.Sprintf("Ratings written to\n\n%s", path))
	return nil
}

// onRankingComplete journals the final ratings once the budget is spent
func (a *App) onRankingComplete(accuracy int) {
	if _, err := a.GetSession().Finalize(); err != nil {
		a.logger.Warn("failed to finalize ratings", "error", err)
		return
	}
	a.logger.Info("ranking complete", "accuracy", accuracy)
}

// Run starts the TUI application
func (a *App) Run() error {
	a.state.mu.Lock()
	a.state.isRunning = true
	a.state.mu.Unlock()

	if err := a.NavigateTo(ScreenComparison); err != nil {
		return fmt.Errorf("failed to navigate to comparison screen: %w", err)
	}

	defer func() {
		a.state.mu.Lock()
		a.state.isRunning = false
		a.state.mu.Unlock()
	}()
	return a.tviewApp.Run()
}

// Stop gracefully stops the application
func (a *App) Stop() {
	if a.IsRunning() {
		_ = a.Exit()
	}
}

// Context is cancelled when the application exits
func (a *App) Context() context.Context {
	return a.ctx
}

// GetSession returns the current session
func (a *App) GetSession() *session.Session {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.session
}

// SetFocus moves keyboard focus to a primitive
func (a *App) SetFocus(p tview.Primitive) {
	a.tviewApp.SetFocus(p)
}

// GetTViewApp returns the underlying tview application for advanced usage
func (a *App) GetTViewApp() *tview.Application {
	return a.tviewApp
}

// queueUpdate runs fn on the UI goroutine when the app is running
func (a *App) queueUpdate(fn func()) {
	if a.IsRunning() {
		a.tviewApp.QueueUpdateDraw(fn)
		return
	}
	fn()
}

// handleGlobalInput handles global keyboard shortcuts
func (a *App) handleGlobalInput(event *tcell.EventKey) *tcell.EventKey {
	if event.Key() == tcell.KeyRune {
		if _, typing := a.tviewApp.GetFocus().(*tview.InputField); typing {
			return event
		}
	}

	for _, binding := range globalKeyBindings {
		if (binding.Key != tcell.KeyRune && event.Key() == binding.Key) ||
			(binding.Key == tcell.KeyRune && event.Key() == tcell.KeyRune && event.Rune() == binding.Rune) {
			if err := binding.Handler(a); err != nil {
				a.logger.Debug("key binding failed", "description", binding.Description, "error", err)
			}
			return nil
		}
	}

	return event
}

// updateHeader updates the header text with current screen information
func (a *App) updateHeader() {
	a.state.mu.RLock()
	currentScreen := a.state.currentScreen
	sess := a.state.session
	lastExport := a.state.lastExportTime
	a.state.mu.RUnlock()

	a.mu.RLock()
	screen, exists := a.screens[currentScreen]
	a.mu.RUnlock()
	if !exists {
		return
	}

	state := sess.Engine().State()
	sessionInfo := fmt.Sprintf(" | List: %s (%s) | %d/%d comparisons",
		sess.Key(), sess.Kind(), state.ComparisonsDone, state.TotalComparisons)

	exportStatus := " | Not exported yet"
	if lastExport != nil {
		elapsed := time.Since(*lastExport)
		switch {
		case elapsed < time.Minute:
			exportStatus = fmt.Sprintf(" | Last exported: %ds ago", int(elapsed.Seconds()))
		case elapsed < time.Hour:
			exportStatus = fmt.Sprintf(" | Last exported: %dm ago", int(elapsed.Minutes()))
		default:
			exportStatus = fmt.Sprintf(" | Last exported: %s", lastExport.Format("15:04"))
		}
	}

	a.header.SetText(fmt.Sprintf("Screen: %s%s%s", screen.GetTitle(), sessionInfo, exportStatus))
}

// showErrorDialog displays an error message in a modal dialog
func (a *App) showErrorDialog(title, message string) {
	a.showDialog("error-dialog", title, message, tcell.ColorDarkRed)
}

// showInfoDialog displays an informational modal dialog
func (a *App) showInfoDialog(title, message string) {
	a.showDialog("info-dialog", title, message, tcell.ColorDarkBlue)
}

func (a *App) showDialog(name, title, message string, color tcell.Color) {
	modal := tview.NewModal().
		SetText(message).
		AddButtons([]string{"OK"}).
		SetDoneFunc(func(int, string) {
			a.pages.RemovePage(name)
		})

	modal.SetTitle(title).
		SetBorder(true).
		SetBackgroundColor(color)

	a.pages.AddPage(name, modal, true, true)
}

// updateFooter updates the footer with current key bindings
func (a *App) updateFooter() {
	helpText := ""
	for i, binding := range globalKeyBindings {
		if i > 0 {
			helpText += " | "
		}
		helpText += fmt.Sprintf("%s: %s", keyName(binding), binding.Description)
	}

	a.footer.SetText(helpText)
}

// keyName renders the key of a binding
func keyName(binding KeyBinding) string {
	if binding.Key != tcell.KeyRune {
		return tcell.KeyNames[binding.Key]
	}
	return string(binding.Rune)
}

// IsRunning returns whether the application is currently running
func (a *App) IsRunning() bool {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.isRunning
}

// GetCurrentScreen returns the current screen type
func (a *App) GetCurrentScreen() ScreenType {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.currentScreen
}

// LastExport returns when ratings were last exported, nil if never
func (a *App) LastExport() *time.Time {
	a.state.mu.RLock()
	defer a.state.mu.RUnlock()
	return a.state.lastExportTime
}
