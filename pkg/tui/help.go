package tui

import (
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
)

// HelpScreen provides help and keyboard shortcut information
type HelpScreen struct {
	root     *tview.Flex
	textView *tview.TextView
	app      any
}

// NewHelpScreen creates a new help screen
func NewHelpScreen() *HelpScreen {
	hs := &HelpScreen{
		root:     tview.NewFlex(),
		textView: tview.NewTextView(),
	}

	hs.setupLayout()
	return hs
}

// GetPrimitive returns the root primitive for this screen
func (hs *HelpScreen) GetPrimitive() tview.Primitive {
	return hs.root
}

// OnEnter is called when the help screen becomes active
func (hs *HelpScreen) OnEnter(app any) error {
	hs.app = app
	hs.updateContent()
	return nil
}

// OnExit is called when leaving the help screen
func (hs *HelpScreen) OnExit(app any) error {
	return nil
}

// GetTitle returns the screen title
func (hs *HelpScreen) GetTitle() string {
	return "Help"
}

// setupLayout configures the help screen layout
func (hs *HelpScreen) setupLayout() {
	hs.textView.
		SetBorder(true).
		SetTitle("Help").
		SetTitleAlign(tview.AlignCenter)

	hs.textView.SetWrap(true).
		SetDynamicColors(true).
		SetScrollable(true)

	hs.textView.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		if event.Key() == tcell.KeyEsc || event.Rune() == 'q' || event.Rune() == 'Q' {
			hs.goBack()
			return nil
		}
		return event
	})

	hs.root.AddItem(hs.textView, 0, 1, true)
}

func (hs *HelpScreen) goBack() {
	if app, ok := hs.app.(interface{ GoBack() error }); ok {
		_ = app.GoBack()
	}
}

// updateContent updates the help screen content
func (hs *HelpScreen) updateContent() {
	var content strings.Builder

	content.WriteString("[yellow]List Ranking[-]\n\n")
	content.WriteString("Rank an anime, manga or plain list by answering \"which do you prefer?\" for pairs of entries.\n")
	content.WriteString("Choices are fitted with a Bradley-Terry model and turned into 1-10 ratings.\n\n")

	content.WriteString("[green]Global Keyboard Shortcuts[-]\n")
	content.WriteString("═════════════════════════════\n")
	for _, binding := range globalKeyBindings {
		content.WriteString("[white]")
		content.WriteString(keyName(binding))
		content.WriteString("[-]  - ")
		content.WriteString(binding.Description)
		content.WriteString("\n")
	}

	content.WriteString("\n[green]Comparison Screen[-]\n")
	content.WriteString("═══════════════════\n")
	content.WriteString("[white]1 h ←[-]      - Prefer the left entry\n")
	content.WriteString("[white]2 l →[-]      - Prefer the right entry\n")
	content.WriteString("[white]s Space[-]    - Skip the pair\n")
	content.WriteString("[white]u Backspace[-] - Undo\n")
	content.WriteString("[white]r[-]          - Redo\n")
	content.WriteString("[white]d[-]          - Switch between z-score and distribution ratings\n")

	content.WriteString("\n[green]Rankings Screen[-]\n")
	content.WriteString("═════════════════\n")
	content.WriteString("[white]s[-] sort field  [white]o[-] sort order  [white]f[-] filters  [white]x[-] clear filters  [white]q Esc[-] back\n")

	content.WriteString("\n[green]Tips[-]\n")
	content.WriteString("════\n")
	content.WriteString("• Progress is saved and can be resumed for a week\n")
	content.WriteString("• Every choice is journaled and can be audited later\n")
	content.WriteString("• Existing scores seed the ranking and shorten it when most entries are rated\n")
	content.WriteString("• MAL exports keep the original file with updated scores\n")

	hs.textView.SetText(content.String())
}
