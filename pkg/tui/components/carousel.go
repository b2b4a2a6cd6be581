package components

import (
	"fmt"
	"strings"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/pashagolub/listrank/pkg/ranking"
)

// Carousel pages through a short list of entries, one card at a time.
// The comparison screen uses it to preview the entries coming up next.
type Carousel struct {
	// UI components
	container    *tview.Flex
	currentCard  *tview.TextView
	navIndicator *tview.TextView

	// Data and state
	items        []ranking.Item
	currentIndex int

	// Display configuration
	title          string
	showNumbers    bool
	highlightColor tcell.Color
	normalColor    tcell.Color
	showNavigation bool
	expandedView   bool

	// Lookups and callbacks
	imageURL   func(id int) (string, bool)
	onNavigate func(index int, item ranking.Item)
	onSelect   func(index int, item ranking.Item)
}

// CarouselConfig holds configuration options for the carousel
type CarouselConfig struct {
	Title          string
	ShowNumbers    bool
	HighlightColor tcell.Color
	NormalColor    tcell.Color
	ShowNavigation bool
	ExpandedView   bool
	ImageURL       func(id int) (string, bool) // cover art lookup, optional
	OnNavigate     func(index int, item ranking.Item)
	OnSelect       func(index int, item ranking.Item)
}

// DefaultCarouselConfig returns the configuration of the "up next" preview
func DefaultCarouselConfig() CarouselConfig {
	return CarouselConfig{
		Title:          "Up next",
		ShowNumbers:    true,
		HighlightColor: tcell.ColorYellow,
		NormalColor:    tcell.ColorWhite,
		ShowNavigation: true,
	}
}

// NewCarousel creates a carousel
func NewCarousel(config CarouselConfig) *Carousel {
	c := &Carousel{
		container:      tview.NewFlex(),
		currentCard:    tview.NewTextView(),
		navIndicator:   tview.NewTextView(),
		currentIndex:   -1,
		title:          config.Title,
		showNumbers:    config.ShowNumbers,
		highlightColor: config.HighlightColor,
		normalColor:    config.NormalColor,
		showNavigation: config.ShowNavigation,
		expandedView:   config.ExpandedView,
		imageURL:       config.ImageURL,
		onNavigate:     config.OnNavigate,
		onSelect:       config.OnSelect,
	}
	if c.title == "" {
		c.title = "Entries"
	}

	c.setupUI()
	c.updateDisplay()
	return c
}

// setupUI initializes the carousel layout
func (c *Carousel) setupUI() {
	c.container.SetDirection(tview.FlexRow)

	c.currentCard.SetBorder(true)
	c.currentCard.SetWordWrap(true)
	c.currentCard.SetDynamicColors(true)

	c.navIndicator.
		SetTextAlign(tview.AlignCenter).
		SetDynamicColors(true)

	c.container.AddItem(c.currentCard, 0, 1, false)
	if c.showNavigation {
		c.container.AddItem(c.navIndicator, 1, 0, false)
	}

	c.container.SetInputCapture(c.HandleInput)
}

// SetItems replaces the entries, keeping the position when the same entry is still present
func (c *Carousel) SetItems(items []ranking.Item) {
	var currentID int
	hadCurrent := c.HasItems()
	if hadCurrent {
		currentID = c.items[c.currentIndex].ID
	}

	c.items = make([]ranking.Item, len(items))
	copy(c.items, items)

	c.currentIndex = -1
	if len(c.items) > 0 {
		c.currentIndex = 0
	}
	if hadCurrent {
		for i, item := range c.items {
			if item.ID == currentID {
				c.currentIndex = i
				break
			}
		}
	}

	c.updateDisplay()
}

// Current returns the displayed entry
func (c *Carousel) Current() (ranking.Item, bool) {
	if !c.HasItems() {
		return ranking.Item{}, false
	}
	return c.items[c.currentIndex], true
}

// GetCurrentIndex returns the current carousel position
func (c *Carousel) GetCurrentIndex() int {
	return c.currentIndex
}

// Len returns the number of entries
func (c *Carousel) Len() int {
	return len(c.items)
}

// HasItems reports whether an entry is displayed
func (c *Carousel) HasItems() bool {
	return c.currentIndex >= 0 && c.currentIndex < len(c.items)
}

// Next moves to the next entry, wrapping around
func (c *Carousel) Next() bool {
	if !c.HasItems() {
		return false
	}
	return c.NavigateTo((c.currentIndex + 1) % len(c.items))
}

// Previous moves to the previous entry, wrapping around
func (c *Carousel) Previous() bool {
	if !c.HasItems() {
		return false
	}
	index := c.currentIndex - 1
	if index < 0 {
		index = len(c.items) - 1
	}
	return c.NavigateTo(index)
}

// First moves to the first entry
func (c *Carousel) First() bool {
	return c.NavigateTo(0)
}

// Last moves to the last entry
func (c *Carousel) Last() bool {
	return c.NavigateTo(len(c.items) - 1)
}

// NavigateTo moves to a specific index
func (c *Carousel) NavigateTo(index int) bool {
	if !c.HasItems() || index < 0 || index >= len(c.items) {
		return false
	}

	c.currentIndex = index
	c.updateDisplay()

	if c.onNavigate != nil {
		c.onNavigate(c.currentIndex, c.items[c.currentIndex])
	}
	return true
}

// ToggleExpandedView switches between compact and expanded cards
func (c *Carousel) ToggleExpandedView() {
	c.expandedView = !c.expandedView
	c.updateDisplay()
}

// Refresh redraws the current card, e.g. after cover art arrived
func (c *Carousel) Refresh() {
	c.updateDisplay()
}

// GetPrimitive returns the main container for integration with tview
func (c *Carousel) GetPrimitive() tview.Primitive {
	return c.container
}

// HandleInput processes navigation keys, returning nil for consumed events
func (c *Carousel) HandleInput(event *tcell.EventKey) *tcell.EventKey {
	switch event.Key() {
	case tcell.KeyLeft:
		c.Previous()
		return nil
	case tcell.KeyRight:
		c.Next()
		return nil
	case tcell.KeyHome:
		c.First()
		return nil
	case tcell.KeyEnd:
		c.Last()
		return nil
	case tcell.KeyTab:
		c.ToggleExpandedView()
		return nil
	case tcell.KeyEnter:
		if item, ok := c.Current(); ok && c.onSelect != nil {
			c.onSelect(c.currentIndex, item)
		}
		return nil
	}

	if ch := event.Rune(); event.Key() == tcell.KeyRune && ch >= '1' && ch <= '9' {
		c.NavigateTo(int(ch - '1'))
		return nil
	}
	return event
}

// updateDisplay refreshes the carousel display
func (c *Carousel) updateDisplay() {
	item, ok := c.Current()
	if !ok {
		c.currentCard.SetText("[gray]Nothing queued[-]")
		c.currentCard.SetTitle(c.title)
		c.currentCard.SetBorderColor(c.normalColor)
		if c.showNavigation {
			c.navIndicator.SetText("[gray]0 / 0[-]")
		}
		return
	}

	c.currentCard.SetText(c.formatItem(item))

	title := c.title
	if c.showNumbers {
		title = fmt.Sprintf("%s %d", c.title, c.currentIndex+1)
	}
	c.currentCard.SetTitle(title)
	c.currentCard.SetBorderColor(c.highlightColor)
	c.currentCard.SetTitleColor(c.highlightColor)

	if c.showNavigation {
		c.updateNavigationIndicator()
	}
}

// formatItem creates formatted text for an entry card
func (c *Carousel) formatItem(item ranking.Item) string {
	var content strings.Builder

	content.WriteString(fmt.Sprintf("[white::b]%s[white::-]\n", tview.Escape(item.Title)))
	content.WriteString(fmt.Sprintf("[blue]Record:[-] %d-%d\n", item.Wins, item.Losses))

	if c.expandedView {
		content.WriteString(fmt.Sprintf("[yellow]ID:[-] %d\n", item.ID))
		content.WriteString(fmt.Sprintf("[yellow]Comparisons:[-] %d\n", item.Comparisons))
		if c.imageURL != nil {
			if url, ok := c.imageURL(item.ID); ok && url != "" {
				content.WriteString(fmt.Sprintf("[green]Cover:[-] %s\n", tview.Escape(url)))
			}
		}
	}

	return content.String()
}

// updateNavigationIndicator updates the dots below the card
func (c *Carousel) updateNavigationIndicator() {
	indicator := fmt.Sprintf("[white]%d / %d[-]", c.currentIndex+1, len(c.items))

	if len(c.items) <= 10 {
		dots := make([]string, len(c.items))
		for i := range c.items {
			if i == c.currentIndex {
				dots[i] = "[yellow]●[-]"
			} else {
				dots[i] = "[gray]○[-]"
			}
		}
		indicator = fmt.Sprintf("%s  %s", indicator, strings.Join(dots, " "))
	}

	c.navIndicator.SetText(indicator)
}
