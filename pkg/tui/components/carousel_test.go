package components

import (
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pashagolub/listrank/pkg/ranking"
)

func createTestItems() []ranking.Item {
	return []ranking.Item{
		{ID: 1, Title: "Cowboy Bebop", Wins: 2, Losses: 1, Comparisons: 3},
		{ID: 5, Title: "Mushishi", Wins: 0, Losses: 2, Comparisons: 2},
		{ID: 9, Title: "Monster", Wins: 1, Losses: 0, Comparisons: 1},
		{ID: 12, Title: "Planetes [2003]"},
	}
}

func keyEvent(key tcell.Key) *tcell.EventKey {
	return tcell.NewEventKey(key, 0, tcell.ModNone)
}

func TestNewCarousel(t *testing.T) {
	carousel := NewCarousel(DefaultCarouselConfig())

	assert.NotNil(t, carousel.GetPrimitive())
	assert.Equal(t, -1, carousel.GetCurrentIndex())
	assert.Equal(t, 0, carousel.Len())
	assert.False(t, carousel.HasItems())
	assert.Equal(t, "Up next", carousel.title)
	assert.Equal(t, tcell.ColorYellow, carousel.highlightColor)
	assert.Contains(t, carousel.currentCard.GetText(true), "Nothing queued")
	assert.Contains(t, carousel.navIndicator.GetText(true), "0 / 0")

	_, ok := carousel.Current()
	assert.False(t, ok)
	assert.False(t, carousel.Next())
	assert.False(t, carousel.Previous())
	assert.False(t, carousel.First())
	assert.False(t, carousel.Last())
}

func TestNewCarouselWithConfig(t *testing.T) {
	carousel := NewCarousel(CarouselConfig{
		ShowNumbers:    false,
		HighlightColor: tcell.ColorRed,
		ExpandedView:   true,
	})

	assert.Equal(t, "Entries", carousel.title, "empty title gets a default")
	assert.False(t, carousel.showNumbers)
	assert.False(t, carousel.showNavigation)
	assert.True(t, carousel.expandedView)
	assert.Equal(t, 1, carousel.container.GetItemCount())
}

func TestCarouselSetItems(t *testing.T) {
	carousel := NewCarousel(DefaultCarouselConfig())
	items := createTestItems()

	carousel.SetItems(items)
	assert.Equal(t, 4, carousel.Len())
	assert.Equal(t, 0, carousel.GetCurrentIndex())
	assert.Contains(t, carousel.currentCard.GetText(true), "Cowboy Bebop")
	assert.Contains(t, carousel.navIndicator.GetText(true), "1 / 4")

	items[0].Title = "changed"
	current, ok := carousel.Current()
	require.True(t, ok)
	assert.Equal(t, "Cowboy Bebop", current.Title, "items are copied")

	t.Run("keeps position on the same entry", func(t *testing.T) {
		require.True(t, carousel.NavigateTo(2))
		carousel.SetItems(createTestItems()[1:])
		current, _ := carousel.Current()
		assert.Equal(t, 9, current.ID)
		assert.Equal(t, 1, carousel.GetCurrentIndex())
	})

	t.Run("falls back to the first entry", func(t *testing.T) {
		carousel.SetItems([]ranking.Item{{ID: 40, Title: "Kaiba"}})
		current, _ := carousel.Current()
		assert.Equal(t, 40, current.ID)
	})

	t.Run("empty", func(t *testing.T) {
		carousel.SetItems(nil)
		assert.False(t, carousel.HasItems())
		assert.Contains(t, carousel.currentCard.GetText(true), "Nothing queued")
	})
}

func TestCarouselNavigation(t *testing.T) {
	var navigated []int
	config := DefaultCarouselConfig()
	config.OnNavigate = func(index int, _ ranking.Item) { navigated = append(navigated, index) }
	carousel := NewCarousel(config)
	carousel.SetItems(createTestItems())

	assert.True(t, carousel.Next())
	assert.Equal(t, 1, carousel.GetCurrentIndex())

	assert.True(t, carousel.Last())
	assert.Equal(t, 3, carousel.GetCurrentIndex())

	assert.True(t, carousel.Next(), "wraps to the start")
	assert.Equal(t, 0, carousel.GetCurrentIndex())

	assert.True(t, carousel.Previous(), "wraps to the end")
	assert.Equal(t, 3, carousel.GetCurrentIndex())

	assert.True(t, carousel.First())
	assert.False(t, carousel.NavigateTo(4))
	assert.False(t, carousel.NavigateTo(-1))

	assert.Equal(t, []int{1, 3, 0, 3, 0}, navigated)
}

func TestCarouselInput(t *testing.T) {
	var selected []int
	config := DefaultCarouselConfig()
	config.OnSelect = func(_ int, item ranking.Item) { selected = append(selected, item.ID) }
	carousel := NewCarousel(config)
	carousel.SetItems(createTestItems())

	testCases := []struct {
		name  string
		event *tcell.EventKey
		index int
	}{
		{"right", keyEvent(tcell.KeyRight), 1},
		{"left", keyEvent(tcell.KeyLeft), 0},
		{"end", keyEvent(tcell.KeyEnd), 3},
		{"home", keyEvent(tcell.KeyHome), 0},
		{"number", tcell.NewEventKey(tcell.KeyRune, '3', tcell.ModNone), 2},
		{"number out of range", tcell.NewEventKey(tcell.KeyRune, '9', tcell.ModNone), 2},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Nil(t, carousel.HandleInput(tc.event))
			assert.Equal(t, tc.index, carousel.GetCurrentIndex())
		})
	}

	assert.Nil(t, carousel.HandleInput(keyEvent(tcell.KeyEnter)))
	assert.Equal(t, []int{9}, selected)

	event := tcell.NewEventKey(tcell.KeyRune, 'x', tcell.ModNone)
	assert.Same(t, event, carousel.HandleInput(event))
}

func TestCarouselExpandedView(t *testing.T) {
	config := DefaultCarouselConfig()
	config.ImageURL = func(id int) (string, bool) {
		if id == 12 {
			return "https://cdn.example/planetes.jpg", true
		}
		return "", false
	}
	carousel := NewCarousel(config)
	carousel.SetItems(createTestItems())
	require.True(t, carousel.Last())

	compact := carousel.currentCard.GetText(true)
	assert.Contains(t, compact, "Planetes [2003]")
	assert.NotContains(t, compact, "Cover:")

	assert.Nil(t, carousel.HandleInput(keyEvent(tcell.KeyTab)))
	expanded := carousel.currentCard.GetText(true)
	assert.Contains(t, expanded, "ID: 12")
	assert.Contains(t, expanded, "https://cdn.example/planetes.jpg")

	carousel.ToggleExpandedView()
	assert.NotContains(t, carousel.currentCard.GetText(true), "Cover:")
}

func TestCarouselNavigationIndicator(t *testing.T) {
	carousel := NewCarousel(DefaultCarouselConfig())

	many := make([]ranking.Item, 12)
	for i := range many {
		many[i] = ranking.Item{ID: i + 1}
	}
	carousel.SetItems(many)
	text := carousel.navIndicator.GetText(true)
	assert.Contains(t, text, "1 / 12")
	assert.NotContains(t, text, "●", "no dots for long lists")

	carousel.SetItems(createTestItems())
	assert.Contains(t, carousel.navIndicator.GetText(true), "●")
}
