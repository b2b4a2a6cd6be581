package tui

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pashagolub/listrank/pkg/data"
	"github.com/pashagolub/listrank/pkg/journal"
	"github.com/pashagolub/listrank/pkg/ranking"
	"github.com/pashagolub/listrank/pkg/session"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// mockScreen is a mock implementation of Screen interface for testing
type mockScreen struct {
	title       string
	primitive   *testPrimitive
	onEnterFunc func(app any) error
	onExitFunc  func(app any) error
}

type testPrimitive struct{}

func (tp *testPrimitive) Draw(screen tcell.Screen)        {}
func (tp *testPrimitive) GetRect() (int, int, int, int)   { return 0, 0, 0, 0 }
func (tp *testPrimitive) SetRect(x, y, width, height int) {}
func (tp *testPrimitive) InputHandler() func(event *tcell.EventKey, setFocus func(p tview.Primitive)) {
	return nil
}
func (tp *testPrimitive) Focus(delegate func(p tview.Primitive)) {}
func (tp *testPrimitive) Blur()                                  {}
func (tp *testPrimitive) HasFocus() bool                         { return false }
func (tp *testPrimitive) PasteHandler() func(pastedText string, setFocus func(p tview.Primitive)) {
	return nil
}
func (tp *testPrimitive) MouseHandler() func(action tview.MouseAction, event *tcell.EventMouse, setFocus func(p tview.Primitive)) (consumed bool, capture tview.Primitive) {
	return nil
}

func newMockScreen(title string) *mockScreen {
	return &mockScreen{title: title, primitive: &testPrimitive{}}
}

func (ms *mockScreen) GetPrimitive() tview.Primitive { return ms.primitive }
func (ms *mockScreen) GetTitle() string              { return ms.title }

func (ms *mockScreen) OnEnter(app any) error {
	if ms.onEnterFunc != nil {
		return ms.onEnterFunc(app)
	}
	return nil
}

func (ms *mockScreen) OnExit(app any) error {
	if ms.onExitFunc != nil {
		return ms.onExitFunc(app)
	}
	return nil
}

// createTestSession returns a session over n generic entries with a journal
func createTestSession(t testing.TB, n int) (*session.Session, *journal.AuditTrail) {
	t.Helper()
	list := &data.List{Kind: data.KindAnime, Format: data.FormatCSV}
	for i := 1; i <= n; i++ {
		list.Entries = append(list.Entries, data.ListEntry{ID: i, Title: fmt.Sprintf("Show %d", i)})
	}

	config := ranking.DefaultConfig()
	config.Seed = 3
	config.Logger = quietLogger
	engine, err := ranking.NewEngine(config)
	require.NoError(t, err)
	engine.Initialize(list.Seeds(), false)

	trail, err := journal.NewAuditTrail("tui", t.TempDir())
	require.NoError(t, err)

	sess, err := session.New(session.Options{
		Key:     "tui",
		List:    list,
		Engine:  engine,
		Journal: trail,
		Logger:  quietLogger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })
	return sess, trail
}

func createTestApp(t testing.TB) *App {
	t.Helper()
	sess, _ := createTestSession(t, 5)
	app, err := NewApp(Options{
		Session:    sess,
		UI:         data.DefaultUIConfig(),
		Export:     data.DefaultExportConfig(),
		ExportPath: filepath.Join(t.TempDir(), "ratings.csv"),
		Logger:     quietLogger,
	})
	require.NoError(t, err)
	return app
}

func TestNewApp(t *testing.T) {
	t.Run("nil session", func(t *testing.T) {
		app, err := NewApp(Options{})
		assert.ErrorIs(t, err, ErrNoSession)
		assert.Nil(t, app)
	})

	t.Run("valid", func(t *testing.T) {
		app := createTestApp(t)
		assert.NotNil(t, app.tviewApp)
		assert.NotNil(t, app.pages)
		assert.Equal(t, ScreenComparison, app.GetCurrentScreen())
		assert.False(t, app.IsRunning())
		assert.NotNil(t, app.GetSession())
		assert.Nil(t, app.LastExport())
		assert.Contains(t, app.footer.GetText(true), "v: Rankings")
	})

	t.Run("default export path", func(t *testing.T) {
		sess, _ := createTestSession(t, 2)
		app, err := NewApp(Options{Session: sess, Export: data.ExportConfig{Format: "mal-xml"}})
		require.NoError(t, err)
		assert.Equal(t, "tui-ratings.xml", app.exportPath)
	})
}

func TestDefaultExportPath(t *testing.T) {
	testCases := []struct {
		key, format, expected string
	}{
		{"animelist", "csv", "animelist-ratings.csv"},
		{"animelist", "json", "animelist-ratings.json"},
		{"animelist", "mal-json", "animelist-ratings.json"},
		{"animelist", "text", "animelist-ratings.txt"},
		{"mangalist", "mal-xml", "mangalist-ratings.xml"},
		{"", "", "ratings-ratings.csv"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, DefaultExportPath(tc.key, tc.format))
	}
}

func TestAppScreenRegistration(t *testing.T) {
	app := createTestApp(t)

	assert.NoError(t, app.RegisterScreen(ScreenComparison, newMockScreen("Test Screen")))
	assert.Contains(t, app.screens, ScreenComparison)
	assert.Error(t, app.RegisterScreen(ScreenRanking, nil))

	t.Run("default screens", func(t *testing.T) {
		app := createTestApp(t)
		require.NoError(t, app.RegisterDefaultScreens())
		for _, screen := range []ScreenType{ScreenComparison, ScreenRanking, ScreenHelp} {
			assert.Contains(t, app.screens, screen)
			assert.True(t, app.pages.HasPage(screen.String()))
		}
	})
}

func TestAppNavigation(t *testing.T) {
	app := createTestApp(t)
	require.NoError(t, app.RegisterScreen(ScreenComparison, newMockScreen("Comparison")))
	require.NoError(t, app.RegisterScreen(ScreenHelp, newMockScreen("Help")))

	require.NoError(t, app.NavigateTo(ScreenComparison))
	assert.Equal(t, ScreenComparison, app.GetCurrentScreen())

	assert.Error(t, app.NavigateTo(ScreenRanking), "unregistered")

	require.NoError(t, app.ShowHelp())
	assert.Equal(t, ScreenHelp, app.GetCurrentScreen())

	require.NoError(t, app.GoBack())
	assert.Equal(t, ScreenComparison, app.GetCurrentScreen())
}

func TestAppScreenCallbacks(t *testing.T) {
	app := createTestApp(t)

	var entered []any
	exitCalled := false
	screen := newMockScreen("Test")
	screen.onEnterFunc = func(app any) error {
		entered = append(entered, app)
		return nil
	}
	screen.onExitFunc = func(any) error {
		exitCalled = true
		return nil
	}

	require.NoError(t, app.RegisterScreen(ScreenComparison, screen))
	require.NoError(t, app.RegisterScreen(ScreenHelp, newMockScreen("Help")))

	require.NoError(t, app.NavigateTo(ScreenComparison))
	require.Len(t, entered, 1)
	assert.Same(t, app, entered[0])

	require.NoError(t, app.NavigateTo(ScreenHelp))
	assert.True(t, exitCalled)
}

func TestAppErrorHandling(t *testing.T) {
	app := createTestApp(t)
	require.NoError(t, app.RegisterScreen(ScreenComparison, newMockScreen("Comparison")))

	broken := newMockScreen("Broken")
	broken.onEnterFunc = func(any) error { return assert.AnError }
	require.NoError(t, app.RegisterScreen(ScreenRanking, broken))

	require.NoError(t, app.NavigateTo(ScreenComparison))
	err := app.NavigateTo(ScreenRanking)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, ScreenComparison, app.GetCurrentScreen())
}

func TestAppKeyBindings(t *testing.T) {
	app := createTestApp(t)
	require.NoError(t, app.RegisterDefaultScreens())
	require.NoError(t, app.ShowComparison())

	testCases := []struct {
		r        rune
		expected ScreenType
	}{
		{'?', ScreenHelp},
		{'c', ScreenComparison},
		{'v', ScreenRanking},
		{'c', ScreenComparison},
	}
	for _, tc := range testCases {
		result := app.handleGlobalInput(tcell.NewEventKey(tcell.KeyRune, tc.r, tcell.ModNone))
		assert.Nil(t, result, "event consumed")
		assert.Equal(t, tc.expected, app.GetCurrentScreen())
	}

	t.Run("other keys pass through", func(t *testing.T) {
		event := tcell.NewEventKey(tcell.KeyRune, '1', tcell.ModNone)
		assert.Same(t, event, app.handleGlobalInput(event))
	})

	t.Run("typing in an input field", func(t *testing.T) {
		app.SetFocus(tview.NewInputField())
		event := tcell.NewEventKey(tcell.KeyRune, 'v', tcell.ModNone)
		assert.Same(t, event, app.handleGlobalInput(event))
		assert.Equal(t, ScreenComparison, app.GetCurrentScreen())
	})
}

func TestExportRankings(t *testing.T) {
	app := createTestApp(t)
	require.NoError(t, app.RegisterDefaultScreens())
	require.NoError(t, app.GetSession().ChooseSide(0))

	path, err := app.ExportRankings()
	require.NoError(t, err)
	assert.Equal(t, app.exportPath, path)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "Show 1")
	require.NotNil(t, app.LastExport())

	require.NoError(t, app.ShowRanking())
	app.updateHeader()
	assert.Contains(t, app.header.GetText(true), "Last exported:")
	assert.Contains(t, app.header.GetText(true), "1/")

	t.Run("export key on the rankings screen", func(t *testing.T) {
		assert.Nil(t, app.handleGlobalInput(tcell.NewEventKey(tcell.KeyRune, 'e', tcell.ModNone)))
		assert.False(t, app.pages.HasPage("info-dialog"), "result is shown in the screen")
	})

	t.Run("export key elsewhere", func(t *testing.T) {
		require.NoError(t, app.ShowComparison())
		assert.Nil(t, app.handleGlobalInput(tcell.NewEventKey(tcell.KeyRune, 'e', tcell.ModNone)))
		assert.True(t, app.pages.HasPage("info-dialog"))
	})

	t.Run("failure", func(t *testing.T) {
		blocker := filepath.Join(t.TempDir(), "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o600))
		app.exportPath = filepath.Join(blocker, "ratings.csv")
		_, err := app.ExportRankings()
		assert.Error(t, err)

		require.NoError(t, app.ShowComparison())
		app.handleGlobalInput(tcell.NewEventKey(tcell.KeyRune, 'e', tcell.ModNone))
		assert.True(t, app.pages.HasPage("error-dialog"))
	})
}

func TestRankingCompletionFinalizes(t *testing.T) {
	sess, trail := createTestSession(t, 3)
	for i := 0; i < 100 && !sess.Engine().IsComplete(); i++ {
		require.NoError(t, sess.ChooseSide(0))
	}
	require.True(t, sess.Engine().IsComplete())

	app, err := NewApp(Options{Session: sess, UI: data.DefaultUIConfig(), Logger: quietLogger})
	require.NoError(t, err)
	require.NoError(t, app.RegisterDefaultScreens())
	require.NoError(t, app.ShowComparison())

	result, err := trail.Query(journal.QueryOptions{EventTypes: []journal.AuditEventType{journal.EventRatingsFinalized}})
	require.NoError(t, err)
	assert.Len(t, result.Entries, 1)
}

func TestImageArrival(t *testing.T) {
	app := createTestApp(t)
	require.NoError(t, app.RegisterDefaultScreens())
	require.NoError(t, app.ShowComparison())

	pair, ok := app.GetSession().Engine().CurrentPair()
	require.True(t, ok)
	assert.NotPanics(t, func() {
		app.GetSession().SetImageURL(pair.Left.ID, "https://cdn.example/1.jpg")
	})
	url, ok := app.GetSession().ImageURL(pair.Left.ID)
	assert.True(t, ok)
	assert.Equal(t, "https://cdn.example/1.jpg", url)
}

func TestHelpScreen(t *testing.T) {
	app := createTestApp(t)
	require.NoError(t, app.RegisterDefaultScreens())
	require.NoError(t, app.ShowComparison())
	require.NoError(t, app.ShowHelp())

	help := app.screens[ScreenHelp].(*HelpScreen)
	text := help.textView.GetText(true)
	assert.Contains(t, text, "Ctrl-C")
	assert.Contains(t, text, "Prefer the left entry")
	assert.Equal(t, "Help", help.GetTitle())

	capture := help.textView.GetInputCapture()
	assert.Nil(t, capture(tcell.NewEventKey(tcell.KeyEsc, 0, tcell.ModNone)))
	assert.Equal(t, ScreenComparison, app.GetCurrentScreen())
}

func TestAppConcurrency(t *testing.T) {
	app := createTestApp(t)
	done := make(chan bool)

	go func() {
		for i := 0; i < 100; i++ {
			_ = app.GetCurrentScreen()
			_ = app.IsRunning()
			_ = app.LastExport()
		}
		done <- true
	}()

	go func() {
		for i := 0; i < 100; i++ {
			_ = app.GetSession()
		}
		done <- true
	}()

	<-done
	<-done
}

func TestScreenTypeString(t *testing.T) {
	tests := []struct {
		screen   ScreenType
		expected string
	}{
		{ScreenComparison, "comparison"},
		{ScreenRanking, "ranking"},
		{ScreenHelp, "help"},
		{ScreenType(999), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.screen.String())
		})
	}
}

func TestAppCleanup(t *testing.T) {
	app := createTestApp(t)
	app.state.isRunning = true

	app.Stop()
	assert.False(t, app.IsRunning())
	assert.Error(t, app.Context().Err())

	// Multiple stops should be safe
	app.Stop()
	assert.False(t, app.IsRunning())
}

func BenchmarkAppNavigation(b *testing.B) {
	app := createTestApp(b)
	_ = app.RegisterScreen(ScreenComparison, newMockScreen("Comparison"))
	_ = app.RegisterScreen(ScreenRanking, newMockScreen("Ranking"))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = app.NavigateTo(ScreenComparison)
		_ = app.NavigateTo(ScreenRanking)
	}
}
