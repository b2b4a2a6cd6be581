package components

import (
	"strings"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pashagolub/listrank/pkg/ranking"
)

func TestNewProgress(t *testing.T) {
	progress := NewProgress(DefaultProgressConfig())

	assert.NotNil(t, progress)
	assert.True(t, progress.showBars)
	assert.True(t, progress.showAccuracy)
	assert.True(t, progress.showEstimates)
	assert.NotNil(t, progress.GetContainer())
	assert.Nil(t, progress.GetMetrics())
}

func TestNewProgressWithCustomConfig(t *testing.T) {
	progress := NewProgress(ProgressConfig{
		ShowBars:       false,
		ShowAccuracy:   true,
		UpdateInterval: 50 * time.Millisecond,
		BorderColor:    tcell.ColorGreen,
	})

	assert.False(t, progress.showBars)
	assert.True(t, progress.showAccuracy)
	assert.False(t, progress.showEstimates)
	assert.Equal(t, 50*time.Millisecond, progress.updateInterval)
	assert.Equal(t, tcell.ColorGreen, progress.borderColor)
	assert.Equal(t, tcell.ColorWhite, progress.textColor, "unset colors get defaults")
	assert.Equal(t, 1, progress.container.GetItemCount())
}

func TestNewMetrics(t *testing.T) {
	testCases := []struct {
		name     string
		state    ranking.State
		expected Metrics
	}{
		{
			name:     "fresh",
			state:    ranking.State{TotalComparisons: 20},
			expected: Metrics{Total: 20, Remaining: 20},
		},
		{
			name:     "half way",
			state:    ranking.State{ComparisonsDone: 10, TotalComparisons: 20},
			expected: Metrics{Done: 10, Total: 20, Percent: 50, Accuracy: 40, Remaining: 10},
		},
		{
			name:     "complete",
			state:    ranking.State{ComparisonsDone: 20, TotalComparisons: 20, IsComplete: true},
			expected: Metrics{Done: 20, Total: 20, Percent: 100, Accuracy: 40, Complete: true},
		},
		{
			name:     "recorded past the budget",
			state:    ranking.State{ComparisonsDone: 25, TotalComparisons: 20, IsComplete: true},
			expected: Metrics{Done: 25, Total: 20, Percent: 100, Accuracy: 40, Complete: true},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			accuracy := 0
			if tc.state.ComparisonsDone > 0 {
				accuracy = 40
			}
			assert.Equal(t, tc.expected, NewMetrics(tc.state, accuracy, 0))
		})
	}
}

func TestProgressUpdate(t *testing.T) {
	progress := NewProgress(DefaultProgressConfig())

	metrics := NewMetrics(ranking.State{ComparisonsDone: 6, TotalComparisons: 12}, 55, 3*time.Minute)
	progress.Update(metrics)

	require.NotNil(t, progress.GetMetrics())
	assert.Equal(t, metrics, *progress.GetMetrics())
	assert.Contains(t, progress.progressBar.GetText(true), "6 / 12 comparisons")
	assert.Contains(t, progress.accuracyBar.GetText(true), "55% accuracy")

	status := progress.statusText.GetText(true)
	assert.Contains(t, status, "Remaining: 6 comparisons")
	assert.Contains(t, status, "Per comparison: 30s")
	assert.Contains(t, status, "Estimated time: 3m 0s")
	assert.Contains(t, status, "Session time: 3m 0s")
	assert.Contains(t, status, "Progressing")
}

func TestProgressUpdateThrottling(t *testing.T) {
	config := DefaultProgressConfig()
	config.UpdateInterval = time.Hour
	progress := NewProgress(config)

	progress.Update(Metrics{Done: 1, Total: 10, Percent: 10})
	progress.Update(Metrics{Done: 2, Total: 10, Percent: 20})
	assert.Equal(t, 1, progress.GetMetrics().Done, "second update is throttled")

	progress.Update(Metrics{Done: 10, Total: 10, Percent: 100, Complete: true})
	assert.True(t, progress.GetMetrics().Complete, "completion is never throttled")
}

func TestCallbacks(t *testing.T) {
	var updates []Metrics
	var completions []int

	progress := NewProgress(ProgressConfig{
		ShowBars:   true,
		OnUpdate:   func(m Metrics) { updates = append(updates, m) },
		OnComplete: func(accuracy int) { completions = append(completions, accuracy) },
	})

	progress.Update(Metrics{Done: 4, Total: 5, Percent: 80})
	progress.Update(Metrics{Done: 5, Total: 5, Percent: 100, Accuracy: 88, Complete: true})
	progress.Update(Metrics{Done: 5, Total: 5, Percent: 100, Accuracy: 88, Complete: true})
	progress.Update(Metrics{Done: 4, Total: 5, Percent: 80}) // undo
	progress.Update(Metrics{Done: 5, Total: 5, Percent: 100, Accuracy: 90, Complete: true})

	assert.Len(t, updates, 5)
	assert.Equal(t, []int{88, 90}, completions)
}

func TestStatusText(t *testing.T) {
	testCases := []struct {
		name     string
		metrics  Metrics
		expected string
	}{
		{"early", Metrics{Percent: 10}, "Early Stage"},
		{"progressing", Metrics{Percent: 50}, "Progressing"},
		{"nearly done", Metrics{Percent: 85}, "Nearly Done"},
		{"complete", Metrics{Percent: 100, Complete: true}, "Complete"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Contains(t, statusText(tc.metrics), tc.expected)
		})
	}
}

func TestRecommendation(t *testing.T) {
	testCases := []struct {
		name     string
		metrics  Metrics
		contains string
	}{
		{"not started", Metrics{}, "Pick the entry"},
		{"rough", Metrics{Done: 3, Accuracy: 20}, "still rough"},
		{"settling", Metrics{Done: 30, Accuracy: 75}, "settling"},
		{"complete", Metrics{Done: 40, Complete: true}, "export"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Contains(t, recommendation(tc.metrics), tc.contains)
		})
	}
}

func TestCreateProgressBar(t *testing.T) {
	testCases := []struct {
		progress float64
		complete bool
		filled   int
		color    string
	}{
		{0, false, 0, "[blue]"},
		{0.5, false, 15, "[blue]"},
		{1, true, 30, "[green]"},
		{1.7, true, 30, "[green]"},
		{-0.2, false, 0, "[blue]"},
	}

	for _, tc := range testCases {
		bar := createProgressBar(tc.progress, tc.complete)
		assert.True(t, strings.HasPrefix(bar, tc.color))
		assert.Equal(t, tc.filled, strings.Count(bar, "█"))
		assert.Equal(t, 30-tc.filled, strings.Count(bar, "░"))
	}
}

func TestFormatDuration(t *testing.T) {
	testCases := []struct {
		duration time.Duration
		expected string
	}{
		{30 * time.Second, "30s"},
		{90 * time.Second, "1m 30s"},
		{3661 * time.Second, "1h 1m"},
	}

	for _, tc := range testCases {
		assert.Equal(t, tc.expected, formatDuration(tc.duration))
	}
}

func BenchmarkProgressUpdate(b *testing.B) {
	progress := NewProgress(DefaultProgressConfig())
	metrics := Metrics{Done: 30, Total: 120, Percent: 25, Accuracy: 40, Remaining: 90, Elapsed: time.Minute}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		progress.Update(metrics)
	}
}
