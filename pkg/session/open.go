package session

import (
	"context"
	"errors"
	"log/slog"

	"github.com/pashagolub/listrank/pkg/data"
	"github.com/pashagolub/listrank/pkg/ranking"
)

// Prepare loads the engine for a ranking run. Saved progress for key is
// restored when storage has it; otherwise, or when the saved state is
// unusable, the engine starts fresh from list. The list may be nil when
// resuming without the original file, in which case it is rebuilt from the
// saved progress.
func Prepare(ctx context.Context, engine *ranking.Engine, list *data.List, storage data.Storage, key string, useExisting bool, logger *slog.Logger) (Mode, *data.List, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var progress *data.Progress
	if storage != nil {
		var err error
		progress, err = storage.Load(ctx, key)
		switch {
		case err == nil:
		case errors.Is(err, data.ErrProgressExpired):
			logger.Info("saved progress expired, starting over", "key", key)
			progress = nil
		case errors.Is(err, data.ErrProgressNotFound):
			progress = nil
		default:
			return StartMode, list, err
		}
	}

	if progress == nil {
		if list == nil {
			return StartMode, nil, data.ErrProgressNotFound
		}
		engine.Initialize(list.Seeds(), useExisting)
		return StartMode, list, nil
	}

	if list == nil {
		list = ListFromProgress(progress)
	}
	if progress.DisplayMode != "" {
		if err := engine.SetDisplayMode(ranking.DisplayMode(progress.DisplayMode)); err != nil {
			logger.Warn("ignoring saved display mode", "mode", progress.DisplayMode, "error", err)
		}
	}
	if err := engine.RestoreState(progress.Items, progress.EngineState); err != nil {
		logger.Warn("saved progress is unusable, starting over", "key", key, "error", err)
		engine.Initialize(list.Seeds(), useExisting)
		return StartMode, list, nil
	}

	state := engine.State()
	logger.Info("progress restored",
		"key", key,
		"done", state.ComparisonsDone,
		"total", state.TotalComparisons,
		"saved_at", progress.SavedAt)
	return ResumeMode, list, nil
}

// ListFromProgress rebuilds the list a saved session was created from
func ListFromProgress(progress *data.Progress) *data.List {
	entries := make([]data.ListEntry, len(progress.Items))
	for i, item := range progress.Items {
		entries[i] = data.ListEntry{ID: item.ID, Title: item.Title, ImageURL: item.ImageURL}
	}
	return &data.List{
		Kind:     progress.Kind,
		Format:   progress.Format,
		Entries:  entries,
		Original: progress.Original,
	}
}
