package history_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/omnitool/omnitool/internal/history"
	"github.com/omnitool/omnitool/internal/model"

	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "history.db")

	store, err := history.Open(t.Context(), path)
	require.NoError(t, err)

	var _ model.RecordCloser = store

	started := time.Date(2026, 10, 18, 12, 0, 0, 123456789, time.UTC)
	first := model.TaskRecord{
		CorrelationID: "dl-1",
		Kind:          model.KindDownload,
		Args:          []string{"--url", "https://e.com/v", "--output", "/tmp/My Music"},
		PID:           4242,
		State:         model.StateFailed,
		ExitCode:      1,
		Error:         "worker exited with code 1",
		Started:       started,
		Stopped:       started.Add(2 * time.Second),
	}
	second := first
	second.PID = 4343
	second.State = model.StateSucceeded
	second.ExitCode = 0
	second.Error = ""
	second.Stopped = started.Add(5 * time.Second)

	info := model.TaskRecord{
		CorrelationID: "info-1",
		Kind:          model.KindFetchInfo,
		Args:          []string{"https://e.com/v"},
		State:         model.StateCancelled,
		ExitCode:      -1,
		Signal:        "terminated",
		Started:       started,
		Stopped:       started.Add(time.Second),
	}

	for _, rec := range []model.TaskRecord{first, second, info} {
		require.NoError(t, store.Record(t.Context(), rec))
	}

	t.Run("get latest", func(t *testing.T) {
		got, err := store.Get(t.Context(), "dl-1")
		require.NoError(t, err)
		require.Equal(t, second, got)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.Get(t.Context(), "nope")
		require.ErrorIs(t, err, model.ErrNotFound)
	})

	t.Run("list", func(t *testing.T) {
		all, err := store.List(t.Context(), 0)
		require.NoError(t, err)
		require.Equal(t, []model.TaskRecord{info, second, first}, all)

		two, err := store.List(t.Context(), 2)
		require.NoError(t, err)
		require.Equal(t, []model.TaskRecord{info, second}, two)
	})

	require.NoError(t, store.Close())

	// records survive reopening
	store, err = history.Open(t.Context(), path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	all, err := store.List(t.Context(), 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
}
