package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/omnitool/omnitool/internal/model"

	"github.com/stretchr/testify/require"
)

func TestWriteConfig(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "nested", "omnitool.yaml")
	cfg := model.DefaultConfig(t.Context())
	require.NoError(t, writeConfig(path, cfg))
	require.True(t, exists(path))
	require.False(t, exists(filepath.Dir(path)))
	require.False(t, exists(filepath.Join(t.TempDir(), "missing.yaml")))

	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	loaded, err := model.LoadConfig(f)
	require.NoError(t, err)
	require.Equal(t, cfg.Worker, loaded.Worker)
	require.Equal(t, cfg.Engine, loaded.Engine)
}

func TestPrintRecords(t *testing.T) {
	t.Parallel()
	started := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	records := []model.TaskRecord{
		{
			CorrelationID: "dl-1",
			Kind:          model.KindDownload,
			Args:          []string{"https://e.com/v"},
			State:         model.StateFailed,
			ExitCode:      2,
			Error:         "boom",
			Started:       started,
			Stopped:       started.Add(1500 * time.Millisecond),
		},
		{
			CorrelationID: "info-1",
			Kind:          model.KindFetchInfo,
			State:         model.StateSucceeded,
			Started:       started,
			Stopped:       started,
		},
	}

	var buf bytes.Buffer
	require.NoError(t, printRecords(&buf, records))

	dec := json.NewDecoder(&buf)
	var first, second map[string]any
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	require.False(t, dec.More())

	require.Equal(t, "dl-1", first["correlationId"])
	require.Equal(t, model.KindDownload.String(), first["kind"])
	require.Equal(t, "failed", first["state"])
	require.Equal(t, float64(2), first["exitCode"])
	require.Equal(t, "boom", first["error"])
	require.Equal(t, "1.5s", first["duration"])
	require.NotContains(t, first, "signal")

	require.Equal(t, "succeeded", second["state"])
	require.NotContains(t, second, "error")
	require.Equal(t, "0s", second["duration"])
}
