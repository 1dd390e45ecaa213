package model_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/omnitool/omnitool/internal/model"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoadConfig(t *testing.T) {
	t.Parallel()
	yml := `
version: 0
worker:
  path: /usr/bin/python3
  args:
    - tools/youtube_downloader/api.py
  env:
    PYTHONUNBUFFERED: "1"
  grace_period: 5s
engine:
  verbose: true
  download_dir: /tmp/downloads
  default_quality: 720p
  default_format: mp3
  picker: [zenity, --file-selection, --directory]
history:
  enabled: true
  path: /tmp/omnitool.db
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, "/usr/bin/python3", cfg.Worker.Path)
	require.Equal(t, []string{"tools/youtube_downloader/api.py"}, cfg.Worker.Args)
	require.Equal(t, "1", cfg.Worker.Env["PYTHONUNBUFFERED"])
	require.Equal(t, 5*time.Second, cfg.Worker.Grace())
	require.True(t, cfg.Engine.Verbose)
	require.Equal(t, "720p", cfg.Engine.DefaultQuality)
	require.Equal(t, "mp3", cfg.Engine.DefaultFormat)
	require.Equal(t, []string{"zenity", "--file-selection", "--directory"}, cfg.Engine.Picker)
	require.True(t, cfg.History.Enabled)
	require.False(t, cfg.Metrics.Enabled)
}

func TestLoadConfig_Fail(t *testing.T) {
	t.Parallel()

	var testCases = []struct {
		scenario string
		yml      string
		path     string
	}{
		{
			"missing worker path",
			"version: 0\nworker:\n  args: [a]\n",
			"worker.path",
		},
		{
			"unknown quality",
			"version: 0\nworker:\n  path: w\nengine:\n  default_quality: 8k\n",
			"engine.default_quality",
		},
		{
			"unknown field",
			"version: 0\nworker:\n  path: w\n  shell: true\n",
			"worker.shell",
		},
		{
			"grace period in words",
			"version: 0\nworker:\n  path: w\n  grace_period: 3 seconds\n",
			"worker.grace_period",
		},
		{
			"negative grace period",
			"version: 0\nworker:\n  path: w\n  grace_period: -1s\n",
			"worker.grace_period",
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			_, err := model.LoadConfig(strings.NewReader(tt.yml))
			require.Error(t, err)
			details := model.CueErrDetails(err)
			require.NotEmpty(t, details)
			var paths []string
			for _, d := range details {
				paths = append(paths, d.Path)
			}
			require.Contains(t, paths, tt.path)
		})
	}
}

func TestLoadConfig_GracePeriod(t *testing.T) {
	t.Parallel()
	_, err := model.LoadConfig(strings.NewReader("version: 0\nworker:\n  path: w\n  grace_period: 3 seconds\n"))
	var valErr *model.ValidationError
	require.ErrorAs(t, err, &valErr)

	details := model.CueErrDetails(err)
	require.Len(t, details, 1)
	require.Equal(t, "invalid_value", details[0].Code)
	require.Contains(t, details[0].Message, `"3 seconds"`)
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()
	cfg := model.DefaultConfig(t.Context())

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	require.NoError(t, enc.Encode(cfg))
	require.NoError(t, enc.Close())

	// the written default must pass its own schema
	loaded, err := model.LoadConfig(&buf)
	require.NoError(t, err)
	require.Equal(t, cfg.Worker, loaded.Worker)
	require.Equal(t, model.DefaultGrace, loaded.Worker.Grace())
	require.Equal(t, model.QualityBest, loaded.Engine.DefaultQuality)
}

func TestGrace(t *testing.T) {
	t.Parallel()
	require.Equal(t, model.DefaultGrace, model.Worker{}.Grace())
	require.Equal(t, model.DefaultGrace, model.Worker{GracePeriod: "bogus"}.Grace())
	require.Equal(t, 250*time.Millisecond, model.Worker{GracePeriod: "250ms"}.Grace())
}
