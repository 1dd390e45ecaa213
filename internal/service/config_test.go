package service_test

import (
	"testing"

	"github.com/omnitool/omnitool/internal/model"
	"github.com/omnitool/omnitool/internal/service"

	"github.com/stretchr/testify/require"
)

func TestCommandFromConfig(t *testing.T) {
	t.Setenv("OMNITOOL_TEST_HOME", "/home/omni")

	cmd := service.CommandFromConfig(model.Worker{
		Path: "python3",
		Args: []string{"tools/youtube_downloader/api.py"},
		Env: map[string]string{
			"PYTHONUNBUFFERED": "1",
			"HOME":             "$OMNITOOL_TEST_HOME",
		},
	})

	require.Equal(t, "python3", cmd.Path)
	require.Equal(t, []string{"tools/youtube_downloader/api.py"}, cmd.Args)
	require.Equal(t, []string{"HOME=/home/omni", "PYTHONUNBUFFERED=1"}, cmd.Env)
}
