package model_test

import (
	"errors"
	"testing"

	"github.com/omnitool/omnitool/internal/model"
	"github.com/stretchr/testify/require"
)

func TestParseVideoInfo(t *testing.T) {
	t.Parallel()

	out := []byte(`{"success": true, "title": "Go Concurrency Patterns", "duration": 3081, "view_count": 1234567,
	"uploader": "Google for Developers", "description": "Rob Pike", "thumbnail": "https://i.ytimg.com/vi/f6kdp27TYZs/hq.jpg",
	"formats": [{"quality": "720p", "format": "mp4"}, {"quality": "360p", "format": "webm"}]}`)

	info, err := model.ParseVideoInfo(out)
	require.NoError(t, err)
	require.Equal(t, model.VideoInfo{
		Title:           "Go Concurrency Patterns",
		DurationSeconds: 3081,
		ViewCount:       1234567,
		Uploader:        "Google for Developers",
		Description:     "Rob Pike",
		ThumbnailURL:    "https://i.ytimg.com/vi/f6kdp27TYZs/hq.jpg",
		Formats: []model.FormatOption{
			{Quality: "720p", Format: "mp4"},
			{Quality: "360p", Format: "webm"},
		},
	}, info)
}

func TestParseVideoInfo_Partial(t *testing.T) {
	t.Parallel()
	// two stdout lines concatenated without their terminators
	info, err := model.ParseVideoInfo([]byte(`{"title":"X"` + `,"duration":5}`))
	require.NoError(t, err)
	require.Equal(t, model.VideoInfo{Title: "X", DurationSeconds: 5}, info)
}

func TestParseVideoInfo_Fail(t *testing.T) {
	t.Parallel()

	for _, given := range []string{
		"",
		"   ",
		"not json",
		`[{"title":"X"}]`,
		`{"title":"X"`,
		`{"title":"X"}{"title":"Y"}`,
		`{"success": false, "error": "Invalid URL"}`,
	} {
		_, err := model.ParseVideoInfo([]byte(given))
		require.Error(t, err, given)
		var protoErr *model.ProtocolError
		require.True(t, errors.As(err, &protoErr), given)
		require.Equal(t, model.KindFetchInfo, protoErr.Kind)
	}

	_, err := model.ParseVideoInfo([]byte(`{"success": false, "error": "Invalid URL"}`))
	require.ErrorContains(t, err, "Invalid URL")
}

func TestErrors(t *testing.T) {
	t.Parallel()

	cause := errors.New("exec: \"nope\": executable file not found in $PATH")
	var spawnErr *model.SpawnError
	err := error(&model.SpawnError{Path: "nope", Err: cause})
	require.ErrorAs(t, err, &spawnErr)
	require.ErrorIs(t, err, cause)

	require.EqualError(t, &model.ProcessExitError{Code: 1, Stderr: "network error"}, "worker exited with code 1")
	require.EqualError(t, &model.ProcessExitError{Code: -1, Signal: "killed"}, "worker terminated by signal killed")
	require.EqualError(t, &model.DuplicateTaskError{CorrelationID: "a"}, `task "a" is already running`)
	require.EqualError(t, &model.CancelledError{CorrelationID: "a"}, `task "a" was cancelled`)
	require.EqualError(t, &model.ValidationError{Field: "url", Reason: "must not be empty"}, "invalid url: must not be empty")
	require.EqualError(t, &model.ProtocolError{Kind: model.KindFetchInfo, Detail: "empty output"}, "fetch_info: protocol error: empty output")
}
