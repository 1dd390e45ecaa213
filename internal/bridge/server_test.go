//go:build unix

package bridge_test

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/omnitool/omnitool/internal/bridge"
	"github.com/omnitool/omnitool/internal/model"

	"github.com/stretchr/testify/require"
)

// session runs Serve over pipes.
type session struct {
	t       *testing.T
	in      *io.PipeWriter
	lines   chan map[string]any
	serveCh chan error
}

func newSession(ctx context.Context, t *testing.T, b *bridge.Bridge) *session {
	t.Helper()
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()
	s := &session{
		t:       t,
		in:      inW,
		lines:   make(chan map[string]any, 64),
		serveCh: make(chan error, 1),
	}
	go func() {
		err := b.Serve(ctx, inR, outW)
		_ = outW.Close()
		s.serveCh <- err
	}()
	go func() {
		defer close(s.lines)
		scanner := bufio.NewScanner(outR)
		for scanner.Scan() {
			var m map[string]any
			if err := json.Unmarshal(scanner.Bytes(), &m); err != nil {
				t.Errorf("server wrote invalid JSON %q: %v", scanner.Text(), err)
				continue
			}
			s.lines <- m
		}
	}()
	return s
}

func (s *session) send(line string) {
	s.t.Helper()
	_, err := io.WriteString(s.in, line+"\n")
	require.NoError(s.t, err)
}

func (s *session) next() map[string]any {
	s.t.Helper()
	select {
	case m, ok := <-s.lines:
		require.True(s.t, ok, "output closed")
		return m
	case <-time.After(10 * time.Second):
		s.t.Fatal("no output from the bridge")
		return nil
	}
}

// close ends the input and returns what Serve returned.
func (s *session) close() error {
	s.t.Helper()
	require.NoError(s.t, s.in.Close())
	for range s.lines {
	}
	return <-s.serveCh
}

func TestServe(t *testing.T) {
	t.Parallel()
	cfg := testConfig(t, infoScript)
	b, _ := newBridge(t, cfg, bridge.WithPicker(bridge.PickerFunc(func(context.Context) (string, bool, error) {
		return "", false, nil
	})))
	s := newSession(context.Background(), t, b)

	s.send(`{"id":1,"method":"getVideoInfo","params":{"url":"https://www.youtube.com/watch?v=f6kdp27TYZs"}}`)
	resp := s.next()
	require.Equal(t, float64(1), resp["id"])
	require.Nil(t, resp["error"])
	require.Equal(t, "Go Concurrency Patterns", resp["result"].(map[string]any)["title"])

	s.send(`{"id":"dl","method":"downloadVideo","params":{"url":"https://e.com/v","quality":"best","format":"mp3","outputPath":"/tmp","correlationId":"dl-1"}}`)
	var percents []float64
	for {
		m := s.next()
		if m["event"] == nil {
			require.Equal(t, "dl", m["id"])
			require.Nil(t, m["error"])
			result := m["result"].(map[string]any)
			require.Equal(t, "dl-1", result["correlationId"])
			require.Equal(t, "succeeded", result["state"])
			break
		}
		require.Equal(t, bridge.EventDownloadProgress, m["event"])
		require.Equal(t, "dl-1", m["correlationId"])
		percents = append(percents, m["data"].(map[string]any)["percent"].(float64))
	}
	require.Equal(t, []float64{10, 55, 100}, percents)

	s.send(`{"id":3,"method":"selectDirectory"}`)
	resp = s.next()
	require.Equal(t, map[string]any{"path": nil}, resp["result"])

	s.send(`{"id":4,"method":"cancel","params":{"correlationId":"nothing"}}`)
	resp = s.next()
	require.Equal(t, false, resp["result"])

	s.send(`{"id":5,"method":"downloadVideo","params":{"url":"ftp://e.com/v"}}`)
	resp = s.next()
	require.Equal(t, bridge.CodeValidation, resp["error"].(map[string]any)["code"])

	s.send(`{"id":6,"method":"format disk"}`)
	resp = s.next()
	require.Equal(t, bridge.CodeValidation, resp["error"].(map[string]any)["code"])

	s.send(`{not json`)
	resp = s.next()
	require.Nil(t, resp["id"])
	require.Equal(t, bridge.CodeValidation, resp["error"].(map[string]any)["code"])

	require.NoError(t, s.close())
}

func TestServeEOFCancels(t *testing.T) {
	t.Parallel()
	b, rec := newBridge(t, testConfig(t, `echo '{"status":"downloading","percent":5}'; sleep 30`))
	s := newSession(context.Background(), t, b)

	s.send(`{"id":1,"method":"downloadVideo","params":{"url":"https://e.com/v","correlationId":"long"}}`)
	ev := s.next()
	require.Equal(t, bridge.EventDownloadProgress, ev["event"])

	require.NoError(t, s.in.Close())
	resp := s.next()
	require.Equal(t, float64(1), resp["id"])
	require.Equal(t, bridge.CodeCancelled, resp["error"].(map[string]any)["code"])
	require.Equal(t, model.StateCancelled, rec.next(t).State)

	require.NoError(t, s.close())
}

func TestServeContextCancels(t *testing.T) {
	t.Parallel()
	b, rec := newBridge(t, testConfig(t, `echo '{"status":"downloading","percent":5}'; sleep 30`))
	ctx, cancel := context.WithCancel(context.Background())
	s := newSession(ctx, t, b)

	s.send(`{"id":1,"method":"downloadVideo","params":{"url":"https://e.com/v","correlationId":"interrupted"}}`)
	ev := s.next()
	require.Equal(t, bridge.EventDownloadProgress, ev["event"])

	// the input stays open, only the context ends
	cancel()
	resp := s.next()
	require.Equal(t, float64(1), resp["id"])
	require.Equal(t, bridge.CodeCancelled, resp["error"].(map[string]any)["code"])
	require.Equal(t, model.StateCancelled, rec.next(t).State)

	select {
	case err := <-s.serveCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("Serve did not return after its context was cancelled")
	}
	_ = s.in.Close()
}
