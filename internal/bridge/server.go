package bridge

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/omnitool/omnitool/internal/model"
)

const maxRequestSize = 1 << 20

// Request is one line read by Serve.
type Request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response answers the Request with the same ID.
type Response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *Error          `json:"error,omitempty"`
}

// Event is pushed while a download runs.
type Event struct {
	Event         string `json:"event"`
	CorrelationID string `json:"correlationId"`
	Data          any    `json:"data"`
}

const EventDownloadProgress = "download-progress"

type urlParams struct {
	URL string `json:"url"`
}

type idParams struct {
	CorrelationID string `json:"correlationId"`
}

// selection is the result of selectDirectory, path is null when the user
// dismissed the dialog.
type selection struct {
	Path *string `json:"path"`
}

// Serve reads JSON requests from r, one per line, and writes responses and
// events to w, one per line. Requests run concurrently. Methods:
//
//	getVideoInfo    {"url"}                                   -> VideoInfo
//	downloadVideo   {"url","quality","format","outputPath"}   -> Outcome, after download-progress events
//	cancel          {"correlationId"}                         -> bool
//	selectDirectory {}                                        -> {"path"}
//
// Serve returns at the end of r, or once ctx is done, after cancelling the
// running tasks and waiting for their responses. When r is an io.Closer it
// is closed once ctx is done.
func (b *Bridge) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	parent := ctx
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if c, ok := r.(io.Closer); ok {
		stop := context.AfterFunc(parent, func() { _ = c.Close() })
		defer stop()
	}

	out := &encoder{enc: json.NewEncoder(w)}
	g, gctx := errgroup.WithContext(ctx)

	lines := make(chan []byte)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), maxRequestSize)
		for scanner.Scan() {
			select {
			case lines <- bytes.Clone(scanner.Bytes()):
			case <-ctx.Done():
				scanErr <- nil
				return
			}
		}
		scanErr <- scanner.Err()
	}()

read:
	for {
		var line []byte
		select {
		case <-ctx.Done():
			break read
		case l, ok := <-lines:
			if !ok {
				break read
			}
			line = l
		}
		if len(line) == 0 {
			continue
		}
		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if err := out.send(Response{Error: &Error{Code: CodeValidation, Message: "malformed request: " + err.Error()}}); err != nil {
				break read
			}
			continue
		}
		g.Go(func() error {
			return b.handle(gctx, out, req)
		})
	}

	slog.DebugContext(ctx, "bridge input closed: cancelling running requests")
	cancel()
	if err := g.Wait(); err != nil {
		return err
	}
	if err := parent.Err(); err != nil {
		return err
	}
	select {
	case err := <-scanErr:
		if err != nil {
			return fmt.Errorf("reading requests: %w", err)
		}
	default:
	}
	return nil
}

func (b *Bridge) handle(ctx context.Context, out *encoder, req Request) error {
	result, err := b.call(ctx, out, req)
	resp := Response{ID: req.ID, Result: result, Error: ToError(err)}
	if err != nil {
		slog.DebugContext(ctx, "request failed", "method", req.Method, "code", resp.Error.Code, "error", err)
		resp.Result = nil
	}
	return out.send(resp)
}

func (b *Bridge) call(ctx context.Context, out *encoder, req Request) (any, error) {
	switch req.Method {
	case "getVideoInfo":
		var p urlParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return b.GetVideoInfo(ctx, p.URL)
	case "downloadVideo":
		var p DownloadRequest
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return b.serveDownload(ctx, out, p)
	case "cancel":
		var p idParams
		if err := decodeParams(req.Params, &p); err != nil {
			return nil, err
		}
		return b.Cancel(p.CorrelationID), nil
	case "selectDirectory":
		path, ok, err := b.SelectDirectory(ctx)
		if err != nil {
			return nil, err
		}
		if !ok {
			return selection{}, nil
		}
		return selection{Path: &path}, nil
	default:
		return nil, &model.ValidationError{Field: "method", Reason: "unknown method " + req.Method}
	}
}

func (b *Bridge) serveDownload(ctx context.Context, out *encoder, p DownloadRequest) (model.Outcome, error) {
	d, err := b.DownloadVideo(ctx, p)
	if err != nil {
		return model.Outcome{}, err
	}
	stop := context.AfterFunc(ctx, func() { b.Cancel(d.ID()) })
	defer stop()

	for ev := range d.Progress() {
		err := out.send(Event{
			Event:         EventDownloadProgress,
			CorrelationID: d.ID(),
			Data:          ev,
		})
		if err != nil {
			d.Discard()
			b.Cancel(d.ID())
			return model.Outcome{}, err
		}
	}
	// the task is terminal once the stream ends
	return d.Wait(context.WithoutCancel(ctx))
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &model.ValidationError{Field: "params", Reason: err.Error()}
	}
	return nil
}

// encoder serializes writes of concurrent requests.
type encoder struct {
	mx  sync.Mutex
	enc *json.Encoder
}

func (e *encoder) send(v any) error {
	e.mx.Lock()
	defer e.mx.Unlock()
	if err := e.enc.Encode(v); err != nil {
		return fmt.Errorf("writing response: %w", err)
	}
	return nil
}
