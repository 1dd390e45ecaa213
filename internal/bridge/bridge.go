// Package bridge is the request API a presentation layer talks to. It
// validates requests, starts worker tasks through the Engine and hands
// back awaitable results and progress streams.
package bridge

import (
	"cmp"
	"context"
	"errors"
	"log/slog"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/omnitool/omnitool/internal/model"
	"github.com/omnitool/omnitool/internal/publish"
	"github.com/omnitool/omnitool/internal/service"
)

// DownloadRequest are the parameters of DownloadVideo. Empty quality,
// format and output path take the configured defaults, an empty
// correlation id is generated.
type DownloadRequest struct {
	URL           string `json:"url"`
	Quality       string `json:"quality,omitempty"`
	Format        string `json:"format,omitempty"`
	OutputPath    string `json:"outputPath,omitempty"`
	CorrelationID string `json:"correlationId,omitempty"`
}

type Bridge struct {
	engine *Engine

	mx        sync.Mutex
	downloads map[string]*publish.Download
}

func New(engine *Engine) *Bridge {
	return &Bridge{
		engine:    engine,
		downloads: make(map[string]*publish.Download),
	}
}

// GetVideoInfo runs a fetch info task and waits for its metadata. When ctx
// ends first the task is cancelled.
func (b *Bridge) GetVideoInfo(ctx context.Context, rawURL string) (model.VideoInfo, error) {
	if err := validateURL(rawURL); err != nil {
		return model.VideoInfo{}, err
	}
	id := "info-" + uuid.NewString()
	obs, future := publish.Info()
	req := model.TaskRequest{
		Kind:          model.KindFetchInfo,
		Args:          []string{strings.TrimSpace(rawURL)},
		CorrelationID: id,
	}
	if _, err := b.engine.supervisor.Submit(ctx, req, obs); err != nil {
		return model.VideoInfo{}, err
	}

	info, err := future.Wait(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		b.engine.supervisor.Cancel(id)
	}
	return info, err
}

// Download is a running download. Progress must be drained or Discard
// called, Wait returns the outcome.
type Download struct {
	bridge *Bridge
	pub    *publish.Download
}

func (d *Download) ID() string { return d.pub.ID() }

func (d *Download) Progress() <-chan model.ProgressEvent { return d.pub.Progress() }

// Discard drops the progress events nobody is going to read.
func (d *Download) Discard() { d.pub.Discard() }

// Wait blocks until the download is terminal. When ctx ends first the task
// is cancelled and ctx.Err() returned.
func (d *Download) Wait(ctx context.Context) (model.Outcome, error) {
	outcome, err := d.pub.Outcome().Wait(ctx)
	if err != nil && ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		d.bridge.Cancel(d.ID())
		outcome = model.Outcome{CorrelationID: d.ID(), State: model.StateRunning}
	}
	return outcome, err
}

// DownloadVideo validates req and starts the download.
func (b *Bridge) DownloadVideo(ctx context.Context, req DownloadRequest) (*Download, error) {
	opts, err := b.downloadOptions(req)
	if err != nil {
		return nil, err
	}
	id := req.CorrelationID
	if id == "" {
		id = uuid.NewString()
	}

	pub := publish.NewDownload(id)
	b.mx.Lock()
	if _, ok := b.downloads[id]; ok {
		b.mx.Unlock()
		pub.Discard()
		return nil, &model.DuplicateTaskError{CorrelationID: id}
	}
	b.downloads[id] = pub
	b.mx.Unlock()

	obs := pub.Observer()
	onExit := obs.OnExit
	obs.OnExit = func(exit service.Exit) {
		b.forget(id, pub)
		onExit(exit)
	}

	taskReq := model.TaskRequest{
		Kind:          model.KindDownload,
		Args:          opts.Args(),
		CorrelationID: id,
	}
	if _, err := b.engine.supervisor.Submit(ctx, taskReq, obs); err != nil {
		b.forget(id, pub)
		pub.Discard()
		return nil, err
	}
	slog.DebugContext(ctx, "download started", "correlation_id", id, "quality", opts.Quality, "format", opts.Format)
	return &Download{bridge: b, pub: pub}, nil
}

// Progress returns the progress channel of a running download. The
// channel has a single consumer shared with Download.Progress.
func (b *Bridge) Progress(id string) (<-chan model.ProgressEvent, bool) {
	b.mx.Lock()
	defer b.mx.Unlock()
	pub, ok := b.downloads[id]
	if !ok {
		return nil, false
	}
	return pub.Progress(), true
}

// Cancel cancels a running task, it reports whether there was one.
func (b *Bridge) Cancel(id string) bool {
	return b.engine.supervisor.Cancel(id)
}

// SelectDirectory asks the configured picker for a directory.
func (b *Bridge) SelectDirectory(ctx context.Context) (string, bool, error) {
	if b.engine.picker == nil {
		return "", false, errNoPicker
	}
	return b.engine.picker.SelectDirectory(ctx)
}

func (b *Bridge) forget(id string, pub *publish.Download) {
	b.mx.Lock()
	if b.downloads[id] == pub {
		delete(b.downloads, id)
	}
	b.mx.Unlock()
}

func (b *Bridge) downloadOptions(req DownloadRequest) (model.DownloadOptions, error) {
	defaults := b.engine.cfg.Engine
	opts := model.DownloadOptions{
		URL:        strings.TrimSpace(req.URL),
		Quality:    req.Quality,
		Format:     req.Format,
		OutputPath: req.OutputPath,
	}
	if opts.Quality == "" {
		opts.Quality = cmp.Or(defaults.DefaultQuality, model.QualityBest)
	}
	if opts.Format == "" {
		opts.Format = cmp.Or(defaults.DefaultFormat, model.FormatMP4)
	}
	if opts.OutputPath == "" {
		opts.OutputPath = defaults.DownloadDir
	}

	if err := validateURL(opts.URL); err != nil {
		return opts, err
	}
	if !model.ValidQuality(opts.Quality) {
		return opts, &model.ValidationError{Field: "quality", Reason: "unknown quality " + opts.Quality}
	}
	if !model.ValidFormat(opts.Format) {
		return opts, &model.ValidationError{Field: "format", Reason: "unknown format " + opts.Format}
	}
	if strings.TrimSpace(opts.OutputPath) == "" {
		return opts, &model.ValidationError{Field: "outputPath", Reason: "must not be empty"}
	}
	return opts, nil
}

func validateURL(raw string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return &model.ValidationError{Field: "url", Reason: "must not be empty"}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return &model.ValidationError{Field: "url", Reason: err.Error()}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return &model.ValidationError{Field: "url", Reason: "must be an http or https url"}
	}
	if u.Host == "" {
		return &model.ValidationError{Field: "url", Reason: "host is missing"}
	}
	return nil
}
