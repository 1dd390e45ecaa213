// Package publish turns task observers into values a caller can wait on.
package publish

import (
	"github.com/omnitool/omnitool/internal/model"
	"github.com/omnitool/omnitool/internal/protocol"
	"github.com/omnitool/omnitool/internal/service"
)

// Info returns an observer resolving the future with the metadata of a
// fetch info task, or with the task error.
func Info() (service.Observer, *Future[model.VideoInfo]) {
	f := NewFuture[model.VideoInfo]()
	obs := service.Observer{
		OnExit: func(exit service.Exit) {
			if exit.State == model.StateSucceeded && exit.Info != nil {
				f.Resolve(*exit.Info, nil)
				return
			}
			f.Resolve(model.VideoInfo{}, exit.Err)
		},
	}
	return obs, f
}

// Download publishes the progress of one download task.
type Download struct {
	id       string
	progress *Stream[model.ProgressEvent]
	outcome  *Future[model.Outcome]
}

func NewDownload(correlationID string) *Download {
	return &Download{
		id:       correlationID,
		progress: NewStream[model.ProgressEvent](),
		outcome:  NewFuture[model.Outcome](),
	}
}

func (d *Download) ID() string { return d.id }

// Progress delivers every progress event of the task in order and is
// closed after the last one.
func (d *Download) Progress() <-chan model.ProgressEvent {
	return d.progress.C()
}

// Outcome resolves when the task is terminal. A task that did not succeed
// carries its error next to the outcome.
func (d *Download) Outcome() *Future[model.Outcome] {
	return d.outcome
}

// Discard drops undelivered progress events, for consumers that stop
// reading.
func (d *Download) Discard() {
	d.progress.Stop()
}

func (d *Download) Observer() service.Observer {
	return service.Observer{
		OnLine: d.onLine,
		OnExit: d.onExit,
	}
}

func (d *Download) onLine(line protocol.Line) {
	ev, ok := line.(protocol.StructuredEvent)
	if !ok {
		return
	}
	if p, ok := model.ProgressFromFields(ev.Fields); ok {
		d.progress.Publish(p)
	}
}

func (d *Download) onExit(exit service.Exit) {
	d.progress.Close()
	d.outcome.Resolve(model.Outcome{
		CorrelationID: d.id,
		State:         exit.State,
		ExitCode:      exit.ExitCode,
		Message:       exit.Message,
	}, exit.Err)
}
