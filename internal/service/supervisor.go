package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/omnitool/omnitool/internal/log"
	"github.com/omnitool/omnitool/internal/model"
	"github.com/omnitool/omnitool/internal/protocol"
)

var ErrSupervisorClosed = errors.New("supervisor closed")

type (
	StderrFunc func(ctx context.Context, line string)
	StartFunc  func(ctx context.Context, h *Handle)
	ExitFunc   func(ctx context.Context, exit Exit)
)

type Option func(*Supervisor)

// WithGracePeriod sets how long a cancelled worker may take to exit after
// SIGTERM before its process group is killed.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithExitFunc adds an observer called for every finished task before the
// task's own Observer.
func WithExitFunc(fn ExitFunc) Option {
	return func(s *Supervisor) {
		s.exitFuncs = append(s.exitFuncs, fn)
	}
}

// WithStartFunc adds a func called once a worker process runs.
func WithStartFunc(fn StartFunc) Option {
	return func(s *Supervisor) {
		s.startFuncs = append(s.startFuncs, fn)
	}
}

func WithStderrFunc(fn StderrFunc) Option {
	return func(s *Supervisor) {
		s.stderrFunc = fn
	}
}

// Supervisor starts worker processes and tracks them until they exit. At
// most one task per correlation id is live at a time.
type Supervisor struct {
	ctx        context.Context
	cancel     context.CancelFunc
	cmd        Command
	grace      time.Duration
	exitFuncs  []ExitFunc
	startFuncs []StartFunc
	stderrFunc StderrFunc

	mx      sync.Mutex
	handles map[string]*Handle
	closed  bool
	g       errgroup.Group
}

// NewSupervisor returns a supervisor running cmd. Cancelling ctx has the
// same effect as Close except it does not wait.
func NewSupervisor(ctx context.Context, cmd Command, opts ...Option) *Supervisor {
	ctx, cancel := context.WithCancel(ctx)
	s := &Supervisor{
		ctx:     ctx,
		cancel:  cancel,
		cmd:     cmd,
		grace:   model.DefaultGrace,
		handles: make(map[string]*Handle),
		stderrFunc: func(ctx context.Context, line string) {
			slog.DebugContext(ctx, "worker stderr", "line", line)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit starts a worker for req. ctx only carries logging attributes, the
// task lives until it exits or is cancelled.
//
// A failure to start the process finishes the handle as Failed, notifies
// the observers and returns a *model.SpawnError.
func (s *Supervisor) Submit(ctx context.Context, req model.TaskRequest, obs Observer) (*Handle, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	s.mx.Lock()
	if s.closed || s.ctx.Err() != nil {
		s.mx.Unlock()
		return nil, ErrSupervisorClosed
	}
	if _, ok := s.handles[req.CorrelationID]; ok {
		s.mx.Unlock()
		return nil, &model.DuplicateTaskError{CorrelationID: req.CorrelationID}
	}

	taskCtx, cancel := context.WithCancel(s.ctx)
	h := &Handle{
		id:       req.CorrelationID,
		kind:     req.Kind,
		args:     slices.Clone(req.Args),
		observer: obs,
		logCtx:   log.TaskContext(context.WithoutCancel(ctx), req.CorrelationID, req.Kind.String()),
		cancel:   cancel,
		done:     make(chan struct{}),
		state:    model.StateRunning,
	}
	s.handles[h.id] = h
	started := make(chan error, 1)
	s.g.Go(func() error {
		s.run(taskCtx, h, started)
		return nil
	})
	s.mx.Unlock()

	if err := <-started; err != nil {
		return nil, err
	}
	return h, nil
}

// Cancel requests termination of a live task. It returns false when id is
// not live or was already cancelled.
func (s *Supervisor) Cancel(id string) bool {
	s.mx.Lock()
	h, ok := s.handles[id]
	s.mx.Unlock()
	if !ok || !h.requestCancel() {
		return false
	}
	slog.DebugContext(h.logCtx, "cancelling task")
	h.cancel()
	return true
}

// Live returns the sorted correlation ids of the running tasks.
func (s *Supervisor) Live() []string {
	s.mx.Lock()
	defer s.mx.Unlock()
	ids := make([]string, 0, len(s.handles))
	for id := range s.handles {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Close refuses new tasks, cancels the live ones and waits until every
// task has finished.
func (s *Supervisor) Close() error {
	s.mx.Lock()
	s.closed = true
	handles := make([]*Handle, 0, len(s.handles))
	for _, h := range s.handles {
		handles = append(handles, h)
	}
	s.mx.Unlock()

	for _, h := range handles {
		h.requestCancel()
	}
	s.cancel()
	return s.g.Wait()
}

func validate(req model.TaskRequest) error {
	if req.CorrelationID == "" {
		return &model.ValidationError{Field: "correlationId", Reason: "must not be empty"}
	}
	switch req.Kind {
	case model.KindFetchInfo:
		if len(req.Args) != 1 || req.Args[0] == "" {
			return &model.ValidationError{Field: "args", Reason: "fetch info takes exactly one url"}
		}
	case model.KindDownload:
		if len(req.Args) == 0 {
			return &model.ValidationError{Field: "args", Reason: "download arguments are missing"}
		}
	default:
		return &model.ValidationError{Field: "kind", Reason: fmt.Sprintf("unknown task kind %d", req.Kind)}
	}
	return nil
}

func (s *Supervisor) run(ctx context.Context, h *Handle, started chan<- error) {
	defer h.cancel()

	argv := s.cmd.argv(h.kind, h.args)
	cmd := exec.CommandContext(ctx, s.cmd.Path, argv...)
	cmd.Env = s.cmd.environ()
	cmd.Dir = s.cmd.Dir
	setProcAttr(cmd)

	var killTimer *time.Timer
	var timerMx sync.Mutex
	// exec calls Cancel only while the worker is not reaped yet
	cmd.Cancel = func() error {
		err := terminate(cmd.Process)
		if errors.Is(err, os.ErrProcessDone) {
			return err
		}
		h.markSignalled()
		timerMx.Lock()
		killTimer = time.AfterFunc(s.grace, func() {
			slog.WarnContext(h.logCtx, "worker ignored SIGTERM: killing", "grace", s.grace.String())
			if err := kill(cmd.Process); err != nil && !errors.Is(err, os.ErrProcessDone) {
				slog.ErrorContext(h.logCtx, "killing worker", "error", err)
			}
		})
		timerMx.Unlock()
		return err
	}
	cmd.WaitDelay = s.grace

	stdout := protocol.NewSplitter(func(line string) { s.stdoutLine(h, line) })
	stderr := protocol.NewSplitter(func(line string) {
		h.addStderr(line)
		if s.stderrFunc != nil {
			s.stderrFunc(h.logCtx, line)
		}
	})
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	startedAt := time.Now().UTC()
	if err := cmd.Start(); err != nil {
		exit := Exit{
			CorrelationID: h.id,
			Kind:          h.kind,
			Args:          argv,
			State:         model.StateFailed,
			ExitCode:      -1,
			Err:           &model.SpawnError{Path: s.cmd.Path, Err: err},
			Started:       startedAt,
			Stopped:       time.Now().UTC(),
		}
		if ctx.Err() != nil {
			exit.State = model.StateCancelled
			exit.Err = &model.CancelledError{CorrelationID: h.id}
		} else {
			slog.ErrorContext(h.logCtx, "worker did not start", "error", err)
		}
		s.notify(h.logCtx, h, exit)
		started <- exit.Err
		return
	}

	h.setProcess(cmd.Process)
	logCtx := log.ContextAttrs(h.logCtx, slog.Int("pid", cmd.Process.Pid))
	slog.DebugContext(logCtx, "worker started", "path", s.cmd.Path, "args", argv)
	for _, fn := range s.startFuncs {
		fn(logCtx, h)
	}
	started <- nil

	waitErr := cmd.Wait()
	stopped := time.Now().UTC()
	timerMx.Lock()
	if killTimer != nil {
		killTimer.Stop()
	}
	timerMx.Unlock()
	stdout.Flush()
	stderr.Flush()

	exit := s.classify(logCtx, h, cmd.ProcessState, waitErr)
	exit.Args = argv
	exit.PID = cmd.Process.Pid
	exit.Started = startedAt
	exit.Stopped = stopped
	s.notify(logCtx, h, exit)
}

// stdoutLine runs on the stdout copy goroutine of the task.
func (s *Supervisor) stdoutLine(h *Handle, line string) {
	if h.kind == model.KindFetchInfo {
		h.output.WriteString(line)
		return
	}

	decoded := protocol.Decode(line)
	switch l := decoded.(type) {
	case protocol.StructuredEvent:
		if res, ok := model.ResultFromFields(l.Fields); ok {
			h.result = &res
		}
	case protocol.RawText:
		slog.DebugContext(h.logCtx, "worker output", "line", l.Content)
	}
	if h.observer.OnLine != nil {
		h.observer.OnLine(decoded)
	}
}

func (s *Supervisor) classify(ctx context.Context, h *Handle, ps *os.ProcessState, waitErr error) Exit {
	exit := Exit{
		CorrelationID: h.id,
		Kind:          h.kind,
		ExitCode:      -1,
		Signal:        signalName(ps),
		Stderr:        h.stderr(),
	}
	if ps != nil {
		exit.ExitCode = ps.ExitCode()
	}
	if h.result != nil {
		exit.Message = h.result.Message
	}
	if h.kind == model.KindFetchInfo {
		exit.Output = h.output.Bytes()
	}

	switch {
	case h.isSignalled():
		exit.State = model.StateCancelled
		exit.Err = &model.CancelledError{CorrelationID: h.id}
	case ps == nil || exit.ExitCode != 0:
		exit.State = model.StateFailed
		exit.Err = &model.ProcessExitError{
			Code:   exit.ExitCode,
			Signal: exit.Signal,
			Stderr: exit.Stderr,
			Err:    waitErr,
		}
	case h.kind == model.KindFetchInfo:
		info, err := model.ParseVideoInfo(exit.Output)
		if err != nil {
			exit.State = model.StateFailed
			exit.Err = err
			break
		}
		exit.State = model.StateSucceeded
		exit.Info = &info
	case h.result != nil && !h.result.Success:
		exit.State = model.StateFailed
		exit.Err = &model.ProtocolError{Kind: h.kind, Detail: h.result.Message}
	default:
		exit.State = model.StateSucceeded
	}

	if waitErr != nil && exit.State == model.StateSucceeded {
		// exited 0 but kept its pipes open past WaitDelay
		slog.WarnContext(ctx, "worker output may be incomplete", "error", waitErr)
	}
	return exit
}

// notify retires the handle and delivers its exit: global exit funcs, the
// task observer, then Done.
func (s *Supervisor) notify(ctx context.Context, h *Handle, exit Exit) {
	s.mx.Lock()
	if s.handles[h.id] == h {
		delete(s.handles, h.id)
	}
	s.mx.Unlock()

	h.finish(exit)
	slog.DebugContext(ctx, "task finished",
		"state", exit.State.String(),
		"exit_code", exit.ExitCode,
		"duration", exit.Stopped.Sub(exit.Started).String(),
	)
	for _, fn := range s.exitFuncs {
		fn(ctx, exit)
	}
	if h.observer.OnExit != nil {
		h.observer.OnExit(exit)
	}
	close(h.done)
}
