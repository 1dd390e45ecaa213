package service

import (
	"bytes"
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/omnitool/omnitool/internal/model"
	"github.com/omnitool/omnitool/internal/protocol"
)

// stderrTailLines bounds the diagnostics kept per task.
const stderrTailLines = 20

// Observer receives the events of a single task. OnLine is called for
// every decoded line of a download in stdout order, always from the same
// goroutine. OnExit is called exactly once.
type Observer struct {
	OnLine func(protocol.Line)
	OnExit func(Exit)
}

// Exit is the terminal record of a task.
type Exit struct {
	CorrelationID string
	Kind          model.Kind
	Args          []string
	PID           int
	State         model.State
	ExitCode      int    // -1 when the worker did not exit normally
	Signal        string // name of the terminating signal
	Output        []byte // concatenated stdout lines of a fetch info task
	Info          *model.VideoInfo
	Message       string // message of the worker summary line
	Stderr        string // last stderr lines
	Err           error
	Started       time.Time
	Stopped       time.Time
}

// Record converts the exit into a history record.
func (e Exit) Record() model.TaskRecord {
	rec := model.TaskRecord{
		CorrelationID: e.CorrelationID,
		Kind:          e.Kind,
		Args:          e.Args,
		PID:           e.PID,
		State:         e.State,
		ExitCode:      e.ExitCode,
		Signal:        e.Signal,
		Started:       e.Started,
		Stopped:       e.Stopped,
	}
	if e.Err != nil {
		rec.Error = e.Err.Error()
	}
	return rec
}

// Handle is one in-flight invocation of the worker.
type Handle struct {
	id       string
	kind     model.Kind
	args     []string
	observer Observer
	logCtx   context.Context
	cancel   context.CancelFunc
	done     chan struct{}

	mx        sync.Mutex
	process   *os.Process
	state     model.State
	cancelled bool // cancellation requested
	signalled bool // worker was signalled before it was reaped
	exit      Exit

	// written by the exec copy goroutines only, read after Wait returns
	output bytes.Buffer
	result *model.WorkerResult
	tail   []string
}

func (h *Handle) ID() string       { return h.id }
func (h *Handle) Kind() model.Kind { return h.kind }

func (h *Handle) PID() int {
	h.mx.Lock()
	defer h.mx.Unlock()
	if h.process == nil {
		return 0
	}
	return h.process.Pid
}

func (h *Handle) State() model.State {
	h.mx.Lock()
	defer h.mx.Unlock()
	return h.state
}

// Done is closed once the task is terminal and all observers returned.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exit returns the terminal record. It is complete only after Done is
// closed.
func (h *Handle) Exit() Exit {
	h.mx.Lock()
	defer h.mx.Unlock()
	return h.exit
}

// requestCancel marks the handle cancelled, returns false when it already
// was, when it is not running anymore or when its worker was reaped.
func (h *Handle) requestCancel() bool {
	h.mx.Lock()
	defer h.mx.Unlock()
	if h.cancelled || h.state != model.StateRunning {
		return false
	}
	if h.process != nil && reaped(h.process) {
		return false
	}
	h.cancelled = true
	return true
}

func (h *Handle) markSignalled() {
	h.mx.Lock()
	h.signalled = true
	h.mx.Unlock()
}

func (h *Handle) isSignalled() bool {
	h.mx.Lock()
	defer h.mx.Unlock()
	return h.signalled
}

func (h *Handle) setProcess(p *os.Process) {
	h.mx.Lock()
	h.process = p
	h.mx.Unlock()
}

func (h *Handle) finish(exit Exit) {
	h.mx.Lock()
	h.state = exit.State
	h.exit = exit
	h.mx.Unlock()
}

func (h *Handle) addStderr(line string) {
	if len(h.tail) == stderrTailLines {
		copy(h.tail, h.tail[1:])
		h.tail = h.tail[:stderrTailLines-1]
	}
	h.tail = append(h.tail, line)
}

func (h *Handle) stderr() string {
	return strings.Join(h.tail, "\n")
}
