package model

import (
	"slices"
	"time"
)

// Kind selects what the worker is asked to do.
type Kind int

const (
	KindFetchInfo Kind = iota + 1
	KindDownload
)

func (k Kind) String() string {
	switch k {
	case KindFetchInfo:
		return "fetch_info"
	case KindDownload:
		return "download"
	default:
		return "unknown"
	}
}

// State of a single task. Running is the only non terminal state.
type State int

const (
	StateRunning State = iota
	StateSucceeded
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) IsTerminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// TaskRequest describes one invocation of the worker. Args holds the kind
// specific arguments: [url] for KindFetchInfo, DownloadOptions.Args() for
// KindDownload.
type TaskRequest struct {
	Kind          Kind
	Args          []string
	CorrelationID string
}

const (
	QualityBest  = "best"
	FormatMP4    = "mp4"
	FormatMP3    = "mp3"
	FormatAudio  = "audio"
	DefaultGrace = 3 * time.Second
)

// Qualities and Formats are the values the worker accepts.
var (
	Qualities = []string{QualityBest, "2160p", "1440p", "1080p", "720p", "480p", "360p", "240p"}
	Formats   = []string{FormatMP4, "webm", FormatMP3, "m4a", "opus", FormatAudio}
)

func ValidQuality(q string) bool { return slices.Contains(Qualities, q) }
func ValidFormat(f string) bool  { return slices.Contains(Formats, f) }

// DownloadOptions are the named arguments of a download.
type DownloadOptions struct {
	URL        string `json:"url"`
	Quality    string `json:"quality"`
	Format     string `json:"format"`
	OutputPath string `json:"outputPath"`
}

// Args returns the worker argument vector, one element per token.
func (o DownloadOptions) Args() []string {
	return []string{
		"--url", o.URL,
		"--quality", o.Quality,
		"--format", o.Format,
		"--output", o.OutputPath,
	}
}

// Outcome is the completion of a download.
type Outcome struct {
	CorrelationID string `json:"correlationId"`
	State         State  `json:"state"`
	ExitCode      int    `json:"exitCode"`
	Message       string `json:"message,omitempty"`
}

// TaskRecord is a finished task as kept by recorders.
type TaskRecord struct {
	CorrelationID string
	Kind          Kind
	Args          []string
	PID           int
	State         State
	ExitCode      int
	Signal        string
	Error         string
	Started       time.Time
	Stopped       time.Time
}
