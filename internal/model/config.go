package model

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/encoding/yaml"

	_ "embed"
)

//go:embed config.cue
var cueSource []byte

var (
	cueMx  sync.Mutex // cue.Context is not safe for concurrent use
	cueCtx *cue.Context
	schema cue.Value
)

func init() {
	if len(cueSource) == 0 {
		panic("variable cueSource is empty")
	}
	cueCtx = cuecontext.New()
	compiled := cueCtx.CompileBytes(cueSource)
	if compiled.Err() != nil {
		panic(compiled.Err())
	}

	schema = compiled.LookupPath(cue.ParsePath("#Config"))
	if schema.Err() != nil {
		panic(schema.Err())
	}
}

type Config struct {
	Version int     `json:"version" yaml:"version"` // fixed 0 for now
	Worker  Worker  `json:"worker" yaml:"worker"`
	Engine  Engine  `json:"engine,omitempty" yaml:"engine,omitempty"`
	History History `json:"history,omitempty" yaml:"history,omitempty"`
	Metrics Metrics `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// Worker is the external downloader program. Path plus Args form the
// command prefix, task arguments are appended to it.
type Worker struct {
	Path        string            `json:"path" yaml:"path"`
	Args        []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env         map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	GracePeriod string            `json:"grace_period,omitempty" yaml:"grace_period,omitempty"`
}

type Engine struct {
	Verbose        bool     `json:"verbose,omitempty" yaml:"verbose,omitempty"`
	DownloadDir    string   `json:"download_dir,omitempty" yaml:"download_dir,omitempty"`
	DefaultQuality string   `json:"default_quality,omitempty" yaml:"default_quality,omitempty"`
	DefaultFormat  string   `json:"default_format,omitempty" yaml:"default_format,omitempty"`
	Picker         []string `json:"picker,omitempty" yaml:"picker,omitempty"` // directory picker command
}

type History struct {
	Enabled bool   `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"` // sqlite file
}

type Metrics struct {
	Enabled bool `json:"enabled,omitempty" yaml:"enabled,omitempty"`
}

// Grace returns the cancellation grace period, DefaultGrace when unset.
// LoadConfig rejects values Grace cannot parse.
func (w Worker) Grace() time.Duration {
	if w.GracePeriod == "" {
		return DefaultGrace
	}
	d, err := time.ParseDuration(w.GracePeriod)
	if err != nil || d <= 0 {
		return DefaultGrace
	}
	return d
}

// DefaultConfig returns the configuration written on the first start.
func DefaultConfig(_ context.Context) Config {
	downloads := "Downloads"
	if home, err := os.UserHomeDir(); err == nil {
		downloads = filepath.Join(home, "Downloads")
	}
	return Config{
		Version: 0,
		Worker: Worker{
			Path:        "python3",
			Args:        []string{filepath.Join("tools", "youtube_downloader", "api.py")},
			Env:         map[string]string{"PYTHONUNBUFFERED": "1"},
			GracePeriod: DefaultGrace.String(),
		},
		Engine: Engine{
			DownloadDir:    downloads,
			DefaultQuality: QualityBest,
			DefaultFormat:  FormatMP4,
		},
	}
}

// LoadConfig validates YAML from r against CUE schema and decodes to Config.
func LoadConfig(r io.Reader) (Config, error) {
	cueMx.Lock()
	defer cueMx.Unlock()

	yamlFile, err := yaml.Extract("omnitool.yaml", r)
	if err != nil {
		return Config{}, err
	}
	yamlValue := cueCtx.BuildFile(yamlFile)

	unified := schema.Unify(yamlValue)
	if err := unified.Validate(
		cue.All(),          // all constraints
		cue.Concrete(true), // no incomplete values
	); err != nil {
		return Config{}, err
	}

	var out Config
	if err := unified.Decode(&out); err != nil {
		return Config{}, fmt.Errorf("decoding config: %w", err)
	}
	if g := out.Worker.GracePeriod; g != "" {
		if d, err := time.ParseDuration(g); err != nil || d <= 0 {
			return Config{}, &ValidationError{
				Field:  "worker.grace_period",
				Reason: fmt.Sprintf("%q is not a positive duration like 3s or 500ms", g),
			}
		}
	}
	return out, nil
}
