package service

import (
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/omnitool/omnitool/internal/model"
)

// Command is the worker executable plus its fixed argument prefix. Task
// arguments are appended to Args on every Submit.
type Command struct {
	Path string
	Args []string
	Env  []string // KEY=VALUE, added to the environment of this process
	Dir  string
}

// CommandFromConfig builds the worker command. Env values starting with $
// are expanded from the current environment.
func CommandFromConfig(w model.Worker) Command {
	env := make([]string, 0, len(w.Env))
	for _, k := range slices.Sorted(maps.Keys(w.Env)) {
		v := w.Env[k]
		if strings.HasPrefix(v, "$") {
			v = os.ExpandEnv(v)
		}
		env = append(env, k+"="+v)
	}
	return Command{
		Path: w.Path,
		Args: slices.Clone(w.Args),
		Env:  env,
	}
}

// argv returns the full argument vector of a task, one element per token.
func (c Command) argv(kind model.Kind, args []string) []string {
	out := make([]string, 0, len(c.Args)+1+len(args))
	out = append(out, c.Args...)
	switch kind {
	case model.KindFetchInfo:
		out = append(out, "--get-info")
	case model.KindDownload:
		out = append(out, "--download")
	}
	return append(out, args...)
}

func (c Command) environ() []string {
	if len(c.Env) == 0 {
		return nil
	}
	return append(os.Environ(), c.Env...)
}
