package bridge

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DirectoryPicker asks the user for a directory. ok is false when the user
// dismissed the dialog.
type DirectoryPicker interface {
	SelectDirectory(ctx context.Context) (path string, ok bool, err error)
}

type PickerFunc func(ctx context.Context) (string, bool, error)

func (f PickerFunc) SelectDirectory(ctx context.Context) (string, bool, error) {
	return f(ctx)
}

// CommandPicker runs an external dialog such as
// `zenity --file-selection --directory`. Exit code 1 or an empty output
// means no selection.
type CommandPicker struct {
	Path string
	Args []string
}

func (p CommandPicker) SelectDirectory(ctx context.Context) (string, bool, error) {
	out, err := exec.CommandContext(ctx, p.Path, p.Args...).Output()
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("running directory picker %s: %w", p.Path, err)
	}
	path := strings.TrimRight(string(out), "\r\n")
	if path == "" {
		return "", false, nil
	}
	return path, true, nil
}

var errNoPicker = &Error{Code: CodeInternal, Message: "no directory picker configured"}
