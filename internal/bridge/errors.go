package bridge

import (
	"context"
	"errors"

	"github.com/omnitool/omnitool/internal/model"
	"github.com/omnitool/omnitool/internal/service"
)

// Stable error codes of the boundary API.
const (
	CodeValidation  = "validation"
	CodeSpawn       = "spawn"
	CodeDuplicate   = "duplicate"
	CodeProtocol    = "protocol"
	CodeProcessExit = "process_exit"
	CodeCancelled   = "cancelled"
	CodeInternal    = "internal"
)

// Error is the serializable form of a failed request.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Code classifies err into one of the stable codes.
func Code(err error) string {
	var (
		validationErr *model.ValidationError
		spawnErr      *model.SpawnError
		duplicateErr  *model.DuplicateTaskError
		protocolErr   *model.ProtocolError
		exitErr       *model.ProcessExitError
		cancelledErr  *model.CancelledError
		bridgeErr     *Error
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &bridgeErr):
		return bridgeErr.Code
	case errors.As(err, &validationErr):
		return CodeValidation
	case errors.As(err, &spawnErr):
		return CodeSpawn
	case errors.As(err, &duplicateErr):
		return CodeDuplicate
	case errors.As(err, &protocolErr):
		return CodeProtocol
	case errors.As(err, &exitErr):
		return CodeProcessExit
	case errors.As(err, &cancelledErr),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, service.ErrSupervisorClosed):
		return CodeCancelled
	default:
		return CodeInternal
	}
}

// ToError converts err for the boundary, nil stays nil. A process exit
// reports the exit code only, the stderr tail stays in the logs.
func ToError(err error) *Error {
	if err == nil {
		return nil
	}
	var bridgeErr *Error
	if errors.As(err, &bridgeErr) {
		return bridgeErr
	}
	return &Error{Code: Code(err), Message: err.Error()}
}
