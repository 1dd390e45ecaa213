package model

import "context"

// Recorder receives every finished task.
type Recorder interface {
	Record(ctx context.Context, rec TaskRecord) error
}

type RecordCloser interface {
	Recorder
	Close() error
}
