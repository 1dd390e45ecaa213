package protocol

import (
	"bytes"
	"sync"
)

// LineFunc receives one complete line without its terminator.
type LineFunc func(line string)

// Splitter frames an arbitrarily chunked byte stream into lines. A trailing
// fragment without a terminator is kept until more data arrives or Flush is
// called. Lines have no length limit.
type Splitter struct {
	mx      sync.Mutex
	pending []byte
	fn      LineFunc
	flushed bool
}

func NewSplitter(fn LineFunc) *Splitter {
	return &Splitter{fn: fn}
}

// Write consumes a chunk, calling the line func for each completed line.
// It always consumes the whole chunk.
func (s *Splitter) Write(p []byte) (int, error) {
	s.mx.Lock()
	defer s.mx.Unlock()

	n := len(p)
	for len(p) > 0 {
		idx := bytes.IndexByte(p, '\n')
		if idx < 0 {
			s.pending = append(s.pending, p...)
			break
		}
		var line []byte
		if len(s.pending) > 0 {
			line = append(s.pending, p[:idx]...)
			s.pending = nil
		} else {
			line = p[:idx]
		}
		s.emit(line)
		p = p[idx+1:]
	}
	return n, nil
}

// Flush emits the trailing fragment, if non-empty. Only the first call has
// an effect.
func (s *Splitter) Flush() {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.flushed {
		return
	}
	s.flushed = true
	if len(s.pending) > 0 {
		line := s.pending
		s.pending = nil
		s.emit(line)
	}
}

func (s *Splitter) emit(line []byte) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	if s.fn != nil {
		s.fn(string(line))
	}
}
