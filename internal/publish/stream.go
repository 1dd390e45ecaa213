package publish

import "sync"

// Stream relays published items to a single consumer channel in order.
// Publish never blocks: items queue up until the consumer reads them. The
// channel is closed after Close, once every queued item was delivered, or
// right away after Stop.
type Stream[T any] struct {
	mx     sync.Mutex
	queue  []T
	closed bool

	wake     chan struct{}
	stop     chan struct{}
	stopOnce sync.Once
	out      chan T
}

func NewStream[T any]() *Stream[T] {
	s := &Stream[T]{
		wake: make(chan struct{}, 1),
		stop: make(chan struct{}),
		out:  make(chan T),
	}
	go s.relay()
	return s
}

// C returns the consumer channel.
func (s *Stream[T]) C() <-chan T {
	return s.out
}

// Publish queues an item, it returns false after Close.
func (s *Stream[T]) Publish(item T) bool {
	s.mx.Lock()
	if s.closed {
		s.mx.Unlock()
		return false
	}
	s.queue = append(s.queue, item)
	s.mx.Unlock()
	s.signal()
	return true
}

// Close ends the stream after the queued items.
func (s *Stream[T]) Close() {
	s.mx.Lock()
	s.closed = true
	s.mx.Unlock()
	s.signal()
}

// Stop abandons the stream, queued items are dropped.
func (s *Stream[T]) Stop() {
	s.Close()
	s.stopOnce.Do(func() { close(s.stop) })
}

func (s *Stream[T]) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Stream[T]) relay() {
	defer close(s.out)
	for {
		s.mx.Lock()
		if len(s.queue) > 0 {
			item := s.queue[0]
			var zero T
			s.queue[0] = zero
			s.queue = s.queue[1:]
			s.mx.Unlock()
			select {
			case s.out <- item:
			case <-s.stop:
				return
			}
			continue
		}
		closed := s.closed
		s.mx.Unlock()
		if closed {
			return
		}
		select {
		case <-s.wake:
		case <-s.stop:
			return
		}
	}
}
