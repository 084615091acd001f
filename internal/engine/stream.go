package engine

import (
	"context"
	"strings"
	"sync"
)

// fragmentBuffer bounds how far the reader may run ahead of the consumer.
const fragmentBuffer = 16

// Fragment is one chunk of engine output. A fragment with a non-nil Err is
// always the last one on the stream.
type Fragment struct {
	Text string
	Err  error
}

// Stream is a finite, non-restartable sequence of fragments. The producer
// side owns the underlying process; Close stops it and waits until it has
// been reaped.
type Stream struct {
	fragments chan Fragment
	cancel    context.CancelFunc
	done      chan struct{}
	pid       int
	closeOnce sync.Once
}

func newStream(cancel context.CancelFunc, pid int) *Stream {
	return &Stream{
		fragments: make(chan Fragment, fragmentBuffer),
		cancel:    cancel,
		done:      make(chan struct{}),
		pid:       pid,
	}
}

// finishedStream returns a stream that yields the given fragments and has
// no process behind it.
func finishedStream(frags ...Fragment) *Stream {
	s := &Stream{
		fragments: make(chan Fragment, len(frags)),
		cancel:    func() {},
		done:      make(chan struct{}),
	}
	for _, f := range frags {
		s.fragments <- f
	}
	close(s.fragments)
	close(s.done)
	return s
}

func failedStream(err error) *Stream {
	return finishedStream(Fragment{Err: err})
}

// Fragments returns the channel fragments are delivered on. It is closed
// when the engine finishes or the stream is closed.
func (s *Stream) Fragments() <-chan Fragment {
	return s.fragments
}

// PID returns the engine process id, or 0 when no process was started.
func (s *Stream) PID() int {
	return s.pid
}

// Close abandons the stream. Any running process is terminated, and Close
// returns only after it has exited and been reaped. Safe to call more than
// once and after the stream is exhausted.
func (s *Stream) Close() error {
	s.closeOnce.Do(s.cancel)
	<-s.done
	return nil
}

// Collect drains s, closes it, and returns the concatenated text together
// with the terminal error, if any.
func Collect(s *Stream) (string, error) {
	defer s.Close()

	var sb strings.Builder
	for f := range s.Fragments() {
		if f.Err != nil {
			return sb.String(), f.Err
		}
		sb.WriteString(f.Text)
	}
	return sb.String(), nil
}

// NewStaticStream returns a stream that yields texts in order, followed by
// a terminal err when it is non-nil. No process is involved.
func NewStaticStream(texts []string, err error) *Stream {
	frags := make([]Fragment, 0, len(texts)+1)
	for _, t := range texts {
		frags = append(frags, Fragment{Text: t})
	}
	if err != nil {
		frags = append(frags, Fragment{Err: err})
	}
	return finishedStream(frags...)
}
