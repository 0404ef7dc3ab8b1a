package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
	"sync/atomic"
)

var errWriterClosed = errors.New("logger: writer closed")

// lineWriter fans formatted lines out to every sink from a single goroutine.
// Sinks are flushed whenever the queue runs empty.
type lineWriter struct {
	queue    chan []byte
	flushReq chan chan error
	done     chan struct{}

	closeMu sync.RWMutex
	closed  bool

	sinks   []*bufio.Writer
	errMu   sync.Mutex
	err     error
	dropped atomic.Uint64
}

func newLineWriter(writers []io.Writer, bufSize, queueLen int) *lineWriter {
	if bufSize <= 0 {
		bufSize = 64 * 1024
	}
	if queueLen <= 0 {
		queueLen = 256
	}
	w := &lineWriter{
		queue:    make(chan []byte, queueLen),
		flushReq: make(chan chan error),
		done:     make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.loop()
	return w
}

func (w *lineWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				w.setErr(w.flush())
				return
			}
			w.setErr(w.write(line))
			if len(w.queue) == 0 {
				w.setErr(w.flush())
			}
		case ack := <-w.flushReq:
			w.drain()
			ack <- w.flush()
		}
	}
}

// drain writes whatever is queued right now. Flush holds the close lock, so
// the queue cannot be closed underneath it.
func (w *lineWriter) drain() {
	for {
		select {
		case line, ok := <-w.queue:
			if !ok {
				return
			}
			w.setErr(w.write(line))
		default:
			return
		}
	}
}

// Write queues a copy of p. It blocks while the queue is full so that no
// line is lost; writes after Close are counted and rejected.
func (w *lineWriter) Write(p []byte) error {
	if len(p) == 0 {
		return nil
	}
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		w.dropped.Add(1)
		return errWriterClosed
	}
	if err := w.getErr(); err != nil {
		return err
	}
	line := make([]byte, len(p))
	copy(line, p)
	w.queue <- line
	return nil
}

// Flush blocks until everything queued so far reached the sinks.
func (w *lineWriter) Flush() error {
	w.closeMu.RLock()
	defer w.closeMu.RUnlock()
	if w.closed {
		return w.getErr()
	}
	ack := make(chan error, 1)
	w.flushReq <- ack
	return <-ack
}

// Close drains the queue and returns the first write error.
func (w *lineWriter) Close() error {
	w.closeMu.Lock()
	if !w.closed {
		w.closed = true
		close(w.queue)
	}
	w.closeMu.Unlock()
	<-w.done
	return w.getErr()
}

// Dropped reports how many lines were rejected after Close.
func (w *lineWriter) Dropped() uint64 {
	return w.dropped.Load()
}

func (w *lineWriter) write(p []byte) error {
	var errs []error
	for _, s := range w.sinks {
		if _, err := s.Write(p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *lineWriter) flush() error {
	var errs []error
	for _, s := range w.sinks {
		if err := s.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (w *lineWriter) getErr() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *lineWriter) setErr(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
