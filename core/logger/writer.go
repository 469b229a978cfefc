package logger

import (
	"bufio"
	"errors"
	"io"
	"sync"
)

// asyncWriter moves log lines off the calling goroutine. The loop writes every
// queued line and flushes the sinks once the queue runs dry, so bursts cost one
// flush instead of one per line.
type asyncWriter struct {
	lines   chan []byte
	flushes chan chan error
	done    chan struct{}
	closeMu sync.Once

	sinks []*bufio.Writer

	errMu sync.Mutex
	err   error
}

func newAsyncWriter(writers []io.Writer, bufSize int) *asyncWriter {
	if bufSize <= 0 {
		bufSize = 64 << 10
	}
	w := &asyncWriter{
		lines:   make(chan []byte, 512),
		flushes: make(chan chan error),
		done:    make(chan struct{}),
	}
	for _, out := range writers {
		if out != nil {
			w.sinks = append(w.sinks, bufio.NewWriterSize(out, bufSize))
		}
	}
	go w.loop()
	return w
}

func (w *asyncWriter) loop() {
	defer close(w.done)
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				w.record(w.flush())
				return
			}
			w.write(line)
			if len(w.lines) == 0 {
				w.record(w.flush())
			}
		case ack := <-w.flushes:
			w.drain()
			ack <- w.flush()
		}
	}
}

// drain writes whatever is queued right now without blocking.
func (w *asyncWriter) drain() {
	for {
		select {
		case line, ok := <-w.lines:
			if !ok {
				return
			}
			w.write(line)
		default:
			return
		}
	}
}

func (w *asyncWriter) write(line []byte) {
	for _, sink := range w.sinks {
		if _, err := sink.Write(line); err != nil {
			w.record(err)
		}
	}
}

func (w *asyncWriter) flush() error {
	var errs []error
	for _, sink := range w.sinks {
		if err := sink.Flush(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Write queues a copy of p. It blocks when the queue is full rather than drop
// lines, and fails once a sink has failed.
func (w *asyncWriter) Write(p []byte) error {
	if err := w.failure(); err != nil {
		return err
	}
	if len(p) == 0 {
		return nil
	}
	w.lines <- append([]byte(nil), p...)
	return nil
}

// Flush waits until every line queued so far reached the sinks.
func (w *asyncWriter) Flush() error {
	ack := make(chan error, 1)
	select {
	case w.flushes <- ack:
		return <-ack
	case <-w.done:
		return w.failure()
	}
}

// Close writes out the queue and reports the first sink error seen.
func (w *asyncWriter) Close() error {
	w.closeMu.Do(func() { close(w.lines) })
	<-w.done
	return w.failure()
}

func (w *asyncWriter) failure() error {
	w.errMu.Lock()
	defer w.errMu.Unlock()
	return w.err
}

func (w *asyncWriter) record(err error) {
	if err == nil {
		return
	}
	w.errMu.Lock()
	defer w.errMu.Unlock()
	if w.err == nil {
		w.err = err
	}
}
