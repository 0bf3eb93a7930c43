package process

import (
	"bytes"
	"sync"

	"github.com/psantana5/kiosk-supervisor/internal/logging"
)

const maxPartialLine = 64 * 1024

// lineWriter relays child output into the logger one line at a time
type lineWriter struct {
	mu     sync.Mutex
	logger *logging.Logger
	buf    []byte
}

func newLineWriter(logger *logging.Logger, stream string) *lineWriter {
	return &lineWriter{logger: logger.WithField("stream", stream)}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		w.emit(w.buf[:i])
		w.buf = w.buf[i+1:]
	}

	if len(w.buf) > maxPartialLine {
		w.emit(w.buf)
		w.buf = nil
	}

	return len(p), nil
}

func (w *lineWriter) emit(line []byte) {
	line = bytes.TrimRight(line, "\r")
	if len(line) == 0 {
		return
	}
	w.logger.Debug(string(line))
}
