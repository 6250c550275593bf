package observer

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/batchshipyard/engine/pkg/capability"
	"github.com/batchshipyard/engine/pkg/log"
)

const mirrorOpTimeout = 30 * time.Second

// LogMirror is an io.Writer that accumulates federation-proxy log lines and
// periodically flushes the full buffer to a shared object-store path, so an
// operator watching that path sees proxy logs in close to real time without
// the proxy process depending on a log-shipping sidecar.
type LogMirror struct {
	object    capability.ObjectStore
	path      string
	flushEach time.Duration

	mu        sync.Mutex
	buf       bytes.Buffer
	lastFlush time.Time
}

// NewLogMirror mirrors writes to path in object, flushing at most once per
// flushEach to avoid a Put call per log line under load.
func NewLogMirror(object capability.ObjectStore, path string, flushEach time.Duration) *LogMirror {
	return &LogMirror{object: object, path: path, flushEach: flushEach, lastFlush: time.Now()}
}

func (m *LogMirror) Write(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(p)
	if _, err := m.buf.WriteString(log.Scrub(string(p))); err != nil {
		return 0, err
	}
	if time.Since(m.lastFlush) < m.flushEach {
		return n, nil
	}
	return n, m.flushLocked()
}

// Flush forces an immediate Put regardless of the flush cadence. Callers
// should invoke it on shutdown to avoid losing the trailing buffered bytes.
func (m *LogMirror) Flush() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushLocked()
}

func (m *LogMirror) flushLocked() error {
	deadline := time.Now().Add(mirrorOpTimeout)
	data := append([]byte(nil), m.buf.Bytes()...)
	if err := m.object.Put(context.Background(), deadline, m.path, data); err != nil {
		return err
	}
	m.lastFlush = time.Now()
	return nil
}
