package observer

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/batchshipyard/engine/pkg/capability"
	"github.com/batchshipyard/engine/pkg/log"
	"github.com/batchshipyard/engine/pkg/types"
)

var errNoDefaultTask = errors.New("observer: no running task to stream")

// Streamer tails a single task's stdout or stderr by repeatedly re-fetching
// it from the compute platform and writing only the newly appended bytes.
type Streamer struct {
	platform capability.ComputePlatform
}

// NewStreamer wraps platform for task output streaming.
func NewStreamer(platform capability.ComputePlatform) *Streamer {
	return &Streamer{platform: platform}
}

// SelectDefaultTask returns the first running task of the most recently
// submitted job, the default target when the caller doesn't name one.
func SelectDefaultTask(jobs []*types.Job) (*types.TaskDescriptor, error) {
	var latest *types.Job
	for _, j := range jobs {
		if latest == nil || j.CreatedAt.After(latest.CreatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, errNoDefaultTask
	}
	for _, t := range latest.Tasks {
		if t.State == types.TaskRunning {
			return t, nil
		}
	}
	return nil, errNoDefaultTask
}

// Stream polls path on node every pollInterval and writes newly observed
// bytes to w, until ctx is done or isDone reports the task reached a
// terminal state. A final fetch runs after isDone returns true so trailing
// output isn't lost to the poll cadence.
func (s *Streamer) Stream(ctx context.Context, poolID, nodeID, path string, w io.Writer, pollInterval time.Duration, isDone func() bool) error {
	logger := log.WithComponent("observer")
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var written int
	fetch := func() error {
		deadline := time.Now().Add(pollInterval)
		data, err := s.platform.StreamFile(ctx, deadline, poolID, nodeID, path)
		if err != nil {
			if capability.IsTransient(err) {
				logger.Warn().Err(err).Str("node_id", nodeID).Msg("transient error streaming task output, will retry")
				return nil
			}
			return err
		}
		fresh := diffNew(data, written)
		if fresh == nil {
			return nil
		}
		if _, err := w.Write(fresh); err != nil {
			return err
		}
		written = len(data)
		return nil
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := fetch(); err != nil {
				return err
			}
			if isDone != nil && isDone() {
				return fetch()
			}
		}
	}
}

// diffNew returns the suffix of data beyond the first `written` bytes, or
// nil if data hasn't grown. Exposed for tests exercising fetch semantics
// without a platform round-trip.
func diffNew(data []byte, written int) []byte {
	if len(data) <= written {
		return nil
	}
	return bytes.Clone(data[written:])
}
