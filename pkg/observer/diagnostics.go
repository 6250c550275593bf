package observer

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/batchshipyard/engine/pkg/capability"
	"github.com/batchshipyard/engine/pkg/log"
	"github.com/batchshipyard/engine/pkg/types"
)

const diagnosticsOpTimeout = 30 * time.Second

// RetrieveStartTaskDiagnostics fetches a node's start-task stdout/stderr and
// writes them under localRoot/{pool_id}/{node_id}/startup/std{out,err}.txt.
// Called when a node reaches NodeStartTaskFailed or NodeUnusable so an
// operator has something to look at without reaching into the platform.
func RetrieveStartTaskDiagnostics(ctx context.Context, platform capability.ComputePlatform, localRoot, poolID string, node *types.Node) error {
	logger := log.WithComponent("observer")
	deadline := time.Now().Add(diagnosticsOpTimeout)

	stdout, stderr, err := fetchStartTaskLogs(ctx, platform, deadline, poolID, node)
	if err != nil {
		return err
	}
	stdout = []byte(log.Scrub(string(stdout)))
	stderr = []byte(log.Scrub(string(stderr)))

	dir := filepath.Join(localRoot, poolID, node.ID, "startup")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "stdout.txt"), stdout, 0o644); err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(dir, "stderr.txt"), stderr, 0o644); err != nil {
		return err
	}

	if err := platform.UploadLogs(ctx, deadline, poolID, node.ID, stdout, stderr); err != nil {
		logger.Warn().Err(err).Str("node_id", node.ID).Msg("failed to mirror start-task diagnostics to the platform")
	}
	return nil
}

// fetchStartTaskLogs prefers the node record's cached copy (populated by the
// pool controller when the start task reports failure) and falls back to a
// live StreamFile round-trip for whichever half is still empty.
func fetchStartTaskLogs(ctx context.Context, platform capability.ComputePlatform, deadline time.Time, poolID string, node *types.Node) (stdout, stderr []byte, err error) {
	stdout = []byte(node.StartTaskStdout)
	stderr = []byte(node.StartTaskStderr)

	if len(stdout) == 0 {
		if b, ferr := platform.StreamFile(ctx, deadline, poolID, node.ID, "startup/stdout.txt"); ferr == nil {
			stdout = b
		}
	}
	if len(stderr) == 0 {
		if b, ferr := platform.StreamFile(ctx, deadline, poolID, node.ID, "startup/stderr.txt"); ferr == nil {
			stderr = b
		}
	}
	return stdout, stderr, nil
}
