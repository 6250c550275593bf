package datamove

import (
	"context"
	"fmt"
	"os/exec"

	"github.com/batchshipyard/engine/pkg/log"
)

// Transport names an on-premises fan-out mechanism for pushing client-local
// files onto a compute cluster's shared filesystem (§4.H).
type Transport string

const (
	TransportSCPSingle  Transport = "scp_single_node"
	TransportSCPMulti   Transport = "scp_multi_node"
	TransportSyncSingle Transport = "rsync_ssh_single_node"
	TransportSyncMulti  Transport = "rsync_ssh_multi_node"
)

// FanoutSpec describes one client-local-to-cluster push.
type FanoutSpec struct {
	Transport  Transport
	LocalPath  string
	RemotePath string
	SSHUser    string
	SSHKeyPath string
	Nodes      []string // remote node addresses; a single-node transport uses Nodes[0]
}

// Fanout pushes LocalPath to RemotePath on every target node using the
// configured transport, bounding concurrent per-node transfers with a
// semaphore (§4.H "per-node parallelism bounded by a semaphore").
type Fanout struct {
	maxParallel int
}

// NewFanout builds a Fanout with the given per-node concurrency bound.
func NewFanout(maxParallel int) *Fanout {
	if maxParallel < 1 {
		maxParallel = 1
	}
	return &Fanout{maxParallel: maxParallel}
}

// Run executes spec against its target nodes, returning the first error
// encountered (other nodes already in flight are allowed to finish).
func (f *Fanout) Run(ctx context.Context, spec FanoutSpec) error {
	logger := log.WithComponent("datamove").With().Str("transport", string(spec.Transport)).Logger()

	switch spec.Transport {
	case TransportSCPSingle, TransportSyncSingle:
		if len(spec.Nodes) == 0 {
			return fmt.Errorf("single-node transport %s requires at least one node", spec.Transport)
		}
		return f.pushOne(ctx, spec, spec.Nodes[0])
	case TransportSCPMulti, TransportSyncMulti:
		sem := make(chan struct{}, f.maxParallel)
		errCh := make(chan error, len(spec.Nodes))
		for _, node := range spec.Nodes {
			node := node
			sem <- struct{}{}
			go func() {
				defer func() { <-sem }()
				errCh <- f.pushOne(ctx, spec, node)
			}()
		}
		for range spec.Nodes {
			if err := <-errCh; err != nil {
				logger.Error().Err(err).Msg("fan-out push failed")
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unknown fan-out transport %q", spec.Transport)
	}
}

func (f *Fanout) pushOne(ctx context.Context, spec FanoutSpec, node string) error {
	var cmd *exec.Cmd
	switch spec.Transport {
	case TransportSCPSingle, TransportSCPMulti:
		args := []string{"-o", "StrictHostKeyChecking=no"}
		if spec.SSHKeyPath != "" {
			args = append(args, "-i", spec.SSHKeyPath)
		}
		args = append(args, spec.LocalPath, remoteTarget(spec, node))
		cmd = exec.CommandContext(ctx, "scp", args...)
	case TransportSyncSingle, TransportSyncMulti:
		sshCmd := "ssh -o StrictHostKeyChecking=no"
		if spec.SSHKeyPath != "" {
			sshCmd += " -i " + spec.SSHKeyPath
		}
		cmd = exec.CommandContext(ctx, "rsync", "-az", "-e", sshCmd, spec.LocalPath, remoteTarget(spec, node))
	default:
		return fmt.Errorf("unknown fan-out transport %q", spec.Transport)
	}

	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s to %s: %w: %s", spec.Transport, node, err, out)
	}
	return nil
}

func remoteTarget(spec FanoutSpec, node string) string {
	user := spec.SSHUser
	if user == "" {
		user = "root"
	}
	return fmt.Sprintf("%s@%s:%s", user, node, spec.RemotePath)
}
