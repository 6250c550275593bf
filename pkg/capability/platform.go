package capability

import (
	"context"
	"time"

	"github.com/batchshipyard/engine/pkg/types"
)

// ComputePlatform abstracts the underlying batch-compute cloud API (§4.A).
// All operations carry a cancellation context and an explicit deadline; the
// concrete cloud binding is out of scope for this engine (spec.md §1) — the
// only implementation shipped here is an in-memory fake used by tests
// (fake_platform.go).
type ComputePlatform interface {
	CreatePool(ctx context.Context, deadline time.Time, p *types.Pool) error
	ResizePool(ctx context.Context, deadline time.Time, poolID string, dedicated, preemptible int) error
	DeletePool(ctx context.Context, deadline time.Time, poolID string) error

	AddJob(ctx context.Context, deadline time.Time, j *types.Job) error
	// SubmitTasks submits up to 100 task descriptors per call (§6 wire contract).
	SubmitTasks(ctx context.Context, deadline time.Time, jobID string, tasks []*types.TaskDescriptor) error
	TerminateTasks(ctx context.Context, deadline time.Time, jobID string, taskIDs []string) error

	ListNodes(ctx context.Context, deadline time.Time, poolID string) ([]*types.Node, error)
	RebootNode(ctx context.Context, deadline time.Time, poolID, nodeID string) error
	DeleteNode(ctx context.Context, deadline time.Time, poolID, nodeID string) error

	StreamFile(ctx context.Context, deadline time.Time, poolID, nodeID, path string) ([]byte, error)
	UploadLogs(ctx context.Context, deadline time.Time, poolID, nodeID string, stdout, stderr []byte) error
}

// ObjectStore abstracts blob storage for data movement (§4.A).
type ObjectStore interface {
	Put(ctx context.Context, deadline time.Time, path string, data []byte) error
	Get(ctx context.Context, deadline time.Time, path string) ([]byte, error)
	List(ctx context.Context, deadline time.Time, prefix string, includeGlobs, excludeGlobs []string) ([]string, error)
	SASFor(ctx context.Context, deadline time.Time, path string, perms string, ttl time.Duration) (string, error)
}

// SecretVault abstracts an external secret-vault indirection (§4.A, §4.B).
type SecretVault interface {
	GetSecret(ctx context.Context, deadline time.Time, uri string) ([]byte, error)
}

// IdentityProvider abstracts token acquisition for vault/platform auth (§4.A).
type IdentityProvider interface {
	Token(ctx context.Context, deadline time.Time, scope string) (Token, error)
}

// Token is a cacheable access token.
type Token struct {
	Value  string
	Expiry time.Time
}

// Expired reports whether the token should be refreshed.
func (t Token) Expired(now time.Time) bool {
	return !now.Before(t.Expiry)
}
