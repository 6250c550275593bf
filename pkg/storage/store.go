package storage

import (
	"errors"

	"github.com/batchshipyard/engine/pkg/types"
)

// ErrNotFound is returned when a lookup by id finds nothing.
var ErrNotFound = errors.New("storage: not found")

// ErrConflict is returned by a CAS write whose expected version is stale
// (§5 "all mutations use optimistic concurrency (ETag/if-match)").
var ErrConflict = errors.New("storage: version conflict")

// Store is the engine-owned persistent state of spec.md §6: pools, nodes,
// jobs, federation membership, the federation action queue, the leader
// lease, P2P image replication state and pool ingress markers. Credential
// plaintext is deliberately absent from this interface (§4.B).
type Store interface {
	// Pools
	CreatePool(p *types.Pool) error
	GetPool(id string) (*types.Pool, error)
	ListPools() ([]*types.Pool, error)
	UpdatePool(p *types.Pool) error
	DeletePool(id string) error

	// Nodes
	CreateNode(n *types.Node) error
	GetNode(id string) (*types.Node, error)
	ListNodesByPool(poolID string) ([]*types.Node, error)
	UpdateNode(n *types.Node) error
	DeleteNode(id string) error

	// Jobs
	CreateJob(j *types.Job) error
	GetJob(id string) (*types.Job, error)
	ListJobs() ([]*types.Job, error)
	UpdateJob(j *types.Job) error
	DeleteJob(id string) error

	// Federations
	CreateFederation(f *types.Federation) error
	GetFederation(id string) (*types.Federation, error)
	ListFederations() ([]*types.Federation, error)

	// Federation action queue (fed-{fed_id}/queue/…, §6)
	// Enqueue appends an action; sequence numbers are assigned by the store
	// in insertion order, monotonically increasing per federation.
	EnqueueAction(federationID string, a *types.FederatedAction) error
	// ListQueuedActions returns every action stored for a federation,
	// terminal ones included (an action stays until zapped), ordered by
	// sequence number (FIFO within a (job_id, unique_id) group, §5).
	ListQueuedActions(federationID string) ([]*types.FederatedAction, error)
	UpdateAction(federationID string, a *types.FederatedAction) error
	// ZapAction unconditionally removes an action from the queue (§4.J Zap).
	ZapAction(federationID, uniqueID string) error

	// Leader lease (fed-{fed_id}/leases/leader, §5, §6)
	// AcquireOrRenewLease performs a CAS: it succeeds if no lease exists, the
	// lease has expired, or owner already holds it; otherwise ErrConflict.
	AcquireOrRenewLease(federationID, owner string, ttlSeconds int64, nowUnix int64) (*Lease, error)
	GetLease(federationID string) (*Lease, error)

	// Job-location metadata blob (fed-{fed_id}/jobs/{job_id}, §6)
	SetJobLocation(federationID, jobID, location string) error
	GetJobLocation(federationID, jobID string) (string, error)

	// P2P chunk map / seed set (pool-{pool_id}/images/{image_id}, §6)
	GetImageState(poolID, imageID string) (*ImageState, error)
	// PutImageState performs a CAS write keyed on ImageState.Version.
	PutImageState(poolID string, s *ImageState) error

	// Pool-scope ingress idempotency marker (pool-{pool_id}/preload-ingress/{marker}, §6)
	HasIngressMarker(poolID, marker string) (bool, error)
	SetIngressMarker(poolID, marker string) error

	// Job-scope ingress dedup: has node already materialised job J's input set?
	HasJobIngressMarker(jobID, nodeID string) (bool, error)
	SetJobIngressMarker(jobID, nodeID string) error

	// Certificate authority (engine-{id}/ca, §4.E mTLS mesh identity)
	GetCA() ([]byte, error)
	SaveCA(data []byte) error

	Close() error
}

// Lease is the federation leader lease record (§4.J, §5).
type Lease struct {
	Owner     string
	ExpiresAt int64 // unix seconds
	Version   int64
}

// ImageState is a pool's per-image P2P replication state (§4.E.1, §6).
type ImageState struct {
	ImageID   string
	ChunkSize int64
	// ChunkHolders maps chunk index -> set of node ids currently holding it.
	ChunkHolders map[int][]string
	SeedSet      []string
	TotalChunks  int
	// Strategy records the image distribution planner's decision so the
	// pool-ready barrier and P2P agents agree on it; "direct" after a seed
	// failure degrades the image for its followers (§4.D).
	Strategy string
	Version  int64 // CAS token
}
