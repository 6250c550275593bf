package p2p

import (
	"context"
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/batchshipyard/engine/pkg/log"
)

// ChunkStore persists chunk bytes locally for this node, and is the backing
// implementation handed to NewServer.
type ChunkStore interface {
	ChunkServer
	WriteChunk(imageID string, chunkIndex int, data []byte) error
	HaveChunks(imageID string) map[int]bool
}

// mismatchBlacklistThreshold is the consecutive-mismatch count that
// blacklists a peer for the pool lifetime (§4.E "three consecutive
// mismatches from the same peer -> blacklist").
const mismatchBlacklistThreshold = 3

// MismatchTracker counts consecutive chunk-hash mismatches per peer and
// blacklists once the threshold is reached. A single successful chunk from
// a peer resets its count, since the rule is *consecutive* mismatches.
type MismatchTracker struct {
	mu         sync.Mutex
	mismatches map[string]int
	blacklist  map[string]bool
}

// NewMismatchTracker builds an empty tracker.
func NewMismatchTracker() *MismatchTracker {
	return &MismatchTracker{
		mismatches: make(map[string]int),
		blacklist:  make(map[string]bool),
	}
}

// RecordMismatch registers a chunk-hash failure from peer and reports
// whether peer is now blacklisted.
func (m *MismatchTracker) RecordMismatch(peer string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mismatches[peer]++
	if m.mismatches[peer] >= mismatchBlacklistThreshold {
		m.blacklist[peer] = true
	}
	return m.blacklist[peer]
}

// RecordSuccess resets peer's consecutive-mismatch count.
func (m *MismatchTracker) RecordSuccess(peer string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mismatches[peer] = 0
}

// IsBlacklisted reports whether peer has been permanently excluded.
func (m *MismatchTracker) IsBlacklisted(peer string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.blacklist[peer]
}

// Snapshot returns a copy of the current blacklist, for use with
// RarestFirst/HoldersExcluding which take a plain map.
func (m *MismatchTracker) Snapshot() map[string]bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]bool, len(m.blacklist))
	for k, v := range m.blacklist {
		out[k] = v
	}
	return out
}

// IsStalled reports whether a chunk request started at `started` has
// exceeded timeout without completing, and should be abandoned in favor of
// a different peer holding the same chunk (§4.E "chunk-stall-timeout
// demotion").
func IsStalled(started, now time.Time, timeout time.Duration) bool {
	return now.Sub(started) > timeout
}

// AddressBook resolves a node id to a dialable peer address.
type AddressBook interface {
	Address(nodeID string) (string, error)
}

// Peer drives chunk acquisition for one image on one node: a single
// goroutine loop, rarest-first selection, hash verification, and
// mismatch/stall bookkeeping (§4.E).
type Peer struct {
	NodeID       string
	PoolID       string
	Tracker      *Tracker
	Chunks       ChunkStore
	Identity     TLSIdentity
	Addresses    AddressBook
	StallTimeout time.Duration

	mismatch *MismatchTracker
}

// NewPeer builds a Peer agent.
func NewPeer(nodeID, poolID string, tracker *Tracker, chunks ChunkStore, identity TLSIdentity, addrs AddressBook, stallTimeout time.Duration) *Peer {
	return &Peer{
		NodeID:       nodeID,
		PoolID:       poolID,
		Tracker:      tracker,
		Chunks:       chunks,
		Identity:     identity,
		Addresses:    addrs,
		StallTimeout: stallTimeout,
		mismatch:     NewMismatchTracker(),
	}
}

// chunkHash computes the SHA-256 digest used to verify a fetched chunk
// against the digest the tracker publishes for it.
func chunkHash(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// Sync drives this node toward having every chunk of imageID, fetching
// rarest-first from non-blacklisted holders until complete or ctx is
// cancelled.
func (p *Peer) Sync(ctx context.Context, imageID string, expectedHash func(chunkIndex int) [32]byte) error {
	logger := log.WithComponent("p2p").With().Str("pool_id", p.PoolID).Str("node_id", p.NodeID).Str("image_id", imageID).Logger()

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		st, err := p.Tracker.store.GetImageState(p.PoolID, imageID)
		if err != nil {
			return fmt.Errorf("p2p: fetching image state: %w", err)
		}
		have := p.Chunks.HaveChunks(imageID)
		need := RarestFirst(st, have, p.NodeID)
		if len(need) == 0 {
			return nil
		}

		chunkIndex := need[0]
		holders := HoldersExcluding(st, chunkIndex, p.NodeID, p.mismatch.Snapshot())
		if len(holders) == 0 {
			return fmt.Errorf("p2p: no eligible holders for chunk %d of %s", chunkIndex, imageID)
		}
		peer := holders[0]

		if err := p.fetchAndVerify(ctx, peer, imageID, chunkIndex, expectedHash); err != nil {
			logger.Warn().Str("peer", peer).Int("chunk", chunkIndex).Err(err).Msg("chunk fetch failed")
			continue
		}
	}
}

func (p *Peer) fetchAndVerify(ctx context.Context, peer, imageID string, chunkIndex int, expectedHash func(int) [32]byte) error {
	addr, err := p.Addresses.Address(peer)
	if err != nil {
		return fmt.Errorf("resolving peer address: %w", err)
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.StallTimeout)
	defer cancel()

	client, err := Dial(fetchCtx, addr, p.Identity)
	if err != nil {
		return err
	}
	defer client.Close()

	started := time.Now()
	data, err := client.FetchChunk(fetchCtx, imageID, chunkIndex)
	if err != nil {
		if IsStalled(started, time.Now(), p.StallTimeout) {
			return fmt.Errorf("stalled fetching chunk %d from %s: %w", chunkIndex, peer, err)
		}
		return err
	}

	if chunkHash(data) != expectedHash(chunkIndex) {
		p.mismatch.RecordMismatch(peer)
		return fmt.Errorf("chunk %d hash mismatch from peer %s", chunkIndex, peer)
	}
	p.mismatch.RecordSuccess(peer)

	if err := p.Chunks.WriteChunk(imageID, chunkIndex, data); err != nil {
		return fmt.Errorf("writing chunk %d: %w", chunkIndex, err)
	}
	return p.Tracker.AnnounceChunk(p.PoolID, imageID, chunkIndex, p.NodeID)
}
