package p2p

import (
	"hash/fnv"
	"sort"

	"github.com/batchshipyard/engine/pkg/storage"
)

// Tracker wraps the pool's metadata store to answer the two questions the
// protocol needs: which peers hold a given chunk, and which chunk a node
// should request next (§4.E.1).
type Tracker struct {
	store storage.Store
}

// NewTracker builds a Tracker over store.
func NewTracker(store storage.Store) *Tracker {
	return &Tracker{store: store}
}

// Register adds nodeID to the image's seed set if it is seeding, or simply
// ensures the image state exists, then returns the current chunk map so the
// caller can begin selecting chunks (§4.E.1 "a node registers itself with
// the tracker under its pool id").
func (tr *Tracker) Register(poolID, imageID, nodeID string, isSeed bool, totalChunks int, chunkSize int64) (*storage.ImageState, error) {
	st, err := tr.store.GetImageState(poolID, imageID)
	if err == storage.ErrNotFound {
		st = &storage.ImageState{
			ImageID:      imageID,
			ChunkSize:    chunkSize,
			TotalChunks:  totalChunks,
			ChunkHolders: map[int][]string{},
		}
	} else if err != nil {
		return nil, err
	}
	if isSeed {
		st.SeedSet = appendUnique(st.SeedSet, nodeID)
		if st.ChunkHolders == nil {
			st.ChunkHolders = map[int][]string{}
		}
		for i := 0; i < st.TotalChunks; i++ {
			st.ChunkHolders[i] = appendUnique(st.ChunkHolders[i], nodeID)
		}
	}
	if err := tr.store.PutImageState(poolID, st); err != nil && err != storage.ErrConflict {
		return nil, err
	}
	return tr.store.GetImageState(poolID, imageID)
}

// AnnounceChunk records that nodeID now holds chunkIndex, retrying once on a
// CAS conflict against a concurrent announcer.
func (tr *Tracker) AnnounceChunk(poolID, imageID string, chunkIndex int, nodeID string) error {
	for attempt := 0; attempt < 2; attempt++ {
		st, err := tr.store.GetImageState(poolID, imageID)
		if err != nil {
			return err
		}
		if st.ChunkHolders == nil {
			st.ChunkHolders = map[int][]string{}
		}
		st.ChunkHolders[chunkIndex] = appendUnique(st.ChunkHolders[chunkIndex], nodeID)
		err = tr.store.PutImageState(poolID, st)
		if err == nil {
			return nil
		}
		if err != storage.ErrConflict {
			return err
		}
	}
	return storage.ErrConflict
}

func appendUnique(list []string, v string) []string {
	for _, x := range list {
		if x == v {
			return list
		}
	}
	return append(list, v)
}

// RarestFirst orders the chunks a node still needs by ascending holder
// count (rarest first); ties break deterministically by a hash of
// (nodeID, chunkIndex) so different nodes don't all pile onto the same
// rarest chunk (§4.E.2).
func RarestFirst(st *storage.ImageState, have map[int]bool, nodeID string) []int {
	var need []int
	for i := 0; i < st.TotalChunks; i++ {
		if !have[i] {
			need = append(need, i)
		}
	}
	sort.Slice(need, func(a, b int) bool {
		ca, cb := len(st.ChunkHolders[need[a]]), len(st.ChunkHolders[need[b]])
		if ca != cb {
			return ca < cb
		}
		return tieBreakHash(nodeID, need[a]) < tieBreakHash(nodeID, need[b])
	})
	return need
}

func tieBreakHash(nodeID string, chunkIndex int) uint64 {
	h := fnv.New64a()
	h.Write([]byte(nodeID))
	h.Write([]byte{
		byte(chunkIndex), byte(chunkIndex >> 8), byte(chunkIndex >> 16), byte(chunkIndex >> 24),
	})
	return h.Sum64()
}

// HoldersExcluding returns the peers holding chunkIndex other than self and
// any blacklisted node.
func HoldersExcluding(st *storage.ImageState, chunkIndex int, self string, blacklist map[string]bool) []string {
	var out []string
	for _, h := range st.ChunkHolders[chunkIndex] {
		if h == self || blacklist[h] {
			continue
		}
		out = append(out, h)
	}
	return out
}
