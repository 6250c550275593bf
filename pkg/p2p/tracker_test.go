package p2p

import (
	"testing"

	"github.com/batchshipyard/engine/pkg/storage"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *storage.BoltStore {
	t.Helper()
	s, err := storage.NewBoltStore(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRegisterSeedPublishesAllChunks(t *testing.T) {
	s := newTestStore(t)
	tr := NewTracker(s)

	st, err := tr.Register("pool-1", "img-a", "seed-1", true, 3, 1024)
	require.NoError(t, err)
	require.Equal(t, []string{"seed-1"}, st.SeedSet)
	for i := 0; i < 3; i++ {
		require.Contains(t, st.ChunkHolders[i], "seed-1")
	}
}

func TestRegisterNonSeedDoesNotPublishChunks(t *testing.T) {
	s := newTestStore(t)
	tr := NewTracker(s)

	_, err := tr.Register("pool-1", "img-a", "seed-1", true, 2, 1024)
	require.NoError(t, err)
	st, err := tr.Register("pool-1", "img-a", "peer-1", false, 2, 1024)
	require.NoError(t, err)
	require.NotContains(t, st.ChunkHolders[0], "peer-1")
}

func TestAnnounceChunkAddsHolder(t *testing.T) {
	s := newTestStore(t)
	tr := NewTracker(s)
	_, err := tr.Register("pool-1", "img-a", "seed-1", true, 1, 1024)
	require.NoError(t, err)

	require.NoError(t, tr.AnnounceChunk("pool-1", "img-a", 0, "peer-1"))

	st, err := s.GetImageState("pool-1", "img-a")
	require.NoError(t, err)
	require.Contains(t, st.ChunkHolders[0], "peer-1")
	require.Contains(t, st.ChunkHolders[0], "seed-1")
}

func TestRarestFirstOrdersByHolderCount(t *testing.T) {
	st := &storage.ImageState{
		TotalChunks: 3,
		ChunkHolders: map[int][]string{
			0: {"a", "b", "c"},
			1: {"a"},
			2: {"a", "b"},
		},
	}
	need := RarestFirst(st, map[int]bool{}, "node-x")
	require.Equal(t, []int{1, 2, 0}, need)
}

func TestRarestFirstSkipsHeldChunks(t *testing.T) {
	st := &storage.ImageState{
		TotalChunks:  2,
		ChunkHolders: map[int][]string{0: {"a"}, 1: {"a"}},
	}
	need := RarestFirst(st, map[int]bool{0: true}, "node-x")
	require.Equal(t, []int{1}, need)
}

func TestRarestFirstTieBreakIsDeterministicPerNode(t *testing.T) {
	st := &storage.ImageState{
		TotalChunks:  4,
		ChunkHolders: map[int][]string{0: {"a"}, 1: {"a"}, 2: {"a"}, 3: {"a"}},
	}
	a := RarestFirst(st, map[int]bool{}, "node-x")
	b := RarestFirst(st, map[int]bool{}, "node-x")
	require.Equal(t, a, b)
}

func TestHoldersExcludingFiltersSelfAndBlacklist(t *testing.T) {
	st := &storage.ImageState{ChunkHolders: map[int][]string{0: {"a", "b", "c"}}}
	out := HoldersExcluding(st, 0, "a", map[string]bool{"b": true})
	require.Equal(t, []string{"c"}, out)
}
