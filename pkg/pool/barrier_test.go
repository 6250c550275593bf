package pool

import (
	"testing"

	"github.com/batchshipyard/engine/pkg/types"
	"github.com/stretchr/testify/require"
)

func TestReadyBarrierBlocksOnNonIdleNode(t *testing.T) {
	p := &types.Pool{}
	nodes := []*types.Node{{ID: "n1", State: types.NodeRunning}}
	ready, reason := ReadyBarrier(p, nodes, true, true)
	require.False(t, ready)
	require.Contains(t, reason, "n1")
}

func TestReadyBarrierSkipsImageAndMountChecksOnTransferFilesOnCreation(t *testing.T) {
	p := &types.Pool{TransferFilesOnCreation: true, PreloadImages: []string{"img-a"}, Mounts: []*types.VolumeMount{{Alias: "data"}}}
	nodes := []*types.Node{{ID: "n1", State: types.NodeIdle}}
	ready, _ := ReadyBarrier(p, nodes, false, false)
	require.True(t, ready)
}

func TestReadyBarrierRequiresImagesVerified(t *testing.T) {
	p := &types.Pool{PreloadImages: []string{"img-a"}}
	nodes := []*types.Node{{ID: "n1", State: types.NodeIdle}}
	ready, reason := ReadyBarrier(p, nodes, false, true)
	require.False(t, ready)
	require.Contains(t, reason, "preload")
}

func TestReadyBarrierRequiresMountsVerified(t *testing.T) {
	p := &types.Pool{Mounts: []*types.VolumeMount{{Alias: "data"}}}
	nodes := []*types.Node{{ID: "n1", State: types.NodeIdle}}
	ready, reason := ReadyBarrier(p, nodes, true, false)
	require.False(t, ready)
	require.Contains(t, reason, "mount")
}

func TestReadyBarrierPassesWithNothingToVerify(t *testing.T) {
	p := &types.Pool{}
	nodes := []*types.Node{{ID: "n1", State: types.NodeIdle}, {ID: "n2", State: types.NodeIdle}}
	ready, _ := ReadyBarrier(p, nodes, false, false)
	require.True(t, ready)
}
