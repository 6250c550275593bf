package federation

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestResolveTaskIDsPassesThroughWhenJobUnseen(t *testing.T) {
	ids, err := ResolveTaskIDs([]string{"t1"}, "job-1", "u1", true, false)
	require.NoError(t, err)
	require.Equal(t, []string{"t1"}, ids)
}

func TestResolveTaskIDsRejectsCollisionInUniqueIDsMode(t *testing.T) {
	_, err := ResolveTaskIDs([]string{"t1"}, "job-1", "u1", true, true)
	require.Error(t, err)
	var collisionErr *ErrJobIDCollision
	require.ErrorAs(t, err, &collisionErr)
}

func TestResolveTaskIDsRewritesWithSuffixOutsideUniqueIDsMode(t *testing.T) {
	ids, err := ResolveTaskIDs([]string{"t1", "t2"}, "job-1", "u1", false, true)
	require.NoError(t, err)
	require.Equal(t, []string{"t1-u1", "t2-u1"}, ids)
}
