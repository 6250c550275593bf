package datamove

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/batchshipyard/engine/pkg/types"
	"github.com/stretchr/testify/require"
)

type fakeObjectStore struct {
	puts    map[string][]byte
	putErrs map[string]error
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{puts: map[string][]byte{}, putErrs: map[string]error{}}
}

func (f *fakeObjectStore) Put(ctx context.Context, deadline time.Time, path string, data []byte) error {
	if err := f.putErrs[path]; err != nil {
		return err
	}
	f.puts[path] = data
	return nil
}

func (f *fakeObjectStore) Get(ctx context.Context, deadline time.Time, path string) ([]byte, error) {
	return f.puts[path], nil
}

func (f *fakeObjectStore) List(ctx context.Context, deadline time.Time, prefix string, include, exclude []string) ([]string, error) {
	return nil, nil
}

func (f *fakeObjectStore) SASFor(ctx context.Context, deadline time.Time, path, perms string, ttl time.Duration) (string, error) {
	return "", nil
}

func TestRunEgressUploadsOnSuccess(t *testing.T) {
	obj := newFakeObjectStore()
	units := []types.OutputData{{SourcePath: "stdout.txt", DestinationPath: "out/stdout.txt"}}
	err := RunEgress(context.Background(), obj, time.Now().Add(time.Hour), units, func(u *types.OutputData) ([]byte, error) {
		return []byte("hello"), nil
	})
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), obj.puts["out/stdout.txt"])
}

func TestRunEgressFireAndForgetSwallowsReadError(t *testing.T) {
	obj := newFakeObjectStore()
	units := []types.OutputData{{SourcePath: "missing.txt", DestinationPath: "out/missing.txt", FireAndForget: true}}
	err := RunEgress(context.Background(), obj, time.Now().Add(time.Hour), units, func(u *types.OutputData) ([]byte, error) {
		return nil, errors.New("not found")
	})
	require.NoError(t, err)
	require.NotContains(t, obj.puts, "out/missing.txt")
}

func TestRunEgressNonFireAndForgetPropagatesReadError(t *testing.T) {
	obj := newFakeObjectStore()
	units := []types.OutputData{{SourcePath: "missing.txt", DestinationPath: "out/missing.txt"}}
	err := RunEgress(context.Background(), obj, time.Now().Add(time.Hour), units, func(u *types.OutputData) ([]byte, error) {
		return nil, errors.New("not found")
	})
	require.Error(t, err)
}

func TestRunEgressStopsRetryingAfterRetentionExpiry(t *testing.T) {
	obj := newFakeObjectStore()
	units := []types.OutputData{{SourcePath: "a.txt", DestinationPath: "out/a.txt"}}
	err := RunEgress(context.Background(), obj, time.Now().Add(-time.Minute), units, func(u *types.OutputData) ([]byte, error) {
		return []byte("x"), nil
	})
	require.Error(t, err)
}
