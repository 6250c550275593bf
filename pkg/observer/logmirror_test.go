package observer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeLogObjectStore struct {
	puts map[string][]byte
}

func newFakeLogObjectStore() *fakeLogObjectStore {
	return &fakeLogObjectStore{puts: map[string][]byte{}}
}

func (f *fakeLogObjectStore) Put(ctx context.Context, deadline time.Time, path string, data []byte) error {
	f.puts[path] = append([]byte(nil), data...)
	return nil
}

func (f *fakeLogObjectStore) Get(ctx context.Context, deadline time.Time, path string) ([]byte, error) {
	return f.puts[path], nil
}

func (f *fakeLogObjectStore) List(ctx context.Context, deadline time.Time, prefix string, include, exclude []string) ([]string, error) {
	return nil, nil
}

func (f *fakeLogObjectStore) SASFor(ctx context.Context, deadline time.Time, path, perms string, ttl time.Duration) (string, error) {
	return "", nil
}

func TestLogMirrorDefersFlushUntilCadenceElapses(t *testing.T) {
	store := newFakeLogObjectStore()
	m := NewLogMirror(store, "fed-1/proxy.log", time.Hour)

	_, err := m.Write([]byte("line one\n"))
	require.NoError(t, err)
	require.Empty(t, store.puts["fed-1/proxy.log"], "first write should buffer, not flush immediately")

	require.NoError(t, m.Flush())
	require.Equal(t, "line one\n", string(store.puts["fed-1/proxy.log"]))
}

func TestLogMirrorFlushesImmediatelyWithZeroCadence(t *testing.T) {
	store := newFakeLogObjectStore()
	m := NewLogMirror(store, "fed-1/proxy.log", 0)

	_, err := m.Write([]byte("a"))
	require.NoError(t, err)
	_, err = m.Write([]byte("b"))
	require.NoError(t, err)

	require.Equal(t, "ab", string(store.puts["fed-1/proxy.log"]))
}
