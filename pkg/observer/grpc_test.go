package observer

import (
	"bytes"
	"context"
	"io"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeStreamTaskRequestRoundTrips(t *testing.T) {
	buf := encodeStreamTaskRequest("p1", "n1", "stdout.txt")
	poolID, nodeID, path, err := decodeStreamTaskRequest(buf)
	require.NoError(t, err)
	require.Equal(t, "p1", poolID)
	require.Equal(t, "n1", nodeID)
	require.Equal(t, "stdout.txt", path)
}

func TestDecodeStreamTaskRequestRejectsTruncatedInput(t *testing.T) {
	_, _, _, err := decodeStreamTaskRequest([]byte{0, 5, 'a'})
	require.Error(t, err)
}

type staticChunkSource struct {
	chunks [][]byte
}

func (s *staticChunkSource) NextChunk(poolID, nodeID, path string) ([]byte, error) {
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	c := s.chunks[0]
	s.chunks = s.chunks[1:]
	return c, nil
}

func TestLogServerStreamsChunksToClient(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	src := &staticChunkSource{chunks: [][]byte{[]byte("hello "), []byte("world")}}
	srv := NewLogServer(src)
	go srv.Serve(lis)
	defer srv.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out bytes.Buffer
	err = StreamTaskClient(ctx, lis.Addr().String(), "p1", "n1", "stdout.txt", &out,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	require.Equal(t, "hello world", out.String())
}
