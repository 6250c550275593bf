package observer

import (
	"context"
	"io"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
)

// rawChunkCodec passes task-output chunks through as raw bytes; there's no
// structured schema to generate code for here, same rationale as the p2p
// transport's codec.
type rawChunkCodec struct{}

const rawChunkCodecName = "observer-raw"

func (rawChunkCodec) Marshal(v interface{}) ([]byte, error) {
	b := v.(*[]byte)
	return *b, nil
}

func (rawChunkCodec) Unmarshal(data []byte, v interface{}) error {
	b := v.(*[]byte)
	*b = append([]byte(nil), data...)
	return nil
}

func (rawChunkCodec) Name() string { return rawChunkCodecName }

func init() {
	encoding.RegisterCodec(rawChunkCodec{})
}

const streamTaskMethod = "/shipyard.observer.Logs/StreamTask"

// TaskStreamSource supplies chunks for a requested (pool, node, path) until
// it signals completion by returning io.EOF.
type TaskStreamSource interface {
	NextChunk(poolID, nodeID, path string) ([]byte, error)
}

// NewLogServer exposes src's chunks as a gRPC server-streaming RPC so a
// remote CLI can tail a running task's output without SSHing to the node.
func NewLogServer(src TaskStreamSource) *grpc.Server {
	srv := grpc.NewServer()
	desc := &grpc.ServiceDesc{
		ServiceName: "shipyard.observer.Logs",
		HandlerType: (*TaskStreamSource)(nil),
		Methods:     []grpc.MethodDesc{},
		Streams: []grpc.StreamDesc{
			{
				StreamName: "StreamTask",
				Handler: func(_ interface{}, stream grpc.ServerStream) error {
					var req []byte
					if err := stream.RecvMsg(&req); err != nil {
						return err
					}
					poolID, nodeID, path, err := decodeStreamTaskRequest(req)
					if err != nil {
						return err
					}
					for {
						chunk, err := src.NextChunk(poolID, nodeID, path)
						if err == io.EOF {
							return nil
						}
						if err != nil {
							return err
						}
						if len(chunk) == 0 {
							continue
						}
						if err := stream.SendMsg(&chunk); err != nil {
							return err
						}
					}
				},
				ServerStreams: true,
			},
		},
		Metadata: "observer.proto",
	}
	srv.RegisterService(desc, src)
	return srv
}

// StreamTaskClient dials a remote observer log server and writes every
// chunk it streams for (poolID, nodeID, path) to w until the server closes
// the stream or ctx is canceled.
func StreamTaskClient(ctx context.Context, addr, poolID, nodeID, path string, w io.Writer, dialOpts ...grpc.DialOption) error {
	conn, err := grpc.NewClient(addr, dialOpts...)
	if err != nil {
		return err
	}
	defer conn.Close()

	desc := &grpc.StreamDesc{StreamName: "StreamTask", ServerStreams: true}
	stream, err := conn.NewStream(ctx, desc, streamTaskMethod, grpc.CallContentSubtype(rawChunkCodecName))
	if err != nil {
		return err
	}

	req := encodeStreamTaskRequest(poolID, nodeID, path)
	if err := stream.SendMsg(&req); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}

	for {
		var chunk []byte
		err := stream.RecvMsg(&chunk)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := w.Write(chunk); err != nil {
			return err
		}
	}
}

func encodeStreamTaskRequest(poolID, nodeID, path string) []byte {
	parts := []string{poolID, nodeID, path}
	var out []byte
	for _, p := range parts {
		out = append(out, byte(len(p)>>8), byte(len(p)))
		out = append(out, p...)
	}
	return out
}

func decodeStreamTaskRequest(buf []byte) (poolID, nodeID, path string, err error) {
	vals := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		if len(buf) < 2 {
			return "", "", "", io.ErrUnexpectedEOF
		}
		n := int(buf[0])<<8 | int(buf[1])
		buf = buf[2:]
		if len(buf) < n {
			return "", "", "", io.ErrUnexpectedEOF
		}
		vals = append(vals, string(buf[:n]))
		buf = buf[n:]
	}
	return vals[0], vals[1], vals[2], nil
}
