package p2p

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/encoding"
)

// rawBytesCodec passes chunk payloads through uninterpreted; the peer
// protocol exchanges raw chunk bytes, not structured messages, so a
// generated protobuf schema would add nothing but codegen overhead.
type rawBytesCodec struct{}

const rawCodecName = "p2p-raw"

func (rawBytesCodec) Marshal(v interface{}) ([]byte, error) {
	b, ok := v.(*[]byte)
	if !ok {
		return nil, fmt.Errorf("p2p: rawBytesCodec can only marshal *[]byte, got %T", v)
	}
	return *b, nil
}

func (rawBytesCodec) Unmarshal(data []byte, v interface{}) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("p2p: rawBytesCodec can only unmarshal into *[]byte, got %T", v)
	}
	*b = append([]byte(nil), data...)
	return nil
}

func (rawBytesCodec) Name() string { return rawCodecName }

func init() {
	encoding.RegisterCodec(rawBytesCodec{})
}

const fetchChunkMethod = "/shipyard.p2p.Peer/FetchChunk"

// FetchChunkRequest is marshaled by hand into the raw wire format: a fixed
// image-id length prefix followed by image id, then an 8-byte big-endian
// chunk index. Kept deliberately tiny since the codec carries no schema.
func encodeFetchChunkRequest(imageID string, chunkIndex int) []byte {
	buf := make([]byte, 2+len(imageID)+8)
	buf[0] = byte(len(imageID) >> 8)
	buf[1] = byte(len(imageID))
	copy(buf[2:], imageID)
	off := 2 + len(imageID)
	for i := 0; i < 8; i++ {
		buf[off+i] = byte(chunkIndex >> (56 - 8*i))
	}
	return buf
}

func decodeFetchChunkRequest(buf []byte) (imageID string, chunkIndex int, err error) {
	if len(buf) < 2 {
		return "", 0, fmt.Errorf("p2p: truncated fetch-chunk request")
	}
	n := int(buf[0])<<8 | int(buf[1])
	if len(buf) < 2+n+8 {
		return "", 0, fmt.Errorf("p2p: truncated fetch-chunk request body")
	}
	imageID = string(buf[2 : 2+n])
	off := 2 + n
	var idx int
	for i := 0; i < 8; i++ {
		idx = idx<<8 | int(buf[off+i])
	}
	return imageID, idx, nil
}

// TLSIdentity is the mutual-TLS material a node presents to and verifies
// from its peers; pool membership implies trust of the same CA (grounded
// on the teacher's worker/manager mTLS handshake).
type TLSIdentity struct {
	Cert   tls.Certificate
	CAPool *x509.CertPool
}

func (id TLSIdentity) serverCreds() credentials.TransportCredentials {
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{id.Cert},
		ClientCAs:    id.CAPool,
		ClientAuth:   tls.RequireAndVerifyClientCert,
		MinVersion:   tls.VersionTLS13,
	})
}

func (id TLSIdentity) clientCreds() credentials.TransportCredentials {
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{id.Cert},
		RootCAs:      id.CAPool,
		MinVersion:   tls.VersionTLS13,
	})
}

// ChunkServer is implemented by the local chunk store so NewServer can wire
// incoming FetchChunk calls to it.
type ChunkServer interface {
	ReadChunk(imageID string, chunkIndex int) ([]byte, error)
}

// NewServer builds a gRPC server exposing FetchChunk over mTLS, backed by
// impl. Call Serve on the returned *grpc.Server against a listener.
func NewServer(identity TLSIdentity, impl ChunkServer) *grpc.Server {
	srv := grpc.NewServer(grpc.Creds(identity.serverCreds()))
	desc := &grpc.ServiceDesc{
		ServiceName: "shipyard.p2p.Peer",
		HandlerType: (*ChunkServer)(nil),
		Methods: []grpc.MethodDesc{
			{
				MethodName: "FetchChunk",
				Handler: func(_ interface{}, ctx context.Context, dec func(interface{}) error, _ grpc.UnaryServerInterceptor) (interface{}, error) {
					var req []byte
					if err := dec(&req); err != nil {
						return nil, err
					}
					imageID, chunkIndex, err := decodeFetchChunkRequest(req)
					if err != nil {
						return nil, err
					}
					data, err := impl.ReadChunk(imageID, chunkIndex)
					if err != nil {
						return nil, err
					}
					return &data, nil
				},
			},
		},
		Streams:  []grpc.StreamDesc{},
		Metadata: "p2p.proto",
	}
	srv.RegisterService(desc, impl)
	return srv
}

// Client pulls chunks from a single peer over mTLS.
type Client struct {
	conn *grpc.ClientConn
}

// Dial connects to a peer's chunk server.
func Dial(ctx context.Context, addr string, identity TLSIdentity) (*Client, error) {
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(identity.clientCreds()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(rawCodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("p2p: dial %s: %w", addr, err)
	}
	return &Client{conn: conn}, nil
}

// FetchChunk requests chunkIndex of imageID from the dialed peer.
func (c *Client) FetchChunk(ctx context.Context, imageID string, chunkIndex int) ([]byte, error) {
	req := encodeFetchChunkRequest(imageID, chunkIndex)
	var resp []byte
	if err := c.conn.Invoke(ctx, fetchChunkMethod, &req, &resp, grpc.CallContentSubtype(rawCodecName)); err != nil {
		return nil, err
	}
	return resp, nil
}

// Close releases the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }
