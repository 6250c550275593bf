package p2p

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"

	"github.com/containerd/containerd"
	"github.com/containerd/containerd/content"
	"github.com/containerd/containerd/images"
	"github.com/containerd/containerd/namespaces"
)

// SeedNamespace isolates the engine's image pulls from any other
// containerd consumer on the same host.
const SeedNamespace = "batchshipyard"

// SeedPuller pulls an image from the origin registry and splits its content
// into fixed-size chunks a ChunkStore can serve to followers (§4.D "seeds
// that pull from the origin registry", §4.E "seed ... pull the full image
// from the origin registry via containerd").
type SeedPuller struct {
	client *containerd.Client
}

// NewSeedPuller connects to the local containerd socket, pull-only: the
// engine never creates or starts containers from these images (§1
// Non-goals).
func NewSeedPuller(socketPath string) (*SeedPuller, error) {
	client, err := containerd.New(socketPath)
	if err != nil {
		return nil, fmt.Errorf("p2p: connecting to containerd: %w", err)
	}
	return &SeedPuller{client: client}, nil
}

func (s *SeedPuller) Close() error { return s.client.Close() }

// PullAndChunk pulls ref, packs the flattened layer content into one tar
// stream, gzipped when compress is set (§4.D "seeds tar-and-compress ...
// before announcing"), and splits the result into chunkSize-sized chunks, writing
// each into dst.
func (s *SeedPuller) PullAndChunk(ctx context.Context, ref string, compress bool, chunkSize int64, dst ChunkStore, imageID string) (int, error) {
	ctx = namespaces.WithNamespace(ctx, SeedNamespace)

	img, err := s.client.Pull(ctx, ref, containerd.WithPullUnpack)
	if err != nil {
		return 0, fmt.Errorf("p2p: pulling %s: %w", ref, err)
	}

	var payload bytes.Buffer
	if err := flattenLayers(ctx, s.client.ContentStore(), img, &payload, compress); err != nil {
		return 0, fmt.Errorf("p2p: flattening %s: %w", ref, err)
	}

	return splitAndStore(payload.Bytes(), chunkSize, dst, imageID)
}

// flattenLayers writes every layer blob of img into w as one entry each of
// a single tar stream, gzipped when compress is set, so followers receive
// one stream rather than per-layer archives.
func flattenLayers(ctx context.Context, store content.Store, img containerd.Image, w io.Writer, compress bool) error {
	manifest, err := images.Manifest(ctx, store, img.Target(), nil)
	if err != nil {
		return err
	}

	var tw *tar.Writer
	var gz *gzip.Writer
	out := w
	if compress {
		gz = gzip.NewWriter(w)
		defer gz.Close()
		out = gz
	}
	tw = tar.NewWriter(out)
	defer tw.Close()

	for i, layer := range manifest.Layers {
		ra, err := store.ReaderAt(ctx, layer)
		if err != nil {
			return fmt.Errorf("reading layer %d: %w", i, err)
		}
		hdr := &tar.Header{Name: layer.Digest.String(), Size: ra.Size()}
		if err := tw.WriteHeader(hdr); err != nil {
			ra.Close()
			return err
		}
		if _, err := io.Copy(tw, io.NewSectionReader(ra, 0, ra.Size())); err != nil {
			ra.Close()
			return err
		}
		ra.Close()
	}
	return nil
}

func splitAndStore(payload []byte, chunkSize int64, dst ChunkStore, imageID string) (int, error) {
	if chunkSize <= 0 {
		return 0, fmt.Errorf("p2p: chunk size must be positive")
	}
	total := 0
	for offset := int64(0); offset < int64(len(payload)); offset += chunkSize {
		end := offset + chunkSize
		if end > int64(len(payload)) {
			end = int64(len(payload))
		}
		if err := dst.WriteChunk(imageID, total, payload[offset:end]); err != nil {
			return total, fmt.Errorf("writing chunk %d: %w", total, err)
		}
		total++
	}
	return total, nil
}
