// Package chunkstore persists a sorted mesh as a chunked columnar layout in a
// blob bucket: one JSON manifest plus fixed-size binary chunk objects per
// variable. Buckets are addressed by gocloud URL, so the same code serves a
// local directory (file://) and remote object storage (s3://).
//
// Layout:
//
//	manifest.json
//	lat/000000, lat/000001, ...            float64 LE, NodeChunkSize values
//	lon/..., depth/..., original_node_index/... (int64)
//	u_amp/..., v_amp/..., u_phase/..., v_phase/...  (NodeChunkSize*C values)
//	elements/000000, ...                   int32 LE, TriangleChunkSize*3 values
//
// The manifest is written last, so an interrupted build never produces a
// loadable store.
package chunkstore

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"currents-api/internal/logger"
	"currents-api/internal/mesh"
	"currents-api/internal/metrics"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/s3blob"
)

// ErrStorageUnavailable marks load-time transport failures: unreachable
// bucket, missing or truncated objects. Fatal to serving from that store.
var ErrStorageUnavailable = errors.New("mesh storage unavailable")

const manifestKey = "manifest.json"

// Manifest describes the stored layout and is the only metadata the reader
// needs before fetching chunks.
type Manifest struct {
	Version           int       `json:"version"`
	Nodes             int       `json:"nodes"`
	Triangles         int       `json:"triangles"`
	Constituents      []string  `json:"constituents"`
	Frequencies       []float64 `json:"frequencies"`
	NodeChunkSize     int       `json:"node_chunk_size"`
	TriangleChunkSize int       `json:"triangle_chunk_size"`
	Curve             string    `json:"curve"`
	CurveOrder        int       `json:"curve_order"`
	Created           string    `json:"created"`
}

func chunkKey(variable string, i int) string {
	return fmt.Sprintf("%s/%06d", variable, i)
}

// Write stores a sorted mesh into the bucket addressed by url.
func Write(ctx context.Context, url string, s *mesh.Sorted) error {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return fmt.Errorf("%w: open %s: %v", ErrStorageUnavailable, url, err)
	}
	defer b.Close()
	return WriteBucket(ctx, b, s)
}

// WriteBucket stores a sorted mesh into an already-open bucket.
func WriteBucket(ctx context.Context, b *blob.Bucket, s *mesh.Sorted) error {
	n := s.NumNodes()
	c := s.NumConstituents()
	start := time.Now()

	for _, v := range []struct {
		name string
		data []float64
	}{
		{"lat", s.Lat}, {"lon", s.Lon}, {"depth", s.Depth},
		{"u_amp", s.UAmp}, {"v_amp", s.VAmp},
		{"u_phase", s.UPhase}, {"v_phase", s.VPhase},
	} {
		stride := 1
		if len(v.data) == n*c {
			stride = c
		}
		if err := writeChunks(ctx, b, v.name, v.data, s.NodeChunkSize*stride); err != nil {
			return err
		}
	}
	if err := writeChunks(ctx, b, "original_node_index", s.OriginalIndex, s.NodeChunkSize); err != nil {
		return err
	}
	if err := writeChunks(ctx, b, "elements", s.Triangles, s.TriangleChunkSize*3); err != nil {
		return err
	}

	man := Manifest{
		Version:           1,
		Nodes:             n,
		Triangles:         s.NumTriangles(),
		Constituents:      s.Names,
		Frequencies:       s.Freqs,
		NodeChunkSize:     s.NodeChunkSize,
		TriangleChunkSize: s.TriangleChunkSize,
		Curve:             s.Curve,
		CurveOrder:        s.CurveOrder,
		Created:           time.Now().UTC().Format(time.RFC3339),
	}
	mb, err := json.MarshalIndent(man, "", "  ")
	if err != nil {
		return err
	}
	if err := b.WriteAll(ctx, manifestKey, mb, nil); err != nil {
		return fmt.Errorf("%w: write manifest: %v", ErrStorageUnavailable, err)
	}
	logger.L().Info("chunkstore_write_done",
		"nodes", n, "triangles", man.Triangles,
		"node_chunk", man.NodeChunkSize, "tri_chunk", man.TriangleChunkSize,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// writeChunks splits data into per-chunk objects of chunkLen values each.
func writeChunks[T any](ctx context.Context, b *blob.Bucket, variable string, data []T, chunkLen int) error {
	for i := 0; i*chunkLen < len(data); i++ {
		lo := i * chunkLen
		hi := lo + chunkLen
		if hi > len(data) {
			hi = len(data)
		}
		var buf bytes.Buffer
		if err := binary.Write(&buf, binary.LittleEndian, data[lo:hi]); err != nil {
			return err
		}
		if err := b.WriteAll(ctx, chunkKey(variable, i), buf.Bytes(), nil); err != nil {
			return fmt.Errorf("%w: write %s: %v", ErrStorageUnavailable, chunkKey(variable, i), err)
		}
	}
	return nil
}

// Read loads a complete sorted mesh from the bucket addressed by url.
func Read(ctx context.Context, url string) (*mesh.Sorted, error) {
	b, err := blob.OpenBucket(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageUnavailable, url, err)
	}
	defer b.Close()
	return ReadBucket(ctx, b)
}

// ReadBucket loads a complete sorted mesh from an already-open bucket. On any
// failure the returned mesh is nil; the caller never sees a partially
// populated store.
func ReadBucket(ctx context.Context, b *blob.Bucket) (*mesh.Sorted, error) {
	mb, err := b.ReadAll(ctx, manifestKey)
	if err != nil {
		return nil, fmt.Errorf("%w: read manifest: %v", ErrStorageUnavailable, err)
	}
	var man Manifest
	if err := json.Unmarshal(mb, &man); err != nil {
		return nil, fmt.Errorf("%w: decode manifest: %v", ErrStorageUnavailable, err)
	}
	if man.Nodes <= 0 || man.NodeChunkSize <= 0 || man.TriangleChunkSize <= 0 {
		return nil, fmt.Errorf("%w: manifest invalid: %+v", ErrStorageUnavailable, man)
	}
	n := man.Nodes
	c := len(man.Constituents)

	s := &mesh.Sorted{
		NodeChunkSize:     man.NodeChunkSize,
		TriangleChunkSize: man.TriangleChunkSize,
		Curve:             man.Curve,
		CurveOrder:        man.CurveOrder,
	}
	s.Names = man.Constituents
	s.Freqs = man.Frequencies

	for _, v := range []struct {
		name   string
		dst    *[]float64
		stride int
	}{
		{"lat", &s.Lat, 1}, {"lon", &s.Lon, 1}, {"depth", &s.Depth, 1},
		{"u_amp", &s.UAmp, c}, {"v_amp", &s.VAmp, c},
		{"u_phase", &s.UPhase, c}, {"v_phase", &s.VPhase, c},
	} {
		arr := make([]float64, n*v.stride)
		if err := readChunks(ctx, b, v.name, arr, man.NodeChunkSize*v.stride); err != nil {
			return nil, err
		}
		*v.dst = arr
	}
	s.OriginalIndex = make([]int64, n)
	if err := readChunks(ctx, b, "original_node_index", s.OriginalIndex, man.NodeChunkSize); err != nil {
		return nil, err
	}
	s.Triangles = make([]int32, man.Triangles*3)
	if err := readChunks(ctx, b, "elements", s.Triangles, man.TriangleChunkSize*3); err != nil {
		return nil, err
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%w: stored mesh corrupt: %v", ErrStorageUnavailable, err)
	}
	return s, nil
}

// readChunks fills dst from consecutive chunk objects of chunkLen values.
func readChunks[T any](ctx context.Context, b *blob.Bucket, variable string, dst []T, chunkLen int) error {
	for i := 0; i*chunkLen < len(dst); i++ {
		lo := i * chunkLen
		hi := lo + chunkLen
		if hi > len(dst) {
			hi = len(dst)
		}
		raw, err := b.ReadAll(ctx, chunkKey(variable, i))
		if err != nil {
			return fmt.Errorf("%w: read %s: %v", ErrStorageUnavailable, chunkKey(variable, i), err)
		}
		metrics.ChunkReadsTotal.Inc()
		if err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, dst[lo:hi]); err != nil {
			return fmt.Errorf("%w: decode %s: %v", ErrStorageUnavailable, chunkKey(variable, i), err)
		}
	}
	return nil
}
