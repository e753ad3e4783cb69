// Package store owns the in-memory sorted mesh for the lifetime of the
// process: one guarded load, immutable arrays afterwards, shared read-only by
// every concurrent query.
package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"currents-api/internal/chunkstore"
	"currents-api/internal/logger"
	"currents-api/internal/mesh"
	"currents-api/internal/metrics"

	"gonum.org/v1/gonum/floats"
)

// Store loads a sorted mesh from chunked storage exactly once. Concurrent
// first callers block on the same load; after it completes the mesh and info
// snapshot are immutable.
type Store struct {
	url string

	once sync.Once
	m    *mesh.Sorted
	info *Info
	err  error
}

// Info is the dataset summary, computed once at load rather than per request.
type Info struct {
	TotalNodes     int        `json:"total_nodes"`
	TotalElements  int        `json:"total_elements"`
	Constituents   []string   `json:"constituents"`
	Frequencies    []float64  `json:"tide_frequencies"`
	LatRange       [2]float64 `json:"lat_range"`
	LonRange       [2]float64 `json:"lon_range"`
	DepthRange     [2]float64 `json:"depth_range"`
	Curve          string     `json:"spatial_curve"`
	NodeChunkSize  int        `json:"node_chunk_size"`
}

// New creates a store bound to a bucket URL. Nothing is loaded until the
// first Load call.
func New(bucketURL string) *Store {
	return &Store{url: bucketURL}
}

// BucketURLFromEnv resolves the mesh location the way the deployment
// configures it: DATA_SOURCE=LOCAL serves from LOCAL_MESH_PATH on disk,
// anything else uses MESH_BUCKET_URL (typically an s3:// URL).
func BucketURLFromEnv() string {
	if os.Getenv("DATA_SOURCE") == "LOCAL" {
		p := os.Getenv("LOCAL_MESH_PATH")
		if p == "" {
			p = filepath.Join("data", "mesh")
		}
		abs, err := filepath.Abs(p)
		if err != nil {
			abs = p
		}
		return "file://" + filepath.ToSlash(abs)
	}
	return os.Getenv("MESH_BUCKET_URL")
}

// Load fetches the sorted mesh on first call and memoizes the outcome,
// including failure: a store that failed to load stays empty and keeps
// returning the same StorageUnavailable error instead of half-serving.
func (s *Store) Load(ctx context.Context) error {
	s.once.Do(func() {
		start := time.Now()
		logger.L().Info("mesh_load_begin", "url", s.url)
		m, err := chunkstore.Read(ctx, s.url)
		if err != nil {
			s.err = err
			logger.L().Error("mesh_load_error", "err", err)
			return
		}
		s.m = m
		s.info = buildInfo(m)
		dur := time.Since(start)
		metrics.StoreLoadDurationMs.Observe(float64(dur.Milliseconds()))
		logger.L().Info("mesh_load_done",
			"nodes", m.NumNodes(),
			"triangles", m.NumTriangles(),
			"constituents", m.NumConstituents(),
			"duration_ms", dur.Milliseconds(),
		)
	})
	return s.err
}

// Mesh returns the loaded mesh, nil before a successful Load.
func (s *Store) Mesh() *mesh.Sorted { return s.m }

// Info returns the dataset summary, nil before a successful Load.
func (s *Store) Info() *Info { return s.info }

func buildInfo(m *mesh.Sorted) *Info {
	return &Info{
		TotalNodes:    m.NumNodes(),
		TotalElements: m.NumTriangles(),
		Constituents:  m.Names,
		Frequencies:   m.Freqs,
		LatRange:      [2]float64{floats.Min(m.Lat), floats.Max(m.Lat)},
		LonRange:      [2]float64{floats.Min(m.Lon), floats.Max(m.Lon)},
		DepthRange:    [2]float64{floats.Min(m.Depth), floats.Max(m.Depth)},
		Curve:         m.Curve,
		NodeChunkSize: m.NodeChunkSize,
	}
}
