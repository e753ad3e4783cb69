// Offline spatial-index builder: converts raw ADCIRC NetCDF constituent data
// into the spatially sorted, chunked mesh store the API serves from.
//
// All-or-nothing by design: any input defect aborts before the manifest is
// written, so a failed run never leaves a loadable store behind.
package main

import (
	"context"
	"os"
	"strconv"
	"strings"
	"time"

	"currents-api/internal/chunkstore"
	"currents-api/internal/logger"
	"currents-api/internal/mesh"

	"github.com/joho/godotenv"
)

// Default constituent subset, matching the fields the frontend animates.
var defaultConstituents = []string{"M2", "S2", "N2", "K1", "O1", "P1", "M4", "M6"}

func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()

	ncPath := os.Getenv("MESH_NC_PATH")
	if ncPath == "" {
		l.Error("mesh_nc_path_missing")
		os.Exit(1)
	}
	outURL := os.Getenv("MESH_OUT_URL")
	if outURL == "" {
		l.Error("mesh_out_url_missing", "hint", "file:///abs/dir or s3://bucket?prefix=mesh/")
		os.Exit(1)
	}

	constituents := defaultConstituents
	if s := os.Getenv("MESH_CONSTITUENTS"); s != "" {
		constituents = nil
		for _, name := range strings.Split(s, ",") {
			if name = strings.TrimSpace(name); name != "" {
				constituents = append(constituents, name)
			}
		}
	}

	opt := mesh.BuildOptions{Curve: os.Getenv("MESH_CURVE")}
	if s := os.Getenv("MESH_CURVE_ORDER"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			opt.CurveOrder = n
		}
	}
	if s := os.Getenv("MESH_NODE_CHUNK"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			opt.NodeChunkSize = n
		}
	}
	if s := os.Getenv("MESH_TRI_CHUNK"); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			opt.TriangleChunkSize = n
		}
	}

	start := time.Now()
	l.Info("build_begin", "nc", ncPath, "out", outURL, "constituents", strings.Join(constituents, ","))

	raw, err := mesh.ReadNetCDF(ncPath, constituents)
	if err != nil {
		l.Error("netcdf_read_error", "err", err)
		os.Exit(1)
	}
	l.Info("netcdf_read_done",
		"nodes", raw.NumNodes(),
		"triangles", raw.NumTriangles(),
		"constituents", raw.NumConstituents(),
		"mean_consecutive_deg", mesh.MeanConsecutiveDistance(raw.Lat, raw.Lon),
	)

	sorted, err := mesh.Build(raw, opt)
	if err != nil {
		l.Error("build_error", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := chunkstore.Write(ctx, outURL, sorted); err != nil {
		l.Error("chunkstore_write_error", "err", err)
		os.Exit(1)
	}
	l.Info("build_done", "duration_ms", time.Since(start).Milliseconds())
}
