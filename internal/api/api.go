// Package api registers the HTTP routes on a standalone ServeMux so the main
// entrypoint can mount them under the configured API base.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"currents-api/internal/chunkstore"
	"currents-api/internal/logger"
	"currents-api/internal/metrics"
	"currents-api/internal/query"
	"currents-api/internal/store"
	"currents-api/internal/tide"

	"github.com/redis/go-redis/v9"
)

// Options wires the handlers' collaborators. Redis and Stats are optional;
// nil disables the response cache and the usage log respectively.
type Options struct {
	Store     *store.Store
	Redis     *redis.Client
	Stats     *store.Stats
	Corrector tide.Corrector
	MaxNodes  int     // node ceiling per query; <=0 takes query.DefaultMaxNodes
	NodalLat  float64 // reference latitude for nodal corrections
}

type handlers struct {
	Options

	// Engine and synthesizer depend on the loaded mesh, so they are built
	// once behind the same first-request barrier as the store load.
	initOnce sync.Once
	engine   *query.Engine
	syn      *tide.Synthesizer
}

// Responses mirror the shapes the map frontend consumes.

type bboxJSON struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLon float64 `json:"min_lon"`
	MaxLon float64 `json:"max_lon"`
}

type nodesJSON struct {
	Count     int       `json:"count"`
	Lat       []float64 `json:"lat"`
	Lon       []float64 `json:"lon"`
	Depth     []float64 `json:"depth"`
	UVelocity []float64 `json:"u_velocity"`
	VVelocity []float64 `json:"v_velocity"`
}

type elementsJSON struct {
	Count     int        `json:"count"`
	Triangles [][3]int32 `json:"triangles"`
}

type meshResponse struct {
	BBox         bboxJSON     `json:"bbox"`
	Time         string       `json:"time"`
	Nodes        nodesJSON    `json:"nodes"`
	Elements     elementsJSON `json:"elements"`
	Constituents []string     `json:"constituents"`
}

// maxCachedBody keeps bulk sub-mesh payloads out of redis; only viewport-size
// responses are worth caching.
const maxCachedBody = 4 << 20

// BuildRoutes returns the API mux: /mesh, /info and /stats.
func BuildRoutes(opt Options) *http.ServeMux {
	h := &handlers{Options: opt}
	mux := http.NewServeMux()
	mux.HandleFunc("/mesh", h.handleMesh)
	mux.HandleFunc("/info", h.handleInfo)
	mux.HandleFunc("/stats", h.handleStats)
	return mux
}

// ensureLoaded loads the mesh on first use and builds the engine and
// synthesizer exactly once. Concurrent first requests share the same load.
func (h *handlers) ensureLoaded(ctx context.Context) error {
	if err := h.Store.Load(ctx); err != nil {
		return err
	}
	h.initOnce.Do(func() {
		m := h.Store.Mesh()
		h.engine = query.NewEngine(m, h.MaxNodes)
		h.syn = tide.NewSynthesizer(m.Names, m.Freqs, h.Corrector)
	})
	return nil
}

func (h *handlers) handleMesh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	metrics.MeshRequestsTotal.Inc()
	ctx := r.Context()

	box, err := parseBBox(r)
	if err != nil {
		writeError(w, err)
		return
	}
	timeParam := r.URL.Query().Get("time")
	instant, err := parseInstant(timeParam)
	if err != nil {
		writeError(w, err)
		return
	}

	// Cache only explicit instants: a "now" default is never reusable.
	var cacheKey string
	if h.Redis != nil && timeParam != "" {
		cacheKey = fmt.Sprintf("mesh:%g:%g:%g:%g:%s",
			box.MinLat, box.MaxLat, box.MinLon, box.MaxLon, instant.Format(time.RFC3339))
		if s, _ := h.Redis.Get(ctx, cacheKey).Result(); s != "" {
			metrics.RedisHitsTotal.Inc()
			w.Header().Set("content-type", "application/json; charset=utf-8")
			_, _ = w.Write([]byte(s))
			h.recordStats(ctx, box, -1, -1, time.Since(start))
			return
		}
		metrics.RedisMissesTotal.Inc()
	}

	if err := h.ensureLoaded(ctx); err != nil {
		writeError(w, err)
		return
	}

	res, err := h.engine.Query(box)
	if err != nil {
		writeError(w, err)
		return
	}

	m := h.Store.Mesh()
	synStart := time.Now()
	uVel, vVel, err := h.syn.Predict(
		m.UAmp, m.VAmp, m.UPhase, m.VPhase, m.NumConstituents(),
		res.Selected, instant, h.NodalLat)
	if err != nil {
		writeError(w, err)
		return
	}
	metrics.SynthesisDurationMs.Observe(float64(time.Since(synStart).Milliseconds()))

	triangles := make([][3]int32, res.NumTriangles())
	for i := range triangles {
		triangles[i] = [3]int32{res.Triangles[3*i], res.Triangles[3*i+1], res.Triangles[3*i+2]}
	}
	resp := meshResponse{
		BBox: bboxJSON{MinLat: box.MinLat, MaxLat: box.MaxLat, MinLon: box.MinLon, MaxLon: box.MaxLon},
		Time: instant.Format(time.RFC3339),
		Nodes: nodesJSON{
			Count:     res.NumNodes(),
			Lat:       res.Lat,
			Lon:       res.Lon,
			Depth:     res.Depth,
			UVelocity: uVel,
			VVelocity: vVel,
		},
		Elements:     elementsJSON{Count: len(triangles), Triangles: triangles},
		Constituents: m.Names,
	}

	body, err := json.Marshal(resp)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("content-type", "application/json; charset=utf-8")
	_, _ = w.Write(body)

	if cacheKey != "" && len(body) <= maxCachedBody {
		h.Redis.Set(ctx, cacheKey, string(body), 24*time.Hour)
	}
	metrics.NodesReturned.Observe(float64(res.NumNodes()))
	metrics.TrianglesReturned.Observe(float64(len(triangles)))
	metrics.RequestDurationMs.Observe(float64(time.Since(start).Milliseconds()))
	h.recordStats(ctx, box, res.NumNodes(), len(triangles), time.Since(start))
	logger.L().Debug("mesh_query_done",
		"nodes", res.NumNodes(),
		"triangles", len(triangles),
		"duration_ms", time.Since(start).Milliseconds(),
	)
}

func (h *handlers) handleInfo(w http.ResponseWriter, r *http.Request) {
	if err := h.ensureLoaded(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("content-type", "application/json; charset=utf-8")
	_ = json.NewEncoder(w).Encode(h.Store.Info())
}

func (h *handlers) handleStats(w http.ResponseWriter, r *http.Request) {
	m := map[string]any{"total": int64(0), "today": int64(0)}
	if h.Stats != nil {
		if t, err := h.Stats.GetTotals(r.Context()); err == nil {
			m["total"] = t.Total
			m["today"] = t.Today
		}
	}
	// recent_hours asks for the recently queried boxes, used to pick chunk
	// prefetch and cache warm-up candidates.
	if s := r.URL.Query().Get("recent_hours"); s != "" {
		hours, err := strconv.Atoi(s)
		if err != nil || hours <= 0 {
			writeError(w, fmt.Errorf("%w: recent_hours=%q", query.ErrInvalidParameter, s))
			return
		}
		boxes := []bboxJSON{}
		if h.Stats != nil {
			if recent, err := h.Stats.RecentBoxes(r.Context(), hours, 100); err == nil {
				for _, b := range recent {
					boxes = append(boxes, bboxJSON{
						MinLat: b.MinLat, MaxLat: b.MaxLat,
						MinLon: b.MinLon, MaxLon: b.MaxLon,
					})
				}
			}
		}
		m["recent_boxes"] = boxes
	}
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	_ = json.NewEncoder(w).Encode(m)
}

func (h *handlers) recordStats(ctx context.Context, b query.BBox, nodes, triangles int, dur time.Duration) {
	if h.Stats == nil {
		return
	}
	_ = h.Stats.IncrQuery(ctx)
	if nodes >= 0 {
		_ = h.Stats.RecordQuery(ctx, b, nodes, triangles, dur.Milliseconds())
	}
}

func parseBBox(r *http.Request) (query.BBox, error) {
	q := r.URL.Query()
	vals := make(map[string]float64, 4)
	for _, name := range []string{"min_lat", "max_lat", "min_lon", "max_lon"} {
		s := q.Get(name)
		if s == "" {
			return query.BBox{}, fmt.Errorf("%w: missing %s", query.ErrInvalidParameter, name)
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return query.BBox{}, fmt.Errorf("%w: %s=%q", query.ErrInvalidParameter, name, s)
		}
		vals[name] = v
	}
	return query.NewBBox(vals["min_lat"], vals["max_lat"], vals["min_lon"], vals["max_lon"])
}

// parseInstant accepts ISO-8601; a missing offset means UTC and a missing
// value means now.
func parseInstant(s string) (time.Time, error) {
	if s == "" {
		return time.Now().UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.ParseInLocation("2006-01-02T15:04:05", s, time.UTC); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: invalid time %q, use ISO 8601 (e.g. 2026-02-05T12:00:00Z)",
		query.ErrInvalidParameter, s)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var tooLarge *query.TooLargeError
	switch {
	case errors.Is(err, query.ErrInvalidParameter):
		status = http.StatusBadRequest
	case errors.Is(err, query.ErrEmptyResult):
		status = http.StatusNotFound
		metrics.EmptyResultsTotal.Inc()
	case errors.As(err, &tooLarge):
		status = http.StatusBadRequest
		metrics.TooLargeResultsTotal.Inc()
	case errors.Is(err, chunkstore.ErrStorageUnavailable):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		logger.L().Error("request_error", "err", err)
	}
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": err.Error()})
}
