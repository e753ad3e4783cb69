package store

import (
	"context"
	"database/sql"

	"currents-api/internal/logger"
	"currents-api/internal/query"

	_ "github.com/lib/pq"
)

// Stats is the optional Postgres-backed usage log: query totals plus the
// recent bounding boxes, kept for capacity planning and cache warm-up
// candidates. It never sits on the request's critical path; every write is
// best-effort.
type Stats struct {
	db *sql.DB
}

// AttachDB wraps an existing connection pool.
func AttachDB(db *sql.DB) *Stats { return &Stats{db: db} }

// Close closes the underlying pool.
func (s *Stats) Close() error { return s.db.Close() }

// IncrQuery bumps the total and per-day counters after a served query.
func (s *Stats) IncrQuery(ctx context.Context) error {
	_, _ = s.db.ExecContext(ctx, "UPDATE _mesh_stats_total SET total_queries=total_queries+1 WHERE id=1")
	_, _ = s.db.ExecContext(ctx, "INSERT INTO _mesh_stats_daily(day, queries) VALUES(current_date, 1) ON CONFLICT (day) DO UPDATE SET queries=_mesh_stats_daily.queries+1")
	logger.L().Debug("stats_incr")
	return nil
}

// RecordQuery logs a served bounding box with its result size and duration.
func (s *Stats) RecordQuery(ctx context.Context, b query.BBox, nodes, triangles int, durMs int64) error {
	_, _ = s.db.ExecContext(ctx, `INSERT INTO _mesh_recent_queries(min_lat, max_lat, min_lon, max_lon, nodes, triangles, duration_ms)
        VALUES($1,$2,$3,$4,$5,$6,$7)`,
		b.MinLat, b.MaxLat, b.MinLon, b.MaxLon, nodes, triangles, durMs)
	return nil
}

// Totals is the stats read model returned by the API.
type Totals struct {
	Total int64
	Today int64
}

// GetTotals reads cumulative and today's query counts.
func (s *Stats) GetTotals(ctx context.Context) (*Totals, error) {
	var t Totals
	row := s.db.QueryRowContext(ctx, "SELECT total_queries FROM _mesh_stats_total WHERE id=1")
	_ = row.Scan(&t.Total)
	row2 := s.db.QueryRowContext(ctx, "SELECT queries FROM _mesh_stats_daily WHERE day=current_date")
	_ = row2.Scan(&t.Today)
	logger.L().Debug("stats_totals", "total", t.Total, "today", t.Today)
	return &t, nil
}

// RecentBoxes returns the most recent query boxes inside a window, newest
// first. Used offline to pick chunk prefetch candidates.
func (s *Stats) RecentBoxes(ctx context.Context, hours, limit int) ([]query.BBox, error) {
	if hours <= 0 {
		hours = 24
	}
	if limit <= 0 {
		limit = 1000
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT min_lat, max_lat, min_lon, max_lon
        FROM _mesh_recent_queries
        WHERE created_at >= now() - make_interval(hours => $1)
        ORDER BY created_at DESC
        LIMIT $2`, hours, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []query.BBox
	for rows.Next() {
		var b query.BBox
		if err := rows.Scan(&b.MinLat, &b.MaxLat, &b.MinLon, &b.MaxLon); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
