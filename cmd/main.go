// Server entrypoint: reads configuration, wires dependencies and starts the
// HTTP listener; route registration lives in internal/api so it can grow
// without touching this file.
package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"currents-api/internal/api"
	"currents-api/internal/logger"
	"currents-api/internal/metrics"
	"currents-api/internal/middleware"
	"currents-api/internal/migrate"
	"currents-api/internal/store"
	"currents-api/internal/tide"
	"currents-api/internal/utils"
	"currents-api/internal/version"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")

	apiBase := os.Getenv("API_BASE")
	if apiBase == "" {
		apiBase = "/api/v1"
	}
	l.Debug("config_api_base", "base", apiBase)

	bucketURL := store.BucketURLFromEnv()
	if bucketURL == "" {
		l.Error("mesh_bucket_missing", "hint", "set MESH_BUCKET_URL or DATA_SOURCE=LOCAL with LOCAL_MESH_PATH")
		os.Exit(1)
	}
	l.Info("config_mesh_bucket", "url", bucketURL)
	st := store.New(bucketURL)

	// Lazy by default: the first request triggers the one guarded load.
	// PRELOAD_MESH=true pays the cost at startup instead.
	if os.Getenv("PRELOAD_MESH") == "true" {
		if err := st.Load(context.Background()); err != nil {
			l.Error("mesh_preload_error", "err", err)
			os.Exit(1)
		}
	}

	rc := utils.OpenRedisFromEnv()
	if rc == nil {
		l.Info("redis_disabled")
	} else {
		if err := rc.Ping(context.Background()).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	// Query statistics are optional; skipped entirely without PG_HOST.
	var stats *store.Stats
	if os.Getenv("PG_HOST") != "" {
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Ping(); err != nil {
			l.Error("db_ping_error", "err", err)
		} else {
			l.Info("db_ping_ok")
		}
		if err := migrate.EnsureSchema(db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		stats = store.AttachDB(db)
	} else {
		l.Info("stats_disabled")
	}

	maxNodes := 0
	if s := os.Getenv("MAX_NODES_PER_REQUEST"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			maxNodes = n
		}
	}
	nodalLat := 55.0
	if s := os.Getenv("NODAL_LATITUDE"); s != "" {
		if v, err := strconv.ParseFloat(s, 64); err == nil {
			nodalLat = v
		}
	}

	mux := http.NewServeMux()
	apiMux := api.BuildRoutes(api.Options{
		Store:     st,
		Redis:     rc,
		Stats:     stats,
		Corrector: tide.Astronomical{},
		MaxNodes:  maxNodes,
		NodalLat:  nodalLat,
	})
	mux.Handle(apiBase+"/", http.StripPrefix(apiBase, apiMux))
	mux.Handle(apiBase+"/metrics", metrics.Handler())

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/json; charset=utf-8")
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	})

	// Frontend static files plus the API base handed to the frontend at
	// runtime, so nothing is hardcoded in the bundle.
	ui := os.Getenv("UI_DIST")
	if ui == "" {
		ui = filepath.Join("ui", "dist")
	}
	l.Debug("config_ui_dir", "dir", ui)
	mux.Handle("/", http.FileServer(http.Dir(ui)))
	mux.HandleFunc("/config.js", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("content-type", "application/javascript; charset=utf-8")
		w.Header().Set("cache-control", "no-store")
		_, _ = w.Write([]byte("window.__API_BASE__='" + apiBase + "'"))
		_, _ = w.Write([]byte("\n"))
		_, _ = w.Write([]byte("window.__COMMIT_SHA__='" + version.Commit + "'"))
	})

	addr := os.Getenv("ADDR")
	if addr == "" {
		addr = ":8080"
	}
	handler := logger.AccessMiddleware(l)(mux)
	handler = middleware.Wrap(handler)
	s := &http.Server{Addr: addr, Handler: handler}
	l.Info("listening", "addr", addr)
	if err := s.ListenAndServe(); err != nil {
		l.Error("listen_error", "err", err)
		os.Exit(1)
	}
}
