package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"cityforge.ai/internal/persistence/indexdb"
	persistlog "cityforge.ai/internal/persistence/log"
	"cityforge.ai/internal/persistence/snapshot"
	"cityforge.ai/internal/sim/catalogs"
	"cityforge.ai/internal/sim/tuning"
	"cityforge.ai/internal/sim/world"
	"cityforge.ai/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", -1, "world seed override (-1 uses tuning, 0 picks a random seed)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable sqlite indexing (placements, catalogs, world exports)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}

	cats, err := catalogs.Load(*configDir)
	if err != nil {
		logger.Fatalf("load catalogs: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	var idx *indexdb.SQLiteIndex
	if !*disableDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(worldDir, "index.db"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, cats, tune); err != nil {
			logger.Printf("index catalogs: %v", err)
		}
	}

	cfg := world.ConfigFromTuning(*worldID, tune)
	if *seed >= 0 {
		cfg.Seed = *seed
	}
	w, err := world.New(cfg, cats, log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		logger.Fatalf("world: %v", err)
	}
	if idx != nil {
		idx.RecordWorld("", w.Snapshot())
	}

	placementLog := persistlog.NewPlacementLogger(worldDir)
	noticeLog := persistlog.NewNoticeLogger(worldDir)
	defer placementLog.Close()
	defer noticeLog.Close()
	if idx != nil {
		w.SetPlacementLogger(multiPlacementLogger{a: placementLog, b: idx})
	} else {
		w.SetPlacementLogger(placementLog)
	}
	w.SetNoticeLogger(noticeLog)

	ctx, cancel := signalContext()
	defer cancel()

	go func() {
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeMetrics(rw, *worldID, w.Metrics())
	})

	if envBool("CF_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP()) {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string             `json:"world_id"`
				Seed    int64              `json:"seed"`
				Tick    uint64             `json:"tick"`
				Metrics world.WorldMetrics `json:"metrics"`
			}{
				WorldID: *worldID,
				Seed:    w.Seed(),
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
		mux.HandleFunc("/admin/v1/export", func(rw http.ResponseWriter, r *http.Request) {
			if r.Method != http.MethodPost {
				rw.WriteHeader(http.StatusMethodNotAllowed)
				return
			}
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			ctx2, cancel2 := context.WithTimeout(r.Context(), 5*time.Second)
			defer cancel2()
			rw.Header().Set("Content-Type", "application/json")
			snap, err := w.RequestExport(ctx2)
			if err != nil {
				rw.WriteHeader(http.StatusServiceUnavailable)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			path := filepath.Join(worldDir, "exports", fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
			if err := snapshot.WriteSnapshot(path, snap); err != nil {
				logger.Printf("export write: %v", err)
				rw.WriteHeader(http.StatusInternalServerError)
				_ = json.NewEncoder(rw).Encode(map[string]any{"ok": false, "error": err.Error()})
				return
			}
			if idx != nil {
				idx.RecordWorld(path, snap)
			}
			_ = json.NewEncoder(rw).Encode(map[string]any{"ok": true, "tick": snap.Header.Tick, "path": path})
		})
	} else {
		logger.Printf("admin endpoints disabled (CF_ENABLE_ADMIN_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (world=%s seed=%d)", *addr, *worldID, w.Seed())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

func writeMetrics(rw http.ResponseWriter, worldID string, m world.WorldMetrics) {
	// Minimal Prometheus exposition format.
	gauge := func(name, help string, v any) {
		fmt.Fprintf(rw, "# HELP cityforge_world_%s %s\n", name, help)
		fmt.Fprintf(rw, "# TYPE cityforge_world_%s gauge\n", name)
		fmt.Fprintf(rw, "cityforge_world_%s{world=%q} %v\n", name, worldID, v)
	}
	gauge("tick", "Current world tick.", m.Tick)
	gauge("clients", "Current number of connected clients.", m.Clients)
	gauge("chunks", "Generated chunk count.", m.Chunks)
	gauge("grid_cells", "Materialized placement grid cells.", m.GridCells)
	gauge("placements", "Committed placements.", m.Placements)
	gauge("pulses", "Pulses emitted since start.", m.Pulses)
	gauge("step_ms", "Last tick step duration in milliseconds.", fmt.Sprintf("%.3f", m.StepMS))

	fmt.Fprintf(rw, "# HELP cityforge_world_cells Terrain cells by class.\n")
	fmt.Fprintf(rw, "# TYPE cityforge_world_cells gauge\n")
	fmt.Fprintf(rw, "cityforge_world_cells{world=%q,class=%q} %d\n", worldID, "land", m.LandCells)
	fmt.Fprintf(rw, "cityforge_world_cells{world=%q,class=%q} %d\n", worldID, "water", m.WaterCells)

	fmt.Fprintf(rw, "# HELP cityforge_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE cityforge_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "cityforge_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "cityforge_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "cityforge_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

	fmt.Fprintf(rw, "# HELP cityforge_world_session Placement session state (1 = current).\n")
	fmt.Fprintf(rw, "# TYPE cityforge_world_session gauge\n")
	fmt.Fprintf(rw, "cityforge_world_session{world=%q,state=%q} 1\n", worldID, m.Session)
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

type multiPlacementLogger struct {
	a world.PlacementLogger
	b world.PlacementLogger
}

func (m multiPlacementLogger) WritePlacement(entry world.PlacementLogEntry) error {
	if m.a != nil {
		_ = m.a.WritePlacement(entry)
	}
	if m.b != nil {
		_ = m.b.WritePlacement(entry)
	}
	return nil
}
