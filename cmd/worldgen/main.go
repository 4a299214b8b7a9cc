package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
	"strings"

	"cityforge.ai/internal/persistence/snapshot"
	"cityforge.ai/internal/sim/catalogs"
	"cityforge.ai/internal/sim/tuning"
	"cityforge.ai/internal/sim/world"
)

func main() {
	var (
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", -1, "world seed override (-1 uses tuning, 0 picks a random seed)")
		configDir  = flag.String("configs", "./configs", "config directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		out        = flag.String("out", "", "output snapshot path (default: ./data/worlds/<world>/exports/0.snap.zst)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[worldgen] ", log.LstdFlags|log.Lmicroseconds)

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

	path, snap, err := generate(*worldID, *seed, tune, cats, *out)
	if err != nil {
		logger.Fatalf("generate: %v", err)
	}
	logger.Printf("wrote %s (seed=%d chunks=%d cells=%d)", path, snap.Seed, len(snap.Chunks), len(snap.GridCells))
}

func generate(worldID string, seed int64, tune tuning.Tuning, cats *catalogs.Catalogs, out string) (string, snapshot.SnapshotV1, error) {
	cfg := world.ConfigFromTuning(worldID, tune)
	if seed >= 0 {
		cfg.Seed = seed
	}
	w, err := world.New(cfg, cats, log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds))
	if err != nil {
		return "", snapshot.SnapshotV1{}, err
	}
	snap := w.Snapshot()
	if out == "" {
		out = filepath.Join("data", "worlds", worldID, "exports", "0.snap.zst")
	}
	if err := snapshot.WriteSnapshot(out, snap); err != nil {
		return "", snapshot.SnapshotV1{}, err
	}
	return out, snap, nil
}
