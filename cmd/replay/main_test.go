package main

import (
	"io"
	"log"
	"path/filepath"
	"strings"
	"testing"

	persistlog "cityforge.ai/internal/persistence/log"
	"cityforge.ai/internal/persistence/snapshot"
	"cityforge.ai/internal/sim/world"
)

func testSnapshot(t *testing.T) snapshot.SnapshotV1 {
	t.Helper()
	w, err := world.New(world.WorldConfig{
		ID:          "replay",
		Seed:        99,
		WorldWidth:  40,
		WorldHeight: 40,
		VoxelSize:   0.25,
		NoiseScale:  0.1,
		Threshold:   0.5,
		ChunkSize:   16,
		CellSize:    1,
	}, nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}
	return w.Snapshot()
}

func TestVerifyTerrain(t *testing.T) {
	snap := testSnapshot(t)
	if err := verifyTerrain(snap); err != nil {
		t.Fatalf("verifyTerrain: %v", err)
	}

	snap.Chunks[0].Digest = strings.Repeat("0", 64)
	if err := verifyTerrain(snap); err == nil || !strings.Contains(err.Error(), "digest mismatch") {
		t.Fatalf("expected digest mismatch, got %v", err)
	}
}

func TestVerifyPlacements(t *testing.T) {
	snap := testSnapshot(t)
	snap.Header.Tick = 10
	snap.Placements = []snapshot.PlacementV1{
		{ID: "p1", BuildingID: "house", Pos: [3]float64{1, 0.1, 1}, Rotation: 0, Footprint: [2]int{2, 2}, Tick: 4},
	}

	worldDir := t.TempDir()
	pl := persistlog.NewPlacementLogger(worldDir)
	_ = pl.WritePlacement(world.PlacementLogEntry{Tick: 4, WorldID: "replay", ID: "p1", BuildingID: "house", Pos: [3]float64{1, 0.1, 1}})
	// Past the snapshot tick: ignored.
	_ = pl.WritePlacement(world.PlacementLogEntry{Tick: 12, WorldID: "replay", ID: "p2", BuildingID: "well"})
	if err := pl.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	dir := filepath.Join(worldDir, "placements")
	checked, err := verifyPlacements(dir, snap)
	if err != nil {
		t.Fatalf("verifyPlacements: %v", err)
	}
	if checked != 1 {
		t.Fatalf("checked=%d want 1", checked)
	}

	snap.Placements = nil
	if _, err := verifyPlacements(dir, snap); err == nil {
		t.Fatalf("expected missing placement error")
	}
	if _, err := verifyPlacements(t.TempDir(), snap); err == nil {
		t.Fatalf("expected error for empty dir")
	}
}
