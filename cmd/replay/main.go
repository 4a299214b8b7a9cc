package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/klauspost/compress/zstd"

	"cityforge.ai/internal/persistence/snapshot"
	"cityforge.ai/internal/sim/world"
)

func main() {
	var (
		snapPath      = flag.String("snapshot", "", "path to .snap.zst")
		placementsDir = flag.String("placements", "", "dir containing placements-*.jsonl.zst (optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot v%d world=%s tick=%d seed=%d size=%dx%d chunks=%d cells=%d placements=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seed, snap.WorldWidth, snap.WorldHeight,
		len(snap.Chunks), len(snap.GridCells), len(snap.Placements))

	if err := verifyTerrain(snap); err != nil {
		fmt.Fprintln(os.Stderr, "verify terrain:", err)
		os.Exit(1)
	}
	fmt.Println("terrain ok: regenerated chunks and grid match the snapshot")

	if *placementsDir == "" {
		return
	}
	checked, err := verifyPlacements(*placementsDir, snap)
	if err != nil {
		fmt.Fprintln(os.Stderr, "verify placements:", err)
		os.Exit(1)
	}
	fmt.Printf("placements ok: checked=%d\n", checked)
}

// verifyTerrain regenerates the world from the snapshot's seed and
// parameters and compares chunk digests and grid cells.
func verifyTerrain(snap snapshot.SnapshotV1) error {
	w, err := world.New(world.WorldConfig{
		ID:          snap.Header.WorldID,
		Seed:        snap.Seed,
		WorldWidth:  snap.WorldWidth,
		WorldHeight: snap.WorldHeight,
		VoxelSize:   snap.VoxelSize,
		NoiseScale:  snap.NoiseScale,
		Threshold:   snap.Threshold,
		ChunkSize:   snap.ChunkSize,
		CellSize:    snap.CellSize,
	}, nil, log.New(io.Discard, "", 0))
	if err != nil {
		return err
	}
	regen := w.Snapshot()
	if len(regen.Chunks) != len(snap.Chunks) {
		return fmt.Errorf("chunk count: snapshot=%d regenerated=%d", len(snap.Chunks), len(regen.Chunks))
	}
	for i := range snap.Chunks {
		a, b := snap.Chunks[i], regen.Chunks[i]
		if a.CX != b.CX || a.CZ != b.CZ {
			return fmt.Errorf("chunk order: snapshot=%d,%d regenerated=%d,%d", a.CX, a.CZ, b.CX, b.CZ)
		}
		if a.Digest != b.Digest {
			return fmt.Errorf("chunk %d,%d digest mismatch: snapshot=%s regenerated=%s", a.CX, a.CZ, a.Digest, b.Digest)
		}
	}
	if len(regen.GridCells) != len(snap.GridCells) {
		return fmt.Errorf("grid cells: snapshot=%d regenerated=%d", len(snap.GridCells), len(regen.GridCells))
	}
	for i := range snap.GridCells {
		if snap.GridCells[i] != regen.GridCells[i] {
			return fmt.Errorf("grid cell %d: snapshot=%+v regenerated=%+v", i, snap.GridCells[i], regen.GridCells[i])
		}
	}
	return nil
}

// verifyPlacements checks that every logged placement up to the snapshot
// tick is present in the snapshot with the same building and position.
func verifyPlacements(dir string, snap snapshot.SnapshotV1) (int, error) {
	files, err := listPlacementFiles(dir)
	if err != nil {
		return 0, err
	}
	if len(files) == 0 {
		return 0, fmt.Errorf("no placement logs found in %s", dir)
	}
	byID := make(map[string]snapshot.PlacementV1, len(snap.Placements))
	for _, p := range snap.Placements {
		byID[p.ID] = p
	}
	checked := 0
	for _, path := range files {
		err := scanFile(path, func(entry world.PlacementLogEntry) error {
			if entry.Tick > snap.Header.Tick {
				return nil
			}
			p, ok := byID[entry.ID]
			if !ok {
				return fmt.Errorf("placement %s (tick %d) missing from snapshot", entry.ID, entry.Tick)
			}
			if p.BuildingID != entry.BuildingID || p.Pos != entry.Pos || p.Rotation != entry.Rotation {
				return fmt.Errorf("placement %s differs: log=%s@%v/%d snapshot=%s@%v/%d",
					entry.ID, entry.BuildingID, entry.Pos, entry.Rotation, p.BuildingID, p.Pos, p.Rotation)
			}
			checked++
			return nil
		})
		if err != nil {
			return checked, err
		}
	}
	return checked, nil
}

func listPlacementFiles(dir string) ([]string, error) {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, "placements-") && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, filepath.Join(dir, name))
	}
	return out, nil
}

func scanFile(path string, fn func(world.PlacementLogEntry) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 64*1024), 8*1024*1024)
	for sc.Scan() {
		var entry world.PlacementLogEntry
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			return fmt.Errorf("%s: unmarshal: %w", filepath.Base(path), err)
		}
		if err := fn(entry); err != nil {
			return err
		}
	}
	return sc.Err()
}
