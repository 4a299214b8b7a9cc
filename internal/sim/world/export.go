package world

import (
	"context"
	"errors"

	"cityforge.ai/internal/persistence/snapshot"
	"cityforge.ai/internal/sim/world/terrain/store"
)

type exportReq struct {
	Resp chan snapshot.SnapshotV1
}

// RequestExport asks the world loop goroutine for a snapshot of the world.
// It is safe to call from other goroutines (e.g. HTTP handlers).
func (w *World) RequestExport(ctx context.Context) (snapshot.SnapshotV1, error) {
	if w == nil || w.export == nil {
		return snapshot.SnapshotV1{}, errors.New("export not available")
	}
	resp := make(chan snapshot.SnapshotV1, 1)
	select {
	case w.export <- exportReq{Resp: resp}:
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
	select {
	case snap := <-resp:
		return snap, nil
	case <-ctx.Done():
		return snapshot.SnapshotV1{}, ctx.Err()
	}
}

// Snapshot exports generation parameters, chunk meshes, the grid and
// committed placements. Stats are not part of the export.
func (w *World) Snapshot() snapshot.SnapshotV1 {
	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    w.tick.Load(),
		},
		Seed:        w.cfg.Seed,
		WorldWidth:  w.cfg.WorldWidth,
		WorldHeight: w.cfg.WorldHeight,
		VoxelSize:   w.cfg.VoxelSize,
		NoiseScale:  w.cfg.NoiseScale,
		Threshold:   w.cfg.Threshold,
		ChunkSize:   w.cfg.ChunkSize,
		CellSize:    w.cfg.CellSize,
		Chunks:      store.ExportChunks(w.chunks.Chunks, w.chunks.Keys()),
	}
	for _, k := range w.grid.Keys() {
		snap.GridCells = append(snap.GridCells, snapshot.GridCellV1{GX: k.GX, GZ: k.GZ})
	}
	for _, p := range w.placements {
		snap.Placements = append(snap.Placements, snapshot.PlacementV1{
			ID:         p.ID,
			BuildingID: p.BuildingID,
			Pos:        [3]float64{p.Position.X(), p.Position.Y(), p.Position.Z()},
			Rotation:   p.Rotation,
			Footprint:  [2]int{p.Footprint.W, p.Footprint.H},
			Tick:       p.Tick,
		})
	}
	return snap
}
