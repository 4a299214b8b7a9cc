package store

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	snapv1 "cityforge.ai/internal/persistence/snapshot"
	"cityforge.ai/internal/sim/world/terrain/mesh"
)

// ExportChunks converts chunk meshes into snapshot chunks in key order.
func ExportChunks(chunks map[ChunkKey]*Chunk, keys []ChunkKey) []snapv1.ChunkV1 {
	out := make([]snapv1.ChunkV1, 0, len(keys))
	for _, k := range keys {
		ch := chunks[k]
		if ch == nil {
			continue
		}
		m := ch.Mesh
		c := snapv1.ChunkV1{
			CX:           k.CX,
			CZ:           k.CZ,
			Vertices:     make([][3]float32, len(m.Vertices)),
			UVs:          make([][2]float32, len(m.UVs)),
			Colors:       make([][4]float32, len(m.Colors)),
			LandIndices:  append([]uint32(nil), m.LandIndices...),
			WaterIndices: append([]uint32(nil), m.WaterIndices...),
		}
		for i, v := range m.Vertices {
			c.Vertices[i] = v
		}
		for i, uv := range m.UVs {
			c.UVs[i] = uv
		}
		for i, col := range m.Colors {
			c.Colors[i] = col
		}
		d := ch.Digest()
		c.Digest = fmt.Sprintf("%x", d[:])
		out = append(out, c)
	}
	return out
}

// ImportChunks rebuilds a chunk store from snapshot chunks and verifies each
// digest against the rebuilt buffers.
func ImportChunks(gen WorldGen, chunks []snapv1.ChunkV1) (*ChunkStore, error) {
	store := NewChunkStore(gen)
	for _, sc := range chunks {
		if len(sc.UVs) != len(sc.Vertices) || len(sc.Colors) != len(sc.Vertices) {
			return nil, fmt.Errorf("snapshot chunk %d,%d buffer length mismatch: verts=%d uvs=%d colors=%d",
				sc.CX, sc.CZ, len(sc.Vertices), len(sc.UVs), len(sc.Colors))
		}
		m := mesh.ChunkMesh{
			Vertices:     make([]mgl32.Vec3, len(sc.Vertices)),
			UVs:          make([]mgl32.Vec2, len(sc.UVs)),
			Colors:       make([]mgl32.Vec4, len(sc.Colors)),
			LandIndices:  append([]uint32(nil), sc.LandIndices...),
			WaterIndices: append([]uint32(nil), sc.WaterIndices...),
		}
		for i, v := range sc.Vertices {
			m.Vertices[i] = v
		}
		for i, uv := range sc.UVs {
			m.UVs[i] = uv
		}
		for i, col := range sc.Colors {
			m.Colors[i] = col
		}
		for _, idx := range [][]uint32{m.LandIndices, m.WaterIndices} {
			for _, i := range idx {
				if int(i) >= len(m.Vertices) {
					return nil, fmt.Errorf("snapshot chunk %d,%d index %d out of range", sc.CX, sc.CZ, i)
				}
			}
		}
		c := &Chunk{CX: sc.CX, CZ: sc.CZ, Mesh: m}
		if sc.Digest != "" {
			d := c.Digest()
			if got := fmt.Sprintf("%x", d[:]); got != sc.Digest {
				return nil, fmt.Errorf("snapshot chunk %d,%d digest mismatch", sc.CX, sc.CZ)
			}
		}
		store.Chunks[ChunkKey{CX: sc.CX, CZ: sc.CZ}] = c
	}
	return store, nil
}
