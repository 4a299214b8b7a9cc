package store

import (
	"sort"

	"cityforge.ai/internal/sim/world/logic/mathx"
	"cityforge.ai/internal/sim/world/terrain/mesh"
)

// GenerateAll meshes every chunk covering the world once. There is no
// streaming or unloading; the store is read-only afterwards.
func (s *ChunkStore) GenerateAll(field mesh.Classifier) {
	nx, nz := s.ChunkCounts()
	for cx := 0; cx < nx; cx++ {
		for cz := 0; cz < nz; cz++ {
			s.GenerateChunk(cx, cz, field)
		}
	}
}

func (s *ChunkStore) GenerateChunk(cx, cz int, field mesh.Classifier) *Chunk {
	ch := &Chunk{
		CX:   cx,
		CZ:   cz,
		Mesh: mesh.Generate(cx, cz, s.Gen.ChunkSize, float32(s.Gen.VoxelSize), field),
	}
	_ = ch.Digest()
	s.Chunks[ChunkKey{CX: cx, CZ: cz}] = ch
	return ch
}

func (s *ChunkStore) ChunkCounts() (nx, nz int) {
	if s.Gen.ChunkSize <= 0 {
		return 0, 0
	}
	return mathx.CeilDiv(s.Gen.WorldWidth, s.Gen.ChunkSize), mathx.CeilDiv(s.Gen.WorldHeight, s.Gen.ChunkSize)
}

func (s *ChunkStore) Get(cx, cz int) (*Chunk, bool) {
	ch, ok := s.Chunks[ChunkKey{CX: cx, CZ: cz}]
	return ch, ok
}

// Origin returns the world-space position of a chunk's local (0,0,0).
func (s *ChunkStore) Origin(k ChunkKey) [3]float64 {
	span := float64(s.Gen.ChunkSize) * s.Gen.VoxelSize
	return [3]float64{float64(k.CX) * span, 0, float64(k.CZ) * span}
}

func (s *ChunkStore) Keys() []ChunkKey {
	keys := make([]ChunkKey, 0, len(s.Chunks))
	for k := range s.Chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].CX != keys[j].CX {
			return keys[i].CX < keys[j].CX
		}
		return keys[i].CZ < keys[j].CZ
	})
	return keys
}

// Counts reports land and water top faces across all chunks.
func (s *ChunkStore) Counts() (land, water int) {
	n := s.Gen.ChunkSize * s.Gen.ChunkSize
	for _, ch := range s.Chunks {
		w := len(ch.Mesh.WaterIndices) / 6
		water += w
		land += n - w
	}
	return land, water
}
