package store

import (
	"crypto/sha256"
	"encoding/binary"
	"math"

	"cityforge.ai/internal/sim/world/terrain/mesh"
)

type ChunkKey struct {
	CX int
	CZ int
}

type Chunk struct {
	CX, CZ int
	Mesh   mesh.ChunkMesh

	hash [32]byte
}

// Digest hashes the vertex, color and index buffers. Chunks are immutable
// after generation, so the hash is computed once.
func (c *Chunk) Digest() [32]byte {
	if c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [4]byte
		putF := func(f float32) {
			binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(f))
			h.Write(tmp[:])
		}
		putU := func(u uint32) {
			binary.LittleEndian.PutUint32(tmp[:], u)
			h.Write(tmp[:])
		}
		for _, v := range c.Mesh.Vertices {
			putF(v[0])
			putF(v[1])
			putF(v[2])
		}
		for _, col := range c.Mesh.Colors {
			putF(col[0])
			putF(col[1])
			putF(col[2])
			putF(col[3])
		}
		putU(uint32(len(c.Mesh.LandIndices)))
		for _, i := range c.Mesh.LandIndices {
			putU(i)
		}
		putU(uint32(len(c.Mesh.WaterIndices)))
		for _, i := range c.Mesh.WaterIndices {
			putU(i)
		}
		copy(c.hash[:], h.Sum(nil))
	}
	return c.hash
}

type WorldGen struct {
	WorldWidth  int // voxels
	WorldHeight int // voxels
	ChunkSize   int // voxels per side
	VoxelSize   float64
}

type ChunkStore struct {
	Gen    WorldGen
	Chunks map[ChunkKey]*Chunk
}

func NewChunkStore(gen WorldGen) *ChunkStore {
	return &ChunkStore{
		Gen:    gen,
		Chunks: map[ChunkKey]*Chunk{},
	}
}
