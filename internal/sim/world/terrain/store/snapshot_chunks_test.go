package store

import (
	"testing"

	snapv1 "cityforge.ai/internal/persistence/snapshot"
	"cityforge.ai/internal/sim/world/terrain/gen"
)

func testField() *gen.NoiseField {
	return gen.New(gen.Params{Seed: 4242, Scale: 10, Threshold: 0.5, VoxelSize: 0.1})
}

func TestGenerateAll_CoversWorldWithCeilChunks(t *testing.T) {
	s := NewChunkStore(WorldGen{WorldWidth: 40, WorldHeight: 17, ChunkSize: 16, VoxelSize: 0.1})
	s.GenerateAll(testField())
	nx, nz := s.ChunkCounts()
	if nx != 3 || nz != 2 {
		t.Fatalf("chunk counts=%d,%d want 3,2", nx, nz)
	}
	if len(s.Chunks) != 6 {
		t.Fatalf("chunks=%d want 6", len(s.Chunks))
	}
	keys := s.Keys()
	if keys[0] != (ChunkKey{CX: 0, CZ: 0}) || keys[len(keys)-1] != (ChunkKey{CX: 2, CZ: 1}) {
		t.Fatalf("unexpected key order: %v", keys)
	}
	land, water := s.Counts()
	if land+water != 6*16*16 {
		t.Fatalf("land+water=%d want %d", land+water, 6*16*16)
	}
	if o := s.Origin(ChunkKey{CX: 2, CZ: 1}); o[0] < 3.19 || o[0] > 3.21 || o[2] < 1.59 || o[2] > 1.61 {
		t.Fatalf("origin=%v want ~(3.2,0,1.6)", o)
	}
}

func TestGenerateChunk_Deterministic(t *testing.T) {
	gen := WorldGen{WorldWidth: 32, WorldHeight: 32, ChunkSize: 16, VoxelSize: 0.1}
	a := NewChunkStore(gen)
	b := NewChunkStore(gen)
	a.GenerateAll(testField())
	b.GenerateAll(testField())
	for _, k := range a.Keys() {
		ca, _ := a.Get(k.CX, k.CZ)
		cb, ok := b.Get(k.CX, k.CZ)
		if !ok {
			t.Fatalf("missing chunk %v", k)
		}
		if ca.Digest() != cb.Digest() {
			t.Fatalf("chunk %v digest differs between runs", k)
		}
	}
}

func TestExportAndImportChunksRoundTrip(t *testing.T) {
	gen := WorldGen{WorldWidth: 16, WorldHeight: 32, ChunkSize: 16, VoxelSize: 0.1}
	s := NewChunkStore(gen)
	s.GenerateAll(testField())

	exported := ExportChunks(s.Chunks, s.Keys())
	if len(exported) != 2 {
		t.Fatalf("expected 2 exported chunks, got %d", len(exported))
	}
	if exported[0].Digest == "" {
		t.Fatalf("expected exported digest")
	}

	imported, err := ImportChunks(gen, exported)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	for _, k := range s.Keys() {
		orig, _ := s.Get(k.CX, k.CZ)
		got, ok := imported.Get(k.CX, k.CZ)
		if !ok {
			t.Fatalf("missing imported chunk %v", k)
		}
		if got.Digest() != orig.Digest() {
			t.Fatalf("chunk %v digest changed across export/import", k)
		}
	}
}

func TestImportChunksRejectsInvalidShape(t *testing.T) {
	gen := WorldGen{WorldWidth: 16, WorldHeight: 16, ChunkSize: 16, VoxelSize: 0.1}
	_, err := ImportChunks(gen, []snapv1.ChunkV1{{
		CX:       0,
		CZ:       0,
		Vertices: make([][3]float32, 4),
		UVs:      make([][2]float32, 3),
		Colors:   make([][4]float32, 4),
	}})
	if err == nil {
		t.Fatalf("expected error for mismatched buffers")
	}

	_, err = ImportChunks(gen, []snapv1.ChunkV1{{
		Vertices:    make([][3]float32, 4),
		UVs:         make([][2]float32, 4),
		Colors:      make([][4]float32, 4),
		LandIndices: []uint32{0, 2, 1, 0, 3, 9},
	}})
	if err == nil {
		t.Fatalf("expected error for out-of-range index")
	}
}

func TestImportChunksRejectsDigestMismatch(t *testing.T) {
	gen := WorldGen{WorldWidth: 16, WorldHeight: 16, ChunkSize: 16, VoxelSize: 0.1}
	s := NewChunkStore(gen)
	s.GenerateAll(testField())
	exported := ExportChunks(s.Chunks, s.Keys())
	exported[0].Vertices[0][1] += 1
	if _, err := ImportChunks(gen, exported); err == nil {
		t.Fatalf("expected digest mismatch error")
	}
}
