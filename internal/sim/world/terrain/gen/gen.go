package gen

import (
	opensimplex "github.com/ojrac/opensimplex-go"

	"cityforge.ai/internal/sim/world/logic/mathx"
)

// Source is a 2D coherent noise function returning values in [0,1).
type Source interface {
	Eval2(x, y float64) float64
}

// Params are the inputs shared by terrain meshing and grid building. Both must
// be built from the same Params to agree on land and water.
type Params struct {
	Seed      int64
	Scale     float64
	Threshold float64
	VoxelSize float64
}

// NoiseField classifies voxels as land or water. It holds no mutable state.
type NoiseField struct {
	p   Params
	src Source
}

// SimplexFrequency is applied to OpenSimplex inputs on top of Scale. At
// frequency 1 its features are narrower than one 0.8 grid cell at the default
// scale, and the 4-corner rule leaves almost no buildable land.
const SimplexFrequency = 0.25

// New returns a field backed by normalized OpenSimplex noise. The seed is
// applied as a coordinate offset, so the noise source itself is fixed.
func New(p Params) *NoiseField {
	return NewWithSource(p, scaledSource{src: opensimplex.NewNormalized(0), freq: SimplexFrequency})
}

type scaledSource struct {
	src  Source
	freq float64
}

func (s scaledSource) Eval2(x, y float64) float64 { return s.src.Eval2(x*s.freq, y*s.freq) }

func NewWithSource(p Params, src Source) *NoiseField {
	if p.Scale == 0 {
		p.Scale = 1
	}
	if p.VoxelSize <= 0 {
		p.VoxelSize = 1
	}
	return &NoiseField{p: p, src: src}
}

func (f *NoiseField) Params() Params { return f.p }

// Sample returns the raw noise value for a voxel.
func (f *NoiseField) Sample(cellX, cellZ int) float64 {
	seed := float64(f.p.Seed)
	return f.src.Eval2((float64(cellX)+seed)/f.p.Scale, (float64(cellZ)+seed)/f.p.Scale)
}

func (f *NoiseField) ClassifyCell(cellX, cellZ int) bool {
	return f.Sample(cellX, cellZ) > f.p.Threshold
}

// Classify maps a world position to its voxel and classifies it.
func (f *NoiseField) Classify(worldX, worldZ float64) bool {
	return f.ClassifyCell(f.VoxelOf(worldX), f.VoxelOf(worldZ))
}

func (f *NoiseField) VoxelOf(world float64) int {
	return mathx.FloorCell(world, f.p.VoxelSize)
}
