// Package grid is the placement grid: fixed-size square cells laid over the
// terrain, materialized only where the terrain underneath is entirely land.
package grid

import (
	"sort"

	"github.com/go-gl/mathgl/mgl64"

	"cityforge.ai/internal/sim/world/logic/mathx"
)

// Key is the canonical integer coordinate of a cell.
type Key struct {
	GX int
	GZ int
}

type Cell struct {
	Key    Key
	Center mgl64.Vec3
}

// Footprint is a building's extent in cells.
type Footprint struct {
	W int
	H int
}

type Config struct {
	WorldWidth   int // voxels
	WorldHeight  int // voxels
	VoxelSize    float64
	CellSize     float64
	MarkerHeight float64 // y of cell centers and snapped positions
}

// LandClassifier is satisfied by gen.NoiseField.
type LandClassifier interface {
	Classify(worldX, worldZ float64) bool
}

// Grid is read-only after Build and safe for concurrent readers.
type Grid struct {
	cfg   Config
	cells map[Key]Cell
}

// Build materializes every cell whose four corners all classify as land.
func Build(cfg Config, field LandClassifier) *Grid {
	g := &Grid{cfg: cfg, cells: map[Key]Cell{}}
	if cfg.CellSize <= 0 {
		return g
	}

	nx, nz := g.CellCounts()
	half := cfg.CellSize / 2
	for gx := 0; gx < nx; gx++ {
		for gz := 0; gz < nz; gz++ {
			k := Key{GX: gx, GZ: gz}
			c := g.center(k)
			if !field.Classify(c.X()-half, c.Z()-half) ||
				!field.Classify(c.X()+half, c.Z()-half) ||
				!field.Classify(c.X()+half, c.Z()+half) ||
				!field.Classify(c.X()-half, c.Z()+half) {
				continue
			}
			g.cells[k] = Cell{Key: k, Center: c}
		}
	}
	return g
}

func (g *Grid) Config() Config { return g.cfg }

// CellCounts is the number of candidate cells along X and Z.
func (g *Grid) CellCounts() (nx, nz int) {
	if g.cfg.CellSize <= 0 {
		return 0, 0
	}
	nx = mathx.FloorCell(float64(g.cfg.WorldWidth)*g.cfg.VoxelSize, g.cfg.CellSize)
	nz = mathx.FloorCell(float64(g.cfg.WorldHeight)*g.cfg.VoxelSize, g.cfg.CellSize)
	return nx, nz
}

func (g *Grid) center(k Key) mgl64.Vec3 {
	cs := g.cfg.CellSize
	return mgl64.Vec3{float64(k.GX)*cs + cs/2, g.cfg.MarkerHeight, float64(k.GZ)*cs + cs/2}
}

// KeyOf canonicalizes a world position to the key of the cell containing it.
func (g *Grid) KeyOf(pos mgl64.Vec3) Key {
	return Key{
		GX: mathx.FloorCell(pos.X(), g.cfg.CellSize),
		GZ: mathx.FloorCell(pos.Z(), g.cfg.CellSize),
	}
}

// CellAt returns the materialized cell containing pos. A missing cell is a
// normal result: the position is water or outside the generated extent.
func (g *Grid) CellAt(pos mgl64.Vec3) (Cell, bool) {
	if g.cfg.CellSize <= 0 {
		return Cell{}, false
	}
	c, ok := g.cells[g.KeyOf(pos)]
	return c, ok
}

// Snap returns the center of a footprint block whose lower corner is the
// lower corner of the cell containing hit.
func (g *Grid) Snap(hit mgl64.Vec3, fp Footprint) mgl64.Vec3 {
	cs := g.cfg.CellSize
	k := g.KeyOf(hit)
	x := float64(k.GX)*cs + float64(fp.W)*cs/2
	z := float64(k.GZ)*cs + float64(fp.H)*cs/2
	return mgl64.Vec3{x, g.cfg.MarkerHeight, z}
}

// FootprintValid reports whether every cell of the w×h block centred on
// center is materialized.
func (g *Grid) FootprintValid(center mgl64.Vec3, fp Footprint) bool {
	if fp.W <= 0 || fp.H <= 0 || g.cfg.CellSize <= 0 {
		return false
	}
	cs := g.cfg.CellSize
	origin := center.Sub(mgl64.Vec3{float64(fp.W-1) * cs / 2, 0, float64(fp.H-1) * cs / 2})
	for x := 0; x < fp.W; x++ {
		for z := 0; z < fp.H; z++ {
			p := origin.Add(mgl64.Vec3{float64(x) * cs, 0, float64(z) * cs})
			if _, ok := g.CellAt(p); !ok {
				return false
			}
		}
	}
	return true
}

func (g *Grid) Len() int { return len(g.cells) }

func (g *Grid) Keys() []Key {
	keys := make([]Key, 0, len(g.cells))
	for k := range g.cells {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].GX != keys[j].GX {
			return keys[i].GX < keys[j].GX
		}
		return keys[i].GZ < keys[j].GZ
	})
	return keys
}

// FromKeys rebuilds a grid from previously materialized keys.
func FromKeys(cfg Config, keys []Key) *Grid {
	g := &Grid{cfg: cfg, cells: make(map[Key]Cell, len(keys))}
	for _, k := range keys {
		g.cells[k] = Cell{Key: k, Center: g.center(k)}
	}
	return g
}
