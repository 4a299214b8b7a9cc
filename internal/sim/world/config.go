package world

import (
	"math/rand"
	"time"

	"cityforge.ai/internal/sim/tuning"
	"cityforge.ai/internal/sim/world/feature/economy"
)

type WorldConfig struct {
	ID             string
	TickRateHz     int
	PulseInterval  time.Duration
	NoticeDuration time.Duration

	// Worldgen. Seed 0 picks a random seed in [1,100000).
	Seed        int64
	WorldWidth  int // voxels
	WorldHeight int // voxels
	VoxelSize   float64
	NoiseScale  float64
	Threshold   float64 // taken as given, 0 included
	ChunkSize   int

	// Placement grid. MarkerHeight is taken as given, 0 included.
	CellSize     float64
	MarkerHeight float64

	// Starting stats. If nil, Budget and Resources are created from defaults.
	Stats []economy.StatDef
}

// ConfigFromTuning maps a loaded tuning file onto a world config.
func ConfigFromTuning(id string, t tuning.Tuning) WorldConfig {
	stats := make([]economy.StatDef, 0, len(t.Stats))
	for _, s := range t.Stats {
		stats = append(stats, economy.StatDef{Name: s.Name, Base: s.Base})
	}
	return WorldConfig{
		ID:             id,
		TickRateHz:     t.TickRateHz,
		PulseInterval:  t.PulseInterval(),
		NoticeDuration: t.NoticeDuration(),
		Seed:           t.World.Seed,
		WorldWidth:     t.World.Width,
		WorldHeight:    t.World.Height,
		VoxelSize:      t.World.VoxelSize,
		NoiseScale:     t.World.NoiseScale,
		Threshold:      t.World.Threshold,
		ChunkSize:      t.World.ChunkSize,
		CellSize:       t.Grid.CellSize,
		MarkerHeight:   t.Grid.MarkerHeight,
		Stats:          stats,
	}
}

func (c *WorldConfig) applyDefaults() {
	d := tuning.Defaults()
	if c.ID == "" {
		c.ID = "world_1"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = d.TickRateHz
	}
	if c.PulseInterval <= 0 {
		c.PulseInterval = d.PulseInterval()
	}
	if c.NoticeDuration <= 0 {
		c.NoticeDuration = d.NoticeDuration()
	}
	if c.Seed == 0 {
		c.Seed = 1 + rand.Int63n(99999)
	}
	if c.WorldWidth <= 0 {
		c.WorldWidth = d.World.Width
	}
	if c.WorldHeight <= 0 {
		c.WorldHeight = d.World.Height
	}
	if c.VoxelSize <= 0 {
		c.VoxelSize = d.World.VoxelSize
	}
	if c.NoiseScale <= 0 {
		c.NoiseScale = d.World.NoiseScale
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.World.ChunkSize
	}
	if c.CellSize <= 0 {
		c.CellSize = d.Grid.CellSize
	}
	if c.Stats == nil {
		for _, s := range d.Stats {
			c.Stats = append(c.Stats, economy.StatDef{Name: s.Name, Base: s.Base})
		}
	}
}
