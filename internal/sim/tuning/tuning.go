package tuning

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"
)

//go:embed tuning.schema.json
var schemaJSON string

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz       int `yaml:"tick_rate_hz"`
	PulseIntervalMs  int `yaml:"pulse_interval_ms"`
	NoticeDurationMs int `yaml:"notice_duration_ms"`

	World WorldGen `yaml:"world"`
	Grid  Grid     `yaml:"grid"`
	Stats []Stat   `yaml:"stats"`
}

type WorldGen struct {
	Width      int     `yaml:"width"`  // voxels
	Height     int     `yaml:"height"` // voxels
	VoxelSize  float64 `yaml:"voxel_size"`
	NoiseScale float64 `yaml:"noise_scale"`
	Threshold  float64 `yaml:"threshold"`
	ChunkSize  int     `yaml:"chunk_size"`
	// Seed 0 picks a random seed at startup.
	Seed int64 `yaml:"seed"`
}

type Grid struct {
	CellSize     float64 `yaml:"cell_size"`
	MarkerHeight float64 `yaml:"marker_height"`
}

type Stat struct {
	Name string  `yaml:"name"`
	Base float64 `yaml:"base"`
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:  "1.0",
		TickRateHz:       20,
		PulseIntervalMs:  2000,
		NoticeDurationMs: 4000,
		World: WorldGen{
			Width:      100,
			Height:     100,
			VoxelSize:  0.1,
			NoiseScale: 10,
			Threshold:  0.5,
			ChunkSize:  16,
		},
		Grid: Grid{
			CellSize:     0.8,
			MarkerHeight: 0.05,
		},
		Stats: []Stat{
			{Name: "Budget", Base: 1000},
			{Name: "Resources", Base: 500},
		},
	}
}

func (t Tuning) TickInterval() time.Duration {
	if t.TickRateHz <= 0 {
		return time.Second
	}
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) PulseInterval() time.Duration {
	return time.Duration(t.PulseIntervalMs) * time.Millisecond
}

func (t Tuning) NoticeDuration() time.Duration {
	return time.Duration(t.NoticeDurationMs) * time.Millisecond
}

// Load reads a tuning file over Defaults. Keys absent from the file keep
// their default values.
func Load(path string) (Tuning, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Defaults(), err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := Validate(raw); err != nil {
		return t, err
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

var (
	schemaOnce sync.Once
	compiled   *jsonschema.Schema
	compileErr error
)

func schema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiled, compileErr = jsonschema.CompileString("tuning.schema.json", schemaJSON)
	})
	return compiled, compileErr
}

// Validate checks raw YAML against the embedded schema. The document is
// round-tripped through JSON so numbers reach the validator as float64.
func Validate(raw []byte) error {
	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	if doc == nil {
		return nil
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	s, err := schema()
	if err != nil {
		return fmt.Errorf("tuning schema: %w", err)
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("tuning.yaml: %w", err)
	}
	return nil
}
