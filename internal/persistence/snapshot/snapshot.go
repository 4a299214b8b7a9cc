package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

// SnapshotV1 is a world export: generation parameters, chunk meshes, the
// materialized grid and committed placements. Stat values are not included.
type SnapshotV1 struct {
	Header Header `json:"header"`

	Seed        int64   `json:"seed"`
	WorldWidth  int     `json:"world_width"`
	WorldHeight int     `json:"world_height"`
	VoxelSize   float64 `json:"voxel_size"`
	NoiseScale  float64 `json:"noise_scale"`
	Threshold   float64 `json:"threshold"`
	ChunkSize   int     `json:"chunk_size"`
	CellSize    float64 `json:"cell_size"`

	Chunks     []ChunkV1     `json:"chunks"`
	GridCells  []GridCellV1  `json:"grid_cells"`
	Placements []PlacementV1 `json:"placements,omitempty"`
}

type ChunkV1 struct {
	CX           int          `json:"cx"`
	CZ           int          `json:"cz"`
	Vertices     [][3]float32 `json:"vertices"`
	UVs          [][2]float32 `json:"uvs"`
	Colors       [][4]float32 `json:"colors"`
	LandIndices  []uint32     `json:"land_indices"`
	WaterIndices []uint32     `json:"water_indices"`
	Digest       string       `json:"digest,omitempty"`
}

type GridCellV1 struct {
	GX int `json:"gx"`
	GZ int `json:"gz"`
}

type PlacementV1 struct {
	ID         string     `json:"id"`
	BuildingID string     `json:"building_id"`
	Pos        [3]float64 `json:"pos"`
	Rotation   int        `json:"rotation"`
	Footprint  [2]int     `json:"footprint"`
	Tick       uint64     `json:"tick"`
}

func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return err
	}

	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(hb); err != nil {
		_ = enc.Close()
		return err
	}
	if err := bw.WriteByte('\n'); err != nil {
		_ = enc.Close()
		return err
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		_ = enc.Close()
		return fmt.Errorf("gob encode: %w", err)
	}
	if err := bw.Flush(); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// ReadHeader decodes only the JSON header line.
func ReadHeader(path string) (Header, error) {
	var h Header
	f, err := os.Open(path)
	if err != nil {
		return h, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return h, err
	}
	defer dec.Close()

	line, err := bufio.NewReader(dec).ReadBytes('\n')
	if err != nil {
		return h, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(line, &h); err != nil {
		return h, fmt.Errorf("decode header: %w", err)
	}
	return h, nil
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, err
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	// Header line is repeated inside the gob body.
	if _, err := br.ReadBytes('\n'); err != nil {
		return snap, fmt.Errorf("read header: %w", err)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, fmt.Errorf("gob decode: %w", err)
	}
	if snap.Header.Version != Version {
		return snap, fmt.Errorf("unsupported snapshot version %d", snap.Header.Version)
	}
	return snap, nil
}
