package main

import (
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

type worldRow struct {
	WorldID      string  `json:"world_id"`
	Tick         int64   `json:"tick"`
	Seed         int64   `json:"seed"`
	WorldWidth   int     `json:"world_width"`
	WorldHeight  int     `json:"world_height"`
	VoxelSize    float64 `json:"voxel_size"`
	ChunkSize    int     `json:"chunk_size"`
	CellSize     float64 `json:"cell_size"`
	Chunks       int     `json:"chunks"`
	GridCells    int     `json:"grid_cells"`
	Placements   int     `json:"placements"`
	SnapshotPath string  `json:"snapshot_path,omitempty"`
	RecordedAt   string  `json:"recorded_at"`
}

type placementRow struct {
	ID             string     `json:"id"`
	WorldID        string     `json:"world_id"`
	Tick           int64      `json:"tick"`
	ClientID       string     `json:"client_id,omitempty"`
	BuildingID     string     `json:"building_id"`
	Pos            [3]float64 `json:"pos"`
	Rotation       int        `json:"rotation"`
	Footprint      [2]int     `json:"footprint"`
	BudgetAfter    float64    `json:"budget_after"`
	ResourcesAfter float64    `json:"resources_after"`
}

type catalogRow struct {
	Name      string `json:"name"`
	Digest    string `json:"digest"`
	UpdatedAt string `json:"updated_at"`
}

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	buildingID := fs.String("building", "", "building_id filter (placements)")
	_ = fs.Parse(args)

	q := "worlds"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index.db")
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer db.Close()

	if *limit <= 0 {
		*limit = 20
	}

	var out []any
	switch q {
	case "worlds":
		rows, err := queryWorlds(db, *limit)
		exitOn(err)
		for _, r := range rows {
			out = append(out, r)
		}
	case "placements":
		rows, err := queryPlacements(db, strings.TrimSpace(*buildingID), *limit)
		exitOn(err)
		for _, r := range rows {
			out = append(out, r)
		}
	case "catalogs":
		rows, err := queryCatalogs(db)
		exitOn(err)
		for _, r := range rows {
			out = append(out, r)
		}
	default:
		fmt.Fprintln(os.Stderr, "unknown query:", q)
		fmt.Fprintln(os.Stderr, "usage: admin db [-data ./data] [-world WORLD|-db PATH] [-limit N] [-building ID] worlds|placements|catalogs")
		os.Exit(2)
	}
	for _, v := range out {
		printJSON(v)
	}
}

func queryWorlds(db *sql.DB, limit int) ([]worldRow, error) {
	rows, err := db.Query(`SELECT world_id,tick,seed,world_width,world_height,voxel_size,chunk_size,cell_size,chunks,grid_cells,placements,snapshot_path,recorded_at FROM worlds ORDER BY tick DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	var out []worldRow
	for rows.Next() {
		var r worldRow
		if err := rows.Scan(&r.WorldID, &r.Tick, &r.Seed, &r.WorldWidth, &r.WorldHeight, &r.VoxelSize, &r.ChunkSize, &r.CellSize,
			&r.Chunks, &r.GridCells, &r.Placements, &r.SnapshotPath, &r.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryPlacements(db *sql.DB, buildingID string, limit int) ([]placementRow, error) {
	q := `SELECT id,world_id,tick,COALESCE(client_id,''),building_id,x,y,z,rotation,footprint_w,footprint_h,budget_after,resources_after FROM placements ORDER BY tick DESC, id LIMIT ?`
	args := []any{limit}
	if buildingID != "" {
		q = `SELECT id,world_id,tick,COALESCE(client_id,''),building_id,x,y,z,rotation,footprint_w,footprint_h,budget_after,resources_after FROM placements WHERE building_id=? ORDER BY tick DESC, id LIMIT ?`
		args = []any{buildingID, limit}
	}
	rows, err := db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	var out []placementRow
	for rows.Next() {
		var r placementRow
		if err := rows.Scan(&r.ID, &r.WorldID, &r.Tick, &r.ClientID, &r.BuildingID,
			&r.Pos[0], &r.Pos[1], &r.Pos[2], &r.Rotation, &r.Footprint[0], &r.Footprint[1],
			&r.BudgetAfter, &r.ResourcesAfter); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func queryCatalogs(db *sql.DB) ([]catalogRow, error) {
	rows, err := db.Query(`SELECT name,digest,updated_at FROM catalogs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	var out []catalogRow
	for rows.Next() {
		var r catalogRow
		if err := rows.Scan(&r.Name, &r.Digest, &r.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
