package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"cityforge.ai/internal/persistence/snapshot"
	"cityforge.ai/internal/sim/catalogs"
	"cityforge.ai/internal/sim/tuning"
	"cityforge.ai/internal/sim/world"
)

type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed  atomic.Bool
	dropped atomic.Uint64
}

type reqKind int

const (
	reqPlacement reqKind = iota + 1
	reqWorld
)

type req struct {
	kind reqKind

	placement world.PlacementLogEntry
	world     worldRow
}

type worldRow struct {
	WorldID     string
	Tick        uint64
	Seed        int64
	WorldWidth  int
	WorldHeight int
	VoxelSize   float64
	ChunkSize   int
	CellSize    float64
	Chunks      int
	GridCells   int
	Placements  int
	Path        string
	RecordedAt  string
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, 4096),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS catalogs (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS worlds (
			world_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			seed INTEGER NOT NULL,
			world_width INTEGER NOT NULL,
			world_height INTEGER NOT NULL,
			voxel_size REAL NOT NULL,
			chunk_size INTEGER NOT NULL,
			cell_size REAL NOT NULL,
			chunks INTEGER NOT NULL,
			grid_cells INTEGER NOT NULL,
			placements INTEGER NOT NULL,
			snapshot_path TEXT NOT NULL,
			recorded_at TEXT NOT NULL,
			PRIMARY KEY (world_id, tick)
		);`,
		`CREATE TABLE IF NOT EXISTS placements (
			id TEXT PRIMARY KEY,
			world_id TEXT NOT NULL,
			tick INTEGER NOT NULL,
			client_id TEXT,
			building_id TEXT NOT NULL,
			x REAL NOT NULL,
			y REAL NOT NULL,
			z REAL NOT NULL,
			rotation INTEGER NOT NULL,
			footprint_w INTEGER NOT NULL,
			footprint_h INTEGER NOT NULL,
			budget_after REAL NOT NULL,
			resources_after REAL NOT NULL,
			raw_json TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_world_tick ON placements(world_id, tick);`,
		`CREATE INDEX IF NOT EXISTS idx_placements_building ON placements(building_id);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// Dropped counts writes discarded because the writer fell behind.
func (s *SQLiteIndex) Dropped() uint64 { return s.dropped.Load() }

func (s *SQLiteIndex) enqueue(r req) {
	select {
	case s.ch <- r:
	default:
		// Drop if the indexer falls behind; JSONL logs remain the source of truth.
		s.dropped.Add(1)
	}
}

func (s *SQLiteIndex) WritePlacement(entry world.PlacementLogEntry) error {
	if s == nil || s.closed.Load() {
		return nil
	}
	s.enqueue(req{kind: reqPlacement, placement: entry})
	return nil
}

// RecordWorld indexes a world export. path is empty when the world was
// recorded without writing a snapshot file.
func (s *SQLiteIndex) RecordWorld(path string, snap snapshot.SnapshotV1) {
	if s == nil || s.closed.Load() {
		return
	}
	s.enqueue(req{kind: reqWorld, world: worldRow{
		WorldID:     snap.Header.WorldID,
		Tick:        snap.Header.Tick,
		Seed:        snap.Seed,
		WorldWidth:  snap.WorldWidth,
		WorldHeight: snap.WorldHeight,
		VoxelSize:   snap.VoxelSize,
		ChunkSize:   snap.ChunkSize,
		CellSize:    snap.CellSize,
		Chunks:      len(snap.Chunks),
		GridCells:   len(snap.GridCells),
		Placements:  len(snap.Placements),
		Path:        path,
		RecordedAt:  time.Now().UTC().Format(time.RFC3339Nano),
	}})
}

func (s *SQLiteIndex) UpsertCatalogs(configDir string, cats *catalogs.Catalogs, tune tuning.Tuning) error {
	if s == nil {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)

	type kv struct {
		name   string
		digest string
		json   []byte
	}
	var rows []kv
	{
		// Canonicalize buildings to stable JSON for easier querying.
		defs := make([]catalogs.BuildingDef, 0, len(cats.Buildings.ByID))
		for _, d := range cats.Buildings.ByID {
			defs = append(defs, d)
		}
		sort.Slice(defs, func(i, j int) bool { return defs[i].ID < defs[j].ID })
		if b, _ := json.Marshal(defs); len(b) > 0 {
			rows = append(rows, kv{name: "buildings", digest: cats.Buildings.Digest, json: b})
		}
	}

	// Tuning: store the values we actually apply (canonical JSON).
	{
		b, _ := json.Marshal(tune)
		sum := sha256.Sum256(b)
		digest := hex.EncodeToString(sum[:])
		rows = append(rows, kv{name: "tuning", digest: digest, json: b})
	}

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if configDir != "" {
		if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('config_dir',?)`, configDir); err != nil {
			return err
		}
	}
	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO catalogs(name,digest,json,updated_at) VALUES(?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if r.name == "" || r.digest == "" || len(r.json) == 0 {
			continue
		}
		if _, err := stmt.Exec(r.name, r.digest, string(r.json), now); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertPlacement, _ := s.db.Prepare(`INSERT OR REPLACE INTO placements(id,world_id,tick,client_id,building_id,x,y,z,rotation,footprint_w,footprint_h,budget_after,resources_after,raw_json) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	insertWorld, _ := s.db.Prepare(`INSERT OR REPLACE INTO worlds(world_id,tick,seed,world_width,world_height,voxel_size,chunk_size,cell_size,chunks,grid_cells,placements,snapshot_path,recorded_at) VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	defer func() {
		if insertPlacement != nil {
			_ = insertPlacement.Close()
		}
		if insertWorld != nil {
			_ = insertWorld.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 500
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	flushIfNeeded := func() {
		if tx == nil {
			return
		}
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait {
			commit()
		}
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqPlacement:
			p := r.placement
			raw, _ := json.Marshal(p)
			if insertPlacement != nil {
				if _, err := tx.Stmt(insertPlacement).Exec(
					p.ID,
					p.WorldID,
					int64(p.Tick),
					p.ClientID,
					p.BuildingID,
					p.Pos[0], p.Pos[1], p.Pos[2],
					p.Rotation,
					p.Footprint[0], p.Footprint[1],
					p.Budget,
					p.Resources,
					string(raw),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqWorld:
			wr := r.world
			if insertWorld != nil {
				if _, err := tx.Stmt(insertWorld).Exec(
					wr.WorldID,
					int64(wr.Tick),
					wr.Seed,
					wr.WorldWidth,
					wr.WorldHeight,
					wr.VoxelSize,
					wr.ChunkSize,
					wr.CellSize,
					wr.Chunks,
					wr.GridCells,
					wr.Placements,
					wr.Path,
					wr.RecordedAt,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		flushIfNeeded()
	}

	commit()
}
