package world

import (
	"context"
	"fmt"
	"log"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"cityforge.ai/internal/protocol"
	"cityforge.ai/internal/sim/catalogs"
	"cityforge.ai/internal/sim/world/feature/economy"
	"cityforge.ai/internal/sim/world/feature/notice"
	"cityforge.ai/internal/sim/world/feature/placement"
	"cityforge.ai/internal/sim/world/grid"
	"cityforge.ai/internal/sim/world/terrain/gen"
	"cityforge.ai/internal/sim/world/terrain/store"
)

type JoinRequest struct {
	Name string
	Out  chan []byte
	Resp chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

type IntentEnvelope struct {
	ClientID string
	Intent   protocol.IntentMsg
}

// World is a single-threaded authoritative simulation.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg      WorldConfig
	catalogs *catalogs.Catalogs
	log      *log.Logger

	tick atomic.Uint64

	field   *gen.NoiseField
	chunks  *store.ChunkStore
	grid    *grid.Grid
	ledger  *economy.Ledger
	notices notice.Board
	session *placement.Session

	buildings map[string]placement.Building

	landCells, waterCells int

	// Latest cursor reported by any client; the preview follows it every tick.
	cursor    mgl64.Vec3
	hasCursor bool

	pulseAcc time.Duration
	pulses   uint64

	placements []PlacementRecord
	clients    map[string]*clientState

	inbox  chan IntentEnvelope
	join   chan JoinRequest
	leave  chan string
	export chan exportReq
	stop   chan struct{}

	stopOnce sync.Once

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	placementLogger PlacementLogger
	noticeLogger    NoticeLogger

	metrics atomic.Value
}

type PlacementLogger interface {
	WritePlacement(entry PlacementLogEntry) error
}

type NoticeLogger interface {
	WriteNotice(entry NoticeLogEntry) error
}

type PlacementLogEntry struct {
	Tick       uint64     `json:"tick"`
	WorldID    string     `json:"world_id"`
	ClientID   string     `json:"client_id,omitempty"`
	ID         string     `json:"id"`
	BuildingID string     `json:"building_id"`
	Pos        [3]float64 `json:"pos"`
	Rotation   int        `json:"rotation"`
	Footprint  [2]int     `json:"footprint"`
	Budget     float64    `json:"budget_after"`
	Resources  float64    `json:"resources_after"`
}

type NoticeLogEntry struct {
	Tick    uint64 `json:"tick"`
	WorldID string `json:"world_id"`
	Message string `json:"message"`
}

// PlacementRecord is a committed placement and the tick it landed on.
type PlacementRecord struct {
	placement.Placement
	Tick uint64
}

type clientState struct {
	Name string
	Out  chan []byte
}

// New generates terrain and the placement grid before returning, so every
// reader sees the finished world.
func New(cfg WorldConfig, cats *catalogs.Catalogs, logger *log.Logger) (*World, error) {
	cfg.applyDefaults()
	field := gen.New(gen.Params{
		Seed:      cfg.Seed,
		Scale:     cfg.NoiseScale,
		Threshold: cfg.Threshold,
		VoxelSize: cfg.VoxelSize,
	})
	return newWorld(cfg, cats, logger, field)
}

func newWorld(cfg WorldConfig, cats *catalogs.Catalogs, logger *log.Logger, field *gen.NoiseField) (*World, error) {
	if logger == nil {
		logger = log.New(os.Stdout, "[world] ", log.LstdFlags|log.Lmicroseconds)
	}
	if cats == nil {
		cats = catalogs.Default()
	}

	buildings := make(map[string]placement.Building, len(cats.Buildings.ByID))
	for id, d := range cats.Buildings.ByID {
		buildings[id] = placement.Building{
			ID:           d.ID,
			Footprint:    grid.Footprint{W: d.Footprint[0], H: d.Footprint[1]},
			Cost:         d.Cost,
			ResourceCost: d.ResourceCost,
			HeightOffset: d.HeightOffset,
		}
	}
	if len(buildings) == 0 {
		return nil, fmt.Errorf("world %s: no buildings in catalog", cfg.ID)
	}

	chunks := store.NewChunkStore(store.WorldGen{
		WorldWidth:  cfg.WorldWidth,
		WorldHeight: cfg.WorldHeight,
		ChunkSize:   cfg.ChunkSize,
		VoxelSize:   cfg.VoxelSize,
	})
	chunks.GenerateAll(field)
	g := grid.Build(grid.Config{
		WorldWidth:   cfg.WorldWidth,
		WorldHeight:  cfg.WorldHeight,
		VoxelSize:    cfg.VoxelSize,
		CellSize:     cfg.CellSize,
		MarkerHeight: cfg.MarkerHeight,
	}, field)

	w := &World{
		cfg:       cfg,
		catalogs:  cats,
		log:       logger,
		field:     field,
		chunks:    chunks,
		grid:      g,
		ledger:    economy.NewLedger(cfg.Stats, logger),
		buildings: buildings,
		clients:   map[string]*clientState{},
		inbox:     make(chan IntentEnvelope, 1024),
		join:      make(chan JoinRequest, 64),
		leave:     make(chan string, 64),
		export:    make(chan exportReq, 8),
		stop:      make(chan struct{}),
	}
	w.session = placement.New(g, w.ledger, noticeSink{w: w}, cfg.NoticeDuration)

	land, water := chunks.Counts()
	w.landCells, w.waterCells = land, water
	logger.Printf("world %s: seed=%d chunks=%d land=%d water=%d grid_cells=%d",
		cfg.ID, cfg.Seed, len(chunks.Chunks), land, water, g.Len())
	w.updateMetrics(0, 0)
	return w, nil
}

func (w *World) SetPlacementLogger(l PlacementLogger) { w.placementLogger = l }
func (w *World) SetNoticeLogger(l NoticeLogger)       { w.noticeLogger = l }

func (w *World) Inbox() chan<- IntentEnvelope { return w.inbox }
func (w *World) Join() chan<- JoinRequest     { return w.join }
func (w *World) Leave() chan<- string         { return w.leave }

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) Config() WorldConfig       { return w.cfg }
func (w *World) Seed() int64               { return w.cfg.Seed }
func (w *World) CurrentTick() uint64       { return w.tick.Load() }
func (w *World) Field() *gen.NoiseField    { return w.field }
func (w *World) Chunks() *store.ChunkStore { return w.chunks }
func (w *World) Grid() *grid.Grid          { return w.grid }

// The accessors below read loop-owned state. Call them from the loop
// goroutine, or when the loop is not running.

func (w *World) Stats() []economy.Stat         { return w.ledger.Stats() }
func (w *World) Session() *placement.Session   { return w.session }
func (w *World) Notice() (notice.Notice, bool) { return w.notices.Current() }
func (w *World) Pulses() uint64                { return w.pulses }

func (w *World) Placements() []PlacementRecord {
	return append([]PlacementRecord(nil), w.placements...)
}

func (w *World) Building(id string) (placement.Building, bool) {
	b, ok := w.buildings[id]
	return b, ok
}

func (w *World) buildingIDs() []string {
	ids := make([]string, 0, len(w.buildings))
	for id := range w.buildings {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingIntents []IntentEnvelope
	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case env := <-w.inbox:
			pendingIntents = append(pendingIntents, env)
		case req := <-w.export:
			req.Resp <- w.Snapshot()
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves, pendingIntents, interval)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
			pendingIntents = pendingIntents[:0]
		}
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce advances the world by a single tick of the configured interval
// using the same ordering semantics as the server loop.
func (w *World) StepOnce(joins []JoinRequest, leaves []string, intents []IntentEnvelope) uint64 {
	tick := w.tick.Load()
	w.step(joins, leaves, intents, time.Second/time.Duration(w.cfg.TickRateHz))
	return tick
}

// Advance runs one tick of length dt with the given intents applied in order.
func (w *World) Advance(dt time.Duration, intents ...IntentEnvelope) uint64 {
	tick := w.tick.Load()
	w.step(nil, nil, intents, dt)
	return tick
}

func sendLatest(ch chan []byte, b []byte) {
	if ch == nil {
		return
	}
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
