package world

import (
	"encoding/json"
	"io"
	"log"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"

	"cityforge.ai/internal/protocol"
	"cityforge.ai/internal/sim/tuning"
	"cityforge.ai/internal/sim/world/feature/economy"
	"cityforge.ai/internal/sim/world/feature/placement"
	"cityforge.ai/internal/sim/world/terrain/gen"
)

type constSource float64

func (c constSource) Eval2(x, y float64) float64 { return float64(c) }

// testWorld is a 32x32 voxel all-land world with 1.0 grid cells (8x8 cells).
func testWorld(t *testing.T, stats ...economy.StatDef) *World {
	t.Helper()
	cfg := WorldConfig{
		ID:           "test",
		TickRateHz:   10,
		Seed:         7,
		WorldWidth:   32,
		WorldHeight:  32,
		VoxelSize:    0.25,
		NoiseScale:   1,
		Threshold:    0.5,
		ChunkSize:    16,
		CellSize:     1,
		MarkerHeight: 0.05,
		Stats:        stats,
	}
	cfg.applyDefaults()
	field := gen.NewWithSource(gen.Params{
		Seed:      cfg.Seed,
		Scale:     cfg.NoiseScale,
		Threshold: cfg.Threshold,
		VoxelSize: cfg.VoxelSize,
	}, constSource(1))
	w, err := newWorld(cfg, nil, log.New(io.Discard, "", 0), field)
	if err != nil {
		t.Fatalf("newWorld: %v", err)
	}
	return w
}

func joinClient(t *testing.T, w *World) (string, chan []byte) {
	t.Helper()
	out := make(chan []byte, 256)
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{Name: "viewer", Out: out, Resp: resp}}, nil, nil)
	r := <-resp
	if r.Welcome.ClientID == "" {
		t.Fatalf("join: empty client id")
	}
	return r.Welcome.ClientID, out
}

func intent(clientID, kind string) IntentEnvelope {
	return IntentEnvelope{ClientID: clientID, Intent: protocol.IntentMsg{
		Type:            protocol.TypeIntent,
		ProtocolVersion: protocol.Version,
		Kind:            kind,
	}}
}

func start(clientID, building string) IntentEnvelope {
	in := intent(clientID, protocol.IntentStart)
	in.Intent.BuildingID = building
	return in
}

func cursor(clientID string, x, z float64) IntentEnvelope {
	in := intent(clientID, protocol.IntentCursor)
	in.Intent.Pos = &[3]float64{x, 0, z}
	return in
}

func rotate(clientID string, dir int) IntentEnvelope {
	in := intent(clientID, protocol.IntentRotate)
	in.Intent.Dir = dir
	return in
}

// drain returns every queued message keyed by type, in arrival order.
func drain(t *testing.T, out chan []byte) map[string][][]byte {
	t.Helper()
	got := map[string][][]byte{}
	for {
		select {
		case b := <-out:
			base, err := protocol.DecodeBase(b)
			if err != nil {
				t.Fatalf("decode: %v", err)
			}
			got[base.Type] = append(got[base.Type], b)
		default:
			return got
		}
	}
}

func errorCodes(t *testing.T, msgs [][]byte) []string {
	t.Helper()
	var codes []string
	for _, b := range msgs {
		var e protocol.ErrorMsg
		if err := json.Unmarshal(b, &e); err != nil {
			t.Fatalf("unmarshal error msg: %v", err)
		}
		codes = append(codes, e.Code)
	}
	return codes
}

func stat(w *World, name string) float64 {
	for _, s := range w.Stats() {
		if s.Name == name {
			return s.Current
		}
	}
	return math.NaN()
}

func TestWorld_NewBuildsTerrainAndGrid(t *testing.T) {
	w := testWorld(t)
	if got := len(w.Chunks().Chunks); got != 4 {
		t.Fatalf("chunks=%d want 4", got)
	}
	if got := w.Grid().Len(); got != 64 {
		t.Fatalf("grid cells=%d want 64", got)
	}
	m := w.Metrics()
	if m.Chunks != 4 || m.GridCells != 64 || m.LandCells != 32*32 || m.WaterCells != 0 {
		t.Fatalf("metrics=%+v", m)
	}
	if m.Session != "IDLE" {
		t.Fatalf("session=%s", m.Session)
	}
}

func TestWorld_Welcome(t *testing.T) {
	w := testWorld(t)
	out := make(chan []byte, 8)
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{Name: "viewer", Out: out, Resp: resp}}, nil, nil)
	wel := (<-resp).Welcome
	if wel.Type != protocol.TypeWelcome || wel.ProtocolVersion != protocol.Version {
		t.Fatalf("welcome header: %+v", wel)
	}
	if wel.WorldParams.Seed != 7 || wel.WorldParams.CellSize != 1 || wel.WorldParams.ChunkSize != 16 {
		t.Fatalf("world params: %+v", wel.WorldParams)
	}
	if len(wel.Buildings) != 1 || wel.Buildings[0].ID != "house" || wel.Buildings[0].Footprint != [2]int{2, 2} {
		t.Fatalf("buildings: %+v", wel.Buildings)
	}
	if wel.Catalogs.BuildingsDigest == "" {
		t.Fatalf("missing buildings digest")
	}
	if got := drain(t, out); len(got[protocol.TypeState]) != 1 {
		t.Fatalf("expected one STATE after join, got %v", got)
	}
}

func TestWorld_EndToEnd_BudgetExhaustion(t *testing.T) {
	w := testWorld(t,
		economy.StatDef{Name: economy.StatBudget, Base: 100},
		economy.StatDef{Name: economy.StatResources, Base: 50},
	)
	id, out := joinClient(t, w)
	drain(t, out)

	w.Advance(100*time.Millisecond,
		start(id, "house"),
		cursor(id, 0.5, 0.5),
		intent(id, protocol.IntentConfirm),
	)

	if b, r := stat(w, economy.StatBudget), stat(w, economy.StatResources); b != 0 || r != 0 {
		t.Fatalf("after commit budget=%v resources=%v want 0/0", b, r)
	}
	ps := w.Placements()
	if len(ps) != 1 {
		t.Fatalf("placements=%d want 1", len(ps))
	}
	p := ps[0]
	if p.BuildingID != "house" || p.Position.X() != 1 || p.Position.Z() != 1 {
		t.Fatalf("placement=%+v", p)
	}
	if y := p.Position.Y(); math.Abs(y-0.1) > 1e-9 {
		t.Fatalf("placement y=%v want 0.1", y)
	}
	if w.Session().State() != placement.Idle || w.Session().LastTransition() != placement.Committed {
		t.Fatalf("session state=%v last=%v", w.Session().State(), w.Session().LastTransition())
	}
	got := drain(t, out)
	if len(got[protocol.TypePlaced]) != 1 {
		t.Fatalf("expected PLACED, got %d", len(got[protocol.TypePlaced]))
	}
	if len(got[protocol.TypeError]) != 0 {
		t.Fatalf("unexpected errors: %v", errorCodes(t, got[protocol.TypeError]))
	}

	w.Advance(100*time.Millisecond, start(id, "house"))
	if w.Session().State() != placement.Idle {
		t.Fatalf("start with empty ledger must stay idle")
	}
	n, ok := w.Notice()
	if !ok || n.Message != placement.MsgInsufficientFunds {
		t.Fatalf("notice=%+v visible=%v", n, ok)
	}
	got = drain(t, out)
	if codes := errorCodes(t, got[protocol.TypeError]); len(codes) != 1 || codes[0] != protocol.ErrNoResource {
		t.Fatalf("error codes=%v want [%s]", codes, protocol.ErrNoResource)
	}
}

func TestWorld_InvalidConfirmKeepsPreviewing(t *testing.T) {
	w := testWorld(t)
	id, out := joinClient(t, w)
	drain(t, out)

	w.Advance(100*time.Millisecond,
		cursor(id, 20, 20),
		start(id, "house"),
		intent(id, protocol.IntentConfirm),
	)
	if w.Session().State() != placement.Previewing {
		t.Fatalf("state=%v want PREVIEWING", w.Session().State())
	}
	if n, ok := w.Notice(); !ok || n.Message != placement.MsgCannotBuild {
		t.Fatalf("notice=%+v", n)
	}
	if codes := errorCodes(t, drain(t, out)[protocol.TypeError]); len(codes) != 1 || codes[0] != protocol.ErrBlocked {
		t.Fatalf("codes=%v", codes)
	}
	if stat(w, economy.StatBudget) != 1000 {
		t.Fatalf("budget debited on failed confirm")
	}

	w.Advance(100*time.Millisecond, cursor(id, 3.2, 4.7), intent(id, protocol.IntentConfirm))
	if len(w.Placements()) != 1 {
		t.Fatalf("retry should commit")
	}
	if stat(w, economy.StatBudget) != 900 || stat(w, economy.StatResources) != 450 {
		t.Fatalf("ledger=%v/%v", stat(w, economy.StatBudget), stat(w, economy.StatResources))
	}
}

func TestWorld_PreviewFollowsCursorAndState(t *testing.T) {
	w := testWorld(t)
	id, out := joinClient(t, w)
	drain(t, out)

	w.Advance(100*time.Millisecond, start(id, "house"), cursor(id, 2.5, 2.5), rotate(id, 1))
	msg := w.stateMsg(w.CurrentTick())
	if msg.Session.State != "PREVIEWING" || msg.Session.BuildingID != "house" {
		t.Fatalf("session view=%+v", msg.Session)
	}
	if msg.Session.Pos == nil || msg.Session.Pos[0] != 3 || msg.Session.Pos[2] != 3 {
		t.Fatalf("preview pos=%v want x=3 z=3", msg.Session.Pos)
	}
	if msg.Session.Rotation != 90 || !msg.Session.Valid || msg.Session.Color != placement.ValidColor {
		t.Fatalf("session view=%+v", msg.Session)
	}

	// The preview follows the latest cursor even past the grid.
	w.Advance(100*time.Millisecond, cursor(id, 7.5, 7.5))
	pv, _ := w.Session().Preview()
	if pv.Valid {
		t.Fatalf("2x2 at the last cell must overhang the grid: %+v", pv)
	}

	w.Advance(100*time.Millisecond, intent(id, protocol.IntentCancel))
	if w.Session().State() != placement.Idle || w.Session().LastTransition() != placement.Cancelled {
		t.Fatalf("cancel: state=%v last=%v", w.Session().State(), w.Session().LastTransition())
	}
	if len(drain(t, out)[protocol.TypeState]) != 3 {
		t.Fatalf("expected one STATE per tick")
	}
}

func TestWorld_PulseEveryInterval(t *testing.T) {
	w := testWorld(t)
	_, out := joinClient(t, w)
	drain(t, out)

	for i := 0; i < 10; i++ {
		w.Advance(500 * time.Millisecond)
	}
	if w.Pulses() != 2 {
		t.Fatalf("pulses=%d want 2 after 5s", w.Pulses())
	}
	if got := len(drain(t, out)[protocol.TypePulse]); got != 2 {
		t.Fatalf("PULSE messages=%d want 2", got)
	}
	if w.Metrics().Pulses != 2 {
		t.Fatalf("metrics pulses=%d", w.Metrics().Pulses)
	}
}

func TestWorld_NoticeExpiresAndResets(t *testing.T) {
	w := testWorld(t, economy.StatDef{Name: economy.StatBudget, Base: 0})
	w.Advance(time.Second, start("", "house"))
	for i := 0; i < 3; i++ {
		w.Advance(time.Second)
	}
	if n, ok := w.Notice(); !ok || n.Remaining != time.Second {
		t.Fatalf("after 3s notice=%+v visible=%v", n, ok)
	}

	// A second notice restarts the timer.
	w.Advance(time.Second, start("", "house"))
	for i := 0; i < 3; i++ {
		w.Advance(time.Second)
	}
	if _, ok := w.Notice(); !ok {
		t.Fatalf("re-shown notice should still be visible")
	}
	w.Advance(time.Second)
	if _, ok := w.Notice(); ok {
		t.Fatalf("notice should expire after its duration")
	}
}

func TestWorld_RejectedIntents(t *testing.T) {
	w := testWorld(t)
	id, out := joinClient(t, w)
	drain(t, out)

	bad := intent(id, "JUMP")
	noPos := intent(id, protocol.IntentCursor)
	w.Advance(100*time.Millisecond,
		start(id, "castle"),
		intent(id, protocol.IntentConfirm),
		rotate(id, 2),
		noPos,
		bad,
		start(id, "house"),
		start(id, "house"),
	)
	want := []string{
		protocol.ErrInvalidTarget,
		protocol.ErrConflict,
		protocol.ErrBadRequest,
		protocol.ErrBadRequest,
		protocol.ErrBadRequest,
		protocol.ErrConflict,
	}
	got := errorCodes(t, drain(t, out)[protocol.TypeError])
	if len(got) != len(want) {
		t.Fatalf("codes=%v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("codes=%v want %v", got, want)
		}
	}
}

func TestWorld_LeaveStopsPublishing(t *testing.T) {
	w := testWorld(t)
	id, out := joinClient(t, w)
	drain(t, out)
	w.StepOnce(nil, []string{id}, nil)
	w.StepOnce(nil, nil, nil)
	if got := drain(t, out); len(got) != 0 {
		t.Fatalf("left client still receives %v", got)
	}
	if w.Metrics().Clients != 0 {
		t.Fatalf("clients=%d", w.Metrics().Clients)
	}
}

type recordingLogger struct {
	placements []PlacementLogEntry
	notices    []NoticeLogEntry
}

func (r *recordingLogger) WritePlacement(e PlacementLogEntry) error {
	r.placements = append(r.placements, e)
	return nil
}

func (r *recordingLogger) WriteNotice(e NoticeLogEntry) error {
	r.notices = append(r.notices, e)
	return nil
}

func TestWorld_Loggers(t *testing.T) {
	w := testWorld(t,
		economy.StatDef{Name: economy.StatBudget, Base: 150},
		economy.StatDef{Name: economy.StatResources, Base: 500},
	)
	rec := &recordingLogger{}
	w.SetPlacementLogger(rec)
	w.SetNoticeLogger(rec)

	w.Advance(100*time.Millisecond, start("C1", "house"), intent("C1", protocol.IntentConfirm))
	w.Advance(100*time.Millisecond, start("C1", "house"))

	if len(rec.placements) != 1 {
		t.Fatalf("placements logged=%d", len(rec.placements))
	}
	e := rec.placements[0]
	if e.ClientID != "C1" || e.WorldID != "test" || e.Budget != 50 || e.Resources != 450 || e.Footprint != [2]int{2, 2} {
		t.Fatalf("placement entry=%+v", e)
	}
	if len(rec.notices) != 1 || rec.notices[0].Message != placement.MsgInsufficientFunds || rec.notices[0].Tick != 1 {
		t.Fatalf("notices=%+v", rec.notices)
	}
}

func TestWorld_RandomSeedWhenZero(t *testing.T) {
	w, err := New(WorldConfig{
		ID:          "rand",
		WorldWidth:  16,
		WorldHeight: 16,
		ChunkSize:   16,
	}, nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s := w.Seed(); s < 1 || s >= 100000 {
		t.Fatalf("seed=%d want [1,100000)", s)
	}
	if w.Field().Params().Seed != w.Seed() {
		t.Fatalf("field seed %d != world seed %d", w.Field().Params().Seed, w.Seed())
	}
}

func TestWorld_ZeroThresholdAndMarkerHeightKept(t *testing.T) {
	tu, err := tuning.Parse([]byte(`
world:
  width: 32
  height: 32
  seed: 5
  threshold: 0
grid:
  marker_height: 0
`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	w, err := New(ConfigFromTuning("zero", tu), nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if th := w.Field().Params().Threshold; th != 0 {
		t.Fatalf("field threshold=%v want 0", th)
	}
	if mh := w.Grid().Config().MarkerHeight; mh != 0 {
		t.Fatalf("grid marker height=%v want 0", mh)
	}
	for _, k := range w.Grid().Keys() {
		c, _ := w.Grid().CellAt(mgl64.Vec3{(float64(k.GX) + 0.5) * 0.8, 0, (float64(k.GZ) + 0.5) * 0.8})
		if c.Center.Y() != 0 {
			t.Fatalf("cell %v center y=%v want 0", k, c.Center.Y())
		}
	}
}

func TestWorld_UnsetTuningKeysUseDefaults(t *testing.T) {
	tu, err := tuning.Parse([]byte("world:\n  width: 32\n  height: 32\n  seed: 5\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	w, err := New(ConfigFromTuning("dflt", tu), nil, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d := tuning.Defaults()
	if th := w.Field().Params().Threshold; th != d.World.Threshold {
		t.Fatalf("field threshold=%v want %v", th, d.World.Threshold)
	}
	if mh := w.Grid().Config().MarkerHeight; mh != d.Grid.MarkerHeight {
		t.Fatalf("grid marker height=%v want %v", mh, d.Grid.MarkerHeight)
	}
}

func TestErrorCode(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{placement.ErrInsufficientFunds, protocol.ErrNoResource},
		{placement.ErrInvalidPlacement, protocol.ErrBlocked},
		{placement.ErrSessionActive, protocol.ErrConflict},
		{placement.ErrNotPreviewing, protocol.ErrConflict},
		{placement.ErrBadBuilding, protocol.ErrInvalidTarget},
		{errBadIntent, protocol.ErrBadRequest},
		{io.EOF, protocol.ErrInternal},
	}
	for _, c := range cases {
		if got := ErrorCode(c.err); got != c.want {
			t.Fatalf("ErrorCode(%v)=%q want %q", c.err, got, c.want)
		}
		if !protocol.IsKnownCode(ErrorCode(c.err)) {
			t.Fatalf("unknown code for %v", c.err)
		}
	}
}
