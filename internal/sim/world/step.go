package world

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"cityforge.ai/internal/protocol"
	"cityforge.ai/internal/sim/world/feature/economy"
	"cityforge.ai/internal/sim/world/feature/placement"
)

// step order: leaves, joins, notice timers, intents in arrival order,
// preview polling, pulse, state publication.
func (w *World) step(joins []JoinRequest, leaves []string, intents []IntentEnvelope, dt time.Duration) {
	start := time.Now()
	tick := w.tick.Load()

	for _, id := range leaves {
		delete(w.clients, id)
	}
	for _, req := range joins {
		w.handleJoin(req)
	}

	w.notices.Advance(dt)

	for _, env := range intents {
		if err := w.applyIntent(tick, env); err != nil {
			w.sendError(env.ClientID, err)
		}
	}

	if w.session.State() == placement.Previewing && w.hasCursor {
		_ = w.session.UpdatePreview(w.cursor)
	}

	if w.cfg.PulseInterval > 0 {
		w.pulseAcc += dt
		for w.pulseAcc >= w.cfg.PulseInterval {
			w.pulseAcc -= w.cfg.PulseInterval
			w.pulses++
			w.broadcast(protocol.PulseMsg{
				Type:            protocol.TypePulse,
				ProtocolVersion: protocol.Version,
				Tick:            tick,
				N:               w.pulses,
			})
		}
	}

	w.publishState(tick)
	w.tick.Add(1)
	w.updateMetrics(tick+1, time.Since(start))
}

func (w *World) handleJoin(req JoinRequest) {
	id := "C" + uuid.NewString()
	name := req.Name
	if name == "" {
		name = "client"
	}
	w.clients[id] = &clientState{Name: name, Out: req.Out}

	refs := make([]protocol.BuildingRef, 0, len(w.buildings))
	for _, bid := range w.buildingIDs() {
		b := w.buildings[bid]
		d := w.catalogs.Buildings.ByID[bid]
		refs = append(refs, protocol.BuildingRef{
			ID:           b.ID,
			Name:         d.Name,
			Footprint:    [2]int{b.Footprint.W, b.Footprint.H},
			Cost:         b.Cost,
			ResourceCost: b.ResourceCost,
		})
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ClientID:        id,
		WorldID:         w.cfg.ID,
		WorldParams: protocol.WorldParams{
			TickRateHz:  w.cfg.TickRateHz,
			Seed:        w.cfg.Seed,
			WorldWidth:  w.cfg.WorldWidth,
			WorldHeight: w.cfg.WorldHeight,
			VoxelSize:   w.cfg.VoxelSize,
			ChunkSize:   w.cfg.ChunkSize,
			CellSize:    w.cfg.CellSize,
			NoiseScale:  w.cfg.NoiseScale,
			Threshold:   w.cfg.Threshold,
		},
		Catalogs:  protocol.CatalogDigests{BuildingsDigest: w.catalogs.Buildings.Digest},
		Buildings: refs,
	}
	if req.Resp != nil {
		req.Resp <- JoinResponse{Welcome: welcome}
	}
}

var errBadIntent = errors.New("bad intent")

func (w *World) applyIntent(tick uint64, env IntentEnvelope) error {
	in := env.Intent
	switch in.Kind {
	case protocol.IntentStart:
		b, ok := w.buildings[in.BuildingID]
		if !ok {
			return fmt.Errorf("%w: unknown building %q", placement.ErrBadBuilding, in.BuildingID)
		}
		if err := w.session.Start(b); err != nil {
			return err
		}
		if w.hasCursor {
			_ = w.session.UpdatePreview(w.cursor)
		}
		return nil

	case protocol.IntentCursor:
		if in.Pos == nil {
			return fmt.Errorf("%w: CURSOR without pos", errBadIntent)
		}
		w.cursor = mgl64.Vec3{in.Pos[0], in.Pos[1], in.Pos[2]}
		w.hasCursor = true
		if w.session.State() == placement.Previewing {
			return w.session.UpdatePreview(w.cursor)
		}
		return nil

	case protocol.IntentRotate:
		if in.Dir != 1 && in.Dir != -1 {
			return fmt.Errorf("%w: ROTATE dir must be -1 or 1, got %d", errBadIntent, in.Dir)
		}
		return w.session.Rotate(in.Dir)

	case protocol.IntentConfirm:
		p, err := w.session.Confirm()
		if err != nil {
			return err
		}
		w.recordPlacement(tick, env.ClientID, p)
		return nil

	case protocol.IntentCancel:
		return w.session.Cancel()

	default:
		return fmt.Errorf("%w: unknown kind %q", errBadIntent, in.Kind)
	}
}

func (w *World) recordPlacement(tick uint64, clientID string, p placement.Placement) {
	w.placements = append(w.placements, PlacementRecord{Placement: p, Tick: tick})
	pos := [3]float64{p.Position.X(), p.Position.Y(), p.Position.Z()}
	fp := [2]int{p.Footprint.W, p.Footprint.H}
	w.log.Printf("placed %s %s at (%.2f, %.2f) rot=%d by %s", p.BuildingID, p.ID, pos[0], pos[2], p.Rotation, clientID)

	if w.placementLogger != nil {
		_ = w.placementLogger.WritePlacement(PlacementLogEntry{
			Tick:       tick,
			WorldID:    w.cfg.ID,
			ClientID:   clientID,
			ID:         p.ID,
			BuildingID: p.BuildingID,
			Pos:        pos,
			Rotation:   p.Rotation,
			Footprint:  fp,
			Budget:     w.ledger.Get(economy.StatBudget),
			Resources:  w.ledger.Get(economy.StatResources),
		})
	}
	w.broadcast(protocol.PlacedMsg{
		Type:            protocol.TypePlaced,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Placement: protocol.PlacementRec{
			ID:         p.ID,
			BuildingID: p.BuildingID,
			Pos:        pos,
			Rotation:   p.Rotation,
			Footprint:  fp,
		},
	})
}

// ErrorCode maps an intent failure to its protocol error code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, placement.ErrInsufficientFunds):
		return protocol.ErrNoResource
	case errors.Is(err, placement.ErrInvalidPlacement):
		return protocol.ErrBlocked
	case errors.Is(err, placement.ErrSessionActive), errors.Is(err, placement.ErrNotPreviewing):
		return protocol.ErrConflict
	case errors.Is(err, placement.ErrBadBuilding):
		return protocol.ErrInvalidTarget
	case errors.Is(err, errBadIntent):
		return protocol.ErrBadRequest
	default:
		return protocol.ErrInternal
	}
}

func (w *World) sendError(clientID string, err error) {
	c := w.clients[clientID]
	if c == nil {
		return
	}
	b, mErr := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            ErrorCode(err),
		Message:         err.Error(),
	})
	if mErr != nil {
		return
	}
	sendLatest(c.Out, b)
}

func (w *World) broadcast(v any) {
	if len(w.clients) == 0 {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		w.log.Printf("broadcast: %v", err)
		return
	}
	for _, c := range w.clients {
		sendLatest(c.Out, b)
	}
}

func (w *World) stateMsg(tick uint64) protocol.StateMsg {
	msg := protocol.StateMsg{
		Type:            protocol.TypeState,
		ProtocolVersion: protocol.Version,
		Tick:            tick,
		Session:         protocol.SessionView{State: w.session.State().String()},
	}
	if b, ok := w.session.Building(); ok {
		pv, _ := w.session.Preview()
		pos := [3]float64{pv.Position.X(), pv.Position.Y(), pv.Position.Z()}
		msg.Session.BuildingID = b.ID
		msg.Session.Pos = &pos
		msg.Session.Rotation = pv.Rotation * 90
		msg.Session.Valid = pv.Valid
		msg.Session.Color = pv.Color()
	}
	for _, s := range w.ledger.Stats() {
		msg.Stats = append(msg.Stats, protocol.StatView{Name: s.Name, Base: s.Base, Current: s.Current})
	}
	if msg.Stats == nil {
		msg.Stats = []protocol.StatView{}
	}
	if n, ok := w.notices.Current(); ok {
		msg.Notice = &protocol.NoticeView{Message: n.Message, RemainingMs: n.Remaining.Milliseconds()}
	}
	return msg
}

func (w *World) publishState(tick uint64) {
	if len(w.clients) == 0 {
		return
	}
	w.broadcast(w.stateMsg(tick))
}

// noticeSink routes session notices to the board and the notice log.
type noticeSink struct{ w *World }

func (n noticeSink) Show(msg string, d time.Duration) {
	w := n.w
	w.notices.Show(msg, d)
	w.log.Printf("notice: %s", msg)
	if w.noticeLogger != nil {
		_ = w.noticeLogger.WriteNotice(NoticeLogEntry{
			Tick:    w.tick.Load(),
			WorldID: w.cfg.ID,
			Message: msg,
		})
	}
}
