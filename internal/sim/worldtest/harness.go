package worldtest

import (
	"encoding/json"
	"io"
	"log"
	"testing"

	"cityforge.ai/internal/protocol"
	"cityforge.ai/internal/sim/catalogs"
	world "cityforge.ai/internal/sim/world"
)

// Harness is a small black-box test helper for driving a world via exported APIs:
// - Join() issues JoinRequest via StepOnce()
// - Step() issues INTENT envelopes via StepOnce()
// - Per-client Out channels carry STATE/PLACED/ERROR JSON
//
// It only uses exported APIs so tests can live outside the world package.
type Harness struct {
	T    *testing.T
	Cats *catalogs.Catalogs
	W    *world.World

	DefaultClientID string

	sessions map[string]*session
}

func NewHarness(t *testing.T, cfg world.WorldConfig, cats *catalogs.Catalogs, clientName string) *Harness {
	t.Helper()

	w, err := world.New(cfg, cats, log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("world.New: %v", err)
	}

	h := &Harness{
		T:        t,
		Cats:     cats,
		W:        w,
		sessions: map[string]*session{},
	}
	h.DefaultClientID = h.Join(clientName)
	return h
}

type session struct {
	ClientID  string
	Out       chan []byte
	lastState protocol.StateMsg
	placed    []protocol.PlacedMsg
	errors    []protocol.ErrorMsg
}

func (h *Harness) Join(clientName string) string {
	h.T.Helper()

	out := make(chan []byte, 64)
	resp := make(chan world.JoinResponse, 1)
	h.W.StepOnce([]world.JoinRequest{{
		Name: clientName,
		Out:  out,
		Resp: resp,
	}}, nil, nil)
	jr := <-resp
	if jr.Welcome.ClientID == "" {
		h.T.Fatalf("join returned empty client id")
	}
	s := &session{ClientID: jr.Welcome.ClientID, Out: out}
	h.sessions[s.ClientID] = s
	h.drainAll()
	return s.ClientID
}

func (h *Harness) LastState() protocol.StateMsg {
	return h.sessionFor(h.DefaultClientID).lastState
}

// Placed returns every PLACED message the default client has seen so far.
func (h *Harness) Placed() []protocol.PlacedMsg {
	return h.sessionFor(h.DefaultClientID).placed
}

// Errors returns every ERROR message the default client has seen so far.
func (h *Harness) Errors() []protocol.ErrorMsg {
	return h.sessionFor(h.DefaultClientID).errors
}

func (h *Harness) sessionFor(clientID string) *session {
	h.T.Helper()
	s := h.sessions[clientID]
	if s == nil {
		h.T.Fatalf("unknown client id: %q", clientID)
	}
	return s
}

// Step applies the intents for the default client in one tick.
func (h *Harness) Step(intents ...protocol.IntentMsg) protocol.StateMsg {
	h.T.Helper()
	envs := make([]world.IntentEnvelope, 0, len(intents))
	for _, in := range intents {
		in.Type = protocol.TypeIntent
		in.ProtocolVersion = protocol.Version
		envs = append(envs, world.IntentEnvelope{ClientID: h.DefaultClientID, Intent: in})
	}
	h.W.StepOnce(nil, nil, envs)
	h.drainAll()
	return h.LastState()
}

func Start(buildingID string) protocol.IntentMsg {
	return protocol.IntentMsg{Kind: protocol.IntentStart, BuildingID: buildingID}
}

func Cursor(x, y, z float64) protocol.IntentMsg {
	return protocol.IntentMsg{Kind: protocol.IntentCursor, Pos: &[3]float64{x, y, z}}
}

func Rotate(dir int) protocol.IntentMsg {
	return protocol.IntentMsg{Kind: protocol.IntentRotate, Dir: dir}
}

func Confirm() protocol.IntentMsg { return protocol.IntentMsg{Kind: protocol.IntentConfirm} }
func Cancel() protocol.IntentMsg  { return protocol.IntentMsg{Kind: protocol.IntentCancel} }

// StatValue finds a stat by name in a STATE message.
func StatValue(st protocol.StateMsg, name string) (float64, bool) {
	for _, s := range st.Stats {
		if s.Name == name {
			return s.Current, true
		}
	}
	return 0, false
}

func (h *Harness) drainAll() {
	for _, s := range h.sessions {
		h.drain(s)
	}
}

func (h *Harness) drain(s *session) {
	for {
		select {
		case b := <-s.Out:
			h.record(s, b)
		default:
			return
		}
	}
}

func (h *Harness) record(s *session, b []byte) {
	h.T.Helper()
	base, err := protocol.DecodeBase(b)
	if err != nil {
		h.T.Fatalf("decode base: %v", err)
	}
	switch base.Type {
	case protocol.TypeState:
		var st protocol.StateMsg
		if err := json.Unmarshal(b, &st); err != nil {
			h.T.Fatalf("unmarshal state: %v", err)
		}
		s.lastState = st
	case protocol.TypePlaced:
		var p protocol.PlacedMsg
		if err := json.Unmarshal(b, &p); err != nil {
			h.T.Fatalf("unmarshal placed: %v", err)
		}
		s.placed = append(s.placed, p)
	case protocol.TypeError:
		var e protocol.ErrorMsg
		if err := json.Unmarshal(b, &e); err != nil {
			h.T.Fatalf("unmarshal error: %v", err)
		}
		s.errors = append(s.errors, e)
	}
}
