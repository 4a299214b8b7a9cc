package main

import (
	"encoding/json"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"time"

	"github.com/gorilla/websocket"

	"cityforge.ai/internal/protocol"
)

func main() {
	var (
		url   = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name  = flag.String("name", "bot", "client name")
		every = flag.Uint64("every", 40, "ticks between placement attempts")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var p *planner
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME client_id=%s tick_rate=%d seed=%d buildings=%d", w.ClientID, w.WorldParams.TickRateHz, w.WorldParams.Seed, len(w.Buildings))
			p = newPlanner(w, *every, rand.New(rand.NewSource(time.Now().UnixNano())))

		case protocol.TypeState:
			if p == nil {
				continue
			}
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			for _, in := range p.next(st) {
				_ = conn.WriteJSON(in)
			}

		case protocol.TypePlaced:
			var pm protocol.PlacedMsg
			if err := json.Unmarshal(msg, &pm); err == nil {
				logger.Printf("PLACED %s %s at %v", pm.Placement.BuildingID, pm.Placement.ID, pm.Placement.Pos)
			}

		case protocol.TypeError:
			var em protocol.ErrorMsg
			if err := json.Unmarshal(msg, &em); err == nil {
				logger.Printf("ERROR %s: %s", em.Code, em.Message)
			}
		}
	}
}

// planner picks a random building and cursor every few ticks, confirms
// valid previews and gives up after a few invalid ones.
type planner struct {
	buildings []protocol.BuildingRef
	extentX   float64
	extentZ   float64
	every     uint64
	maxTries  int

	rng   *rand.Rand
	tries int
}

func newPlanner(w protocol.WelcomeMsg, every uint64, rng *rand.Rand) *planner {
	if every == 0 {
		every = 1
	}
	return &planner{
		buildings: w.Buildings,
		extentX:   float64(w.WorldParams.WorldWidth) * w.WorldParams.VoxelSize,
		extentZ:   float64(w.WorldParams.WorldHeight) * w.WorldParams.VoxelSize,
		every:     every,
		maxTries:  5,
		rng:       rng,
	}
}

func (p *planner) next(st protocol.StateMsg) []protocol.IntentMsg {
	switch st.Session.State {
	case "IDLE":
		if len(p.buildings) == 0 || st.Tick%p.every != 0 {
			return nil
		}
		p.tries = 0
		b := p.buildings[p.rng.Intn(len(p.buildings))]
		return []protocol.IntentMsg{intent(protocol.IntentStart, b.ID), p.cursor()}

	case "PREVIEWING":
		if st.Session.Valid {
			return []protocol.IntentMsg{intent(protocol.IntentConfirm, "")}
		}
		p.tries++
		if p.tries >= p.maxTries {
			return []protocol.IntentMsg{intent(protocol.IntentCancel, "")}
		}
		return []protocol.IntentMsg{p.cursor()}
	}
	return nil
}

func (p *planner) cursor() protocol.IntentMsg {
	in := intent(protocol.IntentCursor, "")
	in.Pos = &[3]float64{p.rng.Float64() * p.extentX, 0, p.rng.Float64() * p.extentZ}
	return in
}

func intent(kind, buildingID string) protocol.IntentMsg {
	return protocol.IntentMsg{
		Type:            protocol.TypeIntent,
		ProtocolVersion: protocol.Version,
		Kind:            kind,
		BuildingID:      buildingID,
	}
}
