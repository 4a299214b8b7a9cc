package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"cityforge.ai/internal/protocol"
	"cityforge.ai/internal/sim/world"
)

const outQueue = 32

type Server struct {
	world *world.World
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, logger *log.Logger) *Server {
	s := &Server{
		world: w,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
	return s
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		clientID, out := s.handshake(conn)
		if clientID == "" {
			return
		}
		s.log.Printf("client %s connected from %s", clientID, r.RemoteAddr)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b, ok := <-out:
					if !ok {
						return
					}
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			in, code, reason := decodeIntent(msg)
			if code != "" {
				s.reject(out, code, reason)
				continue
			}
			select {
			case s.world.Inbox() <- world.IntentEnvelope{ClientID: clientID, Intent: in}:
			case <-ctx.Done():
			}
		}

		// Cleanup.
		s.world.Leave() <- clientID
		s.log.Printf("client %s disconnected", clientID)
	}
}

// decodeIntent validates a client frame. A non-empty code means the frame
// was rejected before reaching the world.
func decodeIntent(msg []byte) (in protocol.IntentMsg, code, reason string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return in, protocol.ErrProtoBadRequest, "malformed json"
	}
	if base.Type != protocol.TypeIntent {
		return in, protocol.ErrProtoBadRequest, "unexpected message type " + base.Type
	}
	if err := json.Unmarshal(msg, &in); err != nil {
		return in, protocol.ErrProtoBadRequest, "malformed INTENT"
	}
	if in.ProtocolVersion != protocol.Version {
		return in, protocol.ErrProtoBadRequest, "bad protocol_version"
	}
	return in, "", ""
}

func (s *Server) reject(out chan []byte, code, reason string) {
	b, err := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         reason,
	})
	if err != nil {
		return
	}
	select {
	case out <- b:
	default:
	}
}

func (s *Server) handshake(conn *websocket.Conn) (clientID string, out chan []byte) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", nil
	}
	if hello.ClientName == "" {
		hello.ClientName = "client"
	}

	return s.admit(conn, hello.ClientName)
}

// frameWriter is the part of *websocket.Conn the handshake writes through.
type frameWriter interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
}

// admit joins the world and sends WELCOME. A client that never received its
// WELCOME is removed from the world again.
func (s *Server) admit(conn frameWriter, name string) (clientID string, out chan []byte) {
	out = make(chan []byte, outQueue)
	respCh := make(chan world.JoinResponse, 1)
	s.world.Join() <- world.JoinRequest{
		Name: name,
		Out:  out,
		Resp: respCh,
	}
	resp := <-respCh

	if err := writeJSON(conn, resp.Welcome); err != nil {
		s.world.Leave() <- resp.Welcome.ClientID
		s.log.Printf("client %s: welcome failed: %v", resp.Welcome.ClientID, err)
		return "", nil
	}
	return resp.Welcome.ClientID, out
}

func writeJSON(conn frameWriter, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
