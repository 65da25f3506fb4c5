package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"voxels.dev/internal/protocol"
	"voxels.dev/internal/sim/world"
)

const (
	handshakeTimeout = 5 * time.Second
	writeTimeout     = 5 * time.Second
	pongWait         = 60 * time.Second
	pingPeriod       = 20 * time.Second
	maxFrameBytes    = 64 * 1024
)

type ServerConfig struct {
	ProtocolVersion string
	ProtocolID      uint64
	Channels        protocol.ChannelSet
	BytesPerSecond  int
	MaxClients      int // 0 = unlimited
}

type Server struct {
	world *world.World
	cfg   ServerConfig
	log   *log.Logger

	clients  atomic.Int64
	rejected atomic.Uint64
	dropped  atomic.Uint64

	upgrader websocket.Upgrader
}

func NewServer(w *world.World, cfg ServerConfig, logger *log.Logger) *Server {
	if cfg.ProtocolVersion == "" {
		cfg.ProtocolVersion = protocol.Version
	}
	if cfg.ProtocolID == 0 {
		cfg.ProtocolID = protocol.DefaultID
	}
	if cfg.Channels == (protocol.ChannelSet{}) {
		cfg.Channels = protocol.DefaultChannelSet()
	}
	return &Server{
		world: w,
		cfg:   cfg,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

// Clients is the number of sessions past the handshake.
func (s *Server) Clients() int { return int(s.clients.Load()) }

// Rejected counts handshakes refused with an ERROR message.
func (s *Server) Rejected() uint64 { return s.rejected.Load() }

// Dropped counts inbound frames discarded as malformed or on a server-only channel.
func (s *Server) Dropped() uint64 { return s.dropped.Load() }

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		conn.SetReadLimit(maxFrameBytes)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		out := NewOutbox(s.cfg.Channels, s.cfg.BytesPerSecond)
		defer out.Close()

		clientID, ok := s.handshake(ctx, conn, out)
		if !ok {
			return
		}
		defer s.clients.Add(-1)

		// Writer goroutine.
		go func() {
			defer cancel()
			_ = out.Run(ctx, func(b []byte) error {
				_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				return conn.WriteMessage(websocket.BinaryMessage, b)
			})
		}()
		go s.keepalive(ctx, conn)

		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		// Reader loop.
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(pongWait))
			if mt != websocket.BinaryMessage {
				continue
			}
			m, ok := decodeClientFrame(msg)
			if !ok {
				s.dropped.Add(1)
				continue
			}
			select {
			case s.world.Inbox() <- world.Envelope{ClientID: clientID, Msg: m}:
			case <-ctx.Done():
			case <-s.world.Done():
			}
		}

		s.leave(clientID)
	}
}

// leave hands clientID back to the world, or gives up if the tick loop has already stopped.
func (s *Server) leave(clientID uint64) {
	select {
	case s.world.Leave() <- clientID:
	case <-s.world.Done():
	}
}

// decodeClientFrame accepts only well-formed frames on client -> server channels.
func decodeClientFrame(b []byte) (protocol.Message, bool) {
	f, err := protocol.DecodeFrame(b)
	if err != nil || !f.Channel.FromClient() {
		return nil, false
	}
	m, err := protocol.Decode(f)
	if err != nil {
		return nil, false
	}
	return m, true
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn, out *Outbox) (uint64, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	mt, msg, err := conn.ReadMessage()
	if err != nil {
		return 0, false
	}
	if mt != websocket.TextMessage {
		s.reject(conn, protocol.ErrProtoBadRequest, "expected HELLO text frame")
		return 0, false
	}
	hello, err := protocol.ParseHello(msg)
	if err != nil {
		s.reject(conn, protocol.ErrProtoBadRequest, err.Error())
		return 0, false
	}
	if code := protocol.CheckHello(hello, s.cfg.ProtocolVersion, s.cfg.ProtocolID); code != "" {
		s.reject(conn, code, "protocol mismatch")
		return 0, false
	}
	if n := s.clients.Add(1); s.cfg.MaxClients > 0 && n > int64(s.cfg.MaxClients) {
		s.clients.Add(-1)
		s.reject(conn, protocol.ErrServerFull, "server full")
		return 0, false
	}
	if hello.Name == "" {
		hello.Name = "player"
	}

	sessionID := uuid.NewString()
	respCh := make(chan world.JoinResponse, 1)
	select {
	case s.world.Join() <- world.JoinRequest{Name: hello.Name, SessionID: sessionID, Out: out, Resp: respCh}:
	case <-ctx.Done():
		s.clients.Add(-1)
		return 0, false
	case <-s.world.Done():
		s.clients.Add(-1)
		s.reject(conn, protocol.ErrInternal, "world stopped")
		return 0, false
	}
	var resp world.JoinResponse
	select {
	case resp = <-respCh:
	case <-ctx.Done():
		s.clients.Add(-1)
		return 0, false
	case <-s.world.Done():
		s.clients.Add(-1)
		return 0, false
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: s.cfg.ProtocolVersion,
		ClientID:        resp.ClientID,
		SessionID:       sessionID,
		WorldParams:     s.world.Params(),
		Channels:        s.cfg.Channels.Params(),
	}
	if err := writeJSON(conn, welcome); err != nil {
		s.clients.Add(-1)
		s.leave(resp.ClientID)
		return 0, false
	}
	if s.log != nil {
		s.log.Printf("session %s: client %d (%s) connected", sessionID, resp.ClientID, hello.Name)
	}
	return resp.ClientID, true
}

func (s *Server) reject(conn *websocket.Conn, code, message string) {
	s.rejected.Add(1)
	_ = writeJSON(conn, protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: s.cfg.ProtocolVersion,
		Code:            code,
		Message:         message,
	})
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, code), time.Now().Add(time.Second))
}

func (s *Server) keepalive(ctx context.Context, conn *websocket.Conn) {
	t := time.NewTicker(pingPeriod)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				return
			}
		}
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}
