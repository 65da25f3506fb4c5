// Package client holds the client side of a session: predicted movement, the lobby of other
// players, and the set of chunks that have been meshed for drawing.
package client

import (
	"io"
	"log"
	"math"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxels.dev/internal/command"
	"voxels.dev/internal/protocol"
	"voxels.dev/internal/sim/world/mesh"
	"voxels.dev/internal/sim/world/stream"
	"voxels.dev/internal/sim/world/terrain/store"
)

type Config struct {
	Speed     float32
	Spawn     mgl32.Vec3
	MeshScale float32
}

func (c *Config) applyDefaults() {
	if c.Speed <= 0 {
		c.Speed = 12
	}
	if c.MeshScale <= 0 {
		c.MeshScale = 1
	}
}

// Peer is another player as last reported by the server.
type Peer struct {
	ClientID  uint64
	EntityRef uint64
	Pos       mgl32.Vec3
}

// Step is the outcome of one predicted movement.
type Step struct {
	Msg     protocol.Movement
	Crossed bool
	Chunk   store.ChunkKey
}

// State is not safe for concurrent use; the client's frame loop owns it.
type State struct {
	cfg Config
	log *log.Logger

	clientID  uint64
	entityRef uint64
	pos       mgl32.Vec3

	lobby    map[uint64]*Peer
	rendered map[store.ChunkKey]*mesh.Mesh
	cubes    []mesh.Mesh

	history    *command.History
	duplicates int
	quads      int
}

func NewState(cfg Config, clientID uint64, logger *log.Logger) *State {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &State{
		cfg:      cfg,
		log:      logger,
		clientID: clientID,
		pos:      cfg.Spawn,
		lobby:    map[uint64]*Peer{},
		rendered: map[store.ChunkKey]*mesh.Mesh{},
		history:  command.NewHistory(0),
	}
}

func (s *State) ClientID() uint64          { return s.clientID }
func (s *State) Position() mgl32.Vec3      { return s.pos }
func (s *State) History() *command.History { return s.history }
func (s *State) Rendered() int             { return len(s.rendered) }
func (s *State) Duplicates() int           { return s.duplicates }
func (s *State) Quads() int                { return s.quads }
func (s *State) Cubes() []mesh.Mesh        { return s.cubes }

func (s *State) Chunk(k store.ChunkKey) *mesh.Mesh { return s.rendered[k] }

// Lobby returns the other players currently known.
func (s *State) Lobby() map[uint64]Peer {
	out := make(map[uint64]Peer, len(s.lobby))
	for id, p := range s.lobby {
		out[id] = *p
	}
	return out
}

// Advance predicts dt of movement along dir and returns the intent to send.
// A zero or non-finite direction predicts nothing and returns false.
func (s *State) Advance(dir mgl32.Vec3, dt time.Duration) (Step, bool) {
	for _, c := range dir {
		if math.IsNaN(float64(c)) || math.IsInf(float64(c), 0) {
			return Step{}, false
		}
	}
	l := dir.Len()
	if l == 0 {
		return Step{}, false
	}
	v := dir.Mul(1 / l)

	start := s.pos
	s.pos = start.Add(v.Mul(float32(dt.Seconds()) * s.cfg.Speed))

	st := Step{Msg: protocol.Movement{Direction: v}}
	st.Chunk, st.Crossed = stream.Crossing(stream.Move{Start: start, End: s.pos})
	return st, true
}

// Handle applies one server message. Messages about unknown players are ignored.
func (s *State) Handle(m protocol.Message) {
	switch msg := m.(type) {
	case protocol.PositionSync:
		if msg.ClientID == s.clientID {
			s.pos = msg.Position
			return
		}
		if p, ok := s.lobby[msg.ClientID]; ok {
			p.Pos = msg.Position
		}
	case protocol.PlayerCreate:
		if msg.ClientID == s.clientID {
			s.entityRef = msg.EntityRef
			s.pos = msg.Translation
			return
		}
		s.lobby[msg.ClientID] = &Peer{ClientID: msg.ClientID, EntityRef: msg.EntityRef, Pos: msg.Translation}
	case protocol.PlayerRemove:
		delete(s.lobby, msg.ClientID)
	case protocol.ChunkMsg:
		s.addChunk(&msg.Chunk)
	}
}

// addChunk meshes a chunk the first time its key is seen.
func (s *State) addChunk(ch *store.Chunk) bool {
	if _, ok := s.rendered[ch.Key]; ok {
		s.duplicates++
		return false
	}
	m := mesh.Build(ch, s.cfg.MeshScale)
	s.rendered[ch.Key] = &m
	s.quads += m.Quads()
	return true
}

// ClearChunks drops every rendered chunk mesh.
func (s *State) ClearChunks() {
	clear(s.rendered)
	s.quads = 0
}

// Command parses line and applies its local effect. It returns the message to
// forward to the server, if any.
func (s *State) Command(line string) (protocol.Command, bool, error) {
	cmd, err := command.Parse(line)
	if err != nil {
		return protocol.Command{}, false, err
	}
	s.history.Push(cmd.Line)
	switch cmd.Kind {
	case command.KindChunkDespawn:
		s.ClearChunks()
	case command.KindBlock:
		origin := mgl32.Vec3{
			float32(math.Floor(float64(s.pos.X()))),
			float32(math.Floor(float64(s.pos.Y()))),
			float32(math.Floor(float64(s.pos.Z()))),
		}
		s.cubes = append(s.cubes, mesh.BuildBlock(cmd.Element, origin, s.cfg.MeshScale))
		s.log.Printf("placed %s cube at %v", cmd.Element, origin)
	}
	if !cmd.Replicated() {
		return protocol.Command{}, false, nil
	}
	return protocol.Command{Line: cmd.Line}, true, nil
}
