package world

import (
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxels.dev/internal/protocol"
	"voxels.dev/internal/sim/world/logic/rates"
	"voxels.dev/internal/sim/world/stream"
	"voxels.dev/internal/sim/world/terrain/gen"
	"voxels.dev/internal/sim/world/terrain/store"
)

type WorldConfig struct {
	TickRateHz   int
	PlayerSpeed  float32
	Spawn        mgl32.Vec3
	SyncInterval time.Duration

	Stream       stream.Config
	Gen          gen.Config
	CommandLimit rates.Window
}

// Sender is the outbound side of one client connection. Send must not block;
// it returns protocol.ErrChannelSaturated when the frame's channel is over budget.
type Sender interface {
	Send(f protocol.Frame) error
}

type JoinRequest struct {
	Name      string
	SessionID string
	Out       Sender
	Resp      chan JoinResponse
}

type JoinResponse struct {
	ClientID uint64
	Spawn    mgl32.Vec3
}

// Envelope is one decoded client message tagged with the session's client id.
type Envelope struct {
	ClientID uint64
	Msg      protocol.Message
}

type Player struct {
	ClientID  uint64
	Name      string
	SessionID string
	EntityRef uint64
	Pos       mgl32.Vec3

	out Sender

	cmdWindowStart uint64
	cmdCount       int
}

// World is a single-threaded authoritative simulation of the streamed world.
// All state must be accessed only from the world loop goroutine.
type World struct {
	cfg WorldConfig
	log *log.Logger

	tick atomic.Uint64

	gen    *gen.Generator
	stream *stream.Controller
	layers int
	radius atomic.Int64 // mirror of stream.Radius for readers outside the loop

	players map[uint64]*Player

	inbox chan Envelope
	join  chan JoinRequest
	leave chan uint64
	stop  chan struct{}
	done  chan struct{} // closed when Run returns
	ended sync.Once

	nextClientID uint64
	nextEntity   uint64
	sinceSync    time.Duration

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	chunkLogger   ChunkLogger
	sessionLogger SessionLogger

	saturated atomic.Uint64
	metrics   atomic.Value
}

type ChunkLogger interface {
	WriteChunk(entry ChunkLogEntry) error
}

type SessionLogger interface {
	WriteSession(entry SessionLogEntry) error
}

type ChunkLogEntry struct {
	Tick         uint64 `json:"tick"`
	Key          [3]int `json:"key"`
	ID           uint64 `json:"id"`
	RegistrySize int    `json:"registry_size"`
	Solid        int    `json:"solid"`
	Digest       string `json:"digest"`
	Replay       bool   `json:"replay,omitempty"`
}

type SessionLogEntry struct {
	Tick      uint64 `json:"tick"`
	ClientID  uint64 `json:"client_id"`
	SessionID string `json:"session_id,omitempty"`
	Event     string `json:"event"` // JOIN, LEAVE or COMMAND
	Name      string `json:"name,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

func (c *WorldConfig) applyDefaults() {
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.PlayerSpeed <= 0 {
		c.PlayerSpeed = 12
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = 3 * time.Second
	}
}

func New(cfg WorldConfig, logger *log.Logger) *World {
	cfg.applyDefaults()
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	sc := stream.NewController(cfg.Stream)
	w := &World{
		cfg:     cfg,
		log:     logger,
		gen:     gen.New(cfg.Gen),
		stream:  sc,
		layers:  sc.Layers(),
		players: map[uint64]*Player{},
		inbox:   make(chan Envelope, 1024),
		join:    make(chan JoinRequest, 64),
		leave:   make(chan uint64, 64),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	w.radius.Store(int64(sc.Radius()))
	return w
}

func (w *World) SetChunkLogger(l ChunkLogger)     { w.chunkLogger = l }
func (w *World) SetSessionLogger(l SessionLogger) { w.sessionLogger = l }

func (w *World) Config() WorldConfig { return w.cfg }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// TickDelta is the fixed simulated time of one tick.
func (w *World) TickDelta() time.Duration {
	return time.Second / time.Duration(w.cfg.TickRateHz)
}

// Params describes the world to a joining client.
func (w *World) Params() protocol.WorldParams {
	return protocol.WorldParams{
		TickRateHz:     w.cfg.TickRateHz,
		ChunkSize:      [3]int{store.Size, store.Size, store.Size},
		ChunkRadius:    int(w.radius.Load()),
		VerticalChunks: w.layers,
		Seed:           w.gen.Config().Seed,
		PlayerSpeed:    w.cfg.PlayerSpeed,
		Spawn:          [3]float32(w.cfg.Spawn),
	}
}
