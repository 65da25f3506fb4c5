package client

import (
	"io"
	"log"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxels.dev/internal/command"
	"voxels.dev/internal/protocol"
	"voxels.dev/internal/sim/world/stream"
	"voxels.dev/internal/sim/world/terrain/gen"
)

type OfflineConfig struct {
	Client Config
	Stream stream.Config
	Gen    gen.Config
}

// Offline is single-player mode: the client streams and generates its own chunks
// with the same controller and generator the server uses.
type Offline struct {
	state  *State
	gen    *gen.Generator
	stream *stream.Controller
	log    *log.Logger
}

func NewOffline(cfg OfflineConfig, logger *log.Logger) *Offline {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	o := &Offline{
		state:  NewState(cfg.Client, 1, logger),
		gen:    gen.New(cfg.Gen),
		stream: stream.NewController(cfg.Stream),
		log:    logger,
	}
	o.stream.DiscoverAt(o.state.Position())
	return o
}

func (o *Offline) State() *State              { return o.state }
func (o *Offline) Stream() *stream.Controller { return o.stream }

// Frame moves the local player, streams around it and meshes at most DrainPerTick new chunks.
func (o *Offline) Frame(dir mgl32.Vec3, dt time.Duration) []stream.ChunkCreated {
	if st, ok := o.state.Advance(dir, dt); ok && st.Crossed {
		o.stream.Discover(st.Chunk)
	}
	created := o.stream.Drain(o.gen)
	for _, ev := range created {
		o.state.Handle(protocol.ChunkMsg{Chunk: ev.Chunk})
	}
	return created
}

// Command runs a console command against the local controller.
func (o *Offline) Command(line string) error {
	if _, _, err := o.state.Command(line); err != nil {
		return err
	}
	cmd, _ := command.Parse(line)
	switch cmd.Kind {
	case command.KindChunkRadius:
		o.stream.SetRadius(cmd.Radius)
		o.stream.DiscoverAt(o.state.Position())
	case command.KindChunkDespawn:
		o.stream.Reset()
		o.stream.DiscoverAt(o.state.Position())
	}
	return nil
}
