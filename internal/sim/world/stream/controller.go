// Package stream decides which chunks exist around a moving reference point and
// meters how many of them are generated per tick.
package stream

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxels.dev/internal/sim/world/terrain/store"
)

// Generator produces the block content of one chunk.
type Generator interface {
	Generate(key store.ChunkKey) store.Chunk
}

type Config struct {
	Radius       int // chunks, measured in the XZ plane
	MaxRadius    int // SetRadius clamps to this
	Layers       int // vertical chunk layers, Y = 0..Layers-1
	DrainPerTick int
}

func (c *Config) applyDefaults() {
	if c.MaxRadius <= 0 {
		c.MaxRadius = 32
	}
	c.Radius = clampRadius(c.Radius, c.MaxRadius)
	if c.Layers <= 0 {
		c.Layers = 16
	}
	if c.DrainPerTick <= 0 {
		c.DrainPerTick = 3
	}
}

// ChunkCreated is raised for every chunk the controller drains. Replay is set when the key was
// generated earlier in the session and rescheduled after a Reset; the stored chunk is reused.
type ChunkCreated struct {
	Chunk        store.Chunk
	ID           uint64
	RegistrySize int
	Replay       bool
}

type generated struct {
	chunk store.Chunk
	id    uint64
}

// Controller owns the seen-set, the load queue and the chunks generated so far.
// It is not safe for concurrent use; the owning tick loop is the only caller.
type Controller struct {
	cfg Config

	seen  *store.Registry
	queue store.Queue

	generated map[store.ChunkKey]*generated
	order     []store.ChunkKey

	nextID uint64
}

func NewController(cfg Config) *Controller {
	cfg.applyDefaults()
	return &Controller{
		cfg:       cfg,
		seen:      store.NewRegistry(),
		generated: map[store.ChunkKey]*generated{},
	}
}

func (c *Controller) Radius() int { return c.cfg.Radius }

// SetRadius applies r clamped to 0..MaxRadius. Discovery cost grows with r², so the
// ceiling bounds the work a single rediscover can add to a tick.
func (c *Controller) SetRadius(r int) {
	c.cfg.Radius = clampRadius(r, c.cfg.MaxRadius)
}

func (c *Controller) MaxRadius() int { return c.cfg.MaxRadius }

func clampRadius(r, max int) int {
	if r < 0 {
		return 0
	}
	if r > max {
		return max
	}
	return r
}

func (c *Controller) Layers() int { return c.cfg.Layers }

func (c *Controller) DrainPerTick() int { return c.cfg.DrainPerTick }

// Seen is the number of keys ever scheduled.
func (c *Controller) Seen() int { return c.seen.Len() }

// Pending is the number of keys waiting in the load queue.
func (c *Controller) Pending() int { return c.queue.Len() }

// Generated is the number of chunks produced this session.
func (c *Controller) Generated() int { return len(c.generated) }

// Discover schedules every unseen key around center and returns how many were enqueued.
func (c *Controller) Discover(center store.ChunkKey) int {
	n := 0
	for _, k := range Surrounding(center, c.cfg.Radius, c.cfg.Layers) {
		if !c.seen.Add(k) {
			continue
		}
		c.queue.Push(k)
		n++
	}
	return n
}

// DiscoverAt is Discover for a world-space position (initial spawn).
func (c *Controller) DiscoverAt(pos mgl32.Vec3) int {
	return c.Discover(ChunkOf(pos))
}

// Drain pops at most DrainPerTick keys and generates the ones not generated yet.
func (c *Controller) Drain(gen Generator) []ChunkCreated {
	var out []ChunkCreated
	for popped := 0; popped < c.cfg.DrainPerTick; popped++ {
		k, ok := c.queue.Pop()
		if !ok {
			break
		}
		if g, done := c.generated[k]; done {
			out = append(out, ChunkCreated{Chunk: g.chunk, ID: g.id, RegistrySize: c.seen.Len(), Replay: true})
			continue
		}
		c.nextID++
		g := &generated{chunk: gen.Generate(k), id: c.nextID}
		c.generated[k] = g
		c.order = append(c.order, k)
		out = append(out, ChunkCreated{Chunk: g.chunk, ID: g.id, RegistrySize: c.seen.Len()})
	}
	return out
}

// Each visits every generated chunk in generation order.
func (c *Controller) Each(fn func(ChunkCreated)) {
	for _, k := range c.order {
		g := c.generated[k]
		fn(ChunkCreated{Chunk: g.chunk, ID: g.id, RegistrySize: c.seen.Len(), Replay: true})
	}
}

// Reset forgets every scheduled key so the surroundings are rediscovered from scratch.
// Generated chunks are kept and replayed when their keys are drained again.
func (c *Controller) Reset() {
	c.seen.Reset()
	c.queue.Reset()
}

// Surrounding returns the disc dx²+dz² <= radius² around center's column,
// expanded over every vertical layer.
func Surrounding(center store.ChunkKey, radius, layers int) []store.ChunkKey {
	if radius < 0 || layers <= 0 {
		return nil
	}
	r2 := radius * radius
	var out []store.ChunkKey
	for dx := -radius; dx <= radius; dx++ {
		for dz := -radius; dz <= radius; dz++ {
			if dx*dx+dz*dz > r2 {
				continue
			}
			for y := 0; y < layers; y++ {
				out = append(out, store.ChunkKey{X: center.X + dx, Y: y, Z: center.Z + dz})
			}
		}
	}
	return out
}
