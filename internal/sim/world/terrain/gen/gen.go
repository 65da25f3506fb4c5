package gen

import (
	"fmt"

	perlin "github.com/aquilax/go-perlin"

	"voxels.dev/internal/sim/world/terrain/store"
)

// Bands are the adjusted-height thresholds used to pick an element.
// A block is Air above AirAbove, Grass above GrassAbove, Dirt above DirtAbove and Stone otherwise.
type Bands struct {
	AirAbove   float64 `yaml:"air_above"`
	GrassAbove float64 `yaml:"grass_above"`
	DirtAbove  float64 `yaml:"dirt_above"`
}

func DefaultBands() Bands {
	return Bands{AirAbove: 75, GrassAbove: 50, DirtAbove: 5}
}

func (b Bands) Validate() error {
	if !(b.AirAbove > b.GrassAbove && b.GrassAbove > b.DirtAbove) {
		return fmt.Errorf("bands must be strictly decreasing: air=%v grass=%v dirt=%v", b.AirAbove, b.GrassAbove, b.DirtAbove)
	}
	return nil
}

type Config struct {
	Seed      int64
	Scale     float64
	Amplitude float64
	Bands     Bands
}

func (c *Config) applyDefaults() {
	if c.Scale == 0 {
		c.Scale = 0.1
	}
	if c.Amplitude == 0 {
		c.Amplitude = 10
	}
	if c.Bands == (Bands{}) {
		c.Bands = DefaultBands()
	}
}

// Generator fills chunks from coherent 3D noise. The noise table is built once from the seed
// and only read afterwards, so the same key always yields the same chunk.
type Generator struct {
	cfg   Config
	noise *perlin.Perlin
}

const (
	noiseAlpha  = 2
	noiseBeta   = 2
	noiseOctave = 3
)

func New(cfg Config) *Generator {
	cfg.applyDefaults()
	return &Generator{
		cfg:   cfg,
		noise: perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctave, cfg.Seed),
	}
}

func (g *Generator) Config() Config { return g.cfg }

// Sample returns the noise value at a world block position.
func (g *Generator) Sample(wx, wy, wz int) float64 {
	s := g.cfg.Scale
	return g.noise.Noise3D(float64(wx)*s, float64(wy)*s, float64(wz)*s)
}

func (g *Generator) Generate(key store.ChunkKey) store.Chunk {
	ch := store.Chunk{Key: key}
	ox, oy, oz := ch.Origin()
	for dy := 0; dy < store.Size; dy++ {
		wy := oy + dy
		for dz := 0; dz < store.Size; dz++ {
			wz := oz + dz
			for dx := 0; dx < store.Size; dx++ {
				wx := ox + dx
				h := float64(wy) + g.Sample(wx, wy, wz)*g.cfg.Amplitude
				ch.Blocks[store.Index(dx, dy, dz)] = store.Block{Element: Classify(h, g.cfg.Bands)}
			}
		}
	}
	return ch
}

func Classify(adjusted float64, b Bands) store.Element {
	switch {
	case adjusted > b.AirAbove:
		return store.Air
	case adjusted > b.GrassAbove:
		return store.Grass
	case adjusted > b.DirtAbove:
		return store.Dirt
	default:
		return store.Stone
	}
}
