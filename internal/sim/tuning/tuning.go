package tuning

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"voxels.dev/internal/command"
	"voxels.dev/internal/protocol"
	"voxels.dev/internal/sim/world/terrain/gen"
)

const MiB = 1 << 20

type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`
	ProtocolID      uint64 `yaml:"protocol_id"`

	TickRateHz     int       `yaml:"tick_rate_hz"`
	ChunkRadius    int       `yaml:"chunk_radius"`
	MaxChunkRadius int       `yaml:"max_chunk_radius"` // ceiling for /chunk radius
	VerticalChunks int       `yaml:"vertical_chunks"`
	DrainPerTick   int       `yaml:"drain_per_tick"`
	PlayerSpeed    float32   `yaml:"player_speed"`
	Spawn          []float32 `yaml:"spawn"`
	SyncIntervalMs int       `yaml:"sync_interval_ms"`
	BytesPerTick   int       `yaml:"bytes_per_tick"`

	WorldGen   WorldGen                 `yaml:"worldgen"`
	Channels   map[string]ChannelTuning `yaml:"channels"`
	RateLimits RateLimits               `yaml:"rate_limits"`
}

type RateLimits struct {
	CommandWindowTicks int `yaml:"command_window_ticks"`
	CommandMax         int `yaml:"command_max"`
}

type WorldGen struct {
	Seed      int64     `yaml:"seed"`
	Scale     float64   `yaml:"scale"`
	Amplitude float64   `yaml:"amplitude"`
	Bands     gen.Bands `yaml:"bands"`
}

type ChannelTuning struct {
	ResendMs       int `yaml:"resend_ms"`
	MaxMemoryBytes int `yaml:"max_memory_bytes"`
}

func (c ChannelTuning) ResendDelay() time.Duration {
	return time.Duration(c.ResendMs) * time.Millisecond
}

func Defaults() Tuning {
	return Tuning{
		ProtocolVersion: "1.0",
		ProtocolID:      7,
		TickRateHz:      20,
		ChunkRadius:     3,
		MaxChunkRadius:  32,
		VerticalChunks:  16,
		DrainPerTick:    3,
		PlayerSpeed:     12,
		Spawn:           []float32{0, 74, 0},
		SyncIntervalMs:  3000,
		BytesPerTick:    1 * MiB,
		WorldGen: WorldGen{
			Seed:      1,
			Scale:     0.1,
			Amplitude: 10,
			Bands:     gen.DefaultBands(),
		},
		Channels: DefaultChannels(),
		RateLimits: RateLimits{
			CommandWindowTicks: 20,
			CommandMax:         5,
		},
	}
}

func DefaultChannels() map[string]ChannelTuning {
	return map[string]ChannelTuning{
		"input":           {ResendMs: 0, MaxMemoryBytes: 5 * MiB},
		"command":         {ResendMs: 0, MaxMemoryBytes: 5 * MiB},
		"sync":            {ResendMs: 0, MaxMemoryBytes: 10 * MiB},
		"server_messages": {ResendMs: 200, MaxMemoryBytes: 10 * MiB},
		"chunks":          {ResendMs: 200, MaxMemoryBytes: 10 * MiB},
	}
}

// Load reads a tuning file; fields left out of the file keep their defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	return Parse(raw)
}

func Parse(raw []byte) (Tuning, error) {
	t := Defaults()
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	// Channels listed in the file are merged over the defaults per name.
	merged := DefaultChannels()
	for name, c := range t.Channels {
		merged[name] = c
	}
	t.Channels = merged
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	var errs []error
	if t.ProtocolVersion == "" {
		errs = append(errs, errors.New("protocol_version is required"))
	}
	if t.TickRateHz <= 0 {
		errs = append(errs, fmt.Errorf("tick_rate_hz must be > 0 (got %d)", t.TickRateHz))
	}
	if t.ChunkRadius < 0 {
		errs = append(errs, fmt.Errorf("chunk_radius must be >= 0 (got %d)", t.ChunkRadius))
	}
	if t.MaxChunkRadius <= 0 || t.MaxChunkRadius > command.MaxRadius {
		errs = append(errs, fmt.Errorf("max_chunk_radius must be in 1..%d (got %d)", command.MaxRadius, t.MaxChunkRadius))
	} else if t.ChunkRadius > t.MaxChunkRadius {
		errs = append(errs, fmt.Errorf("chunk_radius %d exceeds max_chunk_radius %d", t.ChunkRadius, t.MaxChunkRadius))
	}
	if t.VerticalChunks <= 0 {
		errs = append(errs, fmt.Errorf("vertical_chunks must be > 0 (got %d)", t.VerticalChunks))
	}
	if t.DrainPerTick <= 0 {
		errs = append(errs, fmt.Errorf("drain_per_tick must be > 0 (got %d)", t.DrainPerTick))
	}
	if t.PlayerSpeed <= 0 {
		errs = append(errs, fmt.Errorf("player_speed must be > 0 (got %v)", t.PlayerSpeed))
	}
	if len(t.Spawn) != 3 {
		errs = append(errs, fmt.Errorf("spawn must have 3 components (got %d)", len(t.Spawn)))
	}
	if t.SyncIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("sync_interval_ms must be > 0 (got %d)", t.SyncIntervalMs))
	}
	if t.BytesPerTick <= 0 {
		errs = append(errs, fmt.Errorf("bytes_per_tick must be > 0 (got %d)", t.BytesPerTick))
	}
	if t.WorldGen.Scale <= 0 {
		errs = append(errs, fmt.Errorf("worldgen.scale must be > 0 (got %v)", t.WorldGen.Scale))
	}
	if err := t.WorldGen.Bands.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("worldgen.bands: %w", err))
	}
	if t.RateLimits.CommandWindowTicks < 0 || t.RateLimits.CommandMax < 0 {
		errs = append(errs, errors.New("rate_limits must be >= 0"))
	}
	for name, c := range t.Channels {
		if _, ok := protocol.ChannelByName(name); !ok {
			errs = append(errs, fmt.Errorf("channels.%s: unknown channel", name))
		}
		if c.ResendMs < 0 {
			errs = append(errs, fmt.Errorf("channels.%s.resend_ms must be >= 0", name))
		}
		if c.MaxMemoryBytes <= 0 {
			errs = append(errs, fmt.Errorf("channels.%s.max_memory_bytes must be > 0", name))
		}
	}
	return errors.Join(errs...)
}

func (t Tuning) TickDuration() time.Duration {
	return time.Second / time.Duration(t.TickRateHz)
}

func (t Tuning) SyncInterval() time.Duration {
	return time.Duration(t.SyncIntervalMs) * time.Millisecond
}

// BytesPerSecond is the connection-wide send budget.
func (t Tuning) BytesPerSecond() int {
	return t.BytesPerTick * t.TickRateHz
}

func (t Tuning) GenConfig() gen.Config {
	return gen.Config{
		Seed:      t.WorldGen.Seed,
		Scale:     t.WorldGen.Scale,
		Amplitude: t.WorldGen.Amplitude,
		Bands:     t.WorldGen.Bands,
	}
}

// ChannelSet maps the named channel budgets onto protocol channel ids.
func (t Tuning) ChannelSet() protocol.ChannelSet {
	set := protocol.DefaultChannelSet()
	for name, c := range t.Channels {
		ch, ok := protocol.ChannelByName(name)
		if !ok {
			continue
		}
		set[ch] = protocol.ChannelConfig{ResendDelay: c.ResendDelay(), MaxMemoryBytes: c.MaxMemoryBytes}
	}
	return set
}
