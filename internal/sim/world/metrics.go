package world

import "voxels.dev/internal/protocol"

// WorldMetrics is a thread-safe read-only view of key world runtime signals.
// It is updated from the world loop goroutine and read from HTTP handlers/tests.
type WorldMetrics struct {
	Tick uint64 `json:"tick"`

	Clients         int `json:"clients"`
	SeenChunks      int `json:"seen_chunks"`
	QueuedChunks    int `json:"queued_chunks"`
	GeneratedChunks int `json:"generated_chunks"`
	ChunkRadius     int `json:"chunk_radius"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS         float64 `json:"step_ms"`
	SaturatedDrops uint64  `json:"saturated_drops"`
}

// StateReport is the body of the loopback admin state endpoint.
type StateReport struct {
	WorldID  string               `json:"world_id"`
	Tick     uint64               `json:"tick"`
	Params   protocol.WorldParams `json:"world_params"`
	Metrics  WorldMetrics         `json:"metrics"`
	Sessions int                  `json:"sessions"`
	Rejected uint64               `json:"rejected_handshakes"`
}

type QueueDepths struct {
	Inbox int `json:"inbox"`
	Join  int `json:"join"`
	Leave int `json:"leave"`
}

func (w *World) publishMetrics(tick uint64, stepMS float64) {
	w.metrics.Store(WorldMetrics{
		Tick:            tick,
		Clients:         len(w.players),
		SeenChunks:      w.stream.Seen(),
		QueuedChunks:    w.stream.Pending(),
		GeneratedChunks: w.stream.Generated(),
		ChunkRadius:     w.stream.Radius(),
		QueueDepths: QueueDepths{
			Inbox: len(w.inbox),
			Join:  len(w.join),
			Leave: len(w.leave),
		},
		StepMS:         stepMS,
		SaturatedDrops: w.saturated.Load(),
	})
}

func (w *World) Metrics() WorldMetrics {
	if w == nil {
		return WorldMetrics{}
	}
	v := w.metrics.Load()
	if v == nil {
		return WorldMetrics{}
	}
	m, ok := v.(WorldMetrics)
	if !ok {
		return WorldMetrics{}
	}
	return m
}
