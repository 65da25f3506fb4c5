package world

import (
	"encoding/hex"
	"errors"
	"sort"
	"time"

	"voxels.dev/internal/protocol"
	"voxels.dev/internal/sim/world/stream"
)

func (w *World) step(joins []JoinRequest, leaves []uint64, inbox []Envelope) {
	stepStart := time.Now()
	nowTick := w.tick.Load()

	// Leaves before joins so a reconnect in the same tick sees a clean lobby.
	for _, id := range leaves {
		w.handleLeave(nowTick, id)
	}
	for _, req := range joins {
		resp := w.handleJoin(nowTick, req)
		if req.Resp != nil {
			req.Resp <- resp
		}
	}

	// Client messages in server receive order.
	for _, env := range inbox {
		p := w.players[env.ClientID]
		if p == nil {
			continue
		}
		switch m := env.Msg.(type) {
		case protocol.Movement:
			w.applyMovement(p, m.Direction)
		case protocol.InputFlags:
			w.applyMovement(p, m.Direction())
		case protocol.Command:
			w.applyCommand(nowTick, p, m.Line)
		}
	}

	for _, ev := range w.stream.Drain(w.gen) {
		w.publishChunk(nowTick, ev)
	}

	w.sinceSync += w.TickDelta()
	if w.sinceSync >= w.cfg.SyncInterval {
		w.sinceSync -= w.cfg.SyncInterval
		w.broadcastPositions()
	}

	stepMS := float64(time.Since(stepStart).Microseconds()) / 1000.0
	nextTick := w.tick.Add(1)
	w.publishMetrics(nextTick, stepMS)
}

func (w *World) publishChunk(nowTick uint64, ev stream.ChunkCreated) {
	f := protocol.Encode(protocol.ChunkMsg{Chunk: ev.Chunk})
	for _, p := range w.sortedPlayers() {
		w.send(p, f)
	}
	if w.chunkLogger != nil {
		d := ev.Chunk.Digest()
		k := ev.Chunk.Key
		_ = w.chunkLogger.WriteChunk(ChunkLogEntry{
			Tick:         nowTick,
			Key:          [3]int{k.X, k.Y, k.Z},
			ID:           ev.ID,
			RegistrySize: ev.RegistrySize,
			Solid:        ev.Chunk.SolidCount(),
			Digest:       hex.EncodeToString(d[:]),
			Replay:       ev.Replay,
		})
	}
}

func (w *World) broadcastPositions() {
	players := w.sortedPlayers()
	for _, src := range players {
		f := protocol.Encode(protocol.PositionSync{ClientID: src.ClientID, Position: src.Pos})
		for _, dst := range players {
			w.send(dst, f)
		}
	}
}

// send never blocks; a saturated channel drops the frame.
func (w *World) send(p *Player, f protocol.Frame) {
	if p.out == nil {
		return
	}
	if err := p.out.Send(f); err != nil {
		if errors.Is(err, protocol.ErrChannelSaturated) {
			n := w.saturated.Add(1)
			if n == 1 || n%100 == 0 {
				w.log.Printf("client %d: %s dropped on %s (saturated, total=%d)", p.ClientID, f.Kind, f.Channel, n)
			}
		}
	}
}

func (w *World) sortedPlayers() []*Player {
	out := make([]*Player, 0, len(w.players))
	for _, p := range w.players {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out
}
