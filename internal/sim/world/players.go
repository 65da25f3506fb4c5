package world

import (
	"voxels.dev/internal/protocol"
	"voxels.dev/internal/sim/world/stream"
)

func (w *World) handleJoin(nowTick uint64, req JoinRequest) JoinResponse {
	w.nextClientID++
	w.nextEntity++
	p := &Player{
		ClientID:  w.nextClientID,
		Name:      req.Name,
		SessionID: req.SessionID,
		EntityRef: w.nextEntity,
		Pos:       w.cfg.Spawn,
		out:       req.Out,
	}
	w.players[p.ClientID] = p

	// The newcomer learns about everyone already here, then everyone learns about the newcomer.
	for _, other := range w.sortedPlayers() {
		if other.ClientID == p.ClientID {
			continue
		}
		w.send(p, protocol.Encode(playerCreate(other)))
	}
	created := protocol.Encode(playerCreate(p))
	for _, other := range w.sortedPlayers() {
		w.send(other, created)
	}

	// Chunks generated before this join are sent once so late joiners see the same terrain.
	w.stream.Each(func(ev stream.ChunkCreated) {
		w.send(p, protocol.Encode(protocol.ChunkMsg{Chunk: ev.Chunk}))
	})
	n := w.stream.DiscoverAt(p.Pos)

	w.log.Printf("join client=%d name=%q spawn=%v enqueued=%d", p.ClientID, p.Name, p.Pos, n)
	if w.sessionLogger != nil {
		_ = w.sessionLogger.WriteSession(SessionLogEntry{
			Tick:      nowTick,
			ClientID:  p.ClientID,
			SessionID: p.SessionID,
			Event:     "JOIN",
			Name:      p.Name,
		})
	}
	return JoinResponse{ClientID: p.ClientID, Spawn: p.Pos}
}

func (w *World) handleLeave(nowTick uint64, id uint64) {
	p := w.players[id]
	if p == nil {
		return
	}
	delete(w.players, id)
	removed := protocol.Encode(protocol.PlayerRemove{ClientID: id})
	for _, other := range w.sortedPlayers() {
		w.send(other, removed)
	}
	w.log.Printf("leave client=%d name=%q", id, p.Name)
	if w.sessionLogger != nil {
		_ = w.sessionLogger.WriteSession(SessionLogEntry{
			Tick:      nowTick,
			ClientID:  id,
			SessionID: p.SessionID,
			Event:     "LEAVE",
			Name:      p.Name,
		})
	}
}

func playerCreate(p *Player) protocol.PlayerCreate {
	return protocol.PlayerCreate{ClientID: p.ClientID, Translation: p.Pos, EntityRef: p.EntityRef}
}
