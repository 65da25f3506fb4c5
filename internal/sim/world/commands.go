package world

import (
	"voxels.dev/internal/command"
)

func (w *World) applyCommand(nowTick uint64, p *Player, line string) {
	start, count, ok, cooldown := w.cfg.CommandLimit.Allow(nowTick, p.cmdWindowStart, p.cmdCount)
	p.cmdWindowStart, p.cmdCount = start, count
	if !ok {
		w.log.Printf("client %d: command rate limited (%d ticks left)", p.ClientID, cooldown)
		return
	}

	cmd, err := command.Parse(line)
	if err != nil {
		w.log.Printf("client %d: %v", p.ClientID, err)
		return
	}
	switch cmd.Kind {
	case command.KindChunkRadius:
		if limit := w.stream.MaxRadius(); cmd.Radius > limit {
			w.log.Printf("client %d: radius %d clamped to %d", p.ClientID, cmd.Radius, limit)
		}
		w.stream.SetRadius(cmd.Radius)
		w.radius.Store(int64(w.stream.Radius()))
		w.rediscover()
	case command.KindChunkDespawn:
		w.stream.Reset()
		w.rediscover()
	default:
		// /block is drawn by the client only.
		return
	}
	if w.sessionLogger != nil {
		_ = w.sessionLogger.WriteSession(SessionLogEntry{
			Tick:      nowTick,
			ClientID:  p.ClientID,
			SessionID: p.SessionID,
			Event:     "COMMAND",
			Name:      p.Name,
			Detail:    cmd.Line,
		})
	}
}

// rediscover schedules the surroundings of every player at the current radius.
func (w *World) rediscover() {
	for _, p := range w.sortedPlayers() {
		w.stream.DiscoverAt(p.Pos)
	}
}
