package world

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxels.dev/internal/sim/world/stream"
)

// applyMovement advances p by one tick of normalized intent. Only the direction is taken
// from the client; the position itself is never client supplied.
func (w *World) applyMovement(p *Player, dir mgl32.Vec3) {
	if !finite(dir) {
		return
	}
	l := dir.Len()
	if l == 0 {
		return
	}
	v := dir.Mul(1 / l)
	step := float32(w.TickDelta().Seconds()) * w.cfg.PlayerSpeed

	start := p.Pos
	p.Pos = start.Add(v.Mul(step))

	if key, ok := stream.Crossing(stream.Move{Start: start, End: p.Pos}); ok {
		w.stream.Discover(key)
	}
}

func finite(v mgl32.Vec3) bool {
	for _, c := range v {
		f := float64(c)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}
