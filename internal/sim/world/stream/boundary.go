package stream

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxels.dev/internal/sim/world/logic/mathx"
	"voxels.dev/internal/sim/world/terrain/store"
)

// Move is one applied movement record.
type Move struct {
	Start mgl32.Vec3
	End   mgl32.Vec3
}

// ChunkOf floor-divides each axis of a world position by the chunk width.
func ChunkOf(pos mgl32.Vec3) store.ChunkKey {
	return store.ChunkKey{
		X: mathx.FloorDivF(pos.X(), store.Size),
		Y: mathx.FloorDivF(pos.Y(), store.Size),
		Z: mathx.FloorDivF(pos.Z(), store.Size),
	}
}

// Crossing reports the entered chunk when m moves between chunks.
func Crossing(m Move) (store.ChunkKey, bool) {
	from, to := ChunkOf(m.Start), ChunkOf(m.End)
	if from == to {
		return store.ChunkKey{}, false
	}
	return to, true
}
