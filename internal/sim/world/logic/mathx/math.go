package mathx

import "math"

// FloorDivF maps a world-space coordinate onto the cell of width b that contains it.
func FloorDivF(v float32, b int) int {
	return int(math.Floor(float64(v) / float64(b)))
}
