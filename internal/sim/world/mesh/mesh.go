// Package mesh turns chunk block grids into merged, face-culled triangle meshes.
package mesh

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxels.dev/internal/sim/world/terrain/store"
)

// AtlasGrid is the number of cells per side of the block texture atlas.
const AtlasGrid = 16

type Face uint8

const (
	East   Face = iota // +X
	West               // -X
	Top                // +Y
	Bottom             // -Y
	North              // +Z
	South              // -Z
)

var faceNames = [...]string{"east", "west", "top", "bottom", "north", "south"}

func (f Face) String() string {
	if int(f) < len(faceNames) {
		return faceNames[f]
	}
	return "unknown"
}

// Faces lists the six faces in emission order.
var Faces = [6]Face{East, North, Top, Bottom, South, West}

type faceSpec struct {
	step    [3]int
	normal  mgl32.Vec3
	corners [4]mgl32.Vec3 // unit cube corners, counter-clockwise seen from outside
}

var faceTable = [6]faceSpec{
	East: {
		step:    [3]int{1, 0, 0},
		normal:  mgl32.Vec3{1, 0, 0},
		corners: [4]mgl32.Vec3{{1, 0, 1}, {1, 0, 0}, {1, 1, 0}, {1, 1, 1}},
	},
	West: {
		step:    [3]int{-1, 0, 0},
		normal:  mgl32.Vec3{-1, 0, 0},
		corners: [4]mgl32.Vec3{{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}},
	},
	Top: {
		step:    [3]int{0, 1, 0},
		normal:  mgl32.Vec3{0, 1, 0},
		corners: [4]mgl32.Vec3{{0, 1, 1}, {1, 1, 1}, {1, 1, 0}, {0, 1, 0}},
	},
	Bottom: {
		step:    [3]int{0, -1, 0},
		normal:  mgl32.Vec3{0, -1, 0},
		corners: [4]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}},
	},
	North: {
		step:    [3]int{0, 0, 1},
		normal:  mgl32.Vec3{0, 0, 1},
		corners: [4]mgl32.Vec3{{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}},
	},
	South: {
		step:    [3]int{0, 0, -1},
		normal:  mgl32.Vec3{0, 0, -1},
		corners: [4]mgl32.Vec3{{1, 0, 0}, {0, 0, 0}, {0, 1, 0}, {1, 1, 0}},
	},
}

// Normal returns the outward normal of f.
func (f Face) Normal() mgl32.Vec3 { return faceTable[f].normal }

// Mesh is one merged draw submission. Every quad contributes four vertices and six indices.
type Mesh struct {
	Positions []mgl32.Vec3
	Normals   []mgl32.Vec3
	UVs       []mgl32.Vec2
	Indices   []uint32
}

func (m *Mesh) Quads() int { return len(m.Positions) / 4 }

func (m *Mesh) Empty() bool { return len(m.Positions) == 0 }

// AtlasUV returns the four UVs of an atlas cell in (left,bottom),(right,bottom),(right,top),(left,top) order.
func AtlasUV(tex store.TexRef) [4]mgl32.Vec2 {
	left := float32(tex.Col) / AtlasGrid
	right := float32(tex.Col+1) / AtlasGrid
	bottom := float32(tex.Row) / AtlasGrid
	top := float32(tex.Row+1) / AtlasGrid
	return [4]mgl32.Vec2{{left, bottom}, {right, bottom}, {right, top}, {left, top}}
}

func (m *Mesh) addQuad(f Face, origin mgl32.Vec3, scale float32, tex store.TexRef) {
	spec := &faceTable[f]
	base := uint32(len(m.Positions))
	uv := AtlasUV(tex)
	for i, c := range spec.corners {
		m.Positions = append(m.Positions, origin.Add(c.Mul(scale)))
		m.Normals = append(m.Normals, spec.normal)
		m.UVs = append(m.UVs, uv[i])
	}
	m.Indices = append(m.Indices, base, base+1, base+2, base+2, base+3, base)
}

// Build emits a quad for every solid block face whose neighbour is Air or lies outside the chunk.
// Positions are in world space: (chunk origin + block offset) * scale.
func Build(ch *store.Chunk, scale float32) Mesh {
	var m Mesh
	ox, oy, oz := ch.Origin()
	for y := 0; y < store.Size; y++ {
		for z := 0; z < store.Size; z++ {
			for x := 0; x < store.Size; x++ {
				b := ch.Get(x, y, z)
				if !b.Solid() {
					continue
				}
				origin := mgl32.Vec3{float32(ox + x), float32(oy + y), float32(oz + z)}.Mul(scale)
				for _, f := range Faces {
					s := faceTable[f].step
					nx, ny, nz := x+s[0], y+s[1], z+s[2]
					if store.InBounds(nx, ny, nz) && ch.Get(nx, ny, nz).Solid() {
						continue
					}
					m.addQuad(f, origin, scale, b.Texture())
				}
			}
		}
	}
	return m
}

// BuildBlock returns all six faces of a single cube with its minimum corner at origin.
func BuildBlock(el store.Element, origin mgl32.Vec3, scale float32) Mesh {
	var m Mesh
	tex := store.Block{Element: el}.Texture()
	for _, f := range Faces {
		m.addQuad(f, origin, scale, tex)
	}
	return m
}
