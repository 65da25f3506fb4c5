package store

import (
	"crypto/sha256"
	"fmt"
)

// Size is the chunk extent on every axis, in blocks.
const Size = 16

// Volume is the number of blocks in one chunk.
const Volume = Size * Size * Size

type ChunkKey struct {
	X int
	Y int
	Z int
}

func (k ChunkKey) String() string {
	return fmt.Sprintf("(%d,%d,%d)", k.X, k.Y, k.Z)
}

type Element uint8

const (
	Air Element = iota
	Stone
	Dirt
	Grass

	elementCount
)

var elementNames = [elementCount]string{
	Air:   "air",
	Stone: "stone",
	Dirt:  "dirt",
	Grass: "grass",
}

func (e Element) String() string {
	if e.Valid() {
		return elementNames[e]
	}
	return fmt.Sprintf("element(%d)", uint8(e))
}

func (e Element) Valid() bool { return e < elementCount }

// ParseElement accepts the lowercase element names used by the /block command.
func ParseElement(s string) (Element, bool) {
	for i, name := range elementNames {
		if name == s {
			return Element(i), true
		}
	}
	return Air, false
}

// TexRef addresses one cell of the block texture atlas.
type TexRef struct {
	Row uint8
	Col uint8
}

// AirTexture is the sentinel atlas cell reported for air.
var AirTexture = TexRef{Row: 3, Col: 6}

var textures = [elementCount]TexRef{
	Air:   AirTexture,
	Stone: {Row: 0, Col: 1},
	Dirt:  {Row: 0, Col: 2},
	Grass: {Row: 0, Col: 3},
}

type Block struct {
	Element Element
}

// Texture is derived from the element alone.
func (b Block) Texture() TexRef {
	if !b.Element.Valid() {
		return AirTexture
	}
	return textures[b.Element]
}

func (b Block) Solid() bool { return b.Element != Air }

// Chunk is a fixed 16x16x16 block grid. It is a plain value: copying a Chunk copies its blocks.
type Chunk struct {
	Key    ChunkKey
	Blocks [Volume]Block
}

// Index lays blocks out x fastest, then z, then y.
func Index(x, y, z int) int {
	return x + z*Size + y*Size*Size
}

func InBounds(x, y, z int) bool {
	return x >= 0 && x < Size && y >= 0 && y < Size && z >= 0 && z < Size
}

func (c *Chunk) Get(x, y, z int) Block {
	return c.Blocks[Index(x, y, z)]
}

func (c *Chunk) Set(x, y, z int, b Block) {
	c.Blocks[Index(x, y, z)] = b
}

// Origin is the world-space block position of the chunk's (0,0,0) corner.
func (c *Chunk) Origin() (x, y, z int) {
	return c.Key.X * Size, c.Key.Y * Size, c.Key.Z * Size
}

// Elements returns the grid as raw element ids in Index order.
func (c *Chunk) Elements() []uint8 {
	out := make([]uint8, Volume)
	for i, b := range c.Blocks {
		out[i] = uint8(b.Element)
	}
	return out
}

func (c *Chunk) Digest() [32]byte {
	h := sha256.New()
	var k [12]byte
	putInt32(k[0:], c.Key.X)
	putInt32(k[4:], c.Key.Y)
	putInt32(k[8:], c.Key.Z)
	h.Write(k[:])
	h.Write(c.Elements())
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func putInt32(b []byte, v int) {
	u := uint32(int32(v))
	b[0] = byte(u)
	b[1] = byte(u >> 8)
	b[2] = byte(u >> 16)
	b[3] = byte(u >> 24)
}

// SolidCount reports how many non-air blocks the chunk holds.
func (c *Chunk) SolidCount() int {
	n := 0
	for _, b := range c.Blocks {
		if b.Solid() {
			n++
		}
	}
	return n
}
