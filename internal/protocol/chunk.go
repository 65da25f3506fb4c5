package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/klauspost/compress/zstd"

	"voxels.dev/internal/sim/encoding"
	"voxels.dev/internal/sim/world/terrain/store"
)

// ChunkMsg carries one whole generated chunk.
// Wire layout: zstd([x i32][y i32][z i32][RLE(element ids)]).
type ChunkMsg struct {
	Chunk store.Chunk
}

// maxChunkRaw bounds the decompressed size: header plus the worst-case RLE of a full grid.
const maxChunkRaw = 12 + 2*binary.MaxVarintLen16*store.Volume

var (
	zenc, _ = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest), zstd.WithEncoderConcurrency(1))
	zdec, _ = zstd.NewReader(nil, zstd.WithDecoderConcurrency(0), zstd.WithDecoderMaxMemory(maxChunkRaw))
)

func (ChunkMsg) Kind() Kind { return KindChunk }

func (m ChunkMsg) AppendPayload(dst []byte) []byte {
	raw := make([]byte, 12, 64)
	binary.LittleEndian.PutUint32(raw[0:], uint32(int32(m.Chunk.Key.X)))
	binary.LittleEndian.PutUint32(raw[4:], uint32(int32(m.Chunk.Key.Y)))
	binary.LittleEndian.PutUint32(raw[8:], uint32(int32(m.Chunk.Key.Z)))
	raw = encoding.AppendRLE(raw, m.Chunk.Elements())
	return zenc.EncodeAll(raw, dst)
}

func decodeChunk(b []byte) (ChunkMsg, error) {
	raw, err := zdec.DecodeAll(b, nil)
	if err != nil {
		return ChunkMsg{}, fmt.Errorf("%w: chunk: %v", ErrMalformed, err)
	}
	if len(raw) < 12 {
		return ChunkMsg{}, fmt.Errorf("%w: chunk header", ErrMalformed)
	}
	var m ChunkMsg
	m.Chunk.Key = store.ChunkKey{
		X: int(int32(binary.LittleEndian.Uint32(raw[0:]))),
		Y: int(int32(binary.LittleEndian.Uint32(raw[4:]))),
		Z: int(int32(binary.LittleEndian.Uint32(raw[8:]))),
	}
	ids, err := encoding.DecodeRLE(raw[12:], store.Volume)
	if err != nil {
		return ChunkMsg{}, fmt.Errorf("%w: chunk blocks: %v", ErrMalformed, err)
	}
	for i, id := range ids {
		el := store.Element(id)
		if !el.Valid() {
			return ChunkMsg{}, fmt.Errorf("%w: unknown element %d", ErrMalformed, id)
		}
		m.Chunk.Blocks[i] = store.Block{Element: el}
	}
	return m, nil
}
