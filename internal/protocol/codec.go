package protocol

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Message is a typed frame payload.
type Message interface {
	Kind() Kind
	AppendPayload(dst []byte) []byte
}

// Encode frames m on its fixed channel.
func Encode(m Message) Frame {
	return Frame{Channel: channelOf[m.Kind()], Kind: m.Kind(), Payload: m.AppendPayload(nil)}
}

// Decode parses the payload of a validated frame.
func Decode(f Frame) (Message, error) {
	var (
		m   Message
		err error
	)
	switch f.Kind {
	case KindMovement:
		var v Movement
		v, err = decodeMovement(f.Payload)
		m = v
	case KindInputFlags:
		var v InputFlags
		v, err = decodeInputFlags(f.Payload)
		m = v
	case KindCommand:
		var v Command
		v, err = decodeCommand(f.Payload)
		m = v
	case KindPositionSync:
		var v PositionSync
		v, err = decodePositionSync(f.Payload)
		m = v
	case KindPlayerCreate:
		var v PlayerCreate
		v, err = decodePlayerCreate(f.Payload)
		m = v
	case KindPlayerRemove:
		var v PlayerRemove
		v, err = decodePlayerRemove(f.Payload)
		m = v
	case KindChunk:
		var v ChunkMsg
		v, err = decodeChunk(f.Payload)
		m = v
	default:
		return nil, fmt.Errorf("%w: unknown kind %d", ErrMalformed, uint8(f.Kind))
	}
	if err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeBytes is DecodeFrame followed by Decode.
func DecodeBytes(b []byte) (Message, error) {
	f, err := DecodeFrame(b)
	if err != nil {
		return nil, err
	}
	return Decode(f)
}

func appendVec3(dst []byte, v mgl32.Vec3) []byte {
	for _, c := range v {
		dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(c))
	}
	return dst
}

func readVec3(b []byte) mgl32.Vec3 {
	return mgl32.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(b[0:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[8:])),
	}
}

func wantLen(k Kind, b []byte, n int) error {
	if len(b) != n {
		return fmt.Errorf("%w: %s payload is %d bytes, want %d", ErrMalformed, k, len(b), n)
	}
	return nil
}

// Movement carries the client's movement intent.
type Movement struct {
	Direction mgl32.Vec3
}

func (Movement) Kind() Kind { return KindMovement }

func (m Movement) AppendPayload(dst []byte) []byte { return appendVec3(dst, m.Direction) }

func decodeMovement(b []byte) (Movement, error) {
	if err := wantLen(KindMovement, b, 12); err != nil {
		return Movement{}, err
	}
	return Movement{Direction: readVec3(b)}, nil
}

// InputFlags is the discretized movement intent.
type InputFlags uint8

const (
	InputUp InputFlags = 1 << iota
	InputDown
	InputLeft
	InputRight
	InputForward
	InputBackward

	inputMask = InputUp | InputDown | InputLeft | InputRight | InputForward | InputBackward
)

func (InputFlags) Kind() Kind { return KindInputFlags }

func (f InputFlags) AppendPayload(dst []byte) []byte { return append(dst, byte(f)) }

// Direction maps the flag set onto axes: right is +X, up is +Y, forward is -Z.
// Opposing flags cancel.
func (f InputFlags) Direction() mgl32.Vec3 {
	var d mgl32.Vec3
	if f&InputRight != 0 {
		d[0]++
	}
	if f&InputLeft != 0 {
		d[0]--
	}
	if f&InputUp != 0 {
		d[1]++
	}
	if f&InputDown != 0 {
		d[1]--
	}
	if f&InputBackward != 0 {
		d[2]++
	}
	if f&InputForward != 0 {
		d[2]--
	}
	return d
}

func decodeInputFlags(b []byte) (InputFlags, error) {
	if err := wantLen(KindInputFlags, b, 1); err != nil {
		return 0, err
	}
	f := InputFlags(b[0])
	if f&^inputMask != 0 {
		return 0, fmt.Errorf("%w: input flags %#x", ErrMalformed, b[0])
	}
	return f, nil
}

// MaxCommandLen bounds a console line.
const MaxCommandLen = 256

type Command struct {
	Line string
}

func (Command) Kind() Kind { return KindCommand }

func (c Command) AppendPayload(dst []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(c.Line)))
	return append(dst, c.Line...)
}

func decodeCommand(b []byte) (Command, error) {
	n, k := binary.Uvarint(b)
	if k <= 0 || n > MaxCommandLen || uint64(len(b)-k) != n {
		return Command{}, fmt.Errorf("%w: command payload", ErrMalformed)
	}
	return Command{Line: string(b[k:])}, nil
}

// PositionSync is the authoritative position of one player.
type PositionSync struct {
	ClientID uint64
	Position mgl32.Vec3
}

func (PositionSync) Kind() Kind { return KindPositionSync }

func (p PositionSync) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, p.ClientID)
	return appendVec3(dst, p.Position)
}

func decodePositionSync(b []byte) (PositionSync, error) {
	if err := wantLen(KindPositionSync, b, 20); err != nil {
		return PositionSync{}, err
	}
	return PositionSync{ClientID: binary.LittleEndian.Uint64(b), Position: readVec3(b[8:])}, nil
}

// PlayerCreate announces a player. EntityRef is the server-side handle of the player.
type PlayerCreate struct {
	ClientID    uint64
	Translation mgl32.Vec3
	EntityRef   uint64
}

func (PlayerCreate) Kind() Kind { return KindPlayerCreate }

func (p PlayerCreate) AppendPayload(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint64(dst, p.ClientID)
	dst = appendVec3(dst, p.Translation)
	return binary.LittleEndian.AppendUint64(dst, p.EntityRef)
}

func decodePlayerCreate(b []byte) (PlayerCreate, error) {
	if err := wantLen(KindPlayerCreate, b, 28); err != nil {
		return PlayerCreate{}, err
	}
	return PlayerCreate{
		ClientID:    binary.LittleEndian.Uint64(b),
		Translation: readVec3(b[8:]),
		EntityRef:   binary.LittleEndian.Uint64(b[20:]),
	}, nil
}

type PlayerRemove struct {
	ClientID uint64
}

func (PlayerRemove) Kind() Kind { return KindPlayerRemove }

func (p PlayerRemove) AppendPayload(dst []byte) []byte {
	return binary.LittleEndian.AppendUint64(dst, p.ClientID)
}

func decodePlayerRemove(b []byte) (PlayerRemove, error) {
	if err := wantLen(KindPlayerRemove, b, 8); err != nil {
		return PlayerRemove{}, err
	}
	return PlayerRemove{ClientID: binary.LittleEndian.Uint64(b)}, nil
}
