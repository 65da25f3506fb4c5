package protocol

import "fmt"

// Kind identifies the payload layout of a binary frame.
type Kind uint8

const (
	KindMovement Kind = iota + 1
	KindInputFlags
	KindCommand
	KindPositionSync
	KindPlayerCreate
	KindPlayerRemove
	KindChunk
)

func (k Kind) String() string {
	switch k {
	case KindMovement:
		return "movement"
	case KindInputFlags:
		return "input_flags"
	case KindCommand:
		return "command"
	case KindPositionSync:
		return "position_sync"
	case KindPlayerCreate:
		return "player_create"
	case KindPlayerRemove:
		return "player_remove"
	case KindChunk:
		return "chunk"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// channelOf fixes which channel each kind travels on.
var channelOf = map[Kind]Channel{
	KindMovement:     ChannelInput,
	KindInputFlags:   ChannelInput,
	KindCommand:      ChannelCommand,
	KindPositionSync: ChannelSync,
	KindPlayerCreate: ChannelServerMessages,
	KindPlayerRemove: ChannelServerMessages,
	KindChunk:        ChannelChunks,
}

// Frame is one binary websocket message: [channel u8][kind u8][payload].
type Frame struct {
	Channel Channel
	Kind    Kind
	Payload []byte
}

const frameHeader = 2

func (f Frame) Encode() []byte {
	out := make([]byte, frameHeader, frameHeader+len(f.Payload))
	out[0] = byte(f.Channel)
	out[1] = byte(f.Kind)
	return append(out, f.Payload...)
}

// Len is the encoded size in bytes.
func (f Frame) Len() int { return frameHeader + len(f.Payload) }

func DecodeFrame(b []byte) (Frame, error) {
	if len(b) < frameHeader {
		return Frame{}, fmt.Errorf("%w: frame of %d bytes", ErrMalformed, len(b))
	}
	f := Frame{Channel: Channel(b[0]), Kind: Kind(b[1]), Payload: b[frameHeader:]}
	want, ok := channelOf[f.Kind]
	if !ok {
		return Frame{}, fmt.Errorf("%w: unknown kind %d", ErrMalformed, b[1])
	}
	if f.Channel != want {
		return Frame{}, fmt.Errorf("%w: %s on channel %s", ErrMalformed, f.Kind, f.Channel)
	}
	return f, nil
}
