package protocol

import (
	"fmt"
	"time"
)

// Channel identifies an independently ordered message stream.
type Channel uint8

const (
	ChannelInput Channel = iota
	ChannelCommand
	ChannelSync
	ChannelServerMessages
	ChannelChunks

	NumChannels = int(ChannelChunks) + 1
)

var channelNames = [NumChannels]string{"input", "command", "sync", "server_messages", "chunks"}

func (c Channel) String() string {
	if c.Valid() {
		return channelNames[c]
	}
	return fmt.Sprintf("channel(%d)", uint8(c))
}

func (c Channel) Valid() bool { return int(c) < NumChannels }

// FromClient reports whether the channel carries client -> server traffic.
func (c Channel) FromClient() bool { return c == ChannelInput || c == ChannelCommand }

func ChannelByName(name string) (Channel, bool) {
	for i, n := range channelNames {
		if n == name {
			return Channel(i), true
		}
	}
	return 0, false
}

const MiB = 1 << 20

// ChannelConfig bounds one channel. ResendDelay is how long queued messages may wait
// before a flush; MaxMemoryBytes is the queued-bytes budget past which the channel is saturated.
type ChannelConfig struct {
	ResendDelay    time.Duration
	MaxMemoryBytes int
}

type ChannelSet [NumChannels]ChannelConfig

func DefaultChannelSet() ChannelSet {
	return ChannelSet{
		ChannelInput:          {ResendDelay: 0, MaxMemoryBytes: 5 * MiB},
		ChannelCommand:        {ResendDelay: 0, MaxMemoryBytes: 5 * MiB},
		ChannelSync:           {ResendDelay: 0, MaxMemoryBytes: 10 * MiB},
		ChannelServerMessages: {ResendDelay: 200 * time.Millisecond, MaxMemoryBytes: 10 * MiB},
		ChannelChunks:         {ResendDelay: 200 * time.Millisecond, MaxMemoryBytes: 10 * MiB},
	}
}

func (s ChannelSet) Params() []ChannelParams {
	out := make([]ChannelParams, 0, NumChannels)
	for i, c := range s {
		out = append(out, ChannelParams{
			ID:             uint8(i),
			Name:           channelNames[i],
			ResendMs:       int(c.ResendDelay / time.Millisecond),
			MaxMemoryBytes: c.MaxMemoryBytes,
		})
	}
	return out
}

// ChannelSetFromParams rebuilds the set announced in WELCOME. Unknown ids are ignored.
func ChannelSetFromParams(ps []ChannelParams) ChannelSet {
	s := DefaultChannelSet()
	for _, p := range ps {
		c := Channel(p.ID)
		if !c.Valid() {
			continue
		}
		s[c] = ChannelConfig{
			ResendDelay:    time.Duration(p.ResendMs) * time.Millisecond,
			MaxMemoryBytes: p.MaxMemoryBytes,
		}
	}
	return s
}
