// Package command parses the slash commands typed into the client console.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"voxels.dev/internal/sim/world/terrain/store"
)

var (
	ErrUnknown = errors.New("unknown command")
	ErrUsage   = errors.New("bad command usage")
)

// MaxRadius is the largest radius /chunk radius accepts. Servers clamp further to their
// configured max_chunk_radius.
const MaxRadius = 64

type Kind uint8

const (
	KindChunkRadius Kind = iota + 1
	KindChunkDespawn
	KindBlock
)

func (k Kind) String() string {
	switch k {
	case KindChunkRadius:
		return "chunk_radius"
	case KindChunkDespawn:
		return "chunk_despawn"
	case KindBlock:
		return "block"
	default:
		return "unknown"
	}
}

type Command struct {
	Kind    Kind
	Radius  int           // KindChunkRadius
	Element store.Element // KindBlock
	Line    string
}

// Replicated reports whether the command is forwarded to the server.
// /block only changes what the local client draws.
func (c Command) Replicated() bool {
	return c.Kind == KindChunkRadius || c.Kind == KindChunkDespawn
}

func Parse(line string) (Command, error) {
	line = strings.TrimSpace(line)
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return Command{}, fmt.Errorf("%w: empty line", ErrUnknown)
	}
	cmd := Command{Line: line}
	switch parts[0] {
	case "/chunk":
		if len(parts) < 2 {
			return Command{}, fmt.Errorf("%w: /chunk radius <n> | /chunk despawn", ErrUsage)
		}
		switch parts[1] {
		case "radius":
			if len(parts) != 3 {
				return Command{}, fmt.Errorf("%w: /chunk radius <n>", ErrUsage)
			}
			r, err := strconv.Atoi(parts[2])
			if err != nil || r < 0 || r > MaxRadius {
				return Command{}, fmt.Errorf("%w: radius %q", ErrUsage, parts[2])
			}
			cmd.Kind = KindChunkRadius
			cmd.Radius = r
		case "despawn":
			if len(parts) != 2 {
				return Command{}, fmt.Errorf("%w: /chunk despawn", ErrUsage)
			}
			cmd.Kind = KindChunkDespawn
		default:
			return Command{}, fmt.Errorf("%w: /chunk %s", ErrUnknown, parts[1])
		}
	case "/block":
		if len(parts) != 2 {
			return Command{}, fmt.Errorf("%w: /block <element>", ErrUsage)
		}
		el, ok := store.ParseElement(strings.ToLower(parts[1]))
		if !ok {
			return Command{}, fmt.Errorf("%w: %q is not a valid element", ErrUsage, parts[1])
		}
		cmd.Kind = KindBlock
		cmd.Element = el
	default:
		return Command{}, fmt.Errorf("%w: %s", ErrUnknown, parts[0])
	}
	return cmd, nil
}
