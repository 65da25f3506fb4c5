package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	persistlog "voxels.dev/internal/persistence/log"
	"voxels.dev/internal/sim/world"
)

func main() {
	if len(os.Args) >= 2 {
		switch os.Args[1] {
		case "db":
			dbCmd(os.Args[2:])
			return
		case "chunks":
			chunksCmd(os.Args[2:])
			return
		case "sessions":
			sessionsCmd(os.Args[2:])
			return
		case "state":
			stateCmd(os.Args[2:])
			return
		}
	}
	listCmd(os.Args[1:])
}

func listCmd(args []string) {
	fs := flag.NewFlagSet("admin", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	_ = fs.Parse(args)

	entries, err := os.ReadDir(filepath.Join(*dataDir, "worlds"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}
	for _, e := range entries {
		if e.IsDir() {
			fmt.Println(e.Name())
		}
	}
}

// chunksCmd replays the compressed chunk log, filtered by tick range and chunk-key box.
func chunksCmd(args []string) {
	fs := flag.NewFlagSet("chunks", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	box := fs.String("aabb", "", "chunk-key box filter: x1,y1,z1:x2,y2,z2 (optional)")
	sinceTick := fs.Uint64("since_tick", 0, "first tick (inclusive)")
	toTick := fs.Uint64("to_tick", 0, "last tick (inclusive, 0 = no limit)")
	replays := fs.Bool("replays", true, "include replayed chunks")
	_ = fs.Parse(args)

	min, max := [3]int{-1 << 30, -1 << 30, -1 << 30}, [3]int{1 << 30, 1 << 30, 1 << 30}
	if strings.TrimSpace(*box) != "" {
		var err error
		if min, max, err = parseAABB(*box); err != nil {
			fmt.Fprintln(os.Stderr, "bad -aabb:", err)
			os.Exit(2)
		}
	}
	to := *toTick
	if to == 0 {
		to = ^uint64(0)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	recs, err := readChunkLog(worldDir, *sinceTick, to, min, max)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read chunk log:", err)
		os.Exit(1)
	}
	for _, r := range recs {
		if r.Replay && !*replays {
			continue
		}
		printJSON(r)
	}
}

func sessionsCmd(args []string) {
	fs := flag.NewFlagSet("sessions", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "world_1", "world id")
	clientID := fs.Uint64("client", 0, "client id filter (0 = all)")
	event := fs.String("event", "", "event filter: JOIN, LEAVE or COMMAND")
	_ = fs.Parse(args)

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	err := eachLogLine(filepath.Join(worldDir, "events", "sessions"), "sessions-", func(line []byte) error {
		var e world.SessionLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		if *clientID != 0 && e.ClientID != *clientID {
			return nil
		}
		if *event != "" && !strings.EqualFold(e.Event, *event) {
			return nil
		}
		printJSON(e)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "read session log:", err)
		os.Exit(1)
	}
}

func readChunkLog(worldDir string, sinceTick, toTick uint64, min, max [3]int) ([]world.ChunkLogEntry, error) {
	var out []world.ChunkLogEntry
	err := eachLogLine(filepath.Join(worldDir, "events", "chunks"), "chunks-", func(line []byte) error {
		var e world.ChunkLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		if e.Tick < sinceTick || e.Tick > toTick {
			return nil
		}
		if !withinAABB(e.Key, min, max) {
			return nil
		}
		out = append(out, e)
		return nil
	})
	return out, err
}

// eachLogLine visits the hourly files under dir in name (and therefore time) order.
func eachLogLine(dir, prefix string, fn func(line []byte) error) error {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(ents))
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, prefix) && strings.HasSuffix(name, ".jsonl.zst") {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if err := persistlog.ReadJSONL(filepath.Join(dir, name), fn); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}

func withinAABB(pos [3]int, min, max [3]int) bool {
	return pos[0] >= min[0] && pos[0] <= max[0] &&
		pos[1] >= min[1] && pos[1] <= max[1] &&
		pos[2] >= min[2] && pos[2] <= max[2]
}

func parseAABB(s string) (min, max [3]int, err error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return min, max, fmt.Errorf("want x1,y1,z1:x2,y2,z2")
	}
	a, err := parseVec3(parts[0])
	if err != nil {
		return min, max, err
	}
	b, err := parseVec3(parts[1])
	if err != nil {
		return min, max, err
	}
	for i := 0; i < 3; i++ {
		min[i] = a[i]
		max[i] = b[i]
		if min[i] > max[i] {
			min[i], max[i] = max[i], min[i]
		}
	}
	return min, max, nil
}

func parseVec3(s string) ([3]int, error) {
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return [3]int{}, fmt.Errorf("bad vec3: %q", s)
	}
	var out [3]int
	for i := 0; i < 3; i++ {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil {
			return [3]int{}, err
		}
		out[i] = n
	}
	return out, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}
