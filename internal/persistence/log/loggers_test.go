package log

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"voxels.dev/internal/sim/world"
)

func TestChunkLoggerRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l := NewChunkLogger(dir)
	l.w.now = func() time.Time { return time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC) }

	for i := 1; i <= 3; i++ {
		if err := l.WriteChunk(world.ChunkLogEntry{Tick: uint64(i), Key: [3]int{i, 0, -i}, ID: uint64(i), Digest: "ab"}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	path := filepath.Join(dir, "chunks", "chunks-2026-03-04-05.jsonl.zst")
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("log file: %v", err)
	}
	var got []world.ChunkLogEntry
	err := ReadJSONL(path, func(line []byte) error {
		var e world.ChunkLogEntry
		if err := json.Unmarshal(line, &e); err != nil {
			return err
		}
		got = append(got, e)
		return nil
	})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 3 || got[2].Key != [3]int{3, 0, -3} {
		t.Fatalf("entries %+v", got)
	}
}

func TestWriterRotatesHourly(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "sessions")
	now := time.Date(2026, 1, 1, 10, 59, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(world.SessionLogEntry{ClientID: 1, Event: "JOIN"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	now = now.Add(2 * time.Minute)
	if err := w.Write(world.SessionLogEntry{ClientID: 1, Event: "LEAVE"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	for _, name := range []string{"sessions-2026-01-01-10.jsonl.zst", "sessions-2026-01-01-11.jsonl.zst"} {
		n := 0
		if err := ReadJSONL(filepath.Join(dir, name), func([]byte) error { n++; return nil }); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if n != 1 {
			t.Fatalf("%s has %d lines", name, n)
		}
	}
}

func TestWriterReportsClosedSegments(t *testing.T) {
	dir := t.TempDir()
	var closed []string
	w := NewJSONLZstdWriterWithOptions(dir, "chunks", Options{
		RotateLayout: "2006-01-02-15-04",
		OnClose:      func(path string) { closed = append(closed, filepath.Base(path)) },
	})
	now := time.Date(2026, 1, 1, 10, 0, 30, 0, time.UTC)
	w.now = func() time.Time { return now }

	for i := 0; i < 2; i++ {
		if err := w.Write(world.ChunkLogEntry{Tick: uint64(i)}); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if len(closed) != 0 {
		t.Fatalf("segment reported before rotation: %v", closed)
	}
	now = now.Add(time.Minute)
	if err := w.Write(world.ChunkLogEntry{Tick: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if len(closed) != 1 || closed[0] != "chunks-2026-01-01-10-00.jsonl.zst" {
		t.Fatalf("closed after rotation = %v", closed)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(closed) != 2 || closed[1] != "chunks-2026-01-01-10-01.jsonl.zst" {
		t.Fatalf("closed after Close = %v", closed)
	}
	if err := w.Close(); err != nil || len(closed) != 2 {
		t.Fatalf("second Close reported again: %v %v", err, closed)
	}
}

func TestWriteAfterCloseDoesNotReopen(t *testing.T) {
	dir := t.TempDir()
	w := NewJSONLZstdWriter(dir, "chunks")
	now := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	if err := w.Write(world.ChunkLogEntry{Tick: 1}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	now = now.Add(time.Hour)
	if err := w.Write(world.ChunkLogEntry{Tick: 2}); !errors.Is(err, ErrClosed) {
		t.Fatalf("write after close err=%v", err)
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("readdir: %v", err)
	}
	if len(ents) != 1 {
		t.Fatalf("files after close: %d", len(ents))
	}
}
