package main

import (
	"encoding/hex"
	"testing"

	"voxels.dev/internal/sim/world"
	"voxels.dev/internal/sim/world/terrain/gen"
	"voxels.dev/internal/sim/world/terrain/store"
)

func logged(g *gen.Generator, tick, id uint64, key [3]int, replay bool) world.ChunkLogEntry {
	ch := g.Generate(store.ChunkKey{X: key[0], Y: key[1], Z: key[2]})
	d := ch.Digest()
	return world.ChunkLogEntry{Tick: tick, Key: key, ID: id, Solid: ch.SolidCount(), Digest: hex.EncodeToString(d[:]), Replay: replay}
}

func TestVerifierAcceptsGeneratedAndReplayed(t *testing.T) {
	g := gen.New(gen.Config{Seed: 7})
	v := newVerifier(g, 0, 0)
	for _, e := range []world.ChunkLogEntry{
		logged(g, 1, 1, [3]int{0, 3, 0}, false),
		logged(g, 1, 2, [3]int{1, 3, 0}, false),
		logged(g, 5, 1, [3]int{0, 3, 0}, true),
	} {
		if err := v.check(e); err != nil {
			t.Fatalf("check: %v", err)
		}
	}
	if v.checked != 3 || v.generated != 2 || v.replayed != 1 {
		t.Fatalf("checked=%d generated=%d replayed=%d", v.checked, v.generated, v.replayed)
	}
}

func TestVerifierRejectsSeedMismatch(t *testing.T) {
	other := gen.New(gen.Config{Seed: 8})
	v := newVerifier(gen.New(gen.Config{Seed: 7}), 0, 0)
	e := logged(other, 1, 1, [3]int{0, 3, 0}, false)
	if err := v.check(e); err == nil {
		t.Fatalf("expected digest mismatch")
	}
}

func TestVerifierRejectsRegeneration(t *testing.T) {
	g := gen.New(gen.Config{Seed: 7})
	v := newVerifier(g, 0, 0)
	if err := v.check(logged(g, 1, 1, [3]int{0, 0, 0}, false)); err != nil {
		t.Fatalf("check: %v", err)
	}
	if err := v.check(logged(g, 2, 2, [3]int{0, 0, 0}, false)); err == nil {
		t.Fatalf("expected error for a key generated twice")
	}
	if err := v.check(logged(g, 3, 9, [3]int{0, 0, 0}, true)); err == nil {
		t.Fatalf("expected error for replay with a different id")
	}
}

func TestVerifierSkipsOutsideTickRange(t *testing.T) {
	g := gen.New(gen.Config{Seed: 7})
	v := newVerifier(g, 10, 20)
	bad := logged(g, 5, 1, [3]int{0, 0, 0}, false)
	bad.Digest = "00"
	if err := v.check(bad); err != nil {
		t.Fatalf("entry before from_tick was checked: %v", err)
	}
	if v.checked != 0 {
		t.Fatalf("checked=%d", v.checked)
	}
}

func TestVerifierStartsNewRunOnRestart(t *testing.T) {
	g := gen.New(gen.Config{Seed: 7})
	v := newVerifier(g, 0, 0)
	for _, e := range []world.ChunkLogEntry{
		logged(g, 1, 1, [3]int{0, 0, 0}, false),
		logged(g, 1, 2, [3]int{0, 1, 0}, false),
		logged(g, 1, 1, [3]int{0, 0, 0}, false),
	} {
		if err := v.check(e); err != nil {
			t.Fatalf("check: %v", err)
		}
	}
	if v.runs != 2 {
		t.Fatalf("runs=%d", v.runs)
	}
}
