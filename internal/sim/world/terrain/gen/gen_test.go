package gen

import (
	"testing"

	"voxels.dev/internal/sim/world/terrain/store"
)

func TestGenerateIsDeterministic(t *testing.T) {
	keys := []store.ChunkKey{{X: 0, Y: 0, Z: 0}, {X: -3, Y: 4, Z: 7}, {X: 12, Y: 15, Z: -9}}
	a := New(Config{Seed: 1})
	b := New(Config{Seed: 1})
	for _, k := range keys {
		c1 := a.Generate(k)
		c2 := a.Generate(k)
		c3 := b.Generate(k)
		if c1 != c2 {
			t.Fatalf("same generator produced different chunks for %v", k)
		}
		if c1 != c3 {
			t.Fatalf("generators with the same seed disagree for %v", k)
		}
		if c1.Key != k {
			t.Fatalf("chunk key = %v, want %v", c1.Key, k)
		}
	}
}

func TestGenerateLayersFollowBands(t *testing.T) {
	g := New(Config{Seed: 1})

	// Block heights 0..15 sit far below the dirt band even with full noise amplitude.
	low := g.Generate(store.ChunkKey{X: 2, Y: 0, Z: 2})
	for y := 0; y < store.Size-10; y++ {
		for z := 0; z < store.Size; z++ {
			for x := 0; x < store.Size; x++ {
				if el := low.Get(x, y, z).Element; el == store.Air || el == store.Grass {
					t.Fatalf("unexpected %s at %d,%d,%d in bottom chunk", el, x, y, z)
				}
			}
		}
	}

	// Heights 160..175 are always above the air band.
	high := g.Generate(store.ChunkKey{X: 2, Y: 10, Z: 2})
	if n := high.SolidCount(); n != 0 {
		t.Fatalf("expected all-air chunk, got %d solid blocks", n)
	}
}

func TestClassify(t *testing.T) {
	b := DefaultBands()
	cases := []struct {
		h    float64
		want store.Element
	}{
		{100, store.Air},
		{75.5, store.Air},
		{75, store.Grass},
		{60, store.Grass},
		{50, store.Dirt},
		{20, store.Dirt},
		{5, store.Stone},
		{-4, store.Stone},
	}
	for _, c := range cases {
		if got := Classify(c.h, b); got != c.want {
			t.Fatalf("Classify(%v) = %s, want %s", c.h, got, c.want)
		}
	}
}

func TestBandsValidate(t *testing.T) {
	if err := DefaultBands().Validate(); err != nil {
		t.Fatalf("default bands invalid: %v", err)
	}
	if err := (Bands{AirAbove: 10, GrassAbove: 20, DirtAbove: 5}).Validate(); err == nil {
		t.Fatalf("expected error for inverted bands")
	}
}
