package world

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxels.dev/internal/protocol"
	"voxels.dev/internal/sim/world/logic/rates"
	"voxels.dev/internal/sim/world/stream"
	"voxels.dev/internal/sim/world/terrain/store"
)

type recorder struct {
	frames []protocol.Frame
	full   map[protocol.Channel]bool
}

func (r *recorder) Send(f protocol.Frame) error {
	if r.full[f.Channel] {
		return protocol.ErrChannelSaturated
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recorder) messages(t *testing.T, k protocol.Kind) []protocol.Message {
	t.Helper()
	var out []protocol.Message
	for _, f := range r.frames {
		if f.Kind != k {
			continue
		}
		m, err := protocol.DecodeBytes(f.Encode())
		if err != nil {
			t.Fatalf("decode %s: %v", k, err)
		}
		out = append(out, m)
	}
	return out
}

func (r *recorder) reset() { r.frames = nil }

func testWorld(cfg WorldConfig) *World {
	if cfg.TickRateHz == 0 {
		cfg.TickRateHz = 20
	}
	if cfg.Stream.Layers == 0 {
		cfg.Stream.Layers = 1
	}
	cfg.Gen.Seed = 1
	return New(cfg, nil)
}

func join(w *World, name string) (uint64, *recorder) {
	rec := &recorder{}
	resp := make(chan JoinResponse, 1)
	w.StepOnce([]JoinRequest{{Name: name, Out: rec, Resp: resp}}, nil, nil)
	return (<-resp).ClientID, rec
}

func TestJoinExchangesPlayerCreate(t *testing.T) {
	w := testWorld(WorldConfig{Spawn: mgl32.Vec3{0, 74, 0}})
	a, recA := join(w, "a")
	b, recB := join(w, "b")
	if a == b || a == 0 || b == 0 {
		t.Fatalf("client ids a=%d b=%d", a, b)
	}

	createsA := recA.messages(t, protocol.KindPlayerCreate)
	if len(createsA) != 2 || createsA[0].(protocol.PlayerCreate).ClientID != a || createsA[1].(protocol.PlayerCreate).ClientID != b {
		t.Fatalf("a saw creates %+v", createsA)
	}
	createsB := recB.messages(t, protocol.KindPlayerCreate)
	if len(createsB) != 2 || createsB[0].(protocol.PlayerCreate).ClientID != a || createsB[1].(protocol.PlayerCreate).ClientID != b {
		t.Fatalf("b saw creates %+v", createsB)
	}
	pc := createsB[1].(protocol.PlayerCreate)
	if pc.Translation != (mgl32.Vec3{0, 74, 0}) || pc.EntityRef == 0 {
		t.Fatalf("create payload %+v", pc)
	}

	recA.reset()
	w.StepOnce(nil, []uint64{b}, nil)
	removes := recA.messages(t, protocol.KindPlayerRemove)
	if len(removes) != 1 || removes[0].(protocol.PlayerRemove).ClientID != b {
		t.Fatalf("a saw removes %+v", removes)
	}
	if w.Metrics().Clients != 1 {
		t.Fatalf("clients=%d", w.Metrics().Clients)
	}
}

func TestMovementIsNormalized(t *testing.T) {
	w := testWorld(WorldConfig{PlayerSpeed: 12, Spawn: mgl32.Vec3{4, 4, 4}})
	id, _ := join(w, "a")

	w.StepOnce(nil, nil, []Envelope{{ClientID: id, Msg: protocol.Movement{Direction: mgl32.Vec3{3, 0, 3}}}})
	moved := w.players[id].Pos.Sub(mgl32.Vec3{4, 4, 4})
	// 12 blocks/s over a 50ms tick.
	if math.Abs(float64(moved.Len())-0.6) > 1e-5 {
		t.Fatalf("moved %v (len %v), want length 0.6", moved, moved.Len())
	}
	if math.Abs(float64(moved.X()-moved.Z())) > 1e-6 || moved.Y() != 0 {
		t.Fatalf("direction not preserved: %v", moved)
	}
}

func TestMovementIgnoresZeroAndNonFinite(t *testing.T) {
	w := testWorld(WorldConfig{Spawn: mgl32.Vec3{1, 2, 3}})
	id, _ := join(w, "a")
	nan := float32(math.NaN())
	w.StepOnce(nil, nil, []Envelope{
		{ClientID: id, Msg: protocol.Movement{}},
		{ClientID: id, Msg: protocol.Movement{Direction: mgl32.Vec3{nan, 0, 0}}},
		{ClientID: id, Msg: protocol.InputFlags(protocol.InputLeft | protocol.InputRight)},
		{ClientID: 999, Msg: protocol.Movement{Direction: mgl32.Vec3{1, 0, 0}}},
	})
	if got := w.players[id].Pos; got != (mgl32.Vec3{1, 2, 3}) {
		t.Fatalf("position moved to %v", got)
	}
}

func TestCrossingDiscoversOnce(t *testing.T) {
	w := testWorld(WorldConfig{
		PlayerSpeed: 12,
		Spawn:       mgl32.Vec3{15.5, 1, 1},
		Stream:      stream.Config{Radius: 0, Layers: 1, DrainPerTick: 3},
	})
	id, _ := join(w, "a")
	if seen := w.Metrics().SeenChunks; seen != 1 {
		t.Fatalf("seen after spawn=%d", seen)
	}

	east := protocol.Movement{Direction: mgl32.Vec3{1, 0, 0}}
	w.StepOnce(nil, nil, []Envelope{{ClientID: id, Msg: east}}) // 15.5 -> 16.1
	if seen := w.Metrics().SeenChunks; seen != 2 {
		t.Fatalf("seen after crossing=%d", seen)
	}
	w.StepOnce(nil, nil, []Envelope{{ClientID: id, Msg: east}, {ClientID: id, Msg: east}})
	if seen := w.Metrics().SeenChunks; seen != 2 {
		t.Fatalf("seen after moves inside chunk=%d", seen)
	}
	if got := stream.ChunkOf(w.players[id].Pos); got != (store.ChunkKey{X: 1}) {
		t.Fatalf("player chunk %v", got)
	}
}

func TestDrainIsBoundedAndFansOut(t *testing.T) {
	w := testWorld(WorldConfig{
		Spawn:  mgl32.Vec3{1, 1, 1},
		Stream: stream.Config{Radius: 1, Layers: 2, DrainPerTick: 3},
	})
	_, recA := join(w, "a")
	if n := len(recA.messages(t, protocol.KindChunk)); n != 3 {
		t.Fatalf("chunks after first tick=%d", n)
	}
	m := w.Metrics()
	if m.SeenChunks != 10 || m.QueuedChunks != 7 || m.GeneratedChunks != 3 {
		t.Fatalf("metrics %+v", m)
	}

	_, recB := join(w, "b")
	// b gets the three earlier chunks as catch-up plus this tick's three.
	if n := len(recB.messages(t, protocol.KindChunk)); n != 6 {
		t.Fatalf("b chunks=%d", n)
	}
	for i := 0; i < 10; i++ {
		w.StepOnce(nil, nil, nil)
	}
	keys := map[store.ChunkKey]bool{}
	for _, msg := range recA.messages(t, protocol.KindChunk) {
		k := msg.(protocol.ChunkMsg).Chunk.Key
		if keys[k] {
			t.Fatalf("chunk %v sent twice to a", k)
		}
		keys[k] = true
	}
	if len(keys) != 10 {
		t.Fatalf("a received %d distinct chunks", len(keys))
	}
}

func TestPositionSyncIsPeriodic(t *testing.T) {
	w := testWorld(WorldConfig{TickRateHz: 20, SyncInterval: 3 * time.Second, Spawn: mgl32.Vec3{0, 74, 0}})
	id, rec := join(w, "a") // tick 1
	for i := 2; i < 60; i++ {
		w.StepOnce(nil, nil, []Envelope{{ClientID: id, Msg: protocol.InputFlags(protocol.InputForward)}})
	}
	if n := len(rec.messages(t, protocol.KindPositionSync)); n != 0 {
		t.Fatalf("sync sent early (%d)", n)
	}
	w.StepOnce(nil, nil, nil) // tick 60 = 3s
	syncs := rec.messages(t, protocol.KindPositionSync)
	if len(syncs) != 1 {
		t.Fatalf("syncs=%d", len(syncs))
	}
	ps := syncs[0].(protocol.PositionSync)
	if ps.ClientID != id || ps.Position != w.players[id].Pos {
		t.Fatalf("sync %+v, server pos %v", ps, w.players[id].Pos)
	}
}

func TestCommandsAdjustStreaming(t *testing.T) {
	w := testWorld(WorldConfig{
		Spawn:  mgl32.Vec3{1, 1, 1},
		Stream: stream.Config{Radius: 0, Layers: 1, DrainPerTick: 3},
	})
	id, rec := join(w, "a")

	w.StepOnce(nil, nil, []Envelope{{ClientID: id, Msg: protocol.Command{Line: "/chunk radius 1"}}})
	if m := w.Metrics(); m.SeenChunks != 5 || m.ChunkRadius != 1 || w.Params().ChunkRadius != 1 {
		t.Fatalf("after radius: %+v", m)
	}
	w.StepOnce(nil, nil, nil)

	rec.reset()
	w.StepOnce(nil, nil, []Envelope{{ClientID: id, Msg: protocol.Command{Line: "/chunk despawn"}}})
	w.StepOnce(nil, nil, nil)
	m := w.Metrics()
	if m.SeenChunks != 5 || m.GeneratedChunks != 5 {
		t.Fatalf("after despawn: %+v", m)
	}
	if n := len(rec.messages(t, protocol.KindChunk)); n != 5 {
		t.Fatalf("replayed chunks=%d", n)
	}

	w.StepOnce(nil, nil, []Envelope{{ClientID: id, Msg: protocol.Command{Line: "/block dirt"}}})
	if w.Metrics().SeenChunks != 5 {
		t.Fatalf("/block touched the registry")
	}
}

func TestRadiusCommandIsClampedToMax(t *testing.T) {
	w := testWorld(WorldConfig{
		Spawn:  mgl32.Vec3{1, 1, 1},
		Stream: stream.Config{Radius: 0, MaxRadius: 2, Layers: 1, DrainPerTick: 3},
	})
	id, _ := join(w, "a")

	w.StepOnce(nil, nil, []Envelope{{ClientID: id, Msg: protocol.Command{Line: "/chunk radius 64"}}})
	m := w.Metrics()
	if m.ChunkRadius != 2 {
		t.Fatalf("radius=%d, want clamp to 2", m.ChunkRadius)
	}
	if want := len(stream.Surrounding(store.ChunkKey{}, 2, 1)); m.SeenChunks != want {
		t.Fatalf("seen=%d want %d", m.SeenChunks, want)
	}

	w.StepOnce(nil, nil, []Envelope{{ClientID: id, Msg: protocol.Command{Line: "/chunk radius 3037000500"}}})
	if m := w.Metrics(); m.ChunkRadius != 2 {
		t.Fatalf("out-of-range radius was applied: %+v", m)
	}
}

func TestCommandRateLimit(t *testing.T) {
	w := testWorld(WorldConfig{
		Spawn:        mgl32.Vec3{1, 1, 1},
		Stream:       stream.Config{Radius: 0, Layers: 1},
		CommandLimit: rates.Window{Ticks: 100, Max: 1},
	})
	id, _ := join(w, "a")
	w.StepOnce(nil, nil, []Envelope{
		{ClientID: id, Msg: protocol.Command{Line: "/chunk radius 1"}},
		{ClientID: id, Msg: protocol.Command{Line: "/chunk radius 2"}},
	})
	if r := w.Metrics().ChunkRadius; r != 1 {
		t.Fatalf("radius=%d, second command should be limited", r)
	}
}

func TestSaturatedChannelDropsFrames(t *testing.T) {
	w := testWorld(WorldConfig{Spawn: mgl32.Vec3{1, 1, 1}, Stream: stream.Config{Radius: 0, Layers: 2}})
	rec := &recorder{full: map[protocol.Channel]bool{protocol.ChannelChunks: true}}
	w.StepOnce([]JoinRequest{{Name: "a", Out: rec}}, nil, nil)
	if n := len(rec.messages(t, protocol.KindChunk)); n != 0 {
		t.Fatalf("saturated channel delivered %d chunks", n)
	}
	if d := w.Metrics().SaturatedDrops; d != 2 {
		t.Fatalf("drops=%d", d)
	}
	if n := len(rec.messages(t, protocol.KindPlayerCreate)); n != 1 {
		t.Fatalf("other channels should still deliver, creates=%d", n)
	}
}

type memChunkLog struct{ entries []ChunkLogEntry }

func (m *memChunkLog) WriteChunk(e ChunkLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

type memSessionLog struct{ entries []SessionLogEntry }

func (m *memSessionLog) WriteSession(e SessionLogEntry) error {
	m.entries = append(m.entries, e)
	return nil
}

func TestLoggersSeeChunksAndSessions(t *testing.T) {
	w := testWorld(WorldConfig{Spawn: mgl32.Vec3{1, 1, 1}, Stream: stream.Config{Radius: 0, Layers: 1}})
	cl, sl := &memChunkLog{}, &memSessionLog{}
	w.SetChunkLogger(cl)
	w.SetSessionLogger(sl)

	id, _ := join(w, "a")
	w.StepOnce(nil, []uint64{id}, nil)

	if len(cl.entries) != 1 || cl.entries[0].ID != 1 || len(cl.entries[0].Digest) != 64 {
		t.Fatalf("chunk log %+v", cl.entries)
	}
	if len(sl.entries) != 2 || sl.entries[0].Event != "JOIN" || sl.entries[1].Event != "LEAVE" {
		t.Fatalf("session log %+v", sl.entries)
	}
}

func TestRunProcessesJoins(t *testing.T) {
	w := testWorld(WorldConfig{TickRateHz: 200, Spawn: mgl32.Vec3{1, 1, 1}})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	resp := make(chan JoinResponse, 1)
	w.Join() <- JoinRequest{Name: "a", Out: &recorder{}, Resp: resp}
	select {
	case r := <-resp:
		if r.ClientID != 1 || r.Spawn != (mgl32.Vec3{1, 1, 1}) {
			t.Fatalf("join response %+v", r)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("join not processed")
	}
	cancel()
	if err := <-done; err != context.Canceled {
		t.Fatalf("Run returned %v", err)
	}
}

func TestDoneClosesWhenRunReturns(t *testing.T) {
	w := testWorld(WorldConfig{})
	select {
	case <-w.Done():
		t.Fatalf("Done closed before Run")
	default:
	}
	go func() { _ = w.Run(context.Background()) }()
	w.Stop()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("Done not closed after Stop")
	}
	// With the leave buffer full only Done can unblock a sender.
	for i := 0; i < cap(w.leave); i++ {
		w.Leave() <- uint64(i)
	}
	select {
	case w.Leave() <- 99:
		t.Fatalf("leave accepted past a full buffer")
	case <-w.Done():
	}
}
