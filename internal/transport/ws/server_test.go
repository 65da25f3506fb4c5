package ws

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/gorilla/websocket"

	"voxels.dev/internal/protocol"
	"voxels.dev/internal/sim/world"
	"voxels.dev/internal/sim/world/stream"
	"voxels.dev/internal/sim/world/terrain/gen"
)

func startServer(t *testing.T, cfg ServerConfig) (*world.World, *Server, string) {
	t.Helper()
	w := world.New(world.WorldConfig{
		TickRateHz:   50,
		Spawn:        mgl32.Vec3{0, 74, 0},
		SyncInterval: 100 * time.Millisecond,
		Stream:       stream.Config{Radius: 1, Layers: 1, DrainPerTick: 3},
		Gen:          gen.Config{Seed: 1},
	}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = w.Run(ctx) }()

	s := NewServer(w, cfg, nil)
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		srv.Close()
		cancel()
	})
	return w, s, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url, name string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, DialConfig{URL: url, Name: name})
	if err != nil {
		t.Fatalf("dial %s: %v", name, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// collect drains c until done reports true or the deadline passes.
func collect(t *testing.T, c *Client, done func([]protocol.Message) bool) []protocol.Message {
	t.Helper()
	var got []protocol.Message
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		got = append(got, c.Drain(0)...)
		if done(got) {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out; received %d messages", len(got))
	return nil
}

func count[T protocol.Message](ms []protocol.Message) int {
	n := 0
	for _, m := range ms {
		if _, ok := m.(T); ok {
			n++
		}
	}
	return n
}

func TestHandshakeAndChunkStream(t *testing.T) {
	_, s, url := startServer(t, ServerConfig{})
	c := dial(t, url, "alice")

	wel := c.Welcome()
	if wel.ClientID == 0 || wel.SessionID == "" {
		t.Fatalf("welcome %+v", wel)
	}
	if wel.WorldParams.ChunkRadius != 1 || wel.WorldParams.ChunkSize != [3]int{16, 16, 16} {
		t.Fatalf("world params %+v", wel.WorldParams)
	}
	if len(wel.Channels) != protocol.NumChannels {
		t.Fatalf("channels %+v", wel.Channels)
	}

	got := collect(t, c, func(ms []protocol.Message) bool {
		return count[protocol.ChunkMsg](ms) >= 5 && count[protocol.PlayerCreate](ms) >= 1
	})
	seen := map[[3]int]bool{}
	for _, m := range got {
		if cm, ok := m.(protocol.ChunkMsg); ok {
			k := cm.Chunk.Key
			if seen[[3]int{k.X, k.Y, k.Z}] {
				t.Fatalf("chunk %v delivered twice", k)
			}
			seen[[3]int{k.X, k.Y, k.Z}] = true
		}
	}
	if s.Clients() != 1 {
		t.Fatalf("clients=%d", s.Clients())
	}
}

func TestMovementIsReplicatedThroughSync(t *testing.T) {
	_, _, url := startServer(t, ServerConfig{})
	a := dial(t, url, "a")
	b := dial(t, url, "b")

	if err := a.Send(protocol.Movement{Direction: mgl32.Vec3{1, 0, 0}}); err != nil {
		t.Fatalf("send: %v", err)
	}
	collect(t, b, func(ms []protocol.Message) bool {
		for _, m := range ms {
			if ps, ok := m.(protocol.PositionSync); ok && ps.ClientID == a.ClientID() && ps.Position.X() > 0 {
				return true
			}
		}
		return false
	})
}

func TestLeaveBroadcastsRemove(t *testing.T) {
	_, _, url := startServer(t, ServerConfig{})
	a := dial(t, url, "a")
	b := dial(t, url, "b")
	bid := b.ClientID()
	collect(t, a, func(ms []protocol.Message) bool { return count[protocol.PlayerCreate](ms) >= 2 })

	_ = b.Close()
	collect(t, a, func(ms []protocol.Message) bool {
		for _, m := range ms {
			if rm, ok := m.(protocol.PlayerRemove); ok && rm.ClientID == bid {
				return true
			}
		}
		return false
	})
}

func TestHandshakeRejections(t *testing.T) {
	_, s, url := startServer(t, ServerConfig{MaxClients: 1})
	ctx := context.Background()

	cases := []struct {
		name string
		cfg  DialConfig
		code string
	}{
		{"wrong id", DialConfig{URL: url, ProtocolID: 8}, protocol.ErrProtoID},
		{"wrong version", DialConfig{URL: url, ProtocolVersion: "0.9"}, protocol.ErrProtoVersion},
	}
	for _, c := range cases {
		_, err := Dial(ctx, c.cfg)
		var rej *RejectedError
		if !errors.As(err, &rej) || rej.Code != c.code {
			t.Fatalf("%s: err=%v, want %s", c.name, err, c.code)
		}
	}

	first := dial(t, url, "first")
	_, err := Dial(ctx, DialConfig{URL: url, Name: "second"})
	var rej *RejectedError
	if !errors.As(err, &rej) || rej.Code != protocol.ErrServerFull {
		t.Fatalf("second client err=%v, want server full", err)
	}
	if s.Rejected() != 3 {
		t.Fatalf("rejected=%d", s.Rejected())
	}
	_ = first
}

func TestMalformedHelloIsRejected(t *testing.T) {
	_, _, url := startServer(t, ServerConfig{})
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"HELLO","protocol_version":"1.0"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !strings.Contains(string(msg), protocol.ErrProtoBadRequest) {
		t.Fatalf("reply %s", msg)
	}
	if _, _, err := conn.ReadMessage(); !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("expected policy-violation close, got %v", err)
	}
}

func TestServerDropsServerChannelFrames(t *testing.T) {
	if _, ok := decodeClientFrame(protocol.Encode(protocol.PositionSync{ClientID: 1}).Encode()); ok {
		t.Fatalf("server-only channel accepted from client")
	}
	if _, ok := decodeClientFrame([]byte{0}); ok {
		t.Fatalf("short frame accepted")
	}
	m, ok := decodeClientFrame(protocol.Encode(protocol.Command{Line: "/chunk radius 2"}).Encode())
	if !ok || m.(protocol.Command).Line != "/chunk radius 2" {
		t.Fatalf("command frame rejected: %v %v", m, ok)
	}
}

func TestSessionEndsAfterWorldStops(t *testing.T) {
	w, s, url := startServer(t, ServerConfig{})
	c := dial(t, url, "late")
	w.Stop()
	<-w.Done()
	// Fill the leave queue so only Done can release the handler.
	for full := false; !full; {
		select {
		case w.Leave() <- 0:
		default:
			full = true
		}
	}
	_ = c.Close()

	deadline := time.Now().Add(5 * time.Second)
	for s.Clients() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("handler still holds the session after the world stopped (clients=%d)", s.Clients())
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestUnknownRejectCodeIsNormalised(t *testing.T) {
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: "E_BOGUS", Message: "nope"})
	}))
	defer srv.Close()

	_, err := Dial(context.Background(), DialConfig{URL: "ws" + strings.TrimPrefix(srv.URL, "http")})
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("err=%v, want RejectedError", err)
	}
	if rej.Code != protocol.ErrInternal || !strings.Contains(rej.Message, "E_BOGUS") {
		t.Fatalf("got code=%q message=%q", rej.Code, rej.Message)
	}
}
