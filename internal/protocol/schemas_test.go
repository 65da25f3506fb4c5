package protocol_test

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"

	"voxels.dev/internal/protocol"
)

func TestSchemas_ValidateSamples(t *testing.T) {
	hello, err := protocol.ParseHello([]byte(`{
	  "type":"HELLO",
	  "protocol_version":"1.0",
	  "protocol_id":7,
	  "name":"client1"
	}`))
	if err != nil {
		t.Fatalf("hello: %v", err)
	}
	if hello.ProtocolID != 7 || hello.Name != "client1" {
		t.Fatalf("hello decoded as %+v", hello)
	}

	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		ClientID:        1,
		SessionID:       uuid.NewString(),
		WorldParams: protocol.WorldParams{
			TickRateHz:     20,
			ChunkSize:      [3]int{16, 16, 16},
			ChunkRadius:    3,
			VerticalChunks: 16,
			Seed:           1,
			PlayerSpeed:    12,
			Spawn:          [3]float32{0, 74, 0},
		},
		Channels: protocol.DefaultChannelSet().Params(),
	}
	raw, _ := json.Marshal(welcome)
	got, err := protocol.ParseWelcome(raw)
	if err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if got.SessionID != welcome.SessionID || len(got.Channels) != protocol.NumChannels {
		t.Fatalf("welcome decoded as %+v", got)
	}
	if protocol.ChannelSetFromParams(got.Channels) != protocol.DefaultChannelSet() {
		t.Fatalf("channel params did not round-trip")
	}
}

func TestSchemas_RejectBadHello(t *testing.T) {
	cases := map[string]string{
		"missing id":    `{"type":"HELLO","protocol_version":"1.0"}`,
		"wrong type":    `{"type":"WELCOME","protocol_version":"1.0","protocol_id":7}`,
		"extra field":   `{"type":"HELLO","protocol_version":"1.0","protocol_id":7,"admin":true}`,
		"string id":     `{"type":"HELLO","protocol_version":"1.0","protocol_id":"7"}`,
		"not json":      `HELLO`,
		"empty version": `{"type":"HELLO","protocol_version":"","protocol_id":7}`,
	}
	for name, raw := range cases {
		if _, err := protocol.ParseHello([]byte(raw)); !errors.Is(err, protocol.ErrMalformed) {
			t.Fatalf("%s: err=%v", name, err)
		}
	}
}

func TestSchemas_RejectBadSessionID(t *testing.T) {
	raw := `{"type":"WELCOME","protocol_version":"1.0","client_id":1,"session_id":"nope",
	  "world_params":{"tick_rate_hz":20,"chunk_size":[16,16,16],"chunk_radius":3,"vertical_chunks":16,"seed":1},
	  "channels":[]}`
	if _, err := protocol.ParseWelcome([]byte(raw)); err == nil {
		t.Fatalf("expected invalid uuid to be rejected")
	}
}

func TestCheckHello(t *testing.T) {
	ok := protocol.HelloMsg{Type: protocol.TypeHello, ProtocolVersion: protocol.Version, ProtocolID: protocol.DefaultID}
	if code := protocol.CheckHello(ok, protocol.Version, protocol.DefaultID); code != "" {
		t.Fatalf("valid hello rejected: %s", code)
	}
	bad := ok
	bad.ProtocolID = 8
	if code := protocol.CheckHello(bad, protocol.Version, protocol.DefaultID); code != protocol.ErrProtoID {
		t.Fatalf("mismatched id code=%q", code)
	}
	bad = ok
	bad.ProtocolVersion = "0.1"
	if code := protocol.CheckHello(bad, protocol.Version, protocol.DefaultID); code != protocol.ErrProtoVersion {
		t.Fatalf("mismatched version code=%q", code)
	}
}
