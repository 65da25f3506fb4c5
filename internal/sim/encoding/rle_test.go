package encoding

import (
	"errors"
	"testing"
)

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint8, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 3)
	for i := 0; i < 50; i++ {
		in = append(in, 0)
	}
	in = append(in, 3, 2, 2, 2)

	enc := AppendRLE(nil, in)
	out, err := DecodeRLE(enc, len(in))
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_UniformGridIsOnePair(t *testing.T) {
	in := make([]uint8, 4096)
	enc := AppendRLE(nil, in)
	if len(enc) != 3 {
		t.Fatalf("expected 3 bytes (id + 2-byte run), got %d", len(enc))
	}
}

func TestDecodeRLE_RejectsWrongLength(t *testing.T) {
	enc := AppendRLE(nil, []uint8{1, 1, 1})
	if _, err := DecodeRLE(enc, 2); !errors.Is(err, ErrRunOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
	if _, err := DecodeRLE(enc, 4); err == nil {
		t.Fatalf("expected short decode error")
	}
	if _, err := DecodeRLE([]byte{0x80}, 1); err == nil {
		t.Fatalf("expected bad varint error")
	}
}
