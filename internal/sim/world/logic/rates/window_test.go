package rates

import "testing"

func TestWindowAllow(t *testing.T) {
	w := Window{Ticks: 10, Max: 2}
	start, count := uint64(0), 0
	var ok bool
	var cd uint64

	start, count, ok, _ = w.Allow(1, start, count)
	if !ok {
		t.Fatalf("first event refused")
	}
	start, count, ok, _ = w.Allow(2, start, count)
	if !ok {
		t.Fatalf("second event refused")
	}
	start, count, ok, cd = w.Allow(3, start, count)
	if ok || cd != 7 {
		t.Fatalf("third event ok=%v cooldown=%d", ok, cd)
	}
	_, count, ok, _ = w.Allow(12, start, count)
	if !ok || count != 1 {
		t.Fatalf("window did not reopen: ok=%v count=%d", ok, count)
	}
}

func TestWindowDisabled(t *testing.T) {
	for _, w := range []Window{{}, {Ticks: 5}, {Max: 3}} {
		if _, _, ok, _ := w.Allow(100, 0, 1000); !ok {
			t.Fatalf("disabled window %+v refused", w)
		}
	}
}
