package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	persistlog "voxels.dev/internal/persistence/log"
	"voxels.dev/internal/sim/world"
)

func TestParseAABB(t *testing.T) {
	min, max, err := parseAABB("3,0,-2:-1,15,4")
	if err != nil {
		t.Fatalf("parseAABB: %v", err)
	}
	if min != [3]int{-1, 0, -2} || max != [3]int{3, 15, 4} {
		t.Fatalf("min=%v max=%v", min, max)
	}
	if _, _, err := parseAABB("1,2,3"); err == nil {
		t.Fatalf("expected error for single corner")
	}
}

func TestReadChunkLogFilters(t *testing.T) {
	worldDir := t.TempDir()
	l := persistlog.NewChunkLogger(filepath.Join(worldDir, "events"))
	entries := []world.ChunkLogEntry{
		{Tick: 1, Key: [3]int{0, 0, 0}, ID: 1},
		{Tick: 2, Key: [3]int{5, 0, 0}, ID: 2},
		{Tick: 9, Key: [3]int{1, 1, 1}, ID: 3},
	}
	for _, e := range entries {
		if err := l.WriteChunk(e); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	got, err := readChunkLog(worldDir, 0, 5, [3]int{-2, -2, -2}, [3]int{2, 2, 2})
	if err != nil {
		t.Fatalf("readChunkLog: %v", err)
	}
	if len(got) != 1 || got[0].ID != 1 {
		t.Fatalf("filtered %+v", got)
	}
}

func TestFetchStateDecodesReport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/v1/state" {
			http.NotFound(rw, r)
			return
		}
		_ = json.NewEncoder(rw).Encode(world.StateReport{
			WorldID:  "w1",
			Tick:     42,
			Sessions: 2,
			Metrics:  world.WorldMetrics{ChunkRadius: 3, GeneratedChunks: 7},
		})
	}))
	defer srv.Close()

	st, err := fetchState(context.Background(), srv.Client(), srv.URL+"/")
	if err != nil {
		t.Fatalf("fetchState: %v", err)
	}
	if st.WorldID != "w1" || st.Tick != 42 || st.Sessions != 2 || st.Metrics.GeneratedChunks != 7 {
		t.Fatalf("state %+v", st)
	}
}

func TestFetchStateReportsForbidden(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		http.Error(rw, "forbidden", http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := fetchState(context.Background(), srv.Client(), srv.URL); err == nil || !strings.Contains(err.Error(), "status=403") {
		t.Fatalf("err=%v", err)
	}
}
