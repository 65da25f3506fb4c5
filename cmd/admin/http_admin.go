package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"voxels.dev/internal/sim/world"
)

func stateCmd(args []string) {
	fs := flag.NewFlagSet("state", flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	_ = fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := fetchState(ctx, http.DefaultClient, *baseURL)
	if err != nil {
		fmt.Fprintln(os.Stderr, "state:", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "world=%s tick=%d sessions=%d radius=%d seen=%d queued=%d generated=%d step_ms=%.2f\n",
		st.WorldID, st.Tick, st.Sessions, st.Metrics.ChunkRadius,
		st.Metrics.SeenChunks, st.Metrics.QueuedChunks, st.Metrics.GeneratedChunks, st.Metrics.StepMS)
	printJSON(st)
}

// fetchState reads /admin/v1/state. The endpoint only answers loopback callers.
func fetchState(ctx context.Context, cl *http.Client, baseURL string) (world.StateReport, error) {
	u := strings.TrimRight(strings.TrimSpace(baseURL), "/") + "/admin/v1/state"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return world.StateReport{}, err
	}
	resp, err := cl.Do(req)
	if err != nil {
		return world.StateReport{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return world.StateReport{}, fmt.Errorf("status=%d body=%s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var st world.StateReport
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return world.StateReport{}, fmt.Errorf("decode: %w", err)
	}
	return st, nil
}
