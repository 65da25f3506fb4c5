package main

import (
	"fmt"
	"io"
	"net/http"

	"voxels.dev/internal/persistence/indexdb"
	"voxels.dev/internal/persistence/mirror"
	"voxels.dev/internal/sim/world"
	"voxels.dev/internal/transport/ws"
)

func metricsHandler(worldID string, w *world.World, wsSrv *ws.Server, idx runtimeIndex, lm *logMirrorRuntime) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")
		writeWorldMetrics(rw, worldID, w.CurrentTick(), w.Metrics())
		if wsSrv != nil {
			writeTransportMetrics(rw, worldID, wsSrv)
		}
		writeIndexMetrics(rw, idx)
		if st, ok := lm.Stats(); ok {
			writeLogMirrorMetrics(rw, st)
		}
	}
}

// Minimal Prometheus exposition format.
func writeWorldMetrics(rw io.Writer, worldID string, tick uint64, m world.WorldMetrics) {
	if m.Tick != 0 {
		tick = m.Tick
	}
	fmt.Fprintf(rw, "# HELP voxels_world_tick Current world tick.\n")
	fmt.Fprintf(rw, "# TYPE voxels_world_tick gauge\n")
	fmt.Fprintf(rw, "voxels_world_tick{world=%q} %d\n", worldID, tick)

	fmt.Fprintf(rw, "# HELP voxels_world_clients Players currently in the world.\n")
	fmt.Fprintf(rw, "# TYPE voxels_world_clients gauge\n")
	fmt.Fprintf(rw, "voxels_world_clients{world=%q} %d\n", worldID, m.Clients)

	fmt.Fprintf(rw, "# HELP voxels_world_chunks Chunk counts by state.\n")
	fmt.Fprintf(rw, "# TYPE voxels_world_chunks gauge\n")
	fmt.Fprintf(rw, "voxels_world_chunks{world=%q,state=%q} %d\n", worldID, "seen", m.SeenChunks)
	fmt.Fprintf(rw, "voxels_world_chunks{world=%q,state=%q} %d\n", worldID, "queued", m.QueuedChunks)
	fmt.Fprintf(rw, "voxels_world_chunks{world=%q,state=%q} %d\n", worldID, "generated", m.GeneratedChunks)

	fmt.Fprintf(rw, "# HELP voxels_world_chunk_radius Current streaming radius in chunks.\n")
	fmt.Fprintf(rw, "# TYPE voxels_world_chunk_radius gauge\n")
	fmt.Fprintf(rw, "voxels_world_chunk_radius{world=%q} %d\n", worldID, m.ChunkRadius)

	fmt.Fprintf(rw, "# HELP voxels_world_queue_depth Channel backlog depth.\n")
	fmt.Fprintf(rw, "# TYPE voxels_world_queue_depth gauge\n")
	fmt.Fprintf(rw, "voxels_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "inbox", m.QueueDepths.Inbox)
	fmt.Fprintf(rw, "voxels_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "join", m.QueueDepths.Join)
	fmt.Fprintf(rw, "voxels_world_queue_depth{world=%q,queue=%q} %d\n", worldID, "leave", m.QueueDepths.Leave)

	fmt.Fprintf(rw, "# HELP voxels_world_step_ms Last tick step duration in milliseconds.\n")
	fmt.Fprintf(rw, "# TYPE voxels_world_step_ms gauge\n")
	fmt.Fprintf(rw, "voxels_world_step_ms{world=%q} %.3f\n", worldID, m.StepMS)

	fmt.Fprintf(rw, "# HELP voxels_world_saturated_drops_total Frames dropped on saturated channels.\n")
	fmt.Fprintf(rw, "# TYPE voxels_world_saturated_drops_total counter\n")
	fmt.Fprintf(rw, "voxels_world_saturated_drops_total{world=%q} %d\n", worldID, m.SaturatedDrops)
}

func writeTransportMetrics(rw io.Writer, worldID string, s *ws.Server) {
	fmt.Fprintf(rw, "# HELP voxels_ws_sessions Open websocket sessions.\n")
	fmt.Fprintf(rw, "# TYPE voxels_ws_sessions gauge\n")
	fmt.Fprintf(rw, "voxels_ws_sessions{world=%q} %d\n", worldID, s.Clients())

	fmt.Fprintf(rw, "# HELP voxels_ws_rejected_total Handshakes answered with ERROR.\n")
	fmt.Fprintf(rw, "# TYPE voxels_ws_rejected_total counter\n")
	fmt.Fprintf(rw, "voxels_ws_rejected_total{world=%q} %d\n", worldID, s.Rejected())

	fmt.Fprintf(rw, "# HELP voxels_ws_dropped_frames_total Inbound frames dropped as malformed.\n")
	fmt.Fprintf(rw, "# TYPE voxels_ws_dropped_frames_total counter\n")
	fmt.Fprintf(rw, "voxels_ws_dropped_frames_total{world=%q} %d\n", worldID, s.Dropped())
}

func writeIndexMetrics(rw io.Writer, idx runtimeIndex) {
	switch x := idx.(type) {
	case *indexdb.SQLiteIndex:
		s := x.Stats()
		fmt.Fprintf(rw, "# HELP voxels_index_queue_depth Index writer queue depth.\n")
		fmt.Fprintf(rw, "# TYPE voxels_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxels_index_queue_depth{backend=\"sqlite\"} %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP voxels_index_dropped_total Index writes dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE voxels_index_dropped_total counter\n")
		fmt.Fprintf(rw, "voxels_index_dropped_total{backend=\"sqlite\",kind=\"chunk\"} %d\n", s.DropChunkTotal)
		fmt.Fprintf(rw, "voxels_index_dropped_total{backend=\"sqlite\",kind=\"session\"} %d\n", s.DropSessionTotal)
	case *indexdb.IngestIndex:
		s := x.Stats()
		fmt.Fprintf(rw, "# HELP voxels_index_queue_depth Index writer queue depth.\n")
		fmt.Fprintf(rw, "# TYPE voxels_index_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxels_index_queue_depth{backend=\"http\"} %d\n", s.QueueDepth)
		fmt.Fprintf(rw, "# HELP voxels_index_dropped_total Index writes dropped because the queue was full.\n")
		fmt.Fprintf(rw, "# TYPE voxels_index_dropped_total counter\n")
		fmt.Fprintf(rw, "voxels_index_dropped_total{backend=\"http\",kind=\"all\"} %d\n", s.QueueDroppedTotal)
		fmt.Fprintf(rw, "# HELP voxels_index_flush_fail_total Failed ingest batch posts.\n")
		fmt.Fprintf(rw, "# TYPE voxels_index_flush_fail_total counter\n")
		fmt.Fprintf(rw, "voxels_index_flush_fail_total %d\n", s.FlushFailTotal)
	}
}

func writeLogMirrorMetrics(rw io.Writer, s mirror.Stats) {
	fmt.Fprintf(rw, "# HELP voxels_log_mirror_queue_depth Log segments waiting for upload.\n")
	fmt.Fprintf(rw, "# TYPE voxels_log_mirror_queue_depth gauge\n")
	fmt.Fprintf(rw, "voxels_log_mirror_queue_depth %d\n", s.QueueDepth)
	fmt.Fprintf(rw, "# HELP voxels_log_mirror_uploads_total Log segment uploads by result.\n")
	fmt.Fprintf(rw, "# TYPE voxels_log_mirror_uploads_total counter\n")
	fmt.Fprintf(rw, "voxels_log_mirror_uploads_total{result=\"ok\"} %d\n", s.UploadSuccessTotal)
	fmt.Fprintf(rw, "voxels_log_mirror_uploads_total{result=\"fail\"} %d\n", s.UploadFailTotal)
	fmt.Fprintf(rw, "voxels_log_mirror_uploads_total{result=\"dropped\"} %d\n", s.DroppedTotal)
	fmt.Fprintf(rw, "# HELP voxels_log_mirror_last_success_unix Unix time of the last successful upload.\n")
	fmt.Fprintf(rw, "# TYPE voxels_log_mirror_last_success_unix gauge\n")
	fmt.Fprintf(rw, "voxels_log_mirror_last_success_unix %d\n", s.LastSuccessUnix)
}
