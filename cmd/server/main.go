package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	persistlog "voxels.dev/internal/persistence/log"
	"voxels.dev/internal/sim/tuning"
	"voxels.dev/internal/sim/world"
	"voxels.dev/internal/sim/world/logic/rates"
	"voxels.dev/internal/sim/world/stream"
	"voxels.dev/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id (names the data directory and index rows)")
		configDir  = flag.String("configs", "./configs", "config directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		seed       = flag.Int64("seed", 0, "override worldgen seed (0 keeps tuning.yaml)")
		maxClients = flag.Int("max_clients", 64, "maximum concurrent sessions (0 = unlimited)")
		disableDB  = flag.Bool("disable_db", false, "disable the chunk/session index")
		disableLog = flag.Bool("disable_log", false, "disable the compressed JSONL chunk/session logs")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		logger.Printf("tuning not found (%s); using defaults", tp)
		tune = tuning.Defaults()
	}
	if *seed != 0 {
		tune.WorldGen.Seed = *seed
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	// Optional: read-model index backend (does not affect the simulation).
	idx, err := openRuntimeIndex(worldDir, *worldID, *disableDB, logger)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertTuning(tune); err != nil {
			logger.Printf("index backend: upsert tuning: %v", err)
		}
	}

	logMirror, err := buildLogMirrorRuntime(*dataDir, logger)
	if err != nil {
		logger.Fatalf("log mirror: %v", err)
	}
	// Registered before the loggers so their final segments are queued before the mirror drains.
	defer logMirror.Close()

	w := world.New(worldConfig(tune), logger)

	var chunkLog world.ChunkLogger
	var sessionLog world.SessionLogger
	if !*disableLog {
		opts := logMirror.logOptions()
		cl := persistlog.NewChunkLoggerWithOptions(filepath.Join(worldDir, "events"), opts)
		sl := persistlog.NewSessionLoggerWithOptions(filepath.Join(worldDir, "events"), opts)
		defer cl.Close()
		defer sl.Close()
		chunkLog, sessionLog = cl, sl
	}
	if idx != nil {
		w.SetChunkLogger(multiChunkLogger{a: chunkLog, b: idx})
		w.SetSessionLogger(multiSessionLogger{a: sessionLog, b: idx})
	} else {
		if chunkLog != nil {
			w.SetChunkLogger(chunkLog)
		}
		if sessionLog != nil {
			w.SetSessionLogger(sessionLog)
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	worldDone := startWorld(ctx, w, logger)
	// Runs before the logger and index closers: the last tick must finish writing first.
	defer func() {
		cancel()
		<-worldDone
	}()

	wsSrv := ws.NewServer(w, ws.ServerConfig{
		ProtocolVersion: tune.ProtocolVersion,
		ProtocolID:      tune.ProtocolID,
		Channels:        tune.ChannelSet(),
		BytesPerSecond:  tune.BytesPerSecond(),
		MaxClients:      *maxClients,
	}, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", metricsHandler(*worldID, w, wsSrv, idx, logMirror))

	enableAdminHTTP := envBool("VOXELS_ENABLE_ADMIN_HTTP", defaultEnableAdminHTTP())
	enablePprofHTTP := envBool("VOXELS_ENABLE_PPROF_HTTP", false)
	if enableAdminHTTP {
		// Local-only admin endpoints.
		mux.HandleFunc("/admin/v1/state", stateHandler(*worldID, w, wsSrv))
	} else {
		logger.Printf("admin endpoints disabled (VOXELS_ENABLE_ADMIN_HTTP=false)")
	}
	if enablePprofHTTP {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	} else {
		logger.Printf("pprof endpoints disabled (VOXELS_ENABLE_PPROF_HTTP=false)")
	}
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	p := w.Params()
	logger.Printf("listening on %s (seed=%d radius=%d layers=%d tick=%dHz)", *addr, p.Seed, p.ChunkRadius, p.VerticalChunks, p.TickRateHz)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}
}

// startWorld runs the tick loop until ctx ends. The returned channel closes once Run has returned.
func startWorld(ctx context.Context, w *world.World, logger *log.Logger) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()
	return done
}

func worldConfig(t tuning.Tuning) world.WorldConfig {
	var spawn mgl32.Vec3
	copy(spawn[:], t.Spawn)
	return world.WorldConfig{
		TickRateHz:   t.TickRateHz,
		PlayerSpeed:  t.PlayerSpeed,
		Spawn:        spawn,
		SyncInterval: t.SyncInterval(),
		Stream: stream.Config{
			Radius:       t.ChunkRadius,
			MaxRadius:    t.MaxChunkRadius,
			Layers:       t.VerticalChunks,
			DrainPerTick: t.DrainPerTick,
		},
		Gen: t.GenConfig(),
		CommandLimit: rates.Window{
			Ticks: uint64(t.RateLimits.CommandWindowTicks),
			Max:   t.RateLimits.CommandMax,
		},
	}
}

func stateHandler(worldID string, w *world.World, wsSrv *ws.Server) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}
		rw.Header().Set("Content-Type", "application/json")
		var sessions int
		var rejected uint64
		if wsSrv != nil {
			sessions, rejected = wsSrv.Clients(), wsSrv.Rejected()
		}
		resp := world.StateReport{
			WorldID:  worldID,
			Tick:     w.CurrentTick(),
			Params:   w.Params(),
			Metrics:  w.Metrics(),
			Sessions: sessions,
			Rejected: rejected,
		}
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func defaultEnableAdminHTTP() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("DEPLOY_ENV"))) {
	case "staging", "production":
		return false
	default:
		return true
	}
}

type multiChunkLogger struct {
	a world.ChunkLogger
	b world.ChunkLogger
}

func (m multiChunkLogger) WriteChunk(entry world.ChunkLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteChunk(entry)
	}
	if m.b != nil {
		_ = m.b.WriteChunk(entry)
	}
	return nil
}

type multiSessionLogger struct {
	a world.SessionLogger
	b world.SessionLogger
}

func (m multiSessionLogger) WriteSession(entry world.SessionLogEntry) error {
	if m.a != nil {
		_ = m.a.WriteSession(entry)
	}
	if m.b != nil {
		_ = m.b.WriteSession(entry)
	}
	return nil
}
