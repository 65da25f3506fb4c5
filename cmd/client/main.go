package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxels.dev/internal/client"
	"voxels.dev/internal/sim/tuning"
	"voxels.dev/internal/sim/world/stream"
	"voxels.dev/internal/transport/ws"
)

func main() {
	var (
		url         = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name        = flag.String("name", "player", "player name")
		offline     = flag.Bool("offline", false, "single-player: stream and generate chunks locally")
		tuningPath  = flag.String("tuning", "./configs/tuning.yaml", "tuning.yaml for offline mode and protocol id")
		fps         = flag.Int("fps", 20, "client frames per second")
		dirFlag     = flag.String("dir", "0,0,0", "constant movement direction x,y,z")
		duration    = flag.Duration("duration", 0, "exit after this long (0 = until interrupted)")
		statusEvery = flag.Int("status_every", 100, "log a status line every N frames")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[client] ", log.LstdFlags|log.Lmicroseconds)

	tune, err := tuning.Load(*tuningPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load tuning: %v", err)
		}
		tune = tuning.Defaults()
	}
	dir, err := parseDir(*dirFlag)
	if err != nil {
		logger.Fatalf("-dir: %v", err)
	}
	if *fps <= 0 {
		*fps = 20
	}

	ctx, cancel := signalContext()
	defer cancel()
	if *duration > 0 {
		var c2 context.CancelFunc
		ctx, c2 = context.WithTimeout(ctx, *duration)
		defer c2()
	}

	lines := readLines(os.Stdin)
	var spawn mgl32.Vec3
	copy(spawn[:], tune.Spawn)
	ccfg := client.Config{Speed: tune.PlayerSpeed, Spawn: spawn}

	var (
		frame   func(dt time.Duration)
		command func(line string) error
		state   *client.State
	)
	if *offline {
		o := client.NewOffline(client.OfflineConfig{
			Client: ccfg,
			Stream: stream.Config{Radius: tune.ChunkRadius, MaxRadius: tune.MaxChunkRadius, Layers: tune.VerticalChunks, DrainPerTick: tune.DrainPerTick},
			Gen:    tune.GenConfig(),
		}, logger)
		state = o.State()
		frame = func(dt time.Duration) { o.Frame(dir, dt) }
		command = o.Command
		logger.Printf("offline: seed=%d radius=%d pending=%d", tune.WorldGen.Seed, tune.ChunkRadius, o.Stream().Pending())
	} else {
		dctx, dcancel := context.WithTimeout(ctx, 10*time.Second)
		conn, err := ws.Dial(dctx, ws.DialConfig{
			URL:             *url,
			Name:            *name,
			ProtocolVersion: tune.ProtocolVersion,
			ProtocolID:      tune.ProtocolID,
			BytesPerSecond:  tune.BytesPerSecond(),
		})
		dcancel()
		if err != nil {
			logger.Fatalf("connect: %v", err)
		}
		defer conn.Close()

		wel := conn.Welcome()
		logger.Printf("WELCOME client_id=%d session=%s tick_rate=%d seed=%d radius=%d",
			wel.ClientID, wel.SessionID, wel.WorldParams.TickRateHz, wel.WorldParams.Seed, wel.WorldParams.ChunkRadius)

		ccfg.Speed = wel.WorldParams.PlayerSpeed
		ccfg.Spawn = mgl32.Vec3(wel.WorldParams.Spawn)
		sess := client.NewSession(client.NewState(ccfg, wel.ClientID, logger), conn)
		state = sess.State()
		frame = func(dt time.Duration) {
			if _, err := sess.Frame(dir, dt); err != nil {
				logger.Printf("send: %v", err)
			}
		}
		command = sess.Command
		go func() {
			<-conn.Done()
			if err := conn.Err(); err != nil {
				logger.Printf("disconnected: %v", err)
			}
			cancel()
		}()
	}

	dt := time.Second / time.Duration(*fps)
	ticker := time.NewTicker(dt)
	defer ticker.Stop()
	frames := 0
	for {
		select {
		case <-ctx.Done():
			logStatus(logger, state)
			return
		case line, ok := <-lines:
			if !ok {
				lines = nil
				continue
			}
			if line = recall(state, line); line == "" {
				continue
			}
			if err := command(line); err != nil {
				logger.Printf("%s: %v", line, err)
			}
		case <-ticker.C:
			frame(dt)
			frames++
			if *statusEvery > 0 && frames%*statusEvery == 0 {
				logStatus(logger, state)
			}
		}
	}
}

// recall expands "!!" to the most recent command.
func recall(s *client.State, line string) string {
	line = strings.TrimSpace(line)
	if line != "!!" {
		return line
	}
	prev, ok := s.History().Older()
	if !ok {
		return ""
	}
	return prev
}

func logStatus(logger *log.Logger, s *client.State) {
	p := s.Position()
	logger.Printf("pos=(%.2f,%.2f,%.2f) chunk=%v rendered=%d quads=%d peers=%d cubes=%d",
		p.X(), p.Y(), p.Z(), stream.ChunkOf(p), s.Rendered(), s.Quads(), len(s.Lobby()), len(s.Cubes()))
}

func parseDir(s string) (mgl32.Vec3, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return mgl32.Vec3{}, fmt.Errorf("want x,y,z, got %q", s)
	}
	var v mgl32.Vec3
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 32)
		if err != nil {
			return mgl32.Vec3{}, err
		}
		v[i] = float32(f)
	}
	return v, nil
}

func readLines(f *os.File) <-chan string {
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(f)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	return ch
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
