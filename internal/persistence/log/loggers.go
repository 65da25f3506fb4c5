package log

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"voxels.dev/internal/sim/world"
)

const defaultRotateLayout = "2006-01-02-15"

// Options tune segment rotation. OnClose receives the path of every segment once it is
// closed and complete, which is when it becomes safe to upload.
type Options struct {
	RotateLayout string
	OnClose      func(path string)
}

// JSONLZstdWriter appends JSON lines to rotated zstd files named <prefix>-<segment>.jsonl.zst.
// Segments are hourly unless Options.RotateLayout is finer.
type JSONLZstdWriter struct {
	baseDir string
	prefix  string
	layout  string
	onClose func(path string)
	now     func() time.Time

	mu     sync.Mutex
	closed bool
	curSeg string
	f      *os.File
	enc    *zstd.Encoder
	w      *bufio.Writer
}

func NewJSONLZstdWriter(baseDir, prefix string) *JSONLZstdWriter {
	return NewJSONLZstdWriterWithOptions(baseDir, prefix, Options{})
}

func NewJSONLZstdWriterWithOptions(baseDir, prefix string, opts Options) *JSONLZstdWriter {
	layout := opts.RotateLayout
	if layout == "" {
		layout = defaultRotateLayout
	}
	return &JSONLZstdWriter{
		baseDir: baseDir,
		prefix:  prefix,
		layout:  layout,
		onClose: opts.OnClose,
		now:     time.Now,
	}
}

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("log writer closed")

// Close flushes the open segment. Later writes fail with ErrClosed instead of opening a new one.
func (w *JSONLZstdWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return w.closeLocked()
}

func (w *JSONLZstdWriter) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}

	seg := w.now().UTC().Format(w.layout)
	if seg != w.curSeg {
		if err := w.rotateLocked(seg); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *JSONLZstdWriter) rotateLocked(seg string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	path := w.pathFor(seg)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return err
	}
	w.f = f
	w.enc = enc
	w.w = bufio.NewWriterSize(enc, 128*1024)
	w.curSeg = seg
	return nil
}

func (w *JSONLZstdWriter) closeLocked() error {
	var err1 error
	segPath := ""
	if w.f != nil {
		segPath = w.f.Name()
	}
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curSeg = ""
	if segPath != "" && w.onClose != nil {
		w.onClose(segPath)
	}
	return err1
}

func (w *JSONLZstdWriter) pathFor(seg string) string {
	return filepath.Join(w.baseDir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, seg))
}

// ReadJSONL decodes every line of a .jsonl.zst file into fn.
// Appended zstd frames from reopened files are read back to back.
func ReadJSONL(path string, fn func(line []byte) error) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	dec, err := zstd.NewReader(f)
	if err != nil {
		return err
	}
	defer dec.Close()

	sc := bufio.NewScanner(dec)
	sc.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	for sc.Scan() {
		if len(sc.Bytes()) == 0 {
			continue
		}
		if err := fn(sc.Bytes()); err != nil {
			return err
		}
	}
	return sc.Err()
}

// ChunkLogger writes one JSONL entry per generated or replayed chunk (compressed).
type ChunkLogger struct{ w *JSONLZstdWriter }

func NewChunkLogger(dataDir string) *ChunkLogger {
	return NewChunkLoggerWithOptions(dataDir, Options{})
}

func NewChunkLoggerWithOptions(dataDir string, opts Options) *ChunkLogger {
	return &ChunkLogger{w: NewJSONLZstdWriterWithOptions(filepath.Join(dataDir, "chunks"), "chunks", opts)}
}

func (l *ChunkLogger) WriteChunk(v world.ChunkLogEntry) error { return l.w.Write(v) }
func (l *ChunkLogger) Close() error                           { return l.w.Close() }

// SessionLogger writes join/leave/command JSONL entries (compressed).
type SessionLogger struct{ w *JSONLZstdWriter }

func NewSessionLogger(dataDir string) *SessionLogger {
	return NewSessionLoggerWithOptions(dataDir, Options{})
}

func NewSessionLoggerWithOptions(dataDir string, opts Options) *SessionLogger {
	return &SessionLogger{w: NewJSONLZstdWriterWithOptions(filepath.Join(dataDir, "sessions"), "sessions", opts)}
}

func (l *SessionLogger) WriteSession(v world.SessionLogEntry) error { return l.w.Write(v) }
func (l *SessionLogger) Close() error                               { return l.w.Close() }
