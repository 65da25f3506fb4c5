package indexdb

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"

	"voxels.dev/internal/sim/tuning"
	"voxels.dev/internal/sim/world"
)

// SQLiteIndex is a queryable read model of the chunk and session streams.
// Writes are queued and applied by a single writer goroutine; JSONL logs stay authoritative.
type SQLiteIndex struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.RWMutex // held shared by writers, exclusively by Close
	closed atomic.Bool

	dropChunk   atomic.Uint64
	dropSession atomic.Uint64
}

type reqKind int

const (
	reqChunk reqKind = iota + 1
	reqSession
)

type req struct {
	kind reqKind

	chunk   world.ChunkLogEntry
	session world.SessionLogEntry
}

type Stats struct {
	QueueDepth       int    `json:"queue_depth"`
	QueueCapacity    int    `json:"queue_capacity"`
	DropChunkTotal   uint64 `json:"drop_chunk_total"`
	DropSessionTotal uint64 `json:"drop_session_total"`
}

const queueCapacity = 65536

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteIndex{
		db: db,
		ch: make(chan req, queueCapacity),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

// OpenSQLiteReader opens an existing index for queries without starting the writer.
func OpenSQLiteReader(path string) (*SQLiteIndex, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	s := &SQLiteIndex{db: db}
	s.closed.Store(true)
	return s, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS settings (
			name TEXT PRIMARY KEY,
			digest TEXT NOT NULL,
			json TEXT NOT NULL,
			updated_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS chunks (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id INTEGER NOT NULL,
			tick INTEGER NOT NULL,
			x INTEGER NOT NULL,
			y INTEGER NOT NULL,
			z INTEGER NOT NULL,
			registry_size INTEGER NOT NULL,
			solid INTEGER NOT NULL,
			digest TEXT NOT NULL,
			replay INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_pos ON chunks(x, z, y);`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_tick ON chunks(tick);`,
		`CREATE TABLE IF NOT EXISTS sessions (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			tick INTEGER NOT NULL,
			client_id INTEGER NOT NULL,
			session_id TEXT NOT NULL,
			event TEXT NOT NULL,
			name TEXT NOT NULL,
			detail TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_client_tick ON sessions(client_id, tick);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		s.mu.Lock()
		shut := s.ch != nil && !s.closed.Swap(true)
		if shut {
			close(s.ch)
		}
		s.mu.Unlock()
		if shut {
			s.wg.Wait()
		}
		err = s.db.Close()
	})
	return err
}

func (s *SQLiteIndex) WriteChunk(entry world.ChunkLogEntry) error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqChunk, chunk: entry}:
	default:
		// Drop if the indexer falls behind.
		s.dropChunk.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) WriteSession(entry world.SessionLogEntry) error {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed.Load() {
		return nil
	}
	select {
	case s.ch <- req{kind: reqSession, session: entry}:
	default:
		s.dropSession.Add(1)
	}
	return nil
}

func (s *SQLiteIndex) Stats() Stats {
	if s == nil {
		return Stats{}
	}
	return Stats{
		QueueDepth:       len(s.ch),
		QueueCapacity:    cap(s.ch),
		DropChunkTotal:   s.dropChunk.Load(),
		DropSessionTotal: s.dropSession.Load(),
	}
}

// UpsertTuning stores the tuning values actually applied, keyed by content digest.
func (s *SQLiteIndex) UpsertTuning(tune tuning.Tuning) error {
	if s == nil {
		return nil
	}
	b, err := json.Marshal(tune)
	if err != nil {
		return err
	}
	sum := sha256.Sum256(b)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	tx, err := s.db.BeginTx(context.Background(), nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1')`); err != nil {
		return err
	}
	if _, err := tx.Exec(`INSERT OR REPLACE INTO settings(name,digest,json,updated_at) VALUES(?,?,?,?)`,
		"tuning", hex.EncodeToString(sum[:]), string(b), now); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteIndex) loop() {
	ctx := context.Background()

	insertChunk, _ := s.db.Prepare(`INSERT INTO chunks(id,tick,x,y,z,registry_size,solid,digest,replay) VALUES(?,?,?,?,?,?,?,?,?)`)
	insertSession, _ := s.db.Prepare(`INSERT INTO sessions(tick,client_id,session_id,event,name,detail) VALUES(?,?,?,?,?,?)`)
	defer func() {
		if insertChunk != nil {
			_ = insertChunk.Close()
		}
		if insertSession != nil {
			_ = insertSession.Close()
		}
	}()

	var (
		tx            *sql.Tx
		opCount       int
		lastCommit    = time.Now()
		commitEvery   = 2000
		commitMaxWait = 2 * time.Second
	)

	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}
	rollback := func() {
		if tx == nil {
			return
		}
		_ = tx.Rollback()
		tx = nil
		opCount = 0
		lastCommit = time.Now()
	}

	for r := range s.ch {
		begin()
		if tx == nil {
			continue
		}
		switch r.kind {
		case reqChunk:
			c := r.chunk
			if insertChunk != nil {
				if _, err := tx.Stmt(insertChunk).Exec(
					int64(c.ID),
					int64(c.Tick),
					c.Key[0], c.Key[1], c.Key[2],
					c.RegistrySize,
					c.Solid,
					c.Digest,
					boolInt(c.Replay),
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}

		case reqSession:
			e := r.session
			if insertSession != nil {
				if _, err := tx.Stmt(insertSession).Exec(
					int64(e.Tick),
					int64(e.ClientID),
					e.SessionID,
					e.Event,
					e.Name,
					e.Detail,
				); err != nil {
					rollback()
					continue
				}
				opCount++
			}
		}
		// Commit on batch size, age, or when the queue runs dry.
		if opCount >= commitEvery || time.Since(lastCommit) >= commitMaxWait || len(s.ch) == 0 {
			commit()
		}
	}

	commit()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
