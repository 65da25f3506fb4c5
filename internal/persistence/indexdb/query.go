package indexdb

import (
	"context"
	"database/sql"
)

type ChunkRow struct {
	ID           uint64 `json:"id"`
	Tick         uint64 `json:"tick"`
	Key          [3]int `json:"key"`
	RegistrySize int    `json:"registry_size"`
	Solid        int    `json:"solid"`
	Digest       string `json:"digest"`
	Replay       bool   `json:"replay"`
}

type SessionRow struct {
	Tick      uint64 `json:"tick"`
	ClientID  uint64 `json:"client_id"`
	SessionID string `json:"session_id"`
	Event     string `json:"event"`
	Name      string `json:"name"`
	Detail    string `json:"detail"`
}

type Summary struct {
	Chunks        int    `json:"chunks"`
	Replays       int    `json:"replays"`
	Sessions      int    `json:"sessions"`
	Commands      int    `json:"commands"`
	LastTick      uint64 `json:"last_tick"`
	TuningDigest  string `json:"tuning_digest,omitempty"`
	SchemaVersion string `json:"schema_version,omitempty"`
}

func (s *SQLiteIndex) Summary(ctx context.Context) (Summary, error) {
	var out Summary
	row := s.db.QueryRowContext(ctx, `SELECT
		COUNT(*),
		COALESCE(SUM(replay),0),
		COALESCE(MAX(tick),0)
		FROM chunks`)
	var lastChunk int64
	if err := row.Scan(&out.Chunks, &out.Replays, &lastChunk); err != nil {
		return Summary{}, err
	}
	var lastSession int64
	row = s.db.QueryRowContext(ctx, `SELECT
		COUNT(DISTINCT session_id),
		COALESCE(SUM(CASE WHEN event='COMMAND' THEN 1 ELSE 0 END),0),
		COALESCE(MAX(tick),0)
		FROM sessions`)
	if err := row.Scan(&out.Sessions, &out.Commands, &lastSession); err != nil {
		return Summary{}, err
	}
	out.LastTick = uint64(max(lastChunk, lastSession))

	if err := s.db.QueryRowContext(ctx, `SELECT digest FROM settings WHERE name='tuning'`).Scan(&out.TuningDigest); err != nil && err != sql.ErrNoRows {
		return Summary{}, err
	}
	if err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key='schema_version'`).Scan(&out.SchemaVersion); err != nil && err != sql.ErrNoRows {
		return Summary{}, err
	}
	return out, nil
}

// RecentChunks returns the newest chunk rows first.
func (s *SQLiteIndex) RecentChunks(ctx context.Context, limit int) ([]ChunkRow, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id,tick,x,y,z,registry_size,solid,digest,replay
		FROM chunks ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkRow
	for rows.Next() {
		var r ChunkRow
		var replay int
		if err := rows.Scan(&r.ID, &r.Tick, &r.Key[0], &r.Key[1], &r.Key[2], &r.RegistrySize, &r.Solid, &r.Digest, &replay); err != nil {
			return nil, err
		}
		r.Replay = replay != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// ChunkAt returns every row recorded for one chunk key, oldest first.
func (s *SQLiteIndex) ChunkAt(ctx context.Context, x, y, z int) ([]ChunkRow, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id,tick,x,y,z,registry_size,solid,digest,replay
		FROM chunks WHERE x=? AND y=? AND z=? ORDER BY seq`, x, y, z)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ChunkRow
	for rows.Next() {
		var r ChunkRow
		var replay int
		if err := rows.Scan(&r.ID, &r.Tick, &r.Key[0], &r.Key[1], &r.Key[2], &r.RegistrySize, &r.Solid, &r.Digest, &replay); err != nil {
			return nil, err
		}
		r.Replay = replay != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// Sessions returns session events for clientID (0 = all clients), oldest first.
func (s *SQLiteIndex) Sessions(ctx context.Context, clientID uint64, limit int) ([]SessionRow, error) {
	if limit <= 0 {
		limit = 200
	}
	q := `SELECT tick,client_id,session_id,event,name,detail FROM sessions`
	args := []any{}
	if clientID != 0 {
		q += ` WHERE client_id=?`
		args = append(args, int64(clientID))
	}
	q += ` ORDER BY seq LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SessionRow
	for rows.Next() {
		var r SessionRow
		if err := rows.Scan(&r.Tick, &r.ClientID, &r.SessionID, &r.Event, &r.Name, &r.Detail); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
