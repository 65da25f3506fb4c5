package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"voxels.dev/internal/persistence/indexdb"
)

func dbCmd(args []string) {
	fs := flag.NewFlagSet("db", flag.ExitOnError)
	dataDir := fs.String("data", "./data", "runtime data directory")
	worldID := fs.String("world", "", "world id (required unless -db)")
	dbPath := fs.String("db", "", "sqlite db path (optional)")
	limit := fs.Int("limit", 20, "result limit")
	clientID := fs.Uint64("client", 0, "client id filter (sessions)")
	key := fs.String("key", "", "chunk key x,y,z (chunk)")
	_ = fs.Parse(args)

	q := "summary"
	if fs.NArg() > 0 {
		q = strings.TrimSpace(fs.Arg(0))
	}

	path := strings.TrimSpace(*dbPath)
	if path == "" {
		if strings.TrimSpace(*worldID) == "" {
			fmt.Fprintln(os.Stderr, "missing -world or -db")
			os.Exit(2)
		}
		path = filepath.Join(*dataDir, "worlds", *worldID, "index", "voxels.sqlite")
	}

	idx, err := indexdb.OpenSQLiteReader(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, "open:", err)
		os.Exit(1)
	}
	defer idx.Close()

	if err := runQuery(context.Background(), idx, q, *limit, *clientID, *key); err != nil {
		fmt.Fprintln(os.Stderr, q+":", err)
		os.Exit(1)
	}
}

func runQuery(ctx context.Context, idx *indexdb.SQLiteIndex, q string, limit int, clientID uint64, key string) error {
	switch q {
	case "summary":
		s, err := idx.Summary(ctx)
		if err != nil {
			return err
		}
		printJSON(s)

	case "chunks":
		rows, err := idx.RecentChunks(ctx, limit)
		if err != nil {
			return err
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "chunk":
		k, err := parseVec3(key)
		if err != nil {
			return fmt.Errorf("-key: %w", err)
		}
		rows, err := idx.ChunkAt(ctx, k[0], k[1], k[2])
		if err != nil {
			return err
		}
		for _, r := range rows {
			printJSON(r)
		}

	case "sessions":
		rows, err := idx.Sessions(ctx, clientID, limit)
		if err != nil {
			return err
		}
		for _, r := range rows {
			printJSON(r)
		}

	default:
		return fmt.Errorf("unknown query (want summary|chunks|chunk|sessions)")
	}
	return nil
}
