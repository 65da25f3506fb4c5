package main

import (
	"fmt"
	"log"
	"os"
	"strings"

	persistlog "voxels.dev/internal/persistence/log"
	"voxels.dev/internal/persistence/mirror"
)

type logMirrorRuntime struct {
	enabled      bool
	rotateLayout string
	mirror       *mirror.Mirror
}

func buildLogMirrorRuntime(dataDir string, logger *log.Logger) (*logMirrorRuntime, error) {
	if !envBool("VOXELS_LOG_MIRROR", false) {
		return &logMirrorRuntime{}, nil
	}
	cfg := mirror.S3Config{
		Endpoint:        strings.TrimSpace(os.Getenv("VOXELS_LOG_MIRROR_ENDPOINT")),
		Bucket:          strings.TrimSpace(os.Getenv("VOXELS_LOG_MIRROR_BUCKET")),
		Region:          strings.TrimSpace(os.Getenv("VOXELS_LOG_MIRROR_REGION")),
		AccessKeyID:     strings.TrimSpace(os.Getenv("VOXELS_LOG_MIRROR_ACCESS_KEY_ID")),
		SecretAccessKey: strings.TrimSpace(os.Getenv("VOXELS_LOG_MIRROR_SECRET_ACCESS_KEY")),
	}
	if cfg.Endpoint == "" || cfg.Bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("VOXELS_LOG_MIRROR=true but VOXELS_LOG_MIRROR_ENDPOINT/_BUCKET/_ACCESS_KEY_ID/_SECRET_ACCESS_KEY are not fully set")
	}
	client, err := mirror.NewS3(cfg)
	if err != nil {
		return nil, err
	}
	m := mirror.New(client, mirror.Config{
		DataDir: dataDir,
		Prefix:  strings.TrimSpace(os.Getenv("VOXELS_LOG_MIRROR_PREFIX")),
		Workers: envInt("VOXELS_LOG_MIRROR_WORKERS", 2),
	}, logger)
	return &logMirrorRuntime{
		enabled:      true,
		rotateLayout: "2006-01-02-15-04", // minute segments so a crash loses at most a minute upstream
		mirror:       m,
	}, nil
}

// logOptions hooks segment rotation into the mirror when it is enabled.
func (r *logMirrorRuntime) logOptions() persistlog.Options {
	if r == nil || !r.enabled {
		return persistlog.Options{}
	}
	return persistlog.Options{RotateLayout: r.rotateLayout, OnClose: r.mirror.Enqueue}
}

func (r *logMirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func (r *logMirrorRuntime) Stats() (mirror.Stats, bool) {
	if r == nil || !r.enabled {
		return mirror.Stats{}, false
	}
	return r.mirror.Stats(), true
}
