/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package media resolves registered asset names to audio streams from a
// local directory or an S3 bucket.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"

	"github.com/friendsincode/soundtrigger/internal/config"
)

// ErrNotFound is returned when a sound file does not exist in the source.
var ErrNotFound = errors.New("sound file not found")

// Source abstracts where sound files live.
type Source interface {
	// Open returns the contents of the named file.
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	// List returns the file names available at the top level of the source.
	List(ctx context.Context) ([]string, error)
	// CheckAccess verifies the source is reachable.
	CheckAccess(ctx context.Context) error
	// Kind names the backend for logs.
	Kind() string
}

// NewSource creates a filesystem or S3 source based on config.
func NewSource(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Source, error) {
	logger = logger.With().Str("component", "media").Logger()

	switch cfg.SoundSource {
	case config.SoundSourceS3:
		s3cfg := S3Config{
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Prefix:          cfg.S3Prefix,
			Endpoint:        cfg.S3Endpoint,
			UsePathStyle:    cfg.S3UsePathStyle,
		}
		if s3cfg.AccessKeyID == "" || s3cfg.SecretAccessKey == "" {
			logger.Warn().Msg("S3 credentials not configured, using the default AWS credential chain")
		}
		src, err := NewS3Source(ctx, s3cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("initialize S3 source: %w", err)
		}
		return src, nil
	case config.SoundSourceFS, "":
		return NewFilesystemSource(cfg.SoundsDir, logger), nil
	default:
		return nil, fmt.Errorf("unknown sound source %q", cfg.SoundSource)
	}
}
