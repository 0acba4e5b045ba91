/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package media

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
)

// FilesystemSource reads sound files from a directory.
type FilesystemSource struct {
	fs      afero.Fs
	rootDir string
	logger  zerolog.Logger
}

// NewFilesystemSource creates a source rooted at rootDir on the OS filesystem.
func NewFilesystemSource(rootDir string, logger zerolog.Logger) *FilesystemSource {
	return &FilesystemSource{
		fs:      afero.NewBasePathFs(afero.NewOsFs(), rootDir),
		rootDir: rootDir,
		logger:  logger,
	}
}

// NewFilesystemSourceFs creates a source over an arbitrary afero filesystem
// whose root holds the sound files.
func NewFilesystemSourceFs(fs afero.Fs, logger zerolog.Logger) *FilesystemSource {
	return &FilesystemSource{fs: fs, rootDir: "/", logger: logger}
}

// Kind implements Source.
func (s *FilesystemSource) Kind() string { return "filesystem" }

// Open implements Source. Names are flat file names under the root.
func (s *FilesystemSource) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	clean, err := cleanName(name)
	if err != nil {
		return nil, err
	}

	f, err := s.fs.Open(clean)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil, fmt.Errorf("open %s: %w", name, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if info.IsDir() {
		f.Close()
		return nil, fmt.Errorf("%w: %s is a directory", ErrNotFound, name)
	}

	s.logger.Debug().Str("file", clean).Msg("filesystem source: opened")
	return f, nil
}

// List implements Source.
func (s *FilesystemSource) List(ctx context.Context) ([]string, error) {
	entries, err := afero.ReadDir(s.fs, "/")
	if err != nil {
		return nil, fmt.Errorf("read sound directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// CheckAccess verifies the sound directory exists and is accessible.
func (s *FilesystemSource) CheckAccess(ctx context.Context) error {
	info, err := s.fs.Stat("/")
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("sound directory does not exist: %s", s.rootDir)
		}
		return fmt.Errorf("cannot access sound directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("sound directory is not a directory: %s", s.rootDir)
	}
	return nil
}

// cleanName rejects names that would leave the source root.
func cleanName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: invalid name %q", ErrNotFound, name)
	}
	return path.Join("/", name), nil
}
