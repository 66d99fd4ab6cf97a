// Package sink persists what a capture session produces.
package sink

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ErrOutputInUse means the output directory already holds pages an
// untimestamped run would overwrite.
var ErrOutputInUse = errors.New("output directory holds pages from an earlier run")

// ImageSink writes one image file per captured page
type ImageSink struct {
	dir         string
	prefix      string
	ext         string
	timestamped bool
}

// NewImageSink prepares dir and returns a sink writing <prefix>_<NNN>[_<stamp>].png files
func NewImageSink(dir, prefix string, timestamped bool) (*ImageSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	if prefix == "" {
		prefix = "page"
	}
	s := &ImageSink{dir: dir, prefix: prefix, ext: ".png", timestamped: timestamped}

	if !timestamped {
		existing, err := filepath.Glob(filepath.Join(dir, prefix+"_[0-9][0-9][0-9]*"+s.ext))
		if err != nil {
			return nil, err
		}
		if len(existing) > 0 {
			return nil, fmt.Errorf("%w: %s (use another directory or timestamped names)", ErrOutputInUse, existing[0])
		}
	}
	return s, nil
}

// FileName returns the file name used for a page captured at the given time
func (s *ImageSink) FileName(page int, at time.Time) string {
	if s.timestamped {
		return fmt.Sprintf("%s_%03d_%s%s", s.prefix, page, at.Format("20060102_150405"), s.ext)
	}
	return fmt.Sprintf("%s_%03d%s", s.prefix, page, s.ext)
}

// Write stores a page and returns its path. An existing file is never replaced.
func (s *ImageSink) Write(page int, data []byte, at time.Time) (string, error) {
	path := filepath.Join(s.dir, s.FileName(page, at))

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return "", fmt.Errorf("failed to create page %d: %w", page, err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write page %d: %w", page, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("failed to close page %d: %w", page, err)
	}
	return path, nil
}
