package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// lineBreaks folds line breaks inside one entry so each entry stays on one line.
var lineBreaks = strings.NewReplacer("\r\n", " ", "\n", " ", "\r", " ")

// TextSink writes the accumulated line list, and optionally raw dumps
type TextSink struct {
	dir  string
	file string
}

// NewTextSink prepares dir and returns a sink writing to dir/file
func NewTextSink(dir, file string) (*TextSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	return &TextSink{dir: dir, file: file}, nil
}

// Path returns the path of the line list file
func (s *TextSink) Path() string {
	return filepath.Join(s.dir, s.file)
}

// Write stores lines one per entry, newline-terminated, replacing any previous
// list. Line breaks inside an entry are written as spaces.
func (s *TextSink) Write(lines []string) (string, error) {
	path := s.Path()
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return "", fmt.Errorf("failed to create %s: %w", tmp, err)
	}

	w := bufio.NewWriter(f)
	for _, line := range lines {
		if _, err := w.WriteString(lineBreaks.Replace(line) + "\n"); err != nil {
			f.Close()
			os.Remove(tmp)
			return "", fmt.Errorf("failed to write lines: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", fmt.Errorf("failed to flush lines: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to close %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("failed to move %s into place: %w", path, err)
	}
	return path, nil
}

// WriteDump keeps the raw ui dump of a page for debugging
func (s *TextSink) WriteDump(page int, data []byte) (string, error) {
	path := filepath.Join(s.dir, fmt.Sprintf("ui_%03d.xml", page))
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write dump %d: %w", page, err)
	}
	return path, nil
}
