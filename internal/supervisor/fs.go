package supervisor

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// newestFile returns the path of the most recently written regular file in
// dir, skipping entries for which skip returns true. Ordering is by
// modification time with ties broken by the lexically greatest name, so
// "latest" stays well-defined even on coarse filesystem clocks. It returns
// fs.ErrNotExist when no candidate file exists.
func newestFile(dir string, skip func(name string) bool) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fs.ErrNotExist
		}
		return "", fmt.Errorf("list %s: %w", dir, err)
	}

	var (
		best     string
		bestInfo fs.FileInfo
	)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if skip != nil && skip(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return "", fmt.Errorf("stat %s: %w", entry.Name(), err)
		}
		if bestInfo == nil ||
			info.ModTime().After(bestInfo.ModTime()) ||
			(info.ModTime().Equal(bestInfo.ModTime()) && entry.Name() > best) {
			best = entry.Name()
			bestInfo = info
		}
	}
	if bestInfo == nil {
		return "", fs.ErrNotExist
	}
	return filepath.Join(dir, best), nil
}

// tailWindowBytes bounds how much of a log file the tail reader inspects.
// Engine status lines are well under 4KB, so this comfortably covers any
// sane tail window without reading whole multi-gigabyte logs.
const tailWindowBytes = 64 * 1024

// tailLines returns up to n final lines of the file at path, oldest first.
// Only the trailing tailWindowBytes of the file are read.
func tailLines(path string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat log %s: %w", path, err)
	}
	offset := info.Size() - tailWindowBytes
	if offset < 0 {
		offset = 0
	}
	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return nil, fmt.Errorf("seek log %s: %w", path, err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read log %s: %w", path, err)
	}

	raw := bytes.Split(bytes.TrimRight(data, "\n"), []byte("\n"))
	lines := make([]string, 0, n)
	for i := len(raw) - 1; i >= 0 && len(lines) < n; i-- {
		if len(bytes.TrimSpace(raw[i])) == 0 {
			continue
		}
		lines = append(lines, string(raw[i]))
	}
	// Reverse back to file order.
	for i, j := 0, len(lines)-1; i < j; i, j = i+1, j-1 {
		lines[i], lines[j] = lines[j], lines[i]
	}
	return lines, nil
}
