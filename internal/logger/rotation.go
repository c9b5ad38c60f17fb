package logger

import (
	"compress/gzip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

const rotatedTimeFormat = "20060102-150405.000"

// RotatingWriter is an io.WriteCloser that starts a new log file once the
// current one would exceed maxSize. Rotated files are named
// <file>.<timestamp>, optionally gzipped, and removed after maxAge days.
// It is safe for concurrent use.
type RotatingWriter struct {
	mu       sync.Mutex
	filename string
	maxSize  int64
	maxAge   int
	compress bool
	file     *os.File
	size     int64
	bg       sync.WaitGroup
}

// NewRotatingWriter opens (or creates) filename for appending
func NewRotatingWriter(filename string, maxSizeMB int, maxAge int, compress bool) (*RotatingWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	w := &RotatingWriter{
		filename: filename,
		maxSize:  int64(maxSizeMB) * 1024 * 1024,
		maxAge:   maxAge,
		compress: compress,
	}
	if err := w.open(); err != nil {
		return nil, err
	}

	w.bg.Add(1)
	go func() {
		defer w.bg.Done()
		w.prune(time.Now())
	}()

	return w, nil
}

func (w *RotatingWriter) open() error {
	file, err := os.OpenFile(w.filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return fmt.Errorf("failed to stat log file: %w", err)
	}
	w.file = file
	w.size = info.Size()
	return nil
}

// Write appends p, rotating first when p would push the file past maxSize.
// A single write larger than maxSize still lands in one file.
func (w *RotatingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file == nil {
		return 0, os.ErrClosed
	}

	if w.size > 0 && w.size+int64(len(p)) > w.maxSize {
		if err := w.rotate(); err != nil {
			return 0, err
		}
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// Close closes the current file and waits for background compression
func (w *RotatingWriter) Close() error {
	w.mu.Lock()
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
	}
	w.mu.Unlock()

	w.bg.Wait()
	return err
}

// rotate must be called with mu held
func (w *RotatingWriter) rotate() error {
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("failed to close log file: %w", err)
	}
	w.file = nil

	rotated := w.filename + "." + time.Now().Format(rotatedTimeFormat)
	if err := os.Rename(w.filename, rotated); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	if w.compress {
		w.bg.Add(1)
		go func() {
			defer w.bg.Done()
			_ = gzipFile(rotated)
		}()
	}

	return w.open()
}

// gzipFile writes path.gz and removes path
func gzipFile(path string) error {
	src, err := os.Open(path)
	if err != nil {
		return err
	}
	defer src.Close()

	dst, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}

	gzw := gzip.NewWriter(dst)
	if _, err := io.Copy(gzw, src); err != nil {
		gzw.Close()
		dst.Close()
		return err
	}
	if err := gzw.Close(); err != nil {
		dst.Close()
		return err
	}
	if err := dst.Close(); err != nil {
		return err
	}

	return os.Remove(path)
}

// prune removes rotated files last modified more than maxAge days before now
func (w *RotatingWriter) prune(now time.Time) {
	if w.maxAge <= 0 {
		return
	}

	matches, err := filepath.Glob(w.filename + ".*")
	if err != nil {
		return
	}

	cutoff := now.AddDate(0, 0, -w.maxAge)
	for _, path := range matches {
		if !strings.HasPrefix(filepath.Base(path), filepath.Base(w.filename)+".") {
			continue
		}
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			_ = os.Remove(path)
		}
	}
}
