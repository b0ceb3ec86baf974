// Package file writes pass audit events to a local JSON-lines file.
package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/vshulcz/Gatecounter/internal/services/audit"
)

// Writer appends audit events to a newline-delimited JSON file. The file is
// opened on the first event and kept open until Close.
type Writer struct {
	f    *os.File
	path string
	mu   sync.Mutex
}

var _ audit.Observer = (*Writer)(nil)

// New creates a Writer for path. Nothing is touched on disk until the first event.
func New(path string) *Writer {
	return &Writer{path: path}
}

// Notify appends evt as one line.
func (w *Writer) Notify(_ context.Context, evt audit.Event) error {
	if w == nil || w.path == "" {
		return nil
	}

	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.f == nil {
		if dir := filepath.Dir(w.path); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return fmt.Errorf("mkdir audit dir: %w", err)
			}
		}
		f, err := os.OpenFile(w.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return fmt.Errorf("open audit file: %w", err)
		}
		w.f = f
	}

	if _, err := w.f.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write audit file: %w", err)
	}
	return nil
}

// Close flushes and closes the file. The next event reopens it.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.f == nil {
		return nil
	}
	serr := w.f.Sync()
	cerr := w.f.Close()
	w.f = nil
	if serr != nil {
		return fmt.Errorf("sync audit file: %w", serr)
	}
	return cerr
}
