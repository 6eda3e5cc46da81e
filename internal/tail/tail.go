// Package tail tracks per-file byte cursors and converts file-modify signals
// into exact incremental reads.
package tail

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

// Tracker keeps one monotonic byte cursor per watched file. It is safe for
// concurrent use from multiple watcher callbacks.
type Tracker struct {
	mu      sync.Mutex
	offsets map[string]int64
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{offsets: make(map[string]int64)}
}

// Init positions the cursor for path at the current end of file, so historical
// content is never treated as new. If the file does not exist yet, the cursor
// is recorded as 0 and reads are no-ops until it appears.
func (t *Tracker) Init(path string) int64 {
	info, err := os.Stat(path)
	offset := int64(0)
	if err == nil {
		offset = info.Size()
	} else if !os.IsNotExist(err) {
		slog.Warn("stat failed during cursor init, starting at 0", "path", path, "error", err)
	}

	t.mu.Lock()
	t.offsets[path] = offset
	t.mu.Unlock()

	slog.Info("cursor initialized", "path", path, "offset", offset)
	return offset
}

// ReadIncrement reads everything appended to path since the last read and
// advances the cursor past what was physically consumed. Advancement never
// depends on what the bytes mean: even if the caller discards the increment,
// the same bytes are not returned again.
//
// A missing file is not an error; it returns an empty increment and leaves the
// cursor at 0. If the file shrank since the last read (rotation/truncation),
// the cursor resets to 0 and the read starts from the top of the new file.
func (t *Tracker) ReadIncrement(path string) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	offset := t.offsets[path]

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			t.offsets[path] = 0
			return "", nil
		}
		return "", fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", path, err)
	}

	if info.Size() < offset {
		slog.Info("file shrank, resetting cursor", "path", path, "old_offset", offset, "size", info.Size())
		offset = 0
	}

	if _, err := f.Seek(offset, io.SeekStart); err != nil {
		return "", fmt.Errorf("seeking %s to %d: %w", path, offset, err)
	}

	data, err := io.ReadAll(f)
	// Advance by whatever was consumed, even on a partial read.
	t.offsets[path] = offset + int64(len(data))
	if err != nil {
		return string(data), fmt.Errorf("reading %s: %w", path, err)
	}

	return string(data), nil
}

// Offset returns the current cursor for path.
func (t *Tracker) Offset(path string) int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.offsets[path]
}

// Snapshot returns a copy of all cursors, keyed by path.
func (t *Tracker) Snapshot() map[string]int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]int64, len(t.offsets))
	for path, off := range t.offsets {
		out[path] = off
	}
	return out
}
