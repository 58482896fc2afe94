// Package oplog maintains the durable operation log: a JSON array of records,
// one per filesystem mutation performed by a sync pass.
//
// The log is append-only from the reader's perspective, but each append reads
// the whole file, adds the record in memory and rewrites the file. An
// unreadable or corrupt log is replaced by a fresh one rather than aborting.
package oplog

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/gofrs/flock"
	"github.com/mirrorbox/mirrorbox/internal/utils"
)

type Operation string

const (
	OpCreate Operation = "CREATE"
	OpCopy   Operation = "COPY"
	OpUpdate Operation = "UPDATE"
	OpRemove Operation = "REMOVE"
)

// Record is a single logged filesystem operation. Path is relative to the
// replica root with forward slashes.
type Record struct {
	Timestamp string    `json:"timestamp"`
	Operation Operation `json:"operation"`
	Path      string    `json:"path"`
}

// Logger appends records to the log file at path. Appends are serialized
// in-process with a mutex and across processes with a lock file next to the
// log, so parallel copy workers can log safely.
type Logger struct {
	path  string
	flock *flock.Flock
	mu    sync.Mutex
	now   func() time.Time
}

func New(path string) *Logger {
	return &Logger{
		path:  path,
		flock: flock.New(path + ".lock"),
		now:   time.Now,
	}
}

// Path returns the log file location.
func (l *Logger) Path() string {
	return l.path
}

// Append adds a record for op on relPath and rewrites the log file.
func (l *Logger) Append(op Operation, relPath string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := utils.EnsureParent(l.path); err != nil {
		return fmt.Errorf("ensure log directory: %w", err)
	}

	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("lock log file: %w", err)
	}
	defer l.flock.Unlock()

	records := l.readAll()
	records = append(records, Record{
		Timestamp: l.now().Format(time.RFC3339),
		Operation: op,
		Path:      relPath,
	})

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal log records: %w", err)
	}

	if err := os.WriteFile(l.path, data, 0o644); err != nil {
		return fmt.Errorf("write log file: %w", err)
	}
	return nil
}

// Records returns the current contents of the log. It holds the lock file
// shared so a rewrite in another process is never observed half-written.
func (l *Logger) Records() ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !utils.FileExists(l.path) {
		return nil, nil
	}

	if err := l.flock.RLock(); err != nil {
		return nil, fmt.Errorf("lock log file: %w", err)
	}
	defer l.flock.Unlock()

	data, err := os.ReadFile(l.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse log file: %w", err)
	}
	return records, nil
}

// readAll loads the existing records, falling back to an empty log when the
// file is missing, unreadable or corrupt.
func (l *Logger) readAll() []Record {
	data, err := os.ReadFile(l.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			slog.Warn("op log unreadable, starting fresh", "path", l.path, "error", err)
		}
		return nil
	}

	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		slog.Warn("op log corrupt, starting fresh", "path", l.path, "error", err)
		return nil
	}
	return records
}
