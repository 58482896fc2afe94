package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/mirrorbox/mirrorbox/internal/oplog"
	"github.com/mirrorbox/mirrorbox/internal/utils"
)

var (
	ErrMissingSourceRoot  = errors.New("source root does not exist")
	ErrPassAlreadyRunning = errors.New("sync pass already running")
)

// Engine runs one-way sync passes: snapshot source and replica, reconcile,
// apply. Passes are independent; all state is re-derived from the filesystem
// (the fingerprint journal only short-circuits rehashing, never decisions).
type Engine struct {
	sourceDir  string
	replicaDir string
	journal    *FingerprintJournal
	ignore     *IgnoreList
	applier    *Applier
	muSync     sync.Mutex
}

// NewEngine creates an engine mirroring sourceDir into replicaDir. The op
// log, journal and ignore list may each be nil.
func NewEngine(sourceDir, replicaDir string, log *oplog.Logger, journal *FingerprintJournal, ignore *IgnoreList) *Engine {
	return &Engine{
		sourceDir:  sourceDir,
		replicaDir: replicaDir,
		journal:    journal,
		ignore:     ignore,
		applier:    NewApplier(sourceDir, replicaDir, log, journal),
	}
}

// RunPass executes a single source→replica pass and returns its summary.
// The only fatal precondition is a missing source root; per-item failures
// are aggregated into the summary. Overlapping invocations are rejected with
// ErrPassAlreadyRunning.
func (e *Engine) RunPass(ctx context.Context) (*PassSummary, error) {
	if !e.muSync.TryLock() {
		return nil, ErrPassAlreadyRunning
	}
	defer e.muSync.Unlock()

	passID := uuid.NewString()[:8]
	tStart := time.Now()

	if !utils.DirExists(e.sourceDir) {
		return nil, fmt.Errorf("%w: %s", ErrMissingSourceRoot, e.sourceDir)
	}

	// pick up mirrorignore edits between passes
	if e.ignore != nil {
		e.ignore.Load()
	}

	tScan := time.Now()
	sourceSnap, err := NewSnapshotter(e.sourceDir, e.journal, e.ignore).Scan()
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	replicaSnap, err := NewSnapshotter(e.replicaDir, e.journal, e.ignore).Scan()
	if err != nil {
		return nil, fmt.Errorf("scan replica: %w", err)
	}
	tSnapshot := time.Since(tScan)

	tReconcile := time.Now()
	actions := Reconcile(sourceSnap, replicaSnap)
	tDiff := time.Since(tReconcile)

	summary := e.applier.Apply(ctx, actions)
	summary.Duration = time.Since(tStart)

	scheduledCopies := 0
	for _, action := range actions {
		if action.IsCopy() {
			scheduledCopies++
		}
	}
	summary.Unchanged = sourceSnap.Files() - scheduledCopies

	slog.Info("sync pass",
		"pass", passID,
		"created", summary.Created,
		"copied", summary.Copied,
		"updated", summary.Updated,
		"removed", summary.Removed,
		"unchanged", summary.Unchanged,
		"failed", summary.Failed,
		"bytes", humanize.Bytes(uint64(summary.BytesCopied)),
		"tsSnapshot", tSnapshot,
		"tsReconcile", tDiff,
		"tsTotal", summary.Duration,
	)

	if ctx.Err() != nil {
		return summary, ctx.Err()
	}
	return summary, nil
}
