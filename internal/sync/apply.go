package sync

import (
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/mirrorbox/mirrorbox/internal/oplog"
	"github.com/mirrorbox/mirrorbox/internal/utils"
	"golang.org/x/sync/errgroup"
)

const defaultCopyWorkers = 8

// PassSummary reports what a single sync pass did.
type PassSummary struct {
	Created     int
	Copied      int
	Updated     int
	Removed     int
	Unchanged   int
	Failed      int
	BytesCopied int64
	Duration    time.Duration
}

// HasChanges returns true if the pass mutated the replica.
func (s *PassSummary) HasChanges() bool {
	return s.Created > 0 || s.Copied > 0 || s.Updated > 0 || s.Removed > 0
}

// Applier executes an action list against the replica. Every executed action
// is appended to the op log; per-action failures are logged, counted and
// never abort the remaining actions.
type Applier struct {
	sourceRoot  string
	replicaRoot string
	oplog       *oplog.Logger
	journal     *FingerprintJournal
	copyWorkers int
}

func NewApplier(sourceRoot, replicaRoot string, log *oplog.Logger, journal *FingerprintJournal) *Applier {
	return &Applier{
		sourceRoot:  sourceRoot,
		replicaRoot: replicaRoot,
		oplog:       log,
		journal:     journal,
		copyWorkers: defaultCopyWorkers,
	}
}

// Apply executes the actions in the order given by the Reconciler. Copies
// run on a bounded worker pool once every preceding directory action has
// completed; deletions scheduled after the copies wait for all of them.
func (a *Applier) Apply(ctx context.Context, actions []Action) *PassSummary {
	summary := &PassSummary{}
	var mu sync.Mutex

	var before, copies, after []Action
	for _, action := range actions {
		switch {
		case action.IsCopy():
			copies = append(copies, action)
		case len(copies) == 0:
			before = append(before, action)
		default:
			after = append(after, action)
		}
	}

	for _, action := range before {
		if ctx.Err() != nil {
			return summary
		}
		a.applyOne(action, summary, &mu)
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(a.copyWorkers)
	for _, action := range copies {
		action := action
		eg.Go(func() error {
			if egCtx.Err() != nil {
				return nil
			}
			a.applyOne(action, summary, &mu)
			return nil
		})
	}
	eg.Wait()

	for _, action := range after {
		if ctx.Err() != nil {
			return summary
		}
		a.applyOne(action, summary, &mu)
	}

	return summary
}

func (a *Applier) applyOne(action Action, summary *PassSummary, mu *sync.Mutex) {
	var (
		op      oplog.Operation
		written int64
		err     error
	)

	switch action.Type {
	case ActionCreateDir:
		op = oplog.OpCreate
		err = utils.EnsureDir(a.replicaPath(action.RelPath))
	case ActionCopyNew:
		op = oplog.OpCopy
		written, err = a.copyFile(action.RelPath)
	case ActionCopyChanged:
		op = oplog.OpUpdate
		written, err = a.copyFile(action.RelPath)
	case ActionDeleteFile:
		op = oplog.OpRemove
		err = a.deleteFile(action.RelPath)
	case ActionDeleteDir:
		op = oplog.OpRemove
		err = a.deleteDir(action.RelPath)
	default:
		err = fmt.Errorf("unknown action type %q", action.Type)
	}

	if err != nil {
		slog.Error("sync apply", "op", action.Type, "path", action.RelPath, "error", err)
		mu.Lock()
		summary.Failed++
		mu.Unlock()
		return
	}

	slog.Debug("sync apply", "op", action.Type, "path", action.RelPath)

	if a.oplog != nil {
		if logErr := a.oplog.Append(op, action.RelPath); logErr != nil {
			// the filesystem change already happened; a lost record is a
			// warning, never a pass failure
			slog.Warn("failed to append op log record", "op", op, "path", action.RelPath, "error", logErr)
		}
	}

	mu.Lock()
	switch action.Type {
	case ActionCreateDir:
		summary.Created++
	case ActionCopyNew:
		summary.Copied++
		summary.BytesCopied += written
	case ActionCopyChanged:
		summary.Updated++
		summary.BytesCopied += written
	case ActionDeleteFile, ActionDeleteDir:
		summary.Removed++
	}
	mu.Unlock()
}

// copyFile streams the source file into a temp file next to the target, then
// renames it into place. The content is hashed during the copy so the
// replica's journal entry can be written without a second read.
func (a *Applier) copyFile(relPath string) (int64, error) {
	srcPath := a.sourcePath(relPath)
	dstPath := a.replicaPath(relPath)

	src, err := os.Open(srcPath)
	if err != nil {
		return 0, fmt.Errorf("open source: %w", err)
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return 0, fmt.Errorf("stat source: %w", err)
	}

	if err := utils.EnsureParent(dstPath); err != nil {
		return 0, fmt.Errorf("ensure parent: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dstPath), ".mirrorbox-*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	hasher := md5.New()
	written, err := io.Copy(io.MultiWriter(tmp, hasher), src)
	if err != nil {
		return 0, fmt.Errorf("copy content: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return 0, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("close temp file: %w", err)
	}

	// carry the source mtime so a warm journal recognizes the copy next pass
	if err := os.Chtimes(tmpPath, info.ModTime(), info.ModTime()); err != nil {
		slog.Debug("failed to set mtime on copy", "path", tmpPath, "error", err)
	}

	if err := os.Rename(tmpPath, dstPath); err != nil {
		return 0, fmt.Errorf("rename temp file: %w", err)
	}
	success = true

	if a.journal != nil {
		etag := fmt.Sprintf("%x", hasher.Sum(nil))
		if jerr := a.journal.Store(a.replicaRoot, relPath, written, info.ModTime(), etag); jerr != nil {
			slog.Warn("failed to update fingerprint journal", "path", relPath, "error", jerr)
		}
	}

	return written, nil
}

func (a *Applier) deleteFile(relPath string) error {
	err := os.Remove(a.replicaPath(relPath))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}

	a.forget(relPath)
	return nil
}

func (a *Applier) deleteDir(relPath string) error {
	// RemoveAll also handles replica-only content nested below this directory
	if err := os.RemoveAll(a.replicaPath(relPath)); err != nil {
		return fmt.Errorf("delete directory: %w", err)
	}

	a.forget(relPath)
	return nil
}

func (a *Applier) forget(relPath string) {
	if a.journal == nil {
		return
	}
	if err := a.journal.Forget(a.replicaRoot, relPath); err != nil {
		slog.Warn("failed to evict journal entry", "path", relPath, "error", err)
	}
}

func (a *Applier) sourcePath(relPath string) string {
	return filepath.Join(a.sourceRoot, filepath.FromSlash(relPath))
}

func (a *Applier) replicaPath(relPath string) string {
	return filepath.Join(a.replicaRoot, filepath.FromSlash(relPath))
}
