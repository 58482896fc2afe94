package sync

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mirrorbox/mirrorbox/internal/utils"
)

type EntryKind string

const (
	KindFile EntryKind = "file"
	KindDir  EntryKind = "dir"
)

// SnapshotEntry describes one file or directory below a snapshot root.
// ETag is the content fingerprint for files; it stays empty for directories
// and for files whose content could not be read (fingerprint unknown, which
// always compares as changed).
type SnapshotEntry struct {
	RelPath string
	Kind    EntryKind
	ETag    string
	Size    int64
	ModTime time.Time
}

// Snapshot maps relative paths (forward slashes) to their entries. The root
// itself is not an entry.
type Snapshot map[string]*SnapshotEntry

// Files returns the number of file entries in the snapshot.
func (s Snapshot) Files() int {
	n := 0
	for _, e := range s {
		if e.Kind == KindFile {
			n++
		}
	}
	return n
}

// Snapshotter walks a directory tree and produces its Snapshot. A journal
// and an ignore list are both optional.
type Snapshotter struct {
	rootDir string
	journal *FingerprintJournal
	ignore  *IgnoreList
}

func NewSnapshotter(rootDir string, journal *FingerprintJournal, ignore *IgnoreList) *Snapshotter {
	return &Snapshotter{
		rootDir: rootDir,
		journal: journal,
		ignore:  ignore,
	}
}

// Scan walks the root and returns a fresh snapshot. A missing root yields an
// empty snapshot, not an error: an absent replica is a valid initial state.
// Any other walk or stat error fails the whole scan: a truncated snapshot
// would make the intact replica copies of the unreadable subtree look
// obsolete and schedule them for deletion.
func (s *Snapshotter) Scan() (Snapshot, error) {
	snapshot := make(Snapshot)

	if _, err := os.Stat(s.rootDir); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return snapshot, nil
		}
		return nil, fmt.Errorf("stat snapshot root: %w", err)
	}

	err := filepath.WalkDir(s.rootDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return fmt.Errorf("walk %s: %w", path, walkErr)
		}

		if path == s.rootDir {
			return nil
		}

		relPath, err := filepath.Rel(s.rootDir, path)
		if err != nil {
			return fmt.Errorf("walk rel path: %w", err)
		}
		relPath = utils.NormPath(relPath)

		if s.ignore != nil && s.ignore.ShouldIgnore(relPath) {
			if d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			snapshot[relPath] = &SnapshotEntry{
				RelPath: relPath,
				Kind:    KindDir,
			}
			return nil
		}

		if !d.Type().IsRegular() {
			// symlinks, sockets, devices are a non-goal
			slog.Debug("snapshot skipping irregular entry", "path", path, "mode", d.Type())
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		snapshot[relPath] = &SnapshotEntry{
			RelPath: relPath,
			Kind:    KindFile,
			ETag:    s.fingerprintFor(path, relPath, info),
			Size:    info.Size(),
			ModTime: info.ModTime(),
		}
		return nil
	})

	if err != nil {
		return nil, fmt.Errorf("snapshot scan failed: %w", err)
	}

	return snapshot, nil
}

// fingerprintFor returns the content fingerprint for a file, consulting the
// journal first so unchanged files are not rehashed. A read failure leaves
// the fingerprint empty so the file is treated as needing a copy.
func (s *Snapshotter) fingerprintFor(path, relPath string, info fs.FileInfo) string {
	if s.journal != nil {
		if etag, ok := s.journal.Lookup(s.rootDir, relPath, info.Size(), info.ModTime()); ok {
			return etag
		}
	}

	etag, err := Fingerprint(path)
	if err != nil {
		slog.Warn("failed to fingerprint file", "path", path, "error", err)
		return ""
	}

	if s.journal != nil {
		if err := s.journal.Store(s.rootDir, relPath, info.Size(), info.ModTime(), etag); err != nil {
			slog.Warn("failed to update fingerprint journal", "path", relPath, "error", err)
		}
	}
	return etag
}
