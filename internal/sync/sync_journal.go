package sync

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/jmoiron/sqlx"
	"github.com/mirrorbox/mirrorbox/internal/db"
)

const journalSchema = `
CREATE TABLE IF NOT EXISTS fingerprints (
    root TEXT NOT NULL,
    path TEXT NOT NULL,
    size INTEGER NOT NULL,
    mtime_ns INTEGER NOT NULL,
    etag TEXT NOT NULL,
    PRIMARY KEY (root, path)
);
`

const journalCacheSize = 4096

// dbFingerprint is the row shape for the fingerprints table.
type dbFingerprint struct {
	Root    string `db:"root"`
	Path    string `db:"path"`
	Size    int64  `db:"size"`
	MtimeNs int64  `db:"mtime_ns"`
	ETag    string `db:"etag"`
}

// FingerprintJournal caches content fingerprints keyed by (root, path) with
// the size and mtime observed when the hash was computed. A lookup only hits
// when size and mtime still match, so a stale entry can never suppress a
// copy. Losing the journal is harmless; every file just gets rehashed.
//
// An LRU sits in front of sqlite to keep steady-state passes off the disk.
type FingerprintJournal struct {
	db     *sqlx.DB
	dbPath string
	cache  *lru.Cache[string, *dbFingerprint]
}

func NewFingerprintJournal(dbPath string) *FingerprintJournal {
	return &FingerprintJournal{dbPath: dbPath}
}

// Open the journal and the underlying database.
func (j *FingerprintJournal) Open() error {
	if j.db != nil {
		return fmt.Errorf("fingerprint journal already open")
	}

	cache, err := lru.New[string, *dbFingerprint](journalCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create journal cache: %w", err)
	}

	sdb, err := db.NewSqliteDb(db.WithPath(j.dbPath), db.WithMaxOpenConns(1))
	if err != nil {
		return fmt.Errorf("failed to open fingerprint journal: %w", err)
	}

	if _, err := sdb.Exec(journalSchema); err != nil {
		sdb.Close()
		return fmt.Errorf("failed to initialize journal schema: %w", err)
	}

	j.db = sdb
	j.cache = cache
	return nil
}

// Close closes the underlying database connection.
func (j *FingerprintJournal) Close() error {
	if j.db == nil {
		return fmt.Errorf("fingerprint journal not open")
	}
	if err := j.db.Close(); err != nil {
		slog.Error("failed to close fingerprint journal", "error", err)
		return err
	}
	j.db = nil
	slog.Debug("fingerprint journal closed")
	return nil
}

// Lookup returns the cached fingerprint for (root, path) when the recorded
// size and mtime still match the observed ones.
func (j *FingerprintJournal) Lookup(root, path string, size int64, mtime time.Time) (string, bool) {
	if j.db == nil {
		return "", false
	}

	key := root + "\x00" + path
	if fp, ok := j.cache.Get(key); ok {
		if fp.Size == size && fp.MtimeNs == mtime.UnixNano() {
			return fp.ETag, true
		}
		return "", false
	}

	var fp dbFingerprint
	err := j.db.Get(&fp, "SELECT root, path, size, mtime_ns, etag FROM fingerprints WHERE root = ? AND path = ?", root, path)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("fingerprint journal query failed", "path", path, "error", err)
		}
		return "", false
	}

	j.cache.Add(key, &fp)
	if fp.Size == size && fp.MtimeNs == mtime.UnixNano() {
		return fp.ETag, true
	}
	return "", false
}

// Store records a freshly computed fingerprint.
func (j *FingerprintJournal) Store(root, path string, size int64, mtime time.Time, etag string) error {
	if j.db == nil {
		return fmt.Errorf("fingerprint journal not open")
	}

	fp := dbFingerprint{
		Root:    root,
		Path:    path,
		Size:    size,
		MtimeNs: mtime.UnixNano(),
		ETag:    etag,
	}

	query := `INSERT OR REPLACE INTO fingerprints (root, path, size, mtime_ns, etag)
	          VALUES (:root, :path, :size, :mtime_ns, :etag)`
	if _, err := j.db.NamedExec(query, fp); err != nil {
		return fmt.Errorf("failed to store fingerprint for %s: %w", path, err)
	}

	j.cache.Add(root+"\x00"+path, &fp)
	return nil
}

// Forget drops the entry for (root, path), e.g. after a delete.
func (j *FingerprintJournal) Forget(root, path string) error {
	if j.db == nil {
		return nil
	}
	j.cache.Remove(root + "\x00" + path)
	if _, err := j.db.Exec("DELETE FROM fingerprints WHERE root = ? AND path = ?", root, path); err != nil {
		return fmt.Errorf("failed to forget fingerprint for %s: %w", path, err)
	}
	return nil
}

// Count returns the number of journal entries across all roots.
func (j *FingerprintJournal) Count() (int, error) {
	if j.db == nil {
		return 0, fmt.Errorf("fingerprint journal not open")
	}
	var count int
	if err := j.db.Get(&count, "SELECT COUNT(*) FROM fingerprints"); err != nil {
		return 0, fmt.Errorf("failed to count journal entries: %w", err)
	}
	return count, nil
}
