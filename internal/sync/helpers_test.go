package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// writeFile creates relPath (and parents) under root with the given content.
func writeFile(t *testing.T, root, relPath, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(relPath))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// makeDir creates a directory relPath under root.
func makeDir(t *testing.T, root, relPath string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(root, filepath.FromSlash(relPath)), 0o755))
}

// scan returns a snapshot of root without journal or ignore rules.
func scan(t *testing.T, root string) Snapshot {
	t.Helper()
	snap, err := NewSnapshotter(root, nil, nil).Scan()
	require.NoError(t, err)
	return snap
}

// snapshotOf builds an in-memory snapshot from kind-tagged entries, e.g.
// {"a": KindDir, "a/b.txt": KindFile}. File etags default to the path itself.
func snapshotOf(entries map[string]EntryKind) Snapshot {
	snap := make(Snapshot)
	for path, kind := range entries {
		entry := &SnapshotEntry{RelPath: path, Kind: kind}
		if kind == KindFile {
			entry.ETag = "etag-" + path
		}
		snap[path] = entry
	}
	return snap
}
