package sync

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan_MissingRootIsEmpty(t *testing.T) {
	snap, err := NewSnapshotter("/nonexistent/mirrorbox/root", nil, nil).Scan()
	require.NoError(t, err)
	assert.Empty(t, snap)
}

func TestScan_FilesAndDirs(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "top.txt", "top")
	writeFile(t, root, "a/b.txt", "nested")
	makeDir(t, root, "a/empty")

	snap := scan(t, root)

	require.Len(t, snap, 4)

	assert.Equal(t, KindFile, snap["top.txt"].Kind)
	assert.Equal(t, KindFile, snap["a/b.txt"].Kind)
	assert.Equal(t, KindDir, snap["a"].Kind)
	assert.Equal(t, KindDir, snap["a/empty"].Kind)

	// files carry fingerprints, directories do not
	assert.NotEmpty(t, snap["top.txt"].ETag)
	assert.NotEmpty(t, snap["a/b.txt"].ETag)
	assert.Empty(t, snap["a"].ETag)
	assert.Empty(t, snap["a/empty"].ETag)

	// the root itself is not an entry
	assert.NotContains(t, snap, ".")
	assert.NotContains(t, snap, "")
}

func TestScan_EqualContentEqualETag(t *testing.T) {
	src := t.TempDir()
	dst := t.TempDir()
	writeFile(t, src, "x/f.txt", "identical bytes")
	writeFile(t, dst, "x/f.txt", "identical bytes")

	srcSnap := scan(t, src)
	dstSnap := scan(t, dst)

	assert.Equal(t, srcSnap["x/f.txt"].ETag, dstSnap["x/f.txt"].ETag)
}

func TestScan_IgnoredPathsInvisible(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "keep.txt", "keep")
	writeFile(t, root, "junk.tmp", "junk")
	writeFile(t, root, "secret/key.txt", "key")
	writeFile(t, root, IgnoreFileName, "secret\n")

	ignore := NewIgnoreList(root)
	snap, err := NewSnapshotter(root, nil, ignore).Scan()
	require.NoError(t, err)

	assert.Contains(t, snap, "keep.txt")
	assert.NotContains(t, snap, "junk.tmp") // default *.tmp rule
	assert.NotContains(t, snap, "secret")
	assert.NotContains(t, snap, "secret/key.txt")
	assert.NotContains(t, snap, IgnoreFileName)
}

func TestScan_UnreadableSubdirFailsScan(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("directory permissions are not enforced for root")
	}

	root := t.TempDir()
	writeFile(t, root, "sub/f.txt", "content")
	writeFile(t, root, "readable.txt", "fine")

	locked := filepath.Join(root, "sub")
	require.NoError(t, os.Chmod(locked, 0o000))
	t.Cleanup(func() { os.Chmod(locked, 0o755) })

	// a truncated snapshot would present sub/f.txt as absent, so the scan
	// must fail instead of silently dropping the subtree
	snap, err := NewSnapshotter(root, nil, nil).Scan()
	require.Error(t, err)
	assert.Nil(t, snap)
}

func TestScan_JournalAvoidsRehash(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "a.txt", "cache me")

	journal := newTestJournal(t)
	snapshotter := NewSnapshotter(root, journal, nil)

	first, err := snapshotter.Scan()
	require.NoError(t, err)

	count, err := journal.Count()
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	second, err := snapshotter.Scan()
	require.NoError(t, err)
	assert.Equal(t, first["a.txt"].ETag, second["a.txt"].ETag)
}
