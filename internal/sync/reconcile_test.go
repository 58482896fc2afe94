package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func actionIndex(t *testing.T, actions []Action, actionType ActionType, relPath string) int {
	t.Helper()
	for i, a := range actions {
		if a.Type == actionType && a.RelPath == relPath {
			return i
		}
	}
	t.Fatalf("action %s %s not found in %v", actionType, relPath, actions)
	return -1
}

func TestReconcile_EmptyReplica(t *testing.T) {
	source := snapshotOf(map[string]EntryKind{
		"a":       KindDir,
		"a/b.txt": KindFile,
		"top.txt": KindFile,
	})

	actions := Reconcile(source, Snapshot{})

	require.Len(t, actions, 3)
	dirIdx := actionIndex(t, actions, ActionCreateDir, "a")
	fileIdx := actionIndex(t, actions, ActionCopyNew, "a/b.txt")
	assert.Less(t, dirIdx, fileIdx, "CreateDir(a) must precede CopyFile(a/b.txt)")
	actionIndex(t, actions, ActionCopyNew, "top.txt")
}

func TestReconcile_InSyncIsNoOp(t *testing.T) {
	source := snapshotOf(map[string]EntryKind{"a": KindDir, "a/b.txt": KindFile})
	replica := snapshotOf(map[string]EntryKind{"a": KindDir, "a/b.txt": KindFile})

	actions := Reconcile(source, replica)
	assert.Empty(t, actions)
}

func TestReconcile_ChangedAndObsolete(t *testing.T) {
	// source = {foo.txt: "hello"}, replica = {foo.txt: "world", bar.txt: "x"}
	source := snapshotOf(map[string]EntryKind{"foo.txt": KindFile})
	replica := snapshotOf(map[string]EntryKind{"foo.txt": KindFile, "bar.txt": KindFile})
	replica["foo.txt"].ETag = "different"

	actions := Reconcile(source, replica)

	require.Len(t, actions, 2)
	assert.Equal(t, Action{Type: ActionCopyChanged, RelPath: "foo.txt"}, actions[0])
	assert.Equal(t, Action{Type: ActionDeleteFile, RelPath: "bar.txt"}, actions[1])
}

func TestReconcile_UnknownFingerprintForcesCopy(t *testing.T) {
	source := snapshotOf(map[string]EntryKind{"f.txt": KindFile})
	replica := snapshotOf(map[string]EntryKind{"f.txt": KindFile})
	replica["f.txt"].ETag = "" // read failed at snapshot time

	actions := Reconcile(source, replica)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionCopyChanged, actions[0].Type)
}

func TestReconcile_DirCreationParentsFirst(t *testing.T) {
	source := snapshotOf(map[string]EntryKind{
		"a":     KindDir,
		"a/b":   KindDir,
		"a/b/c": KindDir,
	})

	actions := Reconcile(source, Snapshot{})
	require.Len(t, actions, 3)
	assert.Equal(t, "a", actions[0].RelPath)
	assert.Equal(t, "a/b", actions[1].RelPath)
	assert.Equal(t, "a/b/c", actions[2].RelPath)
}

func TestReconcile_DirDeletionChildrenFirst(t *testing.T) {
	replica := snapshotOf(map[string]EntryKind{
		"old":         KindDir,
		"old/sub":     KindDir,
		"old/f.txt":   KindFile,
		"old/sub/g":   KindFile,
		"keep.txt":    KindFile,
		"another.txt": KindFile,
	})
	source := snapshotOf(map[string]EntryKind{"keep.txt": KindFile, "another.txt": KindFile})

	actions := Reconcile(source, replica)

	fileF := actionIndex(t, actions, ActionDeleteFile, "old/f.txt")
	fileG := actionIndex(t, actions, ActionDeleteFile, "old/sub/g")
	dirSub := actionIndex(t, actions, ActionDeleteDir, "old/sub")
	dirOld := actionIndex(t, actions, ActionDeleteDir, "old")

	assert.Less(t, fileF, dirSub)
	assert.Less(t, fileG, dirSub)
	assert.Less(t, dirSub, dirOld, "children must be deleted before parents")
}

func TestReconcile_KindConflictFileBecomesDir(t *testing.T) {
	// source has directory "x" with content; replica has a file "x"
	source := snapshotOf(map[string]EntryKind{"x": KindDir, "x/y.txt": KindFile})
	replica := snapshotOf(map[string]EntryKind{"x": KindFile})

	actions := Reconcile(source, replica)

	del := actionIndex(t, actions, ActionDeleteFile, "x")
	mk := actionIndex(t, actions, ActionCreateDir, "x")
	cp := actionIndex(t, actions, ActionCopyNew, "x/y.txt")

	assert.Less(t, del, mk, "stale file must be deleted before the directory is created")
	assert.Less(t, mk, cp)
}

func TestReconcile_KindConflictDirBecomesFile(t *testing.T) {
	source := snapshotOf(map[string]EntryKind{"x": KindFile})
	replica := snapshotOf(map[string]EntryKind{"x": KindDir, "x/old.txt": KindFile})

	actions := Reconcile(source, replica)

	// the pre-delete removes the whole subtree, so x/old.txt needs no action
	require.Len(t, actions, 2)
	del := actionIndex(t, actions, ActionDeleteDir, "x")
	cp := actionIndex(t, actions, ActionCopyNew, "x")
	assert.Less(t, del, cp, "stale directory must be deleted before the file is copied")
}

func TestReconcile_Deterministic(t *testing.T) {
	source := snapshotOf(map[string]EntryKind{
		"a": KindDir, "a/1": KindFile, "a/2": KindFile,
		"b": KindDir, "b/c": KindDir, "b/c/3": KindFile,
	})
	replica := snapshotOf(map[string]EntryKind{
		"z": KindDir, "z/9": KindFile, "stale.txt": KindFile,
	})

	first := Reconcile(source, replica)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Reconcile(source, replica))
	}
}
