package sync

import (
	"sort"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

type ActionType string

const (
	ActionCreateDir   ActionType = "CreateDir"
	ActionCopyNew     ActionType = "CopyNew"
	ActionCopyChanged ActionType = "CopyChanged"
	ActionDeleteFile  ActionType = "DeleteFile"
	ActionDeleteDir   ActionType = "DeleteDir"
)

// Action is one filesystem mutation the Applier must perform on the replica.
type Action struct {
	Type    ActionType
	RelPath string
}

// IsCopy reports whether the action transfers file content.
func (a Action) IsCopy() bool {
	return a.Type == ActionCopyNew || a.Type == ActionCopyChanged
}

// Reconcile diffs the source snapshot against the replica snapshot and
// returns the ordered action list that makes the replica match the source:
//
//  1. deletions of replica entries whose kind conflicts with the source
//     (a file where the source has a directory, or vice versa), so the path
//     is free before it is recreated;
//  2. directory creations, parents before children;
//  3. file copies, new and changed;
//  4. deletions of replica-only files;
//  5. deletions of replica-only directories, children before parents.
//
// Membership is decided purely from the two snapshots, never from filesystem
// state at apply time. The output is deterministic for a given input.
func Reconcile(source, replica Snapshot) []Action {
	sourcePaths := mapset.NewThreadUnsafeSet[string]()
	for path := range source {
		sourcePaths.Add(path)
	}
	replicaPaths := mapset.NewThreadUnsafeSet[string]()
	for path := range replica {
		replicaPaths.Add(path)
	}

	// replica entries whose kind no longer matches the source
	kindConflicts := mapset.NewThreadUnsafeSet[string]()
	for path := range sourcePaths.Intersect(replicaPaths).Iter() {
		if source[path].Kind != replica[path].Kind {
			kindConflicts.Add(path)
		}
	}

	var preDeletes []Action
	var conflictDirPrefixes []string
	for path := range kindConflicts.Iter() {
		if replica[path].Kind == KindDir {
			preDeletes = append(preDeletes, Action{Type: ActionDeleteDir, RelPath: path})
			conflictDirPrefixes = append(conflictDirPrefixes, path+"/")
		} else {
			preDeletes = append(preDeletes, Action{Type: ActionDeleteFile, RelPath: path})
		}
	}
	sortLex(preDeletes)

	// directories to create, depth ascending so parents come first
	var createDirs []Action
	for path, entry := range source {
		if entry.Kind != KindDir {
			continue
		}
		if !replicaPaths.Contains(path) || kindConflicts.Contains(path) {
			createDirs = append(createDirs, Action{Type: ActionCreateDir, RelPath: path})
		}
	}
	sort.Slice(createDirs, func(i, j int) bool {
		di, dj := pathDepth(createDirs[i].RelPath), pathDepth(createDirs[j].RelPath)
		if di != dj {
			return di < dj
		}
		return createDirs[i].RelPath < createDirs[j].RelPath
	})

	// files to copy
	var copies []Action
	for path, entry := range source {
		if entry.Kind != KindFile {
			continue
		}
		if !replicaPaths.Contains(path) || kindConflicts.Contains(path) {
			copies = append(copies, Action{Type: ActionCopyNew, RelPath: path})
		} else if contentChanged(entry, replica[path]) {
			copies = append(copies, Action{Type: ActionCopyChanged, RelPath: path})
		}
	}
	sortLex(copies)

	// replica entries whose path does not appear in the source at all
	obsolete := replicaPaths.Difference(sourcePaths)

	var deleteFiles []Action
	var deleteDirs []Action
	for path := range obsolete.Iter() {
		// entries below a kind-conflicted directory vanish with its pre-delete
		if underAny(path, conflictDirPrefixes) {
			continue
		}
		if replica[path].Kind == KindDir {
			deleteDirs = append(deleteDirs, Action{Type: ActionDeleteDir, RelPath: path})
		} else {
			deleteFiles = append(deleteFiles, Action{Type: ActionDeleteFile, RelPath: path})
		}
	}
	sortLex(deleteFiles)
	// reverse of creation order: children before parents
	sort.Slice(deleteDirs, func(i, j int) bool {
		di, dj := pathDepth(deleteDirs[i].RelPath), pathDepth(deleteDirs[j].RelPath)
		if di != dj {
			return di > dj
		}
		return deleteDirs[i].RelPath > deleteDirs[j].RelPath
	})

	actions := make([]Action, 0, len(preDeletes)+len(createDirs)+len(copies)+len(deleteFiles)+len(deleteDirs))
	actions = append(actions, preDeletes...)
	actions = append(actions, createDirs...)
	actions = append(actions, copies...)
	actions = append(actions, deleteFiles...)
	actions = append(actions, deleteDirs...)
	return actions
}

// contentChanged compares file fingerprints. An empty fingerprint means the
// content could not be read at snapshot time; the safe default is to re-copy.
func contentChanged(src, dst *SnapshotEntry) bool {
	if src.ETag == "" || dst.ETag == "" {
		return true
	}
	return src.ETag != dst.ETag
}

func pathDepth(relPath string) int {
	return strings.Count(relPath, "/")
}

func underAny(relPath string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if strings.HasPrefix(relPath, prefix) {
			return true
		}
	}
	return false
}

func sortLex(actions []Action) {
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].RelPath < actions[j].RelPath
	})
}
