package sync

import (
	"bufio"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/mirrorbox/mirrorbox/internal/utils"
	gitignore "github.com/sabhiram/go-gitignore"
)

// IgnoreFileName is looked up in the source root; it uses gitignore syntax.
const IgnoreFileName = "mirrorignore"

var defaultIgnoreLines = []string{
	IgnoreFileName,
	// editor/tool droppings that should never be mirrored
	"*.tmp",
	"*.swp",
	"*~",
	// OS-specific
	".DS_Store",
	"Thumbs.db",
	// VCS metadata
	".git/",
}

// IgnoreList decides which relative paths are invisible to the snapshotter:
// never copied to the replica and never deleted from it. Rules come from the
// built-in defaults, an optional mirrorignore file in the source root, and
// glob patterns supplied on the command line.
type IgnoreList struct {
	baseDir string
	globs   []string
	ignore  *gitignore.GitIgnore
}

func NewIgnoreList(baseDir string, globs ...string) *IgnoreList {
	return &IgnoreList{baseDir: baseDir, globs: globs}
}

// Load compiles the rules. Safe to call again to pick up edits to the
// mirrorignore file between passes.
func (l *IgnoreList) Load() {
	ignorePath := filepath.Join(l.baseDir, IgnoreFileName)
	ignoreLines := append([]string{}, defaultIgnoreLines...)

	if utils.FileExists(ignorePath) {
		file, err := os.Open(ignorePath)
		if err != nil {
			slog.Warn("failed to open ignore file", "path", ignorePath, "error", err)
		} else {
			defer file.Close()

			rules := 0
			scanner := bufio.NewScanner(file)
			for scanner.Scan() {
				line := scanner.Text()
				if line != "" {
					ignoreLines = append(ignoreLines, line)
					rules++
				}
			}
			slog.Debug("loaded ignore rules", "path", ignorePath, "rules", rules)
		}
	}

	l.ignore = gitignore.CompileIgnoreLines(ignoreLines...)
}

// ShouldIgnore reports whether the relative path matches any ignore rule.
func (l *IgnoreList) ShouldIgnore(relPath string) bool {
	if l.ignore == nil {
		l.Load()
	}

	if l.ignore.MatchesPath(relPath) {
		return true
	}

	for _, glob := range l.globs {
		if ok, err := doublestar.Match(glob, relPath); err == nil && ok {
			return true
		}
	}
	return false
}
