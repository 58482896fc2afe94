package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mirrorbox/mirrorbox/internal/utils"
)

var (
	home, _            = os.UserHomeDir()
	DefaultConfigPath  = filepath.Join(home, ".mirrorbox", "config.json")
	DefaultAppLogPath  = filepath.Join(home, ".mirrorbox", "logs", "mirrorbox.log")
	DefaultOpLogPath   = filepath.Join(home, ".mirrorbox", "logs", "operations.json")
	DefaultJournalPath = filepath.Join(home, ".mirrorbox", "journal.db")
)

var (
	ErrNoSourceDir  = errors.New("source directory is required")
	ErrNoReplicaDir = errors.New("replica directory is required")
)

type Config struct {
	SourceDir  string   `json:"source_dir"`
	ReplicaDir string   `json:"replica_dir"`
	Interval   int      `json:"interval"` // seconds between passes
	Times      int      `json:"times"`    // number of passes to run
	OpLogPath  string   `json:"op_log"`
	Excludes   []string `json:"excludes,omitempty"`
	Watch      bool     `json:"-"`
	Path       string   `json:"-"`
}

// Validate resolves the configured paths and checks the values make sense.
// It does not require the source to exist; that is checked per pass so the
// error surfaces through the sync error taxonomy.
func (c *Config) Validate() error {
	if c.SourceDir == "" {
		return ErrNoSourceDir
	}
	if c.ReplicaDir == "" {
		return ErrNoReplicaDir
	}

	source, err := utils.ResolvePath(c.SourceDir)
	if err != nil {
		return fmt.Errorf("resolve source dir: %w", err)
	}
	replica, err := utils.ResolvePath(c.ReplicaDir)
	if err != nil {
		return fmt.Errorf("resolve replica dir: %w", err)
	}

	if source == replica {
		return errors.New("source and replica must be different directories")
	}
	if isSubPath(source, replica) {
		return errors.New("replica must not be inside the source directory")
	}
	if isSubPath(replica, source) {
		return errors.New("source must not be inside the replica directory")
	}

	if c.Interval <= 0 {
		return errors.New("interval must be a positive number of seconds")
	}
	if c.Times <= 0 {
		return errors.New("times must be a positive number of passes")
	}
	if c.OpLogPath == "" {
		c.OpLogPath = DefaultOpLogPath
	}

	c.SourceDir = source
	c.ReplicaDir = replica
	return nil
}

// IntervalDuration returns the configured interval as a time.Duration.
func (c *Config) IntervalDuration() time.Duration {
	return time.Duration(c.Interval) * time.Second
}

func (c *Config) Save(path string) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0o644)
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.Path = path
	return &cfg, nil
}

// isSubPath reports whether child is strictly inside parent.
func isSubPath(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !filepath.IsAbs(rel)
}
