package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/mirrorbox/mirrorbox/internal/config"
	"github.com/mirrorbox/mirrorbox/internal/oplog"
	"github.com/mirrorbox/mirrorbox/internal/sync"
	"github.com/mirrorbox/mirrorbox/internal/utils"
	"github.com/mirrorbox/mirrorbox/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	home, _         = os.UserHomeDir()
	configFileName  = "config"
	defaultInterval = 30
	defaultTimes    = 1
)

var rootCmd = &cobra.Command{
	Use:     "mirrorbox",
	Short:   "One-way periodic directory mirroring with an operation log",
	Version: version.Detailed(),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		// create & validate config
		cfg := &config.Config{
			Path:       viper.ConfigFileUsed(),
			SourceDir:  viper.GetString("source_dir"),
			ReplicaDir: viper.GetString("replica_dir"),
			Interval:   viper.GetInt("interval"),
			Times:      viper.GetInt("times"),
			OpLogPath:  viper.GetString("op_log"),
			Excludes:   viper.GetStringSlice("excludes"),
			Watch:      viper.GetBool("watch"),
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		// a missing source at startup is a hard error, not something to
		// retry on the next interval
		if !utils.DirExists(cfg.SourceDir) {
			return fmt.Errorf("source path does not exist: %s", cfg.SourceDir)
		}

		// all good now, show header
		cmd.SilenceUsage = true
		showHeader()
		slog.Info("mirroring", "source", cfg.SourceDir, "replica", cfg.ReplicaDir,
			"interval", cfg.IntervalDuration(), "times", cfg.Times, "opLog", cfg.OpLogPath)

		journal := sync.NewFingerprintJournal(viper.GetString("journal"))
		if err := journal.Open(); err != nil {
			slog.Warn("fingerprint journal unavailable, rehashing every pass", "error", err)
			journal = nil
		} else {
			defer journal.Close()
		}

		ignore := sync.NewIgnoreList(cfg.SourceDir, cfg.Excludes...)
		engine := sync.NewEngine(cfg.SourceDir, cfg.ReplicaDir, oplog.New(cfg.OpLogPath), journal, ignore)

		var watcher *sync.FileWatcher
		if cfg.Watch {
			watcher = sync.NewFileWatcher(cfg.SourceDir)
		}

		runner := sync.NewRunner(engine, cfg.IntervalDuration(), cfg.Times, watcher)

		defer slog.Info("Bye!")
		if err := runner.Run(cmd.Context()); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().SortFlags = false
	rootCmd.Flags().StringP("source", "s", "", "Source directory to mirror from")
	rootCmd.Flags().StringP("replica", "r", "", "Replica directory to mirror into")
	rootCmd.Flags().IntP("interval", "i", defaultInterval, "Seconds between sync passes")
	rootCmd.Flags().IntP("times", "n", defaultTimes, "Number of sync passes to run")
	rootCmd.Flags().StringP("oplog", "l", config.DefaultOpLogPath, "Operation log file")
	rootCmd.Flags().StringSliceP("exclude", "x", nil, "Glob patterns to exclude from mirroring")
	rootCmd.Flags().BoolP("watch", "w", false, "Run the next pass early when the source changes")
	rootCmd.Flags().String("journal", config.DefaultJournalPath, "Fingerprint journal database")
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultConfigPath, "MirrorBox config file")
}

func main() {
	logFile := config.DefaultAppLogPath

	logDir := filepath.Dir(logFile)
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create log directory: %v\n", err)
		os.Exit(1)
	}

	file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	// Setup handlers for both outputs
	stdoutHandler := tint.NewHandler(os.Stdout, &tint.Options{
		Level:      slog.LevelDebug,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
		NoColor:    !isatty.IsTerminal(os.Stdout.Fd()),
	})
	logInterceptor := utils.NewLogInterceptor(file)
	fileHandler := slog.NewTextHandler(logInterceptor, &slog.HandlerOptions{
		Level: slog.LevelDebug,
		// Do not include time as it is added by the log interceptor.
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	multiLogHandler := utils.NewMultiLogHandler(stdoutHandler, fileHandler)
	logger := slog.New(multiLogHandler)
	slog.SetDefault(logger)

	// Setup root context with signal handling
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command) error {
	// config path
	if cmd.Flag("config").Changed {
		configFilePath, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(configFilePath)
	} else {
		viper.AddConfigPath(filepath.Join(home, ".mirrorbox"))
		viper.SetConfigName(configFileName)
		viper.SetConfigType("json")
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		enoent := errors.Is(err, os.ErrNotExist)
		_, ok := err.(viper.ConfigFileNotFoundError)
		if !enoent && !ok {
			return fmt.Errorf("config read '%s': %w", viper.ConfigFileUsed(), err)
		}
	}

	// Bind flags to viper
	viper.BindPFlag("source_dir", cmd.Flags().Lookup("source"))
	viper.BindPFlag("replica_dir", cmd.Flags().Lookup("replica"))
	viper.BindPFlag("interval", cmd.Flags().Lookup("interval"))
	viper.BindPFlag("times", cmd.Flags().Lookup("times"))
	viper.BindPFlag("op_log", cmd.Flags().Lookup("oplog"))
	viper.BindPFlag("excludes", cmd.Flags().Lookup("exclude"))
	viper.BindPFlag("watch", cmd.Flags().Lookup("watch"))
	viper.BindPFlag("journal", cmd.Flags().Lookup("journal"))

	// Set up environment variables
	viper.SetEnvPrefix("MIRRORBOX")
	viper.AutomaticEnv()

	return nil
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).Println(version.ShortWithApp())
}
