package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dayuer/charbot-go/internal/config"
	"github.com/dayuer/charbot-go/internal/utils"
)

// Version is set at build time.
var Version = "dev"

var (
	configPath string
	verbose    bool
	devLog     bool

	logger   = zap.NewNop()
	logLevel = zap.NewAtomicLevelAt(zapcore.InfoLevel)
)

var rootCmd = &cobra.Command{
	Use:   "charbot",
	Short: "charbot - WhatsApp companion that echoes marked character names",
	Long: `charbot watches a WhatsApp group through a bridge, picks up words marked
with asterisks and answers with them after a human-like delay, occasionally
with a typo that it corrects a moment later.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(".env")
		if verbose {
			logLevel.SetLevel(zapcore.DebugLevel)
		}
		return buildLogger(devLog)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = logger.Sync()
	},
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Version = Version
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default ~/.charbot/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&devLog, "dev", false, "human-readable development logging")
}

func buildLogger(development bool) error {
	zc := zap.NewProductionConfig()
	if development {
		zc = zap.NewDevelopmentConfig()
	}
	zc.Level = logLevel
	l, err := zc.Build()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	logger = l
	return nil
}

// loadConfig reads the config file, overlays the environment, expands home
// paths and applies the configured log level unless --verbose was given.
func loadConfig() (config.Config, string, error) {
	path := configPath
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, path, fmt.Errorf("loading config %s: %w", path, err)
	}
	config.ApplyEnv(&cfg)
	cfg.Storage.MappingsFile = utils.ExpandHome(cfg.Storage.MappingsFile)
	cfg.Resolver.ServicesFile = utils.ExpandHome(cfg.Resolver.ServicesFile)

	if !verbose && cfg.Log.Level != "" {
		if lvl, err := zapcore.ParseLevel(cfg.Log.Level); err == nil {
			logLevel.SetLevel(lvl)
		} else {
			logger.Warn("unknown log level", zap.String("level", cfg.Log.Level))
		}
	}
	if cfg.Log.Development && !devLog {
		devLog = true
		if err := buildLogger(true); err != nil {
			return cfg, path, err
		}
	}
	return cfg, path, nil
}
