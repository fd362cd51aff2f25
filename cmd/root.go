package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"porter/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfg     *config.Config
	logger  *slog.Logger
	cfgFile string
	verbose bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "porter",
	Short: "Push files into a content-addressed storage network",
	Long: `Porter pushes a file or a directory tree into a content-addressed
storage network through a node running on this machine, then tracks the
transfer's propagation through the network to completion.

Usage:
  Upload a file or directory: porter send /path/to/something
  List known transfers:       porter list

Directory uploads are packed into a single collection; a file named
index.html anywhere in the tree becomes the collection's entry point.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		initConfig()

		cfg = config.NewDefaultConfig()
		if err := viper.Unmarshal(cfg); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
		return nil
	},
	SilenceUsage: true,
}

func init() {
	// Add global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.porter.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
	rootCmd.PersistentFlags().String("api", "", "node API endpoint")
	rootCmd.PersistentFlags().String("allocation", "", "storage allocation id")

	viper.BindPFlag("api", rootCmd.PersistentFlags().Lookup("api"))
	viper.BindPFlag("allocation_id", rootCmd.PersistentFlags().Lookup("allocation"))

	// Set up viper environment variable support
	viper.SetEnvPrefix("PORTER")
	viper.AutomaticEnv()
}

// initConfig reads in config file and ENV variables
func initConfig() {
	defaults := config.NewDefaultConfig()
	viper.SetDefault("api", defaults.API)
	viper.SetDefault("poll_interval", defaults.PollInterval)
	viper.SetDefault("sync_wait", defaults.SyncWait)
	viper.SetDefault("data_dir", defaults.DataDir)

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			logger = slog.Default()
			logger.Warn("could not find home directory", "err", err)
			return
		}

		// Search the current config location first, then the legacy one.
		viper.SetConfigType("yaml")
		viper.SetConfigName(".porter")
		viper.AddConfigPath(home)
		viper.AddConfigPath(filepath.Join(home, ".porter"))
	}

	viper.AutomaticEnv()

	_ = viper.ReadInConfig()
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// createContext creates a context that cancels on interrupt signals.
// The returned channel also surfaces each signal so commands can give
// the first interrupt a softer meaning.
func createContext() (context.Context, context.CancelFunc, <-chan os.Signal) {
	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 2)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	return ctx, cancel, sigChan
}
