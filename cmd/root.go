package cmd

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mihaisavezi/endpoint-proxy/internal/config"
	"github.com/mihaisavezi/endpoint-proxy/internal/logging"
)

const (
	AppName = "endpoint-proxy"
	Version = "0.3.0"
)

var errConfigRequired = errors.New("configuration required")

var (
	logger  *slog.Logger
	homeDir string
	baseDir string
	cfgMgr  *config.Manager
)

func init() {
	logger = logging.New(logging.Options{})

	var err error

	homeDir, err = os.UserHomeDir()
	if err != nil {
		logger.Error("Failed to get home directory", "error", err)
		os.Exit(1)
	}

	baseDir = filepath.Join(homeDir, "."+AppName)
	if dir := os.Getenv(config.EnvPrefix + "_CONFIG_DIR"); dir != "" {
		baseDir = dir
	}

	cfgMgr = config.NewManager(baseDir)
}

var rootCmd = &cobra.Command{
	Use:   "eproxy",
	Short: "Endpoint Proxy - OpenAI-compatible AI gateway",
	Long: `An OpenAI-compatible gateway that serves embeddings and chat completions
from OpenAI, OpenRouter, Cursor and any OpenAI-compatible endpoint behind one API.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error("Command execution failed", "error", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable verbose logging")
	rootCmd.PersistentFlags().StringP("log-file", "l", "", "also write logs to this file (rotated)")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(providersCmd)
}

// setupLogging rebuilds the logger from flags, falling back to the
// configured level and log file.
func setupLogging(cmd *cobra.Command, cfg *config.Config) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	logFile, _ := cmd.Flags().GetString("log-file")

	opts := logging.Options{Verbose: verbose, FilePath: logFile}

	if cfg != nil {
		opts.Level = cfg.LogLevel

		if opts.FilePath == "" && cfg.LogFile != "" {
			opts.FilePath = cfg.LogFile
		}
	}

	logger = logging.New(opts)
}

func ensureConfigExists() error {
	if !cfgMgr.Exists() {
		color.Yellow("Configuration not found in %s", baseDir)
		color.Cyan("Run '%s config init' to create an example configuration", rootCmd.Name())

		return errConfigRequired
	}

	return nil
}
