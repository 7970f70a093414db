package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mihaisavezi/endpoint-proxy/internal/process"
	"github.com/mihaisavezi/endpoint-proxy/internal/server"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the gateway service",
	Long:  `Start the gateway in the foreground, or in the background with --background.`,
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolP("background", "b", false, "run the service in the background")
}

func runStart(cmd *cobra.Command, _ []string) error {
	if err := ensureConfigExists(); err != nil {
		return err
	}

	cfg, err := cfgMgr.Load()
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogging(cmd, cfg)

	procMgr := process.NewManager(baseDir)

	if background, _ := cmd.Flags().GetBool("background"); background {
		started, err := procMgr.StartBackground("start")
		if err != nil {
			return err
		}

		if !started {
			color.Yellow("Service is already running (PID %d)", procMgr.ReadPID())
			return nil
		}

		color.Green("%s started in the background on http://%s:%d", AppName, cfg.Host, cfg.Port)

		return nil
	}

	if procMgr.IsRunning() {
		return fmt.Errorf("service already running with PID %d", procMgr.ReadPID())
	}

	color.Green("Starting %s v%s...", AppName, Version)
	logger.Info("Starting server",
		"host", cfg.Host,
		"port", cfg.Port,
		"providers", len(cfg.Providers),
		"config", cfgMgr.GetPath(),
	)

	if err := procMgr.WritePID(); err != nil {
		return err
	}

	defer func() {
		if err := procMgr.CleanupPID(); err != nil {
			logger.Warn("Failed to remove PID file", "error", err)
		}
	}()

	return server.New(cfgMgr, logger).Start()
}
