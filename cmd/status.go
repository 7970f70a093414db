package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/mihaisavezi/endpoint-proxy/internal/process"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show gateway service status",
	Long:  `Display the current status of the gateway service.`,
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) {
	procMgr := process.NewManager(baseDir)

	cfg, err := cfgMgr.Load()
	if err != nil {
		cfg = cfgMgr.Get()
	}

	running := procMgr.IsRunning()
	endpoint := fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)

	color.Blue("Status for %s:", AppName)
	fmt.Printf("  %-15s: %v\n", "Running", running)
	fmt.Printf("  %-15s: %d\n", "PID", procMgr.ReadPID())
	fmt.Printf("  %-15s: %s\n", "Endpoint", endpoint)
	fmt.Printf("  %-15s: %d\n", "Providers", len(cfg.Providers))

	if running {
		fmt.Printf("  %-15s: %s\n", "Health", probeHealth(cmd.Context(), endpoint))
	}

	fmt.Printf("  %-15s: %s\n", "Config Path", cfgMgr.GetPath())
	fmt.Printf("  %-15s: v%s\n", "Version", Version)
}

func probeHealth(ctx context.Context, endpoint string) string {
	if ctx == nil {
		ctx = context.Background()
	}

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/health", nil)
	if err != nil {
		return err.Error()
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return color.RedString("unreachable (%v)", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return color.YellowString("unhealthy (%s)", resp.Status)
	}

	return color.GreenString("ok")
}
