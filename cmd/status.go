package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Desjajja/o2a/internal/config"
	"github.com/Desjajja/o2a/internal/process"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show proxy service status",
	Run:   runStatus,
}

func runStatus(cmd *cobra.Command, _ []string) {
	procMgr := process.NewManager(baseDir)

	running := procMgr.IsRunning()
	pid := procMgr.ReadPID()

	color.Blue("Status for %s:", AppName)
	fmt.Printf("  %-12s: %v\n", "Running", running)

	if running {
		fmt.Printf("  %-12s: %d\n", "PID", pid)
	}

	fmt.Printf("  %-12s: %s\n", "Config Path", configPath)

	store := config.NewStore(configPath)
	if err := store.Startup(); err == nil {
		active := store.Active()

		models := 0
		for _, provider := range active.Providers {
			models += len(provider.Models)
		}

		fmt.Printf("  %-12s: %d\n", "Providers", len(active.Providers))
		fmt.Printf("  %-12s: %d\n", "Models", models)
	}

	fmt.Printf("  %-12s: v%s\n", "Version", Version)
}
