package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Desjajja/o2a/internal/process"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running proxy",
	RunE:  runStop,
}

func runStop(cmd *cobra.Command, _ []string) error {
	procMgr := process.NewManager(baseDir)

	if !procMgr.IsRunning() {
		color.Yellow("Service is not running")
		return nil
	}

	color.Yellow("Stopping %s...", AppName)

	if err := procMgr.Stop(); err != nil {
		return err
	}

	color.Green("Service stopped successfully")

	return nil
}
