package cmd

import (
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/Desjajja/o2a/internal/config"
	"github.com/Desjajja/o2a/internal/process"
	"github.com/Desjajja/o2a/internal/server"
	"github.com/Desjajja/o2a/internal/upstream"
)

var listenAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the translation proxy",
	Long:  `Run the translation proxy in the foreground until interrupted.`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&listenAddr, "listen", "127.0.0.1:8080", "address to listen on")
}

func runServe(cmd *cobra.Command, _ []string) error {
	verbose, _ := cmd.Flags().GetBool("verbose")
	setupLogging(verbose)

	// Startup is explicit and ordered: load configuration, build the client
	// pool from the active snapshot, then accept connections.
	store := config.NewStore(configPath)
	if err := store.Startup(); err != nil {
		return err
	}

	pool := upstream.NewPool()
	pool.Rebuild(store.Active())
	defer pool.Shutdown()

	procMgr := process.NewManager(baseDir)
	if err := procMgr.WritePID(); err != nil {
		return err
	}
	defer procMgr.CleanupPID()

	active := store.Active()
	color.Green("Starting %s v%s on %s", AppName, Version, listenAddr)
	logger.Info("Starting proxy",
		"address", listenAddr,
		"config", store.Path(),
		"providers", len(active.Providers),
	)

	srv := server.New(listenAddr, store, pool, logger)

	return srv.Start()
}
