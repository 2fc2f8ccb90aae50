// Command photoframed is the long-running sync/cache/display daemon: it
// speaks the NDJSON host protocol on stdin/stdout and drives the Catalog,
// Provider, CacheEngine, SyncController, and DisplayDispatcher for the life
// of the process. Command-tree shape grounded on rclone's cmd/ packages
// (e.g. cmd/rmdirs/rmdirs.go), using github.com/spf13/cobra directly rather
// than rclone's shared cmd.Root wrapper.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/apex/log"
	logcli "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"

	"photoframe-sync/internal/engine"
	"photoframe-sync/internal/hostproto"
)

func main() {
	log.SetHandler(logcli.Default)

	root := &cobra.Command{
		Use:   "photoframed",
		Short: "Cloud photo sync and cache daemon for the smart-mirror photo frame",
		RunE:  runDaemon,
	}
	root.Flags().String("catalog", "", "override the catalog database path")
	root.Flags().String("cache-dir", "", "override the cache directory")

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("photoframed: exited with error")
	}
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := engine.LoadFromEnv()
	if err != nil {
		return err
	}
	if v, _ := cmd.Flags().GetString("catalog"); v != "" {
		cfg.CatalogPath = v
	}
	if v, _ := cmd.Flags().GetString("cache-dir"); v != "" {
		cfg.CacheDir = v
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	out := hostproto.NewWriter(os.Stdout)
	eng := engine.New(cfg, out)
	defer eng.Stop()

	in := hostproto.NewReader(os.Stdin)
	runErr := make(chan error, 1)
	go func() { runErr <- eng.Run(ctx, in) }()

	select {
	case <-ctx.Done():
		return nil
	case err := <-runErr:
		return err
	}
}
