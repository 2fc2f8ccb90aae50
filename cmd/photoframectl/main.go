// Command photoframectl is the operator inspection and maintenance tool for
// the photoframed daemon's catalog: print cache stats, preview the display
// rotation, and force a resync or eviction pass without wiring up a host
// process. It opens the same SQLite catalog file the daemon uses, so it
// must not run concurrently with a live daemon against the same path
// (database/sql's single-connection pool would just serialize the two,
// but the daemon's background timers would race a manual resync).
//
// Command-tree shape grounded on rclone's cmd/ packages (e.g.
// cmd/rmdirs/rmdirs.go); the interactive prompts and progress spinner are
// grounded on the teacher's internal/adapter/ui/console.go.
package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apex/log"
	logcli "github.com/apex/log/handlers/cli"
	"github.com/spf13/cobra"

	"photoframe-sync/internal/cache"
	"photoframe-sync/internal/catalog"
	"photoframe-sync/internal/cliui"
	"photoframe-sync/internal/domain"
	"photoframe-sync/internal/engine"
	"photoframe-sync/internal/provider"
	"photoframe-sync/internal/sync"
)

func main() {
	log.SetHandler(logcli.Default)

	var nonInteractive bool
	var catalogPath, cacheDir string
	var containerFlags []string

	root := &cobra.Command{
		Use:   "photoframectl",
		Short: "Inspect and maintain a photoframed catalog",
	}
	root.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "assume yes to confirmations, skip interactive pickers")
	root.PersistentFlags().StringVar(&catalogPath, "catalog", "", "override the catalog database path")
	root.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "override the cache directory")
	root.PersistentFlags().StringArrayVar(&containerFlags, "container", nil, "container to scan as id[:depth] (repeatable); depth defaults to -1")

	loadConfig := func() (engine.Config, error) {
		cfg, err := engine.LoadFromEnv()
		if err != nil {
			return engine.Config{}, err
		}
		if catalogPath != "" {
			cfg.CatalogPath = catalogPath
		}
		if cacheDir != "" {
			cfg.CacheDir = cacheDir
		}
		cfg.Containers, err = parseContainers(containerFlags)
		return cfg, err
	}

	root.AddCommand(
		statsCmd(loadConfig),
		previewCmd(loadConfig, &nonInteractive),
		resyncCmd(loadConfig, &nonInteractive),
		evictCmd(loadConfig, &nonInteractive),
	)

	if err := root.Execute(); err != nil {
		log.WithError(err).Fatal("photoframectl: exited with error")
	}
}

// parseContainers turns repeated --container id[:depth] flags into the
// []domain.Container the sync and scan operations expect.
func parseContainers(flags []string) ([]domain.Container, error) {
	out := make([]domain.Container, 0, len(flags))
	for _, f := range flags {
		id, depthStr, hasDepth := strings.Cut(f, ":")
		depth := -1
		if hasDepth {
			d, err := strconv.Atoi(depthStr)
			if err != nil {
				return nil, fmt.Errorf("invalid --container depth in %q: %w", f, err)
			}
			depth = d
		}
		out = append(out, domain.Container{ID: id, Depth: depth})
	}
	return out, nil
}

// openCatalog opens and initializes the catalog at cfg's configured path.
// Callers must Close it.
func openCatalog(ctx context.Context, cfg engine.Config) (*catalog.SQLite, error) {
	cat := catalog.Open(cfg.CatalogPath)
	if err := cat.Init(ctx); err != nil {
		return nil, fmt.Errorf("open catalog %s: %w", cfg.CatalogPath, err)
	}
	return cat, nil
}

func statsCmd(loadConfig func() (engine.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print cache size, count, and offline status",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := openCatalog(ctx, cfg)
			if err != nil {
				return err
			}
			defer cat.Close()

			ce := cache.New(cat, nil, func() bool { return false }, cache.Config{
				MaxCacheBytes:           cfg.MaxCacheBytes(),
				OfflineFailureThreshold: 3,
			})
			s, err := ce.Stats(ctx)
			if err != nil {
				return err
			}

			fmt.Printf("cached photos:   %d / %d (%.1f%%)\n", s.CachedCount, s.TotalCount, s.CachePercent)
			fmt.Printf("cache size:      %.1f MB / %.1f MB (%.1f%%)\n", s.TotalSizeMB, s.MaxSizeMB, s.UsagePercent)
			fmt.Printf("consec failures: %d\n", s.ConsecutiveFailures)
			fmt.Printf("offline:         %v\n", s.IsOffline)
			return nil
		},
	}
}

func previewCmd(loadConfig func() (engine.Config, error), nonInteractive *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "preview",
		Short: "Step through the display rotation, marking each photo viewed to advance",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cat, err := openCatalog(ctx, cfg)
			if err != nil {
				return err
			}
			defer cat.Close()

			ui := cliui.New(*nonInteractive)
			mode := cfg.SortModeValue()
			if !*nonInteractive {
				mode, err = ui.SelectSortMode()
				if err != nil {
					return err
				}
			}

			for {
				photo, err := cat.NextDisplayCandidate(ctx, mode)
				if err != nil {
					return err
				}
				if photo == nil {
					fmt.Println("no cached photo available")
					return nil
				}
				fmt.Printf("%-24s viewed=%-5v created=%s cache=%s size=%dB\n",
					photo.ID, photo.Viewed(), time.UnixMilli(photo.CreationTime).Format(time.RFC3339), photo.Cache.Form, photo.Cache.SizeBytes)

				if *nonInteractive {
					return nil
				}
				choice, err := ui.SelectAction("Next", []string{"mark viewed and show next", "quit"})
				if err != nil {
					return err
				}
				if choice != 0 {
					return nil
				}
				cat.MarkViewed(ctx, photo.ID, time.Now().UnixMilli())
			}
		},
	}
}

func resyncCmd(loadConfig func() (engine.Config, error), nonInteractive *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "resync",
		Short: "Force one synchronization pass against the configured provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ui := cliui.New(*nonInteractive)
			if !ui.Confirm(fmt.Sprintf("Force a resync against provider %q now?", cfg.ProviderKey)) {
				fmt.Println("aborted")
				return nil
			}

			engine.RegisterProviders(cfg)
			prov, err := provider.Build(cfg.ProviderKey)
			if err != nil {
				return err
			}

			cat, err := openCatalog(ctx, cfg)
			if err != nil {
				return err
			}
			defer cat.Close()

			spin := ui.Spinner("initializing provider")
			if err := prov.Init(ctx); err != nil {
				spin.Done("provider init failed")
				return err
			}
			spin.Done("provider ready")

			controller := sync.New(prov, cat, sync.Config{
				InitialBackoff: 5 * time.Second,
				MaxBackoff:     cfg.MaxAuthBackoff(),
				MaxRetries:     cfg.MaxAuthRetries,
				ScanInterval:   cfg.ScanInterval(),
				ContainerList:  cfg.Containers,
				ProviderKey:    cfg.ProviderKey,
			}, consoleNotifier{})

			spin = ui.Spinner("syncing")
			err = controller.Sync(ctx)
			if err != nil {
				spin.Done("sync failed: " + err.Error())
				return err
			}
			spin.Done("sync complete")

			count, _ := cat.TotalCount(ctx)
			fmt.Printf("catalog now holds %d photos\n", count)
			return nil
		},
	}
}

func evictCmd(loadConfig func() (engine.Config, error), nonInteractive *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "evict",
		Short: "Force one cache eviction+fetch tick immediately",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ui := cliui.New(*nonInteractive)
			if !ui.Confirm("Force a cache tick now?") {
				fmt.Println("aborted")
				return nil
			}

			cat, err := openCatalog(ctx, cfg)
			if err != nil {
				return err
			}
			defer cat.Close()

			engine.RegisterProviders(cfg)
			prov, _ := provider.Build(cfg.ProviderKey) // nil is fine: Tick skips fetch if unready

			before, _ := cat.CacheBytesTotal(ctx)

			ce := cache.New(cat, prov, func() bool { return prov != nil }, cache.Config{
				TickInterval:            30 * time.Second,
				MaxCacheBytes:           cfg.MaxCacheBytes(),
				BatchSize:               5,
				EvictBatchSize:          10,
				OfflineFailureThreshold: 3,
				OfflineCooldown:         60 * time.Second,
				CacheDir:                cfg.CacheDir,
				BlobStorage:             cfg.UseBlobStorage,
				Transform: cache.TransformOptions{
					DisplayWidth:  cfg.DisplayWidth,
					DisplayHeight: cfg.DisplayHeight,
					Quality:       cfg.JPEGQuality,
				},
				DownloadRetryAttempts: 3,
				DownloadRetryStep:     time.Second,
			})

			spin := ui.Spinner("running cache tick")
			ce.Tick(ctx)
			spin.Done("tick complete")

			after, _ := cat.CacheBytesTotal(ctx)
			fmt.Printf("cache bytes: %d -> %d\n", before, after)
			return nil
		},
	}
}

// consoleNotifier prints sync.Controller notifications to stdout for a
// one-shot CLI invocation rather than routing them through the host
// protocol (which has no listener here).
type consoleNotifier struct{}

func (consoleNotifier) ConnectionStatus(offline bool, detail string) {
	fmt.Printf("connection status: offline=%v %s\n", offline, detail)
}

func (consoleNotifier) Error(terminal bool, message string) {
	fmt.Printf("error (terminal=%v): %s\n", terminal, message)
}
