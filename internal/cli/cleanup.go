package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wallshift/internal/history"
	"github.com/ppiankov/wallshift/internal/retention"
)

var (
	cleanupKeep   int
	cleanupDryRun bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Trim downloads and history to the retention limit",
	RunE:  cleanupAction,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupKeep, "keep", 0, "override limits.retention for this run")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "print what would be removed without removing it")
	rootCmd.AddCommand(cleanupCmd)
}

func cleanupAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	keep := cfg.Limits.Retention
	if cleanupKeep > 0 {
		keep = cleanupKeep
	}

	ctx := cmd.Context()

	hist, err := history.Open(cfg.Paths.History)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = hist.Close() }()

	if cleanupDryRun {
		stale, err := retention.Stale(cfg.Paths.DownloadDir, keep)
		if err != nil {
			return err
		}
		entries, err := hist.Entries(ctx)
		if err != nil {
			return fmt.Errorf("read history: %w", err)
		}

		if len(stale) == 0 && len(entries) <= keep {
			fmt.Println("Nothing to clean up.")
			return nil
		}
		for _, p := range stale {
			fmt.Printf("would remove %s\n", p)
		}
		if len(entries) > keep {
			for _, e := range entries[keep:] {
				fmt.Printf("would evict %s (%s)\n", e.Identifier, e.FilePath)
			}
		}
		return nil
	}

	// History eviction first so its files are gone before the directory
	// sweep counts survivors, mirroring the rotation cycle's order.
	evicted, err := retention.EnforceHistory(ctx, hist, keep)
	if err != nil {
		return err
	}
	removed, err := retention.Enforce(cfg.Paths.DownloadDir, keep)
	if err != nil {
		return err
	}

	fmt.Printf("Removed %d files (%d via history eviction).\n", removed+evicted, evicted)
	return nil
}
