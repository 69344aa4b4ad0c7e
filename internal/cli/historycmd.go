package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wallshift/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently applied wallpapers",
	RunE:  historyAction,
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 0, "show at most this many entries (0 = all)")
	rootCmd.AddCommand(historyCmd)
}

func historyAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	hist, err := history.Open(cfg.Paths.History)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = hist.Close() }()

	entries, err := hist.Entries(cmd.Context())
	if err != nil {
		return fmt.Errorf("read history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("No wallpapers applied yet.")
		return nil
	}
	if historyLimit > 0 && len(entries) > historyLimit {
		entries = entries[:historyLimit]
	}

	for _, e := range entries {
		fmt.Printf("%s  %-12s %s\n", e.AppliedAt.Local().Format("2006-01-02 15:04"), e.Identifier, e.FilePath)
	}
	return nil
}
