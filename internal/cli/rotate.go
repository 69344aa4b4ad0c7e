package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wallshift/internal/config"
	"github.com/ppiankov/wallshift/internal/download"
	"github.com/ppiankov/wallshift/internal/history"
	"github.com/ppiankov/wallshift/internal/listing"
	"github.com/ppiankov/wallshift/internal/rank"
	"github.com/ppiankov/wallshift/internal/rotation"
	"github.com/ppiankov/wallshift/internal/setter"
)

var rotateDryRun bool

var rotateCmd = &cobra.Command{
	Use:   "rotate",
	Short: "Run one wallpaper rotation cycle",
	RunE:  rotateAction,
}

func init() {
	rotateCmd.Flags().BoolVar(&rotateDryRun, "dry-run", false, "rank candidates and stop before downloading")
	rootCmd.AddCommand(rotateCmd)
}

func rotateAction(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	src, err := buildSource(cfg)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if rotateDryRun {
		return dryRunAction(ctx, cfg, src)
	}

	if len(cfg.Apply.Command) == 0 {
		return errors.New("apply.command is not configured (set it in config.yaml, or use --dry-run)")
	}
	apply, err := setter.NewScript(cfg.Apply.Command)
	if err != nil {
		return err
	}

	hist, err := history.Open(cfg.Paths.History)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = hist.Close() }()

	downloads, err := download.New(cfg.Paths.DownloadDir, cfg.Source.UserAgent)
	if err != nil {
		return err
	}

	orch, err := rotation.New(cfg, src, downloads, hist, apply)
	if err != nil {
		return err
	}

	res := orch.Run(ctx)
	switch res.Outcome {
	case rotation.OutcomeApplied:
		fmt.Printf("Applied %s (%s)\n", res.Path, res.Identifier)
		return nil
	case rotation.OutcomeNoCandidate:
		switch {
		case errors.Is(res.Err, listing.ErrRateLimited):
			fmt.Println("No change: the source is rate limiting. Consider a longer schedule interval.")
		case res.Err != nil:
			fmt.Printf("No change this cycle: %v\n", res.Err)
		default:
			fmt.Println("No change this cycle: no eligible candidates.")
		}
		return nil
	default:
		return fmt.Errorf("apply failed: %w", res.Err)
	}
}

// buildSource creates the listing source the config names.
func buildSource(cfg *config.Config) (listing.Source, error) {
	if cfg.Source.Provider == config.ProviderRSS {
		return listing.NewRSS(cfg.Source.FeedURL, cfg.Source.UserAgent)
	}
	return listing.NewReddit(cfg.Source.Subreddit, cfg.Source.Sort, cfg.Source.UserAgent)
}

// dryRunAction fetches and ranks, then prints the candidates instead of
// downloading. Nothing on disk changes.
func dryRunAction(ctx context.Context, cfg *config.Config, src listing.Source) error {
	posts, err := src.Fetch(ctx, cfg.Limits.Fetch)
	if err != nil {
		return fmt.Errorf("fetch listing: %w", err)
	}

	candidates := rank.Rank(posts, cfg.Target, cfg.Filters)
	if len(candidates) == 0 {
		fmt.Printf("No eligible candidates (fetched %d posts from %s).\n", len(posts), src.Name())
		return nil
	}

	fmt.Printf("%d of %d posts eligible for %s:\n\n", len(candidates), len(posts), cfg.Target.Resolution)
	for i, c := range candidates {
		fmt.Printf("%3d. [%-16s] %5dx%-5d score %-6d %s\n",
			i+1, c.Fitness, c.Width, c.Height, c.Score, c.Title)
	}
	return nil
}
