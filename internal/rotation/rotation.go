// Package rotation composes listing, ranking, history, download,
// retention and apply into one wallpaper rotation cycle.
package rotation

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/wallshift/internal/config"
	"github.com/ppiankov/wallshift/internal/download"
	"github.com/ppiankov/wallshift/internal/history"
	"github.com/ppiankov/wallshift/internal/listing"
	"github.com/ppiankov/wallshift/internal/rank"
	"github.com/ppiankov/wallshift/internal/retention"
)

// Outcome is the terminal state of a cycle.
type Outcome string

const (
	// OutcomeApplied means a wallpaper was chosen, applied and recorded.
	OutcomeApplied Outcome = "applied"
	// OutcomeNoCandidate means the cycle ended with nothing to apply.
	// System state is unchanged.
	OutcomeNoCandidate Outcome = "no-candidate"
	// OutcomeFailed means the apply step failed. Nothing was recorded
	// and the cycle's downloads were removed.
	OutcomeFailed Outcome = "failed"
)

// Result reports how a cycle ended.
type Result struct {
	Outcome    Outcome
	Identifier string
	Title      string
	Path       string
	Downloaded int
	Err        error
}

// Setter applies a wallpaper file. Implementations are platform
// collaborators outside the pipeline.
type Setter interface {
	Apply(ctx context.Context, path string, style config.Style) error
}

// Downloader materializes ranked candidates as local files.
type Downloader interface {
	Download(ctx context.Context, candidates []rank.Candidate, quota int, recent []string) ([]download.Item, error)
}

// Orchestrator runs rotation cycles. One cycle runs to completion
// before the next starts; there is no in-process overlap.
type Orchestrator struct {
	cfg       *config.Config
	source    listing.Source
	downloads Downloader
	history   *history.Store
	setter    Setter

	now func() time.Time
}

func New(cfg *config.Config, source listing.Source, downloads Downloader, hist *history.Store, setter Setter) (*Orchestrator, error) {
	if cfg == nil {
		return nil, errors.New("rotation: config is required")
	}
	if source == nil {
		return nil, errors.New("rotation: source is required")
	}
	if downloads == nil {
		return nil, errors.New("rotation: downloader is required")
	}
	if hist == nil {
		return nil, errors.New("rotation: history store is required")
	}
	if setter == nil {
		return nil, errors.New("rotation: setter is required")
	}
	return &Orchestrator{
		cfg:       cfg,
		source:    source,
		downloads: downloads,
		history:   hist,
		setter:    setter,
		now:       time.Now,
	}, nil
}

// Run executes one cycle: fetch, filter, download, select, apply,
// record, retain. A cycle that ends in no-candidate or failed leaves
// history and the download directory as they were.
func (o *Orchestrator) Run(ctx context.Context) Result {
	if ctx == nil {
		ctx = context.Background()
	}
	logger := slog.With(slog.String("cycle", uuid.NewString()[:8]))

	logger.Info("fetching listing",
		slog.String("source", o.source.Name()),
		slog.Int("limit", o.cfg.Limits.Fetch),
	)
	posts, err := o.source.Fetch(ctx, o.cfg.Limits.Fetch)
	if err != nil {
		logger.Warn("fetch failed", slog.String("error", err.Error()))
		return Result{Outcome: OutcomeNoCandidate, Err: err}
	}

	candidates := rank.Rank(posts, o.cfg.Target, o.cfg.Filters)
	logger.Info("ranked candidates",
		slog.Int("fetched", len(posts)),
		slog.Int("eligible", len(candidates)),
	)
	if len(candidates) == 0 {
		return Result{Outcome: OutcomeNoCandidate}
	}

	recent, err := o.history.Recent(ctx, o.cfg.Limits.Download)
	if err != nil {
		logger.Warn("recent history unavailable", slog.String("error", err.Error()))
		recent = nil
	}

	items, err := o.downloads.Download(ctx, candidates, o.cfg.Limits.Download, recent)
	if err != nil {
		if errors.Is(err, download.ErrNoCandidates) {
			logger.Info("nothing downloadable this cycle")
		} else {
			logger.Warn("download aborted", slog.String("error", err.Error()))
		}
		return Result{Outcome: OutcomeNoCandidate, Err: err}
	}

	chosen := o.selectItem(ctx, logger, items)

	logger.Info("applying wallpaper",
		slog.String("identifier", chosen.Candidate.Identifier),
		slog.String("path", chosen.Path),
		slog.String("style", string(o.cfg.Apply.Style)),
	)
	if err := o.setter.Apply(ctx, chosen.Path, o.cfg.Apply.Style); err != nil {
		logger.Error("apply failed", slog.String("error", err.Error()))
		o.rollback(logger, items)
		return Result{
			Outcome:    OutcomeFailed,
			Identifier: chosen.Candidate.Identifier,
			Title:      chosen.Candidate.Title,
			Path:       chosen.Path,
			Downloaded: len(items),
			Err:        err,
		}
	}

	if err := o.history.Record(ctx, chosen.Candidate.Identifier, o.now(), chosen.Path); err != nil {
		logger.Warn("could not record history", slog.String("error", err.Error()))
	}

	if _, err := retention.EnforceHistory(ctx, o.history, o.cfg.Limits.Retention); err != nil {
		logger.Warn("history retention failed", slog.String("error", err.Error()))
	}
	if removed, err := retention.Enforce(o.cfg.Paths.DownloadDir, o.cfg.Limits.Retention); err != nil {
		logger.Warn("retention sweep failed", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("retention sweep", slog.Int("removed", removed))
	}

	logger.Info("cycle complete",
		slog.String("identifier", chosen.Candidate.Identifier),
		slog.String("path", chosen.Path),
	)
	return Result{
		Outcome:    OutcomeApplied,
		Identifier: chosen.Candidate.Identifier,
		Title:      chosen.Candidate.Title,
		Path:       chosen.Path,
		Downloaded: len(items),
	}
}

// selectItem picks the best-ranked download never applied before. When
// every download has been seen, the best-ranked one is chosen anyway:
// a repeated wallpaper beats none on small source pools.
func (o *Orchestrator) selectItem(ctx context.Context, logger *slog.Logger, items []download.Item) download.Item {
	for _, it := range items {
		seen, err := o.history.Contains(ctx, it.Candidate.Identifier)
		if err != nil {
			logger.Warn("history lookup failed",
				slog.String("identifier", it.Candidate.Identifier),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !seen {
			return it
		}
	}

	logger.Info("all downloads seen before, selecting best-ranked",
		slog.String("identifier", items[0].Candidate.Identifier),
	)
	return items[0]
}

// rollback removes the cycle's downloads after a failed apply so the
// directory looks as it did before the cycle.
func (o *Orchestrator) rollback(logger *slog.Logger, items []download.Item) {
	for _, it := range items {
		if err := os.Remove(it.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logger.Warn("rollback: could not remove download",
				slog.String("path", it.Path),
				slog.String("error", err.Error()),
			)
		}
	}
}
