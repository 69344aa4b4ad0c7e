// Package rank filters fetched posts against resolution, safety and
// popularity criteria and orders the survivors best-first.
package rank

import (
	"math"
	"sort"

	"github.com/ppiankov/wallshift/internal/config"
	"github.com/ppiankov/wallshift/internal/listing"
)

// aspectTolerance absorbs rounding in w/h ratios of otherwise-matching
// resolutions (2560x1440 vs 1920x1080 both read as 16:9).
const aspectTolerance = 0.02

// Fitness classifies how well a post's resolution matches the target.
// Lower is better.
type Fitness int

const (
	FitnessExact Fitness = iota
	FitnessLargerMatched
	FitnessLargerDivergent
	FitnessSmaller
)

func (f Fitness) String() string {
	switch f {
	case FitnessExact:
		return "exact"
	case FitnessLargerMatched:
		return "larger-matched"
	case FitnessLargerDivergent:
		return "larger-divergent"
	case FitnessSmaller:
		return "smaller"
	default:
		return "unknown"
	}
}

// Candidate is a post that survived filtering, annotated with its
// resolution fitness.
type Candidate struct {
	listing.Post
	Fitness Fitness
}

// Rank drops posts that fail the active filters and orders the rest
// best-first: fitness, then score descending, then original fetch order.
// The result is deterministic for identical input.
func Rank(posts []listing.Post, target config.TargetConfig, filters config.FiltersConfig) []Candidate {
	var out []Candidate
	for _, p := range posts {
		if p.URL == "" || p.Width <= 0 || p.Height <= 0 {
			continue
		}
		if p.Unsafe && !filters.AllowUnsafe {
			continue
		}
		if p.Score < filters.MinScore {
			continue
		}
		fitness := classify(p, target.Resolution)
		if target.Strict && fitness > FitnessLargerMatched {
			continue
		}
		out = append(out, Candidate{Post: p, Fitness: fitness})
	}

	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Fitness != b.Fitness {
			return a.Fitness < b.Fitness
		}
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return a.Order < b.Order
	})
	return out
}

func classify(p listing.Post, target config.Resolution) Fitness {
	if p.Width == target.Width && p.Height == target.Height {
		return FitnessExact
	}
	if p.Width >= target.Width && p.Height >= target.Height {
		if aspectDiff(p, target) <= aspectTolerance {
			return FitnessLargerMatched
		}
		return FitnessLargerDivergent
	}
	return FitnessSmaller
}

func aspectDiff(p listing.Post, target config.Resolution) float64 {
	return math.Abs(float64(p.Width)/float64(p.Height) - target.Aspect())
}
