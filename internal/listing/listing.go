// Package listing fetches image post metadata from remote listing APIs.
package listing

import (
	"context"
	"errors"
)

// ErrRateLimited signals that the remote is throttling. The cycle ends
// early and the scheduler should lengthen its interval; nothing retries
// within the cycle.
var ErrRateLimited = errors.New("rate limited by source")

// Post is one image post as reported by a listing source. Immutable once
// fetched. URL is the resolved direct image URL; it is empty when the post
// does not point at a downloadable image, which downstream filtering
// treats as structurally invalid.
type Post struct {
	Identifier string // source-unique ID
	Title      string
	URL        string
	Width      int
	Height     int
	Score      int  // upvote-equivalent popularity
	Unsafe     bool // flagged NSFW by the source
	Order      int  // position in the fetched listing
}

// Source fetches one batch of post metadata, at most limit items. A Source
// is a single-attempt operation: retry policy belongs to the caller.
type Source interface {
	Name() string
	Fetch(ctx context.Context, limit int) ([]Post, error)
}
