package listing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

const (
	rssSourceName = "rss"
	rssTimeout    = 30 * time.Second
)

// RSSSource fetches image entries from a media RSS feed. Dimensions come
// from media:content width/height attributes; entries without them are
// reported with zero dimensions and dropped downstream.
type RSSSource struct {
	feedURL   string
	userAgent string
	client    *http.Client
}

// NewRSS creates an RSS source for one feed URL.
func NewRSS(feedURL, userAgent string) (*RSSSource, error) {
	if strings.TrimSpace(feedURL) == "" {
		return nil, errors.New("rss: feed URL is required")
	}
	if strings.TrimSpace(userAgent) == "" {
		return nil, errors.New("rss: user agent is required")
	}
	return &RSSSource{
		feedURL:   feedURL,
		userAgent: userAgent,
		client:    &http.Client{Timeout: rssTimeout},
	}, nil
}

func (rs *RSSSource) Name() string {
	return rssSourceName
}

func (rs *RSSSource) Fetch(ctx context.Context, limit int) ([]Post, error) {
	fp := gofeed.NewParser()
	fp.UserAgent = rs.userAgent
	fp.Client = rs.client

	feed, err := fp.ParseURLWithContext(rs.feedURL, ctx)
	if err != nil {
		var httpErr gofeed.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
			return nil, fmt.Errorf("%s: %w", rs.feedURL, ErrRateLimited)
		}
		return nil, fmt.Errorf("fetch %s: %w", rs.feedURL, err)
	}

	return postsFromFeed(feed, limit), nil
}

func postsFromFeed(feed *gofeed.Feed, limit int) []Post {
	var posts []Post
	for i, item := range feed.Items {
		if limit > 0 && len(posts) == limit {
			break
		}
		imageURL, width, height := itemImage(item)
		posts = append(posts, Post{
			Identifier: rssIdentifier(item, imageURL),
			Title:      item.Title,
			URL:        imageURL,
			Width:      width,
			Height:     height,
			Order:      i,
		})
	}
	return posts
}

// itemImage extracts the image URL and dimensions from a feed item.
// media:content is preferred because it can carry dimensions; enclosures
// are a dimensionless fallback.
func itemImage(item *gofeed.Item) (string, int, int) {
	if media, ok := item.Extensions["media"]; ok {
		for _, content := range media["content"] {
			u := content.Attrs["url"]
			if u == "" || !looksLikeImage(u, content.Attrs["type"]) {
				continue
			}
			width, _ := strconv.Atoi(content.Attrs["width"])
			height, _ := strconv.Atoi(content.Attrs["height"])
			return u, width, height
		}
	}

	for _, enc := range item.Enclosures {
		if enc == nil || enc.URL == "" {
			continue
		}
		if looksLikeImage(enc.URL, enc.Type) {
			return enc.URL, 0, 0
		}
	}

	return "", 0, 0
}

func looksLikeImage(rawURL, mimeType string) bool {
	if strings.HasPrefix(mimeType, "image/") {
		return true
	}
	trimmed := rawURL
	if i := strings.IndexAny(trimmed, "?#"); i >= 0 {
		trimmed = trimmed[:i]
	}
	return hasImageExtension(trimmed)
}

// rssIdentifier derives a stable ID from the image URL, falling back to
// the item GUID or link for entries without one.
func rssIdentifier(item *gofeed.Item, imageURL string) string {
	seed := imageURL
	if seed == "" {
		seed = item.GUID
	}
	if seed == "" {
		seed = item.Link
	}
	sum := sha256.Sum256([]byte(seed))
	return hex.EncodeToString(sum[:8])
}
