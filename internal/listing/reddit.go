package listing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const (
	redditSourceName = "reddit"
	redditBaseURL    = "https://www.reddit.com"
	redditTimeout    = 30 * time.Second
)

// RedditSource fetches image posts from a public subreddit listing via
// Reddit's JSON API.
type RedditSource struct {
	subreddit string
	sort      string
	userAgent string
	client    *http.Client
	baseURL   string
}

// NewReddit creates a Reddit source for one subreddit. sort must be one of
// hot, new or top.
func NewReddit(subreddit, sort, userAgent string) (*RedditSource, error) {
	if strings.TrimSpace(subreddit) == "" {
		return nil, errors.New("reddit: subreddit is required")
	}
	switch sort {
	case "hot", "new", "top":
		// valid
	default:
		return nil, fmt.Errorf("reddit: unknown sort %q (want hot, new or top)", sort)
	}
	if strings.TrimSpace(userAgent) == "" {
		return nil, errors.New("reddit: user agent is required")
	}
	return &RedditSource{
		subreddit: subreddit,
		sort:      sort,
		userAgent: userAgent,
		client:    &http.Client{Timeout: redditTimeout},
		baseURL:   redditBaseURL,
	}, nil
}

func (rs *RedditSource) Name() string {
	return redditSourceName
}

// Fetch requests up to limit posts from the subreddit listing. A 429 from
// the API surfaces as ErrRateLimited; any other non-200 status or
// transport failure is a plain fetch error. An empty listing is not an
// error.
func (rs *RedditSource) Fetch(ctx context.Context, limit int) ([]Post, error) {
	endpoint := fmt.Sprintf("%s/r/%s/%s.json?limit=%d", rs.baseURL, rs.subreddit, rs.sort, limit)
	if rs.sort == "top" {
		endpoint += "&t=all"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", rs.userAgent)

	resp, err := rs.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch r/%s: %w", rs.subreddit, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("r/%s: %w", rs.subreddit, ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("r/%s: status %d", rs.subreddit, resp.StatusCode)
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, fmt.Errorf("decode r/%s: %w", rs.subreddit, err)
	}

	return postsFromListing(listing, limit), nil
}

func postsFromListing(listing redditListing, limit int) []Post {
	var posts []Post
	for i, child := range listing.Data.Children {
		if limit > 0 && len(posts) == limit {
			break
		}
		p := child.Data
		width, height := previewDimensions(p)
		posts = append(posts, Post{
			Identifier: p.ID,
			Title:      p.Title,
			URL:        resolveImageURL(p),
			Width:      width,
			Height:     height,
			Score:      p.Score,
			Unsafe:     p.Over18,
			Order:      i,
		})
	}
	return posts
}

// resolveImageURL returns the direct image URL for a post, or "" when the
// post does not point at a downloadable image. Direct links are accepted
// by file extension; i.redd.it and imgur hosts are accepted regardless
// since they serve raw images.
func resolveImageURL(p redditPost) string {
	raw := p.URLOverriddenByDest
	if raw == "" {
		raw = p.URL
	}
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if hasImageExtension(u.Path) {
		return raw
	}
	host := strings.ToLower(u.Hostname())
	if host == "i.redd.it" || host == "imgur.com" || strings.HasSuffix(host, ".imgur.com") {
		return raw
	}
	return ""
}

func hasImageExtension(p string) bool {
	switch strings.ToLower(path.Ext(p)) {
	case ".jpg", ".jpeg", ".png", ".gif":
		return true
	}
	return false
}

func previewDimensions(p redditPost) (int, int) {
	if len(p.Preview.Images) == 0 {
		return 0, 0
	}
	src := p.Preview.Images[0].Source
	return src.Width, src.Height
}

type redditListing struct {
	Data struct {
		Children []redditChild `json:"children"`
	} `json:"data"`
}

type redditChild struct {
	Data redditPost `json:"data"`
}

type redditPost struct {
	ID                  string        `json:"id"`
	Title               string        `json:"title"`
	Score               int           `json:"score"`
	Over18              bool          `json:"over_18"`
	URL                 string        `json:"url"`
	URLOverriddenByDest string        `json:"url_overridden_by_dest"`
	Preview             redditPreview `json:"preview"`
}

type redditPreview struct {
	Images []struct {
		Source redditImageSource `json:"source"`
	} `json:"images"`
}

type redditImageSource struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}
