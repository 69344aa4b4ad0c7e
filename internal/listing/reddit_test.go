package listing

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
)

func makeListing(posts ...redditPost) redditListing {
	var children []redditChild
	for _, p := range posts {
		children = append(children, redditChild{Data: p})
	}
	return redditListing{Data: struct {
		Children []redditChild `json:"children"`
	}{Children: children}}
}

func imagePost(id string, score, width, height int) redditPost {
	return redditPost{
		ID:    id,
		Title: "post " + id,
		Score: score,
		URL:   "https://i.redd.it/" + id + ".jpg",
		Preview: redditPreview{Images: []struct {
			Source redditImageSource `json:"source"`
		}{{Source: redditImageSource{Width: width, Height: height}}}},
	}
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func redditWithTransport(subreddit, sort string, rt roundTripFunc) *RedditSource {
	rs, _ := NewReddit(subreddit, sort, "test-agent/1.0")
	rs.baseURL = "https://reddit.test"
	rs.client = &http.Client{
		Timeout:   redditTimeout,
		Transport: rt,
	}
	return rs
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal json: %v", err)
	}
	return string(b)
}

func response(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestNewReddit_Invalid(t *testing.T) {
	if _, err := NewReddit("", "top", "agent"); err == nil {
		t.Fatal("expected error for empty subreddit")
	}
	if _, err := NewReddit("wallpapers", "rising", "agent"); err == nil {
		t.Fatal("expected error for unknown sort")
	}
	if _, err := NewReddit("wallpapers", "top", ""); err == nil {
		t.Fatal("expected error for empty user agent")
	}
}

func TestRedditSource_Name(t *testing.T) {
	rs, _ := NewReddit("wallpapers", "top", "agent")
	if rs.Name() != "reddit" {
		t.Errorf("name = %q, want reddit", rs.Name())
	}
}

func TestReddit_SuccessfulFetch(t *testing.T) {
	rs := redditWithTransport("wallpapers", "top", func(r *http.Request) (*http.Response, error) {
		if r.Header.Get("User-Agent") != "test-agent/1.0" {
			t.Errorf("user-agent = %q, want test-agent/1.0", r.Header.Get("User-Agent"))
		}
		if r.URL.Path != "/r/wallpapers/top.json" {
			t.Errorf("path = %q, want /r/wallpapers/top.json", r.URL.Path)
		}
		if got := r.URL.Query().Get("limit"); got != "25" {
			t.Errorf("limit query = %q, want 25", got)
		}
		if got := r.URL.Query().Get("t"); got != "all" {
			t.Errorf("t query = %q, want all (top sort)", got)
		}

		first := imagePost("abc123", 420, 1920, 1080)
		first.Over18 = true
		listing := makeListing(
			first,
			redditPost{
				ID:    "def456",
				Title: "Discussion",
				Score: 99,
				URL:   "https://www.reddit.com/r/wallpapers/comments/def456/",
			},
		)
		return response(http.StatusOK, mustJSON(t, listing)), nil
	})

	posts, err := rs.Fetch(context.Background(), 25)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2", len(posts))
	}

	p := posts[0]
	if p.Identifier != "abc123" {
		t.Errorf("identifier = %q", p.Identifier)
	}
	if p.URL != "https://i.redd.it/abc123.jpg" {
		t.Errorf("url = %q", p.URL)
	}
	if p.Width != 1920 || p.Height != 1080 {
		t.Errorf("dimensions = %dx%d, want 1920x1080", p.Width, p.Height)
	}
	if p.Score != 420 {
		t.Errorf("score = %d, want 420", p.Score)
	}
	if !p.Unsafe {
		t.Error("unsafe = false, want true")
	}
	if p.Order != 0 || posts[1].Order != 1 {
		t.Errorf("orders = %d, %d, want 0, 1", p.Order, posts[1].Order)
	}

	// Comment link resolves to no image URL
	if posts[1].URL != "" {
		t.Errorf("non-image url = %q, want empty", posts[1].URL)
	}
}

func TestReddit_HotSortOmitsTimeWindow(t *testing.T) {
	rs := redditWithTransport("wallpapers", "hot", func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/r/wallpapers/hot.json" {
			t.Errorf("path = %q, want /r/wallpapers/hot.json", r.URL.Path)
		}
		if r.URL.Query().Has("t") {
			t.Errorf("t query present for hot sort: %q", r.URL.Query().Get("t"))
		}
		return response(http.StatusOK, mustJSON(t, makeListing())), nil
	})

	if _, err := rs.Fetch(context.Background(), 10); err != nil {
		t.Fatalf("fetch: %v", err)
	}
}

func TestReddit_TruncatesToLimit(t *testing.T) {
	rs := redditWithTransport("wallpapers", "new", func(_ *http.Request) (*http.Response, error) {
		listing := makeListing(
			imagePost("a", 1, 100, 100),
			imagePost("b", 2, 100, 100),
			imagePost("c", 3, 100, 100),
		)
		return response(http.StatusOK, mustJSON(t, listing)), nil
	})

	posts, err := rs.Fetch(context.Background(), 2)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if len(posts) != 2 {
		t.Fatalf("got %d posts, want 2 (truncated)", len(posts))
	}
}

func TestReddit_EmptyListing(t *testing.T) {
	rs := redditWithTransport("empty", "top", func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusOK, mustJSON(t, makeListing())), nil
	})

	posts, err := rs.Fetch(context.Background(), 50)
	if err != nil {
		t.Fatalf("empty listing is not an error: %v", err)
	}
	if len(posts) != 0 {
		t.Errorf("got %d posts, want 0", len(posts))
	}
}

func TestReddit_RateLimited(t *testing.T) {
	rs := redditWithTransport("busy", "top", func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusTooManyRequests, ""), nil
	})

	_, err := rs.Fetch(context.Background(), 50)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
}

func TestReddit_ServerError(t *testing.T) {
	rs := redditWithTransport("down", "top", func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusInternalServerError, ""), nil
	})

	_, err := rs.Fetch(context.Background(), 50)
	if err == nil {
		t.Fatal("expected error for status 500")
	}
	if errors.Is(err, ErrRateLimited) {
		t.Error("a 500 must not read as rate limiting")
	}
}

func TestReddit_MalformedJSON(t *testing.T) {
	rs := redditWithTransport("broken", "top", func(_ *http.Request) (*http.Response, error) {
		return response(http.StatusOK, "{{{not json"), nil
	})

	if _, err := rs.Fetch(context.Background(), 50); err == nil {
		t.Fatal("expected error for malformed json")
	}
}

func TestResolveImageURL(t *testing.T) {
	tests := []struct {
		name string
		post redditPost
		want string
	}{
		{
			"direct jpg",
			redditPost{URL: "https://example.com/wall.jpg"},
			"https://example.com/wall.jpg",
		},
		{
			"override preferred",
			redditPost{URL: "https://example.com/page", URLOverriddenByDest: "https://example.com/wall.png"},
			"https://example.com/wall.png",
		},
		{
			"i.redd.it without extension",
			redditPost{URL: "https://i.redd.it/xyz789"},
			"https://i.redd.it/xyz789",
		},
		{
			"imgur subdomain",
			redditPost{URL: "https://i.imgur.com/abc"},
			"https://i.imgur.com/abc",
		},
		{
			"gallery page", redditPost{URL: "https://www.reddit.com/gallery/abc"},
			"",
		},
		{"no url", redditPost{}, ""},
		{
			"query string after extension",
			redditPost{URL: "https://example.com/wall.jpeg?width=1080"},
			"https://example.com/wall.jpeg?width=1080",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := resolveImageURL(tt.post); got != tt.want {
				t.Errorf("resolveImageURL = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestPreviewDimensions(t *testing.T) {
	p := imagePost("a", 1, 2560, 1440)
	w, h := previewDimensions(p)
	if w != 2560 || h != 1440 {
		t.Errorf("dimensions = %dx%d, want 2560x1440", w, h)
	}

	w, h = previewDimensions(redditPost{})
	if w != 0 || h != 0 {
		t.Errorf("dimensions without preview = %dx%d, want 0x0", w, h)
	}
}
