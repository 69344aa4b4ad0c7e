package download

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/ppiankov/wallshift/internal/listing"
	"github.com/ppiankov/wallshift/internal/rank"
)

func testManager(t *testing.T, dir string) *Manager {
	t.Helper()
	return &Manager{
		dir:       dir,
		userAgent: "test-agent/1.0",
		client:    &http.Client{Timeout: 5 * time.Second},
		limiter:   rate.NewLimiter(rate.Inf, 1),
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 4, 4))); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func candidate(id, rawURL string, order int) rank.Candidate {
	return rank.Candidate{
		Post: listing.Post{
			Identifier: id,
			Title:      id,
			URL:        rawURL,
			Width:      1920,
			Height:     1080,
			Score:      100,
			Order:      order,
		},
		Fitness: rank.FitnessExact,
	}
}

func itemIDs(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Candidate.Identifier
	}
	return out
}

func pngServer(t *testing.T) *httptest.Server {
	t.Helper()
	img := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(img)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload_Success(t *testing.T) {
	srv := pngServer(t)
	dir := t.TempDir()
	m := testManager(t, dir)

	cands := []rank.Candidate{
		candidate("aaa", srv.URL+"/aaa.png", 0),
		candidate("bbb", srv.URL+"/bbb.png", 1),
		candidate("ccc", srv.URL+"/ccc.png", 2),
	}

	items, err := m.Download(context.Background(), cands, 2, nil)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if got, want := itemIDs(items), []string{"aaa", "bbb"}; strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("items = %v, want %v", got, want)
	}

	for _, it := range items {
		if filepath.Base(it.Path) != it.Candidate.Identifier+".png" {
			t.Errorf("path = %s, want identifier-derived name", it.Path)
		}
		info, err := os.Stat(it.Path)
		if err != nil {
			t.Fatalf("stat %s: %v", it.Path, err)
		}
		if info.Size() == 0 || info.Size() != it.Size {
			t.Errorf("size = %d, stat = %d", it.Size, info.Size())
		}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), PartSuffix) {
			t.Errorf("leftover partial file %s", e.Name())
		}
	}
	if len(entries) != 2 {
		t.Errorf("dir holds %d files, want 2", len(entries))
	}
}

func TestDownload_SkipsRecent(t *testing.T) {
	img := pngBytes(t)
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	m := testManager(t, t.TempDir())
	cands := []rank.Candidate{
		candidate("seen", srv.URL+"/seen.png", 0),
		candidate("fresh", srv.URL+"/fresh.png", 1),
	}

	items, err := m.Download(context.Background(), cands, 1, []string{"seen"})
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if len(items) != 1 || items[0].Candidate.Identifier != "fresh" {
		t.Fatalf("items = %v, want [fresh]", itemIDs(items))
	}
	if n := requests.Load(); n != 1 {
		t.Errorf("server saw %d requests, want 1 (skip must not hit the network)", n)
	}
}

func TestDownload_FailureFallsThrough(t *testing.T) {
	img := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/bad") {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(img)
	}))
	defer srv.Close()

	m := testManager(t, t.TempDir())
	cands := []rank.Candidate{
		candidate("bad", srv.URL+"/bad.png", 0),
		candidate("good", srv.URL+"/good.png", 1),
	}

	items, err := m.Download(context.Background(), cands, 1, nil)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if len(items) != 1 || items[0].Candidate.Identifier != "good" {
		t.Fatalf("items = %v, want [good]", itemIDs(items))
	}
}

func TestDownload_RejectsNonImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("<html>not an image</html>"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	m := testManager(t, dir)
	cands := []rank.Candidate{candidate("fake", srv.URL+"/fake.png", 0)}

	_, err := m.Download(context.Background(), cands, 1, nil)
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("rejected download left %d files behind", len(entries))
	}
}

func TestDownload_RejectsEmptyBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := testManager(t, t.TempDir())
	cands := []rank.Candidate{candidate("empty", srv.URL+"/empty.png", 0)}

	if _, err := m.Download(context.Background(), cands, 1, nil); !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}
}

func TestDownload_AllRecent(t *testing.T) {
	srv := pngServer(t)
	m := testManager(t, t.TempDir())
	cands := []rank.Candidate{
		candidate("a", srv.URL+"/a.png", 0),
		candidate("b", srv.URL+"/b.png", 1),
	}

	_, err := m.Download(context.Background(), cands, 2, []string{"a", "b"})
	if !errors.Is(err, ErrNoCandidates) {
		t.Fatalf("err = %v, want ErrNoCandidates", err)
	}
}

func TestDownload_QuotaBounds(t *testing.T) {
	srv := pngServer(t)
	dir := t.TempDir()
	m := testManager(t, dir)

	var cands []rank.Candidate
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		cands = append(cands, candidate(id, srv.URL+"/"+id+".png", len(cands)))
	}

	items, err := m.Download(context.Background(), cands, 3, nil)
	if err != nil {
		t.Fatalf("download: %v", err)
	}
	if got, want := itemIDs(items), []string{"a", "b", "c"}; strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("items = %v, want %v", got, want)
	}
}

func TestFilename(t *testing.T) {
	tests := []struct {
		name string
		id   string
		url  string
		want string
	}{
		{"keeps png extension", "abc123", "https://i.redd.it/abc123.png", "abc123.png"},
		{"lowercases extension", "abc123", "https://i.redd.it/ABC123.JPEG", "abc123.jpeg"},
		{"defaults to jpg", "abc123", "https://i.redd.it/abc123", "abc123.jpg"},
		{"ignores query string", "abc123", "https://imgur.com/abc123.gif?dl=1", "abc123.gif"},
		{"escapes unsafe identifier", "a/b", "https://i.redd.it/x.png", "a%2Fb.png"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := candidate(tt.id, tt.url, 0)
			if got := filename(c); got != tt.want {
				t.Errorf("filename = %q, want %q", got, tt.want)
			}
		})
	}
}
