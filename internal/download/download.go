// Package download materializes ranked candidates as local image files,
// bounded by a per-cycle quota.
package download

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/doyensec/safeurl"
	"golang.org/x/time/rate"

	"github.com/ppiankov/wallshift/internal/rank"
)

const (
	downloadTimeout = 60 * time.Second
	downloadPace    = 500 * time.Millisecond
)

// PartSuffix marks files still being written. A download is renamed to
// its final name only after the content validated, so nothing under the
// final name is ever partial.
const PartSuffix = ".part"

// ErrNoCandidates means not a single candidate could be downloaded.
var ErrNoCandidates = errors.New("no downloadable candidates")

// Item is a successfully downloaded candidate.
type Item struct {
	Candidate    rank.Candidate
	Path         string
	Size         int64
	DownloadedAt time.Time
}

// Manager fetches candidate images into a working directory. Image hosts
// are untrusted input, so the production client refuses private,
// loopback and link-local destinations.
type Manager struct {
	dir       string
	userAgent string
	client    *http.Client
	limiter   *rate.Limiter
}

// New creates a Manager writing into dir, creating it if needed.
func New(dir, userAgent string) (*Manager, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("download: directory is required")
	}
	if strings.TrimSpace(userAgent) == "" {
		return nil, errors.New("download: user agent is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	config := safeurl.GetConfigBuilder().
		SetTimeout(downloadTimeout).
		SetAllowedSchemes("http", "https").
		SetAllowedPorts(80, 443).
		Build()

	return &Manager{
		dir:       dir,
		userAgent: userAgent,
		client:    safeurl.Client(config).Client,
		limiter:   rate.NewLimiter(rate.Every(downloadPace), 1),
	}, nil
}

// Download fetches candidates in ranking order until quota files are on
// disk or the sequence is exhausted. Candidates whose identifier appears
// in recent are skipped without a network call. Failed candidates are
// logged and passed over. The returned items preserve ranking order.
// Returns ErrNoCandidates when nothing could be downloaded.
func (m *Manager) Download(ctx context.Context, candidates []rank.Candidate, quota int, recent []string) ([]Item, error) {
	if quota <= 0 {
		return nil, errors.New("quota must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	seen := make(map[string]bool, len(recent))
	for _, id := range recent {
		seen[id] = true
	}

	eligible := make([]rank.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if seen[c.Identifier] {
			slog.Debug("skipping recently applied candidate", slog.String("identifier", c.Identifier))
			continue
		}
		eligible = append(eligible, c)
	}

	// Fetch in waves sized to the remaining quota so parallelism never
	// exceeds quota and failures are backfilled from lower ranks.
	var items []Item
	for next := 0; len(items) < quota && next < len(eligible); {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		n := quota - len(items)
		if rest := len(eligible) - next; rest < n {
			n = rest
		}
		batch := eligible[next : next+n]
		next += n

		for _, it := range m.fetchBatch(ctx, batch) {
			if it != nil {
				items = append(items, *it)
			}
		}
	}

	if len(items) == 0 {
		return nil, ErrNoCandidates
	}
	return items, nil
}

func (m *Manager) fetchBatch(ctx context.Context, batch []rank.Candidate) []*Item {
	results := make([]*Item, len(batch))
	var wg sync.WaitGroup
	for i, c := range batch {
		wg.Add(1)
		go func(i int, c rank.Candidate) {
			defer wg.Done()
			item, err := m.fetchOne(ctx, c)
			if err != nil {
				slog.Warn("download failed",
					slog.String("identifier", c.Identifier),
					slog.String("error", err.Error()),
				)
				return
			}
			slog.Info("downloaded",
				slog.String("identifier", c.Identifier),
				slog.String("path", item.Path),
				slog.Int64("bytes", item.Size),
			)
			results[i] = item
		}(i, c)
	}
	wg.Wait()
	return results
}

func (m *Manager) fetchOne(ctx context.Context, c rank.Candidate) (*Item, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", m.userAgent)

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", c.URL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: unexpected status %s", c.URL, resp.Status)
	}

	final := filepath.Join(m.dir, filename(c))
	tmp := final + PartSuffix

	size, err := writeFile(tmp, resp.Body)
	if err != nil {
		return nil, err
	}
	if err := validateImage(tmp); err != nil {
		_ = os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, final); err != nil {
		_ = os.Remove(tmp)
		return nil, fmt.Errorf("finalize %s: %w", final, err)
	}

	return &Item{Candidate: c, Path: final, Size: size, DownloadedAt: time.Now()}, nil
}

func writeFile(path string, r io.Reader) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create %s: %w", path, err)
	}
	size, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return 0, fmt.Errorf("write %s: %w", path, err)
	}
	if size == 0 {
		_ = os.Remove(path)
		return 0, errors.New("empty response body")
	}
	return size, nil
}

// validateImage confirms the file parses as a supported image format
// without decoding full pixel data.
func validateImage(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open for validation: %w", err)
	}
	defer func() {
		_ = f.Close()
	}()

	if _, _, err := image.DecodeConfig(f); err != nil {
		return fmt.Errorf("decode image: %w", err)
	}
	return nil
}

// filename derives a collision-free local name from the candidate
// identifier, keeping the URL's image extension when it has one.
func filename(c rank.Candidate) string {
	ext := ".jpg"
	if u, err := url.Parse(c.URL); err == nil {
		if e := strings.ToLower(path.Ext(u.Path)); isImageExt(e) {
			ext = e
		}
	}
	return url.PathEscape(c.Identifier) + ext
}

func isImageExt(ext string) bool {
	switch ext {
	case ".jpg", ".jpeg", ".png", ".gif":
		return true
	}
	return false
}
