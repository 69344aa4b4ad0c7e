package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DefaultConfigDir      = ".wallshift"
	DefaultConfigFile     = "config.yaml"
	DefaultProvider       = ProviderReddit
	DefaultSubreddit      = "wallpapers"
	DefaultSort           = "top"
	DefaultUserAgent      = "wallshift/1.0"
	DefaultFetchLimit     = 50
	DefaultDownloadLimit  = 5
	DefaultRetentionLimit = 10
	DefaultDownloadDir    = ".wallshift/wallpapers"
	DefaultHistoryPath    = ".wallshift/history.db"
	DefaultInterval       = 24 * time.Hour
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

const (
	ProviderReddit = "reddit"
	ProviderRSS    = "rss"
)

// DefaultResolution is the target used when none is configured.
var DefaultResolution = Resolution{Width: 1920, Height: 1080}

// Duration wraps time.Duration for YAML unmarshaling from strings like "24h".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// Resolution is a WxH pair, unmarshaled from strings like "1920x1080".
type Resolution struct {
	Width  int
	Height int
}

func (r *Resolution) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := ParseResolution(s)
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

// ParseResolution parses a "WxH" string into a Resolution.
func ParseResolution(s string) (Resolution, error) {
	w, h, ok := strings.Cut(strings.TrimSpace(strings.ToLower(s)), "x")
	if !ok {
		return Resolution{}, fmt.Errorf("parse resolution %q: want WxH (e.g. 1920x1080)", s)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil {
		return Resolution{}, fmt.Errorf("parse resolution width %q: %w", w, err)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil {
		return Resolution{}, fmt.Errorf("parse resolution height %q: %w", h, err)
	}
	return Resolution{Width: width, Height: height}, nil
}

func (r Resolution) String() string {
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// Aspect returns width/height, or 0 for a degenerate height.
func (r Resolution) Aspect() float64 {
	if r.Height == 0 {
		return 0
	}
	return float64(r.Width) / float64(r.Height)
}

func (r Resolution) IsZero() bool {
	return r.Width == 0 && r.Height == 0
}

// Style is the wallpaper placement mode handed to the apply command.
type Style string

const (
	StyleFill    Style = "fill"
	StyleFit     Style = "fit"
	StyleStretch Style = "stretch"
	StyleCenter  Style = "center"
	StyleTile    Style = "tile"
)

// ParseStyle validates a style string from config or flags.
func ParseStyle(s string) (Style, error) {
	switch Style(strings.ToLower(strings.TrimSpace(s))) {
	case StyleFill:
		return StyleFill, nil
	case StyleFit:
		return StyleFit, nil
	case StyleStretch:
		return StyleStretch, nil
	case StyleCenter:
		return StyleCenter, nil
	case StyleTile:
		return StyleTile, nil
	default:
		return "", fmt.Errorf("unknown style %q (want fill, fit, stretch, center or tile)", s)
	}
}

type Config struct {
	Source   SourceConfig   `yaml:"source"`
	Target   TargetConfig   `yaml:"target"`
	Filters  FiltersConfig  `yaml:"filters"`
	Limits   LimitsConfig   `yaml:"limits"`
	Apply    ApplyConfig    `yaml:"apply"`
	Paths    PathsConfig    `yaml:"paths"`
	Schedule ScheduleConfig `yaml:"schedule"`
	Log      LogConfig      `yaml:"log"`
}

type SourceConfig struct {
	Provider  string `yaml:"provider"`
	Subreddit string `yaml:"subreddit"`
	Sort      string `yaml:"sort"`
	FeedURL   string `yaml:"feed_url"`
	UserAgent string `yaml:"user_agent"`
}

// Identifier returns the source identifier for the active provider.
func (s SourceConfig) Identifier() string {
	if s.Provider == ProviderRSS {
		return s.FeedURL
	}
	return s.Subreddit
}

type TargetConfig struct {
	Resolution Resolution `yaml:"resolution"`

	// Strict restricts candidates to those at least as large as the
	// target with a matching aspect ratio. When false, resolution
	// fitness only affects ranking.
	Strict bool `yaml:"strict"`
}

type FiltersConfig struct {
	// AllowUnsafe keeps posts flagged unsafe by the source. Off by
	// default so an absent filters block still filters.
	AllowUnsafe bool `yaml:"allow_unsafe"`
	MinScore    int  `yaml:"min_score"`
}

type LimitsConfig struct {
	Fetch     int `yaml:"fetch"`
	Download  int `yaml:"download"`
	Retention int `yaml:"retention"`
}

type ApplyConfig struct {
	Style Style `yaml:"style"`

	// Command is the setter invocation as an argv list. The chosen
	// file path and the style are appended as the final two arguments.
	Command []string `yaml:"command"`
}

type PathsConfig struct {
	DownloadDir string `yaml:"download_dir"`
	History     string `yaml:"history"`
}

type ScheduleConfig struct {
	Interval Duration `yaml:"interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads config.yaml from dir, applies defaults, expands paths, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)
	expandPaths(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Source.Provider == "" {
		cfg.Source.Provider = DefaultProvider
	}
	if cfg.Source.Subreddit == "" {
		cfg.Source.Subreddit = DefaultSubreddit
	}
	if cfg.Source.Sort == "" {
		cfg.Source.Sort = DefaultSort
	}
	if cfg.Source.UserAgent == "" {
		cfg.Source.UserAgent = DefaultUserAgent
	}
	if cfg.Target.Resolution.IsZero() {
		cfg.Target.Resolution = DefaultResolution
	}
	if cfg.Limits.Fetch == 0 {
		cfg.Limits.Fetch = DefaultFetchLimit
	}
	if cfg.Limits.Download == 0 {
		cfg.Limits.Download = DefaultDownloadLimit
	}
	if cfg.Limits.Retention == 0 {
		cfg.Limits.Retention = DefaultRetentionLimit
	}
	if cfg.Apply.Style == "" {
		cfg.Apply.Style = StyleFill
	}
	if cfg.Paths.DownloadDir == "" {
		cfg.Paths.DownloadDir = DefaultDownloadDir
	}
	if cfg.Paths.History == "" {
		cfg.Paths.History = DefaultHistoryPath
	}
	if cfg.Schedule.Interval.Duration == 0 {
		cfg.Schedule.Interval.Duration = DefaultInterval
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// expandPaths resolves a leading ~ in configured paths so config files can
// use home-relative locations.
func expandPaths(cfg *Config) {
	cfg.Paths.DownloadDir = expandHome(cfg.Paths.DownloadDir)
	cfg.Paths.History = expandHome(cfg.Paths.History)
}

func expandHome(path string) string {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	if path == "~" {
		return home
	}
	return filepath.Join(home, path[2:])
}

func validate(cfg *Config) error {
	switch cfg.Source.Provider {
	case ProviderReddit:
		if strings.TrimSpace(cfg.Source.Subreddit) == "" {
			return errors.New("source.subreddit is required for the reddit provider")
		}
	case ProviderRSS:
		if strings.TrimSpace(cfg.Source.FeedURL) == "" {
			return errors.New("source.feed_url is required for the rss provider")
		}
	default:
		return fmt.Errorf("source.provider: unknown provider %q (want reddit or rss)", cfg.Source.Provider)
	}

	switch cfg.Source.Sort {
	case "hot", "new", "top":
		// valid
	default:
		return fmt.Errorf("source.sort: unknown sort %q (want hot, new or top)", cfg.Source.Sort)
	}

	if cfg.Target.Resolution.Width <= 0 || cfg.Target.Resolution.Height <= 0 {
		return fmt.Errorf("target.resolution: dimensions must be positive, got %s", cfg.Target.Resolution)
	}

	if cfg.Filters.MinScore < 0 {
		return fmt.Errorf("filters.min_score: must be >= 0, got %d", cfg.Filters.MinScore)
	}

	if cfg.Limits.Fetch <= 0 {
		return fmt.Errorf("limits.fetch: must be positive, got %d", cfg.Limits.Fetch)
	}
	if cfg.Limits.Download <= 0 {
		return fmt.Errorf("limits.download: must be positive, got %d", cfg.Limits.Download)
	}
	if cfg.Limits.Download > cfg.Limits.Fetch {
		return fmt.Errorf("limits.download (%d) must not exceed limits.fetch (%d)", cfg.Limits.Download, cfg.Limits.Fetch)
	}
	if cfg.Limits.Retention <= 0 {
		return fmt.Errorf("limits.retention: must be positive, got %d", cfg.Limits.Retention)
	}

	if _, err := ParseStyle(string(cfg.Apply.Style)); err != nil {
		return fmt.Errorf("apply.style: %w", err)
	}
	if len(cfg.Apply.Command) > 0 && strings.TrimSpace(cfg.Apply.Command[0]) == "" {
		return errors.New("apply.command: executable must not be empty")
	}

	if cfg.Schedule.Interval.Duration < time.Minute {
		return fmt.Errorf("schedule.interval: must be at least 1m, got %s", cfg.Schedule.Interval.Duration)
	}

	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return fmt.Errorf("log.level: unknown level %q (want debug, info, warn or error)", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
		// valid
	default:
		return fmt.Errorf("log.format: unknown format %q (want text or json)", cfg.Log.Format)
	}

	return nil
}
