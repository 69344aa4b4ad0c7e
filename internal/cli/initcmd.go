package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wallshift/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create config directory with an example config",
	RunE:  initAction,
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func initAction(_ *cobra.Command, _ []string) error {
	if err := os.MkdirAll(configDir, 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(configDir, config.DefaultConfigFile)
	wrote, err := writeIfNotExists(configPath, []byte(exampleConfig))
	if err != nil {
		return err
	}

	if !wrote {
		fmt.Printf("Config directory %s already initialized.\n", configDir)
	} else {
		fmt.Printf("Initialized %s.\n", configDir)
	}
	return nil
}

// writeIfNotExists writes data to path if the file does not exist.
// Returns true if the file was created.
func writeIfNotExists(path string, data []byte) (bool, error) {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("  exists: %s\n", path)
		return false, nil
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return false, fmt.Errorf("write %s: %w", path, err)
	}
	fmt.Printf("  created: %s\n", path)
	return true, nil
}

const exampleConfig = `# wallshift configuration

source:
  provider: reddit            # reddit | rss
  subreddit: wallpapers
  sort: top                   # hot | new | top
  # feed_url: "https://example.com/gallery.xml"   # used by the rss provider
  user_agent: wallshift/1.0

target:
  resolution: 1920x1080
  # strict accepts only images at least as large as the target with a
  # matching aspect ratio. When false, smaller or differently shaped
  # images are ranked lower instead of dropped.
  strict: false

filters:
  allow_unsafe: false
  min_score: 100

limits:
  fetch: 50                   # posts requested per cycle
  download: 5                 # images downloaded per cycle
  retention: 10               # downloaded files and history entries kept

apply:
  style: fill                 # fill | fit | stretch | center | tile
  # The chosen file path and the style are appended as the final two
  # arguments. Point this at your compositor or a small wrapper script.
  command: []
  # command: ["swww", "img"]

paths:
  download_dir: .wallshift/wallpapers
  history: .wallshift/history.db

schedule:
  interval: 24h               # consumed by wallshift schedule

log:
  level: info                 # debug | info | warn | error
  format: text                # text | json
`
