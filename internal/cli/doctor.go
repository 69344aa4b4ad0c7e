package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wallshift/internal/config"
	"github.com/ppiankov/wallshift/internal/history"
	"github.com/ppiankov/wallshift/internal/listing"
)

const doctorFetchTimeout = 15 * time.Second

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check configuration, storage and source health",
	RunE:  doctorAction,
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func doctorAction(cmd *cobra.Command, _ []string) error {
	ok := true

	// Config dir
	if info, err := os.Stat(configDir); err != nil || !info.IsDir() {
		printCheck(false, "config directory %s", configDir)
		ok = false
	} else {
		printCheck(true, "config directory %s", configDir)
	}

	// Config file
	cfg, err := config.Load(configDir)
	if err != nil {
		printCheck(false, "config.yaml: %v", err)
		ok = false
	} else {
		printCheck(true, "config.yaml (%s %q, target %s)",
			cfg.Source.Provider, cfg.Source.Identifier(), cfg.Target.Resolution)
	}
	if cfg == nil {
		return errors.New("some checks failed")
	}

	// Download directory writable
	if err := checkWritable(cfg.Paths.DownloadDir); err != nil {
		printCheck(false, "download dir %s: %v", cfg.Paths.DownloadDir, err)
		ok = false
	} else {
		printCheck(true, "download dir %s", cfg.Paths.DownloadDir)
	}

	// History store
	hist, err := history.Open(cfg.Paths.History)
	if err != nil {
		printCheck(false, "history: %v", err)
		ok = false
	} else {
		entries, err := hist.Entries(cmd.Context())
		_ = hist.Close()
		if err != nil {
			printCheck(false, "history: %v", err)
			ok = false
		} else {
			printCheck(true, "history %s (%d entries)", cfg.Paths.History, len(entries))
		}
	}

	// Apply command
	switch {
	case len(cfg.Apply.Command) == 0:
		printCheck(false, "apply.command not configured")
		ok = false
	default:
		if _, err := exec.LookPath(cfg.Apply.Command[0]); err != nil {
			printCheck(false, "apply command: %v", err)
			ok = false
		} else {
			printCheck(true, "apply command %s", cfg.Apply.Command[0])
		}
	}

	// Listing endpoint
	if src, err := buildSource(cfg); err != nil {
		printCheck(false, "listing source: %v", err)
		ok = false
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), doctorFetchTimeout)
		_, err := src.Fetch(ctx, 1)
		cancel()
		switch {
		case errors.Is(err, listing.ErrRateLimited):
			printInfo("listing %s reachable but rate limiting", src.Name())
		case err != nil:
			printCheck(false, "listing %s: %v", src.Name(), err)
			ok = false
		default:
			printCheck(true, "listing %s reachable", src.Name())
		}
	}

	if !ok {
		return errors.New("some checks failed")
	}
	fmt.Println("\nAll checks passed.")
	return nil
}

// checkWritable proves the directory accepts writes by creating and
// removing a probe file.
func checkWritable(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".wallshift-doctor")
	if err := os.WriteFile(probe, []byte("probe"), 0o644); err != nil {
		return err
	}
	return os.Remove(probe)
}

func printCheck(pass bool, format string, args ...any) {
	mark := "FAIL"
	if pass {
		mark = " OK "
	}
	fmt.Printf("[%s] %s\n", mark, fmt.Sprintf(format, args...))
}

func printInfo(format string, args ...any) {
	fmt.Printf("[INFO] %s\n", fmt.Sprintf(format, args...))
}
