// Package setter applies a chosen wallpaper by running a user-configured
// external command.
package setter

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/ppiankov/wallshift/internal/config"
)

const applyTimeout = 30 * time.Second

// Script invokes an argv-style command, appending the wallpaper path
// and the placement style as the final two arguments. Desktops that
// take the style as a flag instead wrap the call in a small script.
type Script struct {
	argv []string
}

// NewScript validates that the command names a resolvable executable.
func NewScript(argv []string) (*Script, error) {
	if len(argv) == 0 || strings.TrimSpace(argv[0]) == "" {
		return nil, errors.New("setter: command is required")
	}
	if _, err := exec.LookPath(argv[0]); err != nil {
		return nil, fmt.Errorf("setter: %w", err)
	}
	return &Script{argv: argv}, nil
}

// Apply runs the command once for the chosen file. Stderr is included
// in the returned error on failure.
func (s *Script) Apply(ctx context.Context, path string, style config.Style) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, applyTimeout)
	defer cancel()

	args := make([]string, 0, len(s.argv)+1)
	args = append(args, s.argv[1:]...)
	args = append(args, path, string(style))

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.argv[0], args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("apply command: %w (stderr: %s)", err, msg)
		}
		return fmt.Errorf("apply command: %w", err)
	}
	return nil
}
