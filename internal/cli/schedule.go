package cli

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ppiankov/wallshift/internal/config"
)

var scheduleWrite string

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Generate systemd user units for periodic rotation",
	RunE:  scheduleAction,
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleWrite, "write", "", "write wallshift.service and wallshift.timer into this directory instead of printing")
	rootCmd.AddCommand(scheduleCmd)
}

func scheduleAction(_ *cobra.Command, _ []string) error {
	cfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	exe, err := os.Executable()
	if err != nil {
		exe = "wallshift"
	}
	absConfig, err := filepath.Abs(configDir)
	if err != nil {
		absConfig = configDir
	}

	service := fmt.Sprintf(serviceUnit, exe, absConfig)
	timer := fmt.Sprintf(timerUnit, int(cfg.Schedule.Interval.Seconds()))

	if scheduleWrite == "" {
		fmt.Println("# wallshift.service")
		fmt.Print(service)
		fmt.Println()
		fmt.Println("# wallshift.timer")
		fmt.Print(timer)
		fmt.Println()
		fmt.Println("# Install with: systemctl --user enable --now wallshift.timer")
		return nil
	}

	if err := os.MkdirAll(scheduleWrite, 0o755); err != nil {
		return fmt.Errorf("create %s: %w", scheduleWrite, err)
	}
	for name, content := range map[string]string{
		"wallshift.service": service,
		"wallshift.timer":   timer,
	} {
		path := filepath.Join(scheduleWrite, name)
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Printf("  wrote: %s\n", path)
	}
	fmt.Println("Enable with: systemctl --user enable --now wallshift.timer")
	return nil
}

const serviceUnit = `[Unit]
Description=Rotate desktop wallpaper
After=network-online.target

[Service]
Type=oneshot
ExecStart=%s --config %s rotate
`

const timerUnit = `[Unit]
Description=Periodic wallpaper rotation

[Timer]
OnBootSec=2min
OnUnitActiveSec=%ds
Persistent=true

[Install]
WantedBy=timers.target
`
