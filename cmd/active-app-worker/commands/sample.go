package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/zxsharp/active-app-worker/internal/config"
	"github.com/zxsharp/active-app-worker/internal/logger"
	"github.com/zxsharp/active-app-worker/internal/normalize"
	"github.com/zxsharp/active-app-worker/internal/window"
)

var sampleCmd = &cobra.Command{
	Use:   "sample",
	Short: "Take one focused-window sample and exit",
	Long: `Take a single observation of the currently focused window, normalize it
to an application label and print the outcome. Nothing is emitted.`,
	Example: `  # Human-readable sample
  active-app-worker sample

  # JSON output with a specific backend
  active-app-worker sample --backend x11 --format json`,
	RunE: runSample,
}

var sampleFormat string

func init() {
	rootCmd.AddCommand(sampleCmd)

	sampleCmd.Flags().StringVarP(&sampleFormat, "format", "f", "text", "output format (text or json)")
}

func runSample(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	applyFlagOverrides(configMgr)

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)

	backend, err := window.Detect(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to select backend: %w", err)
	}
	defer backend.Close()

	sample, err := backend.Sample()
	if err != nil {
		return fmt.Errorf("failed to sample focused window: %w", err)
	}
	res := normalize.New(backend).Normalize(sample)

	if sampleFormat == "json" {
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(map[string]interface{}{
			"backend": backend.Name(),
			"sample":  sample,
			"result":  res,
		})
	}

	fmt.Printf("Backend:    %s\n", backend.Name())
	fmt.Printf("App:        %s\n", res.App)
	fmt.Printf("Reason:     %s\n", res.Reason)
	fmt.Printf("Confidence: %s\n", res.Reason.Confidence())
	fmt.Printf("Title:      %s\n", sample.Title)
	fmt.Printf("Owner:      %s\n", sample.OwnerName)
	fmt.Printf("Path:       %s\n", sample.OwnerPath)
	fmt.Printf("PID:        %d\n", sample.PID)
	fmt.Printf("Window:     %d\n", sample.WindowID)
	return nil
}
