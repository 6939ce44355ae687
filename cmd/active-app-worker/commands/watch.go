package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/zxsharp/active-app-worker/internal/api"
	"github.com/zxsharp/active-app-worker/internal/config"
	"github.com/zxsharp/active-app-worker/internal/emitter"
	"github.com/zxsharp/active-app-worker/internal/logger"
	"github.com/zxsharp/active-app-worker/internal/metrics"
	"github.com/zxsharp/active-app-worker/internal/watcher"
	"github.com/zxsharp/active-app-worker/internal/window"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Start watching for app switches",
	Long: `Start the watcher loop: poll the focused window, normalize it to an
application label, debounce focus flapping and POST appSwitch events to
the collector endpoint.

The collector endpoint and cadence come from the config file, from the
POLL_MS, DEBOUNCE_MS, SERVER_HOST, SERVER_PORT and SERVER_PATH
environment variables, or from flags.`,
	Example: `  # Watch with defaults (collector at localhost:3000/app-switch)
  active-app-worker watch

  # Slower cadence against a remote collector
  POLL_MS=10000 SERVER_HOST=tracker.lan active-app-worker watch

  # Force the X11 backend with debug logging
  active-app-worker watch --backend x11 --log-level debug

  # Expose the local status API on :8080
  active-app-worker watch --api`,
	RunE: runWatch,
}

var (
	watchAPI     bool
	watchAPIPort int
)

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().BoolVar(&watchAPI, "api", false, "serve the local status API")
	watchCmd.Flags().IntVar(&watchAPIPort, "api-port", 0, "status API port (default is 8080)")
}

func runWatch(cmd *cobra.Command, args []string) error {
	configMgr, err := config.NewManager(GetConfigFile())
	if err != nil {
		return fmt.Errorf("failed to initialize config manager: %w", err)
	}
	applyFlagOverrides(configMgr)
	if watchAPI || watchAPIPort > 0 {
		configMgr.SetAPI(true, watchAPIPort)
	}

	cfg := configMgr.Get()
	logger.Init(cfg.LogLevel, cfg.LogPretty)
	log := logger.WithComponent("main")

	backend, err := window.Detect(cfg.Backend)
	if err != nil {
		return fmt.Errorf("failed to select backend: %w", err)
	}
	defer backend.Close()

	client := emitter.NewClient(cfg.EndpointURL(), config.EmitTimeout)
	source := emitter.NewSource()

	w := watcher.New(cfg, backend, client, source, metrics.New())
	if err := w.Start(); err != nil {
		return fmt.Errorf("failed to start watcher: %w", err)
	}
	defer w.Stop()

	if cfg.APIEnabled {
		server := api.NewServer(w, configMgr)
		go func() {
			if err := server.Start(cfg.APIPort); err != nil {
				log.Error().Err(err).Msg("Status API stopped")
			}
		}()
	}

	log.Info().
		Str("endpoint", cfg.EndpointURL()).
		Str("backend", backend.Name()).
		Msg("Watching for app switches, press Ctrl+C to stop")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	log.Info().Msg("Shutting down")
	return nil
}
