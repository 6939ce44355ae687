package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/zxsharp/active-app-worker/internal/config"
)

var (
	cfgFile string
	rootCmd = &cobra.Command{
		Use:   "active-app-worker",
		Short: "Watch the focused desktop window and report app switches",
		Long: `active-app-worker polls the desktop for the currently focused window,
normalizes it to a canonical application label and reports stable app
switches to an HTTP collector.

Features:
  • Sample the focused window via GNOME Shell or X11
  • Normalize process names, paths, WM classes and titles to app labels
  • Debounce focus flapping before anything leaves the machine
  • Deliver appSwitch events as JSON over HTTP
  • Optional local status API with metrics and a live event stream`,
	}
)

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/active-app-worker/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "human-readable console logging")
	rootCmd.PersistentFlags().String("backend", "", "sampling backend (auto, gnome, x11, stub)")

	// Bind flags to viper
	viper.BindPFlag("log_level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("log_pretty", rootCmd.PersistentFlags().Lookup("log-pretty"))
	viper.BindPFlag("backend", rootCmd.PersistentFlags().Lookup("backend"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// applyFlagOverrides copies set global flags onto a loaded config manager
func applyFlagOverrides(configMgr *config.Manager) {
	if viper.IsSet("log_level") {
		if level := viper.GetString("log_level"); level != "" {
			configMgr.SetLogLevel(level)
		}
	}
	if viper.GetBool("log_pretty") {
		configMgr.SetLogPretty(true)
	}
	if viper.IsSet("backend") {
		if backend := viper.GetString("backend"); backend != "" {
			configMgr.SetBackend(backend)
		}
	}
}
