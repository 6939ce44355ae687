package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/zxsharp/active-app-worker/internal/logger"
)

// Defaults for all tunables. The five watcher settings can also be set
// through the bare environment variables POLL_MS, DEBOUNCE_MS, SERVER_HOST,
// SERVER_PORT and SERVER_PATH.
const (
	DefaultPollMS     = 5000
	DefaultDebounceMS = 600
	DefaultServerHost = "localhost"
	DefaultServerPort = 3000
	DefaultServerPath = "/app-switch"

	DefaultBackend  = "auto"
	DefaultLogLevel = "info"
	DefaultAPIPort  = 8080

	// EmitTimeout bounds a single collector POST. Events are sent with one
	// attempt and no retry, so this is also the worst-case emission stall.
	EmitTimeout = 5000 * time.Millisecond
)

// Sample is one raw observation of the focused window, produced fresh each
// poll tick by a window backend. Empty string and zero values mean the
// backend could not determine the field.
type Sample struct {
	OwnerName string `json:"owner_name,omitempty"`
	OwnerPath string `json:"owner_path,omitempty"`
	Title     string `json:"title,omitempty"`
	WindowID  uint32 `json:"window_id,omitempty"`
	PID       int    `json:"pid,omitempty"`
}

// HasOwner reports whether the backend identified the owning process.
func (s *Sample) HasOwner() bool {
	return s != nil && (s.OwnerName != "" || s.OwnerPath != "")
}

// Config represents the watcher configuration
type Config struct {
	// Polling and debounce cadence, in milliseconds
	PollMS     int `json:"poll_ms" yaml:"poll_ms" mapstructure:"poll_ms"`
	DebounceMS int `json:"debounce_ms" yaml:"debounce_ms" mapstructure:"debounce_ms"`

	// Collector endpoint: http://{server_host}:{server_port}{server_path},
	// unless server_url overrides the assembled URL wholesale
	ServerHost string `json:"server_host" yaml:"server_host" mapstructure:"server_host"`
	ServerPort int    `json:"server_port" yaml:"server_port" mapstructure:"server_port"`
	ServerPath string `json:"server_path" yaml:"server_path" mapstructure:"server_path"`
	ServerURL  string `json:"server_url,omitempty" yaml:"server_url,omitempty" mapstructure:"server_url"`

	// Sampling backend: auto, gnome, x11 or stub
	Backend string `json:"backend" yaml:"backend" mapstructure:"backend"`

	LogLevel  string `json:"log_level" yaml:"log_level" mapstructure:"log_level"`
	LogPretty bool   `json:"log_pretty" yaml:"log_pretty" mapstructure:"log_pretty"`

	// Optional local status API
	APIEnabled bool `json:"api_enabled" yaml:"api_enabled" mapstructure:"api_enabled"`
	APIPort    int  `json:"api_port" yaml:"api_port" mapstructure:"api_port"`
}

// PollInterval returns the poll cadence as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollMS) * time.Millisecond
}

// DebounceWindow returns the debounce window as a duration.
func (c *Config) DebounceWindow() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// EndpointURL returns the collector URL events are POSTed to.
func (c *Config) EndpointURL() string {
	if c.ServerURL != "" {
		return c.ServerURL
	}
	path := c.ServerPath
	if path != "" && !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return fmt.Sprintf("http://%s:%d%s", c.ServerHost, c.ServerPort, path)
}

// envBindings maps config keys to the bare environment variable names the
// watcher has always honored.
var envBindings = map[string]string{
	"poll_ms":     "POLL_MS",
	"debounce_ms": "DEBOUNCE_MS",
	"server_host": "SERVER_HOST",
	"server_port": "SERVER_PORT",
	"server_path": "SERVER_PATH",
}

// Manager handles configuration
type Manager struct {
	configPath string
	v          *viper.Viper
	config     *Config
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager. Precedence is environment
// over config file over defaults. The config file is optional; a missing
// file is not an error.
func NewManager(configFile string) (*Manager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	configDir := filepath.Join(homeDir, ".config", "active-app-worker")
	actualConfigPath := filepath.Join(configDir, "config.yaml")
	if configFile != "" {
		actualConfigPath = configFile
	}

	v := viper.New()
	v.SetDefault("poll_ms", DefaultPollMS)
	v.SetDefault("debounce_ms", DefaultDebounceMS)
	v.SetDefault("server_host", DefaultServerHost)
	v.SetDefault("server_port", DefaultServerPort)
	v.SetDefault("server_path", DefaultServerPath)
	v.SetDefault("server_url", "")
	v.SetDefault("backend", DefaultBackend)
	v.SetDefault("log_level", DefaultLogLevel)
	v.SetDefault("log_pretty", false)
	v.SetDefault("api_enabled", false)
	v.SetDefault("api_port", DefaultAPIPort)

	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	m := &Manager{
		configPath: actualConfigPath,
		v:          v,
	}

	if err := m.load(); err != nil {
		return nil, err
	}

	logger.WithComponent("config").Debug().
		Str("path", m.configPath).
		Int("poll_ms", m.config.PollMS).
		Int("debounce_ms", m.config.DebounceMS).
		Str("endpoint", m.config.EndpointURL()).
		Msg("Config loaded")

	return m, nil
}

// load reads the optional config file, resolves every key through viper and
// validates the result.
func (m *Manager) load() error {
	if _, err := os.Stat(m.configPath); err == nil {
		m.v.SetConfigFile(m.configPath)
		if err := m.v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", m.configPath, err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat config %s: %w", m.configPath, err)
	}

	cfg := &Config{
		PollMS:     m.v.GetInt("poll_ms"),
		DebounceMS: m.v.GetInt("debounce_ms"),
		ServerHost: m.v.GetString("server_host"),
		ServerPort: m.v.GetInt("server_port"),
		ServerPath: m.v.GetString("server_path"),
		ServerURL:  m.v.GetString("server_url"),
		Backend:    m.v.GetString("backend"),
		LogLevel:   m.v.GetString("log_level"),
		LogPretty:  m.v.GetBool("log_pretty"),
		APIEnabled: m.v.GetBool("api_enabled"),
		APIPort:    m.v.GetInt("api_port"),
	}
	validate(cfg)

	m.mu.Lock()
	m.config = cfg
	m.mu.Unlock()
	return nil
}

// validate clamps invalid values back to their defaults. Non-numeric or
// non-positive values in the environment fall back rather than aborting, so
// a bad deploy still reports app switches at the default cadence.
func validate(cfg *Config) {
	log := logger.WithComponent("config")

	clampInt := func(name string, val *int, def int) {
		if *val <= 0 {
			log.Warn().
				Str("key", name).
				Int("value", *val).
				Int("default", def).
				Msg("Invalid value, falling back to default")
			*val = def
		}
	}

	clampInt("poll_ms", &cfg.PollMS, DefaultPollMS)
	clampInt("debounce_ms", &cfg.DebounceMS, DefaultDebounceMS)
	clampInt("server_port", &cfg.ServerPort, DefaultServerPort)
	clampInt("api_port", &cfg.APIPort, DefaultAPIPort)

	if cfg.ServerHost == "" {
		log.Warn().Str("key", "server_host").Str("default", DefaultServerHost).
			Msg("Empty value, falling back to default")
		cfg.ServerHost = DefaultServerHost
	}
	if cfg.ServerPath == "" {
		log.Warn().Str("key", "server_path").Str("default", DefaultServerPath).
			Msg("Empty value, falling back to default")
		cfg.ServerPath = DefaultServerPath
	}

	if cfg.ServerURL != "" && !strings.HasPrefix(cfg.ServerURL, "http://") && !strings.HasPrefix(cfg.ServerURL, "https://") {
		log.Warn().Str("value", cfg.ServerURL).
			Msg("server_url is not an http(s) URL, ignoring override")
		cfg.ServerURL = ""
	}

	if cfg.ServerPort > 65535 {
		log.Warn().Int("value", cfg.ServerPort).Msg("server_port out of range, falling back to default")
		cfg.ServerPort = DefaultServerPort
	}
	if cfg.APIPort > 65535 {
		log.Warn().Int("value", cfg.APIPort).Msg("api_port out of range, falling back to default")
		cfg.APIPort = DefaultAPIPort
	}

	switch strings.ToLower(cfg.Backend) {
	case "auto", "gnome", "x11", "stub":
		cfg.Backend = strings.ToLower(cfg.Backend)
	default:
		log.Warn().Str("value", cfg.Backend).Str("default", DefaultBackend).
			Msg("Unknown backend, falling back to auto")
		cfg.Backend = DefaultBackend
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.LogLevel)] {
		cfg.LogLevel = DefaultLogLevel
	}
}

// Get returns a copy of the current configuration
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cfg := *m.config
	return &cfg
}

// GetViper returns the underlying viper instance
func (m *Manager) GetViper() *viper.Viper {
	return m.v
}

// GetConfigPath returns the path to the config file
func (m *Manager) GetConfigPath() string {
	return m.configPath
}

// SetLogLevel overrides the log level (flag override path)
func (m *Manager) SetLogLevel(level string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogLevel = level
}

// SetBackend overrides the sampling backend (flag override path)
func (m *Manager) SetBackend(backend string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Backend = backend
}

// SetLogPretty overrides console formatting (flag override path)
func (m *Manager) SetLogPretty(pretty bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.LogPretty = pretty
}

// SetAPI overrides the status API settings (flag override path)
func (m *Manager) SetAPI(enabled bool, port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.APIEnabled = enabled
	if port > 0 {
		m.config.APIPort = port
	}
}

// Set stores a value on the underlying viper instance and revalidates the
// active configuration.
func (m *Manager) Set(key string, value interface{}) error {
	m.v.Set(key, value)
	return m.load()
}

// Save writes the current configuration to disk as YAML
func (m *Manager) Save() error {
	m.mu.RLock()
	cfg := *m.config
	m.mu.RUnlock()

	configDir := filepath.Dir(m.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(m.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	logger.WithComponent("config").Info().
		Str("path", m.configPath).
		Msg("Config saved")
	return nil
}
