// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"text/template"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/autobrr/torrentdash/internal/domain"
)

var envPrefix = "TORRENTDASH__"

const (
	minPollInterval = 500 * time.Millisecond
	appName         = "torrentdash"
)

type AppConfig struct {
	Config  *domain.Config
	viper   *viper.Viper
	version string

	listenersMu sync.RWMutex
	listeners   []func(*domain.Config)
}

func New(configDirOrPath string, versions ...string) (*AppConfig, error) {
	version := "dev"
	if len(versions) > 0 && strings.TrimSpace(versions[0]) != "" {
		version = versions[0]
	}

	c := &AppConfig{
		viper:   viper.New(),
		Config:  &domain.Config{},
		version: version,
	}

	// Set defaults
	c.defaults()

	// Load from config file
	if err := c.load(configDirOrPath); err != nil {
		return nil, err
	}

	// Override with environment variables
	if err := c.loadFromEnv(); err != nil {
		return nil, err
	}

	// Unmarshal the configuration
	if err := c.viper.Unmarshal(c.Config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	c.Config.Version = c.version

	if err := Validate(c.Config); err != nil {
		return nil, err
	}

	// Watch for config changes
	c.watchConfig()

	return c, nil
}

func (c *AppConfig) defaults() {
	// Detect if running in container
	host := "localhost"
	if detectContainer() {
		host = "0.0.0.0"
	}

	c.viper.SetDefault("backend", domain.BackendREST)
	c.viper.SetDefault("backendUrl", "http://localhost:8080")
	c.viper.SetDefault("backendUsername", "")
	c.viper.SetDefault("backendPassword", "")
	c.viper.SetDefault("tlsSkipVerify", false)
	c.viper.SetDefault("requestTimeout", "30s")
	c.viper.SetDefault("requestRetries", 2)
	c.viper.SetDefault("torrentPollInterval", "5s")
	c.viper.SetDefault("peerPollInterval", "3s")
	c.viper.SetDefault("filter", "")
	c.viper.SetDefault("host", host)
	c.viper.SetDefault("port", 7480)
	c.viper.SetDefault("baseUrl", "/")
	c.viper.SetDefault("logLevel", "INFO")
	c.viper.SetDefault("logPath", "")
	c.viper.SetDefault("logMaxSize", 50)
	c.viper.SetDefault("logMaxBackups", 3)
	c.viper.SetDefault("metricsEnabled", false)
	c.viper.SetDefault("metricsHost", "127.0.0.1")
	c.viper.SetDefault("metricsPort", 9075)
}

func (c *AppConfig) load(configDirOrPath string) error {
	c.viper.SetConfigType("toml")

	if configDirOrPath != "" {
		// Determine if this is a directory or file path
		configPath := c.resolveConfigPath(configDirOrPath)
		c.viper.SetConfigFile(configPath)

		// If file doesn't exist, create it
		if _, err := os.Stat(configPath); errors.Is(err, os.ErrNotExist) {
			if err := c.writeDefaultConfig(configPath); err != nil {
				return err
			}
		}

		if err := c.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		return nil
	}

	// Search for config in standard locations
	c.viper.SetConfigName("config")
	c.viper.AddConfigPath(".")
	c.viper.AddConfigPath(GetDefaultConfigDir())

	if err := c.viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("failed to read config: %w", err)
		}

		// No config found, create in OS-specific location
		defaultConfigPath := filepath.Join(GetDefaultConfigDir(), "config.toml")
		if err := c.writeDefaultConfig(defaultConfigPath); err != nil {
			return err
		}
		c.viper.SetConfigFile(defaultConfigPath)
		if err := c.viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read newly created config: %w", err)
		}
	}

	return nil
}

func (c *AppConfig) loadFromEnv() error {
	// Bind explicitly instead of AutomaticEnv so unrelated variables never leak in.
	binds := map[string]string{
		"backend":             "BACKEND",
		"backendUrl":          "BACKEND_URL",
		"backendUsername":     "BACKEND_USERNAME",
		"tlsSkipVerify":       "TLS_SKIP_VERIFY",
		"requestTimeout":      "REQUEST_TIMEOUT",
		"requestRetries":      "REQUEST_RETRIES",
		"torrentPollInterval": "TORRENT_POLL_INTERVAL",
		"peerPollInterval":    "PEER_POLL_INTERVAL",
		"filter":              "FILTER",
		"host":                "HOST",
		"port":                "PORT",
		"baseUrl":             "BASE_URL",
		"logLevel":            "LOG_LEVEL",
		"logPath":             "LOG_PATH",
		"logMaxSize":          "LOG_MAX_SIZE",
		"logMaxBackups":       "LOG_MAX_BACKUPS",
		"metricsEnabled":      "METRICS_ENABLED",
		"metricsHost":         "METRICS_HOST",
		"metricsPort":         "METRICS_PORT",
	}
	for key, env := range binds {
		if err := c.viper.BindEnv(key, envPrefix+env); err != nil {
			return fmt.Errorf("failed to bind %s: %w", env, err)
		}
	}

	return c.bindOrReadFromFile("backendPassword", envPrefix+"BACKEND_PASSWORD")
}

// bindOrReadFromFile prefers the contents of the file named by envVar_FILE
// over envVar itself.
func (c *AppConfig) bindOrReadFromFile(key, envVar string) error {
	if path := os.Getenv(envVar + "_FILE"); path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("could not read %s_FILE: %w", envVar, err)
		}
		c.viper.Set(key, strings.TrimSpace(string(content)))
		return nil
	}
	return c.viper.BindEnv(key, envVar)
}

// Validate rejects settings the dashboard cannot run with.
func Validate(cfg *domain.Config) error {
	switch cfg.Backend {
	case domain.BackendREST, domain.BackendQBittorrent:
	default:
		return fmt.Errorf("unknown backend %q (want %q or %q)", cfg.Backend, domain.BackendREST, domain.BackendQBittorrent)
	}

	if strings.TrimSpace(cfg.BackendURL) == "" {
		return errors.New("backendUrl is required")
	}
	if cfg.TorrentPollInterval < minPollInterval || cfg.PeerPollInterval < minPollInterval {
		return fmt.Errorf("poll intervals must be at least %s", minPollInterval)
	}
	if cfg.RequestRetries < 0 {
		return fmt.Errorf("requestRetries must not be negative, got %d", cfg.RequestRetries)
	}
	return nil
}

func (c *AppConfig) watchConfig() {
	c.viper.WatchConfig()
	c.viper.OnConfigChange(func(e fsnotify.Event) {
		log.Info().Msgf("Config file changed: %s", e.Name)

		// Reload configuration
		next := &domain.Config{}
		if err := c.viper.Unmarshal(next); err != nil {
			log.Error().Err(err).Msg("Failed to reload configuration")
			return
		}
		next.Version = c.version
		if err := Validate(next); err != nil {
			log.Error().Err(err).Msg("Ignoring invalid configuration")
			return
		}

		// Apply dynamic changes
		*c.Config = *next
		c.applyDynamicChanges()
	})
}

func (c *AppConfig) applyDynamicChanges() {
	c.ApplyLogConfig()
	c.notifyListeners()
}

// RegisterReloadListener registers a callback that's invoked when the configuration file is reloaded.
func (c *AppConfig) RegisterReloadListener(fn func(*domain.Config)) {
	c.listenersMu.Lock()
	defer c.listenersMu.Unlock()
	c.listeners = append(c.listeners, fn)
}

func (c *AppConfig) notifyListeners() {
	c.listenersMu.RLock()
	listeners := append([]func(*domain.Config){}, c.listeners...)
	c.listenersMu.RUnlock()

	if len(listeners) == 0 {
		return
	}

	copied := *c.Config
	for _, listener := range listeners {
		listener(&copied)
	}
}

const configTemplate = `# config.toml - Auto-generated on first run

# Backend type
# Options: "rest", "qbittorrent"
# Default: "rest"
backend = "{{ .backend }}"

# Backend base URL
backendUrl = "{{ .backendUrl }}"

# Backend credentials
# The password can also be provided via TORRENTDASH__BACKEND_PASSWORD_FILE
#backendUsername = ""
#backendPassword = ""

# Skip TLS certificate verification for the backend
#tlsSkipVerify = false

# Per-request timeout and retries for reads
# Default: "{{ .requestTimeout }}" and {{ .requestRetries }}
#requestTimeout = "{{ .requestTimeout }}"
#requestRetries = {{ .requestRetries }}

# Poll intervals, measured from the end of one fetch to the start of the next
# Default: "{{ .torrentPollInterval }}" for torrents and "{{ .peerPollInterval }}" for peers
torrentPollInterval = "{{ .torrentPollInterval }}"
peerPollInterval = "{{ .peerPollInterval }}"

# Torrent filter expression applied by the terminal dashboard
# Example: 'State == "downloading" && Ratio < 1'
#filter = ""

# Dashboard API
# Default: "localhost" (or "0.0.0.0" in containers)
host = "{{ .host }}"
port = {{ .port }}

# Set custom baseUrl eg /torrentdash/ to serve in subdirectory
#baseUrl = "/torrentdash/"

# Log file path
# If not defined, logs to stderr
#logPath = "log/torrentdash.log"

# Log rotation
# Default: {{ .logMaxSize }} MB and {{ .logMaxBackups }} backups
#logMaxSize = {{ .logMaxSize }}
#logMaxBackups = {{ .logMaxBackups }}

# Log level
# Default: "INFO"
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
logLevel = "{{ .logLevel }}"

# Prometheus metrics on a separate listener
#metricsEnabled = false
#metricsHost = "127.0.0.1"
#metricsPort = 9075
`

func (c *AppConfig) writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		log.Debug().Msgf("Config file already exists at: %s", path)
		return nil
	}

	// Ensure directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory %s: %w", dir, err)
	}

	// Prepare template data
	data := map[string]any{
		"backend":             c.viper.GetString("backend"),
		"backendUrl":          c.viper.GetString("backendUrl"),
		"requestTimeout":      c.viper.GetString("requestTimeout"),
		"requestRetries":      c.viper.GetInt("requestRetries"),
		"torrentPollInterval": c.viper.GetString("torrentPollInterval"),
		"peerPollInterval":    c.viper.GetString("peerPollInterval"),
		"host":                c.viper.GetString("host"),
		"port":                c.viper.GetInt("port"),
		"logLevel":            c.viper.GetString("logLevel"),
		"logMaxSize":          c.viper.GetInt("logMaxSize"),
		"logMaxBackups":       c.viper.GetInt("logMaxBackups"),
	}

	// Parse and execute template
	tmpl, err := template.New("config").Parse(configTemplate)
	if err != nil {
		return fmt.Errorf("failed to parse config template: %w", err)
	}

	// Create config file
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer f.Close()

	if err := tmpl.Execute(f, data); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Info().Msgf("Created default config file: %s", path)
	return nil
}

// GetDefaultConfigDir returns the OS-specific config directory
func GetDefaultConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		// containers mount the config volume at /config
		if xdgConfig == "/config" {
			return xdgConfig
		}
		return filepath.Join(xdgConfig, appName)
	}

	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, appName)
		}
		home, _ := os.UserHomeDir()
		return filepath.Join(home, "AppData", "Roaming", appName)
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", appName)
	}
}

func detectContainer() bool {
	// Check Docker
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	// Check LXC
	if _, err := os.Stat("/dev/.lxc-boot-id"); err == nil {
		return true
	}
	// Check if running as init
	return os.Getpid() == 1
}

func (c *AppConfig) ApplyLogConfig() {
	zerolog.TimeFieldFormat = time.RFC3339

	setLogLevel(c.Config.LogLevel)

	writer := baseLogWriter(c.version)

	if c.Config.LogPath != "" {
		multiWriter, err := setupLogFile(c.Config.LogPath, writer, c.Config.LogMaxSize, c.Config.LogMaxBackups)
		if err != nil {
			log.Error().Err(err).Msg("Failed to setup log file")
		} else {
			writer = multiWriter
		}
	}

	log.Logger = log.Logger.Output(writer)
}

func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Logger.Level(lvl)
}

func setupLogFile(path string, base io.Writer, maxSize, maxBackups int) (io.Writer, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	if maxSize <= 0 {
		maxSize = 50
	}
	if maxBackups < 0 {
		maxBackups = 0
	}

	rotator := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
	}

	return io.MultiWriter(base, rotator), nil
}

func baseLogWriter(version string) io.Writer {
	if isDevBuild(version) {
		writer := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
		writer.PartsOrder = []string{zerolog.TimestampFieldName, zerolog.LevelFieldName, zerolog.MessageFieldName}
		return writer
	}
	return os.Stderr
}

// InitDefaultLogger configures zerolog before a configuration file is loaded.
func InitDefaultLogger(version string) {
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Logger.Output(baseLogWriter(version))
}

func isDevBuild(version string) bool {
	v := strings.ToLower(strings.TrimSpace(version))
	return v == "" || v == "dev" || strings.HasSuffix(v, "-dev")
}

// resolveConfigPath accepts either a config file or the directory holding config.toml.
func (c *AppConfig) resolveConfigPath(configDirOrPath string) string {
	if strings.HasSuffix(strings.ToLower(configDirOrPath), ".toml") {
		return configDirOrPath
	}

	if info, err := os.Stat(configDirOrPath); err == nil && !info.IsDir() {
		return configDirOrPath
	}

	return filepath.Join(configDirOrPath, "config.toml")
}

// GetConfigDir returns the directory containing the config file
func (c *AppConfig) GetConfigDir() string {
	if c.viper.ConfigFileUsed() != "" {
		return filepath.Dir(c.viper.ConfigFileUsed())
	}
	return GetDefaultConfigDir()
}

func WriteDefaultConfig(path string) error {
	c := &AppConfig{
		viper: viper.New(),
	}

	c.defaults()

	return c.writeDefaultConfig(path)
}
