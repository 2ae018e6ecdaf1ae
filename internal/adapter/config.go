package adapter

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// OutputType selects the audio output backend
type OutputType string

const (
	OutputSpeaker  OutputType = "speaker"  // in-process decoding
	OutputExternal OutputType = "external" // external player process
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Player       PlayerConfig       `mapstructure:"player"`
	Cache        CacheConfig        `mapstructure:"cache"`
	MediaSession MediaSessionConfig `mapstructure:"media_session"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Serve        ServeConfig        `mapstructure:"serve"`
}

// ServerConfig holds the catalog server address
type ServerConfig struct {
	URL string `mapstructure:"url"`
}

// PlayerConfig holds audio output configuration
type PlayerConfig struct {
	Output    OutputType `mapstructure:"output"`     // "speaker" or "external"
	Command   string     `mapstructure:"command"`    // external player, empty to auto-detect
	Args      []string   `mapstructure:"args"`       // extra arguments for the external player
	StartFlag string     `mapstructure:"start_flag"` // e.g., "--start=" or "-ss "
}

// CacheConfig holds offline cache configuration
type CacheConfig struct {
	Dir     string `mapstructure:"dir"`     // empty keeps the cache in memory only
	Workers int    `mapstructure:"workers"` // concurrent payload downloads
}

// MediaSessionConfig controls system media control integration
type MediaSessionConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

// ServeConfig holds catalog server (tonearmd) configuration
type ServeConfig struct {
	Addr        string `mapstructure:"addr"`
	Database    string `mapstructure:"database"`
	DownloadDir string `mapstructure:"download_dir"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			URL: "http://127.0.0.1:5000",
		},
		Player: PlayerConfig{
			Output: OutputSpeaker,
			Args:   []string{},
		},
		Cache: CacheConfig{
			Dir:     defaultCachePath(),
			Workers: 2,
		},
		MediaSession: MediaSessionConfig{
			Enabled: true,
		},
		Logging: LoggingConfig{
			File:  defaultLogPath(),
			Level: "INFO",
		},
		Serve: ServeConfig{
			Addr:        ":5000",
			Database:    filepath.Join(defaultDataPath(), "catalog.db"),
			DownloadDir: filepath.Join(os.TempDir(), "tonearmd"),
		},
	}
}

// defaultDataPath returns the per-user data directory for the current OS
func defaultDataPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "tonearm")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "tonearm")
	}
}

// defaultLogPath returns the default log file path for the current OS
func defaultLogPath() string {
	return filepath.Join(defaultDataPath(), "tonearm.log")
}

// defaultConfigPath returns the default config file path for the current OS
func defaultConfigPath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("APPDATA"), "tonearm")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".config", "tonearm")
	}
}

// defaultCachePath returns the default cache directory path for the current OS
func defaultCachePath() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("LOCALAPPDATA"), "tonearm", "cache")
	default:
		home, _ := os.UserHomeDir()
		return filepath.Join(home, ".local", "share", "tonearm", "cache")
	}
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	return loadConfig(viper.GetViper(), defaultConfigPath())
}

func loadConfig(v *viper.Viper, configDir string) (*Config, error) {
	cfg := DefaultConfig()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	// Environment variable overrides, e.g. TONEARM_SERVER_URL
	v.SetEnvPrefix("TONEARM")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()
	bindEnvKeys(v)

	// Read config file if it exists
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	if cfg.Cache.Workers <= 0 {
		cfg.Cache.Workers = 1
	}
	if cfg.Player.Output == "" {
		cfg.Player.Output = OutputSpeaker
	}

	return cfg, nil
}

// SaveConfig saves the current configuration to file
func SaveConfig(cfg *Config) error {
	return saveConfig(viper.GetViper(), cfg, defaultConfigPath())
}

func saveConfig(v *viper.Viper, cfg *Config, configPath string) error {
	// Ensure config directory exists
	if err := os.MkdirAll(configPath, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	// Set fields individually to ensure correct key names (snake_case)
	v.Set("server.url", cfg.Server.URL)

	v.Set("player.output", string(cfg.Player.Output))
	v.Set("player.command", cfg.Player.Command)
	v.Set("player.args", cfg.Player.Args)
	v.Set("player.start_flag", cfg.Player.StartFlag)

	v.Set("cache.dir", cfg.Cache.Dir)
	v.Set("cache.workers", cfg.Cache.Workers)

	v.Set("media_session.enabled", cfg.MediaSession.Enabled)

	v.Set("logging.file", cfg.Logging.File)
	v.Set("logging.level", cfg.Logging.Level)

	v.Set("serve.addr", cfg.Serve.Addr)
	v.Set("serve.database", cfg.Serve.Database)
	v.Set("serve.download_dir", cfg.Serve.DownloadDir)

	configFile := filepath.Join(configPath, "config.yaml")
	if err := v.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ClearCache removes all cached songs
func ClearCache(cfg *Config) error {
	if cfg.Cache.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(cfg.Cache.Dir); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear cache: %w", err)
	}
	return nil
}
