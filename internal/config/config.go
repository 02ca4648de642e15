// Package config manages YAML-based configuration, CLI flags, and watched directory settings.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Update holds the update check settings
type Update struct {
	Endpoint     string `yaml:"endpoint"`
	CheckOnStart bool   `yaml:"check_on_start"`
}

// Config holds all configuration options for ttbox
type Config struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Browser origins of the frontend allowed to call the API
	AllowedOrigins []string `yaml:"allowed_origins"`

	// Optional base directory; when set, command paths resolve beneath it
	Root string `yaml:"root,omitempty"`

	Watch     bool     `yaml:"watch"`
	WatchDirs []string `yaml:"watch_dirs,omitempty"`

	// Config file extensions searched for and watched
	Extensions  []string `yaml:"extensions"`
	Exclude     []string `yaml:"exclude"`
	SearchDepth int      `yaml:"search_depth"`

	SessionTTL time.Duration `yaml:"session_ttl"`
	Update     Update        `yaml:"update"`

	// Internal: path to config file for saving
	configPath string
	mu         sync.Mutex
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Host:           "127.0.0.1",
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:1420", "tauri://localhost"},
		Watch:          true,
		Extensions:     []string{".ini"},
		Exclude:        []string{"node_modules", ".git", ".svn"},
		SearchDepth:    5,
		SessionTTL:     24 * time.Hour,
		Update: Update{
			CheckOnStart: true,
		},
	}
}

// GetConfigDir returns the config directory path
func GetConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".config/ttbox"
	}
	return filepath.Join(home, ".config", "ttbox")
}

// GetConfigPath returns the full path to the config file
func GetConfigPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// GetTokenPath returns the file the per-launch API token is written to
func GetTokenPath() string {
	return filepath.Join(GetConfigDir(), "session.token")
}

// Load loads configuration from file and command line flags
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs is Load with explicit command line arguments
func LoadArgs(args []string) (*Config, error) {
	cfg := DefaultConfig()

	fs := flag.NewFlagSet("ttbox", flag.ContinueOnError)

	// Define command line flags with sentinel values to detect if set
	host := fs.String("host", "", "Address to listen on")
	port := fs.Int("port", 0, "HTTP server port")
	root := fs.String("root", "", "Restrict file commands to this directory")
	origins := fs.String("allow-origin", "", "Comma-separated frontend origins allowed to call the API")
	watch := fs.Bool("watch", true, "Enable file watching")
	endpoint := fs.String("update-endpoint", "", "Update manifest URL")
	configFile := fs.String("config", "", "Configuration file path")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Determine config file path
	var cfgPath string
	if *configFile != "" {
		cfgPath = *configFile
	} else {
		// Try ~/.config/ttbox/config.yaml first
		globalConfig := GetConfigPath()
		if _, err := os.Stat(globalConfig); err == nil {
			cfgPath = globalConfig
		} else if _, err := os.Stat("ttbox.yaml"); err == nil {
			// Fall back to local ttbox.yaml
			cfgPath = "ttbox.yaml"
		}
	}

	// Load from config file if found
	if cfgPath != "" {
		if err := cfg.loadFromFile(cfgPath); err != nil && *configFile != "" {
			// Only return error if user explicitly specified config file
			return nil, err
		}
		cfg.configPath = cfgPath
	} else {
		// Set default config path for saving
		cfg.configPath = GetConfigPath()
	}

	// Command line flags override config file (only if explicitly set)
	if *host != "" {
		cfg.Host = *host
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *root != "" {
		cfg.Root = *root
	}
	if *endpoint != "" {
		cfg.Update.Endpoint = *endpoint
	}
	if *origins != "" {
		cfg.AllowedOrigins = splitList(*origins)
	}
	// Bool flags - use command line value (they have explicit defaults)
	cfg.Watch = *watch

	cfg.normalize()

	return cfg, nil
}

// normalize resolves paths to absolute and fills in missing values
func (c *Config) normalize() {
	if c.Root != "" {
		if abs, err := filepath.Abs(c.Root); err == nil {
			c.Root = abs
		}
	}
	for i, dir := range c.WatchDirs {
		if abs, err := filepath.Abs(dir); err == nil {
			c.WatchDirs[i] = abs
		}
	}
	if c.SearchDepth <= 0 {
		c.SearchDepth = 5
	}
	if len(c.Extensions) == 0 {
		c.Extensions = []string{".ini"}
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func (c *Config) loadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, c)
}

// Save saves the current configuration to the config file
func (c *Config) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Ensure config directory exists
	configDir := filepath.Dir(c.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	// Create a copy without internal fields for saving
	saveConfig := struct {
		Host           string        `yaml:"host"`
		Port           int           `yaml:"port"`
		AllowedOrigins []string      `yaml:"allowed_origins"`
		Root           string        `yaml:"root,omitempty"`
		Watch          bool          `yaml:"watch"`
		WatchDirs      []string      `yaml:"watch_dirs,omitempty"`
		Extensions     []string      `yaml:"extensions"`
		Exclude        []string      `yaml:"exclude"`
		SearchDepth    int           `yaml:"search_depth"`
		SessionTTL     time.Duration `yaml:"session_ttl"`
		Update         Update        `yaml:"update"`
	}{
		Host:           c.Host,
		Port:           c.Port,
		AllowedOrigins: c.AllowedOrigins,
		Root:           c.Root,
		Watch:          c.Watch,
		WatchDirs:      c.WatchDirs,
		Extensions:     c.Extensions,
		Exclude:        c.Exclude,
		SearchDepth:    c.SearchDepth,
		SessionTTL:     c.SessionTTL,
		Update:         c.Update,
	}

	data, err := yaml.Marshal(saveConfig)
	if err != nil {
		return err
	}

	return os.WriteFile(c.configPath, data, 0644)
}

// AddWatchDir adds a directory to the watched list. It reports false if it was already present.
func (c *Config) AddWatchDir(dir string) (bool, error) {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.WatchDirs {
		if d == absPath {
			return false, nil
		}
	}
	c.WatchDirs = append(c.WatchDirs, absPath)
	return true, nil
}

// RemoveWatchDir removes a directory from the watched list. It reports whether it was present.
func (c *Config) RemoveWatchDir(dir string) bool {
	absPath, err := filepath.Abs(dir)
	if err != nil {
		absPath = dir
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i, d := range c.WatchDirs {
		if d == absPath {
			c.WatchDirs = append(c.WatchDirs[:i], c.WatchDirs[i+1:]...)
			return true
		}
	}
	return false
}

// GetConfigFilePath returns the path to the config file
func (c *Config) GetConfigFilePath() string {
	return c.configPath
}

// Addr returns the listen address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// IsAllowedOrigin reports whether a browser origin may call the API
func (c *Config) IsAllowedOrigin(origin string) bool {
	for _, o := range c.AllowedOrigins {
		if strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}

// IsExcluded checks if a path should be excluded
func (c *Config) IsExcluded(path string) bool {
	base := filepath.Base(path)
	for _, exclude := range c.Exclude {
		if matched, _ := filepath.Match(exclude, base); matched {
			return true
		}
	}
	return false
}

// IsConfigFile checks if a file has one of the configured extensions
func (c *Config) IsConfigFile(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range c.Extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}
