// Package config resolves notehunt's configuration.
//
// Values are applied in order of increasing precedence:
//
//  1. Hardcoded defaults (NewConfig)
//  2. User config ($XDG_CONFIG_HOME/notehunt/config.yaml or config.toml)
//  3. An explicit config file (LoadOptions.ConfigFile)
//  4. Environment variables (NOTEHUNT_*)
//  5. Command-line overrides (LoadOptions)
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	nherrors "github.com/Aman-CERP/notehunt/internal/errors"
	"github.com/Aman-CERP/notehunt/internal/logging"
	"github.com/Aman-CERP/notehunt/internal/searchindex"
)

// Config is the complete notehunt configuration.
type Config struct {
	// Root is the directory tree being reconciled. Default: working directory.
	Root string `yaml:"root" toml:"root" json:"root"`

	// DataDir holds the state table, the lock and the default index.
	// Default: ~/.notehunt
	DataDir string `yaml:"data_dir" toml:"data_dir" json:"data_dir"`

	// Extensions is the file allowlist. An explicitly empty list allows
	// every file.
	Extensions []string `yaml:"extensions" toml:"extensions" json:"extensions"`

	Index    IndexConfig    `yaml:"index" toml:"index" json:"index"`
	Pipeline PipelineConfig `yaml:"pipeline" toml:"pipeline" json:"pipeline"`
	Watch    WatchConfig    `yaml:"watch" toml:"watch" json:"watch"`
	Log      LogConfig      `yaml:"log" toml:"log" json:"log"`
}

// IndexConfig configures the search index and the indexer.
type IndexConfig struct {
	// Path is the index base path; the backend adds .bleve or .db.
	// Default: <data_dir>/index
	Path string `yaml:"path" toml:"path" json:"path"`

	// Backend is "bleve" (default) or "sqlite".
	Backend string `yaml:"backend" toml:"backend" json:"backend"`

	// BatchSize is the number of files reported per completion event.
	BatchSize int `yaml:"batch_size" toml:"batch_size" json:"batch_size"`
}

// PipelineConfig configures the dispatcher and the request bridge.
type PipelineConfig struct {
	QueueSize     int    `yaml:"queue_size" toml:"queue_size" json:"queue_size"`
	BridgeTimeout string `yaml:"bridge_timeout" toml:"bridge_timeout" json:"bridge_timeout"`
}

// WatchConfig configures watch mode.
type WatchConfig struct {
	// IndexInterval is the pause between periodic indexing runs.
	IndexInterval string `yaml:"index_interval" toml:"index_interval" json:"index_interval"`
	EventsBuffer  int    `yaml:"events_buffer" toml:"events_buffer" json:"events_buffer"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level" toml:"level" json:"level"`
}

// DefaultExtensions is the allowlist used when none is configured.
var DefaultExtensions = []string{".txt"}

// NewConfig creates a Config with defaults.
func NewConfig() *Config {
	root, err := os.Getwd()
	if err != nil {
		root = "."
	}
	return &Config{
		Root:       root,
		DataDir:    defaultDataDir(),
		Extensions: append([]string(nil), DefaultExtensions...),
		Index: IndexConfig{
			Backend:   string(searchindex.DefaultBackend),
			BatchSize: 50,
		},
		Pipeline: PipelineConfig{
			QueueSize:     1024,
			BridgeTimeout: "30s",
		},
		Watch: WatchConfig{
			IndexInterval: "30s",
			EventsBuffer:  256,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".notehunt")
	}
	return filepath.Join(home, ".notehunt")
}

// LoadOptions carries the command-line layer.
type LoadOptions struct {
	// ConfigFile is an explicit .yaml, .yml or .toml file. It must exist.
	ConfigFile string

	// Root overrides the configured root when non-empty.
	Root string

	// BatchSize overrides the configured batch size when positive.
	BatchSize int

	// SkipUserConfig ignores the user config file.
	SkipUserConfig bool
}

// Load resolves the configuration and validates it.
func Load(opts LoadOptions) (*Config, error) {
	cfg := NewConfig()

	if !opts.SkipUserConfig {
		if path := findUserConfig(); path != "" {
			if err := cfg.loadFile(path); err != nil {
				return nil, err
			}
		}
	}

	if opts.ConfigFile != "" {
		path := ExpandPath(opts.ConfigFile)
		if !fileExists(path) {
			return nil, nherrors.New(nherrors.ErrCodeConfigNotFound,
				fmt.Sprintf("config file %s not found", path), nil).
				WithSuggestion("Check the --config path")
		}
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	cfg.applyEnvOverrides()

	if opts.Root != "" {
		cfg.Root = opts.Root
	}
	if opts.BatchSize > 0 {
		cfg.Index.BatchSize = opts.BatchSize
	}

	cfg.expandPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// GetUserConfigDir returns the directory searched for the user config.
// It follows the XDG Base Directory convention.
func GetUserConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "notehunt")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "notehunt")
	}
	return filepath.Join(home, ".config", "notehunt")
}

// findUserConfig returns the first existing user config file, or "".
func findUserConfig() string {
	dir := GetUserConfigDir()
	for _, name := range []string{"config.yaml", "config.yml", "config.toml"} {
		if path := filepath.Join(dir, name); fileExists(path) {
			return path
		}
	}
	return ""
}

// loadFile parses a YAML or TOML file and merges its non-zero values.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return nherrors.ConfigError(fmt.Sprintf("failed to read config file %s", path), err)
	}

	var parsed Config
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		if _, err := toml.Decode(string(data), &parsed); err != nil {
			return nherrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nherrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
		}
	default:
		return nherrors.ConfigError(
			fmt.Sprintf("unsupported config format %q (use .yaml, .yml or .toml)", filepath.Ext(path)), nil)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith copies the non-zero values of other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Root != "" {
		c.Root = other.Root
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	// nil means unset; an empty list is an explicit "allow all"
	if other.Extensions != nil {
		c.Extensions = other.Extensions
	}

	if other.Index.Path != "" {
		c.Index.Path = other.Index.Path
	}
	if other.Index.Backend != "" {
		c.Index.Backend = other.Index.Backend
	}
	if other.Index.BatchSize != 0 {
		c.Index.BatchSize = other.Index.BatchSize
	}

	if other.Pipeline.QueueSize != 0 {
		c.Pipeline.QueueSize = other.Pipeline.QueueSize
	}
	if other.Pipeline.BridgeTimeout != "" {
		c.Pipeline.BridgeTimeout = other.Pipeline.BridgeTimeout
	}

	if other.Watch.IndexInterval != "" {
		c.Watch.IndexInterval = other.Watch.IndexInterval
	}
	if other.Watch.EventsBuffer != 0 {
		c.Watch.EventsBuffer = other.Watch.EventsBuffer
	}

	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
}

// applyEnvOverrides applies NOTEHUNT_* variables. Unparsable numbers are
// ignored and the previous value kept.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NOTEHUNT_ROOT"); v != "" {
		c.Root = v
	}
	if v := os.Getenv("NOTEHUNT_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v, ok := os.LookupEnv("NOTEHUNT_EXTENSIONS"); ok {
		c.Extensions = splitList(v)
	}
	if v := os.Getenv("NOTEHUNT_INDEX_PATH"); v != "" {
		c.Index.Path = v
	}
	if v := os.Getenv("NOTEHUNT_INDEX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("NOTEHUNT_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Index.BatchSize = n
		}
	}
	if v := os.Getenv("NOTEHUNT_BRIDGE_TIMEOUT"); v != "" {
		c.Pipeline.BridgeTimeout = v
	}
	if v := os.Getenv("NOTEHUNT_INDEX_INTERVAL"); v != "" {
		c.Watch.IndexInterval = v
	}
	if v := os.Getenv("NOTEHUNT_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
}

func splitList(s string) []string {
	out := []string{}
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) expandPaths() {
	c.Root = ExpandPath(c.Root)
	c.DataDir = ExpandPath(c.DataDir)
	c.Index.Path = ExpandPath(c.Index.Path)
}

var percentVar = regexp.MustCompile(`%([A-Za-z_][A-Za-z0-9_]*)%`)

// ExpandPath expands a leading ~, $VAR or ${VAR}, and %VAR% references, then
// makes the result absolute. Unknown %VAR% references are left as written.
// An empty path stays empty.
func ExpandPath(path string) string {
	if path == "" {
		return ""
	}

	if path == "~" || strings.HasPrefix(path, "~/") || strings.HasPrefix(path, `~\`) {
		if home, err := os.UserHomeDir(); err == nil {
			path = filepath.Join(home, path[1:])
		}
	}

	path = percentVar.ReplaceAllStringFunc(path, func(ref string) string {
		if v, ok := os.LookupEnv(ref[1 : len(ref)-1]); ok {
			return v
		}
		return ref
	})
	path = os.ExpandEnv(path)

	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

// StatePath is the location of the file state table.
func (c *Config) StatePath() string {
	return filepath.Join(c.DataDir, "state.db")
}

// IndexBasePath is the index base path, before the backend extension.
func (c *Config) IndexBasePath() string {
	if c.Index.Path != "" {
		return c.Index.Path
	}
	return filepath.Join(c.DataDir, "index")
}

// LogPath is the log file location.
func (c *Config) LogPath() string {
	return filepath.Join(c.DataDir, "logs", logging.DefaultLogFile)
}

// Backend returns the parsed index backend. Validate has checked it.
func (c *Config) Backend() searchindex.Backend {
	b, err := searchindex.ParseBackend(c.Index.Backend)
	if err != nil {
		return searchindex.DefaultBackend
	}
	return b
}

// BridgeTimeout returns the parsed bridge timeout.
func (c *Config) BridgeTimeout() time.Duration {
	d, _ := time.ParseDuration(c.Pipeline.BridgeTimeout)
	return d
}

// IndexInterval returns the parsed periodic indexing interval.
func (c *Config) IndexInterval() time.Duration {
	d, _ := time.ParseDuration(c.Watch.IndexInterval)
	return d
}

// Validate checks the configuration. A bad root yields an
// ErrCodeRootInvalid error; every other problem ErrCodeConfigInvalid.
func (c *Config) Validate() error {
	info, err := os.Stat(c.Root)
	if err != nil {
		return nherrors.New(nherrors.ErrCodeRootInvalid,
			fmt.Sprintf("root %s is not accessible", c.Root), err).
			WithSuggestion("Pass an existing directory with --root")
	}
	if !info.IsDir() {
		return nherrors.New(nherrors.ErrCodeRootInvalid,
			fmt.Sprintf("root %s is not a directory", c.Root), nil).
			WithSuggestion("Pass an existing directory with --root")
	}

	if c.DataDir == "" {
		return nherrors.ConfigError("data_dir must not be empty", nil)
	}
	if c.Index.BatchSize <= 0 {
		return nherrors.ConfigError(fmt.Sprintf("index.batch_size must be positive, got %d", c.Index.BatchSize), nil)
	}
	if _, err := searchindex.ParseBackend(c.Index.Backend); err != nil {
		return nherrors.ConfigError("index.backend is invalid", err)
	}
	if c.Pipeline.QueueSize <= 0 {
		return nherrors.ConfigError(fmt.Sprintf("pipeline.queue_size must be positive, got %d", c.Pipeline.QueueSize), nil)
	}
	if err := positiveDuration("pipeline.bridge_timeout", c.Pipeline.BridgeTimeout); err != nil {
		return err
	}
	if err := positiveDuration("watch.index_interval", c.Watch.IndexInterval); err != nil {
		return err
	}
	if c.Watch.EventsBuffer < 0 {
		return nherrors.ConfigError(fmt.Sprintf("watch.events_buffer must be non-negative, got %d", c.Watch.EventsBuffer), nil)
	}
	if !logging.ValidLevel(c.Log.Level) {
		return nherrors.ConfigError(
			fmt.Sprintf("log.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Log.Level), nil)
	}
	return nil
}

func positiveDuration(key, value string) error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return nherrors.ConfigError(fmt.Sprintf("%s is not a duration: %q", key, value), err)
	}
	if d <= 0 {
		return nherrors.ConfigError(fmt.Sprintf("%s must be positive, got %s", key, value), nil)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
