package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/yiblet/qrscan/internal/capture"
	"github.com/yiblet/qrscan/internal/export"
	"github.com/yiblet/qrscan/internal/logging"
	"github.com/yiblet/qrscan/internal/store"
)

// EnvPrefix prefixes every environment override, e.g. QRSCAN_CAMERA_FPS.
const EnvPrefix = "QRSCAN_"

// DefaultServeAddr is where the HTTP surface listens by default.
const DefaultServeAddr = "127.0.0.1:8765"

// Config represents the qrscan configuration
type Config struct {
	DBPath         string       `yaml:"db_path,omitempty" env:"DB_PATH"`
	ExportDir      string       `yaml:"export_dir,omitempty" env:"EXPORT_DIR"`
	ExportFormat   string       `yaml:"export_format" env:"EXPORT_FORMAT"`
	ExportSchedule string       `yaml:"export_schedule,omitempty" env:"EXPORT_SCHEDULE"`
	TimeFormat     string       `yaml:"time_format" env:"TIME_FORMAT"`
	ServeAddr      string       `yaml:"serve_addr" env:"SERVE_ADDR"`
	Camera         CameraConfig `yaml:"camera" envPrefix:"CAMERA_"`
	Log            LogConfig    `yaml:"log" envPrefix:"LOG_"`
}

// CameraConfig controls frame capture.
type CameraConfig struct {
	FPS          int           `yaml:"fps" env:"FPS"`
	Box          int           `yaml:"box" env:"BOX"`
	Policy       string        `yaml:"policy" env:"POLICY"`
	Device       string        `yaml:"device,omitempty" env:"DEVICE"`
	AutoStart    bool          `yaml:"auto_start" env:"AUTO_START"`
	Width        int           `yaml:"width" env:"WIDTH"`
	Height       int           `yaml:"height" env:"HEIGHT"`
	StartTimeout time.Duration `yaml:"start_timeout" env:"START_TIMEOUT"`
}

// LogConfig controls logging.
type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL"`
	Format string `yaml:"format" env:"FORMAT"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		ExportFormat: export.DefaultFormat,
		TimeFormat:   store.DefaultTimeLayout,
		ServeAddr:    DefaultServeAddr,
		Camera: CameraConfig{
			FPS:          capture.DefaultFPS,
			Box:          capture.DefaultBox,
			Policy:       string(capture.PolicyEnvironment),
			Width:        capture.DefaultWidth,
			Height:       capture.DefaultHeight,
			StartTimeout: capture.DefaultStartTimeout,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Capture converts the camera section into a capture.Config.
func (c *Config) Capture() capture.Config {
	return capture.Config{
		FPS:          c.Camera.FPS,
		Box:          c.Camera.Box,
		Policy:       capture.Policy(c.Camera.Policy),
		DeviceID:     c.Camera.Device,
		Width:        c.Camera.Width,
		Height:       c.Camera.Height,
		StartTimeout: c.Camera.StartTimeout,
	}
}

// Logging converts the log section into a logging.Config.
func (c *Config) Logging() logging.Config {
	return logging.Config{Level: c.Log.Level, Format: c.Log.Format}
}

// ConfigManager manages configuration persistence
type ConfigManager struct {
	configPath string
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() (*ConfigManager, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user home directory: %w", err)
	}

	configPath := filepath.Join(homeDir, ".config", "qrscan", "config.yaml")

	return &ConfigManager{
		configPath: configPath,
	}, nil
}

// NewConfigManagerWithPath creates a config manager with custom config path
func NewConfigManagerWithPath(configPath string) *ConfigManager {
	return &ConfigManager{
		configPath: configPath,
	}
}

// Load reads the configuration file, or returns the defaults if it doesn't
// exist. Keys missing from the file keep their default values.
func (cm *ConfigManager) Load() (*Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(cm.configPath)
	if errors.Is(err, fs.ErrNotExist) {
		return config, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cm.validateAndSetDefaults(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// LoadEffective loads the file, then applies .env files (missing ones are
// ignored) and QRSCAN_* environment variables on top. The result is what a
// command runs with before flags are applied.
func (cm *ConfigManager) LoadEffective(dotenvFiles ...string) (*Config, error) {
	config, err := cm.Load()
	if err != nil {
		return nil, err
	}

	for _, f := range dotenvFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	if err := ApplyEnv(config, nil); err != nil {
		return nil, err
	}

	if err := cm.validateAndSetDefaults(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// ApplyEnv overrides config fields from QRSCAN_* variables. A nil environ
// reads the process environment.
func ApplyEnv(config *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(config, opts); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	return nil
}

// Save writes the configuration to file
func (cm *ConfigManager) Save(config *Config) error {
	if err := cm.validateAndSetDefaults(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	configDir := filepath.Dir(cm.configPath)
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(config)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(cm.configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// validateAndSetDefaults validates configuration and sets defaults for empty fields
func (cm *ConfigManager) validateAndSetDefaults(config *Config) error {
	return Validate(config)
}

// Validate checks every field and fills empty strings with defaults.
func Validate(config *Config) error {
	def := DefaultConfig()

	if config.ExportFormat == "" {
		config.ExportFormat = def.ExportFormat
	}
	if _, err := export.ForFormat(config.ExportFormat); err != nil {
		return fmt.Errorf("export_format: %w", err)
	}

	if config.ExportSchedule != "" {
		if err := export.ValidateSchedule(config.ExportSchedule); err != nil {
			return fmt.Errorf("export_schedule: %w", err)
		}
	}

	if config.TimeFormat == "" {
		config.TimeFormat = def.TimeFormat
	}
	if config.ServeAddr == "" {
		config.ServeAddr = def.ServeAddr
	}

	if config.Camera.FPS <= 0 || config.Camera.FPS > 120 {
		return fmt.Errorf("camera.fps must be between 1 and 120")
	}
	if config.Camera.Box < 0 {
		return fmt.Errorf("camera.box cannot be negative")
	}
	policy, err := capture.ParsePolicy(config.Camera.Policy)
	if err != nil {
		return fmt.Errorf("camera.policy: %w", err)
	}
	config.Camera.Policy = string(policy)
	if config.Camera.Width <= 0 || config.Camera.Height <= 0 {
		return fmt.Errorf("camera.width and camera.height must be greater than 0")
	}
	if config.Camera.StartTimeout <= 0 {
		return fmt.Errorf("camera.start_timeout must be greater than 0")
	}

	if config.Log.Level == "" {
		config.Log.Level = def.Log.Level
	}
	if config.Log.Format == "" {
		config.Log.Format = def.Log.Format
	}
	if _, err := logging.New(io.Discard, config.Logging()); err != nil {
		return fmt.Errorf("log: %w", err)
	}

	return nil
}

// GetConfigPath returns the path to the config file
func (cm *ConfigManager) GetConfigPath() string {
	return cm.configPath
}

type field struct {
	get func(*Config) string
	set func(*Config, string) error
}

func stringField(p func(*Config) *string) field {
	return field{
		get: func(c *Config) string { return *p(c) },
		set: func(c *Config, v string) error { *p(c) = v; return nil },
	}
}

func intField(key string, p func(*Config) *int) field {
	return field{
		get: func(c *Config) string { return strconv.Itoa(*p(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid integer value for %s: %s", key, v)
			}
			*p(c) = n
			return nil
		},
	}
}

var fields = map[string]field{
	"db_path":         stringField(func(c *Config) *string { return &c.DBPath }),
	"export_dir":      stringField(func(c *Config) *string { return &c.ExportDir }),
	"export_format":   stringField(func(c *Config) *string { return &c.ExportFormat }),
	"export_schedule": stringField(func(c *Config) *string { return &c.ExportSchedule }),
	"time_format":     stringField(func(c *Config) *string { return &c.TimeFormat }),
	"serve_addr":      stringField(func(c *Config) *string { return &c.ServeAddr }),
	"camera.fps":      intField("camera.fps", func(c *Config) *int { return &c.Camera.FPS }),
	"camera.box":      intField("camera.box", func(c *Config) *int { return &c.Camera.Box }),
	"camera.policy":   stringField(func(c *Config) *string { return &c.Camera.Policy }),
	"camera.device":   stringField(func(c *Config) *string { return &c.Camera.Device }),
	"camera.width":    intField("camera.width", func(c *Config) *int { return &c.Camera.Width }),
	"camera.height":   intField("camera.height", func(c *Config) *int { return &c.Camera.Height }),
	"camera.auto_start": {
		get: func(c *Config) string { return strconv.FormatBool(c.Camera.AutoStart) },
		set: func(c *Config, v string) error {
			switch v {
			case "true":
				c.Camera.AutoStart = true
			case "false":
				c.Camera.AutoStart = false
			default:
				return fmt.Errorf("invalid boolean value for camera.auto_start: %s (must be 'true' or 'false')", v)
			}
			return nil
		},
	},
	"camera.start_timeout": {
		get: func(c *Config) string { return c.Camera.StartTimeout.String() },
		set: func(c *Config, v string) error {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("invalid duration for camera.start_timeout: %s", v)
			}
			c.Camera.StartTimeout = d
			return nil
		},
	},
	"log.level":  stringField(func(c *Config) *string { return &c.Log.Level }),
	"log.format": stringField(func(c *Config) *string { return &c.Log.Format }),
}

// Keys returns every configuration key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Update modifies a specific configuration value
func (cm *ConfigManager) Update(key, value string) error {
	f, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown configuration key: %s", key)
	}

	config, err := cm.Load()
	if err != nil {
		return err
	}

	if err := f.set(config, value); err != nil {
		return err
	}

	return cm.Save(config)
}

// Get returns the value for a specific configuration key
func (cm *ConfigManager) Get(key string) (string, error) {
	f, ok := fields[key]
	if !ok {
		return "", fmt.Errorf("unknown configuration key: %s", key)
	}

	config, err := cm.Load()
	if err != nil {
		return "", err
	}

	return display(f.get(config)), nil
}

// List returns all configuration keys and values
func (cm *ConfigManager) List() (map[string]string, error) {
	config, err := cm.Load()
	if err != nil {
		return nil, err
	}

	result := make(map[string]string, len(fields))
	for k, f := range fields {
		result[k] = display(f.get(config))
	}
	return result, nil
}

func display(v string) string {
	if v == "" {
		return "[default]"
	}
	return v
}
