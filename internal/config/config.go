// Package config loads server settings from defaults and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v3"
)

type Config struct {
	Addr      string        `yaml:"addr"`
	DBPath    string        `yaml:"db"`
	StaticDir string        `yaml:"static_dir"`
	Workers   int           `yaml:"workers"`
	Log       LogConfig     `yaml:"log"`
	Control   ControlConfig `yaml:"control"`
	Remote    RemoteConfig  `yaml:"remote"`
	Tasks     TaskConfig    `yaml:"tasks"`
}

type LogConfig struct {
	Level   string `yaml:"level"`
	Console bool   `yaml:"console"`
}

type ControlConfig struct {
	PingInterval     time.Duration `yaml:"ping_interval"`
	PongTimeout      time.Duration `yaml:"pong_timeout"`
	RatePerSec       float64       `yaml:"rate_per_sec"`
	Burst            int           `yaml:"burst"`
	MaxMessageBytes  int64         `yaml:"max_message_bytes"`
	AllowedOrigins   []string      `yaml:"allowed_origins"`
	KeepOnDisconnect bool          `yaml:"keep_on_disconnect"`
}

const (
	RemoteHTTP = "http"
	RemoteFake = "fake"
)

type RemoteConfig struct {
	Mode    string        `yaml:"mode"`
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

type TaskConfig struct {
	DefaultDelay time.Duration `yaml:"default_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

func Default() Config {
	return Config{
		Addr:    ":8080",
		DBPath:  "pulsecast.db",
		Workers: 8,
		Log:     LogConfig{Level: "info", Console: true},
		Control: ControlConfig{
			PingInterval:    30 * time.Second,
			PongTimeout:     45 * time.Second,
			RatePerSec:      5,
			Burst:           10,
			MaxMessageBytes: 4 << 20,
		},
		Remote: RemoteConfig{Mode: RemoteHTTP, Timeout: 30 * time.Second},
		Tasks:  TaskConfig{DefaultDelay: 10 * time.Second, MaxDelay: 24 * time.Hour},
	}
}

// Load returns the defaults overlaid with the file at path. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("yaml unmarshal: %w", err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.Addr == "" {
		errs = append(errs, errors.New("addr is required"))
	}
	if c.Workers <= 0 {
		errs = append(errs, errors.New("workers must be positive"))
	}
	if c.Control.PingInterval <= 0 {
		errs = append(errs, errors.New("control.ping_interval must be positive"))
	}
	if c.Control.PongTimeout <= c.Control.PingInterval {
		errs = append(errs, errors.New("control.pong_timeout must exceed control.ping_interval"))
	}
	if c.Tasks.DefaultDelay < time.Second {
		errs = append(errs, errors.New("tasks.default_delay must be at least 1s"))
	}
	if c.Tasks.MaxDelay != 0 && c.Tasks.MaxDelay < c.Tasks.DefaultDelay {
		errs = append(errs, errors.New("tasks.max_delay must not be below tasks.default_delay"))
	}
	switch c.Remote.Mode {
	case RemoteHTTP:
		if c.Remote.BaseURL == "" {
			errs = append(errs, errors.New("remote.base_url is required in http mode"))
		}
	case RemoteFake:
	default:
		errs = append(errs, fmt.Errorf("unknown remote.mode %q", c.Remote.Mode))
	}
	return errors.Join(errs...)
}
