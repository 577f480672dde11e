// Package config loads and validates supervisor configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Classification strategy names accepted in configuration.
const (
	StrategyLogTail  = "logtail"
	StrategyExitCode = "exitcode"
)

// Config captures all service configuration knobs loaded via Viper. The
// retry loop itself never reads it; cmd translates the relevant parts into
// an explicit supervisor.RetryPolicy at construction time.
type Config struct {
	Supervisor SupervisorConfig `mapstructure:"supervisor"`
	Engine     EngineConfig     `mapstructure:"engine"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SupervisorConfig governs the retry-and-resume loop.
type SupervisorConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Delay       time.Duration `mapstructure:"delay"`
	WorkRoot    string        `mapstructure:"work_root"`
	Marker      string        `mapstructure:"marker"`
	TailLines   int           `mapstructure:"tail_lines"`
	Strategy    string        `mapstructure:"strategy"`
}

// EngineConfig points at the external crawl engine.
type EngineConfig struct {
	Binary    string   `mapstructure:"binary"`
	Image     string   `mapstructure:"image"`
	ExtraArgs []string `mapstructure:"extra_args"`
}

// ServerConfig controls the optional live-status HTTP server. An empty
// address disables it.
type ServerConfig struct {
	StatusAddr string `mapstructure:"status_addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLSUP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("supervisor.max_attempts", 10)
	v.SetDefault("supervisor.delay", "60s")
	v.SetDefault("supervisor.work_root", "data/collections")
	v.SetDefault("supervisor.marker", "crawl interrupted")
	v.SetDefault("supervisor.tail_lines", 10)
	v.SetDefault("supervisor.strategy", StrategyLogTail)
	v.SetDefault("engine.binary", "docker")
	v.SetDefault("engine.image", "webrecorder/browsertrix-crawler:latest")
	v.SetDefault("server.status_addr", "")
	v.SetDefault("logging.development", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Supervisor.MaxAttempts <= 0 {
		return fmt.Errorf("supervisor.max_attempts must be > 0")
	}
	if c.Supervisor.Delay < 0 {
		return fmt.Errorf("supervisor.delay must be >= 0")
	}
	if c.Supervisor.WorkRoot == "" {
		return fmt.Errorf("supervisor.work_root must be set")
	}
	if c.Supervisor.TailLines <= 0 {
		return fmt.Errorf("supervisor.tail_lines must be > 0")
	}
	switch c.Supervisor.Strategy {
	case StrategyLogTail, StrategyExitCode:
	default:
		return fmt.Errorf("supervisor.strategy must be %q or %q", StrategyLogTail, StrategyExitCode)
	}
	if c.Engine.Image == "" {
		return fmt.Errorf("engine.image must be set")
	}
	if c.Engine.Binary == "" {
		return fmt.Errorf("engine.binary must be set")
	}
	return nil
}
