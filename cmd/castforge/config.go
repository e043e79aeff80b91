package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// =============================================================================
// Config Types
// =============================================================================

// Config holds all application configuration.
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Device    DeviceConfig    `mapstructure:"device"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig holds project store configuration.
type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

// DeviceConfig holds device client configuration.
type DeviceConfig struct {
	Port        int           `mapstructure:"port"`
	InfoTimeout time.Duration `mapstructure:"info_timeout"`
	OpTimeout   time.Duration `mapstructure:"op_timeout"`
	StagingDir  string        `mapstructure:"staging_dir"`
}

// DiscoveryConfig holds network discovery configuration.
type DiscoveryConfig struct {
	Window        time.Duration `mapstructure:"window"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
	ChunkSize     int           `mapstructure:"chunk_size"`
	MulticastAddr string        `mapstructure:"multicast_addr"`
	SearchTarget  string        `mapstructure:"search_target"`
}

// PipelineConfig holds deployment pipeline timeouts.
type PipelineConfig struct {
	TaskTimeout               time.Duration `mapstructure:"task_timeout"`
	DeployTimeout             time.Duration `mapstructure:"deploy_timeout"`
	DeployTimeoutSkippedBuild time.Duration `mapstructure:"deploy_timeout_skipped_build"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// =============================================================================
// Loading
// =============================================================================

// LoadConfig loads configuration from the given file (optional), environment
// variables (CASTFORGE_*), and defaults.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("database.dsn", defaultDSN())
	v.SetDefault("device.port", 8060)
	v.SetDefault("device.info_timeout", 3*time.Second)
	v.SetDefault("device.op_timeout", 5*time.Minute)
	v.SetDefault("discovery.window", 5*time.Second)
	v.SetDefault("discovery.probe_timeout", 2*time.Second)
	v.SetDefault("discovery.chunk_size", 50)
	v.SetDefault("discovery.multicast_addr", "239.255.255.250:1900")
	v.SetDefault("discovery.search_target", "castforge:device")
	v.SetDefault("pipeline.task_timeout", 5*time.Minute)
	v.SetDefault("pipeline.deploy_timeout", 5*time.Minute)
	v.SetDefault("pipeline.deploy_timeout_skipped_build", 3*time.Minute)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetEnvPrefix("CASTFORGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
		// A missing default config file is fine.
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

func configDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "castforge")
	}
	return "."
}

func defaultDSN() string {
	return filepath.Join(configDir(), "castforge.db")
}

// =============================================================================
// Logging
// =============================================================================

// SetupLogger creates the application logger from config.
func SetupLogger(cfg *Config) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if strings.ToLower(cfg.Log.Format) == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}
