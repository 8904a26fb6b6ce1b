// Package config loads vimy-builder settings from a YAML file, a .env file
// and VIMY_-prefixed environment variables.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config is the main configuration struct combining all sub-configs
type Config struct {
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Economy   EconomyConfig   `mapstructure:"economy"`
	Power     PowerConfig     `mapstructure:"power"`
	Stockpile StockpileConfig `mapstructure:"stockpile"`
	IPC       IPCConfig       `mapstructure:"ipc"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Journal   JournalConfig   `mapstructure:"journal"`
}

// LoadConfig loads configuration with priority env > file > defaults. An
// empty configPath searches ./config.yaml, ./configs/config.yaml and
// /etc/vimy/config.yaml; a missing file is not an error.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/vimy")
	}

	v.SetEnvPrefix("VIMY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Booleans that default to true cannot be told apart from "unset" after
	// unmarshalling, so they get viper defaults instead.
	v.SetDefault("economy.loss_correction", true)

	// AutomaticEnv only applies to keys viper already knows about.
	for _, key := range envKeys {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	SetDefaults(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// envKeys are the settings most often overridden from the environment.
var envKeys = []string{
	"catalog.path",
	"ipc.socket",
	"logging.level",
	"logging.format",
	"metrics.enabled",
	"metrics.port",
	"journal.enabled",
	"journal.type",
	"journal.url",
	"journal.path",
	"journal.trace_dir",
	"scheduler.seed",
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.Economy.LossCorrection = true
	SetDefaults(cfg)
	return cfg
}
