package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix             = "RAIDTRAIN"
	defaultHTTPAddress    = "0.0.0.0:8080"
	defaultDatabasePath   = "raidtrain.db"
	defaultLogLevel       = "info"
	defaultEndGraceSecs   = 60
	defaultChoicePageSize = 3
)

// AppConfig captures runtime configuration for the coordinator service.
type AppConfig struct {
	HTTPAddress    string
	DatabasePath   string
	LogLevel       string
	EndGrace       time.Duration
	ChoicePageSize int
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("train.end_grace_seconds", defaultEndGraceSecs)
	configViper.SetDefault("train.choice_page_size", defaultChoicePageSize)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:    configViper.GetString("http.address"),
		DatabasePath:   configViper.GetString("database.path"),
		LogLevel:       configViper.GetString("log.level"),
		EndGrace:       time.Duration(configViper.GetInt("train.end_grace_seconds")) * time.Second,
		ChoicePageSize: configViper.GetInt("train.choice_page_size"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.DatabasePath) == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.EndGrace < 0 {
		return fmt.Errorf("train.end_grace_seconds must not be negative")
	}
	if c.ChoicePageSize < 1 {
		return fmt.Errorf("train.choice_page_size must be at least 1")
	}
	return nil
}
