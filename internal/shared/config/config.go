package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/modules/bundle/domain"
	"github.com/reshetovitsme/tracker-bundle-bot/internal/shared/errors"
	"github.com/samber/lo"
	"github.com/samber/oops"
)

type Config struct {
	TelegramBotToken string               `koanf:"telegram_bot_token"`
	TelegramAPIURL   string               `koanf:"telegram_api_url"`
	GitHubToken      string               `koanf:"github_token"`
	GitHubOwner      string               `koanf:"github_owner"`
	GitHubRepo       string               `koanf:"github_repo"`
	GitHubAPIURL     string               `koanf:"github_api_url"`
	GitHubWebURL     string               `koanf:"github_web_url"`
	StorageDriver    domain.StorageDriver `koanf:"storage_driver"`
	StoragePath      string               `koanf:"storage_path"`
	HTTPPort         string               `koanf:"http_port"`
	TickSeconds      int                  `koanf:"tick_seconds"`
	DefaultInterval  int                  `koanf:"default_interval"`
	MessageLimit     int                  `koanf:"message_limit"`
	Timezone         string               `koanf:"timezone"`
	AppEnv           domain.AppEnv        `koanf:"app_env"`

	// Location is resolved from Timezone
	Location *time.Location `koanf:"-"`
}

var defaults = map[string]any{
	"telegram_api_url": "https://api.telegram.org",
	"github_web_url":   "https://github.com",
	"storage_driver":   "sqlite",
	"storage_path":     "./data",
	"http_port":        "8080",
	"tick_seconds":     60,
	"default_interval": domain.DefaultInterval,
	"message_limit":    4096,
	"timezone":         "Asia/Tokyo",
	"app_env":          "production",
}

// Load reads config from the working directory and the environment
func Load() (*Config, error) {
	return LoadFrom(".")
}

// LoadFrom reads the first config file found in dir, then environment
// variables, then fills defaults for anything still unset
func LoadFrom(dir string) (*Config, error) {
	k := koanf.New(".")

	configFiles := []string{
		"config.yaml",
		"config.yml",
		"config.json",
		"config.toml",
	}

	configFile, found := lo.Find(configFiles, func(name string) bool {
		_, err := os.Stat(filepath.Join(dir, name))
		return err == nil
	})

	if found {
		var parser koanf.Parser
		ext := filepath.Ext(configFile)

		switch ext {
		case ".yaml", ".yml":
			parser = yaml.Parser()
		case ".json":
			parser = json.Parser()
		case ".toml":
			parser = toml.Parser()
		default:
			return nil, oops.Errorf("unsupported config file extension: %s", ext)
		}

		if err := k.Load(file.Provider(filepath.Join(dir, configFile)), parser); err != nil {
			return nil, oops.With("config_file", configFile).Wrap(err)
		}
	}

	// Environment variables override config file values
	if err := k.Load(env.Provider("", ".", func(s string) string {
		return strings.ToLower(s)
	}), nil); err != nil {
		return nil, oops.With("context", "loading environment variables").Wrap(err)
	}

	for key, value := range defaults {
		if !k.Exists(key) || k.String(key) == "" {
			k.Set(key, value)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.With("context", "unmarshaling config").Wrap(err)
	}

	if err := cfg.resolve(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) resolve() error {
	if c.TelegramBotToken == "" {
		return errors.ErrMissingBotToken
	}
	if c.GitHubOwner == "" || c.GitHubRepo == "" {
		return errors.ErrMissingRepo
	}

	driver, err := domain.ParseStorageDriver(string(c.StorageDriver))
	if err != nil {
		return oops.Code(errors.CodeValidation).With("storage_driver", c.StorageDriver).Wrap(err)
	}
	c.StorageDriver = driver

	if appEnv, err := domain.ParseAppEnv(string(c.AppEnv)); err == nil {
		c.AppEnv = appEnv
	} else {
		c.AppEnv = domain.AppEnvProduction
	}

	if err := domain.ValidateInterval(c.DefaultInterval); err != nil {
		return oops.With("default_interval", c.DefaultInterval).Wrap(err)
	}
	if c.TickSeconds <= 0 {
		return oops.Code(errors.CodeValidation).With("tick_seconds", c.TickSeconds).Errorf("tick_seconds must be positive")
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return oops.With("timezone", c.Timezone).Wrap(err)
	}
	c.Location = loc
	return nil
}

// Tick is the refresh scheduler period
func (c *Config) Tick() time.Duration {
	return time.Duration(c.TickSeconds) * time.Second
}

// IsDebug reports whether debug logging should be enabled
func (c *Config) IsDebug() bool {
	return c.AppEnv == domain.AppEnvLocal || c.AppEnv == domain.AppEnvDevelopment
}
