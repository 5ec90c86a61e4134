package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Chat       ChatConfig       `mapstructure:"chat"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

// ChatConfig holds the conversation engine tunables.
type ChatConfig struct {
	MinInterval       time.Duration `mapstructure:"min_interval"`
	MaxInterval       time.Duration `mapstructure:"max_interval"`
	ResponseChance    float64       `mapstructure:"response_chance"`
	DefaultTokenLimit int           `mapstructure:"default_token_limit"`
	ContextMessages   int           `mapstructure:"context_messages"`
	AutoStartRoom     string        `mapstructure:"auto_start_room"`
}

type StorageConfig struct {
	// Remote selects the record store backend: "http", "redis" or "none".
	Remote string          `mapstructure:"remote"`
	HTTP   HTTPStoreConfig `mapstructure:"http"`
	Redis  RedisConfig     `mapstructure:"redis"`
	// File backs the built-in record endpoint when serving is enabled.
	File FileStoreConfig `mapstructure:"file"`
}

type HTTPStoreConfig struct {
	URL     string        `mapstructure:"url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Key      string `mapstructure:"key"`
}

type FileStoreConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
	Directory       string   `mapstructure:"directory"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	setDefaults()

	viper.AutomaticEnv()
	viper.BindEnv("storage.redis.addr", "REDIS_ADDR")
	viper.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	viper.BindEnv("storage.http.url", "RECORD_STORE_URL")

	// A missing config file is fine, defaults and env cover everything.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("chat.min_interval", 3*time.Second)
	viper.SetDefault("chat.max_interval", 6*time.Second)
	viper.SetDefault("chat.response_chance", 0.7)
	viper.SetDefault("chat.default_token_limit", 200)
	viper.SetDefault("chat.context_messages", 5)

	viper.SetDefault("storage.remote", "none")
	viper.SetDefault("storage.http.timeout", 10*time.Second)
	viper.SetDefault("storage.redis.key", "parley:record")
	viper.SetDefault("storage.file.path", "data/group_messages.json")

	viper.SetDefault("rate_limit.enabled", true)
	viper.SetDefault("rate_limit.requests_per_minute", 20)
	viper.SetDefault("rate_limit.burst", 5)

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.output", "stdout")

	viper.SetDefault("monitoring.metrics.enabled", false)
	viper.SetDefault("monitoring.metrics.port", 9090)
	viper.SetDefault("monitoring.metrics.path", "/metrics")

	viper.SetDefault("i18n.default_language", "en")
	viper.SetDefault("i18n.languages", []string{"en"})
}

func validateConfig(cfg *Config) error {
	if cfg.Chat.MaxInterval <= cfg.Chat.MinInterval {
		return fmt.Errorf("chat.max_interval must be greater than chat.min_interval")
	}
	if cfg.Chat.ResponseChance < 0 {
		return fmt.Errorf("chat.response_chance must not be negative")
	}
	switch cfg.Storage.Remote {
	case "http", "redis", "none":
	default:
		return fmt.Errorf("unsupported storage.remote: %s", cfg.Storage.Remote)
	}
	if cfg.Storage.Remote == "redis" && cfg.Storage.Redis.Addr == "" {
		return fmt.Errorf("storage.redis.addr is required for the redis backend")
	}
	if cfg.Storage.Remote == "http" && cfg.Storage.HTTP.URL == "" {
		return fmt.Errorf("storage.http.url is required for the http backend")
	}
	return nil
}
