package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Bot        BotConfig        `mapstructure:"bot"`
	Providers  ProvidersConfig  `mapstructure:"providers"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Memory     MemoryConfig     `mapstructure:"memory"`
	History    HistoryConfig    `mapstructure:"history"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Cache      CacheConfig      `mapstructure:"cache"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Tools      ToolsConfig      `mapstructure:"tools"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Monitoring MonitoringConfig `mapstructure:"monitoring"`
	I18n       I18nConfig       `mapstructure:"i18n"`
}

type BotConfig struct {
	Token         string `mapstructure:"token"`
	UpdateTimeout int    `mapstructure:"update_timeout"`
	Persona       string `mapstructure:"persona"`
}

type ProvidersConfig struct {
	Primary   ProviderConfig `mapstructure:"primary"`
	Secondary ProviderConfig `mapstructure:"secondary"`
}

// ProviderConfig describes one generation backend. Kind selects the client
// implementation ("gemini" or "ollama").
type ProviderConfig struct {
	Kind      string        `mapstructure:"kind"`
	BaseURL   string        `mapstructure:"base_url"`
	APIKey    string        `mapstructure:"api_key"`
	Model     string        `mapstructure:"model"`
	Timeout   time.Duration `mapstructure:"timeout"`
	RateLimit BucketConfig  `mapstructure:"rate_limit"`
}

// BucketConfig configures the per-provider token bucket.
type BucketConfig struct {
	TokensPerSecond float64 `mapstructure:"tokens_per_second"`
	Burst           int     `mapstructure:"burst"`
}

type EmbeddingConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Model   string        `mapstructure:"model"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type MemoryConfig struct {
	Path          string        `mapstructure:"path"`
	IndexBackend  string        `mapstructure:"index_backend"`
	SearchLimit   int           `mapstructure:"search_limit"`
	MinSimilarity float32       `mapstructure:"min_similarity"`
	SnapshotTTL   time.Duration `mapstructure:"snapshot_ttl"`
}

type HistoryConfig struct {
	Backend string `mapstructure:"backend"`
	Window  int    `mapstructure:"window"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type ToolsConfig struct {
	Search     SearchToolConfig     `mapstructure:"search"`
	FileSystem FileSystemToolConfig `mapstructure:"filesystem"`
}

type SearchToolConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	BaseURL    string        `mapstructure:"base_url"`
	MaxResults int           `mapstructure:"max_results"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type FileSystemToolConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Root    string `mapstructure:"root"`
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

// LoadConfig loads configuration from file and environment variables
func LoadConfig(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Environment variable overrides for secrets and deploy-specific values
	viper.BindEnv("bot.token", "BOT_TOKEN")
	viper.BindEnv("providers.primary.api_key", "GEMINI_API_KEY")
	viper.BindEnv("providers.primary.base_url", "GEMINI_BASE_URL")
	viper.BindEnv("providers.secondary.base_url", "OLLAMA_BASE_URL")
	viper.BindEnv("embedding.base_url", "OLLAMA_BASE_URL")
	viper.BindEnv("redis.password", "REDIS_PASSWORD")
	viper.BindEnv("redis.db", "REDIS_DB")

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// REDIS_HOST/REDIS_PORT override the configured address as a pair
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisPort := os.Getenv("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}

	applyDefaults(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func applyDefaults(cfg *Config) {
	if cfg.History.Window <= 0 {
		cfg.History.Window = 50
	}
	if cfg.History.Backend == "" {
		cfg.History.Backend = "redis"
	}
	if cfg.Memory.SearchLimit <= 0 {
		cfg.Memory.SearchLimit = 5
	}
	if cfg.Memory.IndexBackend == "" {
		cfg.Memory.IndexBackend = "redis"
	}
	if cfg.Memory.SnapshotTTL <= 0 {
		cfg.Memory.SnapshotTTL = 30 * time.Minute
	}
	if cfg.Providers.Primary.Timeout <= 0 {
		cfg.Providers.Primary.Timeout = 120 * time.Second
	}
	if cfg.Providers.Secondary.Timeout <= 0 {
		cfg.Providers.Secondary.Timeout = 120 * time.Second
	}
	if cfg.Embedding.Timeout <= 0 {
		cfg.Embedding.Timeout = 30 * time.Second
	}
	if cfg.Providers.Primary.RateLimit.Burst <= 0 {
		cfg.Providers.Primary.RateLimit = BucketConfig{TokensPerSecond: 1, Burst: 5}
	}
	if cfg.Providers.Secondary.RateLimit.Burst <= 0 {
		cfg.Providers.Secondary.RateLimit = BucketConfig{TokensPerSecond: 1, Burst: 5}
	}
	if cfg.Tools.Search.MaxResults <= 0 {
		cfg.Tools.Search.MaxResults = 5
	}
	if cfg.Tools.Search.Timeout <= 0 {
		cfg.Tools.Search.Timeout = 15 * time.Second
	}
	if cfg.I18n.DefaultLanguage == "" {
		cfg.I18n.DefaultLanguage = "en"
	}
	if cfg.I18n.Directory == "" {
		cfg.I18n.Directory = "configs/i18n"
	}
	if len(cfg.I18n.Languages) == 0 {
		cfg.I18n.Languages = []string{"en"}
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return fmt.Errorf("bot token is required")
	}
	if cfg.Providers.Primary.BaseURL == "" {
		return fmt.Errorf("primary provider base_url is required")
	}
	if cfg.Providers.Secondary.BaseURL == "" {
		return fmt.Errorf("secondary provider base_url is required")
	}
	if cfg.Embedding.BaseURL == "" {
		return fmt.Errorf("embedding base_url is required")
	}
	for _, backend := range []string{cfg.History.Backend, cfg.Memory.IndexBackend} {
		if backend != "redis" && backend != "memory" {
			return fmt.Errorf("unsupported storage backend: %s", backend)
		}
	}
	if strings.EqualFold(cfg.Providers.Primary.Kind, cfg.Providers.Secondary.Kind) &&
		cfg.Providers.Primary.BaseURL == cfg.Providers.Secondary.BaseURL {
		return fmt.Errorf("primary and secondary providers must differ")
	}
	return nil
}
