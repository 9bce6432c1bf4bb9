package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Tavily    TavilyConfig    `yaml:"tavily" mapstructure:"tavily"`
	CoinGecko CoinGeckoConfig `yaml:"coingecko" mapstructure:"coingecko"`
	OpenBB    OpenBBConfig    `yaml:"openbb" mapstructure:"openbb"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// CacheConfig configures the company-data cache backend.
type CacheConfig struct {
	// Driver selects the backend: postgres, sqlite, or redis.
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	RedisAddr   string `yaml:"redis_addr" mapstructure:"redis_addr"`
	RedisDB     int    `yaml:"redis_db" mapstructure:"redis_db"`
	// LockGraceSecs is how long a persisted fetch lock is honored before it
	// is treated as abandoned and may be stolen.
	LockGraceSecs int `yaml:"lock_grace_secs" mapstructure:"lock_grace_secs"`
}

// TavilyConfig holds research provider API settings.
type TavilyConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// CoinGeckoConfig holds crypto-price provider API settings.
type CoinGeckoConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	// RateEverySecs spaces requests to stay inside the free-tier limit.
	RateEverySecs float64 `yaml:"rate_every_secs" mapstructure:"rate_every_secs"`
}

// OpenBBConfig holds financial-metrics provider API settings.
type OpenBBConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// FetchConfig configures the fetch orchestrator.
type FetchConfig struct {
	// SymbolsFile optionally overlays the built-in name-to-symbol table.
	SymbolsFile string `yaml:"symbols_file" mapstructure:"symbols_file"`
	// RetryAttempts is the per-provider-call attempt count inside one task.
	RetryAttempts int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("PORTFOLIO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("cache.driver", "sqlite")
	v.SetDefault("cache.database_url", "portfolio.db")
	v.SetDefault("cache.redis_addr", "localhost:6379")
	v.SetDefault("cache.lock_grace_secs", 300)
	v.SetDefault("tavily.base_url", "https://api.tavily.com")
	v.SetDefault("coingecko.base_url", "https://api.coingecko.com/api/v3")
	v.SetDefault("coingecko.rate_every_secs", 2.0)
	v.SetDefault("openbb.base_url", "https://api.openbb.co/api/v1")
	v.SetDefault("fetch.retry_attempts", 2)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
