package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/viper"

	sharedConfig "github.com/inferpay/inferpay/internal/shared/config"
)

type Config struct {
	Server    sharedConfig.ServerConfig    `mapstructure:"server"`
	Database  sharedConfig.DatabaseConfig  `mapstructure:"database"`
	Logger    sharedConfig.LoggerConfig    `mapstructure:"logger"`
	Redis     sharedConfig.RedisConfig     `mapstructure:"redis"`
	Session   sharedConfig.SessionConfig   `mapstructure:"session"`
	Grant     sharedConfig.GrantConfig     `mapstructure:"grant"`
	RateLimit sharedConfig.RateLimitConfig `mapstructure:"rate_limit"`
	Recovery  sharedConfig.RecoveryConfig  `mapstructure:"recovery"`
	Analytics sharedConfig.AnalyticsConfig `mapstructure:"analytics"`
	Ledger    sharedConfig.LedgerConfig    `mapstructure:"ledger"`
	Hosts     sharedConfig.HostsConfig     `mapstructure:"hosts"`
	Wallet    sharedConfig.WalletConfig    `mapstructure:"wallet"`
}

var (
	appConfig   *Config
	appConfigMu sync.RWMutex
)

// Load loads configuration from file and environment variables
func Load(env string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath("../configs")
	viper.AddConfigPath("../../configs")

	viper.SetEnvPrefix("INFERPAY")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults plus env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if env != "" && env != "default" {
		viper.Set("server.mode", env)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	appConfigMu.Lock()
	appConfig = &config
	appConfigMu.Unlock()

	return &config, nil
}

// Get returns the loaded configuration
func Get() *Config {
	appConfigMu.RLock()
	defer appConfigMu.RUnlock()
	return appConfig
}

// setDefaults sets default configuration values. Amounts are in the payment
// token's smallest unit (6 decimals: 2_000_000 = 2.00).
func setDefaults() {
	// Server defaults
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "debug")

	// Database defaults
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.path", "inferpay.db")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
	viper.SetDefault("database.username", "root")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.database", "inferpay_dev")
	viper.SetDefault("database.max_idle_conns", 10)
	viper.SetDefault("database.max_open_conns", 100)
	viper.SetDefault("database.conn_max_lifetime", 60)

	// Logger defaults
	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")
	viper.SetDefault("logger.output_path", "stdout")

	// Redis defaults (optional: distributed rate limiting and snapshot store)
	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Session policy defaults
	viper.SetDefault("session.deposit_amount", 2_000_000)
	viper.SetDefault("session.default_price_per_token", 316)
	viper.SetDefault("session.checkpoint_interval", 100)
	viper.SetDefault("session.duration_minutes", 60)
	viper.SetDefault("session.max_tokens_per_message", 1000)
	viper.SetDefault("session.host_share_bps", 9000)
	viper.SetDefault("session.treasury_address", "")

	// Spend grant defaults: weekly renewal period, 30-day validity
	viper.SetDefault("grant.period_seconds", 604800)
	viper.SetDefault("grant.duration_seconds", 2592000)

	// Rate limit defaults
	viper.SetDefault("rate_limit.message_capacity", 20)
	viper.SetDefault("rate_limit.message_window_seconds", 60)
	viper.SetDefault("rate_limit.session_start_capacity", 5)
	viper.SetDefault("rate_limit.session_start_window_seconds", 3600)
	viper.SetDefault("rate_limit.discovery_capacity", 10)
	viper.SetDefault("rate_limit.discovery_window_seconds", 60)
	viper.SetDefault("rate_limit.sweep_interval_seconds", 300)

	// Recovery defaults
	viper.SetDefault("recovery.max_age_hours", 24)

	// Analytics defaults
	viper.SetDefault("analytics.max_events", 200)
	viper.SetDefault("analytics.max_summaries", 50)

	// Ledger defaults
	viper.SetDefault("ledger.relay_url", "http://localhost:8545")
	viper.SetDefault("ledger.chain_id", 8453)
	viper.SetDefault("ledger.max_attempts", 4)
	viper.SetDefault("ledger.backoff_base_ms", 500)
	viper.SetDefault("ledger.backoff_max_ms", 8000)
	viper.SetDefault("ledger.call_timeout_seconds", 30)
	viper.SetDefault("ledger.settle_retry_minutes", 5)

	// Host registry defaults
	viper.SetDefault("hosts.registry_url", "http://localhost:8090")
	viper.SetDefault("hosts.prompt_timeout_seconds", 120)

	// Wallet bridge defaults
	viper.SetDefault("wallet.bridge_url", "http://localhost:8070")
}
