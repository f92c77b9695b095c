package config

import (
	"fmt"
	"time"
)

type ServerConfig struct {
	Host           string   `mapstructure:"host"`
	Port           int      `mapstructure:"port"`
	Mode           string   `mapstructure:"mode"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

func (s *ServerConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	// Driver selects the backing store: "sqlite" or "mysql".
	Driver          string `mapstructure:"driver"`
	Path            string `mapstructure:"path"` // sqlite file path
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Username        string `mapstructure:"username"`
	Password        string `mapstructure:"password"`
	Database        string `mapstructure:"database"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

func (d *DatabaseConfig) GetMySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.Username, d.Password, d.Host, d.Port, d.Database)
}

type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	OutputPath string `mapstructure:"output_path"`
	Debug      bool   `mapstructure:"debug"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (r *RedisConfig) GetAddr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// SessionConfig holds the metered-session policy constants. Amounts are in
// the payment token's smallest unit (6 decimals: 1.00 = 1_000_000).
type SessionConfig struct {
	DepositAmount        int64 `mapstructure:"deposit_amount"`
	DefaultPricePerToken int64 `mapstructure:"default_price_per_token"`
	CheckpointInterval   int64 `mapstructure:"checkpoint_interval"`
	DurationMinutes      int   `mapstructure:"duration_minutes"`
	// MaxTokensPerMessage bounds the projected cost of the next exchange;
	// a session ends before a message could breach the deposit.
	MaxTokensPerMessage int64  `mapstructure:"max_tokens_per_message"`
	HostShareBps        int64  `mapstructure:"host_share_bps"`
	TreasuryAddress     string `mapstructure:"treasury_address"`
}

func (s *SessionConfig) Duration() time.Duration {
	return time.Duration(s.DurationMinutes) * time.Minute
}

// GrantConfig controls spend pre-authorization construction.
type GrantConfig struct {
	PeriodSeconds   int64 `mapstructure:"period_seconds"`
	DurationSeconds int64 `mapstructure:"duration_seconds"`
}

// RateLimitConfig holds per-kind fixed-window capacities.
type RateLimitConfig struct {
	MessageCapacity        int `mapstructure:"message_capacity"`
	MessageWindowSeconds   int `mapstructure:"message_window_seconds"`
	SessionStartCapacity   int `mapstructure:"session_start_capacity"`
	SessionStartWindowSecs int `mapstructure:"session_start_window_seconds"`
	DiscoveryCapacity      int `mapstructure:"discovery_capacity"`
	DiscoveryWindowSeconds int `mapstructure:"discovery_window_seconds"`
	SweepIntervalSeconds   int `mapstructure:"sweep_interval_seconds"`
}

// RecoveryConfig bounds how old a persisted snapshot may be before it is
// treated as stale and hidden (still clearable).
type RecoveryConfig struct {
	MaxAgeHours int `mapstructure:"max_age_hours"`
}

func (r *RecoveryConfig) MaxAge() time.Duration {
	return time.Duration(r.MaxAgeHours) * time.Hour
}

// AnalyticsConfig caps the diagnostic ring buffers.
type AnalyticsConfig struct {
	MaxEvents    int `mapstructure:"max_events"`
	MaxSummaries int `mapstructure:"max_summaries"`
}

// LedgerConfig locates the escrow relay and bounds retries on open and
// settlement calls.
type LedgerConfig struct {
	RelayURL        string `mapstructure:"relay_url"`
	ChainID         uint64 `mapstructure:"chain_id"`
	MaxAttempts     int    `mapstructure:"max_attempts"`
	BackoffBaseMs   int    `mapstructure:"backoff_base_ms"`
	BackoffMaxMs    int    `mapstructure:"backoff_max_ms"`
	CallTimeoutSecs int    `mapstructure:"call_timeout_seconds"`
	SettleRetryMins int    `mapstructure:"settle_retry_minutes"`
}

func (l *LedgerConfig) CallTimeout() time.Duration {
	return time.Duration(l.CallTimeoutSecs) * time.Second
}

// HostsConfig locates the inference-host registry.
type HostsConfig struct {
	RegistryURL       string `mapstructure:"registry_url"`
	PromptTimeoutSecs int    `mapstructure:"prompt_timeout_seconds"`
}

func (h *HostsConfig) PromptTimeout() time.Duration {
	return time.Duration(h.PromptTimeoutSecs) * time.Second
}

// WalletConfig locates the wallet bridge that owns the client's key.
type WalletConfig struct {
	BridgeURL string `mapstructure:"bridge_url"`
}
