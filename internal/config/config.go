package config

import "time"

// Store drivers accepted by StoreDriver.
const (
	StoreSQLite = "sqlite"
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level"`

	StoreDriver  string `mapstructure:"store_driver" yaml:"store_driver"`
	SQLitePath   string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
	RedisAddr    string `mapstructure:"redis_addr" yaml:"redis_addr"`
	RedisDB      int    `mapstructure:"redis_db" yaml:"redis_db"`
	HistoryLimit int    `mapstructure:"history_limit" yaml:"history_limit"`

	WriteTimeout         time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`
	PersistTimeout       time.Duration `mapstructure:"persist_timeout" yaml:"persist_timeout"`
	PingInterval         time.Duration `mapstructure:"ping_interval" yaml:"ping_interval"`
	MaxMessageBytes      int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes"`
	MessagesPerMinute    int           `mapstructure:"messages_per_minute" yaml:"messages_per_minute"`
	BroadcastParallelism int           `mapstructure:"broadcast_parallelism" yaml:"broadcast_parallelism"`
	AllowedOrigins       []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:                 ":8080",
		ReadHeaderTimeout:    5 * time.Second,
		ShutdownTimeout:      5 * time.Second,
		LogLevel:             "info",
		StoreDriver:          StoreSQLite,
		SQLitePath:           "wirechat-relay.db",
		RedisAddr:            "localhost:6379",
		HistoryLimit:         50,
		WriteTimeout:         5 * time.Second,
		PersistTimeout:       2 * time.Second,
		PingInterval:         30 * time.Second,
		MaxMessageBytes:      32 * 1024,
		MessagesPerMinute:    120,
		BroadcastParallelism: 1,
		AllowedOrigins:       []string{"*"},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.StoreDriver != "" {
		c.StoreDriver = other.StoreDriver
	}
	if other.SQLitePath != "" {
		c.SQLitePath = other.SQLitePath
	}
	if other.RedisAddr != "" {
		c.RedisAddr = other.RedisAddr
	}
	if other.RedisDB != 0 {
		c.RedisDB = other.RedisDB
	}
	if other.HistoryLimit != 0 {
		c.HistoryLimit = other.HistoryLimit
	}
	if other.WriteTimeout != 0 {
		c.WriteTimeout = other.WriteTimeout
	}
	if other.PersistTimeout != 0 {
		c.PersistTimeout = other.PersistTimeout
	}
	if other.PingInterval != 0 {
		c.PingInterval = other.PingInterval
	}
	if other.MaxMessageBytes != 0 {
		c.MaxMessageBytes = other.MaxMessageBytes
	}
	if other.MessagesPerMinute != 0 {
		c.MessagesPerMinute = other.MessagesPerMinute
	}
	if other.BroadcastParallelism != 0 {
		c.BroadcastParallelism = other.BroadcastParallelism
	}
	if len(other.AllowedOrigins) > 0 {
		c.AllowedOrigins = other.AllowedOrigins
	}
}
