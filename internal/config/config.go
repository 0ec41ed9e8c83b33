// Package config loads service configuration from a .env file and the
// environment, with environment variables taking precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the full service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Ledger   LedgerConfig
	Log      LogConfig
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig controls the PostgreSQL connection and pool.
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	Name            string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig controls the optional transaction event feed.
type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     string
	Password string
	DB       int
}

// LedgerConfig controls ledger engine behavior.
type LedgerConfig struct {
	LockTimeout time.Duration
	EventsKey   string
}

// LogConfig controls log output.
type LogConfig struct {
	Level  string
	Pretty bool
}

func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", 15*time.Second)
	viper.SetDefault("server.write_timeout", 15*time.Second)
	viper.SetDefault("server.idle_timeout", 60*time.Second)
	viper.SetDefault("server.shutdown_timeout", 30*time.Second)

	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", "5432")
	viper.SetDefault("database.user", "postgres")
	viper.SetDefault("database.password", "password")
	viper.SetDefault("database.name", "ledger")
	viper.SetDefault("database.ssl_mode", "disable")
	viper.SetDefault("database.max_open_conns", 25)
	viper.SetDefault("database.max_idle_conns", 5)
	viper.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", "6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("ledger.lock_timeout", 3*time.Second)
	viper.SetDefault("ledger.events_key", "ledger:transactions")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.pretty", false)
}

// Load reads .env (if present) and the environment and returns the
// resolved configuration. A missing .env file is not an error.
func Load() (*Config, error) {
	viper.SetConfigFile(".env")
	viper.SetConfigType("env")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err := viper.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		if _, ok := err.(viper.ConfigParseError); ok {
			return nil, fmt.Errorf("parse .env: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:            viper.GetString("server.port"),
			ReadTimeout:     viper.GetDuration("server.read_timeout"),
			WriteTimeout:    viper.GetDuration("server.write_timeout"),
			IdleTimeout:     viper.GetDuration("server.idle_timeout"),
			ShutdownTimeout: viper.GetDuration("server.shutdown_timeout"),
		},
		Database: DatabaseConfig{
			Host:            viper.GetString("database.host"),
			Port:            viper.GetString("database.port"),
			User:            viper.GetString("database.user"),
			Password:        viper.GetString("database.password"),
			Name:            viper.GetString("database.name"),
			SSLMode:         viper.GetString("database.ssl_mode"),
			MaxOpenConns:    viper.GetInt("database.max_open_conns"),
			MaxIdleConns:    viper.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: viper.GetDuration("database.conn_max_lifetime"),
		},
		Redis: RedisConfig{
			Enabled:  viper.GetBool("redis.enabled"),
			Host:     viper.GetString("redis.host"),
			Port:     viper.GetString("redis.port"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		Ledger: LedgerConfig{
			LockTimeout: viper.GetDuration("ledger.lock_timeout"),
			EventsKey:   viper.GetString("ledger.events_key"),
		},
		Log: LogConfig{
			Level:  viper.GetString("log.level"),
			Pretty: viper.GetBool("log.pretty"),
		},
	}
	return cfg, nil
}
