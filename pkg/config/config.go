// Package config loads environment-driven configuration through viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/khidma/service-settlement/pkg/database"
)

// JWTConfig holds token verification settings.
type JWTConfig struct {
	Secret     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// KafkaConfig holds broker settings. An empty Brokers list disables Kafka.
type KafkaConfig struct {
	Brokers []string
	GroupID string
}

// Enabled reports whether brokers are configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

// RedisConfig holds the Redis connection URL. Empty disables Redis.
type RedisConfig struct {
	URL string
}

// Load builds a viper instance reading the environment, plus an optional
// .env file in the working directory. serviceName seeds the defaults.
func Load(serviceName string) (*viper.Viper, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("APP_ENV", "development")
	v.SetDefault("SERVICE_PORT", "8080")
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", serviceName)
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h")
	v.SetDefault("KAFKA_GROUP_ID", "service-"+serviceName)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}
	return v, nil
}

// GetServicePort returns the listen address for the port in key, e.g. ":8080".
func GetServicePort(v *viper.Viper, key string) string {
	p := v.GetString(key)
	if p == "" {
		p = "8080"
	}
	if !strings.HasPrefix(p, ":") {
		p = ":" + p
	}
	return p
}

// GetAppEnv returns APP_ENV, lower-cased.
func GetAppEnv(v *viper.Viper) string {
	return strings.ToLower(v.GetString("APP_ENV"))
}

// LoadDatabaseConfig extracts Postgres settings; dbNameKey selects the
// database name variable.
func LoadDatabaseConfig(v *viper.Viper, dbNameKey string) database.PostgresConfig {
	return database.PostgresConfig{
		Host:     v.GetString("DB_HOST"),
		Port:     v.GetString("DB_PORT"),
		User:     v.GetString("DB_USER"),
		Password: v.GetString("DB_PASSWORD"),
		DBName:   v.GetString(dbNameKey),
		SSLMode:  v.GetString("DB_SSLMODE"),
		MaxConns: v.GetInt("DB_MAX_CONNS"),
		MinConns: v.GetInt("DB_MIN_CONNS"),
	}
}

// LoadJWTConfig extracts JWT settings.
func LoadJWTConfig(v *viper.Viper) JWTConfig {
	return JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		AccessTTL:  v.GetDuration("JWT_ACCESS_TTL"),
		RefreshTTL: v.GetDuration("JWT_REFRESH_TTL"),
	}
}

// LoadKafkaConfig extracts broker settings from a comma separated KAFKA_BROKERS.
func LoadKafkaConfig(v *viper.Viper) KafkaConfig {
	var brokers []string
	for _, b := range strings.Split(v.GetString("KAFKA_BROKERS"), ",") {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	return KafkaConfig{Brokers: brokers, GroupID: v.GetString("KAFKA_GROUP_ID")}
}

// LoadRedisConfig extracts REDIS_URL.
func LoadRedisConfig(v *viper.Viper) RedisConfig {
	return RedisConfig{URL: v.GetString("REDIS_URL")}
}
