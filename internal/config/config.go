package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"

	"github.com/khidma/service-settlement/pkg/config"
	"github.com/khidma/service-settlement/pkg/database"
)

// StripeConfig holds Stripe-specific configuration. An empty SecretKey selects
// the mock gateway.
type StripeConfig struct {
	SecretKey string
}

// SettlementConfig holds the money rules of the engine.
type SettlementConfig struct {
	PaymentTimeout time.Duration
	// Rates are percentages, e.g. 15 for 15%.
	DefaultCommissionRate decimal.Decimal
	TaxRate               decimal.Decimal
	WithdrawalFeeRate     decimal.Decimal
	Currency              string
	SweepInterval         time.Duration
	SweepBatchSize        int
	// PromoValidationsPerMinute bounds promo validation per client.
	PromoValidationsPerMinute int
}

// DefaultSettlementConfig returns the production defaults.
func DefaultSettlementConfig() SettlementConfig {
	return SettlementConfig{
		PaymentTimeout:            30 * time.Minute,
		DefaultCommissionRate:     decimal.NewFromInt(15),
		TaxRate:                   decimal.NewFromInt(15),
		WithdrawalFeeRate:         decimal.Zero,
		Currency:                  "SAR",
		SweepInterval:             time.Minute,
		SweepBatchSize:            100,
		PromoValidationsPerMinute: 30,
	}
}

// ServiceConfig holds all configuration for the settlement service.
type ServiceConfig struct {
	Port         string
	AppEnv       string
	DBConfig     database.PostgresConfig
	JWTConfig    config.JWTConfig
	KafkaConfig  config.KafkaConfig
	RedisConfig  config.RedisConfig
	StripeConfig StripeConfig
	Settlement   SettlementConfig
}

// Load reads configuration from environment variables and returns a ServiceConfig.
func Load() (*ServiceConfig, error) {
	v, err := config.Load("settlement")
	if err != nil {
		return nil, err
	}

	settlement, err := loadSettlementConfig(v)
	if err != nil {
		return nil, err
	}

	return &ServiceConfig{
		Port:         config.GetServicePort(v, "SERVICE_PORT"),
		AppEnv:       config.GetAppEnv(v),
		DBConfig:     config.LoadDatabaseConfig(v, "DB_NAME"),
		JWTConfig:    config.LoadJWTConfig(v),
		KafkaConfig:  config.LoadKafkaConfig(v),
		RedisConfig:  config.LoadRedisConfig(v),
		StripeConfig: StripeConfig{SecretKey: v.GetString("STRIPE_SECRET_KEY")},
		Settlement:   settlement,
	}, nil
}

func loadSettlementConfig(v *viper.Viper) (SettlementConfig, error) {
	d := DefaultSettlementConfig()
	v.SetDefault("PAYMENT_TIMEOUT", d.PaymentTimeout.String())
	v.SetDefault("DEFAULT_COMMISSION_RATE", d.DefaultCommissionRate.String())
	v.SetDefault("TAX_RATE", d.TaxRate.String())
	v.SetDefault("WITHDRAWAL_FEE_RATE", d.WithdrawalFeeRate.String())
	v.SetDefault("CURRENCY", d.Currency)
	v.SetDefault("SWEEP_INTERVAL", d.SweepInterval.String())
	v.SetDefault("SWEEP_BATCH_SIZE", d.SweepBatchSize)
	v.SetDefault("PROMO_VALIDATIONS_PER_MINUTE", d.PromoValidationsPerMinute)

	cfg := SettlementConfig{
		PaymentTimeout:            v.GetDuration("PAYMENT_TIMEOUT"),
		Currency:                  strings.ToUpper(v.GetString("CURRENCY")),
		SweepInterval:             v.GetDuration("SWEEP_INTERVAL"),
		SweepBatchSize:            v.GetInt("SWEEP_BATCH_SIZE"),
		PromoValidationsPerMinute: v.GetInt("PROMO_VALIDATIONS_PER_MINUTE"),
	}

	rates := map[string]*decimal.Decimal{
		"DEFAULT_COMMISSION_RATE": &cfg.DefaultCommissionRate,
		"TAX_RATE":                &cfg.TaxRate,
		"WITHDRAWAL_FEE_RATE":     &cfg.WithdrawalFeeRate,
	}
	for key, dst := range rates {
		rate, err := decimal.NewFromString(v.GetString(key))
		if err != nil {
			return cfg, fmt.Errorf("invalid %s: %w", key, err)
		}
		if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
			return cfg, fmt.Errorf("%s must be between 0 and 100", key)
		}
		*dst = rate
	}

	if cfg.PaymentTimeout <= 0 {
		return cfg, fmt.Errorf("PAYMENT_TIMEOUT must be positive")
	}
	if cfg.SweepInterval <= 0 || cfg.SweepBatchSize <= 0 {
		return cfg, fmt.Errorf("SWEEP_INTERVAL and SWEEP_BATCH_SIZE must be positive")
	}
	return cfg, nil
}
