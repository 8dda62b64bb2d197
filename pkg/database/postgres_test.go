package database

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestPostgresConfig_URLs(t *testing.T) {
	cfg := PostgresConfig{
		Host: "db", Port: "5432", User: "settle", Password: "p@ss",
		DBName: "settlement", SSLMode: "disable",
	}

	assert.Equal(t, "host=db port=5432 user=settle password=p@ss dbname=settlement sslmode=disable", cfg.DSN())
	assert.Equal(t, "postgres://settle:p%40ss@db:5432/settlement?sslmode=disable", cfg.DatabaseURL())
}

func TestIsRetryable(t *testing.T) {
	serialization := fmt.Errorf("commit: %w", &pgconn.PgError{Code: "40001"})
	deadlock := &pgconn.PgError{Code: "40P01"}
	unique := &pgconn.PgError{Code: "23505", ConstraintName: "uq_wallet_tx_seq"}

	assert.True(t, IsRetryable(serialization))
	assert.True(t, IsRetryable(deadlock))
	assert.False(t, IsRetryable(unique))
	assert.False(t, IsRetryable(errors.New("boom")))

	assert.True(t, IsUniqueViolation(unique, "uq_wallet_tx_seq"))
	assert.True(t, IsUniqueViolation(unique, ""))
	assert.False(t, IsUniqueViolation(unique, "other"))
}
