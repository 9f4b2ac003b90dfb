package postgres

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@h:5432/db?sslmode=disable", migrateURL("postgres://u:p@h:5432/db?sslmode=disable"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("postgresql://u@h/db"))
	assert.Equal(t, "pgx5://u@h/db", migrateURL("pgx5://u@h/db"))
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationsFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestConfigDSN(t *testing.T) {
	cfg := Config{
		User:     "app",
		Password: "p@ss",
		Host:     "db",
		Port:     5432,
		Name:     "checkout",
		SSLMode:  "disable",
	}

	assert.Equal(t, "postgres://app:p%40ss@db:5432/checkout?sslmode=disable", cfg.DSN())
}
