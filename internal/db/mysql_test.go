package db

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-ingestion-engine/internal/config"
)

func TestDSN(t *testing.T) {
	cfg := &config.Config{
		DBHost:     "localhost",
		DBUser:     "root",
		DBPassword: "secret",
		DBName:     "lemon_markets",
	}
	assert.Equal(t,
		"root:secret@tcp(localhost:3306)/lemon_markets?parseTime=true&charset=utf8mb4",
		DSN(cfg))
}

func TestDSNKeepsExplicitPort(t *testing.T) {
	cfg := &config.Config{
		DBHost:     "db.internal:3307",
		DBUser:     "app",
		DBPassword: "pw",
		DBName:     "orders",
	}
	assert.Equal(t,
		"app:pw@tcp(db.internal:3307)/orders?parseTime=true&charset=utf8mb4",
		DSN(cfg))
}

// TestConnectAndMigrate needs a running MySQL; set TEST_DB_NAME (and the
// other TEST_DB_* variables) to enable it.
func TestConnectAndMigrate(t *testing.T) {
	name := os.Getenv("TEST_DB_NAME")
	if name == "" {
		t.Skip("TEST_DB_NAME not set; skipping database integration test")
	}

	cfg := &config.Config{
		DBHost:     envOr("TEST_DB_HOST", "localhost"),
		DBUser:     envOr("TEST_DB_USER", "root"),
		DBPassword: envOr("TEST_DB_PASSWORD", "password"),
		DBName:     name,
	}

	database, err := Connect(cfg)
	require.NoError(t, err)
	defer database.Close()

	require.NoError(t, Migrate(database))
	// Re-running must be a no-op, including the index statement.
	require.NoError(t, Migrate(database))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
