package db

import (
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/go-sql-driver/mysql"

	"order-ingestion-engine/internal/config"
)

// DSN builds a MySQL DSN from the discrete connection parameters.
// A host without an explicit port gets the default MySQL port.
func DSN(cfg *config.Config) string {
	host := cfg.DBHost
	if !strings.Contains(host, ":") {
		host += ":3306"
	}
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?parseTime=true&charset=utf8mb4",
		cfg.DBUser, cfg.DBPassword, host, cfg.DBName)
}

// Connect opens a connection pool against the configured MySQL database
// and verifies it with a ping.
func Connect(cfg *config.Config) (*sql.DB, error) {
	database, err := sql.Open("mysql", DSN(cfg))
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	database.SetMaxOpenConns(25)
	database.SetMaxIdleConns(10)

	return database, nil
}
