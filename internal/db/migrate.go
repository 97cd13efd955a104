package db

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS orders (
		id INT AUTO_INCREMENT PRIMARY KEY,
		order_id VARCHAR(36) UNIQUE NOT NULL,
		created_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		type VARCHAR(10) NOT NULL,
		side VARCHAR(10) NOT NULL,
		status VARCHAR(10) NOT NULL,
		instrument CHAR(12) NOT NULL,
		limit_price DECIMAL(18,2),
		initial_quantity INT NOT NULL,
		quantity INT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS order_matching (
		id BIGINT AUTO_INCREMENT PRIMARY KEY,
		order_buy_id INT NOT NULL,
		order_sell_id INT NOT NULL,
		matched_quantity INT NOT NULL,
		matched_at DATETIME(6) NOT NULL DEFAULT CURRENT_TIMESTAMP(6),
		instrument CHAR(12) NOT NULL,
		FOREIGN KEY (order_buy_id) REFERENCES orders(id) ON DELETE RESTRICT,
		FOREIGN KEY (order_sell_id) REFERENCES orders(id) ON DELETE RESTRICT,
		CHECK (matched_quantity > 0)
	)`,
	`CREATE INDEX idx_orders_resting ON orders (status, created_at)`,
}

// Migrate applies the schema. Statements are idempotent except the index,
// whose duplicate-key error on re-run is ignored.
func Migrate(database *sql.DB) error {
	for _, stmt := range migrations {
		if _, err := database.Exec(stmt); err != nil {
			if isDuplicateKeyName(err) {
				continue
			}
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func isDuplicateKeyName(err error) bool {
	// MySQL error 1061: duplicate key name, raised when the index exists.
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1061
}
