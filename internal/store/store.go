package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"

	"order-ingestion-engine/internal/models"
)

// ErrDuplicateID is returned when an insert collides with an existing order_id.
var ErrDuplicateID = errors.New("duplicate order id")

// ErrNotFound is returned when a lookup matches no order.
var ErrNotFound = errors.New("order not found")

const orderColumns = `id, order_id, created_at, type, side, instrument,
	       limit_price, initial_quantity, quantity, status`

// Store persists orders and matches in MySQL. Facade-side inserts autocommit;
// the processor works through pass-scoped transactions obtained from Begin.
type Store struct {
	db *sql.DB

	insertOrderStmt     *sql.Stmt
	selectOrderStmt     *sql.Stmt
	selectByOrderIDStmt *sql.Stmt
	updateOrderStmt     *sql.Stmt
	insertMatchStmt     *sql.Stmt
	selectMatchesStmt   *sql.Stmt
	selectRestingStmt   *sql.Stmt
}

// New constructs a Store and prepares its SQL statements.
func New(database *sql.DB) (*Store, error) {
	s := &Store{db: database}
	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("failed to prepare SQL statements: %w", err)
	}
	return s, nil
}

func (s *Store) prepareStatements() error {
	var err error

	s.insertOrderStmt, err = s.db.Prepare(`
		INSERT INTO orders (
			order_id, created_at, type, side, instrument,
			limit_price, initial_quantity, quantity, status
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert order statement: %w", err)
	}

	s.selectOrderStmt, err = s.db.Prepare(`
		SELECT ` + orderColumns + `
		FROM orders
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare select order statement: %w", err)
	}

	s.selectByOrderIDStmt, err = s.db.Prepare(`
		SELECT ` + orderColumns + `
		FROM orders
		WHERE order_id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare select by order_id statement: %w", err)
	}

	s.updateOrderStmt, err = s.db.Prepare(`
		UPDATE orders
		SET quantity = ?, status = ?
		WHERE id = ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare update order statement: %w", err)
	}

	s.insertMatchStmt, err = s.db.Prepare(`
		INSERT INTO order_matching (
			order_buy_id, order_sell_id, matched_quantity, matched_at, instrument
		) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert match statement: %w", err)
	}

	s.selectMatchesStmt, err = s.db.Prepare(`
		SELECT id, order_buy_id, order_sell_id, matched_quantity, matched_at, instrument
		FROM order_matching
		WHERE order_buy_id = ? OR order_sell_id = ?
		ORDER BY matched_at ASC, id ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare select matches statement: %w", err)
	}

	s.selectRestingStmt, err = s.db.Prepare(`
		SELECT ` + orderColumns + `
		FROM orders
		WHERE status IN ('OPEN', 'SUBMITTED', 'PARTIAL')
		ORDER BY created_at ASC, order_id ASC
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare select resting statement: %w", err)
	}

	return nil
}

// Close releases the prepared statements held by the store.
func (s *Store) Close() error {
	stmts := []*sql.Stmt{
		s.insertOrderStmt,
		s.selectOrderStmt,
		s.selectByOrderIDStmt,
		s.updateOrderStmt,
		s.insertMatchStmt,
		s.selectMatchesStmt,
		s.selectRestingStmt,
	}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}

// InsertOrder persists a fresh order and fills in its row id.
// A collision on order_id yields ErrDuplicateID.
func (s *Store) InsertOrder(ctx context.Context, o *models.Order) error {
	var priceVal interface{}
	if o.LimitPrice != nil {
		priceVal = *o.LimitPrice
	}

	res, err := s.insertOrderStmt.ExecContext(ctx,
		o.OrderID,
		o.CreatedAt,
		o.Type,
		o.Side,
		o.Instrument,
		priceVal,
		o.InitialQuantity,
		o.Quantity,
		o.Status,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) && mysqlErr.Number == 1062 {
			return fmt.Errorf("%w: %s", ErrDuplicateID, o.OrderID)
		}
		return fmt.Errorf("failed to insert order: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get order row id: %w", err)
	}
	o.ID = id
	return nil
}

// GetOrderByOrderID loads an order by its external identifier.
func (s *Store) GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error) {
	return scanOrder(s.selectByOrderIDStmt.QueryRowContext(ctx, orderID))
}

// MatchesForOrder returns all matches referencing the given order row id.
func (s *Store) MatchesForOrder(ctx context.Context, id int64) ([]models.Match, error) {
	rows, err := s.selectMatchesStmt.QueryContext(ctx, id, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query matches: %w", err)
	}
	defer rows.Close()

	var matches []models.Match
	for rows.Next() {
		var m models.Match
		if err := rows.Scan(
			&m.ID,
			&m.BuyOrderID,
			&m.SellOrderID,
			&m.MatchedQuantity,
			&m.MatchedAt,
			&m.Instrument,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// LoadResting returns all non-terminal orders in creation order. The in-memory
// book is rebuilt from this scan on startup; the store is the source of truth.
func (s *Store) LoadResting(ctx context.Context) ([]*models.Order, error) {
	rows, err := s.selectRestingStmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query resting orders: %w", err)
	}
	defer rows.Close()

	var orders []*models.Order
	for rows.Next() {
		o, err := scanOrderRows(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Begin opens a pass-scoped transaction.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx, s: s}, nil
}

// Tx wraps one processor pass. All order updates and match inserts made
// through it commit together or not at all.
type Tx struct {
	tx *sql.Tx
	s  *Store
}

// GetOrder loads the current durable state of an order by row id.
// Returns ErrNotFound when no such order exists.
func (t *Tx) GetOrder(id int64) (*models.Order, error) {
	return scanOrder(t.tx.Stmt(t.s.selectOrderStmt).QueryRow(id))
}

// UpdateOrder persists the mutated quantity and status.
func (t *Tx) UpdateOrder(o *models.Order) error {
	if _, err := t.tx.Stmt(t.s.updateOrderStmt).Exec(o.Quantity, o.Status, o.ID); err != nil {
		return fmt.Errorf("failed to update order %d: %w", o.ID, err)
	}
	return nil
}

// InsertMatch appends an immutable match row and fills in its id.
func (t *Tx) InsertMatch(m *models.Match) error {
	res, err := t.tx.Stmt(t.s.insertMatchStmt).Exec(
		m.BuyOrderID,
		m.SellOrderID,
		m.MatchedQuantity,
		m.MatchedAt,
		m.Instrument,
	)
	if err != nil {
		return fmt.Errorf("failed to insert match: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get match id: %w", err)
	}
	m.ID = id
	return nil
}

// Commit commits the pass.
func (t *Tx) Commit() error {
	return t.tx.Commit()
}

// Rollback discards the pass.
func (t *Tx) Rollback() error {
	return t.tx.Rollback()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	o, err := scanOrderRows(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return o, nil
}

func scanOrderRows(row rowScanner) (*models.Order, error) {
	var o models.Order
	var price sql.NullString

	if err := row.Scan(
		&o.ID,
		&o.OrderID,
		&o.CreatedAt,
		&o.Type,
		&o.Side,
		&o.Instrument,
		&price,
		&o.InitialQuantity,
		&o.Quantity,
		&o.Status,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan order: %w", err)
	}

	if price.Valid {
		p, err := decimal.NewFromString(price.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse limit price for order %d: %w", o.ID, err)
		}
		o.LimitPrice = &p
	}
	return &o, nil
}
