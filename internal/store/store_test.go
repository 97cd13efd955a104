package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-ingestion-engine/internal/config"
	"order-ingestion-engine/internal/db"
	"order-ingestion-engine/internal/models"
)

// The store tests need a running MySQL; set TEST_DB_NAME (and the other
// TEST_DB_* variables) to enable them.
func testStore(t *testing.T) *Store {
	t.Helper()

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

	database, err := db.Connect(cfg)
	require.NoError(t, err)
	require.NoError(t, db.Migrate(database))

	cleanTables(t, database)

	s, err := New(database)
	require.NoError(t, err)

	t.Cleanup(func() {
		s.Close()
		database.Close()
	})
	return s
}

func cleanTables(t *testing.T, database *sql.DB) {
	t.Helper()
	_, err := database.Exec("DELETE FROM order_matching")
	require.NoError(t, err)
	_, err = database.Exec("DELETE FROM orders")
	require.NoError(t, err)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func limitOrder(side models.OrderSide, price string, qty int64) *models.Order {
	d := decimal.RequireFromString(price)
	return &models.Order{
		OrderID:         uuid.NewString(),
		CreatedAt:       time.Now().UTC().Truncate(time.Microsecond),
		Type:            models.OrderTypeLimit,
		Side:            side,
		Instrument:      "US0378331005",
		LimitPrice:      &d,
		InitialQuantity: qty,
		Quantity:        qty,
		Status:          models.OrderStatusOpen,
	}
}

func TestInsertAndGetOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	o := limitOrder(models.OrderSideBuy, "100.50", 10)
	require.NoError(t, s.InsertOrder(ctx, o))
	require.NotZero(t, o.ID, "row id is filled in on insert")

	got, err := s.GetOrderByOrderID(ctx, o.OrderID)
	require.NoError(t, err)

	assert.Equal(t, o.ID, got.ID)
	assert.Equal(t, o.OrderID, got.OrderID)
	assert.Equal(t, models.OrderTypeLimit, got.Type)
	assert.Equal(t, models.OrderSideBuy, got.Side)
	assert.Equal(t, "US0378331005", got.Instrument)
	require.NotNil(t, got.LimitPrice)
	assert.True(t, got.LimitPrice.Equal(decimal.RequireFromString("100.50")))
	assert.Equal(t, int64(10), got.Quantity)
	assert.Equal(t, models.OrderStatusOpen, got.Status)
	assert.WithinDuration(t, o.CreatedAt, got.CreatedAt, time.Millisecond)
}

func TestInsertMarketOrderHasNullPrice(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	o := limitOrder(models.OrderSideSell, "1.00", 5)
	o.Type = models.OrderTypeMarket
	o.LimitPrice = nil
	require.NoError(t, s.InsertOrder(ctx, o))

	got, err := s.GetOrderByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Nil(t, got.LimitPrice)
}

func TestInsertDuplicateOrderID(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	o := limitOrder(models.OrderSideBuy, "100.00", 10)
	require.NoError(t, s.InsertOrder(ctx, o))

	dup := limitOrder(models.OrderSideBuy, "100.00", 10)
	dup.OrderID = o.OrderID
	err := s.InsertOrder(ctx, dup)
	assert.True(t, errors.Is(err, ErrDuplicateID))
}

func TestGetOrderByOrderIDNotFound(t *testing.T) {
	s := testStore(t)

	_, err := s.GetOrderByOrderID(context.Background(), "no-such-id")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestTxCommitPersistsPass(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	buy := limitOrder(models.OrderSideBuy, "100.00", 10)
	sell := limitOrder(models.OrderSideSell, "100.00", 10)
	require.NoError(t, s.InsertOrder(ctx, buy))
	require.NoError(t, s.InsertOrder(ctx, sell))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	got, err := tx.GetOrder(buy.ID)
	require.NoError(t, err)
	assert.Equal(t, buy.OrderID, got.OrderID)

	buy.Quantity, buy.Status = 0, models.OrderStatusMatched
	sell.Quantity, sell.Status = 0, models.OrderStatusMatched
	require.NoError(t, tx.UpdateOrder(buy))
	require.NoError(t, tx.UpdateOrder(sell))

	m := &models.Match{
		BuyOrderID:      buy.ID,
		SellOrderID:     sell.ID,
		MatchedQuantity: 10,
		MatchedAt:       time.Now().UTC().Truncate(time.Microsecond),
		Instrument:      buy.Instrument,
	}
	require.NoError(t, tx.InsertMatch(m))
	require.NotZero(t, m.ID)
	require.NoError(t, tx.Commit())

	got, err = s.GetOrderByOrderID(ctx, buy.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusMatched, got.Status)
	assert.Zero(t, got.Quantity)

	matches, err := s.MatchesForOrder(ctx, sell.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, int64(10), matches[0].MatchedQuantity)
	assert.Equal(t, buy.ID, matches[0].BuyOrderID)
}

func TestTxRollbackDiscardsPass(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	o := limitOrder(models.OrderSideBuy, "100.00", 10)
	require.NoError(t, s.InsertOrder(ctx, o))

	tx, err := s.Begin(ctx)
	require.NoError(t, err)

	o.Quantity, o.Status = 0, models.OrderStatusMatched
	require.NoError(t, tx.UpdateOrder(o))
	require.NoError(t, tx.Rollback())

	got, err := s.GetOrderByOrderID(ctx, o.OrderID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusOpen, got.Status)
	assert.Equal(t, int64(10), got.Quantity)
}

func TestTxGetOrderNotFound(t *testing.T) {
	s := testStore(t)

	tx, err := s.Begin(context.Background())
	require.NoError(t, err)
	defer tx.Rollback()

	_, err = tx.GetOrder(999999999)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadRestingReturnsNonTerminalInOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Microsecond)
	statuses := []models.OrderStatus{
		models.OrderStatusOpen,
		models.OrderStatusSubmitted,
		models.OrderStatusPartial,
		models.OrderStatusMatched,
		models.OrderStatusFailed,
	}
	for i, st := range statuses {
		o := limitOrder(models.OrderSideBuy, "100.00", 5)
		o.OrderID = fmt.Sprintf("resting-%02d", i)
		o.CreatedAt = base.Add(time.Duration(i) * time.Second)
		o.Status = st
		require.NoError(t, s.InsertOrder(ctx, o))
	}

	got, err := s.LoadResting(ctx)
	require.NoError(t, err)

	require.Len(t, got, 3, "terminal orders are not restored")
	assert.Equal(t, "resting-00", got[0].OrderID)
	assert.Equal(t, "resting-01", got[1].OrderID)
	assert.Equal(t, "resting-02", got[2].OrderID)
}
