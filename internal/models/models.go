package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderSide represents the side of an order (buy or sell)
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// Opposite returns the other side of the book.
func (s OrderSide) Opposite() OrderSide {
	if s == OrderSideBuy {
		return OrderSideSell
	}
	return OrderSideBuy
}

// OrderType represents the type of an order (limit or market)
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderStatus represents the current lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusOpen      OrderStatus = "OPEN"
	OrderStatusSubmitted OrderStatus = "SUBMITTED"
	OrderStatusPartial   OrderStatus = "PARTIAL"
	OrderStatusMatched   OrderStatus = "MATCHED"
	OrderStatusFailed    OrderStatus = "FAILED"
)

// Terminal reports whether the status is final. Terminal orders never
// re-enter the book or the processing queue.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusMatched || s == OrderStatusFailed
}

// Matchable reports whether a resting order in this state may be yielded
// as a match candidate.
func (s OrderStatus) Matchable() bool {
	return s == OrderStatusOpen || s == OrderStatusSubmitted
}

// InstrumentLength is the fixed width of an instrument symbol.
const InstrumentLength = 12

// Order is a single submission. ID is the database row id; OrderID is the
// opaque identifier handed back to the submitter. Quantity counts down as
// the order matches; InitialQuantity records what was submitted.
type Order struct {
	ID              int64            `json:"-" db:"id"`
	OrderID         string           `json:"id" db:"order_id"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	Type            OrderType        `json:"type" db:"type"`
	Side            OrderSide        `json:"side" db:"side"`
	Instrument      string           `json:"instrument" db:"instrument"`
	LimitPrice      *decimal.Decimal `json:"limit_price" db:"limit_price"`
	InitialQuantity int64            `json:"-" db:"initial_quantity"`
	Quantity        int64            `json:"quantity" db:"quantity"`
	Status          OrderStatus      `json:"status" db:"status"`
}

// Match is one executed fill between a buy and a sell order on the same
// instrument. A match is immutable once written.
type Match struct {
	ID              int64     `json:"id" db:"id"`
	BuyOrderID      int64     `json:"buy_order_id" db:"order_buy_id"`
	SellOrderID     int64     `json:"sell_order_id" db:"order_sell_id"`
	MatchedQuantity int64     `json:"matched_quantity" db:"matched_quantity"`
	MatchedAt       time.Time `json:"matched_at" db:"matched_at"`
	Instrument      string    `json:"instrument" db:"instrument"`
}

// OrderRequest is the JSON payload of a submission.
type OrderRequest struct {
	Type       string           `json:"type"`
	Side       string           `json:"side"`
	Instrument string           `json:"instrument"`
	LimitPrice *decimal.Decimal `json:"limit_price,omitempty"`
	Quantity   int64            `json:"quantity"`
}

// OrderResponse is the persisted view returned to the submitter.
type OrderResponse struct {
	ID         string           `json:"id"`
	CreatedAt  string           `json:"created_at"`
	Type       OrderType        `json:"type"`
	Side       OrderSide        `json:"side"`
	Instrument string           `json:"instrument"`
	LimitPrice *decimal.Decimal `json:"limit_price"`
	Quantity   int64            `json:"quantity"`
	Status     OrderStatus      `json:"status,omitempty"`
}

// NewOrderResponse maps a persisted order to its external view.
func NewOrderResponse(o *Order) *OrderResponse {
	return &OrderResponse{
		ID:         o.OrderID,
		CreatedAt:  o.CreatedAt.Format(time.RFC3339Nano),
		Type:       o.Type,
		Side:       o.Side,
		Instrument: o.Instrument,
		LimitPrice: o.LimitPrice,
		Quantity:   o.Quantity,
		Status:     o.Status,
	}
}
