// Package service is the submission facade: it validates a request, assigns
// an identifier, persists the order as OPEN, and enqueues it for the
// processor. Submission returns as soon as the order is durable and queued;
// it never blocks on matching.
package service

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"order-ingestion-engine/internal/models"
)

// ValidationError reports the offending field of a rejected submission.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Store is the slice of the order store the facade needs.
type Store interface {
	InsertOrder(ctx context.Context, o *models.Order) error
}

// Enqueuer hands a persisted order's row id to the processor.
type Enqueuer interface {
	Enqueue(id int64)
}

// OrderService accepts validated submissions.
type OrderService struct {
	store Store
	queue Enqueuer

	now   func() time.Time
	newID func() string
}

// New constructs the facade.
func New(store Store, queue Enqueuer) *OrderService {
	return &OrderService{
		store: store,
		queue: queue,
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Submit validates, persists, and enqueues one order, returning the
// persisted view. Validation failures are *ValidationError.
func (s *OrderService) Submit(ctx context.Context, req *models.OrderRequest) (*models.OrderResponse, error) {
	if err := validate(req); err != nil {
		return nil, err
	}

	order := &models.Order{
		OrderID:         s.newID(),
		CreatedAt:       s.now(),
		Type:            models.OrderType(req.Type),
		Side:            models.OrderSide(req.Side),
		Instrument:      req.Instrument,
		LimitPrice:      req.LimitPrice,
		InitialQuantity: req.Quantity,
		Quantity:        req.Quantity,
		Status:          models.OrderStatusOpen,
	}

	if err := s.store.InsertOrder(ctx, order); err != nil {
		return nil, fmt.Errorf("failed to persist order: %w", err)
	}
	s.queue.Enqueue(order.ID)

	log.Printf("[INFO] order accepted: id=%s instrument=%s side=%s type=%s quantity=%d",
		order.OrderID, order.Instrument, order.Side, order.Type, order.Quantity)
	return models.NewOrderResponse(order), nil
}

func validate(req *models.OrderRequest) error {
	orderType := models.OrderType(req.Type)
	if orderType != models.OrderTypeMarket && orderType != models.OrderTypeLimit {
		return &ValidationError{Field: "type", Message: "must be 'market' or 'limit'"}
	}

	side := models.OrderSide(req.Side)
	if side != models.OrderSideBuy && side != models.OrderSideSell {
		return &ValidationError{Field: "side", Message: "must be 'buy' or 'sell'"}
	}

	if len(req.Instrument) != models.InstrumentLength {
		return &ValidationError{
			Field:   "instrument",
			Message: fmt.Sprintf("must be exactly %d characters", models.InstrumentLength),
		}
	}

	if req.Quantity <= 0 {
		return &ValidationError{Field: "quantity", Message: "must be positive"}
	}

	if orderType == models.OrderTypeMarket && req.LimitPrice != nil {
		return &ValidationError{Field: "limit_price", Message: "prohibited for type 'market'"}
	}
	if orderType == models.OrderTypeLimit {
		if req.LimitPrice == nil {
			return &ValidationError{Field: "limit_price", Message: "required for type 'limit'"}
		}
		if !req.LimitPrice.IsPositive() {
			return &ValidationError{Field: "limit_price", Message: "must be positive"}
		}
		if req.LimitPrice.Exponent() < -2 {
			return &ValidationError{Field: "limit_price", Message: "at most 2 decimal places"}
		}
	}
	return nil
}
