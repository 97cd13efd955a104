// Package api exposes the submission endpoint and the read/ops surface over
// echo. The handlers only touch the facade and the store; the book and the
// worker are never reachable from a request.
package api

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"

	"github.com/VictoriaMetrics/metrics"
	"github.com/labstack/echo/v4"

	"order-ingestion-engine/internal/models"
	"order-ingestion-engine/internal/service"
	"order-ingestion-engine/internal/store"
)

// Submitter accepts a validated order submission.
type Submitter interface {
	Submit(ctx context.Context, req *models.OrderRequest) (*models.OrderResponse, error)
}

// OrderReader loads the persisted view of an order by its external id.
type OrderReader interface {
	GetOrderByOrderID(ctx context.Context, orderID string) (*models.Order, error)
}

// Server wires the HTTP routes.
type Server struct {
	e      *echo.Echo
	svc    Submitter
	orders OrderReader
	db     *sql.DB
}

type errorBody struct {
	Error fieldError `json:"error"`
}

type fieldError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// NewServer builds the echo server with its routes and request counters.
func NewServer(svc Submitter, orders OrderReader, db *sql.DB) *Server {
	e := echo.New()
	e.HideBanner = true
	e.Use(countRequests)

	s := &Server{e: e, svc: svc, orders: orders, db: db}

	e.POST("/orders", s.createOrder)
	e.GET("/orders/:id", s.getOrder)
	e.GET("/health", s.health)
	e.GET("/metrics", func(c echo.Context) error {
		metrics.WritePrometheus(c.Response(), true)
		return nil
	})

	return s
}

// Start serves until Shutdown.
func (s *Server) Start(addr string) error {
	return s.e.Start(addr)
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) createOrder(c echo.Context) error {
	var req models.OrderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusUnprocessableEntity, errorBody{
			Error: fieldError{Field: "body", Message: "invalid request body"},
		})
	}

	resp, err := s.svc.Submit(c.Request().Context(), &req)
	if err != nil {
		var verr *service.ValidationError
		if errors.As(err, &verr) {
			return c.JSON(http.StatusUnprocessableEntity, errorBody{
				Error: fieldError{Field: verr.Field, Message: verr.Message},
			})
		}
		c.Logger().Errorf("submit failed: %v", err)
		return c.JSON(http.StatusInternalServerError, errorBody{
			Error: fieldError{Message: "internal server error"},
		})
	}

	// The submission response carries the persisted fields only.
	resp.Status = ""
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) getOrder(c echo.Context) error {
	order, err := s.orders.GetOrderByOrderID(c.Request().Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return c.JSON(http.StatusNotFound, errorBody{
				Error: fieldError{Message: "order not found"},
			})
		}
		c.Logger().Errorf("load order failed: %v", err)
		return c.JSON(http.StatusInternalServerError, errorBody{
			Error: fieldError{Message: "internal server error"},
		})
	}
	return c.JSON(http.StatusOK, models.NewOrderResponse(order))
}

func (s *Server) health(c echo.Context) error {
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{"status": "healthy"})
}

func countRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		path := metrics.GetOrCreateCounter(fmt.Sprintf(`requests_total{path=%q}`, c.Path()))
		path.Inc()
		return next(c)
	}
}
