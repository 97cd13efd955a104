package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"order-ingestion-engine/internal/models"
	"order-ingestion-engine/internal/store"
)

type fakeStore struct {
	inserted []*models.Order
	err      error
}

func (f *fakeStore) InsertOrder(_ context.Context, o *models.Order) error {
	if f.err != nil {
		return f.err
	}
	o.ID = int64(len(f.inserted)) + 1
	f.inserted = append(f.inserted, o)
	return nil
}

type fakeQueue struct {
	ids []int64
}

func (f *fakeQueue) Enqueue(id int64) {
	f.ids = append(f.ids, id)
}

func dec(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func newTestService(st *fakeStore, q *fakeQueue) *OrderService {
	svc := New(st, q)
	svc.now = func() time.Time { return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC) }
	svc.newID = func() string { return "fixed-order-id" }
	return svc
}

func validRequest() *models.OrderRequest {
	return &models.OrderRequest{
		Type:       "limit",
		Side:       "buy",
		Instrument: "US0378331005",
		LimitPrice: dec("100.00"),
		Quantity:   10,
	}
}

func TestSubmitPersistsAndEnqueues(t *testing.T) {
	st := &fakeStore{}
	q := &fakeQueue{}
	svc := newTestService(st, q)

	resp, err := svc.Submit(context.Background(), validRequest())
	require.NoError(t, err)

	require.Len(t, st.inserted, 1)
	o := st.inserted[0]
	assert.Equal(t, "fixed-order-id", o.OrderID)
	assert.Equal(t, models.OrderStatusOpen, o.Status)
	assert.Equal(t, int64(10), o.InitialQuantity)
	assert.Equal(t, int64(10), o.Quantity)

	assert.Equal(t, []int64{o.ID}, q.ids, "row id enqueued after the insert")

	assert.Equal(t, "fixed-order-id", resp.ID)
	assert.Equal(t, "2024-03-01T10:00:00Z", resp.CreatedAt)
	assert.Equal(t, models.OrderTypeLimit, resp.Type)
	assert.True(t, resp.LimitPrice.Equal(decimal.RequireFromString("100.00")))
}

func TestSubmitMarketOrder(t *testing.T) {
	st := &fakeStore{}
	q := &fakeQueue{}
	svc := newTestService(st, q)

	req := validRequest()
	req.Type = "market"
	req.LimitPrice = nil

	resp, err := svc.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, resp.LimitPrice)
	assert.Equal(t, models.OrderTypeMarket, resp.Type)
}

func TestSubmitStoreFailureDoesNotEnqueue(t *testing.T) {
	st := &fakeStore{err: store.ErrDuplicateID}
	q := &fakeQueue{}
	svc := newTestService(st, q)

	_, err := svc.Submit(context.Background(), validRequest())
	require.Error(t, err)
	assert.True(t, errors.Is(err, store.ErrDuplicateID))
	assert.Empty(t, q.ids)
}

func TestSubmitValidation(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*models.OrderRequest)
		wantField string
	}{
		{"unknown type", func(r *models.OrderRequest) { r.Type = "stop" }, "type"},
		{"empty type", func(r *models.OrderRequest) { r.Type = "" }, "type"},
		{"unknown side", func(r *models.OrderRequest) { r.Side = "hold" }, "side"},
		{"instrument too short", func(r *models.OrderRequest) { r.Instrument = "US03783" }, "instrument"},
		{"instrument too long", func(r *models.OrderRequest) { r.Instrument = "US0378331005XX" }, "instrument"},
		{"zero quantity", func(r *models.OrderRequest) { r.Quantity = 0 }, "quantity"},
		{"negative quantity", func(r *models.OrderRequest) { r.Quantity = -5 }, "quantity"},
		{"market with price", func(r *models.OrderRequest) { r.Type = "market" }, "limit_price"},
		{"limit without price", func(r *models.OrderRequest) { r.LimitPrice = nil }, "limit_price"},
		{"zero price", func(r *models.OrderRequest) { r.LimitPrice = dec("0") }, "limit_price"},
		{"negative price", func(r *models.OrderRequest) { r.LimitPrice = dec("-1.00") }, "limit_price"},
		{"too many decimals", func(r *models.OrderRequest) { r.LimitPrice = dec("100.001") }, "limit_price"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := &fakeStore{}
			q := &fakeQueue{}
			svc := newTestService(st, q)

			req := validRequest()
			tt.mutate(req)

			_, err := svc.Submit(context.Background(), req)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
			assert.Empty(t, st.inserted, "rejected submissions are never persisted")
			assert.Empty(t, q.ids)
		})
	}
}
