package exchange

import (
	"context"
	"sync"

	"order-ingestion-engine/internal/models"
)

// MockClient is a scriptable Client for tests.
type MockClient struct {
	mu      sync.Mutex
	scripts []error
	failmod error
	calls   []string
}

// NewMockClient returns a mock that accepts every placement.
func NewMockClient() *MockClient {
	return &MockClient{}
}

// Script queues per-call results consumed in order; once exhausted the mock
// falls back to the failure mode (nil by default).
func (m *MockClient) Script(results ...error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts = append(m.scripts, results...)
}

// SetFailure sets the result returned when no scripted result remains.
func (m *MockClient) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failmod = err
}

// PlaceOrder records the call and returns the next scripted result.
func (m *MockClient) PlaceOrder(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls = append(m.calls, o.OrderID)
	if len(m.scripts) > 0 {
		err := m.scripts[0]
		m.scripts = m.scripts[1:]
		return err
	}
	return m.failmod
}

// Calls returns the order ids placed so far, in call order.
func (m *MockClient) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}
