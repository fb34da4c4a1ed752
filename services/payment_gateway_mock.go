package services

import (
	"context"
	"fmt"
	"sync"
)

// MockPaymentGateway is a mock implementation of the payment authority for
// testing. It answers from a programmable in-memory table and counts lookups.
type MockPaymentGateway struct {
	mu       sync.RWMutex
	statuses map[string]GatewayOrderStatus
	errors   map[string]error
	calls    map[string]int
}

// NewMockPaymentGateway creates a new mock gateway
func NewMockPaymentGateway() *MockPaymentGateway {
	return &MockPaymentGateway{
		statuses: make(map[string]GatewayOrderStatus),
		errors:   make(map[string]error),
		calls:    make(map[string]int),
	}
}

// SetOrderStatus programs the answer for a gateway order id
func (m *MockPaymentGateway) SetOrderStatus(gatewayOrderID, status, paymentID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses[gatewayOrderID] = GatewayOrderStatus{Status: status, PaymentID: paymentID}
	delete(m.errors, gatewayOrderID)
}

// SetLookupError makes lookups for a gateway order id fail, simulating an
// unreachable authority
func (m *MockPaymentGateway) SetLookupError(gatewayOrderID string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errors[gatewayOrderID] = err
}

// LookupOrderStatus answers from the programmed table. Unknown orders return
// an error, matching an authority that has no record.
func (m *MockPaymentGateway) LookupOrderStatus(ctx context.Context, gatewayOrderID string) (*GatewayOrderStatus, error) {
	m.mu.Lock()
	m.calls[gatewayOrderID]++
	m.mu.Unlock()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err, ok := m.errors[gatewayOrderID]; ok {
		return nil, err
	}
	if status, ok := m.statuses[gatewayOrderID]; ok {
		copied := status
		return &copied, nil
	}
	return nil, fmt.Errorf("gateway has no record of order %s", gatewayOrderID)
}

// LookupCount returns how many lookups were made for a gateway order id
func (m *MockPaymentGateway) LookupCount(gatewayOrderID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[gatewayOrderID]
}
