package services

import (
	"sync"

	"github.com/printhaus/printhaus-api/models"
)

// SentNotification records one mock notification for test assertions
type SentNotification struct {
	Kind        string
	OrderID     uint
	OrderNumber string
}

// MockNotificationService is a mock implementation of the notification
// service for testing
type MockNotificationService struct {
	mu   sync.Mutex
	sent []SentNotification
}

// NewMockNotificationService creates a new mock notification service
func NewMockNotificationService() *MockNotificationService {
	return &MockNotificationService{}
}

// Notify records the notification
func (m *MockNotificationService) Notify(kind string, order *models.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, SentNotification{
		Kind:        kind,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
	})
}

// Sent returns a copy of all recorded notifications
func (m *MockNotificationService) Sent() []SentNotification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentNotification, len(m.sent))
	copy(out, m.sent)
	return out
}

// CountByKind returns how many notifications of a kind were recorded
func (m *MockNotificationService) CountByKind(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, n := range m.sent {
		if n.Kind == kind {
			count++
		}
	}
	return count
}

// Clear removes all recorded notifications
func (m *MockNotificationService) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
}
