package services

import (
	"sync"
	"testing"

	"github.com/printhaus/printhaus-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupPaymentTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.User{}, &models.Order{}, &models.PrintJob{}); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	return db
}

func seedAwaitingPaymentOrder(t *testing.T, db *gorm.DB, number, gatewayOrderID string) *models.Order {
	t.Helper()

	customer := models.User{Auth0ID: "auth0|" + number, Name: "Pat Doe", Email: number + "@example.com", Role: "customer"}
	require.NoError(t, db.Create(&customer).Error)

	order := models.Order{
		OrderNumber:    number,
		CustomerID:     customer.ID,
		Status:         models.OrderStatePendingPayment,
		OrderStatus:    models.OrderPending,
		PaymentStatus:  models.PaymentPending,
		GatewayOrderID: gatewayOrderID,
		Amount:         12.50,
		FileS3Key:      "print-files/" + number + ".pdf",
		FileType:       "pdf",
		PaperSize:      "A4",
		Copies:         2,
	}
	require.NoError(t, db.Create(&order).Error)
	return &order
}

func TestConfirmPayment_MarksOrderPaidAndEnqueuesJob(t *testing.T) {
	db := setupPaymentTestDB(t)
	notifier := NewMockNotificationService()
	payments := NewPaymentService(db, notifier)

	order := seedAwaitingPaymentOrder(t, db, "PH-PAY-1", "gw_abc")

	applied, err := payments.ConfirmPayment("gw_abc", "pay_123")
	assert.NoError(t, err)
	assert.True(t, applied)

	var stored models.Order
	db.First(&stored, order.ID)
	assert.Equal(t, models.OrderStatePaid, stored.Status)
	assert.Equal(t, models.OrderPending, stored.OrderStatus)
	assert.Equal(t, models.PaymentCompleted, stored.PaymentStatus)
	assert.Equal(t, "pay_123", stored.GatewayPaymentID)
	assert.Equal(t, models.PrintPending, stored.PrintStatus)
	require.NotNil(t, stored.PrintJobID)

	var job models.PrintJob
	require.NoError(t, db.First(&job, *stored.PrintJobID).Error)
	assert.Equal(t, order.ID, job.OrderID)
	assert.Equal(t, models.JobPending, job.Status)
	assert.Equal(t, "Pat Doe", job.CustomerName)
	assert.Equal(t, order.FileS3Key, job.FileS3Key)
	assert.Equal(t, 2, job.Copies)
	assert.Equal(t, 120, job.EstimatedDuration)

	assert.Equal(t, 1, notifier.CountByKind(NoticePaymentConfirmed))
}

func TestConfirmPayment_IsIdempotent(t *testing.T) {
	db := setupPaymentTestDB(t)
	notifier := NewMockNotificationService()
	payments := NewPaymentService(db, notifier)

	seedAwaitingPaymentOrder(t, db, "PH-PAY-2", "gw_dup")

	applied, err := payments.ConfirmPayment("gw_dup", "pay_1")
	require.NoError(t, err)
	require.True(t, applied)

	// The retry and the reconciliation pass both land after the fact.
	applied, err = payments.ConfirmPayment("gw_dup", "pay_other")
	assert.NoError(t, err)
	assert.False(t, applied)

	var jobs []models.PrintJob
	db.Find(&jobs)
	assert.Len(t, jobs, 1)

	var stored models.Order
	db.Where("gateway_order_id = ?", "gw_dup").First(&stored)
	assert.Equal(t, "pay_1", stored.GatewayPaymentID, "losing confirmation must not overwrite the payment id")

	assert.Equal(t, 1, notifier.CountByKind(NoticePaymentConfirmed))
}

func TestConfirmPayment_ConcurrentConfirmationsApplyOnce(t *testing.T) {
	db := setupPaymentTestDB(t)
	notifier := NewMockNotificationService()
	payments := NewPaymentService(db, notifier)

	seedAwaitingPaymentOrder(t, db, "PH-PAY-3", "gw_race")

	var wg sync.WaitGroup
	results := make([]bool, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			applied, _ := payments.ConfirmPayment("gw_race", "pay_race")
			results[slot] = applied
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, applied := range results {
		if applied {
			wins++
		}
	}
	assert.Equal(t, 1, wins)

	var jobs []models.PrintJob
	db.Find(&jobs)
	assert.Len(t, jobs, 1)
	assert.Equal(t, 1, notifier.CountByKind(NoticePaymentConfirmed))
}

func TestConfirmPayment_UnknownGatewayOrder(t *testing.T) {
	db := setupPaymentTestDB(t)
	payments := NewPaymentService(db, NewMockNotificationService())

	applied, err := payments.ConfirmPayment("gw_missing", "pay_x")
	assert.False(t, applied)
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestConfirmPayment_DraftOrderIsNotConfirmable(t *testing.T) {
	db := setupPaymentTestDB(t)
	payments := NewPaymentService(db, NewMockNotificationService())

	order := seedAwaitingPaymentOrder(t, db, "PH-PAY-4", "gw_draft")
	require.NoError(t, db.Model(order).Update("status", models.OrderStateDraft).Error)

	applied, err := payments.ConfirmPayment("gw_draft", "pay_x")
	assert.NoError(t, err)
	assert.False(t, applied)

	var stored models.Order
	db.First(&stored, order.ID)
	assert.Equal(t, models.OrderStateDraft, stored.Status)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
}

func TestEstimateDuration(t *testing.T) {
	assert.Equal(t, 90, estimateDuration(1))
	assert.Equal(t, 360, estimateDuration(10))
	// Degenerate copy counts fall back to a single copy.
	assert.Equal(t, 90, estimateDuration(0))
	assert.Equal(t, 90, estimateDuration(-3))
}
