package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/printhaus/printhaus-api/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type reconcileFixture struct {
	db         *gorm.DB
	gateway    *MockPaymentGateway
	notifier   *MockNotificationService
	reconciler *ReconciliationService
}

func setupReconcileTest(t *testing.T) *reconcileFixture {
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

	gateway := NewMockPaymentGateway()
	notifier := NewMockNotificationService()
	payments := NewPaymentService(db, notifier)
	return &reconcileFixture{
		db:         db,
		gateway:    gateway,
		notifier:   notifier,
		reconciler: NewReconciliationService(db, gateway, payments, notifier),
	}
}

func (f *reconcileFixture) seedUnpaidOrder(t *testing.T, number, gatewayOrderID string, age time.Duration) *models.Order {
	t.Helper()

	customer := models.User{Auth0ID: "auth0|" + number, Name: "Sam Lee", Email: number + "@example.com", Role: "customer"}
	require.NoError(t, f.db.Create(&customer).Error)

	order := models.Order{
		OrderNumber:    number,
		CustomerID:     customer.ID,
		Status:         models.OrderStatePendingPayment,
		OrderStatus:    models.OrderPending,
		PaymentStatus:  models.PaymentPending,
		GatewayOrderID: gatewayOrderID,
		Amount:         8,
		FileS3Key:      "print-files/" + number + ".pdf",
		FileType:       "pdf",
		PaperSize:      "A4",
		Copies:         1,
	}
	require.NoError(t, f.db.Create(&order).Error)
	require.NoError(t, f.db.Model(&order).Update("created_at", time.Now().Add(-age)).Error)
	return &order
}

func TestReconcile_RecoversMissedWebhook(t *testing.T) {
	f := setupReconcileTest(t)

	// Paid ten minutes ago at the gateway, but the webhook never arrived.
	order := f.seedUnpaidOrder(t, "PH-REC-1", "gw_rec1", 10*time.Minute)
	f.gateway.SetOrderStatus("gw_rec1", GatewayStatusPaid, "pay_rec1")

	summary, err := f.reconciler.Reconcile(context.Background(), 5*time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.MarkedPaid)

	var stored models.Order
	f.db.First(&stored, order.ID)
	assert.Equal(t, models.OrderStatePaid, stored.Status)
	assert.Equal(t, models.PaymentCompleted, stored.PaymentStatus)
	assert.Equal(t, "pay_rec1", stored.GatewayPaymentID)

	var jobs []models.PrintJob
	f.db.Find(&jobs)
	assert.Len(t, jobs, 1)
}

func TestReconcile_SecondPassIsNoop(t *testing.T) {
	f := setupReconcileTest(t)

	f.seedUnpaidOrder(t, "PH-REC-2", "gw_rec2", 10*time.Minute)
	f.gateway.SetOrderStatus("gw_rec2", GatewayStatusPaid, "pay_rec2")

	first, err := f.reconciler.Reconcile(context.Background(), 5*time.Minute)
	require.NoError(t, err)
	require.Equal(t, 1, first.MarkedPaid)

	// Once paid the order drops out of the candidate set entirely.
	second, err := f.reconciler.Reconcile(context.Background(), 5*time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, 0, second.Checked)

	var jobs []models.PrintJob
	f.db.Find(&jobs)
	assert.Len(t, jobs, 1)
	assert.Equal(t, 1, f.notifier.CountByKind(NoticePaymentConfirmed))
}

func TestReconcile_YoungOrdersAreNotChecked(t *testing.T) {
	f := setupReconcileTest(t)

	f.seedUnpaidOrder(t, "PH-REC-3", "gw_rec3", time.Minute)
	f.gateway.SetOrderStatus("gw_rec3", GatewayStatusPaid, "pay_rec3")

	summary, err := f.reconciler.Reconcile(context.Background(), 5*time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, 0, summary.Checked)
	assert.Equal(t, 0, f.gateway.LookupCount("gw_rec3"))
}

func TestReconcile_UnreachableGatewayLeavesOrderUntouched(t *testing.T) {
	f := setupReconcileTest(t)

	order := f.seedUnpaidOrder(t, "PH-REC-4", "gw_rec4", time.Hour)
	f.gateway.SetLookupError("gw_rec4", errors.New("connection refused"))

	summary, err := f.reconciler.Reconcile(context.Background(), 5*time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Skipped)

	var stored models.Order
	f.db.First(&stored, order.ID)
	assert.Equal(t, models.OrderStatePendingPayment, stored.Status)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
}

func TestReconcile_StillPendingIsLeftAlone(t *testing.T) {
	f := setupReconcileTest(t)

	order := f.seedUnpaidOrder(t, "PH-REC-5", "gw_rec5", time.Hour)
	f.gateway.SetOrderStatus("gw_rec5", GatewayStatusPending, "")

	summary, err := f.reconciler.Reconcile(context.Background(), 5*time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 0, summary.MarkedPaid)
	assert.Equal(t, 0, summary.Expired)

	var stored models.Order
	f.db.First(&stored, order.ID)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)
}

func TestReconcile_FailedAtGatewayExpiresOnlyPastCutoff(t *testing.T) {
	f := setupReconcileTest(t)

	young := f.seedUnpaidOrder(t, "PH-REC-6", "gw_rec6", 3*time.Hour)
	old := f.seedUnpaidOrder(t, "PH-REC-7", "gw_rec7", 25*time.Hour)
	f.gateway.SetOrderStatus("gw_rec6", GatewayStatusFailed, "")
	f.gateway.SetOrderStatus("gw_rec7", GatewayStatusFailed, "")

	summary, err := f.reconciler.Reconcile(context.Background(), 5*time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, 2, summary.Checked)
	assert.Equal(t, 1, summary.Expired)

	var stored models.Order
	f.db.First(&stored, young.ID)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)

	stored = models.Order{}
	f.db.First(&stored, old.ID)
	assert.Equal(t, models.PaymentFailed, stored.PaymentStatus)
	assert.Equal(t, models.OrderFailed, stored.OrderStatus)
	// The fine state stays put so support can still revive the order.
	assert.Equal(t, models.OrderStatePendingPayment, stored.Status)
}

func TestReconcile_OrderWithoutGatewayIDIsSkipped(t *testing.T) {
	f := setupReconcileTest(t)

	f.seedUnpaidOrder(t, "PH-REC-8", "", time.Hour)

	summary, err := f.reconciler.Reconcile(context.Background(), 5*time.Minute)
	assert.NoError(t, err)
	assert.Equal(t, 1, summary.Checked)
	assert.Equal(t, 1, summary.Skipped)
}

func TestExpireUnpaidOrders(t *testing.T) {
	f := setupReconcileTest(t)

	fresh := f.seedUnpaidOrder(t, "PH-EXP-1", "gw_exp1", 2*time.Hour)
	stale := f.seedUnpaidOrder(t, "PH-EXP-2", "gw_exp2", 25*time.Hour)

	expired, err := f.reconciler.ExpireUnpaidOrders(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, expired)

	var stored models.Order
	f.db.First(&stored, fresh.ID)
	assert.Equal(t, models.PaymentPending, stored.PaymentStatus)

	stored = models.Order{}
	f.db.First(&stored, stale.ID)
	assert.Equal(t, models.PaymentFailed, stored.PaymentStatus)
	assert.Equal(t, models.OrderFailed, stored.OrderStatus)
	assert.Equal(t, models.OrderStatePendingPayment, stored.Status)

	assert.Equal(t, 1, f.notifier.CountByKind(NoticeOrderExpired))

	// The sweep is idempotent across runs.
	expired, err = f.reconciler.ExpireUnpaidOrders(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, expired)
	assert.Equal(t, 1, f.notifier.CountByKind(NoticeOrderExpired))
}

func TestSendPaymentReminders(t *testing.T) {
	f := setupReconcileTest(t)

	tooYoung := f.seedUnpaidOrder(t, "PH-REM-1", "gw_rem1", time.Hour)
	due := f.seedUnpaidOrder(t, "PH-REM-2", "gw_rem2", 3*time.Hour)
	tooOld := f.seedUnpaidOrder(t, "PH-REM-3", "gw_rem3", 25*time.Hour)

	sent, err := f.reconciler.SendPaymentReminders(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 1, sent)

	var stored models.Order
	f.db.First(&stored, due.ID)
	assert.NotNil(t, stored.ReminderSentAt)

	stored = models.Order{}
	f.db.First(&stored, tooYoung.ID)
	assert.Nil(t, stored.ReminderSentAt)
	stored = models.Order{}
	f.db.First(&stored, tooOld.ID)
	assert.Nil(t, stored.ReminderSentAt)

	// One reminder per order, ever.
	sent, err = f.reconciler.SendPaymentReminders(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, 0, sent)
	assert.Equal(t, 1, f.notifier.CountByKind(NoticePaymentReminder))
}
