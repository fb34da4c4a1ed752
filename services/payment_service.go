package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/printhaus/printhaus-api/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ErrOrderNotFound is returned when a payment confirmation references an
// unknown gateway order.
var ErrOrderNotFound = errors.New("order not found")

// PaymentService applies payment confirmations. The webhook path and the
// reconciliation loop both funnel through ConfirmPayment, so the
// pending_payment→paid conditional write is the single serialization point:
// whichever caller lands first wins and the loser's write is a no-op.
type PaymentService struct {
	db         *gorm.DB
	notifier   NotificationInterface
	dispatcher *DispatchService
	log        *logrus.Entry
}

var paymentServiceInstance *PaymentService

// NewPaymentService creates a payment service
func NewPaymentService(db *gorm.DB, notifier NotificationInterface) *PaymentService {
	return &PaymentService{
		db:       db,
		notifier: notifier,
		log:      logrus.WithField("component", "payments"),
	}
}

// InitPaymentService creates and registers the process-wide payment service
func InitPaymentService(db *gorm.DB, notifier NotificationInterface) *PaymentService {
	paymentServiceInstance = NewPaymentService(db, notifier)
	return paymentServiceInstance
}

// GetPaymentService returns the registered payment service instance
func GetPaymentService() *PaymentService {
	return paymentServiceInstance
}

// SetPaymentService sets the payment service instance (primarily for testing)
func SetPaymentService(s *PaymentService) {
	paymentServiceInstance = s
}

// AttachDispatcher wires the dispatcher so a freshly paid order gets an
// immediate queue pass instead of waiting for the next tick.
func (s *PaymentService) AttachDispatcher(d *DispatchService) {
	s.dispatcher = d
}

// ConfirmPayment marks the order behind gatewayOrderID as paid and enqueues
// its print job. It is idempotent: the transition is a conditional write
// keyed on the order still being in pending_payment, so a webhook delivery
// and a reconciliation pass racing each other apply it exactly once.
// Returns whether this call was the one that applied the transition.
func (s *PaymentService) ConfirmPayment(gatewayOrderID, gatewayPaymentID string) (bool, error) {
	var order models.Order
	if err := s.db.Where("gateway_order_id = ?", gatewayOrderID).First(&order).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, fmt.Errorf("%w: gateway order %s", ErrOrderNotFound, gatewayOrderID)
		}
		return false, fmt.Errorf("failed to load order for gateway order %s: %w", gatewayOrderID, err)
	}

	res := s.db.Model(&models.Order{}).
		Where("id = ? AND status = ? AND payment_status = ?",
			order.ID, models.OrderStatePendingPayment, models.PaymentPending).
		Updates(map[string]interface{}{
			"status":             models.OrderStatePaid,
			"order_status":       models.DeriveOrderStatus(models.OrderStatePaid, models.PaymentCompleted),
			"payment_status":     models.PaymentCompleted,
			"gateway_payment_id": gatewayPaymentID,
			"print_status":       models.PrintPending,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark order %s paid: %w", order.OrderNumber, res.Error)
	}
	if res.RowsAffected == 0 {
		// Already applied by the other path. Nothing to do.
		s.log.WithField("order_number", order.OrderNumber).
			Debug("payment confirmation was a no-op, order already moved on")
		return false, nil
	}

	order.Status = models.OrderStatePaid
	order.OrderStatus = models.DeriveOrderStatus(models.OrderStatePaid, models.PaymentCompleted)
	order.PaymentStatus = models.PaymentCompleted
	order.GatewayPaymentID = gatewayPaymentID
	order.PrintStatus = models.PrintPending

	if _, err := s.enqueuePrintJob(&order); err != nil {
		// The order is paid either way; the job can still be created by a
		// support action. Loud log, no rollback.
		s.log.WithField("order_number", order.OrderNumber).
			WithError(err).Error("failed to enqueue print job for paid order")
	}

	s.notifier.Notify(NoticePaymentConfirmed, &order)

	if s.dispatcher != nil {
		go s.dispatcher.ProcessQueueOnce()
	}

	return true, nil
}

// enqueuePrintJob creates the order's print job. The unique index on
// print_jobs.order_id guarantees at most one job per order even when two
// confirmations race past the existence check.
func (s *PaymentService) enqueuePrintJob(order *models.Order) (*models.PrintJob, error) {
	var existing models.PrintJob
	err := s.db.Where("order_id = ?", order.ID).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to check for existing print job: %w", err)
	}

	var customer models.User
	if err := s.db.First(&customer, order.CustomerID).Error; err != nil {
		s.log.WithField("order_number", order.OrderNumber).
			WithError(err).Warn("could not load customer for print job display fields")
	}

	job := models.PrintJob{
		OrderID:           order.ID,
		OrderNumber:       order.OrderNumber,
		CustomerName:      customer.Name,
		CustomerEmail:     customer.Email,
		FileS3Key:         order.FileS3Key,
		FileType:          order.FileType,
		Color:             order.Color,
		PaperSize:         order.PaperSize,
		Duplex:            order.Duplex,
		Copies:            order.Copies,
		Status:            models.JobPending,
		EstimatedDuration: estimateDuration(order.Copies),
	}

	if err := s.db.Create(&job).Error; err != nil {
		if isUniqueViolation(err) {
			// Lost the race against a concurrent confirmation; the winner's
			// job is the job.
			if err := s.db.Where("order_id = ?", order.ID).First(&existing).Error; err == nil {
				return &existing, nil
			}
		}
		return nil, fmt.Errorf("failed to create print job: %w", err)
	}

	if err := s.db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("print_job_id", job.ID).Error; err != nil {
		s.log.WithField("order_number", order.OrderNumber).
			WithError(err).Warn("failed to back-reference print job on order")
	}
	order.PrintJobID = &job.ID

	return &job, nil
}

// estimateDuration is a coarse planning hint, not a promise.
func estimateDuration(copies int) int {
	if copies < 1 {
		copies = 1
	}
	return 60 + 30*copies
}

// isUniqueViolation detects duplicate-key errors from both PostgreSQL and SQLite
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "duplicate") || strings.Contains(msg, "unique")
}
