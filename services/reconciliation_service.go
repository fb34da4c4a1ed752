package services

import (
	"context"
	"time"

	"github.com/printhaus/printhaus-api/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	// reminderMinAge is how long an order must sit unpaid before the
	// one-time payment reminder goes out.
	reminderMinAge = 2 * time.Hour
	// expiryCutoff is the hard cutoff after which an unpaid order is marked
	// failed, gateway reachable or not.
	expiryCutoff = 24 * time.Hour
	// lookupTimeout bounds a single gateway lookup. It is far shorter than
	// any reconciliation period, so one hung call cannot starve the next pass.
	lookupTimeout = 10 * time.Second
)

// ReconcileSummary reports what one reconciliation pass did.
type ReconcileSummary struct {
	Checked    int `json:"checked"`
	MarkedPaid int `json:"marked_paid"`
	Expired    int `json:"expired"`
	Skipped    int `json:"skipped"`
}

// ReconciliationService re-derives payment truth from the external payment
// authority for orders whose webhook confirmation never arrived. All of its
// corrections go through PaymentService.ConfirmPayment, so a racing webhook
// and a reconciliation pass can never double-apply a side effect.
type ReconciliationService struct {
	db       *gorm.DB
	gateway  PaymentGatewayInterface
	payments *PaymentService
	notifier NotificationInterface
	log      *logrus.Entry
}

var reconciliationServiceInstance *ReconciliationService

// NewReconciliationService creates a reconciliation service
func NewReconciliationService(db *gorm.DB, gateway PaymentGatewayInterface, payments *PaymentService, notifier NotificationInterface) *ReconciliationService {
	return &ReconciliationService{
		db:       db,
		gateway:  gateway,
		payments: payments,
		notifier: notifier,
		log:      logrus.WithField("component", "reconciliation"),
	}
}

// InitReconciliationService creates and registers the process-wide
// reconciliation service
func InitReconciliationService(db *gorm.DB, gateway PaymentGatewayInterface, payments *PaymentService, notifier NotificationInterface) *ReconciliationService {
	reconciliationServiceInstance = NewReconciliationService(db, gateway, payments, notifier)
	return reconciliationServiceInstance
}

// GetReconciliationService returns the registered reconciliation service
func GetReconciliationService() *ReconciliationService {
	return reconciliationServiceInstance
}

// SetReconciliationService sets the reconciliation service (primarily for testing)
func SetReconciliationService(s *ReconciliationService) {
	reconciliationServiceInstance = s
}

// Reconcile checks every order that has sat in pending_payment for at least
// minAge against the payment authority and applies idempotent corrections.
// A transient lookup failure leaves the order untouched for the next pass;
// per-order errors never halt the batch.
func (s *ReconciliationService) Reconcile(ctx context.Context, minAge time.Duration) (ReconcileSummary, error) {
	summary := ReconcileSummary{}
	now := time.Now()

	var candidates []models.Order
	err := s.db.Where("payment_status = ? AND status = ? AND created_at < ?",
		models.PaymentPending, models.OrderStatePendingPayment, now.Add(-minAge)).
		Find(&candidates).Error
	if err != nil {
		return summary, err
	}

	for i := range candidates {
		order := &candidates[i]
		summary.Checked++

		if order.GatewayOrderID == "" {
			// Never submitted to the gateway; the expiry sweep will deal
			// with it.
			summary.Skipped++
			continue
		}

		lookupCtx, cancel := context.WithTimeout(ctx, lookupTimeout)
		status, err := s.gateway.LookupOrderStatus(lookupCtx, order.GatewayOrderID)
		cancel()
		if err != nil {
			// No answer is not a failed payment. Try again next pass.
			s.log.WithField("order_number", order.OrderNumber).
				WithError(err).Warn("gateway lookup failed, leaving order for next pass")
			summary.Skipped++
			continue
		}

		switch status.Status {
		case GatewayStatusPaid:
			applied, err := s.payments.ConfirmPayment(order.GatewayOrderID, status.PaymentID)
			if err != nil {
				s.log.WithField("order_number", order.OrderNumber).
					WithError(err).Error("failed to apply reconciled payment")
				continue
			}
			if applied {
				summary.MarkedPaid++
				s.log.WithField("order_number", order.OrderNumber).
					Info("payment recovered by reconciliation")
			}
		case GatewayStatusFailed:
			// Courtesy cleanup only, and only past the hard cutoff.
			if now.Sub(order.CreatedAt) > expiryCutoff {
				if s.expireOrder(order) {
					summary.Expired++
				}
			}
		case GatewayStatusPending:
			// Still waiting on the customer.
		}

		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
	}

	return summary, nil
}

// SendPaymentReminders sends the one-time reminder for orders unpaid between
// the reminder age and the expiry cutoff. The reminder marker is set by a
// conditional write, so overlapping sweeps send at most one notice.
func (s *ReconciliationService) SendPaymentReminders(ctx context.Context) (int, error) {
	now := time.Now()

	var candidates []models.Order
	err := s.db.Where(
		"payment_status = ? AND status = ? AND reminder_sent_at IS NULL AND created_at < ? AND created_at > ?",
		models.PaymentPending, models.OrderStatePendingPayment,
		now.Add(-reminderMinAge), now.Add(-expiryCutoff)).
		Find(&candidates).Error
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range candidates {
		order := &candidates[i]

		res := s.db.Model(&models.Order{}).
			Where("id = ? AND reminder_sent_at IS NULL", order.ID).
			Update("reminder_sent_at", now)
		if res.Error != nil {
			s.log.WithField("order_number", order.OrderNumber).
				WithError(res.Error).Error("failed to mark reminder sent")
			continue
		}
		if res.RowsAffected == 0 {
			continue // another sweep got there first
		}

		s.notifier.Notify(NoticePaymentReminder, order)
		sent++

		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
	}

	return sent, nil
}

// ExpireUnpaidOrders marks orders unpaid past the hard cutoff as failed,
// independent of gateway reachability. This is the expiry fallback, not a
// refund path: the fine state stays pending_payment so support can still
// revive the order.
func (s *ReconciliationService) ExpireUnpaidOrders(ctx context.Context) (int, error) {
	now := time.Now()

	var candidates []models.Order
	err := s.db.Where("payment_status = ? AND status = ? AND created_at < ?",
		models.PaymentPending, models.OrderStatePendingPayment, now.Add(-expiryCutoff)).
		Find(&candidates).Error
	if err != nil {
		return 0, err
	}

	expired := 0
	for i := range candidates {
		if s.expireOrder(&candidates[i]) {
			expired++
		}
		if ctx.Err() != nil {
			return expired, ctx.Err()
		}
	}

	return expired, nil
}

// expireOrder conditionally marks one unpaid order's payment as failed
func (s *ReconciliationService) expireOrder(order *models.Order) bool {
	res := s.db.Model(&models.Order{}).
		Where("id = ? AND payment_status = ? AND status = ?",
			order.ID, models.PaymentPending, models.OrderStatePendingPayment).
		Updates(map[string]interface{}{
			"payment_status": models.PaymentFailed,
			"order_status":   models.DeriveOrderStatus(models.OrderStatePendingPayment, models.PaymentFailed),
		})
	if res.Error != nil {
		s.log.WithField("order_number", order.OrderNumber).
			WithError(res.Error).Error("failed to expire unpaid order")
		return false
	}
	if res.RowsAffected == 0 {
		return false
	}

	order.PaymentStatus = models.PaymentFailed
	order.OrderStatus = models.OrderFailed
	s.notifier.Notify(NoticeOrderExpired, order)
	s.log.WithField("order_number", order.OrderNumber).Info("unpaid order expired")
	return true
}
