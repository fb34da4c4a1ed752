package services

import (
	"github.com/printhaus/printhaus-api/models"
	"github.com/sirupsen/logrus"
)

// Notification kinds handed to the external notification collaborator.
const (
	NoticePaymentConfirmed = "payment_confirmed"
	NoticePaymentReminder  = "payment_reminder"
	NoticeOrderExpired     = "order_expired"
	NoticeOrderDispatched  = "order_dispatched"
	NoticePrintFailed      = "print_failed"
)

// NotificationInterface is the fire-and-forget contract of the outbound
// notification service. Implementations must never block or fail the caller.
type NotificationInterface interface {
	Notify(kind string, order *models.Order)
}

var notificationInstance NotificationInterface = &LogNotificationService{}

// GetNotificationService returns the active notification service
func GetNotificationService() NotificationInterface {
	return notificationInstance
}

// SetNotificationService sets the notification service (primarily for testing)
func SetNotificationService(n NotificationInterface) {
	notificationInstance = n
}

// LogNotificationService is the default sink: it records the notice in the
// structured log. Email/SMS composition lives in an external collaborator.
type LogNotificationService struct{}

// Notify logs the notification
func (s *LogNotificationService) Notify(kind string, order *models.Order) {
	logrus.WithFields(logrus.Fields{
		"kind":         kind,
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"status":       order.Status,
	}).Info("notification dispatched")
}
