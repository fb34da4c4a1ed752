package services

import (
	"github.com/printhaus/printhaus-api/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// RecordPrintAction appends an entry to the print action audit trail.
// The log must never block the transition it records, so write failures are
// logged and swallowed.
func RecordPrintAction(db *gorm.DB, action string, orderID uint, jobID *uint, actor, previousStatus, newStatus, reason string) {
	entry := models.PrintActionLog{
		Action:         action,
		OrderID:        orderID,
		PrintJobID:     jobID,
		Actor:          actor,
		PreviousStatus: previousStatus,
		NewStatus:      newStatus,
		Reason:         reason,
	}

	if err := db.Create(&entry).Error; err != nil {
		logrus.WithFields(logrus.Fields{
			"action":   action,
			"order_id": orderID,
			"actor":    actor,
		}).WithError(err).Error("failed to write print action log")
	}
}
