package controllers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/printhaus/printhaus-api/services"
	"github.com/sirupsen/logrus"
)

// PaymentWebhookRequest is the payload the payment gateway pushes on a
// payment event.
type PaymentWebhookRequest struct {
	GatewayOrderID   string `json:"gateway_order_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id"`
	Status           string `json:"status" binding:"required"`
}

// HandlePaymentWebhook handles POST /api/v1/webhooks/payment - the primary,
// push-based payment confirmation path. The reconciliation loop is its
// backup; both funnel into the same idempotent confirmation, so a webhook
// that arrives late or twice is harmless.
func HandlePaymentWebhook(c *gin.Context) {
	var req PaymentWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid webhook payload",
				"details": err.Error(),
			},
		})
		return
	}

	if req.Status != services.GatewayStatusPaid {
		// Failure/expiry events are handled by the scheduled sweeps; ack and
		// move on so the gateway stops retrying.
		logrus.WithFields(logrus.Fields{
			"gateway_order_id": req.GatewayOrderID,
			"status":           req.Status,
		}).Info("ignoring non-paid payment webhook")
		c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"applied": false}})
		return
	}

	payments := services.GetPaymentService()
	if payments == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "SERVICE_UNAVAILABLE",
				"message": "Payment processing is not available",
			},
		})
		return
	}

	applied, err := payments.ConfirmPayment(req.GatewayOrderID, req.GatewayPaymentID)
	if err != nil {
		if errors.Is(err, services.ErrOrderNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "ORDER_NOT_FOUND",
					"message": "No order matches this gateway order id",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CONFIRMATION_FAILED",
				"message": "Failed to apply payment confirmation",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    gin.H{"applied": applied},
	})
}
