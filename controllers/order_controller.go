package controllers

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/printhaus/printhaus-api/config"
	"github.com/printhaus/printhaus-api/middleware"
	"github.com/printhaus/printhaus-api/models"
	"github.com/printhaus/printhaus-api/services"
	"github.com/printhaus/printhaus-api/utils"
	"github.com/sirupsen/logrus"
)

// CreateOrder handles POST /api/v1/orders - creates a draft order from a
// multipart form carrying the print document and printing options.
func CreateOrder(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	db := config.GetDB()
	user, err := findOrCreateCustomer(auth0ID, c.PostForm("customer_name"), c.PostForm("customer_email"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to resolve customer profile",
			},
		})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "MISSING_FILE",
				"message": "A print document is required",
			},
		})
		return
	}

	if err := utils.ValidatePrintFile(fileHeader); err != nil {
		fileErr := err.(*utils.PrintFileError)
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    fileErr.Code,
				"message": fileErr.Message,
			},
		})
		return
	}

	amount, err := strconv.ParseFloat(c.PostForm("amount"), 64)
	if err != nil || amount <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "A positive amount is required",
			},
		})
		return
	}

	copies, _ := strconv.Atoi(c.DefaultPostForm("copies", "1"))
	if copies < 1 {
		copies = 1
	}
	paperSize := c.DefaultPostForm("paper_size", "A4")
	color := c.PostForm("color") == "true"
	duplex := c.PostForm("duplex") == "true"

	store := services.GetS3Service()
	if store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "STORAGE_UNAVAILABLE",
				"message": "Document storage is not available",
			},
		})
		return
	}

	s3Key, err := store.UploadPrintFile(fileHeader)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UPLOAD_FAILED",
				"message": "Failed to store the print document",
			},
		})
		return
	}

	order := models.Order{
		OrderNumber: fmt.Sprintf("PH-%s", uuid.NewString()[:8]),
		CustomerID:  user.ID,
		Status:      models.OrderStateDraft,
		OrderStatus: models.DeriveOrderStatus(models.OrderStateDraft, models.PaymentPending),
		Amount:      amount,
		FileS3Key:   s3Key,
		FileType:    utils.FileType(fileHeader.Filename),
		Color:       color,
		PaperSize:   paperSize,
		Duplex:      duplex,
		Copies:      copies,
	}

	if err := db.Create(&order).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to create order",
			},
		})
		return
	}

	if err := db.Preload("Customer").First(&order, order.ID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to load order details",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"data":    order,
	})
}

// SubmitOrder handles POST /api/v1/orders/:id/submit - moves a draft order
// to pending_payment and assigns its payment-gateway correlation id. The
// actual checkout session lives in the external payment collaborator.
func SubmitOrder(c *gin.Context) {
	order, ok := loadOwnOrder(c)
	if !ok {
		return
	}

	db := config.GetDB()
	gatewayOrderID := fmt.Sprintf("gw_%s", uuid.NewString())

	result, err := services.ApplyOrderTransition(db, order, models.OrderStatePendingPayment, false)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CONFLICT",
				"message": "Order changed concurrently, try again",
			},
		})
		return
	}
	if !result.Allowed {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_TRANSITION",
				"message": result.Reason,
			},
		})
		return
	}

	if err := db.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("gateway_order_id", gatewayOrderID).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to record gateway order",
			},
		})
		return
	}
	order.GatewayOrderID = gatewayOrderID

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// GetOrder handles GET /api/v1/orders/:id - customers see their own orders,
// operators see all.
func GetOrder(c *gin.Context) {
	order, ok := loadOwnOrder(c)
	if !ok {
		return
	}

	if store := services.GetS3Service(); store != nil {
		if url, err := store.GetDocumentURL(order.FileS3Key); err == nil {
			order.FileURL = url
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    order,
	})
}

// ListOrders handles GET /api/v1/orders
func ListOrders(c *gin.Context) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return
	}

	db := config.GetDB()
	query := db.Preload("Customer").Order("created_at DESC")

	if middleware.GetRole(c) != "operator" {
		var user models.User
		if err := db.Where("auth0_id = ?", auth0ID).First(&user).Error; err != nil {
			c.JSON(http.StatusOK, gin.H{"success": true, "data": []models.Order{}})
			return
		}
		query = query.Where("customer_id = ?", user.ID)
	}

	var orders []models.Order
	if err := query.Find(&orders).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to list orders",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    orders,
	})
}

// DeleteOrder handles DELETE /api/v1/orders/:id - discards a draft order
// before submission. The stored document is removed best-effort; a storage
// hiccup must not strand the order record.
func DeleteOrder(c *gin.Context) {
	order, ok := loadOwnOrder(c)
	if !ok {
		return
	}

	if order.Status != models.OrderStateDraft {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_TRANSITION",
				"message": "Only draft orders can be deleted",
			},
		})
		return
	}

	db := config.GetDB()
	res := db.Where("id = ? AND status = ?", order.ID, models.OrderStateDraft).
		Delete(&models.Order{})
	if res.Error != nil || res.RowsAffected == 0 {
		c.JSON(http.StatusConflict, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "CONFLICT",
				"message": "Order changed concurrently, try again",
			},
		})
		return
	}

	if store := services.GetS3Service(); store != nil && order.FileS3Key != "" {
		if err := store.DeleteFile(order.FileS3Key); err != nil {
			logrus.WithField("order_number", order.OrderNumber).
				WithError(err).Warn("failed to delete stored document")
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"deleted": true}})
}

// findOrCreateCustomer resolves the customer record for a JWT subject,
// creating a minimal profile on first contact.
func findOrCreateCustomer(auth0ID, name, email string) (*models.User, error) {
	db := config.GetDB()

	var user models.User
	err := db.Where("auth0_id = ?", auth0ID).First(&user).Error
	if err == nil {
		return &user, nil
	}

	user = models.User{
		Auth0ID: auth0ID,
		Name:    name,
		Email:   email,
		Role:    "customer",
	}
	if err := db.Create(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// loadOwnOrder loads the :id order and enforces ownership for customers.
// It writes the error response itself and reports success via the bool.
func loadOwnOrder(c *gin.Context) (*models.Order, bool) {
	auth0ID, err := middleware.GetUserID(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return nil, false
	}

	db := config.GetDB()
	var order models.Order
	if err := db.Preload("Customer").First(&order, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "ORDER_NOT_FOUND",
				"message": "Order not found",
			},
		})
		return nil, false
	}

	if middleware.GetRole(c) != "operator" && order.Customer.Auth0ID != auth0ID {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "You do not have access to this order",
			},
		})
		return nil, false
	}

	return &order, true
}
