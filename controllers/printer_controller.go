package controllers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/printhaus/printhaus-api/config"
	"github.com/printhaus/printhaus-api/middleware"
	"github.com/printhaus/printhaus-api/models"
)

// PrinterRequest is the payload for registering or editing a printer.
// Status is deliberately absent: only the dispatcher writes it.
type PrinterRequest struct {
	Name               string `json:"name"`
	Location           string `json:"location"`
	SupportedFileTypes string `json:"supported_file_types"`
	SupportedSizes     string `json:"supported_sizes"`
	Color              *bool  `json:"color"`
	Duplex             *bool  `json:"duplex"`
}

// RegisterPrinter handles POST /api/v1/admin/printers
func RegisterPrinter(c *gin.Context) {
	if !requireOperator(c) {
		return
	}

	var req PrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Name == "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "A printer name is required",
			},
		})
		return
	}

	printer := models.Printer{
		Name:     req.Name,
		Location: req.Location,
		Status:   models.PrinterOffline,
		IsActive: true,
	}
	if req.SupportedFileTypes != "" {
		printer.SupportedFileTypes = req.SupportedFileTypes
	}
	if req.SupportedSizes != "" {
		printer.SupportedSizes = req.SupportedSizes
	}
	if req.Color != nil {
		printer.Color = *req.Color
	}
	if req.Duplex != nil {
		printer.Duplex = *req.Duplex
	}

	db := config.GetDB()
	if err := db.Create(&printer).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to register printer",
			},
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"success": true, "data": printer})
}

// UpdatePrinter handles PUT /api/v1/admin/printers/:id - edits capabilities
// and metadata only, never status.
func UpdatePrinter(c *gin.Context) {
	if !requireOperator(c) {
		return
	}

	db := config.GetDB()
	var printer models.Printer
	if err := db.First(&printer, "id = ?", c.Param("id")).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PRINTER_NOT_FOUND",
				"message": "Printer not found",
			},
		})
		return
	}

	var req PrinterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "VALIDATION_ERROR",
				"message": "Invalid request data",
			},
		})
		return
	}

	updates := map[string]interface{}{}
	if req.Name != "" {
		updates["name"] = req.Name
	}
	if req.Location != "" {
		updates["location"] = req.Location
	}
	if req.SupportedFileTypes != "" {
		updates["supported_file_types"] = req.SupportedFileTypes
	}
	if req.SupportedSizes != "" {
		updates["supported_sizes"] = req.SupportedSizes
	}
	if req.Color != nil {
		updates["color"] = *req.Color
	}
	if req.Duplex != nil {
		updates["duplex"] = *req.Duplex
	}

	if len(updates) > 0 {
		if err := db.Model(&printer).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "DATABASE_ERROR",
					"message": "Failed to update printer",
				},
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": printer})
}

// DeactivatePrinter handles DELETE /api/v1/admin/printers/:id - soft-delete.
// The record stays for job history; the dispatcher skips inactive printers.
func DeactivatePrinter(c *gin.Context) {
	if !requireOperator(c) {
		return
	}

	db := config.GetDB()
	res := db.Model(&models.Printer{}).
		Where("id = ?", c.Param("id")).
		Update("is_active", false)
	if res.Error != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to deactivate printer",
			},
		})
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "PRINTER_NOT_FOUND",
				"message": "Printer not found",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": gin.H{"is_active": false}})
}

// ListPrinters handles GET /api/v1/admin/printers
func ListPrinters(c *gin.Context) {
	if !requireOperator(c) {
		return
	}

	db := config.GetDB()
	var printers []models.Printer
	if err := db.Order("id ASC").Find(&printers).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "DATABASE_ERROR",
				"message": "Failed to list printers",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"success": true, "data": printers})
}

// requireOperator enforces the operator role and writes the error response
// itself on failure.
func requireOperator(c *gin.Context) bool {
	if _, err := middleware.GetUserID(c); err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "UNAUTHORIZED",
				"message": "Could not extract user information",
			},
		})
		return false
	}
	if middleware.GetRole(c) != "operator" {
		c.JSON(http.StatusForbidden, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "FORBIDDEN",
				"message": "Only operators can manage printers",
			},
		})
		return false
	}
	return true
}
