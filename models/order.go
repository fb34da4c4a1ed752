package models

import (
	"time"

	"gorm.io/gorm"
)

// Order represents one customer purchase spanning payment, printing and
// delivery. Status (fine) and OrderStatus (coarse) are a derived pair; both
// are written together by the transition applier in the services package.
type Order struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	OrderNumber string `gorm:"uniqueIndex;not null" json:"order_number"`
	CustomerID  uint   `gorm:"not null;index" json:"customer_id"`
	Customer    User   `gorm:"foreignKey:CustomerID" json:"customer"`

	Status        OrderState    `gorm:"not null;default:'draft';index" json:"status"`
	OrderStatus   OrderStatus   `gorm:"not null;default:'pending'" json:"order_status"`
	PaymentStatus PaymentStatus `gorm:"not null;default:'pending';index" json:"payment_status"`

	// Payment-gateway correlation.
	GatewayOrderID   string `gorm:"index" json:"gateway_order_id"`
	GatewayPaymentID string `json:"gateway_payment_id"`

	Amount float64 `gorm:"not null" json:"amount"` // precomputed by the pricing service

	// Print document and options, snapshotted onto the PrintJob at enqueue time.
	FileS3Key string `json:"file_s3_key"`
	FileURL   string `gorm:"-" json:"file_url,omitempty"` // presigned, computed on read
	FileType  string `json:"file_type"`                   // "pdf", "png", ...
	Color     bool   `json:"color"`
	PaperSize string `gorm:"default:'A4'" json:"paper_size"`
	Duplex    bool   `json:"duplex"`
	Copies    int    `gorm:"default:1" json:"copies"`

	// Print-queue tracking. PrintStatus is only meaningful once
	// PaymentStatus is completed; the dispatcher enforces that on claim.
	PrintStatus         PrintStatus `gorm:"default:'';index" json:"print_status"`
	PrintStartedAt      *time.Time  `json:"print_started_at"`
	PrintCompletedAt    *time.Time  `json:"print_completed_at"`
	PrintingHeartbeatAt *time.Time  `json:"printing_heartbeat_at"`
	PrinterID           *uint       `json:"printer_id"`
	PrinterName         string      `json:"printer_name"`
	PrintingBy          string      `json:"printing_by"`
	PrintJobID          *uint       `gorm:"index" json:"print_job_id"`
	PrintError          string      `json:"print_error"`

	// One-time unpaid-order reminder marker.
	ReminderSentAt *time.Time `json:"reminder_sent_at,omitempty"`

	CreatedAt time.Time      `gorm:"index" json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName specifies the table name for the Order model
func (Order) TableName() string {
	return "orders"
}
