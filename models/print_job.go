package models

import (
	"time"
)

// PrintJob is one unit of dispatchable print work, created exactly once per
// order when the order becomes printable. Jobs are never deleted; terminal
// states are kept as historical records, so there is no soft-delete column.
type PrintJob struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	OrderID     uint   `gorm:"uniqueIndex;not null" json:"order_id"` // at most one job per order
	OrderNumber string `gorm:"index;not null" json:"order_number"`

	// Customer display fields, denormalized so the queue screen needs no join.
	CustomerName  string `json:"customer_name"`
	CustomerEmail string `json:"customer_email"`

	// Document reference and printing options, snapshotted from the order.
	FileS3Key string `gorm:"not null" json:"file_s3_key"`
	FileType  string `json:"file_type"`
	Color     bool   `json:"color"`
	PaperSize string `gorm:"default:'A4'" json:"paper_size"`
	Duplex    bool   `json:"duplex"`
	Copies    int    `gorm:"default:1" json:"copies"`

	Priority int       `gorm:"default:0;index" json:"priority"`
	Status   JobStatus `gorm:"not null;default:'pending';index" json:"status"`

	EstimatedDuration int    `json:"estimated_duration"` // seconds
	ActualDuration    int    `json:"actual_duration"`    // seconds, set on completion
	RetryCount        int    `gorm:"default:0" json:"retry_count"`
	ErrorMessage      string `json:"error_message"`

	PrinterID       *uint      `json:"printer_id"`
	StartedAt       *time.Time `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	LastHeartbeatAt *time.Time `json:"last_heartbeat_at"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the PrintJob model
func (PrintJob) TableName() string {
	return "print_jobs"
}
