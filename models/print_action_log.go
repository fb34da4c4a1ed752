package models

import (
	"time"
)

// PrintActionLog is the append-only audit trail of admin-triggered print
// transitions. Rows are write-once: nothing in the codebase updates or
// deletes them, and a failed write never blocks the action it records.
type PrintActionLog struct {
	ID             uint   `gorm:"primaryKey" json:"id"`
	Action         string `gorm:"not null;index" json:"action"` // reprint, remove_from_queue, reset_printing, force_printed
	OrderID        uint   `gorm:"not null;index" json:"order_id"`
	PrintJobID     *uint  `json:"print_job_id"`
	Actor          string `gorm:"not null" json:"actor"` // operator identity from the JWT sub claim
	PreviousStatus string `json:"previous_status"`
	NewStatus      string `json:"new_status"`
	Reason         string `json:"reason"`

	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for the PrintActionLog model
func (PrintActionLog) TableName() string {
	return "print_action_logs"
}
