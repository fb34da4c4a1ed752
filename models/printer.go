package models

import (
	"strings"
	"time"
)

// Printer is a registered output device. Status is owned by the dispatch
// service; the printer admin endpoints only edit capabilities and metadata.
// IsActive is a soft-delete flag: inactive printers are never assigned work.
type Printer struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"uniqueIndex;not null" json:"name"`
	Location string `json:"location"`

	// Capabilities, matched against job requirements at dispatch time.
	SupportedFileTypes string `gorm:"default:'pdf'" json:"supported_file_types"` // comma-separated
	SupportedSizes     string `gorm:"default:'A4'" json:"supported_sizes"`       // comma-separated
	Color              bool   `json:"color"`
	Duplex             bool   `json:"duplex"`

	Status   PrinterStatus `gorm:"not null;default:'offline';index" json:"status"`
	IsActive bool          `gorm:"default:true;index" json:"is_active"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for the Printer model
func (Printer) TableName() string {
	return "printers"
}

// CanPrint reports whether the printer's capabilities satisfy the job's
// requirements. A job needing color on a mono printer, an unsupported paper
// size or an unsupported file type is not assignable.
func (p *Printer) CanPrint(job *PrintJob) bool {
	if job.Color && !p.Color {
		return false
	}
	if job.Duplex && !p.Duplex {
		return false
	}
	if !hasToken(p.SupportedFileTypes, job.FileType) {
		return false
	}
	if !hasToken(p.SupportedSizes, job.PaperSize) {
		return false
	}
	return true
}

// hasToken checks a comma-separated capability list for a value, ignoring
// case and surrounding whitespace.
func hasToken(list, value string) bool {
	if value == "" {
		return true
	}
	for _, token := range strings.Split(list, ",") {
		if strings.EqualFold(strings.TrimSpace(token), strings.TrimSpace(value)) {
			return true
		}
	}
	return false
}
