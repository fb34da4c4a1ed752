package utils

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"
)

const (
	// MaxFileSize is 50MB in bytes
	MaxFileSize = 50 * 1024 * 1024
)

// AllowedFormats are the document formats the print pipeline accepts.
var AllowedFormats = []string{".pdf", ".png", ".jpg", ".jpeg"}

// PrintFileError represents a print-file validation error
type PrintFileError struct {
	Code    string
	Message string
}

func (e *PrintFileError) Error() string {
	return e.Message
}

// ValidatePrintFile validates the uploaded document's format and size
func ValidatePrintFile(fileHeader *multipart.FileHeader) error {
	if fileHeader.Size > MaxFileSize {
		return &PrintFileError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxFileSize/(1024*1024)),
		}
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	for _, allowed := range AllowedFormats {
		if ext == allowed {
			return nil
		}
	}

	return &PrintFileError{
		Code:    "INVALID_FILE_FORMAT",
		Message: fmt.Sprintf("Only %s files are allowed", strings.Join(AllowedFormats, ", ")),
	}
}

// FileType returns the normalized file type of a document ("pdf", "png",
// "jpg"), used for printer capability matching.
func FileType(filename string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(filename)), ".")
	if ext == "jpeg" {
		return "jpg"
	}
	return ext
}

// ContentType maps a file type to its MIME content type
func ContentType(fileType string) string {
	switch fileType {
	case "pdf":
		return "application/pdf"
	case "png":
		return "image/png"
	case "jpg":
		return "image/jpeg"
	default:
		return "application/octet-stream"
	}
}
