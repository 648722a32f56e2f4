package api

import (
	"errors"
	"fmt"
	"mime"
	"slices"
	"strings"
)

// MaxUploadSize is the largest file the backend accepts.
const MaxUploadSize = 10 * 1024 * 1024

// AllowedTypes lists the MIME types the backend accepts for uploads.
var AllowedTypes = []string{
	"image/jpeg",
	"image/jpg",
	"image/png",
	"image/gif",
	"image/webp",
	"application/pdf",
	"text/plain",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"application/zip",
	"application/x-zip-compressed",
	"application/x-rar-compressed",
	"application/x-7z-compressed",
}

var (
	ErrFileTooLarge       = errors.New("file too large")
	ErrFileTypeNotAllowed = errors.New("file type not allowed")
	ErrEmptyContent       = errors.New("message content is empty")
)

// ValidationError is a client-side rejection. Requests that fail validation
// are never sent.
type ValidationError struct {
	Err         error
	Size        int64
	ContentType string
}

func (e *ValidationError) Error() string {
	switch {
	case errors.Is(e.Err, ErrFileTooLarge):
		return fmt.Sprintf("File too large (%.1fMB). Max: 10MB", float64(e.Size)/1024/1024)
	case errors.Is(e.Err, ErrFileTypeNotAllowed):
		return "File type not allowed"
	default:
		return e.Err.Error()
	}
}

func (e *ValidationError) Unwrap() error { return e.Err }

// ValidateUpload checks size first, then type, the same order the upload
// form reports them.
func ValidateUpload(size int64, contentType string) error {
	if size > MaxUploadSize {
		return &ValidationError{Err: ErrFileTooLarge, Size: size, ContentType: contentType}
	}
	mediaType := strings.ToLower(strings.TrimSpace(contentType))
	if parsed, _, err := mime.ParseMediaType(contentType); err == nil {
		mediaType = parsed
	}
	if !slices.Contains(AllowedTypes, mediaType) {
		return &ValidationError{Err: ErrFileTypeNotAllowed, Size: size, ContentType: contentType}
	}
	return nil
}
