package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNoAPIKey is returned before any network call when no credential has
	// been configured in settings.
	ErrNoAPIKey = errors.New("api key is not configured")

	// ErrUnsupportedInput is returned when an uploaded file is not a PDF,
	// image, or plain text document.
	ErrUnsupportedInput = errors.New("unsupported file type")

	// ErrProjectNotFound is returned when no project exists under the
	// requested id.
	ErrProjectNotFound = errors.New("project not found")

	// ErrPageNotFound is returned when a page index is out of range for the
	// requested project.
	ErrPageNotFound = errors.New("page not found")
)

// RemoteError is a non-success HTTP response from the transcription or
// improvement service.
type RemoteError struct {
	Status int
	Detail string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("remote service error: status %d: %s", e.Status, e.Detail)
}

// StorageError wraps a read or write failure of the local persistence layer.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// RasterizationError means the PDF renderer could not process the document,
// typically because the file is corrupt.
type RasterizationError struct {
	Err error
}

func (e *RasterizationError) Error() string {
	return fmt.Sprintf("pdf rasterization failed: %v", e.Err)
}

func (e *RasterizationError) Unwrap() error { return e.Err }
