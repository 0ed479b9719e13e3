package files

import "errors"

var (
	ErrNotFound            = errors.New("file not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrQuotaExceeded       = errors.New("storage quota exceeded")
	ErrStorageWriteFailed  = errors.New("storage write failed")
	ErrMetadataWriteFailed = errors.New("metadata write failed")
)
