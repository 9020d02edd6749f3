// Package upload implements the image upload pipeline: client-side
// validation plus the blob backends that receive validated files.
package upload

import (
	"slices"

	"flagfeed/config"
	domainerrors "flagfeed/internal/domain/errors"
)

const defaultMaxSizeBytes = 5 * 1024 * 1024

var defaultAllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// Validator checks an upload's declared size and content type before any
// bytes leave the process. Rejected files never reach the CDN.
type Validator struct {
	maxSizeBytes int64
	allowedTypes []string
}

// NewValidator builds a validator from configuration, falling back to
// the 5MB / common-image-format defaults.
func NewValidator(cfg *config.Config) *Validator {
	validator := &Validator{
		maxSizeBytes: defaultMaxSizeBytes,
		allowedTypes: defaultAllowedTypes,
	}

	if cfg.Upload != nil {
		if cfg.Upload.MaxSizeBytes > 0 {
			validator.maxSizeBytes = cfg.Upload.MaxSizeBytes
		}
		if len(cfg.Upload.AllowedTypes) > 0 {
			validator.allowedTypes = cfg.Upload.AllowedTypes
		}
	}

	return validator
}

// Validate checks size first, then content type, and returns the
// matching domain error for whichever check fails.
func (v *Validator) Validate(size int64, contentType string) error {
	if size > v.maxSizeBytes {
		return domainerrors.ErrFileTooLarge
	}

	if !slices.Contains(v.allowedTypes, contentType) {
		return domainerrors.ErrFileTypeNotAllowed
	}

	return nil
}

// MaxSizeBytes returns the configured size cap.
func (v *Validator) MaxSizeBytes() int64 {
	return v.maxSizeBytes
}
