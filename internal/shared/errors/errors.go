package errors

import (
	"errors"
	"fmt"

	"github.com/samber/oops"
)

// Error codes attached with oops.Code, one per failure class
const (
	CodeConfigNotFound  = "config_not_found"
	CodeValidation      = "validation"
	CodeExternalService = "external_service"
)

var (
	ErrMissingBotToken = errors.New("TELEGRAM_BOT_TOKEN environment variable is required")
	ErrMissingRepo     = errors.New("GITHUB_OWNER and GITHUB_REPO environment variables are required")

	// ConfigNotFound
	ErrBundleNotFound = errors.New("bundle not found")
	ErrGroupNotFound  = errors.New("group not found")
	ErrPresetNotFound = errors.New("preset not found")

	// ValidationError
	ErrInvalidInterval    = errors.New("interval must be between 1 and 180 minutes")
	ErrInvalidGroupName   = errors.New("group name must be 1-50 characters")
	ErrGroupExists        = errors.New("group name already exists in this channel")
	ErrInvalidStatusLabel = errors.New("unknown status label")

	// RecoverableNotFound: the destination message was deleted out of band
	ErrMessageNotFound = errors.New("message not found")

	ErrStorageLocked = errors.New("storage is locked by another process")
)

// NotFound wraps a ConfigNotFound sentinel with attributes
func NotFound(err error, attrs ...any) error {
	return oops.Code(CodeConfigNotFound).With(attrs...).Wrap(err)
}

// Validation wraps a ValidationError sentinel with attributes
func Validation(err error, attrs ...any) error {
	return oops.Code(CodeValidation).With(attrs...).Wrap(err)
}

// External wraps a failure of the tracker or the messaging platform
func External(service string, err error, attrs ...any) error {
	return oops.Code(CodeExternalService).In(service).With(attrs...).Wrap(err)
}

// Is and As forward to the standard library so callers need one import
func Is(err, target error) bool { return errors.Is(err, target) }
func As(err error, target any) bool { return errors.As(err, target) }

func IsNotFound(err error) bool {
	return errors.Is(err, ErrBundleNotFound) ||
		errors.Is(err, ErrGroupNotFound) ||
		errors.Is(err, ErrPresetNotFound) ||
		hasCode(err, CodeConfigNotFound)
}

func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidInterval) ||
		errors.Is(err, ErrInvalidGroupName) ||
		errors.Is(err, ErrGroupExists) ||
		errors.Is(err, ErrInvalidStatusLabel) ||
		hasCode(err, CodeValidation)
}

func IsExternal(err error) bool {
	return hasCode(err, CodeExternalService)
}

func hasCode(err error, code string) bool {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return false
	}
	return fmt.Sprint(oopsErr.Code()) == code
}
