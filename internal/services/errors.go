package services

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	ErrValidation        = errors.New("validation error")
	ErrTransport         = errors.New("transport error")
	ErrNotReady          = errors.New("not ready")
	ErrNotFound          = errors.New("not found")
	ErrConfiguration     = errors.New("configuration error")
)

// Kind names an error class for structured logging and CLI exit handling.
type Kind string

const (
	KindDeviceUnavailable Kind = "device_unavailable"
	KindValidation        Kind = "validation"
	KindTransport         Kind = "transport"
	KindNotReady          Kind = "not_ready"
	KindNotFound          Kind = "not_found"
	KindConfiguration     Kind = "configuration"
	KindUnknown           Kind = "unknown"
)

// Wrap builds an error message that includes component context while tagging it with
// the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrTransport
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Classify maps an error to the taxonomy kind it was tagged with.
func Classify(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrDeviceUnavailable):
		return KindDeviceUnavailable
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrNotReady):
		return KindNotReady
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConfiguration):
		return KindConfiguration
	case errors.Is(err, ErrTransport):
		return KindTransport
	default:
		return KindUnknown
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// UserMessage returns the text to show a user for err. Errors that carry
// their own user-facing text (backend details, validation rejections)
// provide it through a UserMessage method; fallback is used otherwise.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var carrier interface{ UserMessage() string }
	if errors.As(err, &carrier) {
		if msg := strings.TrimSpace(carrier.UserMessage()); msg != "" {
			return msg
		}
	}
	if fallback != "" {
		return fallback
	}
	return err.Error()
}
