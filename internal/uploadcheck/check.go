package uploadcheck

import (
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"storyvoice/internal/services"
)

// DefaultMaxBytes is the upload size ceiling (10 MiB).
const DefaultMaxBytes int64 = 10 * 1024 * 1024

// DefaultAllowedTypes lists the WAV and MPEG audio types accepted for upload.
var DefaultAllowedTypes = []string{
	"audio/wav",
	"audio/x-wav",
	"audio/wave",
	"audio/vnd.wave",
	"audio/mpeg",
	"audio/mp3",
	"audio/x-mpeg",
}

// Reason explains why a payload was rejected.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonUnsupportedFormat Reason = "unsupported_format"
	ReasonTooLarge          Reason = "too_large"
)

// Policy is the accepted type allow-list and size ceiling.
type Policy struct {
	AllowedTypes []string
	MaxBytes     int64
}

// DefaultPolicy returns the WAV/MP3, 10 MiB policy.
func DefaultPolicy() Policy {
	return Policy{
		AllowedTypes: append([]string(nil), DefaultAllowedTypes...),
		MaxBytes:     DefaultMaxBytes,
	}
}

// NewPolicy builds a policy from configured values. The configured types
// extend the default WAV/MPEG aliases so "audio/wav" also admits
// "audio/x-wav". Empty inputs fall back to defaults.
func NewPolicy(allowed []string, maxBytes int64) Policy {
	policy := DefaultPolicy()
	if len(allowed) > 0 {
		policy.AllowedTypes = expandAliases(allowed)
	}
	if maxBytes > 0 {
		policy.MaxBytes = maxBytes
	}
	return policy
}

// Result is the outcome of a Check.
type Result struct {
	Reason   Reason
	MIMEType string
	Size     int64
	MaxBytes int64
}

// Accepted reports whether the payload passed the policy.
func (r Result) Accepted() bool {
	return r.Reason == ReasonNone
}

// Message returns the user-facing rejection text.
func (r Result) Message() string {
	switch r.Reason {
	case ReasonUnsupportedFormat:
		return "Only WAV and MP3 formats are supported"
	case ReasonTooLarge:
		return fmt.Sprintf("File size cannot exceed %s", formatMegabytes(r.MaxBytes))
	default:
		return ""
	}
}

// Err converts a rejection into a *ValidationError, or nil when accepted.
func (r Result) Err() error {
	if r.Accepted() {
		return nil
	}
	return &ValidationError{Reason: r.Reason, Message: r.Message()}
}

// ValidationError is returned to callers when a staged payload is rejected.
type ValidationError struct {
	Reason  Reason
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// UserMessage returns the rejection text.
func (e *ValidationError) UserMessage() string {
	return e.Message
}

// Is lets errors.Is(err, services.ErrValidation) match.
func (e *ValidationError) Is(target error) bool {
	return target == services.ErrValidation
}

// Check validates a candidate payload by MIME type and size. It performs no
// I/O. Type is checked before size.
func (p Policy) Check(mimeType string, size int64) Result {
	maxBytes := p.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	result := Result{MIMEType: normalizeType(mimeType), Size: size, MaxBytes: maxBytes}
	if !p.allows(result.MIMEType) {
		result.Reason = ReasonUnsupportedFormat
		return result
	}
	if size > maxBytes {
		result.Reason = ReasonTooLarge
	}
	return result
}

// Check validates against DefaultPolicy.
func Check(mimeType string, size int64) Result {
	return DefaultPolicy().Check(mimeType, size)
}

func (p Policy) allows(mimeType string) bool {
	if mimeType == "" {
		return false
	}
	allowed := p.AllowedTypes
	if len(allowed) == 0 {
		allowed = DefaultAllowedTypes
	}
	for _, candidate := range allowed {
		if normalizeType(candidate) == mimeType {
			return true
		}
	}
	return false
}

// DetectMIME reports the MIME type of a file from its extension, falling
// back to sniffing the leading bytes.
func DetectMIME(name string, head []byte) string {
	switch ext := strings.ToLower(filepath.Ext(name)); ext {
	case "":
	case ".wav", ".wave":
		return "audio/wav"
	case ".mp3":
		return "audio/mpeg"
	default:
		if byExt := normalizeType(mime.TypeByExtension(ext)); byExt != "" && byExt != "application/octet-stream" {
			return byExt
		}
	}
	if len(head) == 0 {
		return ""
	}
	return normalizeType(mimetype.Detect(head).String())
}

func normalizeType(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if mediaType, _, err := mime.ParseMediaType(value); err == nil {
		return strings.ToLower(mediaType)
	}
	return strings.ToLower(value)
}

var aliasGroups = [][]string{
	{"audio/wav", "audio/x-wav", "audio/wave", "audio/vnd.wave"},
	{"audio/mpeg", "audio/mp3", "audio/x-mpeg"},
}

func expandAliases(types []string) []string {
	seen := make(map[string]struct{}, len(types))
	out := make([]string, 0, len(types))
	add := func(value string) {
		if _, ok := seen[value]; ok {
			return
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	for _, raw := range types {
		value := normalizeType(raw)
		if value == "" {
			continue
		}
		add(value)
		for _, group := range aliasGroups {
			for _, member := range group {
				if member == value {
					for _, alias := range group {
						add(alias)
					}
					break
				}
			}
		}
	}
	return out
}

func formatMegabytes(n int64) string {
	const mib = 1024 * 1024
	if n%mib == 0 {
		return fmt.Sprintf("%dMB", n/mib)
	}
	return fmt.Sprintf("%.1fMB", float64(n)/mib)
}
