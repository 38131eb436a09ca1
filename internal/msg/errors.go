package msg

import (
	"errors"
	"fmt"
)

// Sentinel causes wrapped inside DECODE_ERROR values.
var (
	// ErrTruncated means the buffer ended before a field was complete.
	ErrTruncated = errors.New("truncated buffer")

	// ErrMalformed means a field was present but not interpretable
	// (length prefix larger than the buffer, bad UTF-8, mismatched keys).
	ErrMalformed = errors.New("malformed field")
)

// CodecErrorCode categorizes codec failures.
type CodecErrorCode string

const (
	// ErrCodeDecode indicates truncated or malformed bytes.
	ErrCodeDecode CodecErrorCode = "DECODE_ERROR"

	// ErrCodeUnknownVersion indicates a version tag with no registered decoder.
	ErrCodeUnknownVersion CodecErrorCode = "UNKNOWN_SCHEMA_VERSION"

	// ErrCodeUnknownType indicates a type key with no registered schema.
	ErrCodeUnknownType CodecErrorCode = "UNKNOWN_TYPE"

	// ErrCodeDuplicateVersion indicates a second registration of one version.
	ErrCodeDuplicateVersion CodecErrorCode = "DUPLICATE_VERSION"

	// ErrCodeEncode indicates a message that cannot be serialized.
	ErrCodeEncode CodecErrorCode = "ENCODE_ERROR"
)

// CodecError is returned by every Encode/Decode failure.
//
// Decode errors are recoverable per message: callers drop the message and
// continue with the next one.
type CodecError struct {
	// Code identifies the error category.
	Code CodecErrorCode

	// Message is a human-readable description.
	Message string

	// Section names the versioned section involved ("GUID", "Header", "TSPI", ...).
	Section string

	// Version is the version tag involved, when there is one.
	Version uint16

	// Err is the underlying cause (often ErrTruncated or ErrMalformed).
	Err error
}

// Error implements the error interface.
func (e *CodecError) Error() string {
	s := string(e.Code) + ": " + e.Message
	if e.Section != "" {
		s += fmt.Sprintf(" (section=%s", e.Section)
		if e.Version != 0 {
			s += fmt.Sprintf(", version=%d", e.Version)
		}
		s += ")"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

// Unwrap exposes the underlying cause to errors.Is.
func (e *CodecError) Unwrap() error {
	return e.Err
}

// IsDecodeError returns true for truncated or malformed input errors.
// Uses errors.As to handle wrapped errors.
func IsDecodeError(err error) bool {
	return hasCode(err, ErrCodeDecode)
}

// IsUnknownVersion returns true when a version tag had no decoder.
func IsUnknownVersion(err error) bool {
	return hasCode(err, ErrCodeUnknownVersion)
}

// IsUnknownType returns true when a type key had no schema.
func IsUnknownType(err error) bool {
	return hasCode(err, ErrCodeUnknownType)
}

// IsDuplicateVersion returns true when a version was registered twice.
func IsDuplicateVersion(err error) bool {
	return hasCode(err, ErrCodeDuplicateVersion)
}

func hasCode(err error, code CodecErrorCode) bool {
	var ce *CodecError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}

// NewDecodeError creates a DECODE_ERROR for section wrapping cause.
func NewDecodeError(section, message string, cause error) *CodecError {
	return &CodecError{
		Code:    ErrCodeDecode,
		Message: message,
		Section: section,
		Err:     cause,
	}
}

// NewUnknownVersionError creates an UNKNOWN_SCHEMA_VERSION error.
func NewUnknownVersionError(section string, version uint16) *CodecError {
	return &CodecError{
		Code:    ErrCodeUnknownVersion,
		Message: "no decoder registered for version",
		Section: section,
		Version: version,
	}
}
