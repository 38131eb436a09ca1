package dispatch

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes dispatch table failures.
type ErrorCode string

const (
	// ErrCodeTypeMismatch indicates a processor whose type differs from the
	// channel it targets.
	ErrCodeTypeMismatch ErrorCode = "CHANNEL_TYPE_MISMATCH"

	// ErrCodeDuplicateProcessor indicates a slot that is already occupied.
	ErrCodeDuplicateProcessor ErrorCode = "DUPLICATE_PROCESSOR"

	// ErrCodeNoMatchingChannel indicates no channel accepts the processor.
	ErrCodeNoMatchingChannel ErrorCode = "NO_MATCHING_CHANNEL"

	// ErrCodeUnroutedChannel indicates dispatch to a slot with no processor.
	ErrCodeUnroutedChannel ErrorCode = "UNROUTED_CHANNEL"
)

// Error is returned by every Table operation that fails.
type Error struct {
	Code    ErrorCode
	Message string

	// Channel is the channel name involved, if known.
	Channel string

	// Index is the slot involved, or -1.
	Index int
}

func (e *Error) Error() string {
	s := string(e.Code) + ": " + e.Message
	if e.Channel != "" {
		s += fmt.Sprintf(" (channel=%s, index=%d)", e.Channel, e.Index)
	} else if e.Index >= 0 {
		s += fmt.Sprintf(" (index=%d)", e.Index)
	}
	return s
}

func IsTypeMismatch(err error) bool       { return hasCode(err, ErrCodeTypeMismatch) }
func IsDuplicateProcessor(err error) bool { return hasCode(err, ErrCodeDuplicateProcessor) }
func IsNoMatchingChannel(err error) bool  { return hasCode(err, ErrCodeNoMatchingChannel) }
func IsUnroutedChannel(err error) bool    { return hasCode(err, ErrCodeUnroutedChannel) }

// IsConfigurationError reports whether err should abort pipeline
// construction.
func IsConfigurationError(err error) bool {
	return IsTypeMismatch(err) || IsDuplicateProcessor(err) || IsNoMatchingChannel(err)
}

func hasCode(err error, code ErrorCode) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}
