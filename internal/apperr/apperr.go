// Package apperr models the error taxonomy of spec.md §7 as tagged result
// variants, so that the worker pool and HTTP handlers can branch on error
// kind instead of parsing message strings.
package apperr

import "fmt"

// Code identifies a taxonomy entry from spec.md §7.
type Code string

const (
	// InvalidInput: payload validation fails; no retry, no persistence.
	InvalidInput Code = "invalid_input"
	// TransientRemote: network error, 5xx, or timeout; retried with backoff.
	TransientRemote Code = "transient_remote"
	// Blocked: 429/403/CAPTCHA detected; triggers block recovery.
	Blocked Code = "blocked"
	// ParsingFailed: HTML fetched but required fields missing; no retry.
	ParsingFailed Code = "parsing_failed"
	// NotProductPage: page is a search/listing page, not a product page.
	NotProductPage Code = "not_product_page"
	// DependencyUnavailable: KV, SQL, or broker unreachable.
	DependencyUnavailable Code = "dependency_unavailable"
	// ChannelDeliveryFailed: one notification channel failed.
	ChannelDeliveryFailed Code = "channel_delivery_failed"
	// ConfigurationMissing: a channel lacks credentials; never an error surfaced to the user.
	ConfigurationMissing Code = "configuration_missing"
)

// Error is a typed, taxonomy-tagged error.
type Error struct {
	code    Code
	message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.code, e.message)
}

// Unwrap allows errors.Is/errors.As to reach the cause.
func (e *Error) Unwrap() error { return e.cause }

// Code returns the taxonomy entry this error belongs to.
func (e *Error) Code() Code { return e.code }

// New constructs a tagged error with no underlying cause.
func New(code Code, message string) *Error {
	return &Error{code: code, message: message}
}

// Wrap constructs a tagged error around an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{code: code, message: message, cause: cause}
}

// IsRetryable reports whether the worker pool should retry the task body
// that produced err (spec.md §4.3 step 6 and §7's propagation policy).
func IsRetryable(err error) bool {
	var e *Error
	if !asError(err, &e) {
		return false
	}
	switch e.code {
	case TransientRemote, DependencyUnavailable:
		return true
	default:
		return false
	}
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
