// Package errors provides the error classification used across hapticlink providers.
// Connection failures are transient, malformed device-server replies are invalid,
// and broken wiring (nil dependencies, bad configuration) is fatal.
package errors

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrorClass represents the classification of errors for handling purposes
type ErrorClass int

const (
	// ErrorTransient represents temporary errors that may be retried
	ErrorTransient ErrorClass = iota
	// ErrorInvalid represents errors due to invalid input, configuration or replies
	ErrorInvalid
	// ErrorFatal represents unrecoverable errors that should stop processing
	ErrorFatal
)

// String returns the string representation of ErrorClass
func (ec ErrorClass) String() string {
	switch ec {
	case ErrorTransient:
		return "transient"
	case ErrorInvalid:
		return "invalid"
	case ErrorFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Sentinels shared by providers, the controller and the transports
var (
	ErrConnectionFailed  = errors.New("connection failed")
	ErrConnectionLost    = errors.New("connection lost")
	ErrConnectionTimeout = errors.New("connection timeout")
	ErrNoDevices         = errors.New("no devices found")
	ErrNoToys            = errors.New("no toys found")

	ErrInvalidData   = errors.New("invalid data format")
	ErrParsingFailed = errors.New("parsing failed")
	ErrServerError   = errors.New("device server returned an error")

	ErrRateLimited = errors.New("rate limited")
	ErrQueueFull   = errors.New("command queue full")

	ErrInvalidConfig = errors.New("invalid configuration")
	ErrMissingConfig = errors.New("missing required configuration")
	ErrUnknownMode   = errors.New("unknown provider mode")
)

// sentinelClass assigns a class to errors that were never wrapped with one
var sentinelClass = []struct {
	err   error
	class ErrorClass
}{
	{ErrConnectionFailed, ErrorTransient},
	{ErrConnectionTimeout, ErrorTransient},
	{ErrConnectionLost, ErrorTransient},
	{ErrRateLimited, ErrorTransient},
	{ErrQueueFull, ErrorTransient},
	{context.DeadlineExceeded, ErrorTransient},
	{context.Canceled, ErrorTransient},
	{ErrInvalidConfig, ErrorFatal},
	{ErrMissingConfig, ErrorFatal},
	{ErrUnknownMode, ErrorFatal},
	{ErrInvalidData, ErrorInvalid},
	{ErrParsingFailed, ErrorInvalid},
	{ErrServerError, ErrorInvalid},
}

// Message fragments of stdlib and driver errors that carry no sentinel
var (
	transientHints = []string{"timeout", "connection", "network", "temporary", "unavailable", "busy", "refused"}
	fatalHints     = []string{"fatal", "panic", "invalid config", "missing config"}
)

// ClassifiedError wraps an error with its classification
type ClassifiedError struct {
	Class     ErrorClass
	Err       error
	Message   string
	Component string
	Operation string
}

// Error implements the error interface
func (ce *ClassifiedError) Error() string {
	if ce.Message != "" {
		return ce.Message
	}
	return ce.Err.Error()
}

// Unwrap returns the underlying error
func (ce *ClassifiedError) Unwrap() error {
	return ce.Err
}

// classOf reports the explicit or sentinel class of err. ok is false when
// neither applies.
func classOf(err error) (class ErrorClass, ok bool) {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class, true
	}
	for _, sc := range sentinelClass {
		if errors.Is(err, sc.err) {
			return sc.class, true
		}
	}
	return 0, false
}

func containsAny(err error, hints []string) bool {
	msg := strings.ToLower(err.Error())
	for _, h := range hints {
		if strings.Contains(msg, h) {
			return true
		}
	}
	return false
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorTransient
	}
	return containsAny(err, transientHints)
}

// IsFatal reports whether err comes from broken wiring or configuration
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if class, ok := classOf(err); ok {
		return class == ErrorFatal
	}
	return containsAny(err, fatalHints)
}

// IsInvalid reports whether err is due to bad input or an unexpected reply shape
func IsInvalid(err error) bool {
	if err == nil {
		return false
	}
	class, ok := classOf(err)
	return ok && class == ErrorInvalid
}

// Classify returns the error class for an error. Unknown errors are transient.
func Classify(err error) ErrorClass {
	switch {
	case err == nil, IsTransient(err):
		return ErrorTransient
	case IsFatal(err):
		return ErrorFatal
	case IsInvalid(err):
		return ErrorInvalid
	default:
		return ErrorTransient
	}
}

// Wrap creates a standardized error with context following the pattern:
// "component.method: action failed: %w"
func Wrap(err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s.%s: %s failed: %w", component, method, action, err)
}

func wrapAs(class ErrorClass, err error, component, method, action string) error {
	if err == nil {
		return nil
	}
	wrapped := Wrap(err, component, method, action)
	return &ClassifiedError{
		Class:     class,
		Err:       wrapped,
		Message:   wrapped.Error(),
		Component: component,
		Operation: method,
	}
}

// WrapTransient wraps an error as transient with context
func WrapTransient(err error, component, method, action string) error {
	return wrapAs(ErrorTransient, err, component, method, action)
}

// WrapFatal wraps an error as fatal with context
func WrapFatal(err error, component, method, action string) error {
	return wrapAs(ErrorFatal, err, component, method, action)
}

// WrapInvalid wraps an error as invalid with context
func WrapInvalid(err error, component, method, action string) error {
	return wrapAs(ErrorInvalid, err, component, method, action)
}

// wrapPrefix matches the "component.method: action failed: " shape produced by Wrap
var wrapPrefix = regexp.MustCompile(`([A-Za-z][\w-]*)\.([A-Za-z]\w*): ([^:]+?) failed: `)

// Cause returns a short human-readable cause for an error, suitable for
// error notifications shown to an end user: the innermost Wrap action
// followed by what went wrong, without component/method prefixes.
func Cause(err error) string {
	if err == nil {
		return ""
	}
	msg := err.Error()
	matches := wrapPrefix.FindAllStringSubmatchIndex(msg, -1)
	if len(matches) == 0 {
		return msg
	}
	last := matches[len(matches)-1]
	action := msg[last[6]:last[7]]
	return action + ": " + msg[last[1]:]
}
