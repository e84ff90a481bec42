// Package errors provides the failure taxonomy of the archiving pipeline.
// Every component reports failures as a *PipelineError carrying one Kind, so callers
// can tell a data-source failure from an upload failure without inspecting messages.
// The underlying cause is kept in the chain and can be classified for logging.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strings"
)

// Kind identifies which pipeline stage failed
type Kind string

const (
	KindDataSource  Kind = "data_source" // fetch, network or HTTP-status failures
	KindInputShape  Kind = "input_shape" // malformed trade list
	KindDestination Kind = "destination" // invalid directory or write failure
	KindUpload      Kind = "upload"      // auth, network or storage failures
	KindUnknown     Kind = "unknown"
)

// Sentinels for errors.Is checks against a failure kind.
var (
	ErrDataSource  = &PipelineError{Kind: KindDataSource}
	ErrInputShape  = &PipelineError{Kind: KindInputShape}
	ErrDestination = &PipelineError{Kind: KindDestination}
	ErrUpload      = &PipelineError{Kind: KindUpload}
)

// PipelineError is a failure of one pipeline stage with its underlying cause
type PipelineError struct {
	Kind Kind
	Op   string
	Err  error
}

// Error implements the error interface
func (e *PipelineError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s error", e.Kind)
	}
	if e.Op == "" {
		return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

// Unwrap returns the underlying error
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a PipelineError of the same kind.
func (e *PipelineError) Is(target error) bool {
	t, ok := target.(*PipelineError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

func newError(kind Kind, op string, err error) error {
	return &PipelineError{Kind: kind, Op: op, Err: err}
}

// DataSource wraps a trade-fetch failure.
func DataSource(op string, err error) error { return newError(KindDataSource, op, err) }

// InputShape wraps a structural problem in the fetched trade list.
func InputShape(op string, err error) error { return newError(KindInputShape, op, err) }

// Destination wraps a local persistence failure.
func Destination(op string, err error) error { return newError(KindDestination, op, err) }

// Upload wraps an object-storage failure.
func Upload(op string, err error) error { return newError(KindUpload, op, err) }

// KindOf returns the kind of the first PipelineError in err's chain
func KindOf(err error) Kind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// Cause classifies what went wrong underneath a pipeline failure
type Cause string

const (
	CauseNetwork        Cause = "network"
	CauseTimeout        Cause = "timeout"
	CauseCanceled       Cause = "canceled"
	CauseAuthentication Cause = "authentication"
	CauseNotFound       Cause = "not_found"
	CausePermission     Cause = "permission"
	CauseServerError    Cause = "server_error"
	CauseMalformed      Cause = "malformed"
	CauseUnknown        Cause = "unknown"
)

// Classify inspects the error chain and returns the most specific cause it recognises.
func Classify(err error) Cause {
	if err == nil {
		return CauseUnknown
	}

	if errors.Is(err, context.Canceled) {
		return CauseCanceled
	}
	if isTimeoutError(err) {
		return CauseTimeout
	}
	if errors.Is(err, fs.ErrPermission) {
		return CausePermission
	}
	if errors.Is(err, fs.ErrNotExist) {
		return CauseNotFound
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "invalidaccesskeyid") ||
		strings.Contains(errStr, "signaturedoesnotmatch") ||
		strings.Contains(errStr, "unauthorized") ||
		strings.Contains(errStr, "forbidden") ||
		strings.Contains(errStr, "access denied") ||
		strings.Contains(errStr, "accessdenied") ||
		strings.Contains(errStr, "credentials") {
		return CauseAuthentication
	}

	if strings.Contains(errStr, "nosuchbucket") ||
		strings.Contains(errStr, "not found") ||
		strings.Contains(errStr, "status 404") {
		return CauseNotFound
	}

	if isNetworkError(err) {
		return CauseNetwork
	}

	if strings.Contains(errStr, "server error") ||
		strings.Contains(errStr, "internal server") ||
		strings.Contains(errStr, "service unavailable") ||
		strings.Contains(errStr, "bad gateway") {
		return CauseServerError
	}

	if strings.Contains(errStr, "invalid character") ||
		strings.Contains(errStr, "unexpected end of json") ||
		strings.Contains(errStr, "malformed") {
		return CauseMalformed
	}

	return CauseUnknown
}

// isNetworkError checks if the error is network-related
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errStr := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"connection aborted",
		"no route to host",
		"host unreachable",
		"network unreachable",
		"no such host",
		"dial tcp",
	}

	for _, pattern := range networkPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// isTimeoutError checks if the error is timeout-related
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errStr := strings.ToLower(err.Error())
	return strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "deadline exceeded")
}
