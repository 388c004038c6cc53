package errortracking

import (
	"context"
)

// Severity represents the severity level of a reported event
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
	SeverityDebug   Severity = "debug"
)

// Provider defines the interface for error tracking providers
type Provider interface {
	// CaptureError reports an error, extra is attached as event context (session id, collection, ...)
	CaptureError(ctx context.Context, err error, severity Severity, extra map[string]interface{})

	// CaptureMessage reports a plain message
	CaptureMessage(ctx context.Context, message string, severity Severity, extra map[string]interface{})

	// CapturePanic reports a recovered panic with its stack trace
	CapturePanic(ctx context.Context, recovered interface{}, stackTrace []byte, extra map[string]interface{})

	// Flush waits up to timeout seconds for buffered events to be delivered
	Flush(timeout int) bool

	// Close releases the provider
	Close() error
}
