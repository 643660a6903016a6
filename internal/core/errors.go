package core

import "fmt"

// =============================================================================
// Connection Errors
// =============================================================================

// ConnectionErrorKind classifies why a connection attempt failed.
type ConnectionErrorKind string

const (
	ConnNetworkUnreachable   ConnectionErrorKind = "network_unreachable"
	ConnAuthenticationFailed ConnectionErrorKind = "authentication_failed"
	ConnTimeout              ConnectionErrorKind = "timeout"
	ConnInvalidConfiguration ConnectionErrorKind = "invalid_configuration"
)

// ConnectionError is the typed failure of a connect or health-check call.
// Each failure is final for that call; the manager never retries.
type ConnectionError struct {
	Kind   ConnectionErrorKind
	Reason string
	Err    error
}

func (e *ConnectionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("connection %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("connection %s", e.Kind)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NewConnectionError builds a ConnectionError wrapping cause.
func NewConnectionError(kind ConnectionErrorKind, reason string, cause error) *ConnectionError {
	return &ConnectionError{Kind: kind, Reason: reason, Err: cause}
}

// =============================================================================
// Query Errors
// =============================================================================

// QueryErrorKind classifies why a query could not produce a result.
type QueryErrorKind string

const (
	QueryInvalidParameters   QueryErrorKind = "invalid_parameters"
	QueryInvalidFilterSyntax QueryErrorKind = "invalid_filter_syntax"
	QueryExecutionTimeout    QueryErrorKind = "execution_timeout"
	QueryPermissionDenied    QueryErrorKind = "permission_denied"
	QueryConnectionLost      QueryErrorKind = "connection_lost"
)

// QueryError is the typed failure of a dispatched query.
type QueryError struct {
	Kind   QueryErrorKind
	Reason string
	Err    error
}

func (e *QueryError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("query %s: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("query %s", e.Kind)
}

func (e *QueryError) Unwrap() error { return e.Err }

// NewQueryError builds a QueryError wrapping cause.
func NewQueryError(kind QueryErrorKind, reason string, cause error) *QueryError {
	return &QueryError{Kind: kind, Reason: reason, Err: cause}
}

// NotConnectedError indicates an operation was issued against a connection
// that is not established.
type NotConnectedError struct {
	Signature string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("not connected: %s", e.Signature)
}
