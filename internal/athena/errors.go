package athena

import (
	"errors"
	"fmt"
	"strings"

	athtypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/smithy-go"
)

// Kind classifies manager errors so callers can tell a permanent rejection
// from a retryable transport failure. The manager itself never retries.
type Kind string

const (
	// KindSubmission means the remote service rejected the query at
	// submission time (syntax, auth, quota).
	KindSubmission Kind = "submission"
	// KindNotFound means the remote service does not know the execution id.
	KindNotFound Kind = "not_found"
	// KindNotReady means results were requested before the query succeeded.
	KindNotReady Kind = "not_ready"
	// KindTransport means the remote service could not be reached or
	// answered with a transient failure. Retry policy belongs to the caller.
	KindTransport Kind = "transport"
	// KindCancellation means the stop request itself failed. An already
	// finished execution is not a cancellation failure.
	KindCancellation Kind = "cancellation"
)

// Error wraps a remote failure with the operation and execution id it
// occurred on.
type Error struct {
	Kind        Kind
	Op          string
	ExecutionID string
	Err         error
}

func (e *Error) Error() string {
	if e.ExecutionID != "" {
		return fmt.Sprintf("athena: %s %s: %v", e.Op, e.ExecutionID, e.Err)
	}
	return fmt.Sprintf("athena: %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// IsKind reports whether err is a manager error of the given kind.
func IsKind(err error, k Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == k
}

func IsSubmission(err error) bool   { return IsKind(err, KindSubmission) }
func IsNotFound(err error) bool     { return IsKind(err, KindNotFound) }
func IsNotReady(err error) bool     { return IsKind(err, KindNotReady) }
func IsTransport(err error) bool    { return IsKind(err, KindTransport) }
func IsCancellation(err error) bool { return IsKind(err, KindCancellation) }

const (
	opSubmit        = "submit"
	opGetStatus     = "get status"
	opGetResults    = "get results"
	opCancel        = "cancel"
	opListDatabases = "list databases"
	opListTables    = "list tables"
	opGetTable      = "get table metadata"
)

// wrapRemote converts a remote call failure into an *Error with the kind
// appropriate for the attempted operation.
func wrapRemote(op, executionID string, err error) *Error {
	return &Error{Kind: classify(op, err), Op: op, ExecutionID: executionID, Err: err}
}

// classify maps a remote failure to an error kind. Athena reports unknown
// execution ids and not-yet-finished queries through InvalidRequestException
// messages, so modeled service errors are inspected by message before
// falling back to the per-operation default.
func classify(op string, err error) Kind {
	var missing *athtypes.ResourceNotFoundException
	if errors.As(err, &missing) {
		return KindNotFound
	}

	var apiErr smithy.APIError
	if !errors.As(err, &apiErr) {
		return KindTransport
	}

	msg := strings.ToLower(apiErr.ErrorMessage())
	switch {
	case strings.Contains(msg, "not found"), strings.Contains(msg, "does not exist"):
		return KindNotFound
	case strings.Contains(msg, "not yet finished"), strings.Contains(msg, "did not finish"):
		return KindNotReady
	}

	switch op {
	case opSubmit:
		return KindSubmission
	case opCancel:
		return KindCancellation
	default:
		return KindTransport
	}
}
