package toolorch

import "github.com/corerun/agentcore/internal/sandbox"

// CallErrorKind tags the variant carried by a CallError, converting
// spec.md §7's error taxonomy into a single sum type so the turn driver's
// handling is a visible switch rather than an exception hierarchy (see
// spec.md §9, "Control-flow via sum types").
type CallErrorKind string

const (
	// ErrFatal ends the turn with SystemError; nothing more can be done
	// for this call.
	ErrFatal CallErrorKind = "fatal"
	// ErrRespondToModel produces a FunctionCallOutput the model can react
	// to (forbidden calls, user rejections, exhausted denials).
	ErrRespondToModel CallErrorKind = "respond_to_model"
	// ErrRetryableSandboxDenied means the call was denied by its sandbox
	// but is eligible for a no-sandbox retry, pending approval.
	ErrRetryableSandboxDenied CallErrorKind = "retryable_sandbox_denied"
	// ErrUserRejected means a human explicitly denied the approval
	// request (as opposed to a policy forbidding it outright).
	ErrUserRejected CallErrorKind = "user_rejected"
)

// CallError is the error sum type every Tool Orchestrator suspension point
// returns explicitly instead of raising.
type CallError struct {
	Kind    CallErrorKind
	Message string
	// Denial carries the sandbox's reported reason when Kind is
	// ErrRetryableSandboxDenied.
	Denial *sandbox.RunResult
}

func (e *CallError) Error() string { return e.Message }

func fatalf(msg string) *CallError {
	return &CallError{Kind: ErrFatal, Message: msg}
}

func respondToModel(msg string) *CallError {
	return &CallError{Kind: ErrRespondToModel, Message: msg}
}

func userRejected(msg string) *CallError {
	return &CallError{Kind: ErrUserRejected, Message: msg}
}

func retryableDenied(msg string, result sandbox.RunResult) *CallError {
	return &CallError{Kind: ErrRetryableSandboxDenied, Message: msg, Denial: &result}
}

// FatalError builds an ErrFatal CallError for handlers defined outside this
// package.
func FatalError(msg string) *CallError { return fatalf(msg) }

// RespondToModelError builds an ErrRespondToModel CallError for handlers
// defined outside this package.
func RespondToModelError(msg string) *CallError { return respondToModel(msg) }

// UserRejectedError builds an ErrUserRejected CallError for handlers
// defined outside this package.
func UserRejectedError(msg string) *CallError { return userRejected(msg) }

// RetryableSandboxDeniedError builds an ErrRetryableSandboxDenied CallError
// for handlers defined outside this package.
func RetryableSandboxDeniedError(msg string, result sandbox.RunResult) *CallError {
	return retryableDenied(msg, result)
}
