// Package model holds the domain types shared across the gateway: the
// entities from the data model (Run, ToolDescriptor, ApprovalRequest,
// PolicyRule, CredentialRecord, Source) and the error-kind vocabulary used
// to classify every failure surfaced at a component boundary.
package model

import "fmt"

// ErrorKind categorizes a gateway failure for transport mapping, logging,
// and Temporal retry classification.
type ErrorKind string

const (
	ErrValidation       ErrorKind = "validation_error"
	ErrUnauthorized     ErrorKind = "unauthorized"
	ErrNotFound         ErrorKind = "not_found"
	ErrPolicyDenied     ErrorKind = "policy_denied"
	ErrApprovalDenied   ErrorKind = "approval_denied"
	ErrAuthMissing      ErrorKind = "auth_missing"
	ErrInvocationInvalid ErrorKind = "invocation_invalid"
	ErrProvider         ErrorKind = "provider_error"
	ErrRuntime          ErrorKind = "runtime_error"
	ErrTimeout          ErrorKind = "timeout"
	ErrInternal         ErrorKind = "internal"
)

// retryable reports whether Temporal activities should retry an error of
// this kind. Only provider-transport failures are worth a retry; every
// other kind reflects a decision that won't change on resubmission.
func (k ErrorKind) retryable() bool {
	return k == ErrProvider
}

// GatewayError is the single error type returned across component
// boundaries (B, C, D, E, F, G, H). It carries enough structure to build
// both the §6 callback envelope and a temporal.ApplicationError.
type GatewayError struct {
	Kind    ErrorKind
	Message string
	Details map[string]any
}

func (e *GatewayError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

// Retryable reports whether the caller should retry the operation that
// produced this error.
func (e *GatewayError) Retryable() bool {
	return e.Kind.retryable()
}

// NewError builds a GatewayError of the given kind.
func NewError(kind ErrorKind, message string, details map[string]any) *GatewayError {
	return &GatewayError{Kind: kind, Message: message, Details: details}
}

func Errorf(kind ErrorKind, format string, args ...any) *GatewayError {
	return &GatewayError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// AsGatewayError unwraps err into a *GatewayError, synthesizing an
// ErrInternal wrapper for anything that isn't already classified.
func AsGatewayError(err error) *GatewayError {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*GatewayError); ok {
		return ge
	}
	return &GatewayError{Kind: ErrInternal, Message: err.Error()}
}
