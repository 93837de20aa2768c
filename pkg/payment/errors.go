package payment

import (
	"errors"
	"fmt"
)

type Kind int

const (
	// KindRejected: the provider declined this request's data. Not retried
	// with the same parameters.
	KindRejected Kind = iota + 1
	// KindUnavailable: network fault, timeout or provider 5xx. Safe to
	// retry; never moves a record to FAILED on its own.
	KindUnavailable
	// KindAuth: credential problem. Fatal to the deployment, not the
	// request; must alert operators.
	KindAuth
	// KindNotRefundable: the provider refused the refund (window expired,
	// already refunded, method not reversible).
	KindNotRefundable
)

// Error is the provider-error taxonomy shared by all adapters.
type Error struct {
	Kind    Kind
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("provider error %s: %s", e.Code, e.Message)
	}
	return "provider error: " + e.Message
}

func rejected(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindRejected, Code: code, Message: fmt.Sprintf(format, args...)}
}

func unavailable(format string, args ...interface{}) *Error {
	return &Error{Kind: KindUnavailable, Message: fmt.Sprintf(format, args...)}
}

func authError(format string, args ...interface{}) *Error {
	return &Error{Kind: KindAuth, Message: fmt.Sprintf(format, args...)}
}

func notRefundable(code, format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotRefundable, Code: code, Message: fmt.Sprintf(format, args...)}
}

func isKind(err error, k Kind) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Kind == k
}

func IsRejected(err error) bool      { return isKind(err, KindRejected) }
func IsUnavailable(err error) bool   { return isKind(err, KindUnavailable) }
func IsAuth(err error) bool          { return isKind(err, KindAuth) }
func IsNotRefundable(err error) bool { return isKind(err, KindNotRefundable) }

// Detail extracts the code/message pair for storage on the payment record.
func Detail(err error) (code, message string) {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code, pe.Message
	}
	return "", err.Error()
}
