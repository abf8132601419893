package tokensvc

import (
	"errors"
	"fmt"
)

var (
	ErrAuthorizationMismatch = errors.New("authorization mismatch")
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrPrecisionMismatch     = errors.New("precision mismatch")
	ErrTokenTypeMismatch     = errors.New("token type mismatch")
	ErrNonZeroBalance        = errors.New("non-zero balance")
	ErrAccountAlreadyClosed  = errors.New("account already closed")
)

// Catch-all codes used by ServiceError
const (
	CodeMissingSignature         = "MissingRequiredSignature"
	CodeOwnerMismatch            = "OwnerMismatch"
	CodeInvalidAccount           = "InvalidAccount"
	CodeProgramSignatureRequired = "ProgramSignatureRequired"
	CodeOverflow                 = "Overflow"
	CodeTransactionDone          = "TransactionDone"
	CodeRPC                      = "RPCError"
)

// ServiceError is any rejection from the token service that has no dedicated sentinel.
type ServiceError struct {
	Code    string
	Message string
	Err     error
}

func (e *ServiceError) Error() string {
	if e.Message == "" {
		return "token service error: " + e.Code
	}
	return fmt.Sprintf("token service error: %s: %s", e.Code, e.Message)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func newServiceError(code, format string, args ...any) *ServiceError {
	return &ServiceError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// IsServiceError checks if err is (or wraps) a ServiceError
func IsServiceError(err error) bool {
	var se *ServiceError
	return errors.As(err, &se)
}

// Code returns a stable identifier for err, suitable for API responses.
// Unknown errors return an empty string.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrAuthorizationMismatch):
		return "AuthorizationMismatch"
	case errors.Is(err, ErrInsufficientBalance):
		return "InsufficientBalance"
	case errors.Is(err, ErrPrecisionMismatch):
		return "PrecisionMismatch"
	case errors.Is(err, ErrTokenTypeMismatch):
		return "TokenTypeMismatch"
	case errors.Is(err, ErrNonZeroBalance):
		return "NonZeroBalance"
	case errors.Is(err, ErrAccountAlreadyClosed):
		return "AccountAlreadyClosed"
	}
	var se *ServiceError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}
