package errorx

import (
	"errors"
	"fmt"
)

// GENERAL ERROR:

// GeneralError - General App Error.
type GeneralError struct {
	message string
	err     error
}

// NewGeneralError - GeneralError constructor.
func NewGeneralError(msg string, args ...any) *GeneralError {
	return &GeneralError{message: fmt.Sprintf(msg, args...), err: nil}
}

// NewGeneralErrorWrapper - GeneralError constructor for wrapper of another error.
func NewGeneralErrorWrapper(err error, msg string, args ...any) *GeneralError {
	return &GeneralError{message: fmt.Sprintf(msg, args...), err: err}
}

// Error - return the error string.
func (ge *GeneralError) Error() string {
	if ge.err != nil {
		return fmt.Errorf("%s # Error wrap: %w", ge.message, ge.err).Error()
	}

	return ge.message
}

// Unwrap - return the wrapped error.
func (ge *GeneralError) Unwrap() error {
	return ge.err
}

// POOL TIMEOUT ERROR

// PoolTimeoutError - Acquire could not obtain a handle within the configured
// timeout while the pool was at capacity. Recoverable; pool state is unaffected.
type PoolTimeoutError struct {
	message string
}

// NewPoolTimeoutError - PoolTimeoutError constructor.
func NewPoolTimeoutError(msg string, args ...any) *PoolTimeoutError {
	return &PoolTimeoutError{message: fmt.Sprintf(msg, args...)}
}

// Error - return the error string.
func (pe *PoolTimeoutError) Error() string {
	return pe.message
}

// IsPoolTimeout - report whether err is a PoolTimeoutError.
func IsPoolTimeout(err error) bool {
	var target *PoolTimeoutError
	return errors.As(err, &target)
}

// HANDLE INVALID ERROR

// HandleInvalidError - the underlying resource reported a fatal fault during
// use. The owning connection is marked invalid and its handle is disposed on
// release instead of being returned to the idle set.
type HandleInvalidError struct {
	message string
	err     error
}

// NewHandleInvalidError - HandleInvalidError constructor.
func NewHandleInvalidError(msg string, args ...any) *HandleInvalidError {
	return &HandleInvalidError{message: fmt.Sprintf(msg, args...)}
}

// NewHandleInvalidErrorWrapper - HandleInvalidError constructor for wrapper of another error.
func NewHandleInvalidErrorWrapper(err error, msg string, args ...any) *HandleInvalidError {
	return &HandleInvalidError{message: fmt.Sprintf(msg, args...), err: err}
}

// Error - return the error string.
func (he *HandleInvalidError) Error() string {
	if he.err != nil {
		return fmt.Errorf("%s: %w", he.message, he.err).Error()
	}

	return he.message
}

// Unwrap - return the wrapped error.
func (he *HandleInvalidError) Unwrap() error {
	return he.err
}

// IsHandleInvalid - report whether err is a HandleInvalidError.
func IsHandleInvalid(err error) bool {
	var target *HandleInvalidError
	return errors.As(err, &target)
}

// TRANSACTION STATE ERROR

// TransactionStateError - commit or rollback invoked on an already-terminal
// transaction, or the nesting depth tracking is corrupted. Programming error,
// always surfaced.
type TransactionStateError struct {
	message string
}

// NewTransactionStateError - TransactionStateError constructor.
func NewTransactionStateError(msg string, args ...any) *TransactionStateError {
	return &TransactionStateError{message: fmt.Sprintf(msg, args...)}
}

// Error - return the error string.
func (te *TransactionStateError) Error() string {
	return te.message
}

// IsTransactionState - report whether err is a TransactionStateError.
func IsTransactionState(err error) bool {
	var target *TransactionStateError
	return errors.As(err, &target)
}

// FACTORY ERROR

// FactoryError - the handle factory failed to produce a new resource.
// Propagated unchanged to the caller of Acquire.
type FactoryError struct {
	message string
	err     error
}

// NewFactoryErrorWrapper - FactoryError constructor for wrapper of another error.
func NewFactoryErrorWrapper(err error, msg string, args ...any) *FactoryError {
	return &FactoryError{message: fmt.Sprintf(msg, args...), err: err}
}

// Error - return the error string.
func (fe *FactoryError) Error() string {
	if fe.err != nil {
		return fmt.Errorf("%s: %w", fe.message, fe.err).Error()
	}

	return fe.message
}

// Unwrap - return the wrapped error.
func (fe *FactoryError) Unwrap() error {
	return fe.err
}

// IsFactory - report whether err is a FactoryError.
func IsFactory(err error) bool {
	var target *FactoryError
	return errors.As(err, &target)
}
