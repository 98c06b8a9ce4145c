package service

import (
	"errors"
	"fmt"

	"github.com/Gopher0727/TaskRoom/internal/repository"
	"github.com/Gopher0727/TaskRoom/middleware/jwt"
)

var (
	ErrNotFound        = repository.ErrNotFound
	ErrConflict        = repository.ErrConflict
	ErrInvalidToken    = jwt.ErrInvalidToken
	ErrForbidden       = errors.New("forbidden")
	ErrParentMismatch  = errors.New("parent task belongs to a different room")
	ErrSessionRequired = errors.New("cascade requires an active transaction scope")
	ErrInvalidInput    = errors.New("invalid input")
	ErrFileOwned       = errors.New("file is already attached")
	ErrUnsupportedFile = errors.New("unsupported file type")
	ErrFileTooLarge    = errors.New("file too large")

	ErrTransactionAborted = errors.New("transaction aborted")
)

// TransactionAbortedError wraps the failure that aborted a cascade.
// errors.Is matches both ErrTransactionAborted and the wrapped cause.
type TransactionAbortedError struct {
	Op  string
	Err error
}

func (e *TransactionAbortedError) Error() string {
	return fmt.Sprintf("%s: transaction aborted: %v", e.Op, e.Err)
}

func (e *TransactionAbortedError) Unwrap() error {
	return e.Err
}

func (e *TransactionAbortedError) Is(target error) bool {
	return target == ErrTransactionAborted
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}
