package domain

import "fmt"

// DomainError is a rule violation the caller can fix by changing the request.
type DomainError struct {
	message string
}

func NewDomainError(format string, args ...interface{}) *DomainError {
	return &DomainError{message: fmt.Sprintf(format, args...)}
}

func (e *DomainError) Error() string {
	return e.message
}

var (
	ErrInsufficientFunds = NewDomainError("insufficient funds")
	ErrInvalidAmount     = NewDomainError("invalid amount")
	ErrSameAccount       = NewDomainError("origin and destination accounts must differ")
	ErrAccountNotFound   = NewDomainError("account not found")
	ErrMovementNotFound  = NewDomainError("movement not found")
	ErrTransferNotFound  = NewDomainError("transfer not found")
)
