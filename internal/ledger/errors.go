package ledger

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrAccountNotFound     = fmt.Errorf("account %w", ErrNotFound)
	ErrTransactionNotFound = fmt.Errorf("transaction %w", ErrNotFound)
	ErrCustomerNotFound    = fmt.Errorf("customer %w", ErrNotFound)
	ErrVendorNotFound      = fmt.Errorf("vendor %w", ErrNotFound)

	ErrInvalidAmount      = errors.New("amount must be greater than zero")
	ErrMissingDescription = errors.New("description is required")
	ErrMissingCategory    = errors.New("category is required")
	ErrInvalidType        = errors.New("invalid transaction type")
	ErrInvalidAccount     = errors.New("invalid account")
	ErrInvalidCustomer    = errors.New("invalid customer")
	ErrInvalidVendor      = errors.New("invalid vendor")
	ErrInvalidDocument    = errors.New("invalid document")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrAlreadyReversed    = errors.New("transaction already reversed")
	ErrMalformedSnapshot  = errors.New("malformed snapshot")
	ErrBackupExists       = errors.New("backup name already taken")

	ErrStorage = errors.New("storage failure")
)

// ValidationError is returned when input is rejected before anything is written.
// It unwraps to one of the sentinel errors above.
type ValidationError struct {
	Err    error
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Reason == "" {
		return e.Err.Error()
	}

	return e.Err.Error() + ": " + e.Reason
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

func invalid(err error, reason string) error {
	return &ValidationError{Err: err, Reason: reason}
}

// StorageError reports a failure of the underlying store. It matches ErrStorage.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return e.Op + ": " + e.Err.Error()
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

func (e *StorageError) Is(target error) bool {
	return target == ErrStorage
}
