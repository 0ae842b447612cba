// Package store holds the error contract shared by the persistence backends.
package store

import "errors"

var (
	// ErrNotFound indicates the requested record does not exist for the business.
	ErrNotFound = errors.New("store: not found")
	// ErrReferenceConflict indicates a sale number is already taken within the business.
	ErrReferenceConflict = errors.New("store: reference number already in use")
	// ErrStaleBalance indicates the sale changed since it was read.
	ErrStaleBalance = errors.New("store: sale balance changed concurrently")
	// ErrDuplicate indicates a record with the same natural key already exists.
	ErrDuplicate = errors.New("store: record already exists")
)

// IsConflict reports whether err is a retryable conflict.
func IsConflict(err error) bool {
	return errors.Is(err, ErrReferenceConflict) || errors.Is(err, ErrStaleBalance)
}
