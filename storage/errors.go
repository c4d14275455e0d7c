package storage

import "errors"

// Typed not-found errors let callers distinguish absent-and-expected rows
// (404) from unexpected failures (500).
var (
	ErrProviderNotFound              = errors.New("provider not found")
	ErrInstitutionNotFound           = errors.New("institution not found")
	ErrProviderConnectionNotFound    = errors.New("provider connection not found")
	ErrInstitutionConnectionNotFound = errors.New("institution connection not found")
	ErrAccountNotFound               = errors.New("account not found")
	ErrTransactionNotFound           = errors.New("transaction not found")
	ErrCategoryNotFound              = errors.New("category not found")
)

// IsNotFound reports whether err is one of the typed not-found errors.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrProviderNotFound) ||
		errors.Is(err, ErrInstitutionNotFound) ||
		errors.Is(err, ErrProviderConnectionNotFound) ||
		errors.Is(err, ErrInstitutionConnectionNotFound) ||
		errors.Is(err, ErrAccountNotFound) ||
		errors.Is(err, ErrTransactionNotFound) ||
		errors.Is(err, ErrCategoryNotFound)
}
