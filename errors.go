package percolate

import (
	"errors"
	"fmt"

	"github.com/hupe1980/percolate/index"
	"github.com/hupe1980/percolate/mapper"
	"github.com/hupe1980/percolate/mapping"
	"github.com/hupe1980/percolate/query"
)

var (
	// ErrNotFound is returned when no stored query has the given id.
	ErrNotFound = errors.New("stored query not found")

	// ErrClosed is returned by operations on a closed Percolator.
	ErrClosed = errors.New("percolator is closed")

	// ErrNoDocuments is returned when Percolate is called without documents.
	ErrNoDocuments = errors.New("no documents to percolate")

	// ErrDocumentsTooLarge is returned when the submitted documents exceed the
	// candidate memory budget.
	ErrDocumentsTooLarge = errors.New("documents exceed the candidate memory budget")

	// ErrMissingQuery is returned when a stored document has no percolator field.
	ErrMissingQuery = errors.New("document has no percolator query")

	// ErrInvalidSnapshot is returned when a snapshot is truncated, corrupted or of an
	// unknown version.
	ErrInvalidSnapshot = errors.New("invalid snapshot")

	// ErrDuplicateQuery is returned when a stored document holds more than one query.
	ErrDuplicateQuery = mapper.ErrDuplicateQuery

	// ErrJoinQuery is returned when a stored query contains a parent/child join.
	ErrJoinQuery = query.ErrJoinQuery

	// ErrUnmappedField is returned when a stored query references an unmapped field
	// and unmapped fields are not treated as text.
	ErrUnmappedField = mapping.ErrUnmappedField
)

// StoreRejectedError is returned when a stored query cannot be registered. The
// index is left unchanged.
//
// The underlying error can be accessed via errors.Unwrap.
type StoreRejectedError struct {
	ID     string
	Reason string
	cause  error
}

func (e *StoreRejectedError) Error() string {
	return fmt.Sprintf("stored query %q rejected: %s", e.ID, e.Reason)
}

func (e *StoreRejectedError) Unwrap() error { return e.cause }

func rejected(id string, err error) error {
	if err == nil {
		return nil
	}
	var sre *StoreRejectedError
	if errors.As(err, &sre) {
		return err
	}
	return &StoreRejectedError{ID: id, Reason: err.Error(), cause: err}
}

func translateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, index.ErrNotFound) && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}
	return err
}
