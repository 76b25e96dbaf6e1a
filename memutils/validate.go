package memutils

import cerrors "github.com/cockroachdb/errors"

// Validatable is used by the DebugValidate method to allow it to act upon
// all types with a Validate method
type Validatable interface {
	Validate() error
}

// ValidateEach runs Validate on every item and returns the first failure, annotated with the
// index of the item that failed
func ValidateEach[T Validatable](items []T) error {
	for index, item := range items {
		if err := item.Validate(); err != nil {
			return cerrors.Wrapf(err, "item %d", index)
		}
	}

	return nil
}
