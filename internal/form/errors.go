package form

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFieldsFound is returned when a scrape yields no fillable controls.
	ErrNoFieldsFound = errors.New("no fillable form fields found on the page")

	// ErrUnresolvedTarget marks a value whose DOM target could not be found.
	// It is only ever logged.
	ErrUnresolvedTarget = errors.New("form target not resolvable")
)

// PageValidationError carries the error text the page showed after submit.
type PageValidationError struct {
	Text string
}

func (e *PageValidationError) Error() string {
	return fmt.Sprintf("page reported a validation error: %s", e.Text)
}
