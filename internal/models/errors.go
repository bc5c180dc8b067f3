package models

import (
	"errors"
	"fmt"
)

var (
	ErrInput           = errors.New("invalid input")
	ErrTemplate        = errors.New("template error")
	ErrMissingVariable = fmt.Errorf("%w: missing variable", ErrTemplate)
	ErrUnusedVariable  = fmt.Errorf("%w: unused variable", ErrTemplate)
	ErrUpstream        = errors.New("upstream completion failed")
	ErrIO              = errors.New("storage io failed")
	ErrNotFound        = fmt.Errorf("%w: document not found", ErrIO)
	ErrCancelled       = errors.New("generation cancelled")
	ErrBudgetExceeded  = errors.New("combined summaries exceed the prompt budget")
)

// NewInputError formats a message wrapping ErrInput.
func NewInputError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInput, fmt.Sprintf(format, args...))
}

// NewIOError wraps a storage failure on the named document.
func NewIOError(name string, err error) error {
	if errors.Is(err, ErrIO) {
		return err
	}
	return fmt.Errorf("%w: %s: %v", ErrIO, name, err)
}
