package core

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by repositories when nothing is stored under a key
	ErrNotFound = errors.New("not found")
	// ErrAggregationFailed is returned when every scorer in the ensemble failed
	ErrAggregationFailed = errors.New("all priority scorers failed")
)

// ModelError reports that a text-generation backend could not be used
type ModelError struct {
	Provider string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("model %s unavailable: %v", e.Provider, e.Err)
}

func (e *ModelError) Unwrap() error {
	return e.Err
}

// IsModelError reports whether err is, or wraps, a *ModelError
func IsModelError(err error) bool {
	var me *ModelError
	return errors.As(err, &me)
}
