package registry

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when an edit targets a missing key.
	ErrNotFound = errors.New("registry: not found")
	// ErrAlreadyExists is returned when an insert collides with an existing key.
	ErrAlreadyExists = errors.New("registry: already exists")
	// ErrLastAdmin is returned when a delete would leave the admin set empty.
	ErrLastAdmin = errors.New("registry: cannot remove the last admin")
	// ErrInvalid is returned for values that can never be stored.
	ErrInvalid = errors.New("registry: invalid value")
)

// StoreError reports a persistence failure. The in-memory state is left unchanged.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("registry: %s: store: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// Code is picked up by the handler summary as err_code.
func (e *StoreError) Code() string { return "STORE_FAILURE" }
