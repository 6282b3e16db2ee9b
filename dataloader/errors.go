package dataloader

import (
	"errors"
	"fmt"
)

var (
	ErrFetchFailure      = errors.New("dataloader: fetch failed")
	ErrInvalidKey        = errors.New("dataloader: invalid key")
	ErrWindowClosed      = errors.New("dataloader: window closed")
	ErrUnknownEntityType = errors.New("dataloader: unknown entity type")
)

// FetchFailure is delivered to every handle of a dispatched batch whose fetch returned an error.
type FetchFailure struct {
	EntityType EntityType
	Keys       []any
	Cause      error
}

func (f *FetchFailure) Error() string {
	return fmt.Sprintf("dataloader: fetch of %d %s failed: %v", len(f.Keys), f.EntityType, f.Cause)
}

func (f *FetchFailure) Unwrap() error {
	return f.Cause
}

func (f *FetchFailure) Is(target error) bool {
	return target == ErrFetchFailure
}

// ContractViolation means a fetch function broke its contract. Loaders panic with it.
type ContractViolation struct {
	EntityType EntityType
	Reason     string
}

func (c ContractViolation) Error() string {
	return fmt.Sprintf("dataloader: %s fetch contract violated: %s", c.EntityType, c.Reason)
}
