package recordstore

import (
	"errors"
	"fmt"
)

// Errors for store operations.
var (
	// ErrCorruptDocument indicates the document file holds invalid JSON.
	// Only returned under CorruptFail; CorruptReset recovers to the default.
	ErrCorruptDocument = errors.New("corrupt document")

	// ErrLockTimeout indicates the advisory lock could not be acquired
	// within the configured timeout or the caller's context deadline.
	ErrLockTimeout = errors.New("lock acquisition timed out")

	// ErrNotAList indicates a record operation was invoked on a document
	// that is valid JSON but not a JSON array.
	ErrNotAList = errors.New("document is not a record list")

	// ErrNotAnObject indicates a counter path traverses a value that is
	// not a JSON object.
	ErrNotAnObject = errors.New("counter path is not an object")

	// ErrNotANumber indicates a counter update targets a field holding a
	// non-numeric value.
	ErrNotANumber = errors.New("counter field is not a number")
)

// StorageError wraps an I/O failure with the operation and file it hit.
// Storage errors are always surfaced to the caller and never retried.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("recordstore: %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// storageErr builds a *StorageError for op on path.
func storageErr(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}
