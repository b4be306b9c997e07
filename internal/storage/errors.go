package storage

import "errors"

var (
	// ErrNotFound indicates that no value is stored under the key.
	ErrNotFound = errors.New("not found")

	// ErrStorageClosed indicates that the store is closed.
	ErrStorageClosed = errors.New("storage is closed")
)
