package store

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownCollection = errors.New("unknown collection")
	ErrInvalidKey        = errors.New("invalid key")
)

// StorageError is a local persistence failure: quota exhausted, disk or
// database unavailable, corrupted document.
type StorageError struct {
	Op         string
	Collection Collection
	Key        Key
	Err        error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("store: %s %s/%s: %v", e.Op, e.Collection, e.Key, e.Err)
	}
	if e.Collection != "" {
		return fmt.Sprintf("store: %s %s: %v", e.Op, e.Collection, e.Err)
	}
	return fmt.Sprintf("store: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err, or anything it wraps, is a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

func storageErr(op string, c Collection, key Key, err error) error {
	if err == nil {
		return nil
	}
	var se *StorageError
	if errors.As(err, &se) {
		return err
	}
	return &StorageError{Op: op, Collection: c, Key: key, Err: err}
}

func checkKey(op string, c Collection, key Key) error {
	if !c.valid() {
		return storageErr(op, c, key, ErrUnknownCollection)
	}
	if key == "" {
		if !c.AutoIncrement() || op != "put" {
			return storageErr(op, c, key, ErrInvalidKey)
		}
		return nil
	}
	if c.AutoIncrement() {
		if _, err := key.Int64(); err != nil {
			return storageErr(op, c, key, ErrInvalidKey)
		}
	}
	return nil
}
