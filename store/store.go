// Package store is the durable local store of the kiosk: JSON documents kept
// in named collections that survive restarts.
//
// Two collections assign auto-increment keys (submissions, outbox); the
// others are keyed by caller-chosen strings (files by attachment name, meta
// by setting key). Multi-collection writes go through Update, which either
// commits every write or none.
//
// Every failure coming out of a Store is a *StorageError, so callers can tell
// a lost local write apart from any other failure.
package store

import (
	"context"
	"strconv"
)

type Collection string

const (
	Submissions Collection = "submissions"
	Outbox      Collection = "outbox"
	Files       Collection = "files"
	Meta        Collection = "meta"
)

var Collections = []Collection{Submissions, Outbox, Files, Meta}

// AutoIncrement reports whether the collection assigns its own keys.
func (c Collection) AutoIncrement() bool {
	return c == Submissions || c == Outbox
}

func (c Collection) valid() bool {
	for _, known := range Collections {
		if c == known {
			return true
		}
	}
	return false
}

// Key identifies a document within a collection. Auto-increment keys are
// decimal integers.
type Key string

func IntKey(id int64) Key {
	return Key(strconv.FormatInt(id, 10))
}

func (k Key) Int64() (int64, error) {
	return strconv.ParseInt(string(k), 10, 64)
}

// Decoder decodes the current document into dst.
type Decoder func(dst any) error

type Reader interface {
	// Get decodes the document stored under key into dst. It reports false
	// when no such document exists.
	Get(ctx context.Context, c Collection, key Key, dst any) (bool, error)

	// GetAll calls fn for every document of c in ascending key order. The
	// documents are read in a single snapshot before fn is first called.
	GetAll(ctx context.Context, c Collection, fn func(key Key, decode Decoder) error) error
}

type Writer interface {
	// Put stores value under key, replacing any previous document. An empty
	// key on an auto-increment collection assigns the next key. The key
	// used is returned.
	Put(ctx context.Context, c Collection, key Key, value any) (Key, error)

	// Delete removes the document under key. Deleting a missing key is not
	// an error.
	Delete(ctx context.Context, c Collection, key Key) error
}

type Tx interface {
	Reader
	Writer
}

type Store interface {
	Tx

	// Update runs fn in a transaction. Writes made through tx become
	// visible, and durable, only if fn returns nil. fn must use tx, never
	// the Store itself.
	Update(ctx context.Context, fn func(tx Tx) error) error

	Close() error
}
