// Package store defines the key-value storage contract used by the result
// journal.
package store

import "errors"

var (
	NotExist = errors.New("NotExist")
	Closed   = errors.New("store closed")
)

type DB interface {
	Sync() error

	Close() error

	Del([]byte) error
	Set([]byte, []byte) error
	Get([]byte) ([]byte, error)

	NewTransaction() Transaction
	// NewIterator walks the keys under prefix starting at start.
	NewIterator(prefix []byte, start []byte) Iterator
}

// Transaction batches writes that become visible together on Commit.
type Transaction interface {
	Commit() error
	Cancel() error

	Del([]byte) error
	Set([]byte, []byte) error
	Get([]byte) ([]byte, error)
}

type Iterator interface {
	Next() bool

	Error() error

	Key() []byte

	Value() []byte

	Release()
}
