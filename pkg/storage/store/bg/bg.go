// Package bg implements store.DB on top of badger.
package bg

import (
	"errors"

	"github.com/dgraph-io/badger"
	"github.com/nova-lang/nova/pkg/storage/store"
	"go.uber.org/zap"
)

// New opens (creating if needed) a badger database in dir. Badger's own
// logging goes through log.
func New(dir string, log *zap.Logger) (store.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	opts := badger.DefaultOptions(dir).WithLogger(&bgLogger{log.Sugar()})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &bgStore{db: db}, nil
}

func (db *bgStore) Sync() error {
	return db.db.Sync()
}

func (db *bgStore) Close() error {
	return db.db.Close()
}

func (db *bgStore) Del(k []byte) error {
	return db.db.Update(func(tx *badger.Txn) error {
		return tx.Delete(k)
	})
}

func (db *bgStore) Set(k, v []byte) error {
	return db.db.Update(func(tx *badger.Txn) error {
		return tx.Set(k, v)
	})
}

func (db *bgStore) Get(k []byte) ([]byte, error) {
	var v []byte
	err := db.db.View(func(tx *badger.Txn) error {
		var err error
		v, err = get(tx, k)
		return err
	})
	return v, err
}

func get(tx *badger.Txn, k []byte) ([]byte, error) {
	item, err := tx.Get(k)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.NotExist
	}
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

func (db *bgStore) NewTransaction() store.Transaction {
	return &bgTransaction{tx: db.db.NewTransaction(true)}
}

func (tx *bgTransaction) Commit() error {
	return tx.tx.Commit()
}

func (tx *bgTransaction) Cancel() error {
	tx.tx.Discard()
	return nil
}

func (tx *bgTransaction) Del(k []byte) error {
	return tx.tx.Delete(k)
}

func (tx *bgTransaction) Set(k, v []byte) error {
	return tx.tx.Set(k, v)
}

func (tx *bgTransaction) Get(k []byte) ([]byte, error) {
	return get(tx.tx, k)
}

// bgLogger routes badger's printf-style logging into zap.
type bgLogger struct {
	*zap.SugaredLogger
}

func (l *bgLogger) Errorf(format string, args ...interface{}) {
	l.SugaredLogger.Errorf(format, args...)
}

func (l *bgLogger) Warningf(format string, args ...interface{}) {
	l.SugaredLogger.Warnf(format, args...)
}

func (l *bgLogger) Infof(format string, args ...interface{}) {
	l.SugaredLogger.Debugf(format, args...)
}

func (l *bgLogger) Debugf(format string, args ...interface{}) {
	l.SugaredLogger.Debugf(format, args...)
}
