package kvstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
)

const badgerPrefix = "lotto"

// BadgerStore keeps values in an embedded Badger database under a key prefix.
type BadgerStore struct {
	db     *badger.DB
	prefix string
}

// NewBadgerStore opens dir. An empty dir opens an in-memory database.
func NewBadgerStore(dir string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("kvstore: open badger: %w", err)
	}
	return &BadgerStore{db: db, prefix: badgerPrefix}, nil
}

func (b *BadgerStore) fullKey(k string) ([]byte, error) {
	if k == "" {
		return nil, ErrKeyEmpty
	}
	return []byte(b.prefix + "/" + k), nil
}

func (b *BadgerStore) Get(_ context.Context, key string) ([]byte, error) {
	k, err := b.fullKey(key)
	if err != nil {
		return nil, err
	}

	var valCopy []byte
	err = b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(k)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		valCopy, err = item.ValueCopy(nil)
		return err
	})
	return valCopy, err
}

func (b *BadgerStore) Set(_ context.Context, key string, value []byte) error {
	k, err := b.fullKey(key)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, value)
	})
}

func (b *BadgerStore) Delete(_ context.Context, key string) error {
	k, err := b.fullKey(key)
	if err != nil {
		return err
	}
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(k)
	})
}

func (b *BadgerStore) Name() string { return BackendBadger }

func (b *BadgerStore) Close() error { return b.db.Close() }
