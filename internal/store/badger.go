package store

import (
	"errors"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/sentinelops/sentinel-pipeline/internal/utils"
)

// BadgerProvider implements Provider on an embedded Badger database, giving
// the content cache and preferences durability across process restarts.
type BadgerProvider struct {
	db *badger.DB
}

// NewBadgerProvider opens (or creates) the database at path.
func NewBadgerProvider(path string) (*BadgerProvider, error) {
	if path == "" {
		return nil, errors.New("badger store path is required")
	}

	opts := badger.DefaultOptions(path)
	opts.Logger = nil
	db, err := badger.Open(opts)
	if err != nil {
		return nil, utils.NewAppError("store.open", "open badger store at "+path, err)
	}
	return &BadgerProvider{db: db}, nil
}

// Get fetches bytes by key, returning ErrNotFound when the key is absent.
func (p *BadgerProvider) Get(key string) ([]byte, error) {
	var value []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, utils.NewAppError("store.get", key, err)
	}
	return value, nil
}

// Set upserts the value under key.
func (p *BadgerProvider) Set(key string, value []byte) error {
	err := p.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
	if err != nil {
		return utils.NewAppError("store.set", key, err)
	}
	return nil
}

// Close releases the database.
func (p *BadgerProvider) Close() error {
	return p.db.Close()
}
