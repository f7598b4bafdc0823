// Package kv provides a persistent key-value store backed by BadgerDB
package kv

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// KV wraps a Badger database
type KV struct {
	db       *badger.DB
	closed   bool
	closedMu sync.RWMutex
}

// Options for the KV store
type Options struct {
	Dir        string // data directory
	SyncWrites bool   // sync writes to disk
	MemoryMode bool   // in-memory only, no persistence
}

// Open opens a KV store
func Open(opt Options) (*KV, error) {
	opts := badger.DefaultOptions(opt.Dir)
	opts.SyncWrites = opt.SyncWrites
	opts.Logger = nil
	if opt.MemoryMode {
		opts.InMemory = true
		opts.Dir = ""
		opts.ValueDir = ""
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &KV{db: db}, nil
}

// Close closes the KV store
func (k *KV) Close() error {
	k.closedMu.Lock()
	defer k.closedMu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.db.Close()
}

// ErrNotFound is returned by Get when the key does not exist
var ErrNotFound = badger.ErrKeyNotFound

// Set stores a key-value pair
func (k *KV) Set(key string, value []byte) error {
	if err := k.check(); err != nil {
		return err
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

// Get returns the value for key, or ErrNotFound
func (k *KV) Get(key string) ([]byte, error) {
	if err := k.check(); err != nil {
		return nil, err
	}
	var out []byte
	err := k.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	return out, err
}

// Delete removes a key
func (k *KV) Delete(key string) error {
	if err := k.check(); err != nil {
		return err
	}
	return k.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// SetJSON marshals v and stores it under key
func (k *KV) SetJSON(key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	return k.Set(key, data)
}

// GetJSON loads key and unmarshals it into v
func (k *KV) GetJSON(key string, v interface{}) error {
	data, err := k.Get(key)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

// Keys returns all keys with the given prefix
func (k *KV) Keys(prefix string) ([]string, error) {
	if err := k.check(); err != nil {
		return nil, err
	}
	var keys []string
	err := k.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	return keys, err
}

func (k *KV) check() error {
	k.closedMu.RLock()
	defer k.closedMu.RUnlock()
	if k.closed {
		return fmt.Errorf("kv is closed")
	}
	return nil
}
