// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package storage implements the bucket/key/value persistence façade:
// a pending-commit Item records a baseline content hash at fetch time
// and writes back to the underlying Driver only if the value, key, or
// bucket actually changed, mirroring the original framework's db.py
// semantics exactly while replacing its Python hashing/JSON calls with
// Go's crypto/sha256 and encoding/json.
package storage

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
)

// Driver is the pluggable backend contract. A Driver need not support
// transactions. Store takes no locks of its own either: two Items
// fetched for the same key and committed concurrently can overwrite
// each other, the last Commit winning.
type Driver interface {
	// Get returns the stored payload for key in bucket. ok is false if
	// no such object exists; err is reserved for backend failures.
	Get(bucket, key string) (payload []byte, ok bool, err error)
	// Set stores payload for key in bucket, creating the bucket if
	// necessary, and replacing any existing value for key.
	Set(bucket, key string, payload []byte) error
	// Delete removes key from bucket. Deleting a missing key is not an
	// error.
	Delete(bucket, key string) error
	// Rename moves the value at oldKey to newKey within the same
	// bucket.
	Rename(bucket, oldKey, newKey string) error
	// Move relocates the value at key from oldBucket to newBucket.
	Move(oldBucket, key, newBucket string) error
	// ForEach calls fn once per (key, payload) currently in bucket, in
	// unspecified order. A non-nil return from fn stops iteration and
	// is returned from ForEach.
	ForEach(bucket string, fn func(key string, payload []byte) error) error
}

// ErrNotFound is returned by Store.Get when bucket/key holds no value.
var ErrNotFound = errors.New("storage: not found")

func contentHash(v any) (string, []byte, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), data, nil
}

// Store is the top-level façade over a Driver.
type Store struct {
	driver Driver
}

// New creates a Store backed by driver.
func New(driver Driver) *Store {
	return &Store{driver: driver}
}

// Bucket returns a façade scoped to one bucket name.
func (s *Store) Bucket(name string) *Bucket {
	return &Bucket{store: s, name: name}
}

// Get fetches bucket/key, returning an Item whose baseline hash is
// recorded for a later Commit. If the key doesn't exist, the returned
// Item's Value is nil and Commit will create it on any non-nil value
// being set before Commit.
func (s *Store) Get(bucket, key string) (*Item, error) {
	raw, ok, err := s.driver.Get(bucket, key)
	if err != nil {
		return nil, err
	}
	var value any
	if ok {
		if err := json.Unmarshal(raw, &value); err != nil {
			return nil, fmt.Errorf("storage: decode %s/%s: %w", bucket, key, err)
		}
	}
	hash, _, err := contentHash(value)
	if err != nil {
		return nil, err
	}
	return &Item{
		driver:     s.driver,
		origBucket: bucket,
		origKey:    key,
		origHash:   hash,
		Bucket:     bucket,
		Key:        key,
		Value:      value,
	}, nil
}

// Set stores value at bucket/key immediately and returns an Item
// reflecting the new baseline (so a subsequent mutate-then-Commit only
// writes again if value changes further).
func (s *Store) Set(bucket, key string, value any) (*Item, error) {
	hash, data, err := contentHash(value)
	if err != nil {
		return nil, err
	}
	if err := s.driver.Set(bucket, key, data); err != nil {
		return nil, err
	}
	return &Item{
		driver:     s.driver,
		origBucket: bucket,
		origKey:    key,
		origHash:   hash,
		Bucket:     bucket,
		Key:        key,
		Value:      value,
	}, nil
}

// Delete removes bucket/key.
func (s *Store) Delete(bucket, key string) error {
	return s.driver.Delete(bucket, key)
}

// ForEach visits every item in bucket.
func (s *Store) ForEach(bucket string, fn func(*Item) error) error {
	return s.driver.ForEach(bucket, func(key string, payload []byte) error {
		var value any
		if err := json.Unmarshal(payload, &value); err != nil {
			return fmt.Errorf("storage: decode %s/%s: %w", bucket, key, err)
		}
		hash, _, err := contentHash(value)
		if err != nil {
			return err
		}
		return fn(&Item{
			driver:     s.driver,
			origBucket: bucket,
			origKey:    key,
			origHash:   hash,
			Bucket:     bucket,
			Key:        key,
			Value:      value,
		})
	})
}

// Bucket is a Store façade fixed to one bucket name.
type Bucket struct {
	store *Store
	name  string
}

func (b *Bucket) Get(key string) (*Item, error)            { return b.store.Get(b.name, key) }
func (b *Bucket) Set(key string, value any) (*Item, error) { return b.store.Set(b.name, key, value) }
func (b *Bucket) Delete(key string) error                  { return b.store.Delete(b.name, key) }
func (b *Bucket) ForEach(fn func(*Item) error) error        { return b.store.ForEach(b.name, fn) }

// Item represents one stored value, tracking enough of its state at
// fetch/set time to decide, at Commit, whether anything needs writing.
type Item struct {
	driver Driver

	origBucket string
	origKey    string
	origHash   string

	// Bucket and Key may be reassigned before Commit to move or rename
	// the item; Value may be mutated in place.
	Bucket string
	Key    string
	Value  any
}

// Commit writes back Value, or renames/moves/deletes the item, exactly
// when something changed since Get/Set: value content takes priority
// over a bucket change, which takes priority over a key change — an
// item can only be in the middle of one kind of move per Commit, same
// as the original.
func (it *Item) Commit() error {
	hash, data, err := contentHash(it.Value)
	if err != nil {
		return err
	}

	switch {
	case hash != it.origHash:
		if isEmptyValue(it.Value) {
			return it.driver.Delete(it.origBucket, it.origKey)
		}
		return it.driver.Set(it.origBucket, it.origKey, data)
	case it.origBucket != it.Bucket:
		if it.Bucket == "" {
			return it.driver.Delete(it.origBucket, it.origKey)
		}
		return it.driver.Move(it.origBucket, it.origKey, it.Bucket)
	case it.origKey != it.Key:
		if it.Key == "" {
			return it.driver.Delete(it.origBucket, it.origKey)
		}
		return it.driver.Rename(it.origBucket, it.origKey, it.Key)
	}
	return nil
}

// Delete removes the item from its current bucket/key immediately,
// without waiting for Commit.
func (it *Item) Delete() error {
	return it.driver.Delete(it.origBucket, it.origKey)
}

func isEmptyValue(v any) bool {
	if v == nil {
		return true
	}
	switch t := v.(type) {
	case map[string]any:
		return len(t) == 0
	case []any:
		return len(t) == 0
	case string:
		return t == ""
	}
	return false
}
