// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package memdriver implements an in-process storage.Driver backed by
// nested maps. It has no persistence across restarts; it exists for
// tests and for running the framework without a configured database
// backend.
package memdriver

import (
	"sync"

	"github.com/tinyreef/aib/storage"
)

// Driver is a storage.Driver over in-memory maps, safe for concurrent use.
type Driver struct {
	mu      sync.Mutex
	buckets map[string]map[string][]byte
}

// New creates an empty Driver.
func New() *Driver {
	return &Driver{buckets: make(map[string]map[string][]byte)}
}

var _ storage.Driver = (*Driver)(nil)

func (d *Driver) Get(bucket, key string) ([]byte, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buckets[bucket]
	if !ok {
		return nil, false, nil
	}
	v, ok := b[key]
	if !ok {
		return nil, false, nil
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, true, nil
}

func (d *Driver) Set(bucket, key string, payload []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buckets[bucket]
	if !ok {
		b = make(map[string][]byte)
		d.buckets[bucket] = b
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	b[key] = cp
	return nil
}

func (d *Driver) Delete(bucket, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buckets[bucket]
	if !ok {
		return nil
	}
	delete(b, key)
	if len(b) == 0 {
		delete(d.buckets, bucket)
	}
	return nil
}

func (d *Driver) Rename(bucket, oldKey, newKey string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buckets[bucket]
	if !ok {
		return nil
	}
	v, ok := b[oldKey]
	if !ok {
		return nil
	}
	delete(b, oldKey)
	b[newKey] = v
	return nil
}

func (d *Driver) Move(oldBucket, key, newBucket string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	src, ok := d.buckets[oldBucket]
	if !ok {
		return nil
	}
	v, ok := src[key]
	if !ok {
		return nil
	}
	delete(src, key)
	if len(src) == 0 {
		delete(d.buckets, oldBucket)
	}
	dst, ok := d.buckets[newBucket]
	if !ok {
		dst = make(map[string][]byte)
		d.buckets[newBucket] = dst
	}
	dst[key] = v
	return nil
}

func (d *Driver) ForEach(bucket string, fn func(key string, payload []byte) error) error {
	d.mu.Lock()
	b, ok := d.buckets[bucket]
	if !ok {
		d.mu.Unlock()
		return nil
	}
	snapshot := make(map[string][]byte, len(b))
	for k, v := range b {
		cp := make([]byte, len(v))
		copy(cp, v)
		snapshot[k] = cp
	}
	d.mu.Unlock()

	for k, v := range snapshot {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}
