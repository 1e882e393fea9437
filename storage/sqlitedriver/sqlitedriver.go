// Copyright (c) Liam Stanley <me@liamstanley.io>. All rights reserved. Use
// of this source code is governed by the MIT license that can be found in
// the LICENSE file.

// Package sqlitedriver implements storage.Driver on top of database/sql,
// one table per bucket, keyed by a hash of the bucket name exactly the
// way the original framework's dbd/sqlite.py did: a bucket's table is
// named after the hex SHA-256 of the bucket string (so arbitrary bucket
// names stay valid SQL identifiers), and values are stored
// zlib-compressed. No CGo driver is assumed; wire in any database/sql
// driver registered under the "sqlite" name at import time (e.g.
// modernc.org/sqlite, which is pure Go).
package sqlitedriver

import (
	"bytes"
	"compress/zlib"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/tinyreef/aib/storage"
)

// Driver is a storage.Driver backed by a single SQLite database file.
type Driver struct {
	db *sql.DB
}

var _ storage.Driver = (*Driver)(nil)

// Open opens (or creates) the SQLite database at path using the
// "sqlite" database/sql driver name. Callers must blank-import a
// concrete driver package (e.g. modernc.org/sqlite) that registers
// under that name.
func Open(path string) (*Driver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlitedriver: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlitedriver: open %s: %w", path, err)
	}
	return &Driver{db: db}, nil
}

// Close closes the underlying database handle.
func (d *Driver) Close() error { return d.db.Close() }

func tableName(bucket string) string {
	sum := sha256.Sum256([]byte(bucket))
	return "b_" + hex.EncodeToString(sum[:])
}

func compress(payload []byte) []byte {
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	w.Write(payload)
	w.Close()
	return buf.Bytes()
}

func decompress(payload []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (d *Driver) bucketExists(bucket string) (bool, error) {
	var name string
	err := d.db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?",
		tableName(bucket),
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *Driver) createBucket(bucket string) error {
	_, err := d.db.Exec(fmt.Sprintf(
		"CREATE TABLE `%s` (key TEXT UNIQUE, value BLOB)", tableName(bucket)))
	return err
}

func (d *Driver) Get(bucket, key string) ([]byte, bool, error) {
	exists, err := d.bucketExists(bucket)
	if err != nil || !exists {
		return nil, false, err
	}
	var raw []byte
	err = d.db.QueryRow(
		fmt.Sprintf("SELECT value FROM `%s` WHERE key = ?", tableName(bucket)), key,
	).Scan(&raw)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	payload, err := decompress(raw)
	if err != nil {
		return nil, false, fmt.Errorf("sqlitedriver: decompress %s/%s: %w", bucket, key, err)
	}
	return payload, true, nil
}

func (d *Driver) Set(bucket, key string, payload []byte) error {
	exists, err := d.bucketExists(bucket)
	if err != nil {
		return err
	}
	if !exists {
		if err := d.createBucket(bucket); err != nil {
			return err
		}
	}
	_, err = d.db.Exec(
		fmt.Sprintf("REPLACE INTO `%s` (key, value) VALUES (?, ?)", tableName(bucket)),
		key, compress(payload))
	return err
}

func (d *Driver) Delete(bucket, key string) error {
	exists, err := d.bucketExists(bucket)
	if err != nil || !exists {
		return err
	}
	if _, err := d.db.Exec(
		fmt.Sprintf("DELETE FROM `%s` WHERE key = ?", tableName(bucket)), key); err != nil {
		return err
	}

	var count int
	if err := d.db.QueryRow(
		fmt.Sprintf("SELECT count(*) FROM `%s`", tableName(bucket))).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		_, err = d.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS `%s`", tableName(bucket)))
	}
	return err
}

func (d *Driver) Rename(bucket, oldKey, newKey string) error {
	exists, err := d.bucketExists(bucket)
	if err != nil || !exists {
		return err
	}
	_, err = d.db.Exec(
		fmt.Sprintf("UPDATE `%s` SET key = ? WHERE key = ?", tableName(bucket)), newKey, oldKey)
	return err
}

func (d *Driver) Move(oldBucket, key, newBucket string) error {
	payload, ok, err := d.Get(oldBucket, key)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	if err := d.Delete(oldBucket, key); err != nil {
		return err
	}
	return d.Set(newBucket, key, payload)
}

func (d *Driver) ForEach(bucket string, fn func(key string, payload []byte) error) error {
	exists, err := d.bucketExists(bucket)
	if err != nil || !exists {
		return err
	}
	rows, err := d.db.Query(fmt.Sprintf("SELECT key, value FROM `%s`", tableName(bucket)))
	if err != nil {
		return err
	}
	defer rows.Close()

	type kv struct {
		key     string
		payload []byte
	}
	var all []kv
	for rows.Next() {
		var k string
		var raw []byte
		if err := rows.Scan(&k, &raw); err != nil {
			return err
		}
		payload, err := decompress(raw)
		if err != nil {
			return fmt.Errorf("sqlitedriver: decompress %s/%s: %w", bucket, k, err)
		}
		all = append(all, kv{key: k, payload: payload})
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for _, r := range all {
		if err := fn(r.key, r.payload); err != nil {
			return err
		}
	}
	return nil
}
