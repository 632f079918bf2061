// vxcube-go
// Copyright (c) 2026, DCSO GmbH

// Package samplecache keeps a local record of uploaded samples, keyed by
// SHA-256, so the same file is not pushed to the sandbox twice.
package samplecache

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"time"

	"github.com/DCSO/vxcube-go/api"
	"github.com/DCSO/vxcube-go/util"

	bolt "github.com/etcd-io/bbolt"
	log "github.com/sirupsen/logrus"
)

const (
	bucketName = "SAMPLES"

	// DatabaseName is the file name of the cache database.
	DatabaseName = "samples.db"
)

// ErrNotCached is returned by Get when no entry exists for the hash.
var ErrNotCached = errors.New("sample not cached")

// Entry is the stored record for one uploaded file.
type Entry struct {
	Sample   api.Sample    `json:"sample"`
	Hashes   util.HashInfo `json:"hashes"`
	Uploaded time.Time     `json:"uploaded"`
}

// Cache is a bbolt-backed sample cache. One Cache per database file; safe
// for concurrent use per bbolt's semantics.
type Cache struct {
	db *bolt.DB
}

// Open opens (or creates) the cache database in dataPath.
func Open(dataPath string) (*Cache, error) {
	db, err := bolt.Open(filepath.Join(dataPath, DatabaseName), 0600, nil)
	if err != nil {
		return nil, err
	}
	log.Debug("sample cache opened: ", db.Path())
	return &Cache{db: db}, nil
}

// Close should be called before the program terminates.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Put records an uploaded sample under its SHA-256.
func (c *Cache) Put(hashes util.HashInfo, sample api.Sample) error {
	entry := Entry{
		Sample:   sample,
		Hashes:   hashes,
		Uploaded: time.Now().UTC(),
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	err = c.db.Update(func(tx *bolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists([]byte(bucketName))
		if err != nil {
			return err
		}
		return bucket.Put([]byte(hashes.Sha256), encoded)
	})
	if err == nil {
		log.Debug("stored sample cache entry: ", hashes.Sha256)
	}
	return err
}

// Get looks up a previous upload by SHA-256 hex digest.
func (c *Cache) Get(sha256 string) (*Entry, error) {
	var data []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket([]byte(bucketName))
		if bucket == nil {
			return nil
		}
		if v := bucket.Get([]byte(sha256)); v != nil {
			data = append([]byte(nil), v...)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrNotCached
	}
	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}
