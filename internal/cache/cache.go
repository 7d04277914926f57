// Boardstream - GitHub Webhook Event Pipeline and Board Reconstruction
// Copyright 2026 Boardstream Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boardstream/boardstream

// Package cache provides a BadgerDB-backed TTL cache for derived read
// models. Everything stored here is reconstructible; deleting an entry is
// always safe, which is what makes the broad invalidation patterns used by
// the event worker acceptable.
package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/boardstream/boardstream/internal/metrics"
)

// ErrNotFound is returned by Get when the key is absent or expired.
var ErrNotFound = errors.New("cache: entry not found")

// Cache is a TTL key-value cache. All operations are safe for concurrent
// use; Badger transactions provide the isolation.
type Cache struct {
	db         *badger.DB
	defaultTTL time.Duration
}

// Options configures a Cache.
type Options struct {
	// Path is the Badger directory. Ignored when InMemory is set.
	Path string
	// InMemory runs Badger without disk persistence. Used in tests and
	// acceptable in production since cache contents are reconstructible.
	InMemory bool
	// DefaultTTL applies to Set calls with a zero TTL.
	DefaultTTL time.Duration
}

// New opens the cache database.
func New(opts Options) (*Cache, error) {
	var badgerOpts badger.Options
	if opts.InMemory {
		badgerOpts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		badgerOpts = badger.DefaultOptions(opts.Path)
		badgerOpts.ValueLogFileSize = 64 << 20
	}
	badgerOpts.Logger = nil // Suppress BadgerDB internal logs

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache db: %w", err)
	}

	ttl := opts.DefaultTTL
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}

	return &Cache{db: db, defaultTTL: ttl}, nil
}

// Get returns the value stored under key, or ErrNotFound.
func (c *Cache) Get(key string) ([]byte, error) {
	var value []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get cache entry: %w", err)
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			metrics.CacheMisses.Inc()
		}
		return nil, err
	}
	metrics.CacheHits.Inc()
	return value, nil
}

// Set stores value under key. A zero ttl uses the cache default.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(ttl)
		return txn.SetEntry(entry)
	})
}

// Del removes a single key. Deleting an absent key is not an error.
func (c *Cache) Del(key string) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("delete cache entry: %w", err)
	}
	metrics.CacheInvalidations.WithLabelValues("exact").Inc()
	return nil
}

// ScanAndDelete removes every key matching pattern, where '*' matches any
// run of characters. The scan is seeded with the pattern's literal prefix
// so it only walks the relevant keyspace. Zero matches is a successful
// no-op.
func (c *Cache) ScanAndDelete(pattern string) (int, error) {
	prefix := literalPrefix(pattern)

	var matched [][]byte
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			key := it.Item().KeyCopy(nil)
			if matchPattern(pattern, string(key)) {
				matched = append(matched, key)
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("scan cache keys: %w", err)
	}
	if len(matched) == 0 {
		return 0, nil
	}

	wb := c.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range matched {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("batch delete cache key: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("flush cache deletions: %w", err)
	}

	metrics.CacheInvalidations.WithLabelValues("pattern").Add(float64(len(matched)))
	return len(matched), nil
}

// Close closes the underlying database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// literalPrefix returns the pattern's leading literal run, up to the first
// wildcard.
func literalPrefix(pattern string) string {
	for i := 0; i < len(pattern); i++ {
		if pattern[i] == '*' {
			return pattern[:i]
		}
	}
	return pattern
}

// matchPattern reports whether key matches pattern, where '*' matches any
// run of characters including the empty one. Iterative two-pointer match
// with backtracking over the last wildcard.
func matchPattern(pattern, key string) bool {
	p, k := 0, 0
	star, mark := -1, 0
	for k < len(key) {
		switch {
		case p < len(pattern) && (pattern[p] == key[k]):
			p++
			k++
		case p < len(pattern) && pattern[p] == '*':
			star = p
			mark = k
			p++
		case star != -1:
			p = star + 1
			mark++
			k = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}
